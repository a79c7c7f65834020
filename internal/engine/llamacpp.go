//go:build llama

package engine

import (
	"context"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	llama "github.com/go-skynet/go-llama.cpp"

	"github.com/samcharles93/genai-chat/internal/logger"
)

// llamaCppEngine runs a GGUF model in-process through the llama.cpp bindings.
type llamaCppEngine struct {
	mu        sync.Mutex
	model     *llama.LLama
	threads   int
	cacheFile string
	defaults  GenerationConfig
	chat      transcript
	log       logger.Logger
}

func newLlamaCppEngine(spec LoadSpec, modelFile string, gpuLayers int, log logger.Logger) (Engine, error) {
	ctxSize := spec.ContextSize
	if ctxSize <= 0 {
		ctxSize = 2048
	}
	threads := spec.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	m, err := llama.New(modelFile,
		llama.SetContext(ctxSize),
		llama.SetGPULayers(gpuLayers),
	)
	if err != nil {
		return nil, loadErr(BackendLlamaCpp, modelFile, err)
	}

	e := &llamaCppEngine{
		model:    m,
		threads:  threads,
		defaults: spec.Defaults,
		chat:     newTranscript(spec.ReplySuffix, spec.Stop),
		log:      log.With("model", filepath.Base(modelFile)),
	}
	e.defaults.Stop = mergeStop(spec.Stop, spec.Defaults.Stop)
	if spec.CacheDir != "" {
		e.cacheFile = filepath.Join(spec.CacheDir, strings.TrimSuffix(filepath.Base(modelFile), filepath.Ext(modelFile))+".prompt-cache")
	}
	return e, nil
}

func (e *llamaCppEngine) StartChat(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model == nil {
		return ErrClosed
	}
	e.chat.start()
	return ctx.Err()
}

func (e *llamaCppEngine) EndChat() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.chat.end()
	return nil
}

func (e *llamaCppEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model != nil {
		e.model.Free()
		e.model = nil
	}
	e.chat.end()
	return nil
}

func (e *llamaCppEngine) Generate(ctx context.Context, text string, cfg GenerationConfig, onToken TokenFunc) (stats Stats, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model == nil {
		return stats, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return stats, err
	}
	defer recoverNonStandard("llama.cpp predict", &err)

	cfg = cfg.withDefaults(e.defaults)

	var reply strings.Builder
	e.model.SetTokenCallback(func(tok string) bool {
		if ctx.Err() != nil {
			return false
		}
		reply.WriteString(tok)
		stats.TokensGenerated++
		if onToken != nil && onToken(tok) {
			stats.Stopped = true
			return false
		}
		return true
	})

	start := time.Now()
	_, err = e.model.Predict(e.chat.prompt(text), e.predictOptions(cfg)...)
	stats.finish(start)
	if ctx.Err() != nil {
		return stats, ctx.Err()
	}
	if err != nil && !stats.Stopped {
		return stats, err
	}

	e.chat.commit(text, reply.String())
	e.log.Debug("predict finished", "tokens", stats.TokensGenerated, "stopped", stats.Stopped, "tps", stats.TPS)
	return stats, nil
}

func (e *llamaCppEngine) predictOptions(cfg GenerationConfig) []llama.PredictOption {
	po := []llama.PredictOption{
		llama.SetTokens(max(1, cfg.MaxNewTokens)),
		llama.SetThreads(max(1, e.threads)),
		llama.SetTopP(orF32(cfg.TopP, llama.DefaultOptions.TopP)),
		llama.SetTopK(orInt(cfg.TopK, llama.DefaultOptions.TopK)),
		llama.SetTemperature(orF32(cfg.Temperature, llama.DefaultOptions.Temperature)),
		llama.SetPenalty(orF32(cfg.RepeatPenalty, llama.DefaultOptions.Penalty)),
	}
	if cfg.Seed != 0 {
		po = append(po, llama.SetSeed(int(cfg.Seed)))
	}
	if len(cfg.Stop) > 0 {
		po = append(po, llama.SetStopWords(cfg.Stop...))
	}
	if e.cacheFile != "" {
		po = append(po, llama.SetPathPromptCache(e.cacheFile), llama.EnablePromptCacheAll)
	}
	return po
}

func orInt(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func orF32(v float64, def float32) float32 {
	if v > 0 {
		return float32(v)
	}
	return def
}
