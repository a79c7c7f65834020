package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/samcharles93/genai-chat/internal/logger"
)

const (
	BackendLlamaCpp = "llamacpp"
	BackendServer   = "server"
)

// Backends lists the backend names Load understands.
func Backends() []string { return []string{BackendLlamaCpp, BackendServer} }

// LoadSpec describes the engine to create.
type LoadSpec struct {
	Backend string
	// ModelPath is a model file or a directory holding one. For the server
	// backend it is only forwarded as the model name.
	ModelPath string
	Device    string
	// BaseDir anchors relative ModelPath and CacheDir values.
	BaseDir string
	// CacheDir holds prompt-cache files. It is created when set.
	CacheDir string

	ServerURL   string
	ContextSize int
	Threads     int
	GPULayers   int

	// ReplySuffix and Stop come from the prompt dialect in use.
	ReplySuffix string
	Stop        []string

	Defaults GenerationConfig

	HTTPClient *http.Client
	Logger     logger.Logger
}

func (s LoadSpec) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || s.BaseDir == "" {
		return p
	}
	return filepath.Join(s.BaseDir, p)
}

// Load validates spec and opens the requested backend. Failures are returned
// as *LoadError.
func Load(ctx context.Context, spec LoadSpec) (eng Engine, err error) {
	backend := strings.ToLower(strings.TrimSpace(spec.Backend))
	if backend == "" {
		backend = BackendLlamaCpp
	}
	if !slices.Contains(Backends(), backend) {
		return nil, loadErr(spec.Backend, "", fmt.Errorf("%w %q (known: %s)", ErrUnknownBackend, spec.Backend, strings.Join(Backends(), ", ")))
	}
	if err := ctx.Err(); err != nil {
		return nil, loadErr(backend, spec.ModelPath, err)
	}

	device, err := ParseDevice(spec.Device)
	if err != nil {
		return nil, loadErr(backend, spec.ModelPath, err)
	}
	if spec.Logger == nil {
		spec.Logger = logger.FromContext(ctx)
	}
	log := spec.Logger.With("backend", backend, "device", string(device))

	if spec.CacheDir != "" {
		spec.CacheDir = spec.resolve(spec.CacheDir)
		if err := os.MkdirAll(spec.CacheDir, 0o755); err != nil {
			return nil, loadErr(backend, spec.ModelPath, fmt.Errorf("create cache dir: %w", err))
		}
	}

	defer func() {
		if rec := recover(); rec != nil {
			eng = nil
			err = loadErr(backend, spec.ModelPath, fmt.Errorf("%w: panic during load: %v", ErrNonStandard, rec))
		}
	}()

	switch backend {
	case BackendServer:
		eng, err = newServerEngine(ctx, spec, device, log)
	default:
		var modelFile string
		modelFile, err = findModelFile(spec.resolve(spec.ModelPath))
		if err != nil {
			return nil, loadErr(backend, spec.ModelPath, err)
		}
		var layers int
		layers, err = gpuLayersFor(device, spec.GPULayers)
		if err != nil {
			return nil, loadErr(backend, modelFile, err)
		}
		log.Debug("loading model", "path", modelFile, "gpu_layers", layers)
		eng, err = newLlamaCppEngine(spec, modelFile, layers, log)
		if err != nil {
			var le *LoadError
			if !errors.As(err, &le) {
				err = loadErr(backend, modelFile, err)
			}
		}
	}
	if err != nil {
		return nil, err
	}
	log.Info("engine ready", "model", spec.ModelPath)
	return eng, nil
}

// findModelFile returns path itself when it is a file, or the first GGUF file
// inside it when it is a directory.
func findModelFile(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: model path is required", ErrModelNotFound)
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrModelNotFound, path)
		}
		return "", fmt.Errorf("stat model: %w", err)
	}
	if !info.IsDir() {
		return path, nil
	}
	matches, err := filepath.Glob(filepath.Join(path, "*.gguf"))
	if err != nil {
		return "", fmt.Errorf("scan model dir: %w", err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: no .gguf file in %s", ErrModelNotFound, path)
	}
	slices.Sort(matches)
	return matches[0], nil
}

// gpuLayersFor maps a device selector onto llama.cpp GPU offload.
func gpuLayersFor(d Device, configured int) (int, error) {
	switch d {
	case DeviceCPU:
		return 0, nil
	case DeviceNPU:
		return 0, fmt.Errorf("%w: NPU is not supported by the llamacpp backend", ErrDeviceUnavailable)
	default:
		if configured <= 0 {
			return 999, nil
		}
		return configured, nil
	}
}
