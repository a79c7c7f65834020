//go:build !llama

package engine

import (
	"fmt"

	"github.com/samcharles93/genai-chat/internal/logger"
)

// Builds without the llama tag stay cgo-free; the in-process backend then
// refuses to load instead of pretending to run.
func newLlamaCppEngine(_ LoadSpec, modelFile string, _ int, _ logger.Logger) (Engine, error) {
	return nil, loadErr(BackendLlamaCpp, modelFile,
		fmt.Errorf("%w: llama support not built (rebuild with -tags llama)", ErrBackendUnavailable))
}
