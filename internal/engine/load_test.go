package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/samcharles93/genai-chat/internal/logger"
)

func TestLoadClassifiesFailures(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	emptyDir := filepath.Join(dir, "empty")
	if err := os.Mkdir(emptyDir, 0o755); err != nil {
		t.Fatal(err)
	}
	modelDir := filepath.Join(dir, "llama-3.2-3b")
	if err := os.Mkdir(modelDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(modelDir, "model-q4.gguf"), []byte("GGUF"), 0o644); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name string
		spec LoadSpec
		want error
	}{
		{
			name: "unknown backend",
			spec: LoadSpec{Backend: "openvino", ModelPath: modelDir},
			want: ErrUnknownBackend,
		},
		{
			name: "missing model dir",
			spec: LoadSpec{ModelPath: filepath.Join(dir, "nope")},
			want: ErrModelNotFound,
		},
		{
			name: "dir without gguf",
			spec: LoadSpec{ModelPath: emptyDir},
			want: ErrModelNotFound,
		},
		{
			name: "empty path",
			spec: LoadSpec{},
			want: ErrModelNotFound,
		},
		{
			name: "unknown device",
			spec: LoadSpec{ModelPath: modelDir, Device: "TPU"},
			want: ErrDeviceUnavailable,
		},
		{
			name: "npu on llamacpp",
			spec: LoadSpec{ModelPath: modelDir, Device: "NPU"},
			want: ErrDeviceUnavailable,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			tc.spec.Logger = logger.Discard()
			eng, err := Load(context.Background(), tc.spec)
			if eng != nil {
				t.Fatalf("expected nil engine, got %T", eng)
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v want %v", err, tc.want)
			}
			var le *LoadError
			if !errors.As(err, &le) {
				t.Fatalf("expected *LoadError, got %T", err)
			}
		})
	}
}

func TestLoadResolvesAgainstBaseDir(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	_, err := Load(context.Background(), LoadSpec{
		ModelPath: "models/missing",
		BaseDir:   base,
		CacheDir:  "ov_cache",
		Device:    "cpu",
		Logger:    logger.Discard(),
	})
	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("expected *LoadError, got %v", err)
	}
	if !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("got %v want ErrModelNotFound", err)
	}
	if info, statErr := os.Stat(filepath.Join(base, "ov_cache")); statErr != nil || !info.IsDir() {
		t.Fatalf("cache dir not created under base dir: %v", statErr)
	}
}

func TestLoadHonoursCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Load(ctx, LoadSpec{ModelPath: "x", Logger: logger.Discard()})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v want context.Canceled", err)
	}
}

func TestFindModelFilePicksFirstGGUF(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{"b.gguf", "a.gguf", "readme.md"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	got, err := findModelFile(dir)
	if err != nil {
		t.Fatalf("findModelFile: %v", err)
	}
	if want := filepath.Join(dir, "a.gguf"); got != want {
		t.Fatalf("got %q want %q", got, want)
	}

	file := filepath.Join(dir, "readme.md")
	if got, err := findModelFile(file); err != nil || got != file {
		t.Fatalf("file path: got %q, %v", got, err)
	}
}

func TestGPULayersFor(t *testing.T) {
	t.Parallel()

	cases := []struct {
		dev     Device
		conf    int
		want    int
		wantErr error
	}{
		{dev: DeviceCPU, conf: 32, want: 0},
		{dev: DeviceGPU, conf: 32, want: 32},
		{dev: DeviceAuto, conf: 0, want: 999},
		{dev: DeviceNPU, wantErr: ErrDeviceUnavailable},
	}
	for _, tc := range cases {
		got, err := gpuLayersFor(tc.dev, tc.conf)
		if tc.wantErr != nil {
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("%s: got %v want %v", tc.dev, err, tc.wantErr)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("%s: got %d, %v want %d", tc.dev, got, err, tc.want)
		}
	}
}

func TestParseDevice(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Device{"": DeviceCPU, "cpu": DeviceCPU, " Gpu ": DeviceGPU, "NPU": DeviceNPU, "auto": DeviceAuto} {
		got, err := ParseDevice(in)
		if err != nil || got != want {
			t.Fatalf("ParseDevice(%q): got %q, %v want %q", in, got, err, want)
		}
	}
	if _, err := ParseDevice("HETERO"); !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("got %v want ErrDeviceUnavailable", err)
	}
}

func TestGenerationConfigDefaults(t *testing.T) {
	t.Parallel()

	d := GenerationConfig{MaxNewTokens: 256, Temperature: 0.7, Stop: []string{"</s>"}}
	got := GenerationConfig{TopK: 40, Stop: []string{"</s>", "[INST]"}}.withDefaults(d)
	if got.MaxNewTokens != 256 || got.Temperature != 0.7 || got.TopK != 40 {
		t.Fatalf("unexpected merge: %+v", got)
	}
	if len(got.Stop) != 2 || got.Stop[0] != "</s>" || got.Stop[1] != "[INST]" {
		t.Fatalf("stop sequences: got %q", got.Stop)
	}
	if got := (GenerationConfig{}).withDefaults(GenerationConfig{}); got.MaxNewTokens != DefaultMaxNewTokens {
		t.Fatalf("got %d want %d", got.MaxNewTokens, DefaultMaxNewTokens)
	}
}
