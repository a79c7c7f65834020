package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/samcharles93/genai-chat/internal/engine"
	"github.com/samcharles93/genai-chat/internal/genie"
)

func TestParsePositional(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		args    []string
		max     int
		device  string
		want    positional
		wantErr bool
	}{
		{
			name:   "model only",
			args:   []string{"models/llama"},
			max:    3,
			device: "CPU",
			want:   positional{ModelDir: "models/llama", Device: "CPU", MaxNewTokens: 100},
		},
		{
			name:   "device and limit",
			args:   []string{"m", "gpu", "256"},
			max:    3,
			device: "CPU",
			want:   positional{ModelDir: "m", Device: "gpu", MaxNewTokens: 256, MaxSet: true},
		},
		{
			name:   "npu default",
			args:   []string{"m"},
			max:    2,
			device: "NPU",
			want:   positional{ModelDir: "m", Device: "NPU", MaxNewTokens: 100},
		},
		{name: "missing model", args: nil, max: 3, device: "CPU", wantErr: true},
		{name: "unknown device", args: []string{"m", "tpu"}, max: 3, device: "CPU", wantErr: true},
		{name: "zero limit", args: []string{"m", "CPU", "0"}, max: 3, device: "CPU", wantErr: true},
		{name: "bad limit", args: []string{"m", "CPU", "lots"}, max: 3, device: "CPU", wantErr: true},
		{name: "too many", args: []string{"m", "CPU", "5"}, max: 2, device: "NPU", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := parsePositional(tc.args, tc.max, tc.device)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parsePositional: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %+v want %+v", got, tc.want)
			}
		})
	}
}

func TestDiscoverModels(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	write := func(rel string, size int) {
		t.Helper()
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, bytes.Repeat([]byte("x"), size), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
	write("b-llama-3.gguf", 10)
	write("a-mistral/model.Q4_K_M.gguf", 2048)
	write("npu-bundle/"+genie.FileName, 2)
	write("notes.txt", 1)
	write("empty/readme.md", 1)

	got, err := discoverModels(dir)
	if err != nil {
		t.Fatalf("discoverModels: %v", err)
	}
	want := []modelEntry{
		{Path: filepath.Join(dir, "a-mistral"), Size: 2048},
		{Path: filepath.Join(dir, "b-llama-3.gguf"), Size: 10},
		{Path: filepath.Join(dir, "npu-bundle"), Genie: true},
	}
	if len(got) != len(want) {
		t.Fatalf("got %+v want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entry %d: got %+v want %+v", i, got[i], want[i])
		}
	}

	var out bytes.Buffer
	printModels(&out, dir, got)
	text := out.String()
	for _, s := range []string{"a-mistral", "2.0 KB", "mistral", "genie", "3 model(s) found"} {
		if !strings.Contains(text, s) {
			t.Fatalf("listing missing %q:\n%s", s, text)
		}
	}
}

func TestDiscoverModelsErrors(t *testing.T) {
	t.Parallel()

	if _, err := discoverModels(""); err == nil {
		t.Fatalf("expected error for empty dir")
	}
	file := filepath.Join(t.TempDir(), "x.gguf")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := discoverModels(file); err == nil {
		t.Fatalf("expected error for a file path")
	}
}

func TestFormatModelSize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   int64
		want string
	}{
		{in: 12, want: "12 B"},
		{in: 2048, want: "2.0 KB"},
		{in: 5 << 20, want: "5.0 MB"},
		{in: (3 << 30) / 2, want: "1.5 GB"},
	}
	for _, tc := range cases {
		if got := formatModelSize(tc.in); got != tc.want {
			t.Fatalf("formatModelSize(%d): got %q want %q", tc.in, got, tc.want)
		}
	}
}

func TestDefaultDeviceParses(t *testing.T) {
	t.Parallel()

	for _, d := range []string{string(engine.DeviceCPU), string(engine.DeviceNPU)} {
		if _, err := engine.ParseDevice(d); err != nil {
			t.Fatalf("ParseDevice(%q): %v", d, err)
		}
	}
}
