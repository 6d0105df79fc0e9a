package model

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	stdout string
	err    error
	calls  int
}

func (f *fakeRunner) Run(_ context.Context, _ string, _ ...string) ([]byte, []byte, error) {
	f.calls++
	return []byte(f.stdout), nil, f.err
}

var noGPU = &fakeRunner{err: errors.New("executable file not found in $PATH")}

type fakeRuntime struct {
	mu       sync.Mutex
	reply    func(req GenerateRequest) (Generation, error)
	requests []GenerateRequest
	closed   int
}

func (f *fakeRuntime) Generate(_ context.Context, req GenerateRequest) (Generation, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.reply(req)
}

func (f *fakeRuntime) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func launcherFor(rt Runtime) Launcher {
	return func(context.Context, Handle, *slog.Logger) (Runtime, error) { return rt, nil }
}

// writeModelDir lays out a minimal model directory; extra maps file name to contents.
func writeModelDir(t *testing.T, extra map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"qwen2-vl-2b-instruct-q4_k_m.gguf":      "weights",
		"mmproj-qwen2-vl-2b-instruct-f16.gguf": "projector",
	}
	for name, body := range extra {
		files[name] = body
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}
	return dir
}
