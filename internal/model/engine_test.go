package model

import (
	"context"
	"errors"
	"image"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/vlm-ocr/internal/common"
	"github.com/joseph-ayodele/vlm-ocr/internal/output"
)

func testImage() image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	img.SetNRGBA(1, 1, color.NRGBA{R: 200, G: 10, B: 10, A: 255})
	return img
}

func fenced(body string) func(GenerateRequest) (Generation, error) {
	return func(GenerateRequest) (Generation, error) {
		return Generation{Text: "```json\n" + body + "\n```", PromptTokens: 300, CompletionTokens: 12, FinishReason: "stop"}, nil
	}
}

func newTestEngine(t *testing.T, rt *fakeRuntime, cfg Config, opts ...Option) *Engine {
	t.Helper()
	if cfg.Path == "" {
		cfg.Path = writeModelDir(t, map[string]string{"generation_config.json": `{"eos_token_id": 151645}`})
	}
	if cfg.Device == "" {
		cfg.Device = DeviceCPU
	}
	e, err := New(context.Background(), cfg, launcherFor(rt), nil, append([]Option{WithRunner(noGPU)}, opts...)...)
	require.NoError(t, err)
	return e
}

func TestNew_LoadFailuresAreModelLoadErrors(t *testing.T) {
	rt := &fakeRuntime{reply: fenced("{}")}
	launchErr := errors.New("llama-server exited: out of memory")

	cases := []struct {
		name   string
		cfg    Config
		launch Launcher
		cause  error
	}{
		{"missing path", Config{Path: filepath.Join(t.TempDir(), "nope")}, launcherFor(rt), os.ErrNotExist},
		{"empty path", Config{}, launcherFor(rt), nil},
		{"no weights", Config{Path: t.TempDir()}, launcherFor(rt), errNoWeights},
		{"negative budget", Config{Path: writeModelDir(t, nil), MaxTokens: -1}, launcherFor(rt), nil},
		{"cuda without gpu", Config{Path: writeModelDir(t, nil), Device: DeviceCUDA}, launcherFor(rt), errNoAccelerator},
		{"runtime fails", Config{Path: writeModelDir(t, nil)}, func(context.Context, Handle, *slog.Logger) (Runtime, error) {
			return nil, launchErr
		}, launchErr},
		{"no launcher", Config{Path: writeModelDir(t, nil)}, nil, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e, err := New(context.Background(), tc.cfg, tc.launch, nil, WithRunner(noGPU))
			require.Error(t, err)
			assert.Nil(t, e)
			assert.ErrorIs(t, err, common.ErrModelLoad)
			if tc.cause != nil {
				assert.ErrorIs(t, err, tc.cause)
			}
		})
	}
}

func TestNew_Handle(t *testing.T) {
	var launched Handle
	dir := writeModelDir(t, map[string]string{"config.json": `{"eos_token_id": 2}`})
	launch := func(_ context.Context, h Handle, _ *slog.Logger) (Runtime, error) {
		launched = h
		return &fakeRuntime{reply: fenced("{}")}, nil
	}

	e, err := New(context.Background(), Config{Path: dir, Device: DeviceAuto, Concurrency: 3}, launch, nil,
		WithRunner(&fakeRunner{stdout: "GPU 0: NVIDIA L4\n"}))
	require.NoError(t, err)

	h := e.Handle()
	assert.Equal(t, launched, h)
	assert.Equal(t, DeviceCUDA, h.Device)
	assert.Equal(t, common.DefaultMaxTokens, h.MaxTokens)
	assert.Equal(t, 3, h.Concurrency)
	require.NotNil(t, h.PadTokenID)
	assert.Equal(t, 2, *h.PadTokenID)
}

func TestExtract_BuildsRequestAndCleans(t *testing.T) {
	rt := &fakeRuntime{reply: fenced(`{"id": "007", "count": 0042}`)}
	e := newTestEngine(t, rt, Config{MaxTokens: 128})
	img := testImage()

	out, err := e.Extract(context.Background(), img, "Extract id and count as JSON")
	require.NoError(t, err)
	assert.Equal(t, `{"id": "007", "count": 42}`, out)

	require.Len(t, rt.requests, 1)
	req := rt.requests[0]
	assert.Equal(t, 128, req.MaxTokens)
	assert.Zero(t, req.Temperature)
	assert.Equal(t, DefaultSeed, req.Seed)
	require.NotNil(t, e.Handle().PadTokenID)
	assert.Equal(t, 151645, *e.Handle().PadTokenID)

	require.Len(t, req.Messages, 1)
	msg := req.Messages[0]
	assert.Equal(t, RoleUser, msg.Role)
	require.Len(t, msg.Parts, 2)
	assert.True(t, msg.Parts[0].IsImage())
	assert.Same(t, img, msg.Parts[0].Image)
	assert.False(t, msg.Parts[1].IsImage())
	assert.Equal(t, "Extract id and count as JSON", msg.Parts[1].Text)
}

func TestExtract_RejectsOverBudget(t *testing.T) {
	rt := &fakeRuntime{reply: func(GenerateRequest) (Generation, error) {
		return Generation{Text: "```json\n{}\n```", CompletionTokens: 65}, nil
	}}
	e := newTestEngine(t, rt, Config{})

	_, err := e.Extract(context.Background(), testImage(), "fields")
	assert.ErrorIs(t, err, common.ErrRuntime)
}

func TestExtract_InvalidInput(t *testing.T) {
	rt := &fakeRuntime{reply: fenced("{}")}
	e := newTestEngine(t, rt, Config{})

	_, err := e.Extract(context.Background(), nil, "fields")
	assert.ErrorIs(t, err, common.ErrInvalidInput)
	_, err = e.Extract(context.Background(), testImage(), "  \n")
	assert.ErrorIs(t, err, common.ErrInvalidInput)
	assert.Empty(t, rt.requests)
}

func TestExtract_NonFencedOutput(t *testing.T) {
	plain := func(GenerateRequest) (Generation, error) {
		return Generation{Text: "  Total: 0042  ", CompletionTokens: 5}, nil
	}

	lenient := newTestEngine(t, &fakeRuntime{reply: plain}, Config{})
	out, err := lenient.Extract(context.Background(), testImage(), "total?")
	require.NoError(t, err)
	assert.Equal(t, "Total: 0042", out)

	strict := newTestEngine(t, &fakeRuntime{reply: plain}, Config{Strict: true})
	_, err = strict.Extract(context.Background(), testImage(), "total?")
	assert.ErrorIs(t, err, common.ErrUnexpectedFormat)
}

func TestExtract_SchemaValidation(t *testing.T) {
	schema, err := output.CompileSchema([]byte(`{"type": "object", "required": ["total"]}`))
	require.NoError(t, err)

	ok := newTestEngine(t, &fakeRuntime{reply: fenced(`{"total": 007}`)}, Config{}, WithSchema(schema))
	out, err := ok.Extract(context.Background(), testImage(), "total?")
	require.NoError(t, err)
	assert.Equal(t, `{"total": 7}`, out)

	bad := newTestEngine(t, &fakeRuntime{reply: fenced(`{"vendor": "ACME"}`)}, Config{}, WithSchema(schema))
	_, err = bad.Extract(context.Background(), testImage(), "total?")
	assert.ErrorIs(t, err, common.ErrOutputSchema)
}

func TestExtract_RuntimeErrorPropagates(t *testing.T) {
	boom := common.NewRuntimeError("chat completion", errors.New("connection refused"))
	rt := &fakeRuntime{reply: func(GenerateRequest) (Generation, error) { return Generation{}, boom }}
	e := newTestEngine(t, rt, Config{})

	_, err := e.Extract(context.Background(), testImage(), "fields")
	assert.ErrorIs(t, err, common.ErrRuntime)
}

func TestExtract_Deterministic(t *testing.T) {
	// the fake answers purely from the request, like a greedy decoder would
	rt := &fakeRuntime{reply: func(req GenerateRequest) (Generation, error) {
		b := req.Messages[0].Parts[0].Image.Bounds()
		text := req.Messages[0].Parts[1].Text
		return Generation{Text: "```json\n{\"w\": 0" + string(rune('0'+b.Dx())) + ", \"p\": \"" + text + "\"}\n```", CompletionTokens: 9}, nil
	}}
	e := newTestEngine(t, rt, Config{})

	first, err := e.Extract(context.Background(), testImage(), "dims")
	require.NoError(t, err)
	second, err := e.Extract(context.Background(), testImage(), "dims")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, `{"w": 4, "p": "dims"}`, first)
	assert.Equal(t, rt.requests[0], rt.requests[1])
}

func TestExtract_BoundedByDeviceSlots(t *testing.T) {
	var inFlight, peak atomic.Int32
	rt := &fakeRuntime{reply: func(GenerateRequest) (Generation, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return Generation{Text: "```json\n{}\n```", CompletionTokens: 1}, nil
	}}
	e := newTestEngine(t, rt, Config{Concurrency: 2})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Extract(context.Background(), testImage(), "fields")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestExtract_CanceledWhileWaitingForSlot(t *testing.T) {
	release := make(chan struct{})
	rt := &fakeRuntime{reply: func(GenerateRequest) (Generation, error) {
		<-release
		return Generation{Text: "```json\n{}\n```", CompletionTokens: 1}, nil
	}}
	e := newTestEngine(t, rt, Config{Concurrency: 1})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = e.Extract(context.Background(), testImage(), "first")
	}()
	require.Eventually(t, func() bool {
		rt.mu.Lock()
		defer rt.mu.Unlock()
		return len(rt.requests) == 1
	}, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := e.Extract(ctx, testImage(), "second")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	<-done
}

func TestEngine_Close(t *testing.T) {
	rt := &fakeRuntime{reply: fenced("{}")}
	e := newTestEngine(t, rt, Config{})
	require.NoError(t, e.Close())
	assert.Equal(t, 1, rt.closed)
}
