package app

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	ocrv1 "github.com/joseph-ayodele/vlm-ocr/gen/proto/ocr/v1"
	"github.com/joseph-ayodele/vlm-ocr/internal/common"
	"github.com/joseph-ayodele/vlm-ocr/internal/model"
)

type stubRuntime struct {
	closed atomic.Bool
}

func (r *stubRuntime) Generate(_ context.Context, req model.GenerateRequest) (model.Generation, error) {
	prompt := req.Messages[0].Parts[1].Text
	return model.Generation{Text: "```json\n{\"prompt\": \"" + prompt + "\", \"n\": 007}\n```", CompletionTokens: 10}, nil
}

func (r *stubRuntime) Close() error {
	r.closed.Store(true)
	return nil
}

type noGPU struct{}

func (noGPU) Run(context.Context, string, ...string) ([]byte, []byte, error) {
	return nil, nil, errors.New("nvidia-smi: not found")
}

func testConfig(t *testing.T) *common.Config {
	t.Helper()
	dir := t.TempDir()
	for _, name := range []string{"model-q4_k_m.gguf", "mmproj-model-f16.gguf"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600))
	}
	t.Setenv("MODEL_PATH", dir)
	t.Setenv("GRPC_HOST", "127.0.0.1")
	t.Setenv("GRPC_PORT", "50051")
	cfg := common.LoadConfig()
	require.NoError(t, cfg.Validate())
	return cfg
}

func dialer(lis *bufconn.Listener) grpc.DialOption {
	return grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) })
}

func TestApp_ServesAfterEngineLoadsAndShutsDown(t *testing.T) {
	cfg := testConfig(t)
	rt := &stubRuntime{}
	lis := bufconn.Listen(1 << 20)

	var listenedAt atomic.Int64
	var launchedAt atomic.Int64
	launch := func(context.Context, model.Handle, *slog.Logger) (model.Runtime, error) {
		launchedAt.Store(time.Now().UnixNano())
		return rt, nil
	}
	listen := func(network, addr string) (net.Listener, error) {
		assert.Equal(t, "127.0.0.1:50051", addr)
		listenedAt.Store(time.Now().UnixNano())
		return lis, nil
	}

	a, err := New(context.Background(), cfg, nil, WithLauncher(launch), WithRunner(noGPU{}), WithListen(listen))
	require.NoError(t, err)
	assert.LessOrEqual(t, launchedAt.Load(), listenedAt.Load())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	conn, err := grpc.NewClient("passthrough:///bufnet", dialer(lis), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	healthClient := grpc_health_v1.NewHealthClient(conn)
	require.Eventually(t, func() bool {
		resp, err := healthClient.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{
			Service: ocrv1.OCRService_ServiceDesc.ServiceName,
		})
		return err == nil && resp.GetStatus() == grpc_health_v1.HealthCheckResponse_SERVING
	}, 2*time.Second, 5*time.Millisecond)

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8))))
	resp, err := ocrv1.NewOCRServiceClient(conn).ExtractOCR(context.Background(), &ocrv1.ExtractOCRRequest{
		Image:  buf.Bytes(),
		Prompt: "total",
	})
	require.NoError(t, err)
	assert.Equal(t, `{"prompt": "total", "n": 7}`, resp.GetOutput())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.True(t, rt.closed.Load())

	// a second Close is a no-op
	a.Close()
}

func TestApp_ModelLoadFailureNeverListens(t *testing.T) {
	cfg := testConfig(t)
	cfg.Model.Path = filepath.Join(t.TempDir(), "missing")

	var listened atomic.Bool
	listen := func(string, string) (net.Listener, error) {
		listened.Store(true)
		return bufconn.Listen(1 << 10), nil
	}
	launch := func(context.Context, model.Handle, *slog.Logger) (model.Runtime, error) {
		return &stubRuntime{}, nil
	}

	a, err := New(context.Background(), cfg, nil, WithLauncher(launch), WithRunner(noGPU{}), WithListen(listen))
	require.Error(t, err)
	assert.Nil(t, a)
	assert.ErrorIs(t, err, common.ErrModelLoad)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.False(t, listened.Load())
}

func TestApp_ListenFailureStopsRuntime(t *testing.T) {
	cfg := testConfig(t)
	rt := &stubRuntime{}
	launch := func(context.Context, model.Handle, *slog.Logger) (model.Runtime, error) { return rt, nil }
	listen := func(string, string) (net.Listener, error) { return nil, errors.New("address already in use") }

	_, err := New(context.Background(), cfg, nil, WithLauncher(launch), WithRunner(noGPU{}), WithListen(listen))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address already in use")
	assert.True(t, rt.closed.Load())
}

func TestApp_BadSchemaPathIsConfigError(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.SchemaPath = filepath.Join(t.TempDir(), "schema.json")

	_, err := New(context.Background(), cfg, nil, WithLauncher(func(context.Context, model.Handle, *slog.Logger) (model.Runtime, error) {
		t.Fatal("engine must not start")
		return nil, nil
	}), WithRunner(noGPU{}))
	assert.ErrorIs(t, err, common.ErrConfig)
}
