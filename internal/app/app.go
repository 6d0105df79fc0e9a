// Package app wires the engine, worker pool and gRPC server into one process lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	ocrv1 "github.com/joseph-ayodele/vlm-ocr/gen/proto/ocr/v1"
	"github.com/joseph-ayodele/vlm-ocr/internal/async"
	"github.com/joseph-ayodele/vlm-ocr/internal/common"
	"github.com/joseph-ayodele/vlm-ocr/internal/imaging"
	"github.com/joseph-ayodele/vlm-ocr/internal/llamacpp"
	"github.com/joseph-ayodele/vlm-ocr/internal/model"
	"github.com/joseph-ayodele/vlm-ocr/internal/output"
	"github.com/joseph-ayodele/vlm-ocr/internal/runner"
	"github.com/joseph-ayodele/vlm-ocr/internal/server"
)

const shutdownTimeout = 30 * time.Second

// ListenFunc opens the gRPC listener.
type ListenFunc func(network, address string) (net.Listener, error)

type Option func(*options)

type options struct {
	launcher model.Launcher
	runner   runner.Runner
	listen   ListenFunc
}

// WithLauncher replaces the llama-server launcher.
func WithLauncher(l model.Launcher) Option {
	return func(o *options) { o.launcher = l }
}

// WithRunner replaces the external command runner.
func WithRunner(r runner.Runner) Option {
	return func(o *options) { o.runner = r }
}

// WithListen replaces net.Listen.
func WithListen(fn ListenFunc) Option {
	return func(o *options) { o.listen = fn }
}

// App owns the loaded model and everything serving it.
type App struct {
	cfg    *common.Config
	logger *slog.Logger

	engine *model.Engine
	pool   *async.Pool
	grpc   *grpc.Server
	health *health.Server
	lis    net.Listener

	closeOnce sync.Once
}

// New loads the model and only then binds the listener, so no call can reach a
// partially initialised engine.
func New(ctx context.Context, cfg *common.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	o := options{listen: net.Listen}
	for _, opt := range opts {
		opt(&o)
	}
	if o.runner == nil {
		o.runner = runner.New(logger)
	}
	if o.launcher == nil {
		o.launcher = llamacpp.Launcher(llamacpp.Config{
			Binary:         cfg.Runtime.Binary,
			URL:            cfg.Runtime.URL,
			ContextSize:    cfg.Runtime.ContextSize,
			StartupTimeout: cfg.Runtime.StartupTimeout,
		})
	}

	engineOpts := []model.Option{model.WithRunner(o.runner)}
	if cfg.Output.SchemaPath != "" {
		schema, err := output.LoadSchema(cfg.Output.SchemaPath, logger)
		if err != nil {
			return nil, common.NewConfigError(fmt.Sprintf("OUTPUT_SCHEMA_PATH: %v", err))
		}
		engineOpts = append(engineOpts, model.WithSchema(schema))
	}

	engine, err := model.New(ctx, model.Config{
		Path:        cfg.Model.Path,
		MaxTokens:   cfg.Model.MaxTokens,
		Device:      model.Device(cfg.Model.Device),
		Concurrency: cfg.Model.DeviceConcurrency,
		Strict:      cfg.Output.Strict,
	}, o.launcher, logger, engineOpts...)
	if err != nil {
		return nil, err
	}

	lis, err := o.listen("tcp", cfg.Address())
	if err != nil {
		logger.Error("failed to listen on address", "addr", cfg.Address(), "error", err)
		_ = engine.Close()
		return nil, fmt.Errorf("listen %s: %w", cfg.Address(), err)
	}

	pool := async.NewPool(logger,
		async.WithWorkers(cfg.Server.Workers),
		async.WithQueueSize(cfg.Server.QueueSize),
		async.WithProcessTimeout(cfg.Server.RequestTimeout),
	)
	decoder := imaging.NewDecoder(imaging.Config{
		HeicConverter: cfg.Imaging.HeicConverter,
		MaxPixels:     cfg.Imaging.MaxPixels,
	}, o.runner, logger)

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(server.UnaryInterceptors(logger)...),
		grpc.MaxRecvMsgSize(cfg.Server.MaxRecvMB<<20),
	)
	ocrv1.RegisterOCRServiceServer(grpcServer, server.NewOCRService(engine, decoder, pool, logger))

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus(ocrv1.OCRService_ServiceDesc.ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	return &App{
		cfg:    cfg,
		logger: logger,
		engine: engine,
		pool:   pool,
		grpc:   grpcServer,
		health: healthServer,
		lis:    lis,
	}, nil
}

// Addr is the address the server listens on.
func (a *App) Addr() net.Addr { return a.lis.Addr() }

// Run serves until ctx is cancelled or serving fails, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
		a.health.SetServingStatus(ocrv1.OCRService_ServiceDesc.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
		a.logger.Info("vlm-ocr listening", "addr", a.lis.Addr().String(), "workers", a.pool.Workers())
		if err := a.grpc.Serve(a.lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		a.Close()
		return nil
	})
	return g.Wait()
}

// Close stops serving, drains the worker pool and stops the runtime. It is safe
// to call more than once and without Run.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		a.logger.Info("shutting down")
		a.health.Shutdown()

		stopped := make(chan struct{})
		go func() {
			a.grpc.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(shutdownTimeout):
			a.logger.Warn("graceful stop timed out, forcing", "timeout", shutdownTimeout)
			a.grpc.Stop()
			<-stopped
		}
		_ = a.lis.Close()

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.pool.Shutdown(ctx)

		if err := a.engine.Close(); err != nil {
			a.logger.Error("failed to stop runtime", "error", err)
		}
		a.logger.Info("shutdown complete")
	})
}
