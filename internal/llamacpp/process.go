package llamacpp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joseph-ayodele/vlm-ocr/internal/model"
)

// gpuLayers offloads every layer; llama.cpp clamps it to the model's layer count.
const gpuLayers = 999

// Args builds the llama-server command line for h. Each parallel slot gets the
// full configured context window.
func Args(h model.Handle, cfg Config, port int) []string {
	slots := h.Concurrency
	if slots < 1 {
		slots = 1
	}
	args := []string{
		"--model", h.Artifacts.Weights,
		"--mmproj", h.Artifacts.Projector,
		"--host", cfg.Host,
		"--port", strconv.Itoa(port),
		"--ctx-size", strconv.Itoa(cfg.ContextSize * slots),
		"--parallel", strconv.Itoa(slots),
		"--offline",
	}
	if h.Device == model.DeviceCUDA {
		args = append(args, "--n-gpu-layers", strconv.Itoa(gpuLayers))
	} else {
		args = append(args, "--n-gpu-layers", "0", "--no-mmproj-offload")
	}
	if h.PadTokenID != nil {
		args = append(args, "--override-kv", fmt.Sprintf("tokenizer.ggml.padding_token_id=int:%d", *h.PadTokenID))
	}
	return args
}

// Launcher returns a model.Launcher that starts llama-server for the handle, or
// attaches to cfg.URL when set. It returns once /health reports ready.
func Launcher(cfg Config) model.Launcher {
	cfg = cfg.withDefaults()
	return func(ctx context.Context, h model.Handle, logger *slog.Logger) (model.Runtime, error) {
		if logger == nil {
			logger = slog.Default()
		}
		if cfg.URL != "" {
			c := NewClient(cfg.URL, cfg.HTTPClient, logger)
			logger.Info("attaching to llama-server", "url", c.BaseURL())
			if err := waitReady(ctx, c, cfg, nil); err != nil {
				return nil, err
			}
			return c, nil
		}

		port, err := freePort(cfg.Host)
		if err != nil {
			return nil, fmt.Errorf("pick runtime port: %w", err)
		}
		args := Args(h, cfg, port)
		p, err := startProcess(cfg.Binary, args, cfg.StopTimeout, logger)
		if err != nil {
			return nil, err
		}
		c := NewClient("http://"+net.JoinHostPort(cfg.Host, strconv.Itoa(port)), cfg.HTTPClient, logger)
		c.proc = p
		logger.Info("llama-server started", "pid", p.cmd.Process.Pid, "url", c.BaseURL(), "args", strings.Join(args, " "))

		if err := waitReady(ctx, c, cfg, p); err != nil {
			_ = p.stop()
			return nil, err
		}
		return c, nil
	}
}

func waitReady(ctx context.Context, c *Client, cfg Config, p *process) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.StartupTimeout)
	defer cancel()

	var exited <-chan struct{}
	if p != nil {
		exited = p.exited
	}
	start := time.Now()
	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()
	for {
		ok, err := healthy(ctx, c.httpClient, c.baseURL)
		if ok {
			c.logger.Info("llama-server ready", "url", c.baseURL, "elapsed_ms", time.Since(start).Milliseconds())
			return nil
		}
		select {
		case <-exited:
			return fmt.Errorf("llama-server exited during startup: %w: %s", p.waitErr, p.tail.String())
		case <-ctx.Done():
			if err == nil {
				err = errors.New("health check not ok")
			}
			return fmt.Errorf("llama-server not ready after %s: %w", time.Since(start).Round(time.Millisecond), err)
		case <-ticker.C:
		}
	}
}

func freePort(host string) (int, error) {
	l, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, err
	}
	defer func() { _ = l.Close() }()
	return l.Addr().(*net.TCPAddr).Port, nil
}

type process struct {
	cmd         *exec.Cmd
	tail        *tailWriter
	exited      chan struct{}
	waitErr     error
	stopTimeout time.Duration
	logger      *slog.Logger

	stopOnce sync.Once
}

// startProcess runs binary until stop is called. Its lifetime is not bound to a
// context: the engine owns it until shutdown.
func startProcess(binary string, args []string, stopTimeout time.Duration, logger *slog.Logger) (*process, error) {
	tail := &tailWriter{max: 4 << 10, logger: logger}
	cmd := exec.Command(binary, args...)
	cmd.Stdout = tail
	cmd.Stderr = tail
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", binary, err)
	}
	p := &process{
		cmd:         cmd,
		tail:        tail,
		exited:      make(chan struct{}),
		stopTimeout: stopTimeout,
		logger:      logger,
	}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.exited)
	}()
	return p, nil
}

// stop sends SIGINT, then kills the process if it is still running after stopTimeout.
func (p *process) stop() error {
	p.stopOnce.Do(func() {
		select {
		case <-p.exited:
			return
		default:
		}
		if err := p.cmd.Process.Signal(os.Interrupt); err != nil {
			_ = p.cmd.Process.Kill()
		}
		select {
		case <-p.exited:
			p.logger.Info("llama-server stopped")
		case <-time.After(p.stopTimeout):
			p.logger.Warn("llama-server did not stop in time, killing", "timeout", p.stopTimeout)
			_ = p.cmd.Process.Kill()
			<-p.exited
		}
	})
	return nil
}

// tailWriter keeps the last max bytes of process output and logs it at debug level.
type tailWriter struct {
	mu     sync.Mutex
	buf    []byte
	max    int
	logger *slog.Logger
}

func (w *tailWriter) Write(b []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, b...)
	if len(w.buf) > w.max {
		w.buf = w.buf[len(w.buf)-w.max:]
	}
	if line := strings.TrimSpace(string(b)); line != "" {
		w.logger.Debug("llama-server", "output", line)
	}
	return len(b), nil
}

func (w *tailWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return strings.TrimSpace(string(w.buf))
}
