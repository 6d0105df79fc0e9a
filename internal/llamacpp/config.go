// Package llamacpp runs a vision-language model on a local llama.cpp llama-server and
// talks to it through its OpenAI-compatible chat endpoint.
package llamacpp

import (
	"net/http"
	"time"
)

// Config controls how the runtime is launched or attached to.
type Config struct {
	// Binary is the llama-server executable.
	Binary string
	// URL attaches to an already running server instead of launching one.
	URL string
	// Host is the loopback address a launched server binds to.
	Host string

	ContextSize    int
	StartupTimeout time.Duration
	// PollInterval is how often /health is checked during startup.
	PollInterval time.Duration
	// StopTimeout is how long Close waits after SIGINT before killing the process.
	StopTimeout time.Duration
	HTTPClient  *http.Client
}

func (c Config) withDefaults() Config {
	if c.Binary == "" {
		c.Binary = "llama-server"
	}
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.ContextSize <= 0 {
		c.ContextSize = 4096
	}
	if c.StartupTimeout <= 0 {
		c.StartupTimeout = 5 * time.Minute
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 250 * time.Millisecond
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 10 * time.Second
	}
	if c.HTTPClient == nil {
		// per-call deadlines come from the request context
		c.HTTPClient = &http.Client{}
	}
	return c
}
