package common

import (
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joseph-ayodele/vlm-ocr/constants"
)

// DefaultMaxTokens is the generation budget used when MAX_TOKENS is unset.
const DefaultMaxTokens = 64

// Config holds all application configuration
type Config struct {
	Model   ModelConfig
	Server  ServerConfig
	Runtime RuntimeConfig
	Imaging ImagingConfig
	Output  OutputConfig
	Log     LogConfig

	// parse failures collected while loading, reported by Validate
	invalid []ValidationError
}

// ModelConfig holds model-related configuration
type ModelConfig struct {
	Path              string
	MaxTokens         int
	Device            string // auto | cuda | cpu
	DeviceConcurrency int
}

// ServerConfig holds gRPC server configuration
type ServerConfig struct {
	Host           string
	Port           int
	Workers        int
	QueueSize      int
	MaxRecvMB      int
	RequestTimeout time.Duration
}

// RuntimeConfig holds llama.cpp runtime configuration
type RuntimeConfig struct {
	Binary         string
	URL            string // attach to a running runtime instead of launching one
	ContextSize    int
	StartupTimeout time.Duration
}

// ImagingConfig holds image decoding configuration
type ImagingConfig struct {
	HeicConverter string
	MaxPixels     int // width*height cap checked before decoding
}

// OutputConfig holds output post-processing configuration
type OutputConfig struct {
	SchemaPath string
	Strict     bool
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	c := &Config{}
	workers := c.getEnvAsInt("GRPC_WORKERS", 2)
	c.Model = ModelConfig{
		Path:              getEnv("MODEL_PATH", ""),
		MaxTokens:         c.getEnvAsInt("MAX_TOKENS", DefaultMaxTokens),
		Device:            strings.ToLower(getEnv("DEVICE", "auto")),
		DeviceConcurrency: c.getEnvAsInt("DEVICE_CONCURRENCY", workers),
	}
	c.Server = ServerConfig{
		Host:           getEnv("GRPC_HOST", ""),
		Port:           c.getEnvAsInt("GRPC_PORT", 0),
		Workers:        workers,
		QueueSize:      c.getEnvAsInt("GRPC_QUEUE_SIZE", 16),
		MaxRecvMB:      c.getEnvAsInt("GRPC_MAX_RECV_MB", constants.MaxImageMBDefault),
		RequestTimeout: c.getEnvAsDuration("REQUEST_TIMEOUT", 3*time.Minute),
	}
	c.Runtime = RuntimeConfig{
		Binary:         getEnv("LLAMA_SERVER_BIN", "llama-server"),
		URL:            getEnv("LLAMA_SERVER_URL", ""),
		ContextSize:    c.getEnvAsInt("LLAMA_CONTEXT_SIZE", 4096),
		StartupTimeout: c.getEnvAsDuration("RUNTIME_STARTUP_TIMEOUT", 5*time.Minute),
	}
	c.Imaging = ImagingConfig{
		HeicConverter: getEnv("HEIC_CONVERTER", "magick"),
		MaxPixels:     c.getEnvAsInt("MAX_IMAGE_PIXELS", 89_478_485),
	}
	c.Output = OutputConfig{
		SchemaPath: getEnv("OUTPUT_SCHEMA_PATH", ""),
		Strict:     c.getEnvAsBool("OUTPUT_STRICT", false),
	}
	c.Log = LogConfig{
		Level:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		Format: strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}
	return c
}

// Address is the host:port the gRPC listener binds to.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func (c *Config) getEnvAsInt(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(value)
	if err != nil {
		c.invalid = append(c.invalid, ValidationError{Field: key, Value: value, Message: "must be an integer"})
		return 0
	}
	return intVal
}

func (c *Config) getEnvAsBool(key string, defaultValue bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		c.invalid = append(c.invalid, ValidationError{Field: key, Value: value, Message: "must be a boolean"})
		return defaultValue
	}
	return b
}

func (c *Config) getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil || duration <= 0 {
		c.invalid = append(c.invalid, ValidationError{Field: key, Value: value, Message: "must be a positive duration"})
		return defaultValue
	}
	return duration
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	v := NewValidator()
	v.errors = append(v.errors, c.invalid...)

	v.Field("MODEL_PATH", c.Model.Path, Required).
		Field("GRPC_HOST", c.Server.Host, Required).
		Field("DEVICE", c.Model.Device, OneOf("auto", "cuda", "cpu")).
		Field("HEIC_CONVERTER", c.Imaging.HeicConverter, OneOf("magick", "heif-convert", "sips")).
		Field("LOG_LEVEL", c.Log.Level, OneOf("debug", "info", "warn", "error")).
		Field("LOG_FORMAT", c.Log.Format, OneOf("text", "json"))

	// fields that already failed to parse are reported once
	if !c.failedToParse("GRPC_PORT") {
		v.Field("GRPC_PORT", c.Server.Port, Port)
	}
	for _, f := range []struct {
		key string
		val int
	}{
		{"MAX_TOKENS", c.Model.MaxTokens},
		{"DEVICE_CONCURRENCY", c.Model.DeviceConcurrency},
		{"GRPC_WORKERS", c.Server.Workers},
		{"GRPC_QUEUE_SIZE", c.Server.QueueSize},
		{"GRPC_MAX_RECV_MB", c.Server.MaxRecvMB},
		{"LLAMA_CONTEXT_SIZE", c.Runtime.ContextSize},
		{"MAX_IMAGE_PIXELS", c.Imaging.MaxPixels},
	} {
		if !c.failedToParse(f.key) {
			v.Field(f.key, f.val, Positive)
		}
	}

	if v.HasErrors() {
		return NewConfigError(v.ErrorMessage())
	}
	return nil
}

func (c *Config) failedToParse(key string) bool {
	for _, e := range c.invalid {
		if e.Field == key {
			return true
		}
	}
	return false
}
