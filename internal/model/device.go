package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joseph-ayodele/vlm-ocr/internal/runner"
)

// Device is where generation runs.
type Device string

const (
	DeviceAuto Device = "auto"
	DeviceCUDA Device = "cuda"
	DeviceCPU  Device = "cpu"
)

var errNoAccelerator = errors.New("no CUDA accelerator detected")

// ResolveDevice picks the fastest available device. auto probes for a GPU and
// falls back to the CPU; cuda must be present.
func ResolveDevice(ctx context.Context, requested Device, r runner.Runner, logger *slog.Logger) (Device, error) {
	switch requested {
	case DeviceCPU:
		return DeviceCPU, nil
	case DeviceCUDA, DeviceAuto, "":
	default:
		return "", fmt.Errorf("unknown device %q", requested)
	}

	found, detail := probeCUDA(ctx, r)
	if found {
		logger.Info("accelerator detected", "device", DeviceCUDA, "gpu", detail)
		return DeviceCUDA, nil
	}
	if requested == DeviceCUDA {
		return "", fmt.Errorf("%w: %s", errNoAccelerator, detail)
	}
	logger.Info("no accelerator detected, using cpu", "detail", detail)
	return DeviceCPU, nil
}

func probeCUDA(ctx context.Context, r runner.Runner) (bool, string) {
	stdout, stderr, err := r.Run(ctx, "nvidia-smi", "-L")
	if err != nil {
		return false, runner.Truncate(strings.TrimSpace(string(stderr)+" "+err.Error()), 200)
	}
	for _, line := range strings.Split(string(stdout), "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "GPU ") {
			return true, strings.TrimSpace(line)
		}
	}
	return false, "nvidia-smi listed no GPUs"
}
