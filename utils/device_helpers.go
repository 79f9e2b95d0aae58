package utils

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/notargets/gocca"
)

// ErrNoDevice is returned when no OCCA backend could be opened
var ErrNoDevice = errors.New("no OCCA device available")

// DefaultBackends are tried in order when no device properties are given,
// preferring parallel backends
var DefaultBackends = []string{
	`{"mode": "OpenMP"}`,
	`{"mode": "CUDA", "device_id": 0}`,
	`{"mode": "Serial"}`,
}

// CreateDevice opens the device described by props. An empty props
// falls back through DefaultBackends.
func CreateDevice(props string, logger *slog.Logger) (*gocca.OCCADevice, error) {
	if logger == nil {
		logger = slog.Default()
	}
	backends := DefaultBackends
	if props != "" {
		backends = []string{props}
	}

	var errs []error
	for _, p := range backends {
		device, err := gocca.NewDevice(p)
		if err != nil {
			logger.Debug("device unavailable", "props", p, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
			continue
		}
		logger.Info("created device", "mode", device.Mode())
		return device, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrNoDevice, errors.Join(errs...))
}

// CreateTestDevice opens the first default backend or panics. Tests use it
// once they have decided OCCA is present.
func CreateTestDevice() *gocca.OCCADevice {
	device, err := CreateDevice("", nil)
	if err != nil {
		panic(err)
	}
	return device
}
