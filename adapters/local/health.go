package local

import (
	"context"
	"fmt"
	"os"

	"github.com/gostratum/core"
)

// HealthCheck implements core.Check by probing the storage root
type HealthCheck struct {
	backend *Backend
}

// NewHealthCheck creates a readiness check for b
func NewHealthCheck(b *Backend) *HealthCheck {
	return &HealthCheck{backend: b}
}

func (h *HealthCheck) Name() string { return "assetx.local" }

func (h *HealthCheck) Kind() core.Kind { return core.Readiness }

func (h *HealthCheck) Check(ctx context.Context) error {
	if h.backend == nil {
		return fmt.Errorf("no backend")
	}
	info, err := os.Stat(h.backend.Root())
	if err != nil {
		return fmt.Errorf("storage root unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage root %q is not a directory", h.backend.Root())
	}
	return nil
}
