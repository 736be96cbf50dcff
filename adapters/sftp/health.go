package sftp

import (
	"context"
	"fmt"
	"time"

	"github.com/gostratum/core"
)

// HealthCheck implements core.Check for remote file server reachability
type HealthCheck struct {
	backend *Backend
}

// NewHealthCheck creates a readiness check for b
func NewHealthCheck(b *Backend) *HealthCheck {
	return &HealthCheck{backend: b}
}

func (h *HealthCheck) Name() string { return "assetx.sftp" }

func (h *HealthCheck) Kind() core.Kind { return core.Readiness }

func (h *HealthCheck) Check(ctx context.Context) error {
	if h.backend == nil {
		return fmt.Errorf("no backend")
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := h.backend.Ping(ctx); err != nil {
		return fmt.Errorf("sftp stat root failed: %w", err)
	}
	return nil
}
