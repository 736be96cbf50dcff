package s3

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gostratum/core"
)

// HealthCheck implements core.Check for bucket reachability
type HealthCheck struct {
	client *ClientManager
}

// NewHealthCheck creates a readiness check for the backend's bucket
func NewHealthCheck(b *Backend) *HealthCheck {
	return &HealthCheck{client: b.Client()}
}

func (s *HealthCheck) Name() string { return "assetx.s3" }

func (s *HealthCheck) Kind() core.Kind { return core.Readiness }

func (s *HealthCheck) Check(ctx context.Context) error {
	if s.client == nil {
		return fmt.Errorf("no client manager")
	}

	// Use a short timeout for health checks
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	_, err := s.client.GetS3Client().HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.client.GetConfig().Bucket),
	})
	if err != nil {
		return fmt.Errorf("s3 head bucket failed: %w", err)
	}
	return nil
}
