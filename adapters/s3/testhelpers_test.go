package s3

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gostratum/assetx"
	"github.com/gostratum/core/logx"
	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
	"github.com/stretchr/testify/require"
)

const testBucket = "assets"

// newFakeS3 starts an in-process S3 server with testBucket created and
// returns a config pointing at it.
func newFakeS3(t *testing.T) *assetx.ObjectStoreConfig {
	t.Helper()

	mem := s3mem.New()
	require.NoError(t, mem.CreateBucket(testBucket))

	ts := httptest.NewServer(gofakes3.New(mem).Server())
	t.Cleanup(ts.Close)

	return &assetx.ObjectStoreConfig{
		Bucket:         testBucket,
		Region:         "us-east-1",
		Endpoint:       ts.URL,
		UsePathStyle:   true,
		AccessKey:      "test",
		SecretKey:      "test",
		MaxRetries:     1,
		BackoffInitial: 10 * time.Millisecond,
		BackoffMax:     50 * time.Millisecond,
	}
}

func newTestBackend(t *testing.T, mutate ...func(*assetx.ObjectStoreConfig)) *Backend {
	t.Helper()

	cfg := newFakeS3(t)
	for _, m := range mutate {
		m(cfg)
	}

	b, err := NewBackend(context.Background(), cfg, logx.NewNoopLogger())
	require.NoError(t, err)
	return b
}
