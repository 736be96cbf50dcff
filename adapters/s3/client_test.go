package s3

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/gostratum/assetx"
	"github.com/gostratum/core/logx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAWSConfigWithLoader_Sources(t *testing.T) {
	logger := logx.NewNoopLogger()

	tests := []struct {
		name       string
		cfg        *assetx.ObjectStoreConfig
		wantSource string
		wantErr    bool
	}{
		{
			name:       "static creds",
			cfg:        &assetx.ObjectStoreConfig{AccessKey: "A", SecretKey: "B"},
			wantSource: "static",
		},
		{
			name:       "profile selected",
			cfg:        &assetx.ObjectStoreConfig{Profile: "dev"},
			wantSource: "profile",
		},
		{
			name:       "sdk default",
			cfg:        &assetx.ObjectStoreConfig{UseSDKDefaults: true},
			wantSource: "sdk-default",
		},
		{
			name:       "assumed role",
			cfg:        &assetx.ObjectStoreConfig{UseSDKDefaults: true, RoleARN: "arn:aws:iam::123456789012:role/Assets"},
			wantSource: "assumed-role",
		},
		{
			name:    "no credentials without sdk defaults",
			cfg:     &assetx.ObjectStoreConfig{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := func(ctx context.Context, opts ...func(*config.LoadOptions) error) (aws.Config, error) {
				return aws.Config{Region: "us-east-1"}, nil
			}
			awsCfg, gotSource, err := buildAWSConfigWithLoader(context.Background(), tt.cfg, logger, loader)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSource, gotSource)
			if tt.wantSource == "assumed-role" {
				assert.NotNil(t, awsCfg.Credentials)
			}
		})
	}
}

func TestEndpointURL(t *testing.T) {
	assert.Equal(t, "", endpointURL(&assetx.ObjectStoreConfig{}))
	assert.Equal(t, "http://minio:9000", endpointURL(&assetx.ObjectStoreConfig{Endpoint: "http://minio:9000"}))
	assert.Equal(t, "https://minio:9000", endpointURL(&assetx.ObjectStoreConfig{Endpoint: "minio:9000"}))
	assert.Equal(t, "http://minio:9000", endpointURL(&assetx.ObjectStoreConfig{Endpoint: "minio:9000", DisableSSL: true}))
}

func TestCreateBackoffStrategy(t *testing.T) {
	delay := createBackoffStrategy(&assetx.ObjectStoreConfig{
		BackoffInitial: 100 * time.Millisecond,
		BackoffMax:     400 * time.Millisecond,
	})

	// RandomizationFactor is 0.1
	first, err := delay(1, nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, first, 90*time.Millisecond)
	assert.LessOrEqual(t, first, 110*time.Millisecond)

	capped, err := delay(10, nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, capped, 440*time.Millisecond)
}
