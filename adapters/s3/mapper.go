package s3

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/gostratum/assetx"
)

// MapS3Error converts S3 SDK errors to domain errors
func MapS3Error(err error, op, key string) error {
	if err == nil {
		return nil
	}

	wrap := func(cause error) error {
		return &assetx.Error{Op: op, ID: key, Err: cause}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return wrap(fmt.Errorf("%w: %w", assetx.ErrTimeout, err))
	}
	if errors.Is(err, context.Canceled) {
		return wrap(err)
	}

	var (
		noSuchKey    *types.NoSuchKey
		notFound     *types.NotFound
		noSuchBucket *types.NoSuchBucket
	)
	switch {
	case errors.As(err, &noSuchKey), errors.As(err, &notFound):
		return wrap(fmt.Errorf("%w: %w", assetx.ErrObjectNotFound, err))
	case errors.As(err, &noSuchBucket):
		return wrap(fmt.Errorf("bucket does not exist: %w", err))
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return wrap(fmt.Errorf("%w: %w", assetx.ErrObjectNotFound, err))
		case "RequestTimeout", "SlowDown", "ServiceUnavailable":
			return wrap(fmt.Errorf("%w: %w", assetx.ErrTimeout, err))
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "InvalidBucketName":
			return wrap(fmt.Errorf("%s: %w: %w", apiErr.ErrorMessage(), assetx.ErrInvalidConfig, err))
		}
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.HTTPStatusCode() {
		case http.StatusNotFound:
			return wrap(fmt.Errorf("%w: %w", assetx.ErrObjectNotFound, err))
		case http.StatusForbidden:
			return wrap(fmt.Errorf("access denied: %w: %w", assetx.ErrInvalidConfig, err))
		case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return wrap(fmt.Errorf("%w: %w", assetx.ErrTimeout, err))
		}
	}

	return wrap(err)
}
