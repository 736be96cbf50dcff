package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gostratum/assetx"
	"github.com/gostratum/core/logx"
)

// Backend implements assetx.Backend on an S3-compatible bucket. Every
// path is mapped to the key "<key_prefix>/<dir>/<name>".
type Backend struct {
	client *ClientManager
	prefix string
	logger logx.Logger
}

var _ assetx.Backend = (*Backend)(nil)

// NewBackend creates a new S3 backend
func NewBackend(ctx context.Context, cfg *assetx.ObjectStoreConfig, logger logx.Logger) (*Backend, error) {
	if logger == nil {
		logger = logx.NewNoopLogger()
	}

	clientManager, err := NewClientManager(ctx, ClientConfig{
		Config: cfg,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client manager: %w", err)
	}

	return NewBackendWithClient(clientManager, logger), nil
}

// NewBackendWithClient wraps an existing client manager
func NewBackendWithClient(cm *ClientManager, logger logx.Logger) *Backend {
	if logger == nil {
		logger = logx.NewNoopLogger()
	}
	return &Backend{
		client: cm,
		prefix: strings.Trim(cm.GetConfig().KeyPrefix, "/"),
		logger: logger,
	}
}

// Kind implements assetx.Backend
func (b *Backend) Kind() assetx.BackendKind { return assetx.BackendObjectStore }

// Client returns the underlying client manager
func (b *Backend) Client() *ClientManager { return b.client }

// Close releases the client
func (b *Backend) Close() error { return b.client.Close() }

// Upload stores r under dir/name. Content is buffered so the SDK can sign
// a seekable body and the declared size can be verified before the put.
func (b *Backend) Upload(ctx context.Context, dir, name string, r io.Reader, size int64) (string, error) {
	storagePath := assetx.JoinPath(dir, name)
	key := b.objectKey(storagePath)

	data, err := io.ReadAll(r)
	if err != nil {
		return "", &assetx.Error{Op: "put", ID: storagePath, Err: fmt.Errorf("failed to read data: %w", err)}
	}
	if size >= 0 && int64(len(data)) != size {
		return "", &assetx.Error{Op: "put", ID: storagePath, Err: fmt.Errorf("declared size %d but read %d bytes", size, len(data))}
	}

	b.logger.Debug("Putting object", assetx.ArgsToFields("key", key, "size", len(data))...)

	_, err = b.client.GetS3Client().PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket()),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", MapS3Error(err, "put", storagePath)
	}

	return storagePath, nil
}

// Download streams dir/name into w
func (b *Backend) Download(ctx context.Context, dir, name string, w io.Writer) (int64, error) {
	storagePath := assetx.JoinPath(dir, name)
	key := b.objectKey(storagePath)

	output, err := b.client.GetS3Client().GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket()),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, MapS3Error(err, "get", storagePath)
	}
	defer output.Body.Close()

	n, err := io.Copy(w, output.Body)
	if err != nil {
		return n, &assetx.Error{Op: "get", ID: storagePath, Err: err}
	}

	b.logger.Debug("Object retrieved", assetx.ArgsToFields("key", key, "bytes", n)...)
	return n, nil
}

// Delete removes dir/name. S3 deletes are idempotent.
func (b *Backend) Delete(ctx context.Context, dir, name string) error {
	storagePath := assetx.JoinPath(dir, name)

	_, err := b.client.GetS3Client().DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket()),
		Key:    aws.String(b.objectKey(storagePath)),
	})
	if err != nil {
		mapped := MapS3Error(err, "delete", storagePath)
		if errors.Is(mapped, assetx.ErrObjectNotFound) {
			return nil
		}
		return mapped
	}
	return nil
}

// Exists reports whether dir/name exists
func (b *Backend) Exists(ctx context.Context, dir, name string) (bool, error) {
	storagePath := assetx.JoinPath(dir, name)
	exists, err := b.objectExists(ctx, b.objectKey(storagePath))
	if err != nil {
		return false, MapS3Error(err, "head", storagePath)
	}
	return exists, nil
}

// Rename moves dir/oldName to dir/newName with a server-side copy followed
// by a delete of the source.
func (b *Backend) Rename(ctx context.Context, dir, oldName, newName string) error {
	src := assetx.JoinPath(dir, oldName)
	dst := assetx.JoinPath(dir, newName)

	if err := b.copyObject(ctx, b.objectKey(src), b.objectKey(dst)); err != nil {
		return MapS3Error(err, "rename", src)
	}

	_, err := b.client.GetS3Client().DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket()),
		Key:    aws.String(b.objectKey(src)),
	})
	if err != nil {
		return MapS3Error(err, "rename", src)
	}
	return nil
}

// Copy duplicates a single object, or every object under a prefix, from
// srcPath to dstPath.
func (b *Backend) Copy(ctx context.Context, srcPath, dstPath string) error {
	srcKey := b.objectKey(srcPath)
	dstKey := b.objectKey(dstPath)

	exists, err := b.objectExists(ctx, srcKey)
	if err != nil {
		return MapS3Error(err, "copy", srcPath)
	}
	if exists {
		if err := b.copyObject(ctx, srcKey, dstKey); err != nil {
			return MapS3Error(err, "copy", srcPath)
		}
		return nil
	}

	srcPrefix := srcKey + "/"
	paginator := s3.NewListObjectsV2Paginator(b.client.GetS3Client(), &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket()),
		Prefix: aws.String(srcPrefix),
	})

	copied := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return MapS3Error(err, "copy", srcPath)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			target := dstKey + "/" + strings.TrimPrefix(key, srcPrefix)
			if err := b.copyObject(ctx, key, target); err != nil {
				return MapS3Error(err, "copy", key)
			}
			copied++
		}
	}

	if copied == 0 {
		return &assetx.Error{Op: "copy", ID: srcPath, Err: assetx.ErrObjectNotFound}
	}

	b.logger.Debug("Prefix copied", assetx.ArgsToFields("source", srcPath, "target", dstPath, "objects", copied)...)
	return nil
}

func (b *Backend) copyObject(ctx context.Context, srcKey, dstKey string) error {
	_, err := b.client.GetS3Client().CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(b.bucket()),
		Key:        aws.String(dstKey),
		CopySource: aws.String(copySource(b.bucket(), srcKey)),
	})
	return err
}

// objectExists checks if an object exists
func (b *Backend) objectExists(ctx context.Context, key string) (bool, error) {
	_, err := b.client.GetS3Client().HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket()),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (b *Backend) bucket() string {
	return b.client.GetConfig().Bucket
}

// objectKey maps a backend path to an object key. Keys never start with "/".
func (b *Backend) objectKey(p string) string {
	p = strings.TrimPrefix(path.Clean("/"+strings.ReplaceAll(p, "\\", "/")), "/")
	if b.prefix == "" {
		return p
	}
	if p == "" {
		return b.prefix
	}
	return b.prefix + "/" + p
}

// copySource builds the URL-encoded "bucket/key" CopyObject expects
func copySource(bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return bucket + "/" + strings.Join(segments, "/")
}
