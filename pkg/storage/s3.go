package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/serval-mesh/agent/pkg/servalerr"
)

// S3Backend is a Backend implementation storing blobs in an S3-compatible
// bucket, keyed the same way the local cache keys them.
type S3Backend struct {
	client *s3.Client
	bucket string
}

// NewS3Backend builds an S3-backed object store for the named bucket,
// loading credentials and region from the environment (AWS_DEFAULT_REGION,
// standard AWS credential chain) the way the AWS SDK's default config
// loader does.
func NewS3Backend(ctx context.Context, bucketName string) (*S3Backend, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, servalerr.Wrap(servalerr.KindStorage, "load AWS config", err)
	}
	return &S3Backend{
		client: s3.NewFromConfig(cfg),
		bucket: bucketName,
	}, nil
}

// GetByKey fetches an object by its logical key.
func (b *S3Backend) GetByKey(ctx context.Context, key string) ([]byte, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, servalerr.New(servalerr.KindNotFound, fmt.Sprintf("object %q not found in bucket %q", key, b.bucket))
		}
		return nil, servalerr.Wrap(servalerr.KindStorage, "get s3 object", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, servalerr.Wrap(servalerr.KindStorage, "read s3 object body", err)
	}
	return data, nil
}

// StoreByKey writes an object under its logical key.
func (b *S3Backend) StoreByKey(ctx context.Context, key string, data []byte) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return servalerr.Wrap(servalerr.KindStorage, "put s3 object", err)
	}
	return nil
}

// HasKey reports whether an object exists under the given key.
func (b *S3Backend) HasKey(ctx context.Context, key string) bool {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	return err == nil
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
