package mirror

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/marmos91/ftpfs/pkg/config"
)

// S3Sink mirrors files into an S3 or S3-compatible bucket.
//
// Keys are built as keyPrefix + relative path, so the bucket mirrors
// the remote directory structure and stays human-inspectable.
type S3Sink struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
}

// NewS3Sink creates a sink writing into the configured bucket.
//
// The bucket must already exist - this function does not create it,
// but it verifies access up front so misconfiguration fails at startup
// rather than mid-run.
func NewS3Sink(ctx context.Context, cfg config.S3SinkConfig) (*S3Sink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	client, err := newS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}

	_, err = client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
	}

	return &S3Sink{
		client:    client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
	}, nil
}

// newS3Client builds an S3 client from the sink configuration.
func newS3Client(ctx context.Context, cfg config.S3SinkConfig) (*s3.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error

	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				"", // SessionToken
			),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			// Custom endpoints are S3-compatible storage, which usually
			// needs path-style URLs.
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Put uploads the content under keyPrefix + key.
//
// The content is buffered in memory because PutObject needs the length
// up front. Mirror workloads are listing-sized files; multipart uploads
// for multi-GB objects are out of scope here.
func (s *S3Sink) Put(ctx context.Context, key string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

// Close implements Sink. The S3 client holds no resources to release.
func (s *S3Sink) Close() error {
	return nil
}

// objectKey returns the full object key for a relative mirror key.
func (s *S3Sink) objectKey(key string) string {
	if s.keyPrefix == "" {
		return key
	}
	return path.Join(s.keyPrefix, key)
}
