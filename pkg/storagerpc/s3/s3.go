// Package s3 implements storagerpc.RPC against Amazon S3 or an
// S3-compatible endpoint (e.g. MinIO, localstack).
//
// Object layout: each key (leaf chunk, small object, or manifest header) is
// one S3 object. storagerpc.ObjectMetadata is not derivable from S3's own
// object metadata alone, so it is round-tripped through a small set of
// x-amz-meta-* user metadata headers set on every Put and read back on
// every Get/Head. A manifest put's body is empty per the interface contract
// (the "EMPTY" body spec.md's put(key, EMPTY, ...) names).
package s3

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// retryConfig holds retry settings for transient S3 errors.
type retryConfig struct {
	maxRetries        uint
	initialBackoff    time.Duration
	maxBackoff        time.Duration
	backoffMultiplier float64
}

// Store implements storagerpc.RPC against an S3-compatible bucket.
type Store struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
	retry     retryConfig

	// index, when non-nil, accelerates Head by serving ObjectMetadata from
	// a local embedded index instead of an S3 round trip. See metaindex.go.
	index *MetaIndex
}

// Config configures a Store.
type Config struct {
	Client *s3.Client
	Bucket string

	// KeyPrefix is prepended to every key, e.g. "gateway/".
	KeyPrefix string

	MaxRetries        uint
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64

	// Index, when non-nil, is consulted/updated alongside S3 so that Head
	// calls (used by range reads' chunk-tree walk) don't always round-trip
	// to the storage cluster.
	Index *MetaIndex
}

// NewClientFromConfig builds an S3 client from plain connection parameters,
// for callers that don't already have an *s3.Client (e.g. pkg/config's
// startup wiring).
func NewClientFromConfig(ctx context.Context, endpoint, region, accessKeyID, secretAccessKey string, forcePathStyle bool) (*s3.Client, error) {
	// otelhttp.NewTransport wraps the default transport so every outbound
	// storage-cluster call produces a child span of whatever request
	// triggered it.
	tracedHTTP := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")),
		config.WithHTTPClient(tracedHTTP),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = &endpoint
		}
		o.UsePathStyle = forcePathStyle
	})

	return client, nil
}

// New creates a Store and verifies bucket access. The bucket must already
// exist — this does not create it.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cfg.Client == nil {
		return nil, fmt.Errorf("s3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	if _, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return nil, fmt.Errorf("access bucket %q: %w", cfg.Bucket, err)
	}

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	initialBackoff := cfg.InitialBackoff
	if initialBackoff == 0 {
		initialBackoff = 100 * time.Millisecond
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff == 0 {
		maxBackoff = 2 * time.Second
	}
	backoffMultiplier := cfg.BackoffMultiplier
	if backoffMultiplier == 0 {
		backoffMultiplier = 2.0
	}

	return &Store{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
		index:     cfg.Index,
		retry: retryConfig{
			maxRetries:        maxRetries,
			initialBackoff:    initialBackoff,
			maxBackoff:        maxBackoff,
			backoffMultiplier: backoffMultiplier,
		},
	}, nil
}

// objectKey returns the full S3 key for a gateway key.
func (s *Store) objectKey(key string) string {
	if s.keyPrefix == "" {
		return key
	}
	return s.keyPrefix + key
}

// calculateBackoff returns the backoff duration for the given retry attempt.
func (s *Store) calculateBackoff(attempt int) time.Duration {
	backoff := float64(s.retry.initialBackoff)
	for i := 0; i < attempt; i++ {
		backoff *= s.retry.backoffMultiplier
	}
	if backoff > float64(s.retry.maxBackoff) {
		backoff = float64(s.retry.maxBackoff)
	}
	return time.Duration(backoff)
}
