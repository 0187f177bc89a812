package s3

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/storage-gateway/internal/logger"
	"github.com/marmos91/storage-gateway/pkg/digest"
	"github.com/marmos91/storage-gateway/pkg/storagerpc"
)

// Get implements storagerpc.RPC.
func (s *Store) Get(ctx context.Context, key string, opts storagerpc.GetOptions) (storagerpc.GetResult, error) {
	if err := ctx.Err(); err != nil {
		return storagerpc.GetResult{}, storagerpc.New(storagerpc.KindTimeout, err)
	}

	fullKey := s.objectKey(key)

	input := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fullKey),
	}
	if opts.HasRange {
		input.Range = aws.String(fmt.Sprintf("bytes=%d-%d", opts.Start, opts.End))
	}

	var result *s3.GetObjectOutput
	var lastErr error

	for attempt := 0; attempt <= int(s.retry.maxRetries); attempt++ {
		if attempt > 0 {
			backoff := s.calculateBackoff(attempt - 1)
			logger.DebugCtx(ctx, "storagerpc/s3: retrying Get", "key", fullKey, "attempt", attempt, "backoff", backoff)
			select {
			case <-ctx.Done():
				return storagerpc.GetResult{}, storagerpc.New(storagerpc.KindTimeout, ctx.Err())
			case <-time.After(backoff):
			}
		}

		result, lastErr = s.client.GetObject(ctx, input)
		if lastErr == nil {
			break
		}
		if isNotFoundError(lastErr) {
			return storagerpc.GetResult{}, storagerpc.New(storagerpc.KindNotFound, lastErr)
		}
		if isInvalidRangeError(lastErr) {
			return storagerpc.GetResult{}, storagerpc.New(storagerpc.KindBadRange, lastErr)
		}
		if !isRetryableError(lastErr) {
			break
		}
	}

	if lastErr != nil {
		return storagerpc.GetResult{}, storagerpc.New(storagerpc.KindInternalError,
			fmt.Errorf("get %s after %d attempts: %w", fullKey, s.retry.maxRetries+1, lastErr))
	}
	defer func() { _ = result.Body.Close() }()

	meta := fromUserMetadata(result.Metadata)

	if opts.EtagHint != "" && len(meta.Checksum) == 16 {
		var sum [16]byte
		copy(sum[:], meta.Checksum)
		if digest.ETag(sum) == opts.EtagHint {
			if s.index != nil {
				s.index.Put(fullKey, meta)
			}
			return storagerpc.GetResult{Matched: true}, nil
		}
	}

	body, err := io.ReadAll(result.Body)
	if err != nil {
		return storagerpc.GetResult{}, storagerpc.New(storagerpc.KindInternalError, fmt.Errorf("read body for %s: %w", fullKey, err))
	}

	if s.index != nil {
		s.index.Put(fullKey, meta)
	}

	return storagerpc.GetResult{Metadata: meta, Body: body}, nil
}

// Head implements storagerpc.RPC.
func (s *Store) Head(ctx context.Context, key string) (storagerpc.ObjectMetadata, error) {
	if err := ctx.Err(); err != nil {
		return storagerpc.ObjectMetadata{}, storagerpc.New(storagerpc.KindTimeout, err)
	}

	fullKey := s.objectKey(key)

	if s.index != nil {
		if meta, ok := s.index.Get(fullKey); ok {
			return meta, nil
		}
	}

	var result *s3.HeadObjectOutput
	var lastErr error

	for attempt := 0; attempt <= int(s.retry.maxRetries); attempt++ {
		if attempt > 0 {
			backoff := s.calculateBackoff(attempt - 1)
			logger.DebugCtx(ctx, "storagerpc/s3: retrying Head", "key", fullKey, "attempt", attempt, "backoff", backoff)
			select {
			case <-ctx.Done():
				return storagerpc.ObjectMetadata{}, storagerpc.New(storagerpc.KindTimeout, ctx.Err())
			case <-time.After(backoff):
			}
		}

		result, lastErr = s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(fullKey),
		})
		if lastErr == nil {
			break
		}
		if isNotFoundError(lastErr) {
			return storagerpc.ObjectMetadata{}, storagerpc.New(storagerpc.KindNotFound, lastErr)
		}
		if !isRetryableError(lastErr) {
			break
		}
	}

	if lastErr != nil {
		return storagerpc.ObjectMetadata{}, storagerpc.New(storagerpc.KindInternalError,
			fmt.Errorf("head %s after %d attempts: %w", fullKey, s.retry.maxRetries+1, lastErr))
	}

	meta := fromUserMetadata(result.Metadata)
	if s.index != nil {
		s.index.Put(fullKey, meta)
	}
	return meta, nil
}
