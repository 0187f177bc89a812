package s3

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/storage-gateway/internal/logger"
	"github.com/marmos91/storage-gateway/pkg/storagerpc"
)

// Delete implements storagerpc.RPC. Deleting an absent key is reported as
// NotFound, unlike S3's own idempotent DeleteObject — rollback and the
// dispatcher both need to distinguish "already gone" from "just deleted" to
// decide whether to keep retrying.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return storagerpc.New(storagerpc.KindTimeout, err)
	}

	fullKey := s.objectKey(key)

	if _, err := s.Head(ctx, key); err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= int(s.retry.maxRetries); attempt++ {
		if attempt > 0 {
			backoff := s.calculateBackoff(attempt - 1)
			logger.DebugCtx(ctx, "storagerpc/s3: retrying Delete", "key", fullKey, "attempt", attempt, "backoff", backoff)
			select {
			case <-ctx.Done():
				return storagerpc.New(storagerpc.KindTimeout, ctx.Err())
			case <-time.After(backoff):
			}
		}

		_, lastErr = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(fullKey),
		})
		if lastErr == nil {
			break
		}
		if !isRetryableError(lastErr) {
			break
		}
	}

	if lastErr != nil {
		return storagerpc.New(storagerpc.KindInternalError,
			fmt.Errorf("delete %s after %d attempts: %w", fullKey, s.retry.maxRetries+1, lastErr))
	}

	if s.index != nil {
		s.index.Delete(fullKey)
	}

	return nil
}
