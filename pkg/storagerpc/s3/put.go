package s3

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/storage-gateway/internal/logger"
	"github.com/marmos91/storage-gateway/pkg/digest"
	"github.com/marmos91/storage-gateway/pkg/storagerpc"
)

// Put implements storagerpc.RPC. Exactly one of opts.Leaf / opts.Manifest
// must be set; a manifest put writes an empty body carrying only metadata.
func (s *Store) Put(ctx context.Context, key string, body []byte, opts storagerpc.PutOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", storagerpc.New(storagerpc.KindTimeout, err)
	}

	var meta storagerpc.ObjectMetadata
	var putBody []byte
	var sum [16]byte

	switch {
	case opts.Manifest != nil:
		sum = sumBytes(opts.Manifest.Digest)
		meta = storagerpc.ObjectMetadata{
			Checksum:  opts.Manifest.Digest,
			Timestamp: time.Now().Unix(),
			DSize:     opts.Manifest.TotalSize,
			CNumber:   int64(opts.Manifest.TotalChunks),
		}
		putBody = nil
	case opts.Leaf != nil:
		d := digest.Sum(body)
		sum = d
		meta = storagerpc.ObjectMetadata{
			Checksum:  d[:],
			Timestamp: time.Now().Unix(),
			DSize:     opts.Leaf.Size,
		}
		putBody = body
	default:
		return "", storagerpc.New(storagerpc.KindBadRequest, fmt.Errorf("put %s: exactly one of Leaf/Manifest must be set", key))
	}

	fullKey := s.objectKey(key)

	var lastErr error
	for attempt := 0; attempt <= int(s.retry.maxRetries); attempt++ {
		if attempt > 0 {
			backoff := s.calculateBackoff(attempt - 1)
			logger.DebugCtx(ctx, "storagerpc/s3: retrying Put", "key", fullKey, "attempt", attempt, "backoff", backoff)
			select {
			case <-ctx.Done():
				return "", storagerpc.New(storagerpc.KindTimeout, ctx.Err())
			case <-time.After(backoff):
			}
		}

		_, lastErr = s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:   aws.String(s.bucket),
			Key:      aws.String(fullKey),
			Body:     bytes.NewReader(putBody),
			Metadata: toUserMetadata(meta),
		})
		if lastErr == nil {
			break
		}
		if !isRetryableError(lastErr) {
			break
		}
	}

	if lastErr != nil {
		return "", storagerpc.New(storagerpc.KindInternalError,
			fmt.Errorf("put %s after %d attempts: %w", fullKey, s.retry.maxRetries+1, lastErr))
	}

	if s.index != nil {
		s.index.Put(fullKey, meta)
	}

	return digest.ETag(sum), nil
}

func sumBytes(b []byte) [16]byte {
	var sum [16]byte
	copy(sum[:], b)
	return sum
}
