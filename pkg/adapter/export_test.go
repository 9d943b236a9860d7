package adapter

import (
	"context"
	"time"
)

var (
	BuildQuery        = buildQuery
	BuildPoints       = buildPoints
	PayloadToMetadata = payloadToMetadata
)

// QdrantRetry runs fn under the retry policy of a Qdrant client without a connection.
func QdrantRetry(ctx context.Context, maxRetries int, base time.Duration, fn func() error) error {
	x := &QdrantClient{maxRetries: maxRetries, baseBackoff: base}
	return x.retry(ctx, "test", fn)
}
