package domain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// CacheKey identifies a proxied response by operation and the bound
// parameter values in declared order.
type CacheKey struct {
	Operation string
	Params    []string
}

// Canonical returns the length-prefixed serialization of the key.
// Every component is written as "<len>:<value>" so no choice of values can
// produce the same output as a different tuple.
func (k CacheKey) Canonical() string {
	var b strings.Builder
	writeComponent(&b, k.Operation)
	b.WriteString(strconv.Itoa(len(k.Params)))
	b.WriteByte('#')
	for _, p := range k.Params {
		writeComponent(&b, p)
	}
	return b.String()
}

// String returns the operation name followed by a SHA-256 digest of the
// canonical form. It is the storage key used by cache backends.
func (k CacheKey) String() string {
	sum := sha256.Sum256([]byte(k.Canonical()))
	return k.Operation + ":" + hex.EncodeToString(sum[:])
}

func writeComponent(b *strings.Builder, s string) {
	b.WriteString(strconv.Itoa(len(s)))
	b.WriteByte(':')
	b.WriteString(s)
}

// ResponseCache stores raw upstream payloads for a fixed TTL.
// Implementations must be safe for concurrent use. Neither method fails:
// backend problems degrade to a miss.
type ResponseCache interface {
	Lookup(ctx context.Context, key CacheKey) ([]byte, bool)
	Store(ctx context.Context, key CacheKey, payload []byte)
	Close() error
}
