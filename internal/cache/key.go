package cache

import (
	"strconv"

	"github.com/cespare/xxhash"

	"batchloader/internal/lookup"
)

// Key creates the cache key for one record of a signature.
// Format: entity:field:selectionHash:key
func Key(sig lookup.Signature, key any) string {
	selHash := xxhash.Sum64([]byte(sig.Selection))
	return sig.Entity + ":" + sig.Field + ":" + strconv.FormatUint(selHash, 16) + ":" + lookup.FormatKey(key)
}
