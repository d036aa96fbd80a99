package hashing

import (
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// IdentityDigest hashes a fixed keyword set into an event identity. Empty
// values are dropped and the remainder sorted first, so list-valued fields
// may arrive in any order without changing the digest. This is a dedup key,
// not a security token, hence the fast non-cryptographic digest.
func IdentityDigest(keywords []string) string {
	kept := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k != "" {
			kept = append(kept, k)
		}
	}
	sort.Strings(kept)

	d := xxhash.New()
	for _, k := range kept {
		_, _ = d.WriteString(k)
	}
	return fmt.Sprintf("%016x", d.Sum64())
}
