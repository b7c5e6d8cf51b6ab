package revision

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

const revisionLength = 16

// ConfigRevision returns a deterministic revision string derived from the
// rendered runtime configuration of a gateway. Keys are hashed in sorted
// order so map iteration order never changes the revision. The revision is
// stamped on the gateway pod template, so a config change rolls the pods and
// an unchanged config leaves them alone.
func ConfigRevision(data map[string]string) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%s\n", k, data[k])
	}

	return hex.EncodeToString(h.Sum(nil))[:revisionLength]
}
