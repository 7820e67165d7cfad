package engine

import (
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/zeebo/blake3"
)

// fingerprintLen is the hex length of a failure fingerprint. Collision
// resistance is defense in depth here, not a hard requirement, so a
// truncated digest is plenty.
const fingerprintLen = 16

// Fingerprint computes a stable content hash for a failed step attempt:
// step identity plus the shape of the working data plus the identities of
// the failing rules. Key and rule order do not matter; the inputs are
// sorted into a canonical encoding before hashing. Same step, same data
// shape, same failures: same fingerprint.
func Fingerprint(stepID string, dataKeys []string, failedRuleIDs []string) string {
	keys := append([]string(nil), dataKeys...)
	sort.Strings(keys)
	rules := append([]string(nil), failedRuleIDs...)
	sort.Strings(rules)

	canonical, _ := json.Marshal(struct {
		StepID      string   `json:"step_id"`
		DataKeys    []string `json:"data_keys"`
		FailedRules []string `json:"failed_rules"`
	}{StepID: stepID, DataKeys: keys, FailedRules: rules})

	sum := blake3.Sum256(canonical)
	return hex.EncodeToString(sum[:])[:fingerprintLen]
}

// LoopDetector rejects a second occurrence of an identical failure
// fingerprint for the same step. Its state is scoped to one run and
// discarded with it. Only post-spec failures are observed: those are the
// failures the orchestrator retries, and a retry is only productive when
// the situation changed.
type LoopDetector struct {
	seen map[string]map[string]struct{}
}

// NewLoopDetector creates an empty detector for one run.
func NewLoopDetector() *LoopDetector {
	return &LoopDetector{seen: make(map[string]map[string]struct{})}
}

// Observe records fingerprint for stepID. A repeat observation returns a
// fatal LoopDetectedError; once observed, an identical fingerprint for
// that step is permanently rejected within the run.
func (d *LoopDetector) Observe(stepID, fingerprint string) error {
	fps, ok := d.seen[stepID]
	if !ok {
		fps = make(map[string]struct{})
		d.seen[stepID] = fps
	}
	if _, dup := fps[fingerprint]; dup {
		return &LoopDetectedError{StepID: stepID, Fingerprint: fingerprint}
	}
	fps[fingerprint] = struct{}{}
	return nil
}
