// Package requirements evaluates task and badge requirement maps against a
// user's stat snapshot.
package requirements

import (
	"encoding/json"
	"fmt"

	"github.com/roamly/progression-engine/internal/models"
)

// Matches reports whether every threshold in requirements is met by the
// snapshot. Missing snapshot keys count as zero, so an unmet requirement is
// a false result, never a failure. Pure and order-independent.
func Matches(reqs map[string]uint64, snapshot map[string]uint64) bool {
	for key, threshold := range reqs {
		if snapshot[key] < threshold {
			return false
		}
	}
	return true
}

// Validate checks a requirement map at definition-load time. Unknown stat
// keys and empty maps are rejected here so that evaluation never has to deal
// with them: a definition that slips through malformed simply fails closed.
func Validate(reqs map[string]uint64) error {
	if len(reqs) == 0 {
		return fmt.Errorf("requirements must name at least one stat")
	}
	for key := range reqs {
		if !models.IsRequirementStat(key) {
			return fmt.Errorf("unknown stat key %q in requirements", key)
		}
	}
	return nil
}

// Decode parses a stored requirements document. A definition whose document
// no longer parses is reported as an error so the caller can skip it without
// aborting the rest of the batch.
func Decode(raw json.RawMessage) (map[string]uint64, error) {
	reqs, err := models.ParseRequirements(raw)
	if err != nil {
		return nil, err
	}
	return reqs, nil
}
