package domain

import "fmt"

// ReconstructionPolicy selects how synthesized clips are reassembled onto
// the output timeline. Exactly one policy is active per job.
type ReconstructionPolicy string

const (
	// PolicyOriginal matches every clip to its original sentence span and
	// reproduces all gaps as silence; output duration equals the source.
	PolicyOriginal ReconstructionPolicy = "original"
	// PolicyContinuous concatenates clips at their native lengths with no
	// silence between them.
	PolicyContinuous ReconstructionPolicy = "continuous"
	// PolicyContinuousWithSpaces keeps the original timestamp grid but
	// places clips at their native lengths, never truncating them.
	PolicyContinuousWithSpaces ReconstructionPolicy = "continuous_with_spaces"
	// PolicySameLength keeps the source duration but removes gaps,
	// redistributing the vacated time across speech proportionally.
	PolicySameLength ReconstructionPolicy = "same_length"
	// PolicyTimestampBased matches each clip to its original sentence span
	// and concatenates the spans back to back, dropping all gaps.
	PolicyTimestampBased ReconstructionPolicy = "timestamp_based"
)

// DefaultPolicy is applied when a request selects nothing.
const DefaultPolicy = PolicyOriginal

// Policies lists all selectable reconstruction policies.
func Policies() []ReconstructionPolicy {
	return []ReconstructionPolicy{
		PolicyOriginal,
		PolicyContinuous,
		PolicyContinuousWithSpaces,
		PolicySameLength,
		PolicyTimestampBased,
	}
}

// Valid reports whether p is one of the known policies.
func (p ReconstructionPolicy) Valid() bool {
	switch p {
	case PolicyOriginal, PolicyContinuous, PolicyContinuousWithSpaces,
		PolicySameLength, PolicyTimestampBased:
		return true
	default:
		return false
	}
}

// ParsePolicy maps a request value to a policy, defaulting when empty.
func ParsePolicy(raw string) (ReconstructionPolicy, error) {
	if raw == "" {
		return DefaultPolicy, nil
	}

	p := ReconstructionPolicy(raw)
	if !p.Valid() {
		return "", fmt.Errorf("unknown reconstruction policy: %q", raw)
	}
	return p, nil
}
