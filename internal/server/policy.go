package server

import (
	"fmt"
	"strings"

	"voice-converter/internal/domain"
)

// legacyFlags maps the old boolean form fields to their policies. They
// stay accepted for older clients but at most one may be set.
var legacyFlags = []struct {
	field  string
	policy domain.ReconstructionPolicy
}{
	{"continuous", domain.PolicyContinuous},
	{"continuous_with_spaces", domain.PolicyContinuousWithSpaces},
	{"same_length", domain.PolicySameLength},
	{"timestamp_based", domain.PolicyTimestampBased},
}

// resolvePolicy combines the policy form field with the legacy boolean
// flags into a single reconstruction policy. Conflicting signals are
// rejected rather than silently prioritized.
func resolvePolicy(formValue func(string) string) (domain.ReconstructionPolicy, error) {
	var fromFlags []domain.ReconstructionPolicy
	var setFields []string
	for _, flag := range legacyFlags {
		if strings.EqualFold(strings.TrimSpace(formValue(flag.field)), "true") {
			fromFlags = append(fromFlags, flag.policy)
			setFields = append(setFields, flag.field)
		}
	}

	if explicit := strings.TrimSpace(formValue("policy")); explicit != "" {
		if len(fromFlags) > 0 {
			return "", fmt.Errorf("policy %q conflicts with legacy mode flags: %s", explicit, strings.Join(setFields, ", "))
		}
		return domain.ParsePolicy(explicit)
	}

	switch len(fromFlags) {
	case 0:
		return domain.DefaultPolicy, nil
	case 1:
		return fromFlags[0], nil
	default:
		return "", fmt.Errorf("conflicting mode flags: %s", strings.Join(setFields, ", "))
	}
}
