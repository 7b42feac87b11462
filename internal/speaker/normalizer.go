// Package speaker maps provider diarization tags onto the two canonical call
// roles. Providers label speakers "A"/"B" (plus "C"/"D" for stretches of
// overlapping speech) or sometimes "Speaker A"; the evaluation model supplies
// the A/B-to-role mapping and this package applies it.
package speaker

import (
	"strings"

	"call-qa-go/internal/types"
)

// Normalize assigns canonical roles in place. Segments must be in
// chronological order; the pass is purely additive and never reorders or
// drops a segment.
//
// Tags resolving to A/B (or literal agent/customer) take their role straight
// from the mapping. Overlap tags (anything else, commonly C/D) inherit the
// role of the next segment that resolves definitively, and are marked so
// downstream consumers can tell inferred assignments from direct ones. A
// trailing overlap run with no definitive successor keeps an unset role.
func Normalize(segments []types.Segment, mapping map[string]string) {
	for i := range segments {
		if role, ok := resolveDirect(segments[i].Speaker, mapping); ok {
			segments[i].Role = role
		}
	}

	for i := range segments {
		if segments[i].Role != "" {
			continue
		}
		for j := i + 1; j < len(segments); j++ {
			if role, ok := resolveDirect(segments[j].Speaker, mapping); ok {
				segments[i].Role = role
				segments[i].Overlap = true
				segments[i].OverlapFrom = role
				break
			}
		}
	}
}

// resolveDirect reports the role for tags that resolve without inference.
func resolveDirect(tag string, mapping map[string]string) (types.SpeakerRole, bool) {
	key := canonicalTag(tag)
	switch key {
	case "AGENT":
		return types.RoleAgent, true
	case "CUSTOMER":
		return types.RoleCustomer, true
	}
	if key != "A" && key != "B" {
		// C/D and friends are provider overlap tags; they never resolve
		// directly even when the model volunteers a mapping for them.
		return "", false
	}
	if mapped, ok := mapping[key]; ok {
		switch strings.ToLower(strings.TrimSpace(mapped)) {
		case "agent":
			return types.RoleAgent, true
		case "customer":
			return types.RoleCustomer, true
		}
	}
	return "", false
}

// canonicalTag strips "Speaker " prefixes and uppercases the remainder, so
// "Speaker a", "A" and "a" all normalize to "A".
func canonicalTag(tag string) string {
	t := strings.TrimSpace(tag)
	for _, prefix := range []string{"speaker ", "speaker_", "speaker-"} {
		if len(t) > len(prefix) && strings.EqualFold(t[:len(prefix)], prefix) {
			t = t[len(prefix):]
			break
		}
	}
	return strings.ToUpper(strings.TrimSpace(t))
}
