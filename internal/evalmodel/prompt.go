package evalmodel

import (
	"encoding/json"
	"fmt"
	"strings"

	"call-qa-go/internal/criteria"
	"call-qa-go/internal/scoring"
	"call-qa-go/internal/types"
)

// BuildPrompt assembles the rubric-driven evaluation prompt from the
// transcript, the criteria set, and objective call metrics.
func BuildPrompt(t types.Transcript, set criteria.Set, metrics scoring.CallMetrics) string {
	var rubric strings.Builder
	for _, c := range set.Criteria {
		fmt.Fprintf(&rubric, "- %s (max %.0f points): %s\n", c.Name, c.MaxPoints, c.Description)
	}

	metricsJSON, _ := json.MarshalIndent(metrics, "", "  ")

	var dialog strings.Builder
	for i, s := range t.Segments {
		fmt.Fprintf(&dialog, "[%d] Speaker %s (%.1fs-%.1fs): %s\n", i, s.Speaker, s.Start, s.End, s.Text)
	}
	if dialog.Len() == 0 {
		dialog.WriteString(t.Text)
	}

	return fmt.Sprintf(`You are a call-center quality analyst. Score the call below against the rubric.

RUBRIC (total %.0f points):
%s
OBJECTIVE METRICS (measured, do not contradict them):
%s

CALL TRANSCRIPT (speaker tags are the provider's diarization labels):
%s

Return ONLY a JSON object, no commentary, no markdown fences, with exactly these keys:
{
  "overall_score": <number 0-100>,
  "criteria": [{"name": "", "points_earned": 0, "max_points": 0, "justification": "", "segment_refs": []}],
  "insights": [{"type": "", "description": "", "segment_ref": 0, "suggested_response": ""}],
  "speaker_mapping": {"A": "Agent" or "Customer", "B": "Agent" or "Customer"},
  "agent_label": "<the speaker tag of the agent>",
  "customer_behavior": "<one-sentence summary of the customer's behavior>"
}

Ground every justification in the transcript. Do not invent segment numbers.
points_earned must never exceed max_points for a criterion.`,
		set.MaxTotal(), rubric.String(), string(metricsJSON), dialog.String())
}
