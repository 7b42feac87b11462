package batch

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ManifestEntry is one row of a bulk-import spreadsheet.
type ManifestEntry struct {
	CallID    string
	AudioPath string
	Agent     string
	Campaign  string
}

// LoadManifest reads batch items from the first sheet of an xlsx file,
// locating columns by header heuristics so operators can hand over exports
// from whatever telephony system they run.
func LoadManifest(path string) ([]ManifestEntry, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("manifest has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read manifest rows: %w", err)
	}
	if len(rows) <= 1 {
		return nil, fmt.Errorf("manifest has no data rows")
	}

	callIDIdx, audioIdx, agentIdx, campaignIdx := -1, -1, -1, -1
	for i, h := range rows[0] {
		l := strings.ToLower(strings.TrimSpace(h))
		switch {
		case audioIdx == -1 && (strings.Contains(l, "audio") || strings.Contains(l, "recording") || strings.Contains(l, "file")):
			audioIdx = i
		case callIDIdx == -1 && strings.Contains(l, "id"):
			callIDIdx = i
		case agentIdx == -1 && strings.Contains(l, "agent"):
			agentIdx = i
		case campaignIdx == -1 && strings.Contains(l, "campaign"):
			campaignIdx = i
		}
	}
	if audioIdx == -1 {
		return nil, fmt.Errorf("manifest has no audio column")
	}

	cell := func(row []string, idx int) string {
		if idx >= 0 && idx < len(row) {
			return strings.TrimSpace(row[idx])
		}
		return ""
	}

	var out []ManifestEntry
	for _, row := range rows[1:] {
		entry := ManifestEntry{
			CallID:    cell(row, callIDIdx),
			AudioPath: cell(row, audioIdx),
			Agent:     cell(row, agentIdx),
			Campaign:  cell(row, campaignIdx),
		}
		if entry.AudioPath == "" {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}
