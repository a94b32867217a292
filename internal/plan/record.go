package plan

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SaveRecord saves a plan to the audit directory as a JSON record.
// Returns the path to the saved file. Plans are append-only: each attempt
// gets its own file and earlier attempts are never overwritten.
func SaveRecord(auditDir string, p *Plan) (string, error) {
	if p == nil {
		return "", errors.New("plan cannot be nil")
	}

	if err := os.MkdirAll(auditDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create audit directory: %w", err)
	}

	filename := fmt.Sprintf("plan-%s-attempt%d-%s.json", p.JobID, p.Attempt, p.PlanID)
	path := filepath.Join(auditDir, filename)

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal plan: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write plan record: %w", err)
	}

	return path, nil
}

// LoadRecords loads all persisted plans for a job, ordered by attempt.
func LoadRecords(auditDir, jobID string) ([]*Plan, error) {
	entries, err := os.ReadDir(auditDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read audit directory: %w", err)
	}

	prefix := "plan-" + jobID + "-"
	var plans []*Plan
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(auditDir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read plan record %s: %w", name, err)
		}
		var p Plan
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to unmarshal plan record %s: %w", name, err)
		}
		plans = append(plans, &p)
	}

	sort.Slice(plans, func(i, j int) bool { return plans[i].Attempt < plans[j].Attempt })
	return plans, nil
}
