package job

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SaveSnapshot persists a job's status snapshot to the audit directory so
// it can be inspected after the process exits. The file is overwritten on
// each call; the snapshot is cumulative.
func SaveSnapshot(auditDir string, snap Snapshot) (string, error) {
	if err := os.MkdirAll(auditDir, 0o755); err != nil {
		return "", fmt.Errorf("create audit dir: %w", err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	path := filepath.Join(auditDir, fmt.Sprintf("job-%s.json", snap.ID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}

	return path, nil
}

// LoadSnapshot reads a persisted job snapshot by ID.
func LoadSnapshot(auditDir, jobID string) (Snapshot, error) {
	path := filepath.Join(auditDir, fmt.Sprintf("job-%s.json", jobID))

	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("parse snapshot %s: %w", path, err)
	}

	return snap, nil
}
