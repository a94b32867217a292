package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ValidatesSubmission(t *testing.T) {
	tests := []struct {
		name     string
		task     string
		repoPath string
		wantErr  bool
	}{
		{name: "valid", task: "add a multiply function", repoPath: "/tmp/repo"},
		{name: "empty task", task: "", repoPath: "/tmp/repo", wantErr: true},
		{name: "whitespace task", task: "   ", repoPath: "/tmp/repo", wantErr: true},
		{name: "empty repo path", task: "do something", repoPath: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j, err := New(tt.task, tt.repoPath, BudgetLimits{})
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidRequest)
				assert.Nil(t, j)
				return
			}
			require.NoError(t, err)
			assert.Len(t, j.ID, 8)
			assert.Equal(t, StatePlanning, j.Machine.Current())
		})
	}
}

func TestJob_BeginAttempt(t *testing.T) {
	j, err := New("task", "/tmp/repo", BudgetLimits{})
	require.NoError(t, err)

	assert.Equal(t, 0, j.AttemptCount())
	assert.Equal(t, 1, j.BeginAttempt())
	assert.Equal(t, 2, j.BeginAttempt())
	assert.Equal(t, 2, j.AttemptCount())
}

func TestJob_FinalizeIsIdempotent(t *testing.T) {
	j, err := New("task", "/tmp/repo", BudgetLimits{})
	require.NoError(t, err)

	j.Finalize(StateCompleted, "done", 1000, 0.05)
	j.Finalize(StateStoppedError, "late failure", 9999, 9.99)

	snap := j.Snapshot()
	assert.Equal(t, "done", snap.FinalReason)
	assert.Equal(t, 1000, snap.TokenUsage)
	assert.InDelta(t, 0.05, snap.CostUSD, 1e-9)
	assert.True(t, j.Finalized())
}

func TestJob_Snapshot(t *testing.T) {
	j, err := New("task", "/tmp/repo", BudgetLimits{})
	require.NoError(t, err)

	snap := j.Snapshot()
	assert.Nil(t, snap.ConfidenceScore)
	assert.Nil(t, snap.CompletedAt)

	j.SetConfidence(0.91)
	require.NoError(t, j.Machine.To(StateExecuting, "plan ready"))
	j.Finalize(StateStoppedError, "test", 10, 0.01)

	snap = j.Snapshot()
	require.NotNil(t, snap.ConfidenceScore)
	assert.InDelta(t, 0.91, *snap.ConfidenceScore, 1e-9)
	require.NotNil(t, snap.CompletedAt)
	assert.Len(t, snap.Transitions, 2)
}

func TestSnapshot_RoundTrip(t *testing.T) {
	j, err := New("task", "/tmp/repo", BudgetLimits{})
	require.NoError(t, err)
	require.NoError(t, j.Machine.To(StateStoppedSafe, "ambiguous"))
	j.Finalize(StateStoppedSafe, "ambiguous", 50, 0.01)

	dir := t.TempDir()
	path, err := SaveSnapshot(dir, j.Snapshot())
	require.NoError(t, err)
	assert.FileExists(t, path)

	loaded, err := LoadSnapshot(dir, j.ID)
	require.NoError(t, err)
	assert.Equal(t, j.ID, loaded.ID)
	assert.Equal(t, StateStoppedSafe, loaded.State)
	assert.Equal(t, "ambiguous", loaded.FinalReason)
}

func TestLoadSnapshot_Missing(t *testing.T) {
	_, err := LoadSnapshot(t.TempDir(), "nope1234")
	require.Error(t, err)
}
