package decision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyw0ng95/sentinel/pkg/model"
)

func TestAdvanceTracksHealthyAndDegraded(t *testing.T) {
	st := newStateTable()

	assert.Equal(t, StateUnknown, st.get("v1").state)

	require.Equal(t, StateHealthy, st.advance("v1", model.IssueHealthy))
	require.Equal(t, StateDegraded, st.advance("v1", model.IssueHighSlotLag))
	assert.Equal(t, model.IssueHighSlotLag, st.get("v1").issue)

	// A healthy sample clears the tracked issue and action.
	require.Equal(t, StateHealthy, st.advance("v1", model.IssueHealthy))
	assert.Empty(t, st.get("v1").issue)
	assert.Empty(t, st.get("v1").actionID)
}

func TestMarkRecoveringRecordsActionID(t *testing.T) {
	st := newStateTable()
	st.advance("v1", model.IssueHighDisk)
	st.markRecovering("v1", model.IssueHighDisk, "action-1")

	tracked := st.get("v1")
	require.Equal(t, StateRecovering, tracked.state)
	assert.Equal(t, model.IssueHighDisk, tracked.issue)
	assert.Equal(t, "action-1", tracked.actionID)

	// Recovery is metrics-driven: the next sample decides the exit.
	require.Equal(t, StateHealthy, st.advance("v1", model.IssueHealthy))
}

func TestValidateTransitionRejectsIllegalEdges(t *testing.T) {
	require.NoError(t, ValidateTransition(StateUnknown, StateHealthy))
	require.NoError(t, ValidateTransition(StateDegraded, StateRecovering))
	require.NoError(t, ValidateTransition(StateRecovering, StateRecovering))
	assert.Error(t, ValidateTransition(StateUnknown, StateRecovering))
	assert.Error(t, ValidateTransition(StateHealthy, StateRecovering))
}

// A result arriving at any time is informational only: it is recorded for
// observability but never marks the debounce window.
func TestRecordResultLeavesDebounceUntouched(t *testing.T) {
	e := New(&fakeSubmitter{}, Config{}, nil, nil)

	e.RecordResult(model.ActionResult{
		ActionID:    "a1",
		ValidatorID: "v1",
		Status:      model.StatusSuccess,
		CompletedAt: time.Now(),
	})

	got, ok := e.LastResult("v1")
	require.True(t, ok)
	assert.Equal(t, "a1", got.ActionID)
	assert.True(t, e.debounce.allow("v1", model.IssueHighSlotLag, time.Now()))
}
