package timeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apptline/internal/model"
)

func ids(intervals []Interval) []string {
	out := make([]string, 0, len(intervals))
	for _, iv := range intervals {
		out = append(out, iv.ID)
	}
	return out
}

func TestApplyUpdate_RemoveUnknownIsNoop(t *testing.T) {
	current := []Interval{iv("a", 10, 0, 10, 30), iv("b", 10, 15, 10, 45)}
	before, err := Recompute(current, testClock, testSpan, testOpts)
	require.NoError(t, err)

	next := ApplyUpdate(current, UpdateEvent{Kind: model.UpdateRemove, Interval: Interval{ID: "X"}})
	after, err := Recompute(next, testClock, testSpan, testOpts)
	require.NoError(t, err)

	assert.Equal(t, current, next)
	assert.Equal(t, before, after)
}

func TestApplyUpdate_Add(t *testing.T) {
	current := []Interval{iv("a", 10, 0, 10, 30)}

	next := ApplyUpdate(current, UpdateEvent{Kind: model.UpdateAdd, Interval: iv("b", 11, 0, 11, 30)})

	assert.Equal(t, []string{"a", "b"}, ids(next))
	assert.Len(t, current, 1)
}

func TestApplyUpdate_AddExistingReplaces(t *testing.T) {
	current := []Interval{iv("a", 10, 0, 10, 30), iv("b", 11, 0, 11, 30)}

	next := ApplyUpdate(current, UpdateEvent{Kind: model.UpdateAdd, Interval: iv("a", 12, 0, 12, 30)})

	assert.Equal(t, []string{"a", "b"}, ids(next))
	assert.True(t, at(12, 0).Equal(next[0].Start))
}

func TestApplyUpdate_CollapsesDuplicateTarget(t *testing.T) {
	current := []Interval{iv("a", 10, 0, 10, 30), iv("b", 11, 0, 11, 30), iv("a", 10, 15, 10, 45)}

	next := ApplyUpdate(current, UpdateEvent{Kind: model.UpdateUpdate, Interval: iv("a", 12, 0, 12, 30)})
	assert.Equal(t, []string{"a", "b"}, ids(next))
	assert.True(t, at(12, 0).Equal(next[0].Start))

	next = ApplyUpdate(current, UpdateEvent{Kind: model.UpdateRemove, Interval: Interval{ID: "a"}})
	assert.Equal(t, []string{"b"}, ids(next))
}

func TestApplyUpdate_Update(t *testing.T) {
	current := []Interval{iv("a", 10, 0, 10, 30), iv("b", 11, 0, 11, 30)}

	next := ApplyUpdate(current, UpdateEvent{Kind: model.UpdateUpdate, Interval: iv("b", 10, 10, 10, 40)})

	require.Len(t, next, 2)
	assert.True(t, at(10, 10).Equal(next[1].Start))
	assert.True(t, at(11, 0).Equal(current[1].Start), "input must not change")

	l, err := Recompute(next, testClock, testSpan, testOpts)
	require.NoError(t, err)
	assert.Equal(t, 2, l.RowCount, "moved interval now overlaps a")
}

func TestApplyUpdate_UpdateUnknownIsNoop(t *testing.T) {
	current := []Interval{iv("a", 10, 0, 10, 30)}

	next := ApplyUpdate(current, UpdateEvent{Kind: model.UpdateUpdate, Interval: iv("zz", 10, 0, 10, 30)})

	assert.Equal(t, current, next)
}

func TestApplyUpdate_Remove(t *testing.T) {
	current := []Interval{iv("a", 10, 0, 10, 30), iv("b", 11, 0, 11, 30)}

	next := ApplyUpdate(current, UpdateEvent{Kind: model.UpdateRemove, Interval: Interval{ID: "a"}})

	assert.Equal(t, []string{"b"}, ids(next))
	assert.Equal(t, []string{"a", "b"}, ids(current))
}

func TestApplyUpdate_InvalidEventIsNoop(t *testing.T) {
	current := []Interval{iv("a", 10, 0, 10, 30)}

	assert.Equal(t, current, ApplyUpdate(current, UpdateEvent{Kind: "rename", Interval: iv("a", 9, 0, 9, 30)}))
	assert.Equal(t, current, ApplyUpdate(current, UpdateEvent{Kind: model.UpdateAdd}))
}

func TestApplyUpdate_ReturnsFreshSlice(t *testing.T) {
	current := []Interval{iv("a", 10, 0, 10, 30)}

	next := ApplyUpdate(current, UpdateEvent{Kind: model.UpdateRemove, Interval: Interval{ID: "nope"}})
	next[0].Label = "changed"

	assert.Empty(t, current[0].Label)
}

func TestValidateUpdate(t *testing.T) {
	assert.NoError(t, ValidateUpdate(UpdateEvent{Kind: model.UpdateRemove, Interval: Interval{ID: "a"}}))
	assert.ErrorIs(t, ValidateUpdate(UpdateEvent{Kind: "bogus", Interval: Interval{ID: "a"}}), ErrUnknownUpdateKind)
	assert.ErrorIs(t, ValidateUpdate(UpdateEvent{Kind: model.UpdateAdd}), ErrMissingID)
}

func TestEventFromMessage(t *testing.T) {
	a := appt("a", "10:00", 30)

	ev, err := EventFromMessage(model.UpdateMessage{Kind: model.UpdateAdd, Appointment: &a}, testLoc)
	require.NoError(t, err)
	assert.Equal(t, model.UpdateAdd, ev.Kind)
	assert.Equal(t, "a", ev.Interval.ID)
	assert.True(t, at(10, 30).Equal(ev.Interval.End))

	ev, err = EventFromMessage(model.UpdateMessage{Kind: model.UpdateRemove, ID: "a"}, testLoc)
	require.NoError(t, err)
	assert.Equal(t, "a", ev.Interval.ID)

	_, err = EventFromMessage(model.UpdateMessage{Kind: model.UpdateRemove}, testLoc)
	assert.ErrorIs(t, err, ErrMissingID)

	_, err = EventFromMessage(model.UpdateMessage{Kind: model.UpdateUpdate}, testLoc)
	assert.ErrorIs(t, err, ErrMissingID)

	_, err = EventFromMessage(model.UpdateMessage{Kind: "move", ID: "a"}, testLoc)
	assert.ErrorIs(t, err, ErrUnknownUpdateKind)

	bad := appt("b", "10:00", 30)
	bad.StartTime = "99:99"
	_, err = EventFromMessage(model.UpdateMessage{Kind: model.UpdateUpdate, Appointment: &bad}, testLoc)
	assert.ErrorIs(t, err, ErrInvalidTimestamp)
}
