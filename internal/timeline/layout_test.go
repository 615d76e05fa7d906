package timeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apptline/internal/model"
)

func appt(id, clock string, minutes int) model.RawAppointment {
	return model.RawAppointment{
		ID:              id,
		StartDate:       "2025-01-01",
		StartTime:       clock,
		DurationMinutes: minutes,
		Label:           "Visit " + id,
		Status:          model.StatusBooked,
	}
}

func rowOf(l Layout, id string) int {
	for i, row := range l.Rows {
		for _, p := range row {
			if p.IntervalID == id {
				return i
			}
		}
	}
	return -1
}

func TestComputeLayout_Overlapping(t *testing.T) {
	l, intervals, err := ComputeLayout([]model.RawAppointment{
		appt("first", "10:00", 30),
		appt("second", "10:15", 30),
	}, testClock, testSpan, testOpts)
	require.NoError(t, err)

	assert.Len(t, intervals, 2)
	assert.Equal(t, 2, l.RowCount)
	require.Len(t, l.Rows, 2)
	assert.Equal(t, 0, rowOf(l, "first"))
	assert.Equal(t, 1, rowOf(l, "second"))
	assert.Len(t, l.Buckets, 3)
	assert.True(t, at(10, 0).Equal(l.Window.Start))
	assert.Empty(t, l.Warnings)
}

func TestComputeLayout_BackToBack(t *testing.T) {
	l, _, err := ComputeLayout([]model.RawAppointment{
		appt("a", "10:00", 20),
		appt("b", "10:20", 20),
		appt("c", "10:05", 20),
	}, testClock, testSpan, testOpts)
	require.NoError(t, err)

	assert.Equal(t, 2, l.RowCount)
	assert.Equal(t, 0, rowOf(l, "a"))
	assert.Equal(t, 0, rowOf(l, "b"))
	assert.Equal(t, 1, rowOf(l, "c"))

	require.Len(t, l.Rows[0], 2)
	assert.Equal(t, "a", l.Rows[0][0].IntervalID, "rows are ordered by start")
	assert.Equal(t, "b", l.Rows[0][1].IntervalID)
}

func TestComputeLayout_ExcludesOutsideWindow(t *testing.T) {
	l, intervals, err := ComputeLayout([]model.RawAppointment{
		appt("early", "09:00", 30),
		appt("late", "14:00", 30),
		appt("now", "10:00", 30),
	}, testClock, testSpan, testOpts)
	require.NoError(t, err)

	assert.Len(t, intervals, 3, "hidden intervals are kept for later updates")
	assert.False(t, l.Contains("early"))
	assert.False(t, l.Contains("late"))
	assert.True(t, l.Contains("now"))
	assert.Equal(t, 1, l.RowCount)
	assert.Equal(t, 1, l.Positioned())
}

func TestComputeLayout_HiddenIntervalsDoNotAddRows(t *testing.T) {
	l, _, err := ComputeLayout([]model.RawAppointment{
		appt("hidden-1", "08:00", 30),
		appt("hidden-2", "08:10", 30),
		appt("hidden-3", "08:20", 30),
		appt("visible", "11:00", 30),
	}, testClock, testSpan, testOpts)
	require.NoError(t, err)

	assert.Equal(t, 1, l.RowCount)
	assert.Equal(t, 0, rowOf(l, "visible"))
}

func TestComputeLayout_InvalidTimestampIsWarned(t *testing.T) {
	bad := appt("bad", "10:00", 30)
	bad.StartDate = "2025-13-40"

	l, intervals, err := ComputeLayout([]model.RawAppointment{
		bad,
		appt("good", "10:00", 30),
	}, testClock, testSpan, testOpts)
	require.NoError(t, err)

	assert.Len(t, intervals, 1)
	assert.True(t, l.Contains("good"))
	assert.False(t, l.Contains("bad"))
	require.Len(t, l.Warnings, 1)
	assert.Equal(t, "bad", l.Warnings[0].ID)
	assert.Equal(t, ReasonInvalidTimestamp, l.Warnings[0].Reason)
	assert.NotEmpty(t, l.Warnings[0].Err)
}

func TestComputeLayout_DuplicateAndMissingIDs(t *testing.T) {
	dup := appt("a", "12:00", 30)
	dup.Label = "second copy"

	l, intervals, err := ComputeLayout([]model.RawAppointment{
		appt("a", "10:00", 30),
		dup,
		appt("", "10:00", 30),
	}, testClock, testSpan, testOpts)
	require.NoError(t, err)

	require.Len(t, intervals, 1)
	assert.Equal(t, "Visit a", intervals[0].Label, "first occurrence wins")

	reasons := map[string]bool{}
	for _, w := range l.Warnings {
		reasons[w.Reason] = true
	}
	assert.True(t, reasons[ReasonDuplicateID])
	assert.True(t, reasons[ReasonMissingID])
}

func TestComputeLayout_InvalidSpan(t *testing.T) {
	_, _, err := ComputeLayout([]model.RawAppointment{appt("a", "10:00", 30)}, testClock, 0, testOpts)
	assert.ErrorIs(t, err, ErrInvalidSpan)
}

func TestComputeLayout_Empty(t *testing.T) {
	l, _, err := ComputeLayout(nil, testClock, testSpan, testOpts)
	require.NoError(t, err)

	assert.Equal(t, 0, l.RowCount)
	assert.Empty(t, l.Rows)
	assert.Len(t, l.Buckets, testSpan)
}

func TestComputeLayout_Idempotent(t *testing.T) {
	raw := []model.RawAppointment{
		appt("a", "10:00", 45),
		appt("b", "10:30", 60),
		appt("c", "11:00", 15),
		appt("d", "12:40", 90),
	}

	first, _, err := ComputeLayout(raw, testClock, testSpan, testOpts)
	require.NoError(t, err)
	second, _, err := ComputeLayout(raw, testClock.Add(30), testSpan, testOpts)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestComputeLayout_BoxesStayInsideBuckets(t *testing.T) {
	raw := []model.RawAppointment{
		appt("a", "10:00", 60),
		appt("b", "10:59", 1),
		appt("c", "11:45", 120),
		appt("d", "12:58", 5),
	}

	l, _, err := ComputeLayout(raw, testClock, testSpan, testOpts)
	require.NoError(t, err)

	for _, row := range l.Rows {
		for _, p := range row {
			assert.GreaterOrEqual(t, p.LeftPercent, 0.0, p.IntervalID)
			assert.GreaterOrEqual(t, p.WidthPercent, MinWidthPercent, p.IntervalID)
			assert.LessOrEqual(t, p.WidthPercent, 100.0, p.IntervalID)
			if !p.Overflow {
				assert.LessOrEqual(t, p.LeftPercent+p.WidthPercent, 100.0+1e-9, p.IntervalID)
			}
		}
	}
}

func TestComputeLayout_SplitAcrossBuckets(t *testing.T) {
	opts := testOpts
	opts.SplitAcrossBuckets = true

	l, _, err := ComputeLayout([]model.RawAppointment{appt("long", "10:30", 90)}, testClock, testSpan, opts)
	require.NoError(t, err)

	require.Len(t, l.Rows, 1)
	require.Len(t, l.Rows[0], 2)
	assert.Equal(t, 0, l.Rows[0][0].BucketIndex)
	assert.Equal(t, 1, l.Rows[0][1].BucketIndex)
	assert.Equal(t, 1, l.Rows[0][1].Segment)
	assert.Equal(t, 1, l.RowCount)
}

func TestRecompute_CarriesDisplayFields(t *testing.T) {
	intervals := []Interval{{
		ID:      "a",
		Start:   at(10, 0),
		End:     at(10, 30),
		Label:   "Check-up",
		Patient: "J. Doe",
		Doctor:  "Dr. Kim",
		Status:  model.StatusArrived,
	}}

	l, err := Recompute(intervals, testClock, testSpan, testOpts)
	require.NoError(t, err)

	require.Len(t, l.Rows, 1)
	p := l.Rows[0][0]
	assert.Equal(t, "Check-up", p.Label)
	assert.Equal(t, "J. Doe", p.Patient)
	assert.Equal(t, "Dr. Kim", p.Doctor)
	assert.Equal(t, model.StatusArrived, p.Status)
	assert.Nil(t, l.Warnings)
}

func TestRecompute_DuplicateIDsFirstWins(t *testing.T) {
	intervals := []Interval{
		{ID: "a", Start: at(10, 0), End: at(10, 30)},
		{ID: "a", Start: at(10, 15), End: at(10, 45)},
		{ID: "b", Start: at(10, 20), End: at(10, 50)},
	}

	l, err := Recompute(intervals, testClock, testSpan, testOpts)
	require.NoError(t, err)

	assert.Equal(t, 2, l.RowCount)
	assert.Equal(t, 2, l.Positioned())
	require.Len(t, l.Rows[0], 1)
	assert.Equal(t, "a", l.Rows[0][0].IntervalID)
	assert.True(t, at(10, 0).Equal(l.Rows[0][0].Start))
	assert.Equal(t, 1, rowOf(l, "b"))
}
