package timeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeWindow_AlignsToHour(t *testing.T) {
	anchor := time.Date(2025, 1, 1, 10, 37, 12, 999, testLoc)

	w, err := ComputeWindow(anchor, 3, testLoc)
	require.NoError(t, err)

	assert.True(t, at(10, 0).Equal(w.Start))
	assert.True(t, at(13, 0).Equal(w.End))
	assert.Equal(t, 3, w.BucketCount)
	assert.Equal(t, int64(3_600_000), w.BucketDurationMs())
	assert.Equal(t, time.Duration(w.BucketCount)*w.BucketDuration, w.End.Sub(w.Start))
}

func TestComputeWindow_StableWithinHour(t *testing.T) {
	first, err := ComputeWindow(at(10, 1), 4, testLoc)
	require.NoError(t, err)
	second, err := ComputeWindow(at(10, 59), 4, testLoc)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestComputeWindow_InvalidSpan(t *testing.T) {
	for _, span := range []int{0, -1, -24} {
		_, err := ComputeWindow(testClock, span, testLoc)
		assert.ErrorIs(t, err, ErrInvalidSpan, "span %d", span)
	}
}

func TestComputeWindow_HalfHourZone(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	anchor := time.Date(2025, 1, 1, 10, 45, 0, 0, ist)

	w, err := ComputeWindow(anchor, 2, ist)
	require.NoError(t, err)

	assert.Equal(t, 10, w.Start.Hour())
	assert.Equal(t, 0, w.Start.Minute())
}

func TestComputeWindow_ConvertsAnchorIntoLocation(t *testing.T) {
	anchor := time.Date(2025, 1, 1, 15, 20, 0, 0, time.UTC) // 10:20 at UTC-5

	w, err := ComputeWindow(anchor, 1, testLoc)
	require.NoError(t, err)

	assert.True(t, at(10, 0).Equal(w.Start))
	assert.Equal(t, testLoc, w.Start.Location())
}

func TestComputeWindow_DSTSpringForward(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skip("tzdata not available")
	}
	anchor := time.Date(2025, 3, 30, 1, 30, 0, 0, berlin)

	w, err := ComputeWindow(anchor, 3, berlin)
	require.NoError(t, err)

	assert.Equal(t, 1, w.Start.Hour())
	assert.Equal(t, 3*time.Hour, w.End.Sub(w.Start))
	assert.Equal(t, 5, w.End.Hour(), "02:00 is skipped, so three elapsed hours end at 05:00")
}

func TestWindow_Buckets(t *testing.T) {
	w, err := ComputeWindow(testClock, 3, testLoc)
	require.NoError(t, err)

	buckets := w.Buckets()
	require.Len(t, buckets, 3)
	for i, b := range buckets {
		assert.Equal(t, i, b.Index)
		assert.Equal(t, time.Hour, b.End.Sub(b.Start))
	}
	assert.Equal(t, "10:00", buckets[0].Label)
	assert.Equal(t, "11:00", buckets[1].Label)
	assert.Equal(t, "12:00", buckets[2].Label)
	assert.True(t, buckets[2].End.Equal(w.End))
}

func TestWindow_ContainsAndIntersects(t *testing.T) {
	w, err := ComputeWindow(testClock, 3, testLoc)
	require.NoError(t, err)

	assert.True(t, w.Contains(at(10, 0)))
	assert.False(t, w.Contains(at(13, 0)))
	assert.False(t, w.Contains(at(9, 59)))

	assert.True(t, w.Intersects(Interval{Start: at(9, 30), End: at(10, 1)}))
	assert.False(t, w.Intersects(Interval{Start: at(9, 0), End: at(10, 0)}))
	assert.False(t, w.Intersects(Interval{Start: at(13, 0), End: at(13, 30)}))
}
