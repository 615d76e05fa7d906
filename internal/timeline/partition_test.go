package timeline

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func iv(id string, startH, startM, endH, endM int) Interval {
	return Interval{ID: id, Start: at(startH, startM), End: at(endH, endM)}
}

func TestAssignRows_Overlapping(t *testing.T) {
	rows := AssignRows([]Interval{
		iv("b", 10, 15, 10, 45),
		iv("a", 10, 0, 10, 30),
	})

	assert.Equal(t, 0, rows["a"])
	assert.Equal(t, 1, rows["b"])
	assert.Equal(t, 2, rows.RowCount())
}

func TestAssignRows_BackToBackShareRow(t *testing.T) {
	rows := AssignRows([]Interval{
		iv("a", 10, 0, 10, 20),
		iv("b", 10, 20, 10, 40),
		iv("c", 10, 5, 10, 25),
	})

	assert.Equal(t, 0, rows["a"])
	assert.Equal(t, 0, rows["b"])
	assert.Equal(t, 1, rows["c"])
	assert.Equal(t, 2, rows.RowCount())
}

func TestAssignRows_TiesBrokenByID(t *testing.T) {
	rows := AssignRows([]Interval{
		iv("z", 10, 0, 10, 30),
		iv("m", 10, 0, 10, 30),
		iv("a", 10, 0, 10, 30),
	})

	assert.Equal(t, RowAssignment{"a": 0, "m": 1, "z": 2}, rows)
}

func TestAssignRows_ReusesFirstFreeRow(t *testing.T) {
	rows := AssignRows([]Interval{
		iv("long", 10, 0, 12, 0),
		iv("short", 10, 0, 10, 30),
		iv("third", 10, 10, 10, 40),
		iv("late", 10, 45, 11, 0),
	})

	assert.Equal(t, 0, rows["long"])
	assert.Equal(t, 1, rows["short"])
	assert.Equal(t, 2, rows["third"])
	assert.Equal(t, 1, rows["late"], "row 1 frees up first")
	assert.Equal(t, 3, rows.RowCount())
}

func TestAssignRows_Empty(t *testing.T) {
	rows := AssignRows(nil)
	assert.Empty(t, rows)
	assert.Equal(t, 0, rows.RowCount())
}

func TestAssignRows_DoesNotMutateInput(t *testing.T) {
	in := []Interval{iv("b", 11, 0, 11, 30), iv("a", 10, 0, 10, 30)}
	_ = AssignRows(in)
	assert.Equal(t, "b", in[0].ID)
	assert.Equal(t, "a", in[1].ID)
}

func TestMaxOverlap(t *testing.T) {
	assert.Equal(t, 0, MaxOverlap(nil))
	assert.Equal(t, 1, MaxOverlap([]Interval{iv("a", 10, 0, 10, 20), iv("b", 10, 20, 10, 40)}))
	assert.Equal(t, 3, MaxOverlap([]Interval{
		iv("a", 10, 0, 11, 0),
		iv("b", 10, 10, 10, 50),
		iv("c", 10, 20, 10, 30),
		iv("d", 10, 50, 11, 30),
	}))
}

func randomIntervals(rng *rand.Rand, n int) []Interval {
	out := make([]Interval, 0, n)
	for i := 0; i < n; i++ {
		start := at(8, 0).Add(time.Duration(rng.Intn(8*12)) * 5 * time.Minute)
		dur := time.Duration(1+rng.Intn(18)) * 5 * time.Minute
		out = append(out, Interval{ID: fmt.Sprintf("iv-%03d", i), Start: start, End: start.Add(dur)})
	}
	return out
}

func TestAssignRows_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 200; round++ {
		intervals := randomIntervals(rng, 1+rng.Intn(40))
		rows := AssignRows(intervals)

		require.Len(t, rows, len(intervals))
		assert.Equal(t, MaxOverlap(intervals), rows.RowCount(), "round %d: row count must be optimal", round)

		for i := range intervals {
			for j := i + 1; j < len(intervals); j++ {
				a, b := intervals[i], intervals[j]
				if rows[a.ID] == rows[b.ID] {
					assert.False(t, a.Overlaps(b), "round %d: %s and %s overlap on row %d", round, a.ID, b.ID, rows[a.ID])
				}
			}
		}
	}
}
