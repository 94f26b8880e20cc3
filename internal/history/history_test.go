package history

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/observatory/internal/schema"
)

func point(gen uint64) schema.HistoryPoint {
	return schema.HistoryPoint{Generation: gen, AvgFitness: 0.5, Timestamp: int64(gen) * 1000}
}

func TestAppendEvictsOldestBeyondCapacity(t *testing.T) {
	buf := NewBuffer(50)
	for gen := uint64(0); gen < 60; gen++ {
		buf.Append(point(gen))
	}

	require.Equal(t, 50, buf.Len())
	points := buf.Points()
	require.EqualValues(t, 10, points[0].Generation, "first 10 points must be evicted")
	require.EqualValues(t, 59, points[len(points)-1].Generation)
	for i := 1; i < len(points); i++ {
		require.Equal(t, points[i-1].Generation+1, points[i].Generation, "survivor order must be preserved")
	}
}

func TestSeriesIsRestartableAndDetached(t *testing.T) {
	buf := NewBuffer(4)
	buf.Append(point(1))
	buf.Append(point(2))

	series := buf.Series()
	buf.Append(point(3))

	for pass := 0; pass < 2; pass++ {
		var gens []uint64
		for p := range series {
			gens = append(gens, p.Generation)
		}
		require.Equal(t, []uint64{1, 2}, gens, "pass %d", pass)
	}
}

func TestSeriesEarlyBreak(t *testing.T) {
	buf := NewBuffer(8)
	for gen := uint64(0); gen < 5; gen++ {
		buf.Append(point(gen))
	}
	count := 0
	for range buf.Series() {
		count++
		if count == 2 {
			break
		}
	}
	require.Equal(t, 2, count)
}

func TestPointsCopyDoesNotAliasBuffer(t *testing.T) {
	buf := NewBuffer(4)
	buf.Append(point(1))
	points := buf.Points()
	points[0].Generation = 99
	require.EqualValues(t, 1, buf.Points()[0].Generation)
}

func TestClearEmptiesBuffer(t *testing.T) {
	buf := NewBuffer(4)
	buf.Append(point(1))
	buf.Clear()
	require.Zero(t, buf.Len())
	buf.Append(point(2))
	require.Equal(t, 1, buf.Len())
}

func TestNewBufferDefaultsCapacity(t *testing.T) {
	buf := NewBuffer(0)
	for gen := uint64(0); gen < 80; gen++ {
		buf.Append(point(gen))
	}
	require.Equal(t, DefaultCapacity, buf.Len())
}
