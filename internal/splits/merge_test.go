package splits

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge_noPriorRecords(t *testing.T) {
	run := recordWith("g", 10000, 22000, 31000)

	res, err := Merge(*run, nil, nil)
	require.NoError(t, err)
	assert.True(t, res.NewPB)
	assert.Equal(t, []int64{10000, 22000, 31000}, times(&res.SumOfBest))
	assert.Equal(t, []int64{10000, 22000, 31000}, times(res.PB))
	assert.Empty(t, res.Golds)
}

func TestMerge_minimumPerSegment(t *testing.T) {
	pb := recordWith("g", 10000, 25000, 40000)
	sob := recordWith("g", 9000, 23000, 38000)
	run := recordWith("g", 9500, 23500, 37000)

	res, err := Merge(*run, pb, sob)
	require.NoError(t, err)
	assert.True(t, res.NewPB)
	assert.Equal(t, []int64{9000, 23000, 36500}, times(&res.SumOfBest))
	assert.Equal(t, []int{2}, res.Golds)
}

func TestIsNewPB(t *testing.T) {
	run := recordWith("g", 1, 2, 100)

	assert.True(t, IsNewPB(*run, nil), "no pb")
	assert.True(t, IsNewPB(*run, recordWith("g", 1, 2, 101)), "faster")
	assert.False(t, IsNewPB(*run, recordWith("g", 1, 2, 100)), "tie")
	assert.False(t, IsNewPB(*run, recordWith("g", 1, 2, 99)), "slower")
	assert.True(t, IsNewPB(*run, recordWith("g", 1, 2, -1)), "pb without final time")
}

func TestMerge_notPBKeepsOldPB(t *testing.T) {
	pb := recordWith("g", 1000, 2000, 3000)
	run := recordWith("g", 500, 2500, 4000)

	res, err := Merge(*run, pb, nil)
	require.NoError(t, err)
	assert.False(t, res.NewPB)
	assert.Equal(t, []int64{1000, 2000, 3000}, times(res.PB))
}

func TestMerge_sumOfBestNeverIncreases(t *testing.T) {
	runs := [][]int64{
		{10000, 22000, 31000},
		{12000, 20000, 35000},
		{9000, 25000, 30000},
		{15000, 26000, 32000},
	}

	var sob *Record
	var prevSegs []int64
	for n, rt := range runs {
		run := recordWith("g", rt...)
		res, err := Merge(*run, nil, sob)
		require.NoError(t, err)

		segs := make([]int64, len(testSeq))
		for i := range testSeq {
			seg, ok := res.SumOfBest.Segment(i)
			require.True(t, ok)
			runSeg, _ := run.Segment(i)
			want := runSeg
			if prevSegs != nil && prevSegs[i] < want {
				want = prevSegs[i]
			}
			assert.Equal(t, want, seg, "run %d segment %d", n, i)
			if prevSegs != nil {
				assert.LessOrEqual(t, seg, prevSegs[i], "run %d segment %d increased", n, i)
			}
			segs[i] = seg
		}
		prevSegs = segs
		s := res.SumOfBest
		sob = &s
	}
	assert.Equal(t, []int64{9000, 17000, 22000}, times(sob))
}

func TestMerge_sumOfBestMissingSegmentCountsAsInfinite(t *testing.T) {
	sob := recordWith("g", 5000, -1, 20000)
	run := recordWith("g", 6000, 12000, 18000)

	res, err := Merge(*run, nil, sob)
	require.NoError(t, err)
	// segment B and C have no old data and take the run's segments.
	assert.Equal(t, []int64{5000, 11000, 17000}, times(&res.SumOfBest))
}

func TestMerge_rejectsBadInput(t *testing.T) {
	_, err := Merge(*recordWith("g", 1, -1, 3), nil, nil)
	assert.ErrorIs(t, err, ErrIncompleteRun)

	other := NewRecord("g", SectionSequence{"A", "B", "D"})
	_, err = Merge(*recordWith("g", 1, 2, 3), &other, nil)
	assert.ErrorIs(t, err, ErrConfigMismatch)
	_, err = Merge(*recordWith("g", 1, 2, 3), nil, &other)
	assert.ErrorIs(t, err, ErrConfigMismatch)
}

func TestEngine_Finalize_persists(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	engine := NewEngine(store, nil, nil)

	first := recordWith("g", 10000, 22000, 31000)
	res, err := engine.Finalize(ctx, *first, nil, nil)
	require.NoError(t, err)
	require.True(t, res.NewPB)

	pb, sob, err := store.Load(ctx, "g", testSeq)
	require.NoError(t, err)
	assert.Equal(t, []int64{10000, 22000, 31000}, times(pb))
	assert.Equal(t, []int64{10000, 22000, 31000}, times(sob))

	second := recordWith("g", 9000, 25000, 35000)
	second.StartedAt = first.StartedAt.Add(1)
	res, err = engine.Finalize(ctx, *second, pb, sob)
	require.NoError(t, err)
	assert.False(t, res.NewPB)

	pb, sob, err = store.Load(ctx, "g", testSeq)
	require.NoError(t, err)
	assert.Equal(t, []int64{10000, 22000, 31000}, times(pb), "pb unchanged")
	assert.Equal(t, []int64{9000, 21000, 30000}, times(sob))

	hist, err := store.History(ctx, "g")
	require.NoError(t, err)
	assert.Len(t, hist, 2)
}

func TestEngine_Finalize_attemptsEveryWrite(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	diskFull := errors.New("disk full")
	store.FailWrites(KindPB, diskFull)
	engine := NewEngine(store, nil, nil)

	run := recordWith("g", 1000, 2000, 3000)
	res, err := engine.Finalize(ctx, *run, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, diskFull)
	assert.True(t, res.NewPB, "result is still computed")
	assert.Equal(t, []string{KindHistory, KindSumOfBest}, res.Persisted)

	hist, _ := store.History(ctx, "g")
	assert.Len(t, hist, 1, "history written despite pb failure")
	_, sob, _ := store.Load(ctx, "g", testSeq)
	assert.NotNil(t, sob, "sum of best written despite pb failure")
}
