package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pickleball/internal/corpus"
	"github.com/roach88/pickleball/internal/ir"
)

var (
	dictTrace = ir.Trace{
		ir.GlobalResolved{Name: "collections.OrderedDict"},
		ir.ReduceInvoked{Callable: "collections.OrderedDict", Bare: "OrderedDict", Argc: 0},
	}
	tensorTrace = ir.Trace{
		ir.GlobalResolved{Name: "torch._utils._rebuild_tensor_v2"},
		ir.GlobalResolved{Name: "torch.FloatStorage"},
		ir.ReduceInvoked{Callable: "torch._utils._rebuild_tensor_v2", Bare: "_rebuild_tensor_v2", Argc: 6},
	}
)

// TestCreateRun_Idempotent tests that a duplicate run id is ignored.
func TestCreateRun_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	run := createTestRun("run-1", "torch")
	require.NoError(t, s.CreateRun(ctx, run))
	require.NoError(t, s.CreateRun(ctx, run))

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "torch", runs[0].ClassID)
	assert.Equal(t, run.StartedAt, runs[0].StartedAt)
	assert.False(t, runs[0].Finished())
}

func TestCreateRun_EmptyID(t *testing.T) {
	s := createTestStore(t)
	assert.Error(t, s.CreateRun(context.Background(), Run{ClassID: "torch"}))
}

// TestWriteResults_RoundTrip tests that sample traces survive the CBOR
// encoding and keep their order and status.
func TestWriteResults_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateRun(ctx, createTestRun("run-1", "torch")))

	results := []corpus.Result{
		okResult(t, "torch", "a.pt!archive/data.pkl", tensorTrace),
		failedResult("b.pt", "zip: not a valid zip file"),
		okResult(t, "torch", "c.pkl", dictTrace),
		{Sample: "d.pkl", Status: corpus.StatusSkipped, Err: assert.AnError},
	}
	require.NoError(t, s.WriteResults(ctx, "run-1", results))

	samples, err := s.ReadSamples(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, samples, 4)

	for i, sr := range samples {
		assert.Equal(t, i, sr.Seq)
		assert.Equal(t, results[i].Sample, sr.Name)
		assert.Equal(t, results[i].Status, sr.Status)
		assert.Equal(t, results[i].Digest, sr.Digest)
	}
	assert.Equal(t, tensorTrace, samples[0].Trace)
	assert.Equal(t, dictTrace, samples[2].Trace)
	assert.Nil(t, samples[1].Trace)
	assert.Equal(t, "zip: not a valid zip file", samples[1].Error)
	assert.Equal(t, assert.AnError.Error(), samples[3].Error)
}

func TestWriteResults_UnknownRun(t *testing.T) {
	s := createTestStore(t)
	err := s.WriteResults(context.Background(), "missing", []corpus.Result{failedResult("a", "x")})
	assert.Error(t, err)
}

func TestReadSamples_EmptyRun(t *testing.T) {
	s := createTestStore(t)

	samples, err := s.ReadSamples(context.Background(), "nothing")
	require.NoError(t, err)
	assert.NotNil(t, samples)
	assert.Empty(t, samples)
}

func TestCounts(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateRun(ctx, createTestRun("run-1", "lib")))
	require.NoError(t, s.WriteResults(ctx, "run-1", []corpus.Result{
		okResult(t, "lib", "a", dictTrace),
		okResult(t, "lib", "b", dictTrace),
		failedResult("c", "boom"),
	}))

	counts, err := s.Counts(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, map[corpus.Status]int{corpus.StatusOK: 2, corpus.StatusFailed: 1}, counts)
}

// TestFinishRun_PolicyMatchesRebuild tests that the recorded policy equals
// the policy re-extracted from the stored traces.
func TestFinishRun_PolicyMatchesRebuild(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateRun(ctx, createTestRun("run-1", "torch")))

	results := []corpus.Result{
		okResult(t, "torch", "a", tensorTrace),
		okResult(t, "torch", "b", dictTrace),
		failedResult("c", "boom"),
	}
	require.NoError(t, s.WriteResults(ctx, "run-1", results))

	want := corpus.Aggregate(results)
	require.NoError(t, s.FinishRun(ctx, "run-1", want))

	run, err := s.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, run.Finished())
	assert.True(t, want.Equal(run.Policy), "stored policy differs")

	digest, err := want.Digest()
	require.NoError(t, err)
	assert.Equal(t, digest, run.PolicyDigest)

	rebuilt, err := s.RebuildPolicy(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, want.Equal(rebuilt), "rebuilt policy differs")
}

func TestFinishRun_UnknownRun(t *testing.T) {
	s := createTestStore(t)
	err := s.FinishRun(context.Background(), "missing", corpus.Aggregate(nil))
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestReadRun_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.ReadRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

// TestListRuns_Order tests that runs come back in id order, which is
// creation order for UUIDv7 ids.
func TestListRuns_Order(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"0190-c", "0190-a", "0190-b"} {
		require.NoError(t, s.CreateRun(ctx, createTestRun(id, "lib")))
	}

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"0190-a", "0190-b", "0190-c"}, ids)
}

func TestSamplesByDigest(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"run-1", "run-2"} {
		require.NoError(t, s.CreateRun(ctx, createTestRun(id, "lib")))
		require.NoError(t, s.WriteResults(ctx, id, []corpus.Result{
			okResult(t, "lib", "tensor", tensorTrace),
			okResult(t, "lib", "dict", dictTrace),
		}))
	}

	digest, err := dictTrace.Digest()
	require.NoError(t, err)

	matches, err := s.SamplesByDigest(ctx, digest)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "run-1", matches[0].RunID)
	assert.Equal(t, "run-2", matches[1].RunID)
	assert.Equal(t, "dict", matches[0].Name)
}
