package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/urlclean/internal/cleaner"
	"github.com/mattjoyce/urlclean/internal/log"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR") // Suppress logs in tests
	os.Exit(m.Run())
}

// fakeDesc is the descriptor understood by fakeEngine.
type fakeDesc struct {
	ID    int    `json:"id"`
	Fail  string `json:"fail,omitempty"`  // "build" or "run"
	Panic string `json:"panic,omitempty"` // "build" or "run"
	Delay int    `json:"delay_us,omitempty"`
}

type fakeEngine struct {
	mu    sync.Mutex
	built map[int]int
	ran   map[int]int
	gate  chan struct{} // when set, every Run waits for it to close
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{built: map[int]int{}, ran: map[int]int{}}
}

func (e *fakeEngine) Build(descriptor json.RawMessage) (Job, error) {
	var desc fakeDesc
	if err := json.Unmarshal(descriptor, &desc); err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.built[desc.ID]++
	e.mu.Unlock()

	if desc.Panic == "build" {
		panic(fmt.Sprintf("build %d exploded", desc.ID))
	}
	if desc.Fail == "build" {
		return nil, fmt.Errorf("build %d failed", desc.ID)
	}
	return &fakeJob{desc: desc, engine: e}, nil
}

type fakeJob struct {
	desc   fakeDesc
	engine *fakeEngine
}

func (j *fakeJob) Run(ctx context.Context) (string, error) {
	j.engine.mu.Lock()
	j.engine.ran[j.desc.ID]++
	j.engine.mu.Unlock()

	if j.engine.gate != nil {
		<-j.engine.gate
	}
	if j.desc.Delay > 0 {
		time.Sleep(time.Duration(j.desc.Delay) * time.Microsecond)
	}
	if j.desc.Panic == "run" {
		panic(fmt.Sprintf("run %d exploded", j.desc.ID))
	}
	if j.desc.Fail == "run" {
		return "", fmt.Errorf("run %d failed", j.desc.ID)
	}
	return fmt.Sprintf("job-%d", j.desc.ID), nil
}

type preparerFunc func(diff *cleaner.ParamsDiff, batch cleaner.JobContext) (Engine, error)

func (f preparerFunc) Prepare(diff *cleaner.ParamsDiff, batch cleaner.JobContext) (Engine, error) {
	return f(diff, batch)
}

func staticPreparer(e Engine) Preparer {
	return preparerFunc(func(*cleaner.ParamsDiff, cleaner.JobContext) (Engine, error) {
		return e, nil
	})
}

func makeJobs(t *testing.T, descs []fakeDesc) []json.RawMessage {
	t.Helper()
	jobs := make([]json.RawMessage, len(descs))
	for i, desc := range descs {
		data, err := json.Marshal(desc)
		require.NoError(t, err)
		jobs[i] = data
	}
	return jobs
}

// expected returns the result fakeEngine produces for desc.
func expected(desc fakeDesc) (Outcome, string) {
	switch {
	case desc.Fail == "build" || desc.Panic == "build":
		return OutcomeBuildFailed, ""
	case desc.Fail == "run" || desc.Panic == "run":
		return OutcomeRunFailed, ""
	default:
		return OutcomeSucceeded, fmt.Sprintf("job-%d", desc.ID)
	}
}

func assertResults(t *testing.T, descs []fakeDesc, results []JobResult) {
	t.Helper()
	require.Len(t, results, len(descs))
	for i, desc := range descs {
		outcome, value := expected(desc)
		assert.Equal(t, outcome, results[i].Outcome, "job %d outcome", i)
		assert.Equal(t, value, results[i].Value, "job %d value", i)
		if outcome == OutcomeSucceeded {
			assert.NoError(t, results[i].Err, "job %d", i)
		} else {
			assert.Error(t, results[i].Err, "job %d", i)
		}
	}
}

func TestRunPreservesOrder(t *testing.T) {
	patterns := map[string]func(i int) fakeDesc{
		"all succeed": func(i int) fakeDesc {
			return fakeDesc{ID: i}
		},
		"every third build fails": func(i int) fakeDesc {
			s := fakeDesc{ID: i}
			if i%3 == 0 {
				s.Fail = "build"
			}
			return s
		},
		"alternating run fails": func(i int) fakeDesc {
			s := fakeDesc{ID: i}
			if i%2 == 1 {
				s.Fail = "run"
			}
			return s
		},
	}

	for _, width := range []int{1, 2, 3, 5} {
		for _, n := range []int{0, 1, width - 1, width, width + 1, 2 * width, 37} {
			for name, pattern := range patterns {
				t.Run(fmt.Sprintf("W=%d/N=%d/%s", width, n, name), func(t *testing.T) {
					descs := make([]fakeDesc, n)
					for i := range descs {
						descs[i] = pattern(i)
						// Later jobs finish sooner so completion order differs from submission order.
						descs[i].Delay = (n - i) % 4 * 200
					}

					engine := newFakeEngine()
					pool := New(width, staticPreparer(engine))
					results, err := pool.Run(context.Background(), BulkJob{Jobs: makeJobs(t, descs)})
					require.NoError(t, err)
					assertResults(t, descs, results)
				})
			}
		}
	}
}

// TestRunPreservesOrderForEveryOutcomeMix tries every assignment of
// succeed / build-fail / run-fail to small batches at each width.
func TestRunPreservesOrderForEveryOutcomeMix(t *testing.T) {
	failures := []string{"", "build", "run"}

	for _, width := range []int{1, 2, 3, 5} {
		for n := 0; n <= 6; n++ {
			t.Run(fmt.Sprintf("W=%d/N=%d", width, n), func(t *testing.T) {
				pool := New(width, staticPreparer(newFakeEngine()))

				combos := 1
				for i := 0; i < n; i++ {
					combos *= len(failures)
				}
				for mix := 0; mix < combos; mix++ {
					descs := make([]fakeDesc, n)
					code := mix
					for i := range descs {
						descs[i] = fakeDesc{ID: i, Fail: failures[code%len(failures)]}
						code /= len(failures)
					}

					results, err := pool.Run(context.Background(), BulkJob{Jobs: makeJobs(t, descs)})
					require.NoError(t, err, "mix %d", mix)
					assertResults(t, descs, results)
				}
				assert.Equal(t, uint64(combos), pool.Batches())
			})
		}
	}
}

func TestRunProcessesEachJobOnce(t *testing.T) {
	const n = 50
	descs := make([]fakeDesc, n)
	for i := range descs {
		descs[i] = fakeDesc{ID: i}
		if i%7 == 0 {
			descs[i].Fail = "build"
		}
	}

	engine := newFakeEngine()
	pool := New(4, staticPreparer(engine))
	_, err := pool.Run(context.Background(), BulkJob{Jobs: makeJobs(t, descs)})
	require.NoError(t, err)

	engine.mu.Lock()
	defer engine.mu.Unlock()
	for i, desc := range descs {
		assert.Equal(t, 1, engine.built[i], "job %d built", i)
		if desc.Fail == "build" {
			assert.Zero(t, engine.ran[i], "job %d should not run", i)
		} else {
			assert.Equal(t, 1, engine.ran[i], "job %d ran", i)
		}
	}
}

func TestRunEmptyBatch(t *testing.T) {
	before := runtime.NumGoroutine()

	pool := New(8, staticPreparer(newFakeEngine()))
	results, err := pool.Run(context.Background(), BulkJob{})
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)

	// Poll from this goroutine; helpers that poll in their own goroutine
	// would count themselves.
	deadline := time.Now().Add(time.Second)
	for runtime.NumGoroutine() > before && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.LessOrEqual(t, runtime.NumGoroutine(), before, "batch goroutines still running")
}

func TestRunMixedOutcomes(t *testing.T) {
	descs := []fakeDesc{
		{ID: 0, Fail: "build"},
		{ID: 1, Fail: "run"},
		{ID: 2, Fail: "build"},
		{ID: 3, Fail: "run"},
		{ID: 4, Fail: "build"},
		{ID: 5},
	}

	pool := New(2, staticPreparer(newFakeEngine()))
	results, err := pool.Run(context.Background(), BulkJob{Jobs: makeJobs(t, descs)})
	require.NoError(t, err)
	assertResults(t, descs, results)

	assert.Equal(t, OutcomeBuildFailed, results[0].Outcome)
	assert.Equal(t, OutcomeRunFailed, results[1].Outcome)
	assert.True(t, results[5].OK())
}

func TestRunWidthDoesNotChangeResults(t *testing.T) {
	descs := make([]fakeDesc, 23)
	for i := range descs {
		descs[i] = fakeDesc{ID: i, Delay: i % 5 * 100}
		switch i % 4 {
		case 1:
			descs[i].Fail = "build"
		case 2:
			descs[i].Fail = "run"
		}
	}
	jobs := makeJobs(t, descs)

	narrow, err := New(1, staticPreparer(newFakeEngine())).Run(context.Background(), BulkJob{Jobs: jobs})
	require.NoError(t, err)
	wide, err := New(8, staticPreparer(newFakeEngine())).Run(context.Background(), BulkJob{Jobs: jobs})
	require.NoError(t, err)

	require.Len(t, wide, len(narrow))
	for i := range narrow {
		assert.Equal(t, narrow[i].Outcome, wide[i].Outcome, "job %d", i)
		assert.Equal(t, narrow[i].Value, wide[i].Value, "job %d", i)
		if narrow[i].Err != nil {
			require.Error(t, wide[i].Err, "job %d", i)
			assert.Equal(t, narrow[i].Err.Error(), wide[i].Err.Error(), "job %d", i)
		}
	}
}

func TestRunWaitsForHungJob(t *testing.T) {
	engine := newFakeEngine()
	engine.gate = make(chan struct{})
	pool := New(2, staticPreparer(engine))
	jobs := makeJobs(t, []fakeDesc{{ID: 0}, {ID: 1}, {ID: 2}})

	var (
		results []JobResult
		err     error
	)
	done := make(chan struct{})
	go func() {
		results, err = pool.Run(context.Background(), BulkJob{Jobs: jobs})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("batch finished while jobs were still blocked")
	case <-time.After(100 * time.Millisecond):
	}

	close(engine.gate)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("batch did not finish after jobs were released")
	}
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestRunContainsPanics(t *testing.T) {
	descs := []fakeDesc{
		{ID: 0},
		{ID: 1, Panic: "build"},
		{ID: 2, Panic: "run"},
		{ID: 3},
	}

	pool := New(3, staticPreparer(newFakeEngine()))
	results, err := pool.Run(context.Background(), BulkJob{Jobs: makeJobs(t, descs)})
	require.NoError(t, err)
	assertResults(t, descs, results)

	var perr *PanicError
	require.True(t, errors.As(results[1].Err, &perr))
	assert.Equal(t, "build", perr.Phase)
	require.True(t, errors.As(results[2].Err, &perr))
	assert.Equal(t, "run", perr.Phase)
	assert.Contains(t, perr.Error(), "run 2 exploded")
}

func TestRunPrepareError(t *testing.T) {
	boom := errors.New("bad diff")
	pool := New(2, preparerFunc(func(*cleaner.ParamsDiff, cleaner.JobContext) (Engine, error) {
		return nil, boom
	}))

	results, err := pool.Run(context.Background(), BulkJob{Jobs: makeJobs(t, []fakeDesc{{ID: 0}})})
	require.ErrorIs(t, err, boom)
	assert.Nil(t, results)
}

func TestRunPassesBatchToPreparer(t *testing.T) {
	diff := &cleaner.ParamsDiff{Flags: []string{"x"}}
	batch := cleaner.JobContext{Vars: map[string]string{"k": "v"}}

	var calls int
	pool := New(2, preparerFunc(func(d *cleaner.ParamsDiff, b cleaner.JobContext) (Engine, error) {
		calls++
		assert.Same(t, diff, d)
		assert.Equal(t, batch, b)
		return newFakeEngine(), nil
	}))

	_, err := pool.Run(context.Background(), BulkJob{
		Jobs:       makeJobs(t, []fakeDesc{{ID: 0}, {ID: 1}, {ID: 2}}),
		ParamsDiff: diff,
		Context:    batch,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestPoolWidthAndCounter(t *testing.T) {
	assert.Equal(t, runtime.NumCPU(), New(0, nil).Width())
	assert.Equal(t, runtime.NumCPU(), New(-3, nil).Width())

	pool := New(3, staticPreparer(newFakeEngine()))
	assert.Equal(t, 3, pool.Width())
	assert.Zero(t, pool.Batches())

	for range 2 {
		_, err := pool.Run(context.Background(), BulkJob{})
		require.NoError(t, err)
	}
	assert.Equal(t, uint64(2), pool.Batches())
}

func TestTraceContext(t *testing.T) {
	assert.Empty(t, TraceFromContext(context.Background()))
	ctx := WithTrace(context.Background(), "abc")
	assert.Equal(t, "abc", TraceFromContext(ctx))
}

func TestRunWithCleaner(t *testing.T) {
	pool := New(3, CleanerPreparer{Cleaner: cleaner.New(cleaner.Default())})

	jobs := []json.RawMessage{
		json.RawMessage(`"https://example.com/a?utm_source=x&id=1"`),
		json.RawMessage(`"relative/path"`),
		json.RawMessage(`{"url": "https://www.example.org/b#frag", "context": {"vars": {"alt_text": "unused"}}}`),
		json.RawMessage(`42`),
		json.RawMessage(`"https://www.google.com/url?q=not-absolute"`),
	}
	results, err := pool.Run(context.Background(), BulkJob{
		Jobs:       jobs,
		ParamsDiff: &cleaner.ParamsDiff{Flags: []string{"strip_www", "remove_fragments"}},
	})
	require.NoError(t, err)
	require.Len(t, results, len(jobs))

	assert.Equal(t, JobResult{Outcome: OutcomeSucceeded, Value: "https://example.com/a?id=1"}, results[0])

	assert.Equal(t, OutcomeBuildFailed, results[1].Outcome)
	assert.ErrorIs(t, results[1].Err, cleaner.ErrRelativeURL)

	assert.Equal(t, "https://example.org/b", results[2].Value)

	assert.Equal(t, OutcomeBuildFailed, results[3].Outcome)
	assert.ErrorIs(t, results[3].Err, cleaner.ErrInvalidDescriptor)

	assert.Equal(t, OutcomeRunFailed, results[4].Outcome)
	var runErr *cleaner.RunError
	require.True(t, errors.As(results[4].Err, &runErr))
	assert.Equal(t, "google-redirect", runErr.Rule)
	assert.ErrorIs(t, results[4].Err, cleaner.ErrRelativeURL)
}
