package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avisser/pulseframe-api/internal/gen"
	"github.com/avisser/pulseframe-api/internal/job"
	"github.com/avisser/pulseframe-api/internal/script"
	"github.com/avisser/pulseframe-api/internal/storage"
	"github.com/avisser/pulseframe-api/internal/wait"
)

// itemScript builds a valid script whose start prompt names the item, so the
// fake service can derive a deterministic job ID from it.
func itemScript(i int) *script.Script {
	return script.New().AddStart(fmt.Sprintf("item-%d", i), 0).AddEnd(1000)
}

// fakeGenService completes every job on the first poll. Submit latency is
// configurable per item so tests can force out-of-order completion, and the
// high-water mark of concurrent items is tracked to verify the ceiling.
type fakeGenService struct {
	mu        sync.Mutex
	latencies map[string]time.Duration
	failFor   map[string]error

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newFakeGenService() *fakeGenService {
	return &fakeGenService{
		latencies: make(map[string]time.Duration),
		failFor:   make(map[string]error),
	}
}

func (f *fakeGenService) enter() {
	cur := f.inFlight.Add(1)
	for {
		max := f.maxInFlight.Load()
		if cur <= max || f.maxInFlight.CompareAndSwap(max, cur) {
			return
		}
	}
}

func (f *fakeGenService) Submit(_ context.Context, sc *script.Script, _ gen.SubmitOptions) (string, error) {
	prompt := sc.Actions[0].Start.Prompt
	f.enter()

	f.mu.Lock()
	latency := f.latencies[prompt]
	err := f.failFor[prompt]
	f.mu.Unlock()

	if latency > 0 {
		time.Sleep(latency)
	}
	if err != nil {
		f.inFlight.Add(-1)
		return "", err
	}
	return "job-" + prompt, nil
}

func (f *fakeGenService) PollStatus(_ context.Context, jobID string) (gen.PollStatusResult, error) {
	defer f.inFlight.Add(-1)
	return gen.PollStatusResult{
		Status: gen.StatusCompleted,
		Refs: []gen.MediaRef{{
			StreamID:     jobID + "-s0",
			VideoURL:     "http://media.test/" + jobID + ".mp4",
			ThumbnailURL: "http://media.test/" + jobID + ".jpg",
		}},
	}, nil
}

func (f *fakeGenService) Cancel(context.Context, string) error { return nil }
func (f *fakeGenService) Connect(context.Context, gen.FrameFunc, gen.ErrorFunc) error {
	return nil
}
func (f *fakeGenService) StartStream(context.Context, string, gen.Orientation, string) (string, error) {
	return "", gen.ErrNotConnected
}
func (f *fakeGenService) Interact(context.Context, string) error { return gen.ErrNotConnected }
func (f *fakeGenService) EndStream(context.Context) error        { return nil }
func (f *fakeGenService) Disconnect(context.Context) error       { return nil }
func (f *fakeGenService) FetchRecording(_ context.Context, streamID string) (gen.MediaRef, error) {
	return gen.MediaRef{StreamID: streamID}, nil
}

// fakeFetcher records requested URLs without touching the network. onFetch,
// when set, fires once on the first download.
type fakeFetcher struct {
	mu      sync.Mutex
	urls    []string
	onFetch func()
	once    sync.Once
}

func (f *fakeFetcher) Fetch(_ context.Context, url, _ string) error {
	f.mu.Lock()
	f.urls = append(f.urls, url)
	f.mu.Unlock()
	if f.onFetch != nil {
		f.once.Do(f.onFetch)
	}
	return nil
}

func newTestScheduler(t *testing.T, svc *fakeGenService, fetcher *fakeFetcher) (*Scheduler, *job.Registry) {
	t.Helper()
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	registry := job.NewRegistry()
	sched := New(svc, wait.New(svc, nil), fetcher, registry, store, Options{
		PollInterval: 5 * time.Millisecond,
	}, nil)
	return sched, registry
}

func TestScheduler_ProcessBatch_Empty(t *testing.T) {
	svc := newFakeGenService()
	sched, _ := newTestScheduler(t, svc, &fakeFetcher{})

	results := sched.ProcessBatch(context.Background(), nil, 2)

	assert.Empty(t, results)
}

func TestScheduler_ProcessBatch_OrderPreserved(t *testing.T) {
	svc := newFakeGenService()
	// the first item finishes last
	svc.latencies["item-0"] = 60 * time.Millisecond
	sched, _ := newTestScheduler(t, svc, &fakeFetcher{})

	scripts := []*script.Script{itemScript(0), itemScript(1), itemScript(2)}
	results := sched.ProcessBatch(context.Background(), scripts, 3)

	require.Len(t, results, 3)
	for i, res := range results {
		assert.Equal(t, i, res.Index)
		assert.Equal(t, ResultSuccess, res.Status)
		assert.Equal(t, fmt.Sprintf("job-item-%d", i), res.JobID)
	}
}

func TestScheduler_ProcessBatch_DownloadsNamedArtifacts(t *testing.T) {
	svc := newFakeGenService()
	fetcher := &fakeFetcher{}
	sched, registry := newTestScheduler(t, svc, fetcher)

	results := sched.ProcessBatch(context.Background(), []*script.Script{itemScript(0)}, 1)

	require.Len(t, results, 1)
	res := results[0]
	require.Equal(t, ResultSuccess, res.Status)
	require.Len(t, res.Files, 2)
	assert.Contains(t, res.Files[0], "job-item-0_stream_0.mp4")
	assert.Contains(t, res.Files[1], "job-item-0_stream_0_thumb.jpg")

	fetcher.mu.Lock()
	urls := append([]string(nil), fetcher.urls...)
	fetcher.mu.Unlock()
	assert.Equal(t, []string{
		"http://media.test/job-item-0.mp4",
		"http://media.test/job-item-0.jpg",
	}, urls)

	rec, err := registry.Find("job-item-0")
	require.NoError(t, err)
	assert.Equal(t, gen.StatusCompleted, rec.Status)
}

func TestScheduler_ProcessBatch_FailureIsolated(t *testing.T) {
	svc := newFakeGenService()
	svc.failFor["item-2"] = errors.New("endpoint rejected payload")
	sched, _ := newTestScheduler(t, svc, &fakeFetcher{})

	scripts := make([]*script.Script, 5)
	for i := range scripts {
		scripts[i] = itemScript(i)
	}
	results := sched.ProcessBatch(context.Background(), scripts, 2)

	require.Len(t, results, 5)
	for i, res := range results {
		if i == 2 {
			assert.Equal(t, ResultFailed, res.Status)
			assert.Contains(t, res.Error, "endpoint rejected payload")
			continue
		}
		assert.Equal(t, ResultSuccess, res.Status, "item %d", i)
	}
}

func TestScheduler_ProcessBatch_InvalidScriptFailsItem(t *testing.T) {
	svc := newFakeGenService()
	sched, _ := newTestScheduler(t, svc, &fakeFetcher{})

	scripts := []*script.Script{
		itemScript(0),
		script.New(),
	}
	results := sched.ProcessBatch(context.Background(), scripts, 2)

	require.Len(t, results, 2)
	assert.Equal(t, ResultSuccess, results[0].Status)
	assert.Equal(t, ResultFailed, results[1].Status)
	assert.Contains(t, results[1].Error, "invalid script")
	assert.Empty(t, results[1].JobID)
}

func TestScheduler_ProcessBatch_ConcurrencyCeiling(t *testing.T) {
	for _, limit := range []int{1, 2, 3} {
		t.Run(fmt.Sprintf("limit %d", limit), func(t *testing.T) {
			svc := newFakeGenService()
			for i := 0; i < 8; i++ {
				svc.latencies[fmt.Sprintf("item-%d", i)] = 15 * time.Millisecond
			}
			sched, _ := newTestScheduler(t, svc, &fakeFetcher{})

			scripts := make([]*script.Script, 8)
			for i := range scripts {
				scripts[i] = itemScript(i)
			}
			results := sched.ProcessBatch(context.Background(), scripts, limit)

			require.Len(t, results, 8)
			for _, res := range results {
				assert.Equal(t, ResultSuccess, res.Status)
			}
			assert.LessOrEqual(t, svc.maxInFlight.Load(), int32(limit))
		})
	}
}

func TestScheduler_ProcessBatch_CancelStopsNewSubmissions(t *testing.T) {
	svc := newFakeGenService()
	ctx, cancel := context.WithCancel(context.Background())
	// cancel as soon as the first item reaches its download step
	fetcher := &fakeFetcher{onFetch: cancel}
	sched, _ := newTestScheduler(t, svc, fetcher)

	scripts := []*script.Script{itemScript(0), itemScript(1), itemScript(2)}
	results := sched.ProcessBatch(ctx, scripts, 1)

	require.Len(t, results, 3)
	// the in-flight item finished despite the cancellation
	assert.Equal(t, ResultSuccess, results[0].Status)
	assert.Len(t, results[0].Files, 2)
	// nothing new was submitted
	for _, res := range results[1:] {
		assert.Equal(t, ResultFailed, res.Status)
		assert.Contains(t, res.Error, "cancelled before submission")
		assert.Empty(t, res.JobID)
	}
}

func TestScheduler_ProcessBatch_AlreadyCancelled(t *testing.T) {
	svc := newFakeGenService()
	sched, _ := newTestScheduler(t, svc, &fakeFetcher{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := sched.ProcessBatch(ctx, []*script.Script{itemScript(0), itemScript(1)}, 2)

	require.Len(t, results, 2)
	for _, res := range results {
		assert.Equal(t, ResultFailed, res.Status)
		assert.Contains(t, res.Error, "cancelled before submission")
	}
}
