package cloudqueue_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printbridge/agent/internal/cloudqueue"
	"github.com/printbridge/agent/internal/model"
)

// fakeStore is an in-memory DocumentStore keyed by full document path,
// standing in for FirestoreStore so the poller can be exercised without a
// network dependency.
type fakeStore struct {
	mu   sync.Mutex
	docs map[string]model.Job
}

func newFakeStore(jobs ...model.Job) *fakeStore {
	s := &fakeStore{docs: map[string]model.Job{}}
	for _, j := range jobs {
		s.docs[cloudqueue.DocPath("r1", j.ID)] = j
	}
	return s
}

func (s *fakeStore) ListQueued(ctx context.Context, collectionPath string, limit int) ([]model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Job
	for _, j := range s.docs {
		if j.Status == model.JobQueued {
			out = append(out, j)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *fakeStore) Get(ctx context.Context, docPath string) (model.Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.docs[docPath]
	return j, ok, nil
}

func (s *fakeStore) Patch(ctx context.Context, docPath string, fields map[string]any, mask []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.docs[docPath]
	if !ok {
		return fmt.Errorf("no such document: %s", docPath)
	}
	for _, field := range mask {
		v := fields[field]
		switch field {
		case "status":
			if v == nil {
				j.Status = ""
			} else {
				j.Status = model.JobStatus(v.(string))
			}
		case "error":
			if v == nil {
				j.Error = ""
			} else {
				j.Error = v.(string)
			}
		case "attempts":
			j.Attempts = v.(int)
		case "claimedBy":
			j.ClaimedBy, _ = v.(string)
		case "claimedByName":
			j.ClaimedByName, _ = v.(string)
		case "claimedAt":
			j.ClaimedAt, _ = v.(time.Time)
		}
	}
	s.docs[docPath] = j
	return nil
}

func (s *fakeStore) job(id string) model.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docs[cloudqueue.DocPath("r1", id)]
}

func TestCollectionAndDocPath(t *testing.T) {
	assert.Equal(t, "restaurants/r1/printQueue", cloudqueue.CollectionPath("r1"))
	assert.Equal(t, "restaurants/r1/printQueue/j1", cloudqueue.DocPath("r1", "j1"))
}

func TestPoller_UnknownTargetIsNonRetryableFailed(t *testing.T) {
	store := newFakeStore(model.Job{
		ID:          "j1",
		Status:      model.JobQueued,
		Target:      model.JobTarget{Kind: "bogus"},
		MaxAttempts: model.DefaultMaxAttempts,
	})

	poller := cloudqueue.NewPoller(store, "r1", "device-1", "Front Counter", zerolog.Nop())
	poller.Start(20 * time.Millisecond)
	defer poller.Stop()

	require.Eventually(t, func() bool {
		return store.job("j1").Status == model.JobFailed
	}, time.Second, 5*time.Millisecond)

	job := store.job("j1")
	assert.Equal(t, "unknown_target", job.Error)
}

func TestPoller_MissingPrinterNameIsNonRetryableFailed(t *testing.T) {
	store := newFakeStore(model.Job{
		ID:          "j2",
		Status:      model.JobQueued,
		Target:      model.JobTarget{Kind: model.TargetOSPrinter},
		MaxAttempts: model.DefaultMaxAttempts,
	})

	poller := cloudqueue.NewPoller(store, "r1", "device-1", "Front Counter", zerolog.Nop())
	poller.Start(20 * time.Millisecond)
	defer poller.Stop()

	require.Eventually(t, func() bool {
		return store.job("j2").Status == model.JobFailed
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, "no_printer_name", store.job("j2").Error)
}

func TestPoller_LANConnectRefusedIsRetriedThenFailed(t *testing.T) {
	store := newFakeStore(model.Job{
		ID:          "j3",
		Status:      model.JobQueued,
		Target:      model.JobTarget{Kind: model.TargetLAN, IP: "127.0.0.1", Port: 1}, // nothing listens on port 1
		MaxAttempts: 2,
	})

	poller := cloudqueue.NewPoller(store, "r1", "device-1", "Front Counter", zerolog.Nop())
	poller.Start(10 * time.Millisecond)
	defer poller.Stop()

	require.Eventually(t, func() bool {
		return store.job("j3").Status == model.JobFailed
	}, 2*time.Second, 10*time.Millisecond)

	job := store.job("j3")
	assert.GreaterOrEqual(t, job.Attempts, 2)
}

func TestPoller_RetryClearsClaimFields(t *testing.T) {
	store := newFakeStore(model.Job{
		ID:          "j4",
		Status:      model.JobQueued,
		Target:      model.JobTarget{Kind: model.TargetLAN, IP: "127.0.0.1", Port: 1}, // nothing listens on port 1
		MaxAttempts: 5,
	})

	// A generous poll interval leaves a wide window where the job sits
	// re-queued between retries, so Stop can land there reliably instead
	// of racing the next reclaim.
	poller := cloudqueue.NewPoller(store, "r1", "device-1", "Front Counter", zerolog.Nop())
	poller.Start(150 * time.Millisecond)
	defer poller.Stop()

	require.Eventually(t, func() bool {
		job := store.job("j4")
		return job.Status == model.JobQueued && job.Attempts >= 1
	}, 2*time.Second, 5*time.Millisecond)
	poller.Stop()

	job := store.job("j4")
	assert.Equal(t, model.JobQueued, job.Status)
	assert.Empty(t, job.ClaimedBy)
	assert.Empty(t, job.ClaimedByName)
	assert.True(t, job.ClaimedAt.IsZero())
}

func TestPoller_StopIsIdempotentAndSafeWithoutStart(t *testing.T) {
	store := newFakeStore()
	poller := cloudqueue.NewPoller(store, "r1", "device-1", "Front Counter", zerolog.Nop())
	poller.Stop()
	poller.Stop()
}
