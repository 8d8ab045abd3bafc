package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farmctl/internal/config"
	"farmctl/internal/farm"
	"farmctl/internal/fleet"
	"farmctl/internal/probe"
)

// fakeProvider is a scriptable farm backend.
type fakeProvider struct {
	mu          sync.Mutex
	claimHold   chan struct{} // when set, ClaimWorkers blocks until closed
	claimErr    error
	released    [][]string
	releaseOnly map[string]bool // when set, only these ids release; the rest soft-fail
	nextJobID   string
	claims      int
}

func (f *fakeProvider) Name() string    { return "fake" }
func (f *fakeProvider) Available() bool { return true }

func (f *fakeProvider) ListPools(ctx context.Context) ([]string, error) {
	return []string{"none", "gpu"}, nil
}

func (f *fakeProvider) ListGroups(ctx context.Context) ([]string, error) {
	return nil, errors.New("groups unavailable")
}

func (f *fakeProvider) ClaimWorkers(ctx context.Context, req farm.ClaimRequest) (farm.ClaimResult, error) {
	f.mu.Lock()
	hold := f.claimHold
	f.claims++
	jobID := f.nextJobID
	if jobID == "" {
		jobID = fmt.Sprintf("job-%d", f.claims)
	}
	claimErr := f.claimErr
	f.mu.Unlock()

	if hold != nil {
		<-hold
	}
	if claimErr != nil {
		return farm.ClaimResult{}, claimErr
	}
	return farm.ClaimResult{JobID: jobID, Count: req.Count, SubmittedAt: time.Now()}, nil
}

func (f *fakeProvider) ReleaseWorkers(ctx context.Context, jobIDs []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, jobIDs)
	if f.releaseOnly == nil {
		return jobIDs, nil
	}
	var ok []string
	for _, id := range jobIDs {
		if f.releaseOnly[id] {
			ok = append(ok, id)
		}
	}
	return ok, nil
}

func newTestCoordinator(provider farm.Provider) (*Coordinator, *config.Store) {
	store := config.NewStore("", config.GetDefaultConfig())
	registry := fleet.NewRegistry(store)
	prober := probe.New(store, registry)
	return New(store, registry, prober, provider), store
}

func TestClaimWorkersRecordsJob(t *testing.T) {
	provider := &fakeProvider{nextJobID: "job-abc"}
	coord, _ := newTestCoordinator(provider)

	result, err := coord.ClaimWorkers(context.Background(), farm.ClaimRequest{Count: 4, Priority: 50})
	require.NoError(t, err)
	assert.Equal(t, "job-abc", result.JobID)
	assert.Equal(t, []string{"job-abc"}, coord.ActiveJobIDs())

	status := coord.FarmStatus()
	assert.Equal(t, 1, status.ActiveJobs)
	assert.Equal(t, 4, status.ClaimedWorkers)
}

func TestClaimWorkersSingleFlight(t *testing.T) {
	hold := make(chan struct{})
	provider := &fakeProvider{claimHold: hold}
	coord, _ := newTestCoordinator(provider)

	firstDone := make(chan error, 1)
	go func() {
		_, err := coord.ClaimWorkers(context.Background(), farm.ClaimRequest{Count: 4, Priority: 50})
		firstDone <- err
	}()

	// Wait for the first claim to reach the provider.
	require.Eventually(t, func() bool {
		provider.mu.Lock()
		defer provider.mu.Unlock()
		return provider.claims == 1
	}, time.Second, 5*time.Millisecond)

	_, err := coord.ClaimWorkers(context.Background(), farm.ClaimRequest{Count: 4, Priority: 50})
	assert.ErrorIs(t, err, ErrClaimInFlight)

	close(hold)
	require.NoError(t, <-firstDone)

	// Once resolved, the latch is open again.
	_, err = coord.ClaimWorkers(context.Background(), farm.ClaimRequest{Count: 2, Priority: 50})
	assert.NoError(t, err)
}

func TestClaimLatchReleasedOnFailure(t *testing.T) {
	provider := &fakeProvider{claimErr: errors.New("repository down")}
	coord, _ := newTestCoordinator(provider)

	_, err := coord.ClaimWorkers(context.Background(), farm.ClaimRequest{Count: 4, Priority: 50})
	require.Error(t, err)
	assert.Empty(t, coord.ActiveJobIDs())

	provider.mu.Lock()
	provider.claimErr = nil
	provider.mu.Unlock()

	_, err = coord.ClaimWorkers(context.Background(), farm.ClaimRequest{Count: 4, Priority: 50})
	assert.NoError(t, err)
}

func TestClaimWorkersNormalizesRequest(t *testing.T) {
	provider := &fakeProvider{}
	coord, _ := newTestCoordinator(provider)

	result, err := coord.ClaimWorkers(context.Background(), farm.ClaimRequest{})
	require.NoError(t, err)
	assert.Equal(t, farm.DefaultClaimCount, result.Count)
}

func TestClaimWorkersRejectsInvalidPriority(t *testing.T) {
	provider := &fakeProvider{}
	coord, _ := newTestCoordinator(provider)

	_, err := coord.ClaimWorkers(context.Background(), farm.ClaimRequest{Count: 4, Priority: 250})
	assert.Error(t, err)
	provider.mu.Lock()
	defer provider.mu.Unlock()
	assert.Zero(t, provider.claims)
}

func TestClaimWorkersWithoutProvider(t *testing.T) {
	coord, _ := newTestCoordinator(nil)

	_, err := coord.ClaimWorkers(context.Background(), farm.ClaimRequest{Count: 4, Priority: 50})
	assert.ErrorIs(t, err, farm.ErrFarmUnavailable)
}

func TestReleaseWorkersClearsJobTable(t *testing.T) {
	provider := &fakeProvider{nextJobID: "job-abc"}
	coord, _ := newTestCoordinator(provider)

	_, err := coord.ClaimWorkers(context.Background(), farm.ClaimRequest{Count: 4, Priority: 50})
	require.NoError(t, err)

	released, err := coord.ReleaseWorkers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, released)
	assert.Empty(t, coord.ActiveJobIDs())
	require.Len(t, provider.released, 1)
	assert.Equal(t, []string{"job-abc"}, provider.released[0])

	// Releasing with nothing claimed is a no-op, not an error.
	released, err = coord.ReleaseWorkers(context.Background())
	require.NoError(t, err)
	assert.Zero(t, released)
	assert.Len(t, provider.released, 1)
}

func TestReleaseWorkersKeepsJobsTheProviderCouldNotRelease(t *testing.T) {
	provider := &fakeProvider{releaseOnly: map[string]bool{"job-1": true}}
	coord, _ := newTestCoordinator(provider)

	_, err := coord.ClaimWorkers(context.Background(), farm.ClaimRequest{Count: 2, Priority: 50})
	require.NoError(t, err)
	_, err = coord.ClaimWorkers(context.Background(), farm.ClaimRequest{Count: 2, Priority: 50})
	require.NoError(t, err)

	// The backend deletes job-1 but soft-fails on job-2.
	released, err := coord.ReleaseWorkers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, released)
	assert.Equal(t, []string{"job-2"}, coord.ActiveJobIDs())

	// The surviving job still arms the remove-workers guard.
	_, err = coord.RemoveFarmWorkers(false)
	assert.ErrorIs(t, err, ErrJobsStillActive)

	// Once the backend recovers, the retry clears the rest.
	provider.mu.Lock()
	provider.releaseOnly = nil
	provider.mu.Unlock()

	released, err = coord.ReleaseWorkers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, released)
	assert.Empty(t, coord.ActiveJobIDs())

	_, err = coord.RemoveFarmWorkers(false)
	assert.NoError(t, err)
}

func TestRemoveFarmWorkersRefusedWhileJobsLive(t *testing.T) {
	provider := &fakeProvider{}
	coord, store := newTestCoordinator(provider)
	require.NoError(t, store.AddWorker(config.WorkerDefinition{ID: "farm1", Host: "10.0.0.5", Port: 8188, Source: config.SourceFarm}))

	_, err := coord.ClaimWorkers(context.Background(), farm.ClaimRequest{Count: 4, Priority: 50})
	require.NoError(t, err)

	_, err = coord.RemoveFarmWorkers(false)
	assert.ErrorIs(t, err, ErrJobsStillActive)
	assert.GreaterOrEqual(t, store.Snapshot().FindWorker("farm1"), 0)

	// Force overrides the guard.
	removed, err := coord.RemoveFarmWorkers(true)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	// After release the guard no longer applies.
	_, err = coord.ReleaseWorkers(context.Background())
	require.NoError(t, err)
	_, err = coord.RemoveFarmWorkers(false)
	assert.NoError(t, err)
}

func TestListPoolsAndGroupsSoftFail(t *testing.T) {
	coord, _ := newTestCoordinator(&fakeProvider{})

	pools := coord.ListPools(context.Background())
	assert.Equal(t, "success", pools.Status)
	assert.Equal(t, []string{"none", "gpu"}, pools.Pools)

	groups := coord.ListGroups(context.Background())
	assert.Equal(t, "error", groups.Status)
	assert.Empty(t, groups.Groups)

	nilCoord, _ := newTestCoordinator(nil)
	assert.Equal(t, "error", nilCoord.ListPools(context.Background()).Status)
}

func TestSubscribeReceivesClaimEvents(t *testing.T) {
	provider := &fakeProvider{nextJobID: "job-abc"}
	coord, _ := newTestCoordinator(provider)
	events := coord.Subscribe()

	_, err := coord.ClaimWorkers(context.Background(), farm.ClaimRequest{Count: 4, Priority: 50})
	require.NoError(t, err)

	select {
	case event := <-events:
		assert.Equal(t, EventClaimed, event.Kind)
		assert.Equal(t, "job-abc", event.JobID)
		assert.Equal(t, 4, event.Count)
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}
