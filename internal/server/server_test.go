package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farmctl/internal/config"
	"farmctl/internal/coordinator"
	"farmctl/internal/farm"
	"farmctl/internal/fleet"
	"farmctl/internal/probe"
)

type stubProvider struct {
	mu        sync.Mutex
	claimHold chan struct{}
	lastClaim farm.ClaimRequest
	poolsErr  error
}

func (s *stubProvider) Name() string    { return "stub" }
func (s *stubProvider) Available() bool { return true }

func (s *stubProvider) ListPools(ctx context.Context) ([]string, error) {
	if s.poolsErr != nil {
		return nil, s.poolsErr
	}
	return []string{"none", "gpu"}, nil
}

func (s *stubProvider) ListGroups(ctx context.Context) ([]string, error) {
	return []string{"none"}, nil
}

func (s *stubProvider) ClaimWorkers(ctx context.Context, req farm.ClaimRequest) (farm.ClaimResult, error) {
	s.mu.Lock()
	s.lastClaim = req
	hold := s.claimHold
	s.mu.Unlock()
	if hold != nil {
		<-hold
	}
	return farm.ClaimResult{JobID: "job-1", Count: req.Count, SubmittedAt: time.Now()}, nil
}

func (s *stubProvider) ReleaseWorkers(ctx context.Context, jobIDs []string) ([]string, error) {
	return jobIDs, nil
}

func newTestServer(t *testing.T, provider farm.Provider) (*httptest.Server, *coordinator.Coordinator) {
	t.Helper()
	store := config.NewStore("", config.GetDefaultConfig())
	registry := fleet.NewRegistry(store)
	prober := probe.New(store, registry)
	coord := coordinator.New(store, registry, prober, provider)

	srv := httptest.NewServer(New(coord, ":0").Handler())
	t.Cleanup(srv.Close)
	return srv, coord
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestClaimWorkersEndpointAppliesDefaults(t *testing.T) {
	provider := &stubProvider{}
	srv, _ := newTestServer(t, provider)

	resp := postJSON(t, srv.URL+"/farm/claim_workers", map[string]any{})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := decode[struct {
		Success bool   `json:"success"`
		JobID   string `json:"job_id"`
	}](t, resp)
	assert.True(t, result.Success)
	assert.Equal(t, "job-1", result.JobID)

	provider.mu.Lock()
	defer provider.mu.Unlock()
	assert.Equal(t, farm.DefaultClaimCount, provider.lastClaim.Count)
	assert.Equal(t, farm.DefaultClaimPriority, provider.lastClaim.Priority)
	assert.Equal(t, farm.NoneSelection, provider.lastClaim.Pool)
	// MasterAddr falls back to the configured master entry.
	assert.Equal(t, "localhost:8188", provider.lastClaim.MasterAddr)
}

func TestClaimWorkersEndpointConflictWhileInFlight(t *testing.T) {
	hold := make(chan struct{})
	provider := &stubProvider{claimHold: hold}
	srv, _ := newTestServer(t, provider)

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		resp := postJSON(t, srv.URL+"/farm/claim_workers", map[string]any{"count": 2})
		resp.Body.Close()
	}()

	require.Eventually(t, func() bool {
		provider.mu.Lock()
		defer provider.mu.Unlock()
		return provider.lastClaim.Count != 0
	}, time.Second, 5*time.Millisecond)

	resp := postJSON(t, srv.URL+"/farm/claim_workers", map[string]any{"count": 2})
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	close(hold)
	<-firstDone
}

func TestReleaseWorkersEndpoint(t *testing.T) {
	srv, coord := newTestServer(t, &stubProvider{})

	_, err := coord.ClaimWorkers(context.Background(), farm.ClaimRequest{Count: 3, Priority: 50})
	require.NoError(t, err)

	resp := postJSON(t, srv.URL+"/farm/release_workers", map[string]any{})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := decode[struct {
		ReleasedJobs int `json:"released_jobs"`
	}](t, resp)
	assert.Equal(t, 1, result.ReleasedJobs)
	assert.Empty(t, coord.ActiveJobIDs())
}

func TestWorkerRegistrationLifecycle(t *testing.T) {
	srv, coord := newTestServer(t, &stubProvider{})

	resp := postJSON(t, srv.URL+"/farm/register_worker", map[string]any{
		"worker_id":   "farm-w1",
		"worker_ip":   "10.0.0.5",
		"worker_port": 8188,
		"job_id":      "job-1",
	})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/farm/worker_heartbeat", map[string]any{"worker_id": "farm-w1"})
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	status := decode[struct {
		ActiveWorkers []fleet.WorkerInfo `json:"active_workers"`
	}](t, getResp(t, srv.URL+"/farm/status"))
	require.Len(t, status.ActiveWorkers, 1)
	assert.Equal(t, "farm-w1", status.ActiveWorkers[0].ID)

	resp = postJSON(t, srv.URL+"/farm/unregister_worker", map[string]any{"worker_id": "farm-w1"})
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, coord.Registry().ActiveWorkers())
}

func TestHeartbeatUnknownWorkerIs404(t *testing.T) {
	srv, _ := newTestServer(t, &stubProvider{})

	resp := postJSON(t, srv.URL+"/farm/worker_heartbeat", map[string]any{"worker_id": "ghost"})
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRemoveRemoteWorkersConflictWhileJobsLive(t *testing.T) {
	srv, coord := newTestServer(t, &stubProvider{})

	_, err := coord.ClaimWorkers(context.Background(), farm.ClaimRequest{Count: 2, Priority: 50})
	require.NoError(t, err)

	resp := postJSON(t, srv.URL+"/farm/remove_remote_workers", map[string]any{})
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/farm/remove_remote_workers", map[string]any{"force": true})
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUpdateSettingEndpoint(t *testing.T) {
	srv, coord := newTestServer(t, &stubProvider{})

	resp := postJSON(t, srv.URL+"/config/setting", map[string]any{"key": "debug", "value": true})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, coord.Store().Snapshot().Settings.Debug)

	resp = postJSON(t, srv.URL+"/config/setting", map[string]any{"key": "bogus", "value": true})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFarmPoolsEndpointSoftFails(t *testing.T) {
	srv, _ := newTestServer(t, &stubProvider{poolsErr: errors.New("farm down")})

	pools := decode[farm.PoolList](t, getResp(t, srv.URL+"/farm/pools"))
	assert.Equal(t, "error", pools.Status)

	groups := decode[farm.GroupList](t, getResp(t, srv.URL+"/farm/groups"))
	assert.Equal(t, "success", groups.Status)
}

func TestGetConfigEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, &stubProvider{})

	cfg := decode[config.Config](t, getResp(t, srv.URL+"/config"))
	_, hasMaster := cfg.Master()
	assert.True(t, hasMaster)
}

func getResp(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	return resp
}
