package probe

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farmctl/internal/config"
	"farmctl/internal/fleet"
)

func newTestProber(t *testing.T, handler http.Handler) (*Prober, *fleet.Registry, *config.Store) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store := config.NewStore("", config.GetDefaultConfig())
	registry := fleet.NewRegistry(store)
	p := New(store, registry)
	p.baseURL = func(w config.WorkerDefinition) string { return srv.URL }
	return p, registry, store
}

func statsHandler(queueRemaining int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/system_stats" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"queue_remaining": %d}`, queueRemaining)
	})
}

func TestProbeWorkerOnline(t *testing.T) {
	p, _, _ := newTestProber(t, statsHandler(0))

	status := p.ProbeWorker(context.Background(), config.WorkerDefinition{ID: "w1"})
	assert.Equal(t, fleet.StatusOnline, status)
}

func TestProbeWorkerBusyWhenQueueNonEmpty(t *testing.T) {
	p, _, _ := newTestProber(t, statsHandler(3))

	status := p.ProbeWorker(context.Background(), config.WorkerDefinition{ID: "w1"})
	assert.Equal(t, fleet.StatusBusy, status)
}

func TestProbeWorkerOfflineOnErrorStatus(t *testing.T) {
	p, _, _ := newTestProber(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	status := p.ProbeWorker(context.Background(), config.WorkerDefinition{ID: "w1"})
	assert.Equal(t, fleet.StatusOffline, status)
}

func TestProbeWorkerOfflineWhenUnreachable(t *testing.T) {
	store := config.NewStore("", config.GetDefaultConfig())
	registry := fleet.NewRegistry(store)
	p := New(store, registry)
	// Reserved TEST-NET address, nothing listens here.
	p.baseURL = func(w config.WorkerDefinition) string { return "http://192.0.2.1:1" }

	status := p.ProbeWorker(context.Background(), config.WorkerDefinition{ID: "w1"})
	assert.Equal(t, fleet.StatusOffline, status)
}

func TestProbeWorkerOnlineOnUndecodableBody(t *testing.T) {
	p, _, _ := newTestProber(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))

	status := p.ProbeWorker(context.Background(), config.WorkerDefinition{ID: "w1"})
	assert.Equal(t, fleet.StatusOnline, status)
}

func TestProbeAllSkipsMasterAndDisabled(t *testing.T) {
	p, registry, store := newTestProber(t, statsHandler(0))
	require.NoError(t, store.AddWorker(config.WorkerDefinition{ID: "enabled", Host: "x", Port: 1, Enabled: true}))
	require.NoError(t, store.AddWorker(config.WorkerDefinition{ID: "disabled", Host: "x", Port: 1, Enabled: false}))

	var mu sync.Mutex
	results := map[string]fleet.WorkerStatus{}
	p.ProbeAll(context.Background(), func(id string, status fleet.WorkerStatus) {
		mu.Lock()
		results[id] = status
		mu.Unlock()
	})

	assert.Equal(t, map[string]fleet.WorkerStatus{"enabled": fleet.StatusOnline}, results)
	assert.Equal(t, fleet.StatusOnline, registry.StatusOf("enabled"))
	assert.Equal(t, fleet.StatusUnknown, registry.StatusOf("disabled"))
	assert.Equal(t, fleet.StatusUnknown, registry.StatusOf("master"))
}
