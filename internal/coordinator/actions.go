package coordinator

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"farmctl/internal/config"
	"farmctl/pkg/logging"
)

// ClearVRAM asks every enabled worker to free its GPU memory. Failures are
// per-worker and soft; the returned count is how many workers acknowledged.
func (c *Coordinator) ClearVRAM(ctx context.Context) int {
	return c.broadcast(ctx, "/free", `{"unload_models":true,"free_memory":true}`)
}

// InterruptAll aborts the currently executing job on every enabled worker.
func (c *Coordinator) InterruptAll(ctx context.Context) int {
	return c.broadcast(ctx, "/interrupt", "")
}

// broadcast POSTs the same request to every enabled non-master worker in
// parallel and returns the number of successful responses.
func (c *Coordinator) broadcast(ctx context.Context, path, body string) int {
	workers := c.store.Snapshot().EnabledWorkers()

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for _, w := range workers {
		wg.Add(1)
		go func(w config.WorkerDefinition) {
			defer wg.Done()
			if err := c.postWorker(ctx, w, path, body); err != nil {
				logging.Warn("Coordinator", "Worker %s did not accept %s: %v", w.ID, path, err)
				return
			}
			mu.Lock()
			succeeded++
			mu.Unlock()
		}(w)
	}
	wg.Wait()

	logging.Info("Coordinator", "Broadcast %s reached %d/%d worker(s)", path, succeeded, len(workers))
	return succeeded
}

func (c *Coordinator) postWorker(ctx context.Context, w config.WorkerDefinition, path, body string) error {
	url := fmt.Sprintf("http://%s%s", w.Address(), path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		return err
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
