// Package server exposes the coordinator over HTTP, mirroring the
// endpoints the master UI and the farm-spawned workers call: claim and
// release, worker registration and heartbeats, settings patches, and the
// fleet-wide bulk actions.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"farmctl/internal/coordinator"
	"farmctl/pkg/logging"
)

// Server wraps the HTTP API around a coordinator.
type Server struct {
	coord *coordinator.Coordinator
	addr  string
	http  *http.Server
}

// New creates an API server listening on addr.
func New(coord *coordinator.Coordinator, addr string) *Server {
	s := &Server{coord: coord, addr: addr}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /farm/status", s.handleFarmStatus)
	mux.HandleFunc("GET /farm/pools", s.handleFarmPools)
	mux.HandleFunc("GET /farm/groups", s.handleFarmGroups)
	mux.HandleFunc("POST /farm/claim_workers", s.handleClaimWorkers)
	mux.HandleFunc("POST /farm/release_workers", s.handleReleaseWorkers)
	mux.HandleFunc("POST /farm/register_worker", s.handleRegisterWorker)
	mux.HandleFunc("POST /farm/worker_heartbeat", s.handleWorkerHeartbeat)
	mux.HandleFunc("POST /farm/unregister_worker", s.handleUnregisterWorker)
	mux.HandleFunc("POST /farm/remove_remote_workers", s.handleRemoveRemoteWorkers)
	mux.HandleFunc("GET /config", s.handleGetConfig)
	mux.HandleFunc("POST /config/setting", s.handleUpdateSetting)
	mux.HandleFunc("POST /config/farm_defaults", s.handleUpdateFarmDefaults)
	mux.HandleFunc("POST /workers/clear_vram", s.handleClearVRAM)
	mux.HandleFunc("POST /workers/interrupt", s.handleInterrupt)
	mux.HandleFunc("GET /master_ip", s.handleMasterIP)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the underlying handler, used by httptest in tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Start serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logging.Info("API", "Listening on %s", s.addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

// DetectMasterIP returns the local address used for outbound traffic, the
// address farm workers should dial back to. No packets are sent; the UDP
// dial only resolves the route.
func DetectMasterIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", fmt.Errorf("detect master ip: %w", err)
	}
	defer conn.Close()

	localAddr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", errors.New("detect master ip: unexpected local address type")
	}
	return localAddr.IP.String(), nil
}
