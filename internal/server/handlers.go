package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"farmctl/internal/coordinator"
	"farmctl/internal/farm"
	"farmctl/internal/fleet"
	"farmctl/pkg/logging"
)

// successResponse is the envelope shape shared by all mutating endpoints.
type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("API", err, "Failed to encode response")
	}
}

func writeSuccess(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, successResponse{Success: true, Message: message})
}

func writeFailure(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, successResponse{Success: false, Error: err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeFailure(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func (s *Server) handleFarmStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.coord.FarmStatus())
}

// Pool and group listings fail soft: an unreachable farm yields a 200 with
// status "error" so the panel keeps its previous dropdown contents.
func (s *Server) handleFarmPools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.coord.ListPools(r.Context()))
}

func (s *Server) handleFarmGroups(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.coord.ListGroups(r.Context()))
}

type claimRequestBody struct {
	Count    int    `json:"count"`
	Priority int    `json:"priority"`
	Pool     string `json:"pool"`
	Group    string `json:"group"`
	MasterWS string `json:"master_ws"`
}

func (s *Server) handleClaimWorkers(w http.ResponseWriter, r *http.Request) {
	var body claimRequestBody
	if !decodeBody(w, r, &body) {
		return
	}

	result, err := s.coord.ClaimWorkers(r.Context(), farm.ClaimRequest{
		Count:      body.Count,
		Priority:   body.Priority,
		Pool:       body.Pool,
		Group:      body.Group,
		MasterAddr: body.MasterWS,
	})
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, coordinator.ErrClaimInFlight) {
			status = http.StatusConflict
		}
		writeFailure(w, status, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success bool   `json:"success"`
		JobID   string `json:"job_id"`
		Message string `json:"message"`
	}{true, result.JobID, "claim submitted"})
}

func (s *Server) handleReleaseWorkers(w http.ResponseWriter, r *http.Request) {
	released, err := s.coord.ReleaseWorkers(r.Context())
	if err != nil {
		writeFailure(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success      bool `json:"success"`
		ReleasedJobs int  `json:"released_jobs"`
	}{true, released})
}

type registerWorkerBody struct {
	WorkerID   string `json:"worker_id"`
	WorkerIP   string `json:"worker_ip"`
	WorkerPort int    `json:"worker_port"`
	JobID      string `json:"job_id"`
}

func (s *Server) handleRegisterWorker(w http.ResponseWriter, r *http.Request) {
	var body registerWorkerBody
	if !decodeBody(w, r, &body) {
		return
	}
	if err := s.coord.Registry().RegisterWorker(body.WorkerID, body.WorkerIP, body.WorkerPort, body.JobID); err != nil {
		writeFailure(w, http.StatusBadRequest, err)
		return
	}
	writeSuccess(w, "worker registered")
}

type workerIDBody struct {
	WorkerID string `json:"worker_id"`
}

func (s *Server) handleWorkerHeartbeat(w http.ResponseWriter, r *http.Request) {
	var body workerIDBody
	if !decodeBody(w, r, &body) {
		return
	}
	if err := s.coord.Registry().Heartbeat(body.WorkerID); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, fleet.ErrUnknownWorker) {
			status = http.StatusNotFound
		}
		writeFailure(w, status, err)
		return
	}
	writeSuccess(w, "")
}

func (s *Server) handleUnregisterWorker(w http.ResponseWriter, r *http.Request) {
	var body workerIDBody
	if !decodeBody(w, r, &body) {
		return
	}
	if err := s.coord.Registry().UnregisterWorker(body.WorkerID); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, fleet.ErrUnknownWorker) {
			status = http.StatusNotFound
		}
		writeFailure(w, status, err)
		return
	}
	writeSuccess(w, "worker unregistered")
}

type removeRemoteBody struct {
	Force bool `json:"force"`
}

func (s *Server) handleRemoveRemoteWorkers(w http.ResponseWriter, r *http.Request) {
	var body removeRemoteBody
	if r.ContentLength > 0 && !decodeBody(w, r, &body) {
		return
	}
	removed, err := s.coord.RemoveFarmWorkers(body.Force)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, coordinator.ErrJobsStillActive) {
			status = http.StatusConflict
		}
		writeFailure(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		Removed int  `json:"removed"`
	}{true, removed})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.coord.Store().Snapshot())
}

type updateSettingBody struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

func (s *Server) handleUpdateSetting(w http.ResponseWriter, r *http.Request) {
	var body updateSettingBody
	if !decodeBody(w, r, &body) {
		return
	}
	if err := s.coord.Store().UpdateSetting(body.Key, body.Value); err != nil {
		writeFailure(w, http.StatusBadRequest, err)
		return
	}
	writeSuccess(w, "setting updated")
}

type farmDefaultsBody struct {
	Priority int    `json:"priority"`
	Pool     string `json:"pool"`
	Group    string `json:"group"`
}

func (s *Server) handleUpdateFarmDefaults(w http.ResponseWriter, r *http.Request) {
	var body farmDefaultsBody
	if !decodeBody(w, r, &body) {
		return
	}
	if err := s.coord.Store().UpdateFarmDefaults(body.Priority, body.Pool, body.Group); err != nil {
		writeFailure(w, http.StatusInternalServerError, err)
		return
	}
	writeSuccess(w, "farm defaults updated")
}

func (s *Server) handleClearVRAM(w http.ResponseWriter, r *http.Request) {
	reached := s.coord.ClearVRAM(r.Context())
	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		Reached int  `json:"reached"`
	}{true, reached})
}

func (s *Server) handleInterrupt(w http.ResponseWriter, r *http.Request) {
	reached := s.coord.InterruptAll(r.Context())
	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		Reached int  `json:"reached"`
	}{true, reached})
}

func (s *Server) handleMasterIP(w http.ResponseWriter, r *http.Request) {
	ip, err := DetectMasterIP()
	if err != nil {
		writeFailure(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool   `json:"success"`
		IP      string `json:"ip"`
	}{true, ip})
}
