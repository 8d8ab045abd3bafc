package farm

import (
	"errors"
	"fmt"
	"time"
)

// NoneSelection is the sentinel the panel sends when no pool or group is
// chosen; providers translate it to "unset".
const NoneSelection = "none"

// Claim defaults; count mirrors the panel's fallback when the count field
// is empty or non-numeric.
const (
	DefaultClaimCount    = 4
	DefaultClaimPriority = 50
	MinPriority          = 0
	MaxPriority          = 100
)

// ErrFarmUnavailable is returned when the configured backend cannot be
// reached (e.g. the scheduler binary is missing).
var ErrFarmUnavailable = errors.New("render farm not available")

// ClaimRequest describes one claim action: submit count farm jobs that come
// up as workers and attach to the given master. Transient, never persisted.
type ClaimRequest struct {
	Count      int
	Priority   int
	Pool       string
	Group      string
	MasterAddr string
}

// Normalize applies panel defaults to unset fields.
func (r *ClaimRequest) Normalize() {
	if r.Count <= 0 {
		r.Count = DefaultClaimCount
	}
	if r.Priority == 0 {
		r.Priority = DefaultClaimPriority
	}
	if r.Pool == "" {
		r.Pool = NoneSelection
	}
	if r.Group == "" {
		r.Group = NoneSelection
	}
	if r.MasterAddr == "" {
		r.MasterAddr = "localhost:8188"
	}
}

// Validate reports whether the request is submittable.
func (r ClaimRequest) Validate() error {
	if r.Count < 1 {
		return fmt.Errorf("claim count must be >= 1, got %d", r.Count)
	}
	if r.Priority < MinPriority || r.Priority > MaxPriority {
		return fmt.Errorf("priority must be within [%d,%d], got %d", MinPriority, MaxPriority, r.Priority)
	}
	return nil
}

// ClaimResult reports a successful submission.
type ClaimResult struct {
	JobID       string
	Count       int
	SubmittedAt time.Time
}

// PoolList is the soft-fail shape for pool enumeration: Status is "success"
// or "error", and on error the caller keeps whatever list it had before.
type PoolList struct {
	Status string   `json:"status"`
	Pools  []string `json:"pools"`
}

// GroupList mirrors PoolList for farm groups.
type GroupList struct {
	Status string   `json:"status"`
	Groups []string `json:"groups"`
}
