// Package farm defines the coordinator's contract with the render-farm
// scheduler and the request/result types shared by its backends.
package farm

import "context"

// Provider is implemented by each render-farm backend. Claim submits farm
// jobs that boot into workers and register with the master; Release recalls
// them. Local, non-farm workers are never touched by a provider.
type Provider interface {
	// Name identifies the backend ("deadline", "kubernetes").
	Name() string

	// Available reports whether the backend can take submissions right now.
	Available() bool

	// ListPools enumerates scheduler pools. Errors are returned so callers
	// can fail soft and keep prior results.
	ListPools(ctx context.Context) ([]string, error)

	// ListGroups enumerates scheduler groups.
	ListGroups(ctx context.Context) ([]string, error)

	// ClaimWorkers submits req.Count farm jobs. The request must be
	// normalized and validated by the caller.
	ClaimWorkers(ctx context.Context, req ClaimRequest) (ClaimResult, error)

	// ReleaseWorkers terminates the given farm jobs and returns the ids
	// that were actually released. Backends fail soft per job, so the
	// returned slice may be a subset of jobIDs even when err is nil;
	// callers must keep tracking the jobs that are missing from it.
	ReleaseWorkers(ctx context.Context, jobIDs []string) ([]string, error)
}
