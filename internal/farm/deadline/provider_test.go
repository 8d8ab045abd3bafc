package deadline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farmctl/internal/farm"
)

// fakeRunner records deadlinecommand invocations and plays back canned
// output per leading flag.
type fakeRunner struct {
	calls   [][]string
	outputs map[string]string
	errs    map[string]error
}

func (f *fakeRunner) run(ctx context.Context, timeout time.Duration, args ...string) (string, error) {
	f.calls = append(f.calls, args)
	if err := f.errs[args[0]]; err != nil {
		return "", err
	}
	return f.outputs[args[0]], nil
}

func newFakeProvider(runner *fakeRunner) *Provider {
	p := &Provider{command: "/opt/Thinkbox/Deadline10/bin/deadlinecommand"}
	p.runCommand = runner.run
	return p
}

func TestClaimWorkersSubmitsAndParsesJobID(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{
		"-SubmitJob": "Submitting...\nJobID=507f1f77bcf86cd799439011\n",
	}}
	p := newFakeProvider(runner)

	result, err := p.ClaimWorkers(context.Background(), farm.ClaimRequest{
		Count: 4, Priority: 50, Pool: "none", Group: "none", MasterAddr: "localhost:8188",
	})
	require.NoError(t, err)
	assert.Equal(t, "507f1f77bcf86cd799439011", result.JobID)
	assert.Equal(t, 4, result.Count)

	require.Len(t, runner.calls, 1)
	call := runner.calls[0]
	require.Len(t, call, 4)
	assert.Equal(t, "-SubmitJob", call[0])
}

func TestClaimWorkersFailsWithoutJobID(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{
		"-SubmitJob": "Submission accepted but nothing useful printed",
	}}
	p := newFakeProvider(runner)

	_, err := p.ClaimWorkers(context.Background(), farm.ClaimRequest{Count: 2, Priority: 50})
	assert.ErrorContains(t, err, "no JobID")
}

func TestClaimWorkersUnavailableWithoutBinary(t *testing.T) {
	p := &Provider{command: ""}

	_, err := p.ClaimWorkers(context.Background(), farm.ClaimRequest{Count: 2, Priority: 50})
	assert.ErrorIs(t, err, farm.ErrFarmUnavailable)
}

func TestReleaseWorkersDeletesEachJob(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{"-DeleteJob": "Deleted."}}
	p := newFakeProvider(runner)

	released, err := p.ReleaseWorkers(context.Background(), []string{"job1", "job2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"job1", "job2"}, released)

	require.Len(t, runner.calls, 2)
	assert.Equal(t, []string{"-DeleteJob", "job1"}, runner.calls[0])
	assert.Equal(t, []string{"-DeleteJob", "job2"}, runner.calls[1])
}

func TestReleaseWorkersSoftFailsPerJob(t *testing.T) {
	var calls int
	p := &Provider{command: "deadlinecommand"}
	p.runCommand = func(ctx context.Context, timeout time.Duration, args ...string) (string, error) {
		calls++
		if args[1] == "job1" {
			return "", errors.New("job not found")
		}
		return "Deleted.", nil
	}

	released, err := p.ReleaseWorkers(context.Background(), []string{"job1", "job2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"job2"}, released)
	assert.Equal(t, 2, calls)
}

func TestReleaseWorkersAllFail(t *testing.T) {
	runner := &fakeRunner{errs: map[string]error{"-DeleteJob": errors.New("repository down")}}
	p := newFakeProvider(runner)

	released, err := p.ReleaseWorkers(context.Background(), []string{"job1"})
	assert.Error(t, err)
	assert.Empty(t, released)
}

func TestListPoolsParsesLines(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{"-Pools": "none\ngpu\n\ncpu\n"}}
	p := newFakeProvider(runner)

	pools, err := p.ListPools(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"none", "gpu", "cpu"}, pools)
}
