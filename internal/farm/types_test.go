package farm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClaimRequestNormalizeDefaults(t *testing.T) {
	var req ClaimRequest
	req.Normalize()

	assert.Equal(t, DefaultClaimCount, req.Count)
	assert.Equal(t, DefaultClaimPriority, req.Priority)
	assert.Equal(t, NoneSelection, req.Pool)
	assert.Equal(t, NoneSelection, req.Group)
	assert.NotEmpty(t, req.MasterAddr)
}

func TestClaimRequestNormalizeKeepsExplicitValues(t *testing.T) {
	req := ClaimRequest{Count: 8, Priority: 90, Pool: "gpu", Group: "fast", MasterAddr: "10.0.0.1:8188"}
	req.Normalize()

	assert.Equal(t, 8, req.Count)
	assert.Equal(t, 90, req.Priority)
	assert.Equal(t, "gpu", req.Pool)
	assert.Equal(t, "fast", req.Group)
	assert.Equal(t, "10.0.0.1:8188", req.MasterAddr)
}

func TestClaimRequestValidate(t *testing.T) {
	valid := ClaimRequest{Count: 1, Priority: 50}
	assert.NoError(t, valid.Validate())

	assert.Error(t, ClaimRequest{Count: 0, Priority: 50}.Validate())
	assert.Error(t, ClaimRequest{Count: 4, Priority: -1}.Validate())
	assert.Error(t, ClaimRequest{Count: 4, Priority: 101}.Validate())
}
