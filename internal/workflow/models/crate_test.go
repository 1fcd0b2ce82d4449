package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "cratekeeper/pkg/domain"
	dErrors "cratekeeper/pkg/domain-errors"
)

func TestCrateWithdrawReturnCycle(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c := NewCrate(testUnit, false, now)
	require.Equal(t, id.CrateActive, c.Status)

	require.NoError(t, c.CanWithdraw())
	c.ApplyWithdrawal(now)
	assert.Equal(t, id.CrateWithdrawn, c.Status)

	assert.Error(t, c.CanWithdraw(), "withdrawn crate cannot be withdrawn again")

	require.NoError(t, c.CanReturn())
	c.ApplyReturn(now)
	assert.Equal(t, id.CrateActive, c.Status)
}

func TestCrateAllocationArchives(t *testing.T) {
	now := time.Now()
	c := NewCrate(testUnit, true, now)

	require.NoError(t, c.CanAllocate())
	c.ApplyAllocation("B-12-04", now)

	assert.Equal(t, id.CrateArchived, c.Status)
	require.NotNil(t, c.StorageLocation)
	assert.Equal(t, "B-12-04", *c.StorageLocation)

	// Archived crates can still be withdrawn.
	assert.NoError(t, c.CanWithdraw())
}

func TestCrateDestructionIsTerminal(t *testing.T) {
	now := time.Now()
	c := NewCrate(testUnit, false, now)

	require.NoError(t, c.CanDestroy())
	c.ApplyDestruction(now)
	assert.Equal(t, id.CrateDestroyed, c.Status)

	// Guard failures report as conflicts: the crate moved under a
	// concurrent request, which the caller can surface as retryable.
	assert.True(t, dErrors.HasCode(c.CanDestroy(), dErrors.CodeConflict))
	assert.True(t, dErrors.HasCode(c.CanWithdraw(), dErrors.CodeConflict))
	assert.True(t, dErrors.HasCode(c.CanAllocate(), dErrors.CodeConflict))
	assert.True(t, dErrors.HasCode(c.CanReturn(), dErrors.CodeConflict))
}

func TestNewSendBackRequiresReason(t *testing.T) {
	_, err := NewSendBack(id.NewRequestID(), "", testReviewer, time.Now())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	sb, err := NewSendBack(id.NewRequestID(), "missing inventory sheet", testReviewer, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "missing inventory sheet", sb.Reason)
	assert.False(t, sb.ID.IsNil())
}
