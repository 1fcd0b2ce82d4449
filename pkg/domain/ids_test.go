package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "cratekeeper/pkg/domain-errors"
)

func TestParseRequestID_RoundTrip(t *testing.T) {
	original := NewRequestID()
	parsed, err := ParseRequestID(original.String())
	require.NoError(t, err)
	assert.Equal(t, original, parsed)
}

func TestParseRequestID_RejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"empty":    "",
		"garbage":  "not-a-uuid",
		"nil uuid": uuid.Nil.String(),
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRequestID(input)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
		})
	}
}

func TestIsNil(t *testing.T) {
	assert.True(t, UnitID{}.IsNil())
	assert.False(t, NewUnitID().IsNil())
}

func TestParseRole(t *testing.T) {
	for _, role := range []Role{RoleSystemAdmin, RoleSectionHead, RoleStoreHead, RoleUser} {
		parsed, err := ParseRole(role.String())
		require.NoError(t, err)
		assert.Equal(t, role, parsed)
	}
	_, err := ParseRole("Janitor")
	require.Error(t, err)
}

func TestParseRequestStatus(t *testing.T) {
	for _, status := range []RequestStatus{
		StatusPending, StatusSentBack, StatusApproved, StatusAllocated,
		StatusIssued, StatusReturned, StatusRejected, StatusCompleted,
	} {
		parsed, err := ParseRequestStatus(status.String())
		require.NoError(t, err)
		assert.Equal(t, status, parsed)
	}
	_, err := ParseRequestStatus("Misplaced")
	require.Error(t, err)
}

func TestTerminalStatuses(t *testing.T) {
	assert.True(t, StatusRejected.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	for _, s := range []RequestStatus{StatusPending, StatusSentBack, StatusApproved, StatusAllocated, StatusIssued, StatusReturned} {
		assert.False(t, s.Terminal(), s)
	}
}

func TestOnlySystemAdminCrossesUnits(t *testing.T) {
	assert.True(t, RoleSystemAdmin.CrossUnit())
	for _, role := range []Role{RoleSectionHead, RoleStoreHead, RoleUser} {
		assert.False(t, role.CrossUnit(), role)
	}
}
