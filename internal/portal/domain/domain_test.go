package domain_test

import (
	"testing"

	"github.com/estatevault/portal/internal/portal/domain"
	"github.com/stretchr/testify/require"
)

func TestRoleValid(t *testing.T) {
	require.True(t, domain.RoleClient.Valid())
	require.True(t, domain.RoleAdmin.Valid())
	require.True(t, domain.RoleSupport.Valid())
	require.False(t, domain.Role("owner").Valid())
	require.False(t, domain.Role("").Valid())
}

func TestTwoFactorEnabled(t *testing.T) {
	secret := "JBSWY3DPEHPK3PXP"

	tests := []struct {
		name string
		user domain.User
		want bool
	}{
		{"disabled", domain.User{TwoFactorState: domain.TwoFactorDisabled}, false},
		{"pending", domain.User{TwoFactorState: domain.TwoFactorPending, TwoFactorSecret: &secret}, false},
		{"enabled", domain.User{TwoFactorState: domain.TwoFactorEnabled, TwoFactorSecret: &secret}, true},
		{"enabled without secret", domain.User{TwoFactorState: domain.TwoFactorEnabled}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.user.TwoFactorEnabled())
		})
	}
}

func TestBroadcast(t *testing.T) {
	admin := "admin-1"
	require.True(t, domain.ChatMessage{}.Broadcast())
	require.False(t, domain.ChatMessage{RecipientID: &admin}.Broadcast())
}
