package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCredentialExpired(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	require.False(t, Credential{}.Expired(now, time.Minute), "zero expiry never expires")
	require.True(t, Credential{ExpiresAt: now.Unix() - 1}.Expired(now, 0))
	require.True(t, Credential{ExpiresAt: now.Unix() + 30}.Expired(now, time.Minute))
	require.False(t, Credential{ExpiresAt: now.Unix() + 3600}.Expired(now, time.Minute))
}

func TestActivityNormalize(t *testing.T) {
	a := Activity{Distance: -4, ElapsedTime: -1, Name: "  "}
	a.Normalize()

	require.Equal(t, UnknownValue, a.Name)
	require.Equal(t, UnknownValue, a.SportType)
	require.Equal(t, UnknownValue, a.Timezone)
	require.Equal(t, UnknownValue, a.Sex)
	require.Zero(t, a.Distance)
	require.Zero(t, a.ElapsedTime)
}

func TestCredentialConnected(t *testing.T) {
	var missing *Credential
	require.False(t, missing.Connected())
	require.False(t, (&Credential{AccessToken: "a"}).Connected())
	require.True(t, (&Credential{AccessToken: "a", RefreshToken: "r"}).Connected())
}
