package market

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCredentialSetAndVerify(t *testing.T) {
	store := NewCredentialStore(testManager())
	bob := addr(0xB0)

	require.NoError(t, store.Set(bob, "wefhjyr"))
	require.NoError(t, store.Verify(bob, "wefhjyr"))
}

func TestCredentialWrongSecret(t *testing.T) {
	store := NewCredentialStore(testManager())
	bob := addr(0xB0)
	require.NoError(t, store.Set(bob, "wefhjyr"))

	require.ErrorIs(t, store.Verify(bob, "wrong"), ErrAuthenticationFailed)
}

func TestCredentialAbsentIsSameError(t *testing.T) {
	store := NewCredentialStore(testManager())

	// No credential stored: the failure must be indistinguishable from a
	// wrong credential.
	err := store.Verify(addr(0xB0), "anything")
	require.ErrorIs(t, err, ErrAuthenticationFailed)

	withKey := NewCredentialStore(testManager())
	require.NoError(t, withKey.Set(addr(0xB0), "secret"))
	wrongErr := withKey.Verify(addr(0xB0), "anything")
	require.Equal(t, err.Error(), wrongErr.Error())
}

func TestCredentialOverwrite(t *testing.T) {
	store := NewCredentialStore(testManager())
	bob := addr(0xB0)
	require.NoError(t, store.Set(bob, "first"))
	require.NoError(t, store.Set(bob, "second"))

	require.ErrorIs(t, store.Verify(bob, "first"), ErrAuthenticationFailed)
	require.NoError(t, store.Verify(bob, "second"))
}
