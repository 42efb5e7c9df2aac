package market

import (
	"crypto/sha256"
	"crypto/subtle"

	"groupbuy/core/state"
)

var credentialPrefix = []byte("market:credential:")

// zeroCredential is compared against when no credential is stored, so the
// verification path costs the same whether or not the account ever set one.
var zeroCredential [sha256.Size]byte

// CredentialStore keeps one sha-256 credential hash per account. Credentials
// gate item removal and the authenticated read surface.
type CredentialStore struct {
	st *state.Manager
}

// NewCredentialStore creates a store backed by the provided state manager.
func NewCredentialStore(st *state.Manager) *CredentialStore {
	return &CredentialStore{st: st}
}

func credentialKey(account [20]byte) []byte {
	buf := make([]byte, 0, len(credentialPrefix)+len(account))
	buf = append(buf, credentialPrefix...)
	buf = append(buf, account[:]...)
	return buf
}

func hashCredential(secret string) [sha256.Size]byte {
	return sha256.Sum256([]byte(secret))
}

// Set stores (or overwrites) the account's credential hash. Credentials are
// never created implicitly.
func (s *CredentialStore) Set(account [20]byte, secret string) error {
	hash := hashCredential(secret)
	return s.st.KVPut(credentialKey(account), hash[:])
}

// Verify checks the presented secret against the stored hash. The comparison
// runs in constant time, and when no hash is stored it still runs against a
// zero buffer before failing, so response timing reveals neither whether a
// credential exists nor where a mismatch occurs. Every failure is the same
// ErrAuthenticationFailed.
func (s *CredentialStore) Verify(account [20]byte, secret string) error {
	presented := hashCredential(secret)
	var stored []byte
	ok, err := s.st.KVGet(credentialKey(account), &stored)
	if err != nil {
		return err
	}
	if !ok || len(stored) != sha256.Size {
		subtle.ConstantTimeCompare(presented[:], zeroCredential[:])
		return ErrAuthenticationFailed
	}
	if subtle.ConstantTimeCompare(presented[:], stored) != 1 {
		return ErrAuthenticationFailed
	}
	return nil
}
