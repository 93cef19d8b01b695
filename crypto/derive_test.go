package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveChannelKeysMirror(t *testing.T) {
	secret := bytes.Repeat([]byte{0x42}, 32)
	salt := []byte("session-salt")

	initiator, err := DeriveChannelKeys(secret, salt, "ABC", RoleInitiator)
	require.NoError(t, err)
	responder, err := DeriveChannelKeys(secret, salt, "ABC", RoleResponder)
	require.NoError(t, err)

	assert.Equal(t, initiator.Transmit, responder.Receive)
	assert.Equal(t, initiator.Receive, responder.Transmit)
	assert.NotEqual(t, initiator.Transmit, initiator.Receive)
	assert.NotEqual(t, initiator.Transmit, responder.Transmit)

	other, err := DeriveChannelKeys(secret, salt, "XYZ", RoleInitiator)
	require.NoError(t, err)
	assert.NotEqual(t, initiator.Transmit, other.Transmit, "tag must separate key domains")
}

func TestDeriveChannelKeysValidation(t *testing.T) {
	_, err := DeriveChannelKeys(make([]byte, 8), nil, "ABC", RoleInitiator)
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = DeriveChannelKeys(make([]byte, 32), nil, "", RoleInitiator)
	assert.Error(t, err)

	_, err = DeriveChannelKeys(make([]byte, 32), nil, "ABC", RoleUndefined)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

// Both ends of a correctly configured channel seal sequence 1 of the same
// plaintext; the ciphertexts must not share a keystream.
func TestDeriveChannelKeysNoSharedKeystream(t *testing.T) {
	secret := bytes.Repeat([]byte{0x07}, 32)
	a, err := DeriveChannelKeys(secret, nil, "ABC", RoleInitiator)
	require.NoError(t, err)
	b, err := DeriveChannelKeys(secret, nil, "ABC", RoleResponder)
	require.NoError(t, err)

	hdr := []byte("hdr")
	plain := bytes.Repeat([]byte{0xaa}, 16)
	ca, _, err := Encrypt(a.Transmit, 1, hdr, plain)
	require.NoError(t, err)
	cb, _, err := Encrypt(b.Transmit, 1, hdr, plain)
	require.NoError(t, err)
	assert.NotEqual(t, ca, cb)
}

func TestRoleNames(t *testing.T) {
	for _, r := range []Role{RoleInitiator, RoleResponder} {
		got, err := ParseRole(r.String())
		require.NoError(t, err)
		assert.Equal(t, r, got)
		assert.Equal(t, r, r.Peer().Peer())
		assert.NotEqual(t, r, r.Peer())
	}
	_, err := ParseRole("")
	assert.Error(t, err)
	assert.Equal(t, RoleUndefined, RoleUndefined.Peer())
}

func TestChannelKeysWipe(t *testing.T) {
	keys := ChannelKeys{Transmit: testKey(1), Receive: testKey(2)}
	keys.Wipe()
	assert.Equal(t, Key{}, keys.Transmit)
	assert.Equal(t, Key{}, keys.Receive)
}

func TestSecureWipe(t *testing.T) {
	data := []byte{1, 2, 3}
	require.NoError(t, SecureWipe(data))
	assert.Equal(t, []byte{0, 0, 0}, data)
	assert.Error(t, SecureWipe(nil))

	fields := SecureFieldHash([]byte("0123456789"), "key")
	assert.Equal(t, "3031323334353637...", fields["key_preview"])
	assert.Equal(t, 10, fields["key_size"])
}
