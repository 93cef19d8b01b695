package crypto

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// ChannelKeys is the directional key pair for one channel as seen by one peer.
type ChannelKeys struct {
	Transmit Key
	Receive  Key
}

// Wipe zeroes both keys.
func (k *ChannelKeys) Wipe() {
	WipeKey(&k.Transmit)
	WipeKey(&k.Receive)
}

// Role selects which derived key an endpoint transmits on. The two ends of
// a channel must hold different roles, otherwise both would seal under one
// key with the same sequence numbers.
type Role int

const (
	// RoleUndefined is rejected by DeriveChannelKeys.
	RoleUndefined Role = iota
	RoleInitiator
	RoleResponder
)

// String returns the configuration name of the role.
func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleResponder:
		return "responder"
	default:
		return "undefined"
	}
}

// Peer returns the role the other end must hold.
func (r Role) Peer() Role {
	switch r {
	case RoleInitiator:
		return RoleResponder
	case RoleResponder:
		return RoleInitiator
	default:
		return RoleUndefined
	}
}

// ParseRole accepts the names printed by Role.String.
func ParseRole(name string) (Role, error) {
	switch name {
	case "initiator":
		return RoleInitiator, nil
	case "responder":
		return RoleResponder, nil
	default:
		return RoleUndefined, fmt.Errorf("unknown key role %q", name)
	}
}

// DeriveChannelKeys expands a session secret into directional channel keys
// with HKDF-SHA256. Each direction is expanded under its own label naming the
// sending role, so the transmit keys of the two roles never coincide.
func DeriveChannelKeys(secret, salt []byte, channelTag string, role Role) (ChannelKeys, error) {
	var keys ChannelKeys
	if len(secret) < KeySize {
		return keys, fmt.Errorf("%w: secret shorter than %d bytes", ErrInvalidKey, KeySize)
	}
	if channelTag == "" {
		return keys, errors.New("channel tag required for key derivation")
	}
	if role != RoleInitiator && role != RoleResponder {
		return keys, fmt.Errorf("%w: key role %s", ErrInvalidKey, role)
	}

	var err error
	if keys.Transmit, err = expandDirection(secret, salt, channelTag, role); err != nil {
		return keys, err
	}
	if keys.Receive, err = expandDirection(secret, salt, channelTag, role.Peer()); err != nil {
		keys.Wipe()
		return keys, err
	}

	NewLogger("DeriveChannelKeys").
		WithFields(SecureFieldHash(salt, "salt")).
		WithField("channel_tag", channelTag).
		WithField("role", role.String()).
		Debug("Derived channel keys")
	return keys, nil
}

// expandDirection derives the key the sender role seals with.
func expandDirection(secret, salt []byte, channelTag string, sender Role) (Key, error) {
	var k Key
	info := []byte("afvoice channel " + channelTag + " sender " + sender.String())
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, info), k[:]); err != nil {
		return k, fmt.Errorf("derive %s key: %w", sender, err)
	}
	return k, nil
}
