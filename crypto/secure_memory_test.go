package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWipeKey(t *testing.T) {
	k := testKey(0x5a)
	WipeKey(&k)
	assert.Equal(t, Key{}, k)

	assert.NotPanics(t, func() { WipeKey(nil) })
}

func TestSecureWipeEmpty(t *testing.T) {
	assert.NoError(t, SecureWipe([]byte{}))
}
