package crypto

import (
	"crypto/subtle"
	"errors"
	"runtime"
)

// SecureWipe overwrites sensitive bytes with zeros. It returns an error if
// the slice is nil.
func SecureWipe(data []byte) error {
	if data == nil {
		return errors.New("cannot wipe nil data")
	}

	zeros := make([]byte, len(data))
	subtle.ConstantTimeCopy(1, data, zeros)

	runtime.KeepAlive(data)
	return nil
}

// WipeKey zeroes a key in place once it has been handed to a cipher.
func WipeKey(k *Key) {
	if k == nil {
		return
	}
	_ = SecureWipe(k[:])
}
