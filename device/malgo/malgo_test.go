package malgo

import (
	"testing"

	"github.com/opd-ai/afvoice/device"
	"github.com/stretchr/testify/assert"
)

func TestInt16View(t *testing.T) {
	view := int16View([]byte{0x01, 0x00, 0xff, 0xff, 0x00, 0x80})
	assert.Equal(t, []int16{1, -1, -32768}, view)
}

func TestInitContextRejectsUnknownAPI(t *testing.T) {
	_, err := initContext(device.API(9999))
	assert.Error(t, err)
}

func TestAPINamesAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for _, name := range apiNames {
		assert.False(t, seen[name], name)
		seen[name] = true
	}
}

func TestBackendImplementsDevice(t *testing.T) {
	var _ device.Backend = New()
}
