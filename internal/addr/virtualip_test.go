package addr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVirtualAllocator_SequentialFromOne(t *testing.T) {
	t.Parallel()

	v := NewVirtualAllocator(224)
	first, err := v.Next()
	require.NoError(t, err)
	assert.Equal(t, [4]byte{224, 0, 0, 1}, first)

	second, err := v.Next()
	require.NoError(t, err)
	assert.Equal(t, [4]byte{224, 0, 0, 2}, second)
}

func TestVirtualAllocator_SkipsZeroSuffix(t *testing.T) {
	t.Parallel()

	v := &VirtualAllocator{subnet: 224, counter: 0xFF} // next candidate is 224.0.0.255
	a, err := v.Next()
	require.NoError(t, err)
	assert.Equal(t, [4]byte{224, 0, 0, 255}, a)

	// counter is now 0x100 = 224.0.1.0, which must be skipped.
	b, err := v.Next()
	require.NoError(t, err)
	assert.Equal(t, [4]byte{224, 0, 1, 1}, b)
}

func TestVirtualAllocator_Exhaustion(t *testing.T) {
	t.Parallel()

	v := &VirtualAllocator{subnet: 224, counter: 1 << 24}
	_, err := v.Next()
	assert.Error(t, err)
}

func TestVirtualAllocator_CIDR(t *testing.T) {
	t.Parallel()

	v := NewVirtualAllocator(224)
	assert.Equal(t, "224.0.0.0/8", v.CIDR().String())
	assert.Equal(t, byte(224), v.Subnet())
}
