package addr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIPv4(t *testing.T) {
	t.Parallel()

	a, err := NewIPv4(127, 0, 0, 1, 8000)
	require.NoError(t, err)
	assert.True(t, a.IsIPv4())
	assert.Equal(t, [4]byte{127, 0, 0, 1}, a.IPv4())
	assert.Equal(t, uint16(8000), a.Port())
	assert.Equal(t, "127.0.0.1:8000", a.String())
}

func TestNewIPv4_RejectsZeroPort(t *testing.T) {
	t.Parallel()

	_, err := NewIPv4(127, 0, 0, 1, 0)
	assert.Error(t, err)
}

func TestNewHost(t *testing.T) {
	t.Parallel()

	a, err := NewHost("srv.local.priv", 8000)
	require.NoError(t, err)
	assert.False(t, a.IsIPv4())
	assert.Equal(t, "srv.local.priv", a.Host())
	assert.Equal(t, "srv.local.priv:8000", a.String())
}

func TestNewHost_Validation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		host string
		ok   bool
	}{
		{"empty", "", false},
		{"empty label", "a..b", false},
		{"label too long", string(make([]byte, 64)) + ".com", false},
		{"too long overall", generateLongHostname(256), false},
		{"ok", "a.b.c", true},
		{"single label", "localhost", true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewHost(tc.host, 80)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func generateLongHostname(n int) string {
	labels := make([]byte, 0, n)
	for len(labels) < n {
		if len(labels) > 0 {
			labels = append(labels, '.')
		}
		labels = append(labels, 'a')
	}
	return string(labels)
}

func TestAddress_HostOrIP(t *testing.T) {
	t.Parallel()

	ipAddr, err := NewIPv4(10, 0, 0, 1, 80)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", ipAddr.HostOrIP())

	hostAddr, err := NewHost("example.test", 80)
	require.NoError(t, err)
	assert.Equal(t, "example.test", hostAddr.HostOrIP())
}

func TestAddress_PanicsOnWrongAccessor(t *testing.T) {
	t.Parallel()

	hostAddr, err := NewHost("example.test", 80)
	require.NoError(t, err)
	assert.Panics(t, func() { hostAddr.IPv4() })

	ipAddr, err := NewIPv4(1, 2, 3, 4, 80)
	require.NoError(t, err)
	assert.Panics(t, func() { ipAddr.Host() })
}
