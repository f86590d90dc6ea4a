package dnsmap

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap_InternIsIdempotent(t *testing.T) {
	t.Parallel()

	m := New(224)
	first, err := m.Intern("a.test")
	require.NoError(t, err)
	second, err := m.Intern("a.test")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMap_InternAssignsSequentially(t *testing.T) {
	t.Parallel()

	m := New(224)
	a, err := m.Intern("a.test")
	require.NoError(t, err)
	b, err := m.Intern("b.test")
	require.NoError(t, err)
	aAgain, err := m.Intern("a.test")
	require.NoError(t, err)

	assert.Equal(t, [4]byte{224, 0, 0, 1}, a)
	assert.Equal(t, [4]byte{224, 0, 0, 2}, b)
	assert.Equal(t, [4]byte{224, 0, 0, 1}, aAgain)
}

func TestMap_LookupAndContains(t *testing.T) {
	t.Parallel()

	m := New(224)
	ip, err := m.Intern("a.test")
	require.NoError(t, err)

	host, ok := m.Lookup(ip)
	require.True(t, ok)
	assert.Equal(t, "a.test", host)
	assert.True(t, m.Contains(ip))

	_, ok = m.Lookup([4]byte{224, 9, 9, 9})
	assert.False(t, ok)
	assert.True(t, m.Contains([4]byte{224, 9, 9, 9}), "unassigned address is still in the virtual subnet")
	assert.False(t, m.Contains([4]byte{10, 0, 0, 1}))
}

func TestMap_MonotonicUnderConcurrency(t *testing.T) {
	const n = 200
	m := New(224)

	var wg sync.WaitGroup
	results := make([][4]byte, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ip, err := m.Intern(fmt.Sprintf("host-%d.test", i%20))
			require.NoError(t, err)
			results[i] = ip
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, m.Len(), 20)
	for i := 0; i < n; i++ {
		host, ok := m.Lookup(results[i])
		assert.True(t, ok)
		assert.Equal(t, fmt.Sprintf("host-%d.test", i%20), host)
	}
}
