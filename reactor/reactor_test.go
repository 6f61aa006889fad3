//go:build unix

package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func socketpair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestWaitTimeout(t *testing.T) {
	p, err := NewPoller()
	require.NoError(t, err)

	a, _ := socketpair(t)
	ready := make([]bool, 1)
	start := time.Now()
	n, err := p.Wait([]int{a}, ready, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.False(t, ready[0])
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestWaitReportsReadableInOrder(t *testing.T) {
	p, err := NewPoller()
	require.NoError(t, err)

	a, aPeer := socketpair(t)
	b, bPeer := socketpair(t)
	_, err = unix.Write(bPeer, []byte("x"))
	require.NoError(t, err)

	ready := make([]bool, 2)
	n, err := p.Wait([]int{a, b}, ready, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []bool{false, true}, ready)

	_, err = unix.Write(aPeer, []byte("y"))
	require.NoError(t, err)
	n, err = p.Wait([]int{a, b}, ready, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []bool{true, true}, ready)
}

func TestWaitHangupIsReadable(t *testing.T) {
	p, err := NewPoller()
	require.NoError(t, err)

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	defer unix.Close(fds[0])
	require.NoError(t, unix.Close(fds[1]))

	ready := make([]bool, 1)
	n, err := p.Wait([]int{fds[0]}, ready, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, ready[0])
}

func TestTimeoutMillis(t *testing.T) {
	assert.Equal(t, -1, timeoutMillis(-time.Second))
	assert.Equal(t, 0, timeoutMillis(0))
	assert.Equal(t, 1, timeoutMillis(time.Microsecond))
	assert.Equal(t, 30000, timeoutMillis(DefaultIdleTimeout))
}
