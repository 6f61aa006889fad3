//go:build linux

package ioport_test

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-relay/internal/ioport"
)

// A sparse regular file stands in for /dev/port: offsets are port numbers.
func fakePorts(t *testing.T) ioport.Device {
	t.Helper()
	path := filepath.Join(t.TempDir(), "port")
	require.NoError(t, os.WriteFile(path, make([]byte, 0x10000), 0o600))
	return ioport.Device{Path: path}
}

func TestReadWriteWidths(t *testing.T) {
	dev := fakePorts(t)

	require.NoError(t, dev.Write(0x3f8, 1, 0x1ff))
	v, err := dev.Read(0x3f8, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 0xff, v)

	require.NoError(t, dev.Write(0xcf8, 4, 0x80000010))
	v, err = dev.Read(0xcf8, 4)
	require.NoError(t, err)
	assert.EqualValues(t, 0x80000010, v)
	v, err = dev.Read(0xcf8, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 0x0010, v)
}

func TestRejectsBadAccess(t *testing.T) {
	dev := fakePorts(t)
	_, err := dev.Read(0x10, 3)
	assert.ErrorIs(t, err, syscall.EINVAL)
	_, err = dev.Read(0xffff, 2)
	assert.ErrorIs(t, err, syscall.EINVAL)
	assert.ErrorIs(t, dev.Write(0x10000, 1, 0), syscall.EINVAL)
}

func TestMissingDevice(t *testing.T) {
	dev := ioport.Device{Path: filepath.Join(t.TempDir(), "none")}
	_, err := dev.Read(0x80, 1)
	assert.ErrorIs(t, err, syscall.ENOENT)
}
