//go:build linux

// File: internal/pci/pci_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pci_test

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-relay/api"
	"github.com/momentics/hioload-relay/internal/pci"
)

func TestParseBDF(t *testing.T) {
	cases := []struct {
		in   string
		want pci.BDF
	}{
		{"00:00.0", pci.BDF{}},
		{"02:1f.7", pci.BDF{Bus: 2, Slot: 0x1f, Func: 7}},
		{"10:0a.3", pci.BDF{Bus: 10, Slot: 0x0a, Func: 3}},
	}
	for _, tc := range cases {
		got, err := pci.ParseBDF(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
		assert.Equal(t, tc.in, got.String())
	}
}

func TestParseBDFRejects(t *testing.T) {
	for _, in := range []string{"", "255:1f.7", "zz:00.0", "00:20.0", "00:00.8", "00:00", "0"} {
		_, err := pci.ParseBDF(in)
		require.Error(t, err, in)
		assert.ErrorIs(t, err, syscall.EINVAL, in)
	}
}

// fakeDevice lays out a sysfs tree for bdf with the given BAR ranges and a
// page-sized resource0 file.
func fakeDevice(t *testing.T, bdf pci.BDF, bars [][2]uint64) string {
	t.Helper()
	root := t.TempDir()
	dir := pci.DevicePath(root, bdf)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	var table strings.Builder
	for _, b := range bars {
		fmt.Fprintf(&table, "%#018x %#018x %#018x\n", b[0], b[1], uint64(0x40200))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "resource"), []byte(table.String()), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "resource0"), make([]byte, 4096), 0o644))
	return root
}

func TestBARSize(t *testing.T) {
	bdf := pci.BDF{Bus: 0, Slot: 3, Func: 0}
	root := fakeDevice(t, bdf, [][2]uint64{
		{0xfe000000, 0xfe7fffff},
		{0, 0},
		{0xfebf0000, 0xfebf0fff},
	})

	size, err := pci.BARSize(root, bdf, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 8<<20, size)

	size, err = pci.BARSize(root, bdf, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 4096, size)

	_, err = pci.BARSize(root, bdf, 1)
	assert.ErrorIs(t, err, syscall.EIO)

	_, err = pci.BARSize(root, bdf, 5)
	assert.Error(t, err)

	_, err = pci.BARSize(root, pci.BDF{Bus: 1}, 0)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestBARReadWrite(t *testing.T) {
	bdf := pci.BDF{Slot: 4}
	root := fakeDevice(t, bdf, [][2]uint64{{0xfebf0000, 0xfebf0fff}})

	bar, err := pci.OpenBAR(root, bdf, 0, 4096)
	require.NoError(t, err)
	assert.Equal(t, 4096, bar.Len())

	require.NoError(t, bar.Write(0x10, 4, 0xdeadbeef))
	v, err := bar.Read(0x10, 4)
	require.NoError(t, err)
	assert.EqualValues(t, 0xdeadbeef, v)

	require.NoError(t, bar.Write(0x20, 2, 0x12345678))
	v, err = bar.Read(0x20, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 0x5678, v)

	require.NoError(t, bar.Write(0x31, 1, 0xab))
	v, err = bar.Read(0x31, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 0xab, v)

	_, err = bar.Read(0x11, 4)
	assert.ErrorIs(t, err, syscall.EINVAL)
	_, err = bar.Read(4096, 1)
	assert.ErrorIs(t, err, syscall.EINVAL)
	_, err = bar.Read(0xFFFFFFFFFFFFFFFC, 4)
	assert.ErrorIs(t, err, syscall.EINVAL)
	_, err = bar.Read(0, 8)
	assert.ErrorIs(t, err, syscall.EINVAL)

	require.NoError(t, bar.Close())
	require.NoError(t, bar.Close())
	_, err = bar.Read(0, 1)
	assert.ErrorIs(t, err, api.ErrClosed)

	// Writes went through the shared mapping to the file.
	data, err := os.ReadFile(filepath.Join(pci.DevicePath(root, bdf), "resource0"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xef, 0xbe, 0xad, 0xde}, data[0x10:0x14])
}

func TestOpenBARMissing(t *testing.T) {
	_, err := pci.OpenBAR(t.TempDir(), pci.BDF{}, 0, 4096)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
