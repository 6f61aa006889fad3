//go:build linux

// Package ioport reads and writes x86 I/O ports through the kernel's
// /dev/port device, one access of 1, 2 or 4 bytes at a time.
package ioport

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-relay/api"
)

// DefaultDevice is the kernel's port I/O device.
const DefaultDevice = "/dev/port"

// maxPort is the last addressable I/O port.
const maxPort = 0xffff

// Device performs port accesses through a port device file.
type Device struct {
	Path string
}

// Read returns width bytes from port addr.
func Read(addr uint64, width int) (uint32, error) {
	return Device{Path: DefaultDevice}.Read(addr, width)
}

// Write stores the low width bytes of v at port addr.
func Write(addr uint64, width int, v uint32) error {
	return Device{Path: DefaultDevice}.Write(addr, width, v)
}

func checkAccess(addr uint64, width int) error {
	switch width {
	case 1, 2, 4:
	default:
		return &api.ArgumentError{Arg: "width", Msg: fmt.Sprintf("unsupported width %d", width)}
	}
	if addr+uint64(width)-1 > maxPort {
		return &api.ArgumentError{Arg: "address", Msg: fmt.Sprintf("port %#x.%d out of range", addr, width)}
	}
	return nil
}

// Read returns width bytes from port addr.
func (d Device) Read(addr uint64, width int) (uint32, error) {
	if err := checkAccess(addr, width); err != nil {
		return 0, err
	}
	fd, err := unix.Open(d.Path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", d.Path, err)
	}
	defer unix.Close(fd)

	var buf [4]byte
	n, err := unix.Pread(fd, buf[:width], int64(addr))
	if err != nil {
		return 0, fmt.Errorf("read port %#x: %w", addr, err)
	}
	if n != width {
		return 0, fmt.Errorf("read port %#x: %w", addr, unix.EIO)
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// Write stores the low width bytes of v at port addr.
func (d Device) Write(addr uint64, width int, v uint32) error {
	if err := checkAccess(addr, width); err != nil {
		return err
	}
	fd, err := unix.Open(d.Path, unix.O_WRONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", d.Path, err)
	}
	defer unix.Close(fd)

	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	n, err := unix.Pwrite(fd, buf[:width], int64(addr))
	if err != nil {
		return fmt.Errorf("write port %#x: %w", addr, err)
	}
	if n != width {
		return fmt.Errorf("write port %#x: %w", addr, unix.EIO)
	}
	return nil
}
