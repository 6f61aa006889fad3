//go:build linux

// File: internal/pci/pci.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// PCI function addressing and memory BAR access through sysfs.

package pci

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"unsafe"

	"go.uber.org/multierr"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-relay/api"
)

// DefaultSysfsRoot is where the kernel exposes PCI buses.
const DefaultSysfsRoot = "/sys"

// resourceLineLen is the fixed width of one line of a sysfs resource file.
const resourceLineLen = 57

// BDF names a PCI function as bus, slot (device) and function numbers.
type BDF struct {
	Bus  uint8
	Slot uint8
	Func uint8
}

func (b BDF) String() string {
	return fmt.Sprintf("%02d:%02x.%x", b.Bus, b.Slot, b.Func)
}

// ParseBDF parses "BB:SS.F": a decimal bus at offset 0, a hex slot at
// offset 3 and a hex function at offset 6. Each field is read up to its
// first non-digit.
func ParseBDF(s string) (BDF, error) {
	bus, err := leadingUint(s, 0, 10)
	if err != nil {
		return BDF{}, err
	}
	slot, err := leadingUint(s, 3, 16)
	if err != nil {
		return BDF{}, err
	}
	fn, err := leadingUint(s, 6, 16)
	if err != nil {
		return BDF{}, err
	}
	if bus > 0xff || slot > 0x1f || fn > 0x7 {
		return BDF{}, &api.ArgumentError{Arg: "bdf", Msg: strconv.Quote(s) + " out of range"}
	}
	return BDF{Bus: uint8(bus), Slot: uint8(slot), Func: uint8(fn)}, nil
}

func leadingUint(s string, off, base int) (uint64, error) {
	bad := &api.ArgumentError{Arg: "bdf", Msg: "malformed " + strconv.Quote(s)}
	if off >= len(s) {
		return 0, bad
	}
	end := off
	for end < len(s) && isDigit(s[end], base) {
		end++
	}
	if end == off {
		return 0, bad
	}
	v, err := strconv.ParseUint(s[off:end], base, 64)
	if err != nil {
		return 0, &api.ArgumentError{Arg: "bdf", Msg: err.Error()}
	}
	return v, nil
}

func isDigit(c byte, base int) bool {
	switch {
	case c >= '0' && c <= '9':
		return true
	case base == 16 && (c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'):
		return true
	}
	return false
}

// DevicePath returns the sysfs directory of bdf in PCI domain 0.
func DevicePath(sysfsRoot string, bdf BDF) string {
	bus := fmt.Sprintf("0000:%02d", bdf.Bus)
	return filepath.Join(sysfsRoot, "class", "pci_bus", bus, "device",
		fmt.Sprintf("%s:%02x.%x", bus, bdf.Slot, bdf.Func))
}

// BARSize reads the size of memory BAR bar from the device's resource
// table.
func BARSize(sysfsRoot string, bdf BDF, bar int) (uint64, error) {
	path := filepath.Join(DevicePath(sysfsRoot, bdf), "resource")
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	line := make([]byte, resourceLineLen)
	n, err := f.ReadAt(line, int64(bar)*resourceLineLen)
	if n != resourceLineLen {
		if err == nil {
			err = unix.EIO
		}
		return 0, fmt.Errorf("%s line %d: %w", path, bar, err)
	}
	fields := bytes.Fields(line[:resourceLineLen-1])
	if len(fields) != 3 {
		return 0, fmt.Errorf("%s line %d: %w", path, bar, unix.EIO)
	}
	var vals [3]uint64
	for i, field := range fields {
		v, err := strconv.ParseUint(string(bytes.TrimPrefix(field, []byte("0x"))), 16, 64)
		if err != nil {
			return 0, fmt.Errorf("%s line %d: %w", path, bar, err)
		}
		vals[i] = v
	}
	start, end := vals[0], vals[1]
	if start == 0 && end == 0 {
		return 0, fmt.Errorf("%s BAR%d unassigned: %w", path, bar, unix.EIO)
	}
	return (^start & end) + 1, nil
}

// BAR is a mapped memory BAR.
type BAR struct {
	path string
	file *os.File
	mem  []byte
}

// OpenBAR maps length bytes of bdf's resource file for bar, read-write
// and shared.
func OpenBAR(sysfsRoot string, bdf BDF, bar int, length int) (*BAR, error) {
	path := filepath.Join(DevicePath(sysfsRoot, bdf), "resource"+strconv.Itoa(bar))
	f, err := os.OpenFile(path, os.O_RDWR|unix.O_SYNC, 0)
	if err != nil {
		return nil, err
	}
	mem, err := unix.Mmap(int(f.Fd()), 0, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, &os.PathError{Op: "mmap", Path: path, Err: err}
	}
	return &BAR{path: path, file: f, mem: mem}, nil
}

// Len returns the mapped length.
func (b *BAR) Len() int { return len(b.mem) }

func (b *BAR) check(off uint64, width int) error {
	switch width {
	case 1, 2, 4:
	default:
		return &api.ArgumentError{Arg: "width", Msg: fmt.Sprintf("unsupported width %d", width)}
	}
	if b.mem == nil {
		return api.ErrClosed
	}
	if off%uint64(width) != 0 || off >= uint64(len(b.mem)) || uint64(len(b.mem))-off < uint64(width) {
		return &api.ArgumentError{Arg: "offset", Msg: fmt.Sprintf("%#x.%d outside %s", off, width, b.path)}
	}
	return nil
}

// Read loads one register of width 1, 2 or 4 bytes at off.
func (b *BAR) Read(off uint64, width int) (uint32, error) {
	if err := b.check(off, width); err != nil {
		return 0, err
	}
	p := unsafe.Pointer(&b.mem[off])
	switch width {
	case 1:
		return uint32(*(*uint8)(p)), nil
	case 2:
		return uint32(*(*uint16)(p)), nil
	default:
		return *(*uint32)(p), nil
	}
}

// Write stores the low width bytes of v at off.
func (b *BAR) Write(off uint64, width int, v uint32) error {
	if err := b.check(off, width); err != nil {
		return err
	}
	p := unsafe.Pointer(&b.mem[off])
	switch width {
	case 1:
		*(*uint8)(p) = uint8(v)
	case 2:
		*(*uint16)(p) = uint16(v)
	default:
		*(*uint32)(p) = v
	}
	return nil
}

// Close unmaps the BAR and closes its file.
func (b *BAR) Close() error {
	if b.mem == nil {
		return nil
	}
	err := unix.Munmap(b.mem)
	b.mem = nil
	return multierr.Append(err, b.file.Close())
}

