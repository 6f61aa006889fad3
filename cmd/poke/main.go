//go:build linux

// File: cmd/poke/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// poke reads and writes device registers: x86 I/O ports through
// /dev/port and PCI memory BARs through sysfs.
package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/momentics/hioload-relay/api"
	"github.com/momentics/hioload-relay/control"
	"github.com/momentics/hioload-relay/internal/ioport"
	"github.com/momentics/hioload-relay/internal/pci"
)

// mmioWriteLen is the span mapped for a register write.
const mmioWriteLen = 4096

type env struct {
	sysfsRoot string
	ports     ioport.Device
	out       io.Writer
	log       *zap.Logger
}

type command struct {
	name  string
	usage string
	desc  string
	nargs int
	run   func(e *env, args []string) error
}

var commands []command

func init() {
	commands = []command{
		{"help", "", "Display usage.", 0, func(e *env, _ []string) error {
			printCommands(e.out)
			return nil
		}},
		{"io-read", "<address> <b|w|l>", "Read 1|2|4 bytes from IO port at <address>.", 2, ioRead},
		{"io-write", "<address> <b|w|l> <value>", "Write 1|2|4 bytes <value> to IO port at <address>.", 3, ioWrite},
		{"mmio-read", "<pci-bdf> <BAR-id> <register-address> <b|w|l>",
			"Read 1|2|4 bytes from device <pci-bdf> <BAR-id> at <register-address>.", 4, mmioRead},
		{"mmio-write", "<pci-bdf> <BAR-id> <register-address> <b|w|l> <value>",
			"Write 1|2|4 bytes from <value> to device <pci-bdf> <BAR-id> at <register-address>.", 5, mmioWrite},
	}
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, out io.Writer) int {
	e := &env{out: out}
	var verbose bool
	flags := pflag.NewFlagSet("poke", pflag.ContinueOnError)
	flags.SetInterspersed(false)
	flags.StringVar(&e.sysfsRoot, "sysfs-root", pci.DefaultSysfsRoot, "sysfs mount point")
	flags.StringVar(&e.ports.Path, "port-device", ioport.DefaultDevice, "I/O port device")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
	if err := flags.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			printCommands(out)
			return 0
		}
		fmt.Fprintf(os.Stderr, "poke: %v\n", err)
		return api.ExitCode(&api.ArgumentError{Arg: "flags", Msg: err.Error()})
	}

	log, err := control.NewLogger(verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "poke: logger: %v\n", err)
		return 1
	}
	defer log.Sync() //nolint:errcheck
	e.log = log.Named("poke")

	rest := flags.Args()
	if len(rest) == 0 {
		printCommands(out)
		return 0
	}
	for _, c := range commands {
		if c.name != rest[0] {
			continue
		}
		e.log.Debug("found command", zap.String("command", c.name))
		cargs := rest[1:]
		if len(cargs) != c.nargs {
			err = &api.ArgumentError{Arg: c.name, Msg: "usage: " + c.name + " " + c.usage}
		} else {
			err = c.run(e, cargs)
		}
		if err != nil {
			e.log.Error("command failed", zap.String("command", c.name), zap.Error(err))
			return api.ExitCode(err)
		}
		return 0
	}
	e.log.Error("unknown command", zap.String("command", rest[0]))
	printCommands(out)
	return api.ExitCode(&api.ArgumentError{Arg: "command", Msg: rest[0]})
}

func printCommands(w io.Writer) {
	for _, c := range commands {
		fmt.Fprintf(w, "%s:\t%s\n\t\t%s\n", c.name, c.usage, c.desc)
	}
}

// parseWidth maps the b, w and l size tokens to byte counts.
func parseWidth(s string) (int, error) {
	if s != "" {
		switch s[0] {
		case 'b':
			return 1, nil
		case 'w':
			return 2, nil
		case 'l':
			return 4, nil
		}
	}
	return 0, &api.ArgumentError{Arg: "size", Msg: "expected b, w or l, got " + strconv.Quote(s)}
}

func parseNum(arg, s string, bits int) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, bits)
	if err != nil {
		return 0, &api.ArgumentError{Arg: arg, Msg: err.Error()}
	}
	return v, nil
}

func widthSuffix(width int) string {
	return map[int]string{1: "b", 2: "w", 4: "l"}[width]
}

func ioRead(e *env, args []string) error {
	addr, err := parseNum("address", args[0], 64)
	if err != nil {
		return err
	}
	width, err := parseWidth(args[1])
	if err != nil {
		return err
	}
	v, err := e.ports.Read(addr, width)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "io-read: in%s(%#x) -> %#x\n", widthSuffix(width), addr, v)
	return nil
}

func ioWrite(e *env, args []string) error {
	addr, err := parseNum("address", args[0], 64)
	if err != nil {
		return err
	}
	width, err := parseWidth(args[1])
	if err != nil {
		return err
	}
	v, err := parseNum("value", args[2], 32)
	if err != nil {
		return err
	}
	if err := e.ports.Write(addr, width, uint32(v)); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "io-write: out%s(%#x, %#x)\n", widthSuffix(width), v, addr)
	return nil
}

type mmioTarget struct {
	bdf   pci.BDF
	bar   int
	reg   uint64
	width int
}

func parseMMIO(args []string) (mmioTarget, error) {
	var t mmioTarget
	bdf, err := pci.ParseBDF(args[0])
	if err != nil {
		return t, err
	}
	bar, err := parseNum("bar", args[1], 8)
	if err != nil {
		return t, err
	}
	if bar > 5 {
		return t, &api.ArgumentError{Arg: "bar", Msg: "BAR id must be 0-5"}
	}
	reg, err := parseNum("register", args[2], 64)
	if err != nil {
		return t, err
	}
	width, err := parseWidth(args[3])
	if err != nil {
		return t, err
	}
	return mmioTarget{bdf: bdf, bar: int(bar), reg: reg, width: width}, nil
}

func mmioRead(e *env, args []string) error {
	t, err := parseMMIO(args)
	if err != nil {
		return err
	}
	size, err := pci.BARSize(e.sysfsRoot, t.bdf, t.bar)
	if err != nil {
		return err
	}
	e.log.Info("mapping BAR", zap.Stringer("bdf", t.bdf), zap.Int("bar", t.bar), zap.Uint64("size_kib", size/1024))
	bar, err := pci.OpenBAR(e.sysfsRoot, t.bdf, t.bar, int(size))
	if err != nil {
		return err
	}
	defer bar.Close()

	v, err := bar.Read(t.reg, t.width)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "mmio-read: %s BAR%d %#x.%s -> %#x\n", t.bdf, t.bar, t.reg, widthSuffix(t.width), v)
	return nil
}

func mmioWrite(e *env, args []string) error {
	t, err := parseMMIO(args[:4])
	if err != nil {
		return err
	}
	v, err := parseNum("value", args[4], 32)
	if err != nil {
		return err
	}
	bar, err := pci.OpenBAR(e.sysfsRoot, t.bdf, t.bar, mmioWriteLen)
	if err != nil {
		return err
	}
	defer bar.Close()

	if err := bar.Write(t.reg, t.width, uint32(v)); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "mmio-write: %s BAR%d %#x.%s <- %#x\n", t.bdf, t.bar, t.reg, widthSuffix(t.width), v)
	return nil
}
