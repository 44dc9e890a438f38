// Hasher: Neural Inference Engine Powered by SHA-256 ASICs
// Copyright (C) 2026  Guillermo Perry
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Command sunxi-fel talks to an Allwinner SoC sitting in its boot-ROM
// FEL recovery mode: it uploads and executes SPL/U-Boot images, peeks
// and pokes arbitrary memory, and reads the SoC's SID.
package main

import (
	"bufio"
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"sunxi-fel/internal/fel/image"
	"sunxi-fel/internal/fel/loader"
	"sunxi-fel/internal/fel/session"

	"zappem.net/pub/debug/xxd"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	fs := flag.NewFlagSet("sunxi-fel", flag.ContinueOnError)
	verbose := fs.Bool("v", false, "verbose logging")
	fs.BoolVar(verbose, "verbose", false, "verbose logging")
	progress := fs.Bool("p", false, "show transfer progress")
	fs.BoolVar(progress, "progress", false, "show transfer progress")
	dev := fs.String("d", "", "bus:devnum of the FEL device to use")
	fs.StringVar(dev, "dev", "", "bus:devnum of the FEL device to use")
	fs.SetOutput(os.Stderr)

	if err := fs.Parse(argv); err != nil {
		return 1
	}

	bus, addr, err := parseDev(*dev)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sunxi-fel:", err)
		return 1
	}

	sess, err := session.Open(bus, addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sunxi-fel:", err)
		return 2
	}
	defer sess.Close()
	sess.Verbose = *verbose

	cmds := fs.Args()
	for len(cmds) > 0 {
		var name string
		name, cmds = cmds[0], cmds[1:]

		code, rest, err := dispatch(sess, name, cmds, *progress)
		cmds = rest
		if err != nil {
			if code == 2 {
				fmt.Fprintln(os.Stderr, "sunxi-fel:", err)
			} else {
				fmt.Fprintln(os.Stderr, "sunxi-fel:", name+":", err)
			}
			return code
		}
		if code != 0 {
			return code
		}
	}
	return 0
}

// parseDev splits "BUS:DEVNUM" into its two integers; an empty string
// means "autodetect by VID:PID".
func parseDev(s string) (bus, addr int, err error) {
	if s == "" {
		return 0, 0, nil
	}
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid -dev %q, want BUS:DEVNUM", s)
	}
	bus, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid bus in -dev %q: %w", s, err)
	}
	addr, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid devnum in -dev %q: %w", s, err)
	}
	return bus, addr, nil
}

func progressFunc(show bool, label string) func(int) {
	if !show {
		return nil
	}
	return func(sent int) {
		fmt.Fprintf(os.Stderr, "\r%s: %d bytes", label, sent)
	}
}

// dispatch consumes one command (and its fixed-arity arguments) from
// args, returning the exit code to use if it is non-zero, the
// remaining unconsumed arguments, and any error. reset64 signals "stop
// the command loop" on success by returning a nil rest slice even when
// further commands remain.
func dispatch(sess *session.Session, name string, args []string, showProgress bool) (code int, rest []string, err error) {
	need := func(n int) error {
		if len(args) < n {
			return fmt.Errorf("expected %d argument(s), got %d", n, len(args))
		}
		return nil
	}
	parseU32 := func(s string) (uint32, error) {
		v, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), hexOrDec(s), 32)
		return uint32(v), err
	}

	switch name {
	case "spl", "uboot":
		if err := need(1); err != nil {
			return 1, args, err
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return 1, args[1:], err
		}
		soc, err := sess.Soc()
		if err != nil {
			return 2, args[1:], err
		}
		pf := progressFunc(showProgress, name)
		if err := loader.LoadSPL(sess, soc, data, name == "uboot", pf); err != nil {
			return 1, args[1:], err
		}
		return 0, args[1:], nil

	case "hex", "hexdump":
		if err := need(2); err != nil {
			return 1, args, err
		}
		addr64, err := parseU32(args[0])
		if err != nil {
			return 1, args[2:], err
		}
		length, err := strconv.Atoi(args[1])
		if err != nil {
			return 1, args[2:], err
		}
		buf, err := sess.Fel.Read(addr64, length)
		if err != nil {
			return 2, args[2:], err
		}
		fmt.Print(xxd.Dump(buf))
		return 0, args[2:], nil

	case "dump":
		if err := need(2); err != nil {
			return 1, args, err
		}
		addr64, err := parseU32(args[0])
		if err != nil {
			return 1, args[2:], err
		}
		length, err := strconv.Atoi(args[1])
		if err != nil {
			return 1, args[2:], err
		}
		buf, err := sess.Fel.Read(addr64, length)
		if err != nil {
			return 2, args[2:], err
		}
		w := bufio.NewWriter(os.Stdout)
		w.Write(buf)
		w.Flush()
		return 0, args[2:], nil

	case "exe", "execute":
		if err := need(1); err != nil {
			return 1, args, err
		}
		addr64, err := parseU32(args[0])
		if err != nil {
			return 1, args[1:], err
		}
		if err := sess.Fel.Execute(addr64); err != nil {
			return 2, args[1:], err
		}
		return 0, args[1:], nil

	case "reset64":
		if err := need(1); err != nil {
			return 1, args, err
		}
		entry, err := parseU32(args[0])
		if err != nil {
			return 1, args[1:], err
		}
		soc, err := sess.Soc()
		if err != nil {
			return 2, args[1:], err
		}
		if soc.RVBARReg == nil {
			log.Printf("reset64: no RVBAR register known for %s, skipping", soc.Name)
			return 0, args[1:], nil
		}
		gen, err := sess.Generator()
		if err != nil {
			return 2, args[1:], err
		}
		if err := gen.Reset64(entry, *soc.RVBARReg); err != nil {
			return 2, args[1:], err
		}
		// reset64 terminates the command loop: the target is resetting,
		// nothing after this should run. There is no pending U-Boot
		// autostart to cancel: the uboot command starts U-Boot at once.
		return 0, nil, nil

	case "readl":
		if err := need(1); err != nil {
			return 1, args, err
		}
		addr64, err := parseU32(args[0])
		if err != nil {
			return 1, args[1:], err
		}
		gen, err := sess.Generator()
		if err != nil {
			return 2, args[1:], err
		}
		words, err := gen.ReadWords(addr64, 1)
		if err != nil {
			return 2, args[1:], err
		}
		fmt.Println(words[0])
		return 0, args[1:], nil

	case "writel":
		if err := need(2); err != nil {
			return 1, args, err
		}
		addr64, err := parseU32(args[0])
		if err != nil {
			return 1, args[2:], err
		}
		val, err := parseU32(args[1])
		if err != nil {
			return 1, args[2:], err
		}
		if err := sess.GuardWrite(addr64, 4); err != nil {
			return 1, args[2:], err
		}
		gen, err := sess.Generator()
		if err != nil {
			return 2, args[2:], err
		}
		if err := gen.WriteWords(addr64, []uint32{val}); err != nil {
			return 2, args[2:], err
		}
		return 0, args[2:], nil

	case "read":
		if err := need(3); err != nil {
			return 1, args, err
		}
		addr64, err := parseU32(args[0])
		if err != nil {
			return 1, args[3:], err
		}
		length, err := strconv.Atoi(args[1])
		if err != nil {
			return 1, args[3:], err
		}
		buf, err := sess.Fel.Read(addr64, length)
		if err != nil {
			return 2, args[3:], err
		}
		if err := os.WriteFile(args[2], buf, 0o644); err != nil {
			return 1, args[3:], err
		}
		return 0, args[3:], nil

	case "write",
		"write-with-progress", "write-with-gauge", "write-with-xgauge":
		if err := need(2); err != nil {
			return 1, args, err
		}
		addr64, err := parseU32(args[0])
		if err != nil {
			return 1, args[2:], err
		}
		data, err := os.ReadFile(args[1])
		if err != nil {
			return 1, args[2:], err
		}
		if err := sess.GuardWrite(addr64, len(data)); err != nil {
			return 1, args[2:], err
		}
		pf := progressFunc(showProgress || name != "write", name)
		if err := sess.Fel.Write(addr64, data, pf); err != nil {
			return 2, args[2:], err
		}
		if err := maybeScriptHandoff(sess, addr64, data); err != nil {
			return 1, args[2:], err
		}
		return 0, args[2:], nil

	case "multiwrite", "multi", "multiwrite-with-progress", "multi-with-progress",
		"multiwrite-with-gauge", "multi-with-gauge", "multiwrite-with-xgauge", "multi-with-xgauge":
		if err := need(1); err != nil {
			return 1, args, err
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return 1, args[1:], err
		}
		rest := args[1:]
		for i := 0; i < n; i++ {
			if err := need2(rest); err != nil {
				return 1, rest, err
			}
			addr64, err := parseU32(rest[0])
			if err != nil {
				return 1, rest[2:], err
			}
			data, err := os.ReadFile(rest[1])
			if err != nil {
				return 1, rest[2:], err
			}
			if err := sess.GuardWrite(addr64, len(data)); err != nil {
				return 1, rest[2:], err
			}
			pf := progressFunc(showProgress || strings.Contains(name, "with"), fmt.Sprintf("%s[%d]", name, i))
			if err := sess.Fel.Write(addr64, data, pf); err != nil {
				return 2, rest[2:], err
			}
			if err := maybeScriptHandoff(sess, addr64, data); err != nil {
				return 1, rest[2:], err
			}
			rest = rest[2:]
		}
		return 0, rest, nil

	case "echo-gauge":
		if err := need(1); err != nil {
			return 1, args, err
		}
		fmt.Printf("XXX\n0\n%s\nXXX\n", args[0])
		return 0, args[1:], nil

	case "ver", "version":
		v, err := sess.Fel.Version()
		if err != nil {
			return 2, args, err
		}
		soc, err := sess.SocFromVersion(v)
		if err != nil {
			fmt.Printf("AWUSB FEL protocol %d, SoC id 0x%04x (unsupported)\n", v.Protocol, v.SocID)
			return 0, args, nil
		}
		fmt.Printf("AWUSB FEL protocol %d, SoC %s (id 0x%04x)\n", v.Protocol, soc.Name, v.SocID)
		return 0, args, nil

	case "sid":
		soc, err := sess.Soc()
		if err != nil {
			return 2, args, err
		}
		if soc.SIDAddr == nil {
			fmt.Println("SID not available on this SoC")
			return 0, args, nil
		}
		buf, err := sess.Fel.Read(*soc.SIDAddr, 16)
		if err != nil {
			return 2, args, err
		}
		fmt.Printf("%08x%08x%08x%08x\n",
			binary.BigEndian.Uint32(buf[0:4]), binary.BigEndian.Uint32(buf[4:8]),
			binary.BigEndian.Uint32(buf[8:12]), binary.BigEndian.Uint32(buf[12:16]))
		return 0, args, nil

	case "clear":
		if err := need(2); err != nil {
			return 1, args, err
		}
		addr64, err := parseU32(args[0])
		if err != nil {
			return 1, args[2:], err
		}
		length, err := strconv.Atoi(args[1])
		if err != nil {
			return 1, args[2:], err
		}
		if err := sess.GuardWrite(addr64, length); err != nil {
			return 1, args[2:], err
		}
		if err := sess.Fel.Write(addr64, make([]byte, length), nil); err != nil {
			return 2, args[2:], err
		}
		return 0, args[2:], nil

	case "fill":
		if err := need(3); err != nil {
			return 1, args, err
		}
		addr64, err := parseU32(args[0])
		if err != nil {
			return 1, args[3:], err
		}
		length, err := strconv.Atoi(args[1])
		if err != nil {
			return 1, args[3:], err
		}
		val, err := strconv.ParseUint(strings.TrimPrefix(args[2], "0x"), hexOrDec(args[2]), 8)
		if err != nil {
			return 1, args[3:], err
		}
		if err := sess.GuardWrite(addr64, length); err != nil {
			return 1, args[3:], err
		}
		buf := make([]byte, length)
		for i := range buf {
			buf[i] = byte(val)
		}
		if err := sess.Fel.Write(addr64, buf, nil); err != nil {
			return 2, args[3:], err
		}
		return 0, args[3:], nil

	default:
		return 1, args, fmt.Errorf("unknown command %q", name)
	}
}

func need2(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("multiwrite: expected ADDR FILE pair, ran out of arguments")
	}
	return nil
}

// hexOrDec picks base 16 for a "0x"-prefixed literal, base 10
// otherwise.
func hexOrDec(s string) int {
	if strings.HasPrefix(s, "0x") {
		return 16
	}
	return 10
}

// maybeScriptHandoff writes the SCRIPT/uEnv handoff slots when data
// looks like a boot script, per the write-family side effect.
func maybeScriptHandoff(sess *session.Session, addr uint32, data []byte) error {
	isScript := image.ImageType(data) == image.TypeScript || image.IsUEnv(data)
	if !isScript {
		return nil
	}
	soc, err := sess.Soc()
	if err != nil {
		return err
	}
	return loader.WriteScriptHandoff(sess.Fel, soc, addr, uint32(len(data)))
}
