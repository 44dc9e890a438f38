// Package loader implements the staged SPL/U-Boot upload state
// machine: eGON header validation, swap-buffer-aware staging, MMU
// backup/restore, FEL->SPL thunk installation, and handshake
// verification.
package loader

import (
	"encoding/binary"
	"fmt"
	"time"

	"sunxi-fel/internal/fel/felproto"
	"sunxi-fel/internal/fel/image"
	"sunxi-fel/internal/fel/mmu"
	"sunxi-fel/internal/fel/session"
	"sunxi-fel/internal/fel/socdata"
	"sunxi-fel/internal/fel/thunk"
)

// SplLenLimit is the fixed split point between the SPL image and an
// optional trailing U-Boot mkimage tail.
const SplLenLimit = 0x8000

const handshakeDelay = 250 * time.Millisecond

// EffectiveSPLLimit returns the largest contiguous SPL length that
// neither collides with the thunk area nor with any swap buffer's
// buf2 that would fall inside [spl_addr, spl_addr+splLen).
func EffectiveSPLLimit(soc socdata.Info, splLen uint32) uint32 {
	limit := soc.ThunkAddr - soc.SPLAddr
	for _, sw := range soc.SwapBuffers {
		if sw.Buf2 > soc.SPLAddr && sw.Buf2 < soc.SPLAddr+splLen {
			if d := sw.Buf2 - soc.SPLAddr; d < limit {
				limit = d
			}
		}
	}
	return limit
}

// uploadWithSwap streams data starting at soc.SPLAddr, redirecting the
// bytes that would land on each swap buffer's buf1 to its buf2
// instead, per the relocation algorithm: write the contiguous prefix
// up to buf1, write the next size bytes to buf2, then resume the
// cursor at spl_addr+offset (not buf2+size) for the next segment.
func uploadWithSwap(fel *felproto.Client, soc socdata.Info, data []byte, progress func(sent int)) error {
	sent := 0
	report := func(n int) {
		if progress == nil {
			return
		}
		sent += n
		progress(sent)
	}

	offset := 0
	addr := soc.SPLAddr
	for _, sw := range soc.SwapBuffers {
		if offset >= len(data) {
			break
		}
		prefixEnd := int(sw.Buf1 - soc.SPLAddr)
		if prefixEnd > len(data) {
			prefixEnd = len(data)
		}
		if prefixEnd > offset {
			chunk := data[offset:prefixEnd]
			if err := fel.Write(addr, chunk, report); err != nil {
				return fmt.Errorf("upload prefix: %w", err)
			}
			offset = prefixEnd
		}
		if offset >= len(data) {
			break
		}
		swapEnd := offset + int(sw.Size)
		if swapEnd > len(data) {
			swapEnd = len(data)
		}
		if chunk := data[offset:swapEnd]; len(chunk) > 0 {
			if err := fel.Write(sw.Buf2, chunk, report); err != nil {
				return fmt.Errorf("upload swap buffer: %w", err)
			}
		}
		offset = swapEnd
		addr = soc.SPLAddr + uint32(offset)
	}
	if offset < len(data) {
		if err := fel.Write(addr, data[offset:], report); err != nil {
			return fmt.Errorf("upload remainder: %w", err)
		}
	}
	return nil
}

// prepareCPU runs the pre-upload CPU/MMU preparation sequence and
// returns the MMU backup to restore after the handshake. The backup is
// nil whenever the boot ROM left the MMU off, including when a flat
// table was synthesized at soc.MMUTTAddr; RestoreAndEnable then leaves
// the MMU disabled.
func prepareCPU(gen *thunk.Generator, soc socdata.Info) (*mmu.Backup, error) {
	if soc.NeedsL2Enable {
		if err := gen.EnableL2(); err != nil {
			return nil, fmt.Errorf("enable L2: %w", err)
		}
	}

	if _, _, err := gen.ProbeStack(); err != nil {
		return nil, fmt.Errorf("probe stack: %w", err)
	}

	backup, err := mmu.BackupAndDisable(gen)
	if err != nil {
		return nil, fmt.Errorf("mmu backup: %w", err)
	}
	if backup == nil && soc.MMUTTAddr != nil {
		if err := mmu.SynthesizeFlat(gen, soc); err != nil {
			return nil, fmt.Errorf("synthesize mmu table: %w", err)
		}
	}
	return backup, nil
}

// installThunk assembles and uploads the FEL->SPL transfer stub,
// rejecting it if it would not fit the SoC's thunk area.
func installThunk(fel *felproto.Client, soc socdata.Info) error {
	code := thunk.FELtoSPL(soc.SPLAddr, soc.SwapBuffers)
	buf := thunk.WordsToBytes(code)
	if uint32(len(buf)) > soc.ThunkSize {
		return fmt.Errorf("thunk size %d exceeds SoC thunk area %d", len(buf), soc.ThunkSize)
	}
	if err := fel.Write(soc.ThunkAddr, buf, nil); err != nil {
		return fmt.Errorf("upload thunk: %w", err)
	}
	return nil
}

// handshake executes the installed thunk, waits the fixed post-EXEC
// delay, and verifies the SPL rewrote its tag to "eGON.FEL".
func handshake(fel *felproto.Client, soc socdata.Info) error {
	if err := fel.Execute(soc.ThunkAddr); err != nil {
		return fmt.Errorf("execute thunk: %w", err)
	}
	time.Sleep(handshakeDelay)

	tag, err := fel.Read(soc.SPLAddr+4, len(image.EgonFELTag))
	if err != nil {
		return fmt.Errorf("read handshake tag: %w", err)
	}
	if string(tag) != image.EgonFELTag {
		return fmt.Errorf("SPL handshake failed: got %q, want %q", tag, image.EgonFELTag)
	}
	return nil
}

// loadUbootTail parses the mkimage tail past SplLenLimit, uploads its
// data portion to the declared load address, and records the
// resulting range on sess for the write-overwrite guard and optional
// autostart.
func loadUbootTail(sess *session.Session, tail []byte, autostart bool, progress func(sent int)) error {
	if image.ImageType(tail) != image.TypeFirmware {
		return fmt.Errorf("U-Boot tail is not a FIRMWARE mkimage")
	}
	h, err := image.ParseMkimage(tail)
	if err != nil {
		return fmt.Errorf("parse U-Boot tail: %w", err)
	}
	start := mkimageHeaderLen
	end := start + int(h.DataSize)
	if end > len(tail) {
		return fmt.Errorf("U-Boot tail truncated: need %d bytes, have %d", end, len(tail))
	}

	if err := sess.Fel.Write(h.LoadAddr, tail[start:end], progress); err != nil {
		return fmt.Errorf("upload U-Boot image: %w", err)
	}
	sess.SetUbootRange(h.LoadAddr, h.DataSize)

	if autostart {
		if err := sess.Fel.Execute(h.LoadAddr); err != nil {
			return fmt.Errorf("execute U-Boot: %w", err)
		}
	}
	return nil
}

const mkimageHeaderLen = 64

// LoadSPL runs the full staged SPL/U-Boot upload sequence against
// data: validate the eGON header, prepare the CPU (L2, stack probe,
// MMU backup or synthesis), stage the SPL through any swap buffers,
// install and execute the FEL->SPL thunk, verify the handshake, then
// restore the MMU and — if data carries a mkimage tail past
// SplLenLimit — upload it too. autostart controls whether the U-Boot
// tail (if any) is executed immediately; the spl command passes
// false, the uboot command passes true.
func LoadSPL(sess *session.Session, soc socdata.Info, data []byte, autostart bool, progress func(sent int)) error {
	splLen := len(data)
	if splLen > SplLenLimit {
		splLen = SplLenLimit
	}
	splData := data[:splLen]

	hdr, err := image.ParseEgon(splData)
	if err != nil {
		return fmt.Errorf("parse eGON header: %w", err)
	}
	if err := image.VerifyChecksum(splData, hdr); err != nil {
		return err
	}
	// Only the checksummed eGON length is uploaded as the SPL.
	splData = splData[:hdr.Length]
	splLen = len(splData)

	limit := EffectiveSPLLimit(soc, uint32(splLen))
	if uint32(splLen) > limit {
		return fmt.Errorf("SPL length %d exceeds effective limit %d for %s", splLen, limit, soc.Name)
	}

	gen, err := sess.Generator()
	if err != nil {
		return err
	}

	backup, err := prepareCPU(gen, soc)
	if err != nil {
		return err
	}

	if err := uploadWithSwap(sess.Fel, soc, splData, progress); err != nil {
		return err
	}
	if err := installThunk(sess.Fel, soc); err != nil {
		return err
	}
	if err := handshake(sess.Fel, soc); err != nil {
		return err
	}
	if err := mmu.RestoreAndEnable(gen, backup); err != nil {
		return fmt.Errorf("restore mmu: %w", err)
	}

	if len(data) > SplLenLimit {
		if err := loadUbootTail(sess, data[SplLenLimit:], autostart, progress); err != nil {
			return err
		}
	}
	return nil
}

// WriteScriptHandoff writes (address, length) into the SPL header's
// handoff slots at spl_addr+0x18, but only when the SPL currently
// installed at soc.SPLAddr is the sunxi variant (tag "SPL", version
// 1). Called after a write-family command uploads a SCRIPT-typed
// mkimage or a raw uEnv script.
func WriteScriptHandoff(fel *felproto.Client, soc socdata.Info, address, length uint32) error {
	hdr, err := fel.Read(soc.SPLAddr, 0x20)
	if err != nil {
		return fmt.Errorf("read SPL header for handoff: %w", err)
	}
	// Only the SPL tag and version are checked: after a successful run
	// the SPL has rewritten its eGON tag to "eGON.FEL".
	eg := &image.EgonHeader{SPLVersion: hdr[0x17]}
	copy(eg.SPLTag[:], hdr[0x14:0x17])
	if !image.IsSunxiSPL(eg) {
		return nil
	}

	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], address)
	binary.LittleEndian.PutUint32(buf[4:8], length)
	if err := fel.Write(soc.SPLAddr+0x18, buf, nil); err != nil {
		return fmt.Errorf("write script handoff: %w", err)
	}
	return nil
}
