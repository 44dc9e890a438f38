package thunk

import (
	"fmt"

	"sunxi-fel/internal/fel/socdata"
)

// FELtoSPL returns the FEL->SPL transfer stub: for each swap buffer it
// copies size bytes back from buf2 to buf1 (undoing the host-side
// relocation done during upload), then branches into the real SPL
// entry at splAddr. swaps must already exclude the zero-size sentinel
// word that terminates the in-band swap list; FELtoSPL appends it
// itself.
func FELtoSPL(splAddr uint32, swaps []socdata.SwapBuffer) []uint32 {
	a := newAsm()

	type dataWord struct {
		label string
		value uint32
	}
	var data []dataWord

	for i, sw := range swaps {
		srcLbl := fmt.Sprintf("swapSrc%d", i)
		dstLbl := fmt.Sprintf("swapDst%d", i)
		cntLbl := fmt.Sprintf("swapCnt%d", i)
		loopLbl := fmt.Sprintf("swapLoop%d", i)
		doneLbl := fmt.Sprintf("swapDone%d", i)

		a.pcRel(ldrPCBase(r0), srcLbl) // R0 = buf2 (copy source)
		a.pcRel(ldrPCBase(r1), dstLbl) // R1 = buf1 (copy dest)
		a.pcRel(ldrPCBase(r2), cntLbl) // R2 = word count
		a.label(loopLbl)
		a.emit(cmpImm(r2, 0))
		a.branch(0x0 /* EQ */, doneLbl)
		a.emit(ldrPostInc(r3, r0))
		a.emit(strPostInc(r3, r1))
		a.emit(subImm(r2, r2, 1))
		a.branch(condAL, loopLbl)
		a.label(doneLbl)

		data = append(data,
			dataWord{srcLbl, sw.Buf2},
			dataWord{dstLbl, sw.Buf1},
			dataWord{cntLbl, sw.Size / 4},
		)
	}

	a.pcRel(ldrPCBase(r4), "splAddr")
	a.emit(bxReg(r4))
	data = append(data, dataWord{"splAddr", splAddr})
	// Trailing zero-size sentinel: the swap list is framed on the wire
	// as an in-band-terminated sequence even though this stub's copy
	// loops are unrolled at generation time rather than walked at
	// runtime.
	data = append(data, dataWord{"swapListTerminator", 0})

	for _, d := range data {
		a.label(d.label)
		a.emit(d.value)
	}

	return a.finish()
}
