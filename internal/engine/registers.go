package engine

import "fmt"

// Layout of the flat register dump.
const (
	regWrittenMask = 32
	regHI          = 33
	regLO          = 34
	regHIPresent   = 35
	regLOPresent   = 36
	regPC          = 37

	// RegisterDumpLen is the number of words in a register dump.
	RegisterDumpLen = 38
)

// GeneralRegisterNames are the conventional names of the 32 general purpose
// registers, in register number order.
var GeneralRegisterNames = [32]string{
	"zero", "at", "v0", "v1", "a0", "a1", "a2", "a3",
	"t0", "t1", "t2", "t3", "t4", "t5", "t6", "t7",
	"s0", "s1", "s2", "s3", "s4", "s5", "s6", "s7",
	"t8", "t9", "k0", "k1", "gp", "sp", "fp", "ra",
}

// Registers is a decoded register dump.
type Registers struct {
	GPR [32]int32
	// Written has bit i set when GPR[i] holds a meaningful value.
	Written uint32
	HI      int32
	LO      int32
	HasHI   bool
	HasLO   bool
	PC      uint32
}

// IsWritten reports whether general purpose register i has been written.
func (r Registers) IsWritten(i int) bool {
	return i >= 0 && i < 32 && r.Written&(1<<uint(i)) != 0
}

// DecodeRegisters decodes a flat register dump.
func DecodeRegisters(words []int32) (Registers, error) {
	if len(words) < RegisterDumpLen {
		return Registers{}, fmt.Errorf("%w: register dump has %d words, want %d",
			ErrMalformedSnapshot, len(words), RegisterDumpLen)
	}

	var regs Registers
	copy(regs.GPR[:], words[:32])
	regs.Written = uint32(words[regWrittenMask])
	regs.HI = words[regHI]
	regs.LO = words[regLO]
	regs.HasHI = words[regHIPresent] != 0
	regs.HasLO = words[regLOPresent] != 0
	regs.PC = uint32(words[regPC])
	return regs, nil
}

// Encode returns the flat dump form of r.
func (r Registers) Encode() []int32 {
	words := make([]int32, RegisterDumpLen)
	copy(words, r.GPR[:])
	words[regWrittenMask] = int32(r.Written)
	words[regHI] = r.HI
	words[regLO] = r.LO
	if r.HasHI {
		words[regHIPresent] = 1
	}
	if r.HasLO {
		words[regLOPresent] = 1
	}
	words[regPC] = int32(r.PC)
	return words
}
