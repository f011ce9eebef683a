package session

import (
	"fmt"
	"strconv"
	"strings"
)

// RenderRegister formats a register for display: small values as signed
// decimal, anything else as 32-bit unsigned hex.
func RenderRegister(v int32) string {
	if v > -1024 && v < 1024 {
		return strconv.Itoa(int(v))
	}
	return hex32(uint32(v))
}

func hex32(v uint32) string {
	return fmt.Sprintf("0x%08X", v)
}

// parseAddress reads a memory reference: hex with a 0x prefix, decimal
// otherwise.
func parseAddress(ref string) (int64, error) {
	ref = strings.TrimSpace(ref)
	if hex, ok := strings.CutPrefix(ref, "0x"); ok {
		return strconv.ParseInt(hex, 16, 64)
	}
	if hex, ok := strings.CutPrefix(ref, "0X"); ok {
		return strconv.ParseInt(hex, 16, 64)
	}
	return strconv.ParseInt(ref, 10, 64)
}
