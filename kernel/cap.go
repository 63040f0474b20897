package kernel

import (
	"fmt"
)

// Cap is a module-local capability index. Indices mean nothing outside the
// table of the module that holds them.
type Cap uint32

// Null is the reserved index. It never names a live capability.
const Null Cap = 0

// MaxArgs is the largest number of capability arguments a call carries.
const MaxArgs = 4

// Region is a window onto a module's memory arena.
type Region struct {
	Base   uint32
	Length uint32
}

func (r Region) String() string {
	return fmt.Sprintf("[%d, %d)", r.Base, uint64(r.Base)+uint64(r.Length))
}

var callOps = [MaxArgs + 1]string{
	"handle_call0",
	"handle_call1",
	"handle_call2",
	"handle_call3",
	"handle_call4",
}

func callOp(argc int) string {
	if argc >= 0 && argc < len(callOps) {
		return callOps[argc]
	}
	return fmt.Sprintf("handle_call%d", argc)
}
