package bus

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// LoadLuaScript runs a Lua program that builds a workload. The program sees
// three functions:
//
//	write(reg, value)
//	read(reg)
//	idle(cycles)
//
// Each call appends one transaction, so loops and arithmetic in Lua can
// generate long workloads.
func LoadLuaScript(src string) ([]Transaction, error) {
	L := lua.NewState()
	defer L.Close()

	var txns []Transaction

	L.SetGlobal("write", L.NewFunction(func(L *lua.LState) int {
		reg := checkRange(L, 1, 15)
		value := checkRange(L, 2, 0xff)
		txns = append(txns, WriteReg(uint8(reg), uint8(value)))

		return 0
	}))

	L.SetGlobal("read", L.NewFunction(func(L *lua.LState) int {
		reg := checkRange(L, 1, 15)
		txns = append(txns, ReadReg(uint8(reg)))

		return 0
	}))

	L.SetGlobal("idle", L.NewFunction(func(L *lua.LState) int {
		n := checkRange(L, 1, 1<<24)
		txns = append(txns, Idle(n))

		return 0
	}))

	if err := L.DoString(src); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadScript, err)
	}

	return txns, nil
}

func checkRange(L *lua.LState, arg, limit int) int {
	n := L.CheckInt(arg)
	if n < 0 || n > limit {
		L.ArgError(arg, fmt.Sprintf("must be in [0, %d]", limit))
	}

	return n
}
