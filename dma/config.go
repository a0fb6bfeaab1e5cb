package dma

import (
	"github.com/sarchlab/pl8sim/mem"
)

// DREQPermanent selects an unpaced transfer, which runs as fast as the
// controller can move data.
const DREQPermanent = 0x3f

// Config is the transfer configuration of a channel.
type Config struct {
	HighPriority   bool
	DREQ           int
	DataSize       mem.AccessSize
	ReadIncrement  bool
	WriteIncrement bool
}

// DefaultConfig returns the configuration a channel starts with: unpaced,
// 32-bit transfers that increment the read address only.
func DefaultConfig() Config {
	return Config{
		DREQ:          DREQPermanent,
		DataSize:      mem.Size32,
		ReadIncrement: true,
	}
}

// CTRL register fields.
const (
	ctrlEnable        uint32 = 1 << 0
	ctrlHighPriority  uint32 = 1 << 1
	ctrlDataSizeShift        = 2
	ctrlDataSizeMask  uint32 = 0x3 << ctrlDataSizeShift
	ctrlIncrRead      uint32 = 1 << 4
	ctrlIncrWrite     uint32 = 1 << 5
	ctrlTreqShift            = 15
	ctrlTreqMask      uint32 = 0x3f << ctrlTreqShift
	ctrlBusy          uint32 = 1 << 24
	ctrlWriteError    uint32 = 1 << 29
	ctrlReadError     uint32 = 1 << 30
	ctrlAHBError      uint32 = 1 << 31
)

// Encode packs the configuration into a CTRL register value with the
// enable bit set.
func (c Config) Encode() uint32 {
	v := ctrlEnable
	v |= uint32(sizeCode(c.DataSize)) << ctrlDataSizeShift
	v |= uint32(c.DREQ&0x3f) << ctrlTreqShift

	if c.HighPriority {
		v |= ctrlHighPriority
	}

	if c.ReadIncrement {
		v |= ctrlIncrRead
	}

	if c.WriteIncrement {
		v |= ctrlIncrWrite
	}

	return v
}

// DecodeConfig unpacks the configuration fields of a CTRL register value.
func DecodeConfig(v uint32) Config {
	return Config{
		HighPriority:   v&ctrlHighPriority != 0,
		DREQ:           int((v & ctrlTreqMask) >> ctrlTreqShift),
		DataSize:       sizeOf((v & ctrlDataSizeMask) >> ctrlDataSizeShift),
		ReadIncrement:  v&ctrlIncrRead != 0,
		WriteIncrement: v&ctrlIncrWrite != 0,
	}
}

func sizeCode(s mem.AccessSize) uint32 {
	switch s {
	case mem.Size8:
		return 0
	case mem.Size16:
		return 1
	default:
		return 2
	}
}

func sizeOf(code uint32) mem.AccessSize {
	switch code {
	case 0:
		return mem.Size8
	case 1:
		return mem.Size16
	default:
		return mem.Size32
	}
}
