package mem

import (
	"encoding/binary"
	"errors"
	"sync"
)

// ErrBeyondCapacity is returned when an access falls outside of a storage.
var ErrBeyondCapacity = errors.New(
	"accessing address beyond the storage capacity")

// A Storage keeps the bytes of a simulated memory.
//
// The storage is managed in units, similar to pages. Units that are never
// touched by Read or Write do not allocate host memory. A Storage is safe for
// concurrent use, so that observers can read it while the simulation writes.
type Storage struct {
	sync.RWMutex

	unitSize uint64
	capacity uint64
	data     map[uint64][]byte
}

// NewStorage creates a storage object with the specified capacity in bytes.
func NewStorage(capacity uint64) *Storage {
	storage := new(Storage)

	storage.unitSize = 4096
	storage.capacity = capacity
	storage.data = make(map[uint64][]byte)

	return storage
}

// Capacity returns the number of bytes the storage can hold.
func (s *Storage) Capacity() uint64 {
	return s.capacity
}

func (s *Storage) unit(address uint64, create bool) []byte {
	baseAddr, _ := s.parseAddress(address)

	unit, ok := s.data[baseAddr]
	if !ok && create {
		unit = make([]byte, s.unitSize)
		s.data[baseAddr] = unit
	}

	return unit
}

func (s *Storage) parseAddress(addr uint64) (baseAddr, inUnitAddr uint64) {
	inUnitAddr = addr % s.unitSize
	baseAddr = addr - inUnitAddr

	return baseAddr, inUnitAddr
}

func (s *Storage) checkRange(address, length uint64) error {
	if address+length > s.capacity || address+length < address {
		return ErrBeyondCapacity
	}

	return nil
}

// Read returns a copy of length bytes starting at address.
func (s *Storage) Read(address uint64, length uint64) ([]byte, error) {
	if err := s.checkRange(address, length); err != nil {
		return nil, err
	}

	s.RLock()
	defer s.RUnlock()

	res := make([]byte, length)
	for done := uint64(0); done < length; {
		currAddr := address + done
		baseAddr, inUnitAddr := s.parseAddress(currAddr)
		n := min(length-done, baseAddr+s.unitSize-currAddr)

		if unit := s.unit(currAddr, false); unit != nil {
			copy(res[done:done+n], unit[inUnitAddr:inUnitAddr+n])
		}

		done += n
	}

	return res, nil
}

// Write stores data starting at address.
func (s *Storage) Write(address uint64, data []byte) error {
	length := uint64(len(data))
	if err := s.checkRange(address, length); err != nil {
		return err
	}

	s.Lock()
	defer s.Unlock()

	for done := uint64(0); done < length; {
		currAddr := address + done
		baseAddr, inUnitAddr := s.parseAddress(currAddr)
		n := min(length-done, baseAddr+s.unitSize-currAddr)

		unit := s.unit(currAddr, true)
		copy(unit[inUnitAddr:inUnitAddr+n], data[done:done+n])

		done += n
	}

	return nil
}

// ReadWord implements Target. Multi-byte values are little-endian.
func (s *Storage) ReadWord(offset uint32, size AccessSize) (uint32, error) {
	buf, err := s.Read(uint64(offset), uint64(size))
	if err != nil {
		return 0, err
	}

	return decodeLE(buf), nil
}

// WriteWord implements Target. Multi-byte values are little-endian.
func (s *Storage) WriteWord(offset uint32, size AccessSize, value uint32) error {
	return s.Write(uint64(offset), encodeLE(value, size))
}

func decodeLE(buf []byte) uint32 {
	var word [4]byte
	copy(word[:], buf)

	return binary.LittleEndian.Uint32(word[:])
}

func encodeLE(value uint32, size AccessSize) []byte {
	var word [4]byte
	binary.LittleEndian.PutUint32(word[:], value)

	return word[:size]
}
