// Package peripheral is the uniform dispatch layer every emulated
// peripheral plugs into: it pre-decodes the SVD register descriptor for
// an accessed offset, fetches the peripheral's stored word, invokes the
// peripheral's handler, and commits the result -- generalized from the
// original's GenericPeripheral/Peripherals::read/write dispatch into a Go
// interface table.
package peripheral

import (
	"github.com/kvasari/stm32emu/logger"
	"github.com/kvasari/stm32emu/svd"
)

// Peripheral is implemented by every emulated register block. Instances
// sharing an SVD derivedFrom layout hold independent Storage but see the
// same immutable *svd.Register descriptors.
type Peripheral interface {
	Base() uint32
	Name() string

	// OnRead is invoked with the word currently stored for reg. It
	// returns the value the CPU should observe and the value that should
	// end up committed to storage afterwards -- most handlers return
	// (old, old), but read-to-clear registers (SysTick CTRL's COUNTFLAG)
	// need to mutate storage as a side effect of the read.
	OnRead(reg *svd.Register, old uint32, fields map[string]uint32) (result, newStored uint32)

	// OnWrite is invoked with the old word and the value the CPU wrote.
	// It returns the word that should actually end up committed --
	// usually new unchanged, but RCC's RDY-follows-ON semantics and
	// write-1-to-clear flag registers need to commit something other
	// than the raw written value.
	OnWrite(reg *svd.Register, old, new uint32, fields map[string]uint32) (commit uint32)
}

// Ticker is an optional capability: peripherals that need to react to the
// passage of instructions (SysTick) implement it and get called from the
// post-instruction hook.
type Ticker interface {
	Tick(tsc uint64)
}

// Storage holds a peripheral instance's live register words, keyed by
// offset, seeded from the SVD reset values at construction.
type Storage struct {
	words map[uint64]uint32
}

// NewStorage resets every register in regs to its SVD ResetValue.
func NewStorage(regs []svd.Register) *Storage {
	s := &Storage{words: make(map[uint64]uint32, len(regs))}
	for _, r := range regs {
		s.words[r.AddressOffset] = uint32(r.ResetValue)
	}
	return s
}

func (s *Storage) Get(offset uint64) uint32 { return s.words[offset] }
func (s *Storage) Set(offset uint64, v uint32) { s.words[offset] = v }

// decodeFields splits word into named field values per reg's SVD layout.
func decodeFields(reg *svd.Register, word uint32) map[string]uint32 {
	out := make(map[string]uint32, len(reg.Fields))
	for _, f := range reg.Fields {
		out[f.Name] = (word & f.Mask()) >> uint(f.BitOffset)
	}
	return out
}

// Registration binds a Peripheral implementation to its SVD descriptor
// and live storage, and implements membus.Handler for the address range
// the SVD addressBlock covers.
type Registration struct {
	Impl    Peripheral
	SVD     *svd.Peripheral
	Storage *Storage
}

// NewRegistration builds the Storage for impl from svdPeripheral's
// resolved registers and pairs them up.
func NewRegistration(impl Peripheral, svdPeripheral *svd.Peripheral) *Registration {
	return &Registration{
		Impl:    impl,
		SVD:     svdPeripheral,
		Storage: NewStorage(svdPeripheral.ResolvedRegisters),
	}
}

// OnAccess implements membus.Handler. offset is relative to the
// peripheral's base address.
func (r *Registration) OnAccess(offset uint32, width int, isWrite bool, valueIn uint32) uint32 {
	reg, ok := r.SVD.RegisterAt(uint32(r.SVD.BaseAddress) + offset)
	if !ok {
		if isWrite {
			logger.Warn(logger.Allow, "%s WRITE_UNDECODED offset=0x%x size=%d value=0x%x", r.Impl.Name(), offset, width, valueIn)
			return 0
		}
		logger.Warn(logger.Allow, "%s READ_UNDECODED offset=0x%x size=%d", r.Impl.Name(), offset, width)
		return 0
	}

	old := r.Storage.Get(reg.AddressOffset)

	if isWrite {
		if reg.Access == "read-only" {
			logger.Warn(logger.Allow, "%s WRITE_TO_RO reg=%s value=0x%x", r.Impl.Name(), reg.Name, valueIn)
			return 0
		}

		fields := decodeFields(reg, valueIn)
		logger.Trace(logger.Allow, "%s.%s <= 0x%x %v", r.Impl.Name(), reg.Name, valueIn, fields)

		commit := r.Impl.OnWrite(reg, old, valueIn, fields)
		r.Storage.Set(reg.AddressOffset, commit)
		if old != commit {
			logger.Debug(logger.Allow, "%s.%s %#x -> %#x", r.Impl.Name(), reg.Name, old, commit)
		}
		return 0
	}

	fields := decodeFields(reg, old)
	if reg.Access == "write-only" {
		logger.Warn(logger.Allow, "%s READ_FROM_WO reg=%s", r.Impl.Name(), reg.Name)
		return 0
	}
	result, newStored := r.Impl.OnRead(reg, old, fields)
	r.Storage.Set(reg.AddressOffset, newStored)
	logger.Trace(logger.Allow, "%s.%s => 0x%x %v", r.Impl.Name(), reg.Name, result, fields)
	return result
}
