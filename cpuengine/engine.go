// Package cpuengine defines the boundary between the emulator core and the
// component that actually executes ARM instructions. Nothing in this
// module decodes Thumb-2 opcodes; Engine is satisfied by an external
// instruction-set simulator, wired up once at startup by hardware/system.
package cpuengine

// Register names the CPU register file, following ARMv7-M naming. Banked
// stack pointers are addressed explicitly since exception entry/return
// needs to read and write whichever one is not currently selected by
// CONTROL.SPSEL.
type Register int

const (
	R0 Register = iota
	R1
	R2
	R3
	R4
	R5
	R6
	R7
	R8
	R9
	R10
	R11
	R12
	SP // R13; armemu mirrors whichever of MSP/PSP was written last, not CONTROL.SPSEL
	LR
	PC
	XPSR
	MSP
	PSP
	PRIMASK
	CONTROL
)

// MemHookType selects which class of memory event a hook observes.
type MemHookType int

const (
	MemRead MemHookType = iota
	MemWrite
	MemUnmapped
)

// MMIOReadFunc services a load from a memory-mapped I/O region. offset is
// relative to the base address the region was mapped at.
type MMIOReadFunc func(offset uint32, size uint8) uint32

// MMIOWriteFunc services a store to a memory-mapped I/O region.
type MMIOWriteFunc func(offset uint32, size uint8, value uint32)

// CodeHookFunc is invoked before each instruction is executed.
type CodeHookFunc func(pc uint32, size uint8)

// InterruptHookFunc is invoked when the engine takes a software interrupt
// or fault (e.g. SVC, undefined instruction).
type InterruptHookFunc func(intno uint32)

// MemHookFunc observes accesses matching the hook's MemHookType. armemu
// does not act on the returned bool, and hardware/system installs no
// memory hook; unmapped accesses are logged by membus instead.
type MemHookFunc func(kind MemHookType, addr uint32, size int, value int64) bool

// Engine is the interface hardware/system drives to run emulation. A real
// implementation binds to an external ARM instruction-set simulator; see
// cpuengine/fake for a deterministic stand-in used by tests.
type Engine interface {
	// MemMap backs [addr, addr+size) with flat, engine-owned storage.
	MemMap(addr uint32, size uint32) error

	// MemWrite copies data into previously mapped memory starting at addr.
	MemWrite(addr uint32, data []byte) error

	// MemRead copies len(buf) bytes starting at addr into buf.
	MemRead(addr uint32, buf []byte) error

	// MMIOMap installs read/write callbacks for [addr, addr+size). Either
	// callback may be nil.
	MMIOMap(addr uint32, size uint32, read MMIOReadFunc, write MMIOWriteFunc) error

	RegRead(reg Register) (uint32, error)
	RegWrite(reg Register, value uint32) error

	AddCodeHook(fn CodeHookFunc) error
	AddInterruptHook(fn InterruptHookFunc) error
	AddMemHook(kind MemHookType, fn MemHookFunc) error

	// Start runs instructions beginning at pc until either the program
	// counter reaches until (0 to disable), count instructions have
	// executed (0 to disable), or the engine halts on its own (e.g. WFI
	// with nothing pending). It returns when execution stops for any
	// reason; callers distinguish the reason via RegRead(PC) and count.
	Start(pc uint32, until uint32, count uint64) error

	Close() error
}
