// Package svd parses CMSIS System View Description files and exposes the
// peripheral/register/field layout they describe, with derivedFrom
// peripherals resolved and register arrays/clusters expanded into a flat
// per-peripheral register list.
package svd

import "encoding/xml"

// Device is the root element of an SVD file.
type Device struct {
	XMLName     xml.Name     `xml:"device"`
	Name        string       `xml:"name"`
	Vendor      string       `xml:"vendor"`
	CPU         CPU          `xml:"cpu"`
	Peripherals []Peripheral `xml:"peripherals>peripheral"`
}

// CPU carries the handful of cpu-level facts the emulator core needs:
// the number of NVIC priority bits actually implemented and whether the
// device has an FPU (and therefore an extended exception stack frame).
type CPU struct {
	Name             string `xml:"name"`
	NVICPriorityBits int    `xml:"nvicPrioBits"`
	FPUPresent       bool   `xml:"fpuPresent"`
}

// Peripheral is one SVD <peripheral> element, before derivedFrom
// resolution and before register array/cluster expansion.
type Peripheral struct {
	Name         string        `xml:"name"`
	Description  string        `xml:"description"`
	Group        string        `xml:"groupName"`
	BaseAddress  uint64        `xml:"baseAddress"`
	DerivedFrom  string        `xml:"derivedFrom,attr"`
	AddressBlock AddressBlock  `xml:"addressBlock"`
	Interrupts   []Interrupt   `xml:"interrupt"`
	Registers    []Register    `xml:"registers>register"`
	Clusters     []Cluster     `xml:"registers>cluster"`

	// ResolvedRegisters holds the flattened register set -- derivedFrom
	// merged in, dim arrays and clusters expanded -- produced by Parse
	// (through resolve). Nil until resolution runs.
	ResolvedRegisters []Register
}

// AddressBlock is the span of the peripheral's register block, relative
// to BaseAddress.
type AddressBlock struct {
	Offset uint64 `xml:"offset"`
	Size   uint64 `xml:"size"`
}

// Interrupt names an IRQ line raised by this peripheral.
type Interrupt struct {
	Name        string `xml:"name"`
	Description string `xml:"description"`
	Value       int    `xml:"value"`
}

// Cluster groups a set of registers that repeat together, such as the
// per-stream register block of a DMA controller.
type Cluster struct {
	Name          string     `xml:"name"`
	Dim           int        `xml:"dim"`
	DimIncrement  uint64     `xml:"dimIncrement"`
	AddressOffset uint64     `xml:"addressOffset"`
	Registers     []Register `xml:"register"`
}

// Register is a single SVD <register> element, possibly a dim array.
type Register struct {
	Name          string  `xml:"name"`
	Description   string  `xml:"description"`
	AddressOffset uint64  `xml:"addressOffset"`
	Size          uint64  `xml:"size"`
	Access        string  `xml:"access"`
	ResetValue    uint64  `xml:"resetValue"`
	Dim           int     `xml:"dim"`
	DimIncrement  uint64  `xml:"dimIncrement"`
	Fields        []Field `xml:"fields>field"`
}

// Field is a named, bit-addressable subrange of a Register.
type Field struct {
	Name             string            `xml:"name"`
	Description      string            `xml:"description"`
	BitOffset        int               `xml:"bitOffset"`
	BitWidth         int               `xml:"bitWidth"`
	Access           string            `xml:"access"`
	EnumeratedValues []EnumeratedValue `xml:"enumeratedValues>enumeratedValue"`
}

// EnumeratedValue names one legal value of a Field, as used by
// peripherals whose register semantics are selected by an enum (e.g.
// USART word length, SPI baud rate prescaler).
type EnumeratedValue struct {
	Name        string `xml:"name"`
	Description string `xml:"description"`
	Value       uint64 `xml:"value"`
}

// Mask returns the bitmask covering this field's bit range.
func (f Field) Mask() uint32 {
	return ((uint32(1) << uint(f.BitWidth)) - 1) << uint(f.BitOffset)
}
