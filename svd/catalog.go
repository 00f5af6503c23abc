package svd

import "sort"

// Catalog is a Device's peripherals sorted by base address, ready for
// binary-search lookup by an accessed memory address.
type Catalog struct {
	peripherals []*Peripheral
}

// NewCatalog builds a Catalog from a resolved Device.
func NewCatalog(d *Device) *Catalog {
	c := &Catalog{peripherals: make([]*Peripheral, len(d.Peripherals))}
	for i := range d.Peripherals {
		c.peripherals[i] = &d.Peripherals[i]
	}
	sort.Slice(c.peripherals, func(i, j int) bool {
		return c.peripherals[i].BaseAddress < c.peripherals[j].BaseAddress
	})
	return c
}

// Lookup returns the peripheral whose address block contains addr, if any.
func (c *Catalog) Lookup(addr uint32) (*Peripheral, bool) {
	a := uint64(addr)
	i := sort.Search(len(c.peripherals), func(i int) bool {
		return c.peripherals[i].BaseAddress > a
	})
	if i == 0 {
		return nil, false
	}
	p := c.peripherals[i-1]
	size := p.AddressBlock.Size
	if size == 0 {
		size = registersExtent(p)
	}
	if a >= p.BaseAddress && a < p.BaseAddress+size {
		return p, true
	}
	return nil, false
}

// Find returns the peripheral with the given name, if present.
func (c *Catalog) Find(name string) (*Peripheral, bool) {
	for _, p := range c.peripherals {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// All returns every peripheral in ascending base-address order.
func (c *Catalog) All() []*Peripheral {
	return c.peripherals
}

// RegisterAt returns the register within p whose offset matches addr, if
// any -- used by the peripheral framework to decode which register an
// access targets.
func (p *Peripheral) RegisterAt(addr uint32) (*Register, bool) {
	offset := uint64(addr) - p.BaseAddress
	for i := range p.ResolvedRegisters {
		r := &p.ResolvedRegisters[i]
		width := r.Size / 8
		if width == 0 {
			width = 4
		}
		if offset >= r.AddressOffset && offset < r.AddressOffset+width {
			return r, true
		}
	}
	return nil, false
}

func registersExtent(p *Peripheral) uint64 {
	var max uint64
	for _, r := range p.ResolvedRegisters {
		width := r.Size / 8
		if width == 0 {
			width = 4
		}
		if end := r.AddressOffset + width; end > max {
			max = end
		}
	}
	return max
}
