package svd

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/kvasari/stm32emu/errors"
)

// Parse reads an SVD file and returns its Device with derivedFrom
// peripherals resolved and register arrays/clusters expanded into
// Peripheral.ResolvedRegisters.
func Parse(path string) (*Device, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.SVDFileCannotOpen, path)
	}

	// encoding/xml parses numeric fields in base 10 only, while SVD writes
	// addresses, sizes and reset values as 0x-prefixed hex; rewrite such
	// element text to decimal before decoding.
	hexValue := regexp.MustCompile(`>\s*0[xX]([0-9a-fA-F]+)\s*<`)
	data = hexValue.ReplaceAllFunc(data, func(m []byte) []byte {
		v, err := strconv.ParseUint(string(hexValue.FindSubmatch(m)[1]), 16, 64)
		if err != nil {
			return m
		}
		return []byte(">" + strconv.FormatUint(v, 10) + "<")
	})

	d := &Device{}
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	if err := dec.Decode(d); err != nil {
		return nil, errors.New(errors.SVDFileInvalid, path, err)
	}

	if err := resolve(d); err != nil {
		return nil, err
	}

	return d, nil
}

func resolve(d *Device) error {
	byName := make(map[string]*Peripheral, len(d.Peripherals))
	for i := range d.Peripherals {
		byName[d.Peripherals[i].Name] = &d.Peripherals[i]
	}

	for i := range d.Peripherals {
		p := &d.Peripherals[i]

		src := p
		if p.DerivedFrom != "" {
			base, ok := byName[p.DerivedFrom]
			if !ok {
				return errors.New(errors.SVDPeripheralNotFound, p.DerivedFrom)
			}
			src = base
			if p.AddressBlock.Size == 0 {
				p.AddressBlock = base.AddressBlock
			}
			if len(p.Interrupts) == 0 {
				p.Interrupts = base.Interrupts
			}
		}

		p.ResolvedRegisters = extractRegisters(src)
	}

	return nil
}

// extractRegisters flattens a peripheral's direct registers and cluster
// registers into one list, expanding SVD dim arrays along the way.
// Mirrors a vendor-description walker that expands dim arrays by
// substituting "%s" in the register name with each array index and
// advancing addressOffset by dimIncrement per step.
func extractRegisters(p *Peripheral) []Register {
	var out []Register

	out = append(out, expandArray(p.Registers, 0, "")...)

	for _, c := range p.Clusters {
		if c.Dim <= 1 {
			out = append(out, expandArray(c.Registers, c.AddressOffset, "")...)
			continue
		}
		for i := 0; i < c.Dim; i++ {
			suffix := strconv.Itoa(i)
			offset := c.AddressOffset + uint64(i)*c.DimIncrement
			out = append(out, expandArray(c.Registers, offset, suffix)...)
		}
	}

	return out
}

func expandArray(regs []Register, extraOffset uint64, clusterSuffix string) []Register {
	var out []Register

	for _, r := range regs {
		if r.Dim <= 1 {
			r.AddressOffset += extraOffset
			r.Name += clusterSuffix
			out = append(out, r)
			continue
		}

		for i := 0; i < r.Dim; i++ {
			ri := r
			ri.AddressOffset = r.AddressOffset + uint64(i)*r.DimIncrement + extraOffset
			ri.Name = instantiateName(r.Name, i) + clusterSuffix
			ri.Dim = 0
			out = append(out, ri)
		}
	}

	return out
}

func instantiateName(name string, index int) string {
	if strings.Contains(name, "%s") {
		return strings.Replace(name, "%s", strconv.Itoa(index), 1)
	}
	return fmt.Sprintf("%s%d", name, index)
}
