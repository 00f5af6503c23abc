// Package system builds one emulation run from a config.Config: it lays
// out the memory map, parses the target's SVD and instantiates every
// peripheral it names, wires external devices to the peripherals and GPIO
// pins the configuration attaches them to, binds the whole address space
// into a cpuengine.Engine, and drives the fetch/poll/tick run loop.
// Generalized from the teacher's VCS/hardware.go bring-up sequence, which
// does the equivalent job (build the bus, wire chips, hand control to the
// CPU) for a fixed six-chip console instead of an SVD-described one.
package system

import (
	"fmt"

	"github.com/kvasari/stm32emu/config"
	"github.com/kvasari/stm32emu/cpuengine"
	"github.com/kvasari/stm32emu/errors"
	"github.com/kvasari/stm32emu/framebuffer"
	"github.com/kvasari/stm32emu/framebuffer/pngsink"
	"github.com/kvasari/stm32emu/framebuffer/sdlsink"
	"github.com/kvasari/stm32emu/hardware/extdevice/eeprom"
	"github.com/kvasari/stm32emu/hardware/extdevice/lcd"
	"github.com/kvasari/stm32emu/hardware/extdevice/spiflash"
	"github.com/kvasari/stm32emu/hardware/extdevice/tft"
	"github.com/kvasari/stm32emu/hardware/extdevice/touch"
	"github.com/kvasari/stm32emu/hardware/extdevice/usartprobe"
	"github.com/kvasari/stm32emu/hardware/membus"
	"github.com/kvasari/stm32emu/hardware/nvic"
	"github.com/kvasari/stm32emu/hardware/peripheral"
	"github.com/kvasari/stm32emu/hardware/peripheral/dma"
	"github.com/kvasari/stm32emu/hardware/peripheral/fsmc"
	"github.com/kvasari/stm32emu/hardware/peripheral/gpio"
	"github.com/kvasari/stm32emu/hardware/peripheral/i2c"
	"github.com/kvasari/stm32emu/hardware/peripheral/rcc"
	"github.com/kvasari/stm32emu/hardware/peripheral/spi"
	"github.com/kvasari/stm32emu/hardware/peripheral/swspi"
	"github.com/kvasari/stm32emu/hardware/peripheral/systick"
	"github.com/kvasari/stm32emu/hardware/peripheral/usart"
	"github.com/kvasari/stm32emu/logger"
	"github.com/kvasari/stm32emu/svd"
)

// xferDevice is the single-byte transaction shape shared by spi.Device,
// swspi.Device, spiflash.SpiFlash, touch.Touch and lcd.Lcd. Keeping it
// local to system lets one device registry feed both attachment paths
// without spi and swspi importing each other.
type xferDevice interface {
	Xfer(tx byte) byte
}

// System owns every peripheral and device built for one run. Peripherals
// and devices never hold pointers to each other directly (spec.md's
// weak-lookup design note): devices register into name-keyed maps built
// here, and the SVD catalog walk below is the only place that resolves a
// peripheral name to the device attached to it.
type System struct {
	cfg    *config.Config
	bus    *membus.Bus
	engine cpuengine.Engine
	nvic   *nvic.Nvic
	ports  *gpio.Ports

	tickers []peripheral.Ticker
	closers []closer

	eeproms map[string]i2c.Device

	tsc     uint64
	resetPC uint32
	pc      uint32
}

// Counters implements logger.Counters, so every log line can be stamped
// with the instruction count and program counter at the time it was made.
func (s *System) Counters() (tsc uint64, pc uint32) {
	return s.tsc, s.pc
}

type closer interface {
	Close() error
}

// dmaTriggerDevice is implemented by every peripheral family that can have
// a DMA stream armed against its data register (usart.Usart, spi.Spi,
// i2c.I2c). Wired after every peripheral and DMA controller in a catalog
// has been built, since either family may appear first in SVD order.
type dmaTriggerDevice interface {
	SetDMATrigger(fn func(periAddr uint32))
}

// Build assembles a System from cfg, binding every region and peripheral
// into engine. engine is normally a *armemu.Engine; tests pass
// *cpuengine/fake.Engine instead.
func Build(cfg *config.Config, engine cpuengine.Engine) (*System, error) {
	s := &System{
		cfg:    cfg,
		bus:    membus.NewBus(),
		engine: engine,
		ports:  gpio.NewPorts(),
	}

	if err := s.buildMemoryMap(); err != nil {
		return nil, err
	}

	dev, err := svd.Parse(cfg.Cpu.SVD)
	if err != nil {
		return nil, err
	}
	catalog := svd.NewCatalog(dev)

	overrides := map[string]config.PeripheralOverride{}
	for _, ov := range cfg.Peripherals {
		overrides[ov.Name] = ov
	}

	framebuffers, err := s.buildFramebuffers()
	if err != nil {
		return nil, err
	}

	xferDevices, usartDevices, fsmcDevices, err := s.buildDevices(framebuffers)
	if err != nil {
		return nil, err
	}
	s.resolveOverrideAliases(xferDevices, usartDevices)

	s.nvic = nvic.New(s.bus, s.engine, cfg.Cpu.VectorTable, dev.CPU.NVICPriorityBits)

	fsmcInstances := map[string]*fsmc.Fsmc{}
	var dmaInstances []*dma.Dma
	var dmaTriggerDevices []dmaTriggerDevice
	for _, p := range catalog.All() {
		ov, overridden := overrides[p.Name]
		if overridden && ov.Disabled {
			continue
		}
		if err := s.buildPeripheral(p, xferDevices, usartDevices, fsmcInstances, &dmaInstances, &dmaTriggerDevices); err != nil {
			return nil, err
		}
	}

	if len(dmaInstances) > 0 {
		trigger := func(periAddr uint32) {
			for _, d := range dmaInstances {
				d.Trigger(periAddr)
			}
		}
		for _, dev := range dmaTriggerDevices {
			dev.SetDMATrigger(trigger)
		}
	}

	if err := s.attachFSMCDevices(fsmcInstances, fsmcDevices); err != nil {
		return nil, err
	}

	if err := s.resetVector(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *System) buildMemoryMap() error {
	for i := range s.cfg.Regions {
		r := &s.cfg.Regions[i]
		region := &membus.Region{
			Name:  r.Name,
			Start: r.Start,
			Size:  r.Size,
			Kind:  membus.KindRAM,
			Data:  make([]byte, r.Size),
		}
		s.bus.MapRegion(region)
		if err := s.engine.MMIOMap(r.Start, r.Size,
			func(offset uint32, size uint8) uint32 {
				return s.bus.Read(0, r.Start+offset, int(size))
			},
			func(offset uint32, size uint8, value uint32) {
				s.bus.Write(0, r.Start+offset, int(size), value)
			}); err != nil {
			return fmt.Errorf("system: mapping region %s into engine: %w", r.Name, err)
		}
		if r.Load != "" {
			if err := s.bus.LoadImage(r.Load, r.Start); err != nil {
				return err
			}
		}
	}

	for _, p := range s.cfg.Patches {
		for i, b := range p.Data {
			s.bus.Write(0, p.Start+uint32(i), 1, uint32(b))
		}
	}
	return nil
}

func (s *System) buildFramebuffers() (map[string]framebuffer.Sink, error) {
	out := map[string]framebuffer.Sink{}
	for _, fb := range s.cfg.Framebuffers {
		var backends []framebuffer.Sink
		if fb.ImageBackend != nil {
			backends = append(backends, pngsink.New(fb.ImageBackend.File))
		}
		if fb.SDLBackend != nil {
			backends = append(backends, sdlsink.New(fb.Name))
		}
		switch len(backends) {
		case 0:
			return nil, errors.New(errors.ConfigUnknownFramebuffer, fb.Name)
		case 1:
			out[fb.Name] = backends[0]
		default:
			out[fb.Name] = framebuffer.NewMultiSink(backends...)
		}
		for _, b := range backends {
			if c, ok := b.(closer); ok {
				s.closers = append(s.closers, c)
			}
		}
	}
	return out, nil
}

// fsmcAttachment is a device waiting for its named FSMC instance to be
// constructed during the catalog walk.
type fsmcAttachment struct {
	peripheral string
	bank       int
	device     fsmc.Device
}

func (s *System) buildDevices(framebuffers map[string]framebuffer.Sink) (map[string]xferDevice, map[string]usart.Device, []fsmcAttachment, error) {
	xferDevices := map[string]xferDevice{}
	usartDevices := map[string]usart.Device{}
	s.eeproms = map[string]i2c.Device{}
	var fsmcDevices []fsmcAttachment

	for _, d := range s.cfg.Devices.SPIFlashes {
		flash, err := spiflash.New(spiflash.Config{
			Peripheral: d.Peripheral,
			JedecID:    d.JedecID,
			File:       d.File,
			Size:       int(d.Size),
			Writable:   d.Writable,
		})
		if err != nil {
			return nil, nil, nil, errors.New(errors.ImageFileCannotOpen, d.File, err)
		}
		xferDevices[d.Peripheral] = flash
	}

	for _, d := range s.cfg.Devices.USARTProbes {
		usartDevices[d.Peripheral] = usartprobe.New(usartprobe.Config{Peripheral: d.Peripheral})
	}

	for _, d := range s.cfg.Devices.EEPROMs {
		ee, err := eeprom.New(eeprom.Config{
			Peripheral: d.Peripheral,
			Address:    d.Address,
			File:       d.File,
			Size:       int(d.Size),
			Writable:   d.Writable,
		})
		if err != nil {
			return nil, nil, nil, errors.New(errors.ImageFileCannotOpen, d.File, err)
		}
		s.eeproms[d.Peripheral] = ee
	}

	for _, d := range s.cfg.Devices.TouchScreens {
		events := make([]touch.Event, len(d.Events))
		for i, e := range d.Events {
			events[i] = touch.Event{
				StartTick: e.StartTick,
				EndTick:   e.EndTick,
				X:         e.X,
				Y:         e.Y,
				Pressure:  e.Pressure,
			}
		}
		t, err := touch.New(touch.Config{
			Peripheral:     d.Peripheral,
			Width:          int(d.Width),
			Height:         int(d.Height),
			FlipX:          d.FlipX,
			FlipY:          d.FlipY,
			SwapXY:         d.SwapXY,
			ScaleDown:      d.ScaleDown,
			PenDetectedPin: d.PenDetectedPin,
			Events:         events,
		}, s.ports)
		if err != nil {
			return nil, nil, nil, err
		}
		xferDevices[d.Peripheral] = t
		s.tickers = append(s.tickers, t)
	}

	for _, d := range s.cfg.Devices.LCDs {
		sink, ok := framebuffers[d.Framebuffer]
		if !ok {
			return nil, nil, nil, errors.New(errors.ConfigUnknownFramebuffer, d.Framebuffer)
		}
		l, err := lcd.New(lcd.Config{Peripheral: d.Peripheral, Width: int(d.Width), Height: int(d.Height)}, sink)
		if err != nil {
			return nil, nil, nil, err
		}
		xferDevices[d.Peripheral] = l
		s.closers = append(s.closers, l)
	}

	for _, d := range s.cfg.Devices.TFTs {
		sink, ok := framebuffers[d.Framebuffer]
		if !ok {
			return nil, nil, nil, errors.New(errors.ConfigUnknownFramebuffer, d.Framebuffer)
		}
		t, err := tft.New(tft.Config{Name: d.Peripheral, Width: int(d.Width), Height: int(d.Height)}, sink)
		if err != nil {
			return nil, nil, nil, err
		}
		fsmcDevices = append(fsmcDevices, fsmcAttachment{peripheral: d.Peripheral, bank: d.Bank, device: t})
		s.closers = append(s.closers, t)
	}

	for _, d := range s.cfg.Devices.SoftwareSPIs {
		target, ok := xferDevices[d.AttachTo]
		if !ok {
			return nil, nil, nil, errors.New(errors.ConfigUnknownDevice, d.AttachTo)
		}
		if _, err := swspi.Register(swspi.Config{
			Name: d.Name,
			CS:   d.CS,
			Clk:  d.Clk,
			Miso: d.Miso,
			Mosi: d.Mosi,
		}, s.ports, target); err != nil {
			return nil, nil, nil, err
		}
	}

	return xferDevices, usartDevices, fsmcDevices, nil
}

// resolveOverrideAliases implements the secondary weak-lookup path from
// spec.md's design note: a PeripheralOverride whose Device names another
// device's identity, rather than its own, makes the override's Name
// resolve to that device too.
func (s *System) resolveOverrideAliases(xferDevices map[string]xferDevice, usartDevices map[string]usart.Device) {
	for _, ov := range s.cfg.Peripherals {
		if ov.Device == "" {
			continue
		}
		if d, ok := xferDevices[ov.Device]; ok {
			xferDevices[ov.Name] = d
		}
		if d, ok := usartDevices[ov.Device]; ok {
			usartDevices[ov.Name] = d
		}
	}
}

func (s *System) attachFSMCDevices(fsmcInstances map[string]*fsmc.Fsmc, attachments []fsmcAttachment) error {
	for _, a := range attachments {
		f, ok := fsmcInstances[a.peripheral]
		if !ok {
			return errors.New(errors.ConfigUnknownPeripheral, a.peripheral)
		}
		f.AttachBank(a.bank, a.device)
	}
	return nil
}

// buildPeripheral matches p against every known peripheral family by the
// same name convention each family's own New validates (exact "RCC"/"STK"
// for rcc/systick, which do not self-validate; a name prefix everywhere
// else), constructs it, and maps it into both the bus and the engine.
func (s *System) buildPeripheral(p *svd.Peripheral, xferDevices map[string]xferDevice, usartDevices map[string]usart.Device, fsmcInstances map[string]*fsmc.Fsmc, dmaInstances *[]*dma.Dma, dmaTriggerDevices *[]dmaTriggerDevice) error {
	switch {
	case p.Name == "RCC":
		return s.registerPeripheral(p, rcc.New(p.Name, uint32(p.BaseAddress)))

	case p.Name == "STK":
		st := systick.New(p.Name, uint32(p.BaseAddress), s.nvic)
		s.tickers = append(s.tickers, st)
		return s.registerPeripheral(p, st)

	default:
	}

	if g, ok := gpio.New(p.Name, uint32(p.BaseAddress), s.ports); ok {
		return s.registerPeripheral(p, g)
	}
	if u, ok := usart.New(p.Name, uint32(p.BaseAddress), usartDevices[p.Name]); ok {
		*dmaTriggerDevices = append(*dmaTriggerDevices, u)
		return s.registerPeripheral(p, u)
	}
	if sp, ok := spi.New(p.Name, uint32(p.BaseAddress), asSpiDevice(xferDevices[p.Name])); ok {
		*dmaTriggerDevices = append(*dmaTriggerDevices, sp)
		return s.registerPeripheral(p, sp)
	}
	if ic, ok := i2c.New(p.Name, uint32(p.BaseAddress), s.eepromFor(p.Name)); ok {
		*dmaTriggerDevices = append(*dmaTriggerDevices, ic)
		return s.registerPeripheral(p, ic)
	}
	if d, ok := dma.New(p.Name, uint32(p.BaseAddress), s.bus); ok {
		*dmaInstances = append(*dmaInstances, d)
		return s.registerHandler(p, d)
	}
	if f, ok := fsmc.New(p.Name, 0x60000000); ok {
		fsmcInstances[p.Name] = f
		// fsmc.OnAccess offsets start at the bank-0 data window
		// (0x60000000); the SVD register block follows 0x40000000 later.
		regSize := p.AddressBlock.Size
		if regSize == 0 {
			regSize = 0x400
		}
		window := *p
		window.BaseAddress = 0x60000000
		window.AddressBlock.Size = 0x40000000 + regSize
		return s.registerHandler(&window, f)
	}

	logger.Debug(logger.Allow, "system: no peripheral family claimed %s, leaving unmapped", p.Name)
	return nil
}

// eepromFor looks up the EEPROM device configured for peripheral name, or
// nil if none was declared; i2c.New treats a nil Device as "nothing
// attached".
func (s *System) eepromFor(name string) i2c.Device {
	return s.eeproms[name]
}

// asSpiDevice adapts a possibly-nil xferDevice to spi.Device; spi.New
// itself treats a nil Device as "nothing attached", and DR then reads 0.
func asSpiDevice(d xferDevice) spi.Device {
	if d == nil {
		return nil
	}
	return d
}

func (s *System) registerPeripheral(svdPeripheral *svd.Peripheral, impl peripheral.Peripheral) error {
	reg := peripheral.NewRegistration(impl, svdPeripheral)
	return s.mapDeviceRegion(svdPeripheral, reg)
}

func (s *System) registerHandler(svdPeripheral *svd.Peripheral, h membus.Handler) error {
	return s.mapDeviceRegion(svdPeripheral, h)
}

func (s *System) mapDeviceRegion(p *svd.Peripheral, h membus.Handler) error {
	size := uint32(p.AddressBlock.Size)
	if size == 0 {
		size = 0x400
	}
	base := uint32(p.BaseAddress)
	region := &membus.Region{Name: p.Name, Start: base, Size: size, Kind: membus.KindDevice, Handler: h}
	s.bus.MapRegion(region)

	return s.engine.MMIOMap(base, size,
		func(offset uint32, sz uint8) uint32 {
			return s.bus.Read(0, base+offset, int(sz))
		},
		func(offset uint32, sz uint8, value uint32) {
			s.bus.Write(0, base+offset, int(sz), value)
		})
}

// resetVector loads the initial MSP and PC from the vector table, per the
// ARMv7-M reset sequence: word 0 is the initial SP, word 1 is the initial
// PC with its Thumb bit (bit 0) masked off.
func (s *System) resetVector() error {
	vt := s.cfg.Cpu.VectorTable
	initialSP := s.bus.Read(0, vt, 4)
	initialPC := s.bus.Read(0, vt+4, 4) &^ 1

	if err := s.engine.RegWrite(cpuengine.MSP, initialSP); err != nil {
		return err
	}
	if err := s.engine.RegWrite(cpuengine.PC, initialPC); err != nil {
		return err
	}
	s.resetPC = initialPC
	return nil
}
