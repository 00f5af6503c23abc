// Package config loads the YAML document that describes a single emulation
// run: the CPU/SVD pairing, the memory map, firmware patches, peripheral
// overrides, attached external devices and output framebuffers.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kvasari/stm32emu/errors"
)

// Cpu selects the vendor description used to build the peripheral map and
// the reset value of the program counter.
type Cpu struct {
	SVD         string `yaml:"svd"`
	VectorTable uint32 `yaml:"vector_table"`
}

// Region describes one entry of the memory map. Size and Start are in
// bytes; Load, if set, names a file whose contents seed the region at
// offset zero. Writable is parsed but not consulted when the memory map is
// built: every configured region is mapped writable.
type Region struct {
	Name     string `yaml:"name"`
	Start    uint32 `yaml:"start"`
	Size     uint32 `yaml:"size"`
	Load     string `yaml:"load,omitempty"`
	Writable bool   `yaml:"writable,omitempty"`
}

// Patch overwrites Data at Start after the region's Load image (if any)
// has been applied. Used to tweak a firmware image without rebuilding it.
type Patch struct {
	Start uint32 `yaml:"start"`
	Data  []byte `yaml:"data"`
}

// PeripheralOverride lets a config enable/disable an SVD-derived peripheral
// instance, or attach it to a named external device.
type PeripheralOverride struct {
	Name     string `yaml:"name"`
	Disabled bool   `yaml:"disabled,omitempty"`
	Device   string `yaml:"device,omitempty"`
}

// SPIFlashDevice configures a simulated JEDEC-compatible SPI NOR flash
// chip, backed by a file on disk.
type SPIFlashDevice struct {
	Peripheral string `yaml:"peripheral"`
	JedecID    uint32 `yaml:"jedec_id"`
	File       string `yaml:"file"`
	Size       uint32 `yaml:"size"`
	Writable   bool   `yaml:"writable,omitempty"`
}

// USARTProbeDevice attaches a pass-through listener to a USART peripheral
// that records every byte transmitted, for test assertions and tracing.
type USARTProbeDevice struct {
	Peripheral string `yaml:"peripheral"`
}

// TFTDevice configures an ILI9341-class display attached over the FSMC
// parallel bus, mapped to a named output framebuffer. Peripheral must
// name an "FSMC" instance; Bank selects which of its four external-memory
// banks the display is wired to.
type TFTDevice struct {
	Peripheral  string `yaml:"peripheral"`
	Bank        int    `yaml:"bank,omitempty"`
	Framebuffer string `yaml:"framebuffer"`
	Width       uint16 `yaml:"width"`
	Height      uint16 `yaml:"height"`
}

// TouchEvent schedules one scripted touch: active for tsc in
// [StartTick, EndTick).
type TouchEvent struct {
	StartTick uint64 `yaml:"start_tick"`
	EndTick   uint64 `yaml:"end_tick"`
	X         int    `yaml:"x"`
	Y         int    `yaml:"y"`
	Pressure  uint16 `yaml:"pressure,omitempty"`
}

// TouchDevice configures an ADS7846-class resistive touch controller and
// the scripted sequence of touch events it replays, since a headless run
// has no pointing device to sample live.
type TouchDevice struct {
	Peripheral     string       `yaml:"peripheral"`
	Width          uint16       `yaml:"width"`
	Height         uint16       `yaml:"height"`
	FlipX          bool         `yaml:"flip_x,omitempty"`
	FlipY          bool         `yaml:"flip_y,omitempty"`
	SwapXY         bool         `yaml:"swap_xy,omitempty"`
	ScaleDown      uint32       `yaml:"scale_down,omitempty"`
	PenDetectedPin string       `yaml:"pen_detected_pin,omitempty"`
	Events         []TouchEvent `yaml:"events,omitempty"`
}

// SoftwareSPIDevice bridges a bit-banged SPI bus (firmware driving
// SCK/MOSI/MISO/CS as plain GPIO pins) to an attached device named by
// AttachTo, which must match the Peripheral name of an SPIFlashDevice,
// TouchDevice or LCDDevice entry since those all speak the same
// single-byte Xfer shape regardless of which bus clocks them.
type SoftwareSPIDevice struct {
	Name     string `yaml:"name"`
	CS       string `yaml:"cs,omitempty"`
	Clk      string `yaml:"clk"`
	Miso     string `yaml:"miso"`
	Mosi     string `yaml:"mosi"`
	AttachTo string `yaml:"attach_to"`
}

// LCDDevice configures an FPGA-bridged character/graphic LCD attached
// over SPI or a bit-banged software-SPI bus (see SoftwareSPIDevice);
// Peripheral names the SPI peripheral instance it is chip-selected on,
// or is left to match a SoftwareSPIDevice's AttachTo instead.
type LCDDevice struct {
	Peripheral  string `yaml:"peripheral"`
	Framebuffer string `yaml:"framebuffer"`
	Width       uint16 `yaml:"width"`
	Height      uint16 `yaml:"height"`
}

// EEPROMDevice configures a simulated I2C EEPROM (24LCxx-class), backed by
// a file on disk, addressed over the bus at Address.
type EEPROMDevice struct {
	Peripheral string `yaml:"peripheral"`
	Address    uint8  `yaml:"address"`
	File       string `yaml:"file"`
	Size       uint32 `yaml:"size"`
	Writable   bool   `yaml:"writable,omitempty"`
}

// Devices lists every external device instance a configuration attaches.
type Devices struct {
	SPIFlashes   []SPIFlashDevice    `yaml:"spi_flashes,omitempty"`
	USARTProbes  []USARTProbeDevice  `yaml:"usart_probes,omitempty"`
	EEPROMs      []EEPROMDevice      `yaml:"eeproms,omitempty"`
	TFTs         []TFTDevice         `yaml:"tfts,omitempty"`
	TouchScreens []TouchDevice       `yaml:"touchscreens,omitempty"`
	LCDs         []LCDDevice         `yaml:"lcds,omitempty"`
	SoftwareSPIs []SoftwareSPIDevice `yaml:"software_spis,omitempty"`
}

// ImageBackend writes a framebuffer's contents to a PNG file when the
// framebuffer's sink is closed at emulator exit.
type ImageBackend struct {
	File string `yaml:"file"`
}

// SDLBackend opens a live window mirroring the framebuffer. The window
// handles only its close and quit keys; mouse input is not passed to
// any device.
type SDLBackend struct {
	Scale int `yaml:"scale,omitempty"`
}

// Framebuffer describes one pixel sink: its dimensions, pixel format and
// the output backend(s) that consume it. Multiple backends may be set at
// once; each receives every frame.
type Framebuffer struct {
	Name         string        `yaml:"name"`
	Width        uint16        `yaml:"width"`
	Height       uint16        `yaml:"height"`
	Mode         string        `yaml:"mode"`
	ImageBackend *ImageBackend `yaml:"image_backend,omitempty"`
	SDLBackend   *SDLBackend   `yaml:"sdl_backend,omitempty"`
}

// Config is the root of the YAML document passed on the command line.
type Config struct {
	Cpu          Cpu                  `yaml:"cpu"`
	Regions      []Region             `yaml:"regions"`
	Patches      []Patch              `yaml:"patches,omitempty"`
	Peripherals  []PeripheralOverride `yaml:"peripherals,omitempty"`
	Devices      Devices              `yaml:"devices,omitempty"`
	Framebuffers []Framebuffer        `yaml:"framebuffers,omitempty"`
}

// Load reads and parses the configuration file at path. It does not
// validate cross-references (peripheral names, framebuffer names); that
// happens while the system is built, where better diagnostics are
// available.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New(errors.ConfigFileCannotOpen, path)
	}
	defer f.Close()

	var c Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, errors.New(errors.ConfigFileInvalid, path, err)
	}

	if err := c.validate(); err != nil {
		return nil, err
	}

	return &c, nil
}

func (c *Config) validate() error {
	for i, a := range c.Regions {
		aEnd := uint64(a.Start) + uint64(a.Size)
		for _, b := range c.Regions[i+1:] {
			bEnd := uint64(b.Start) + uint64(b.Size)
			if uint64(a.Start) < bEnd && uint64(b.Start) < aEnd {
				return errors.New(errors.ConfigOverlappingRegions, a.Name, b.Name)
			}
		}
	}
	return nil
}

func (c Cpu) String() string {
	return fmt.Sprintf("cpu{svd=%s vector_table=0x%08x}", c.SVD, c.VectorTable)
}
