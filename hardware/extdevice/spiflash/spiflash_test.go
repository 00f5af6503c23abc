package spiflash_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kvasari/stm32emu/hardware/extdevice/spiflash"
)

func newFlash(t *testing.T, size int, writable bool) *spiflash.SpiFlash {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "flash.bin")
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := spiflash.New(spiflash.Config{
		Peripheral: "SPI3",
		JedecID:    0xEF4016,
		File:       path,
		Size:       size,
		Writable:   writable,
	})
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestReadJEDECID(t *testing.T) {
	f := newFlash(t, 1<<20, false)
	f.Xfer(0x9F)
	got := []byte{f.Xfer(0), f.Xfer(0), f.Xfer(0)}
	want := []byte{0xEF, 0x40, 0x16}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("byte %d: got 0x%02x want 0x%02x", i, got[i], want[i])
		}
	}
}

func TestReadDataAtAddress(t *testing.T) {
	f := newFlash(t, 1<<20, false)
	// poke known content directly via PageProgram-free path: write then read back
	// requires writable; instead verify zero-filled region reads as zero.
	f.Xfer(0x03)
	f.Xfer(0x12)
	f.Xfer(0x00)
	f.Xfer(0x00)
	for i := 0; i < 16; i++ {
		if got := f.Xfer(0); got != 0 {
			t.Errorf("expected zero-filled flash, got 0x%02x at %d", got, i)
		}
	}
}

func TestPageProgramThenReadDataRoundTrips(t *testing.T) {
	f := newFlash(t, 1<<20, true)
	f.Xfer(0x06) // WriteEnable
	f.Reset()

	f.Xfer(0x02) // PageProgram
	f.Xfer(0x00)
	f.Xfer(0x10)
	f.Xfer(0x00)
	for _, b := range []byte{0xAA, 0xBB, 0xCC} {
		f.Xfer(b)
	}
	f.Reset()

	f.Xfer(0x03) // ReadData
	f.Xfer(0x00)
	f.Xfer(0x10)
	f.Xfer(0x00)
	got := []byte{f.Xfer(0), f.Xfer(0), f.Xfer(0)}
	want := []byte{0xAA, 0xBB, 0xCC}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("byte %d: got 0x%02x want 0x%02x", i, got[i], want[i])
		}
	}
}

func TestSectorEraseFillsWithFF(t *testing.T) {
	f := newFlash(t, 1<<20, true)
	f.Xfer(0x06) // WriteEnable
	f.Reset()

	f.Xfer(0xD8) // SectorErase
	f.Xfer(0x00)
	f.Xfer(0x00)
	f.Xfer(0x00)
	f.Reset()

	f.Xfer(0x03)
	f.Xfer(0x00)
	f.Xfer(0x00)
	f.Xfer(0x00)
	if got := f.Xfer(0); got != 0xFF {
		t.Errorf("expected erased byte 0xFF, got 0x%02x", got)
	}
}

func TestReadStatusReflectsWriteEnableLatch(t *testing.T) {
	f := newFlash(t, 4096, true)
	f.Xfer(0x05)
	if got := f.Xfer(0); got&0x02 != 0 {
		t.Error("expected WEL clear before WriteEnable")
	}
	f.Reset()

	f.Xfer(0x06)
	f.Reset()

	f.Xfer(0x05)
	if got := f.Xfer(0); got&0x02 == 0 {
		t.Error("expected WEL set after WriteEnable")
	}
}

func TestReadOnlyFlashIgnoresProgram(t *testing.T) {
	f := newFlash(t, 4096, false)
	f.Xfer(0x02)
	f.Xfer(0x00)
	f.Xfer(0x00)
	f.Xfer(0x00)
	f.Xfer(0x55)
	f.Reset()

	f.Xfer(0x03)
	f.Xfer(0x00)
	f.Xfer(0x00)
	f.Xfer(0x00)
	if got := f.Xfer(0); got != 0 {
		t.Errorf("expected read-only flash unmodified, got 0x%02x", got)
	}
}

func TestNameMatchesOriginalConvention(t *testing.T) {
	f := newFlash(t, 4096, false)
	if got := f.Name("SPI3"); got != "SPI3 ext-flash" {
		t.Errorf("got %q", got)
	}
}
