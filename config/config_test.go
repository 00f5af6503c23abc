package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kvasari/stm32emu/config"
	"github.com/kvasari/stm32emu/errors"
)

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadMinimal(t *testing.T) {
	path := writeTemp(t, `
cpu:
  svd: STM32F407.svd
  vector_table: 0x08000000
regions:
  - name: flash
    start: 0x08000000
    size: 0x100000
    load: firmware.bin
  - name: sram
    start: 0x20000000
    size: 0x20000
    writable: true
`)

	c, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Cpu.SVD != "STM32F407.svd" {
		t.Errorf("got svd %q", c.Cpu.SVD)
	}
	if len(c.Regions) != 2 {
		t.Fatalf("expected 2 regions, got %d", len(c.Regions))
	}
	if c.Regions[1].Name != "sram" || !c.Regions[1].Writable {
		t.Errorf("sram region not parsed correctly: %+v", c.Regions[1])
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load("/nonexistent/path/config.yaml")
	if !errors.Is(err, errors.ConfigFileCannotOpen) {
		t.Errorf("expected ConfigFileCannotOpen, got %v", err)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeTemp(t, "cpu: [this is not a mapping")
	_, err := config.Load(path)
	if !errors.Is(err, errors.ConfigFileInvalid) {
		t.Errorf("expected ConfigFileInvalid, got %v", err)
	}
}

func TestOverlappingRegionsRejected(t *testing.T) {
	path := writeTemp(t, `
cpu:
  svd: STM32F407.svd
  vector_table: 0x08000000
regions:
  - name: a
    start: 0x20000000
    size: 0x1000
  - name: b
    start: 0x20000800
    size: 0x1000
`)

	_, err := config.Load(path)
	if !errors.Is(err, errors.ConfigOverlappingRegions) {
		t.Errorf("expected ConfigOverlappingRegions, got %v", err)
	}
}

func TestAdjacentRegionsAccepted(t *testing.T) {
	path := writeTemp(t, `
cpu:
  svd: STM32F407.svd
  vector_table: 0x08000000
regions:
  - name: a
    start: 0x20000000
    size: 0x1000
  - name: b
    start: 0x20001000
    size: 0x1000
`)

	_, err := config.Load(path)
	if err != nil {
		t.Errorf("adjacent regions should not overlap: %v", err)
	}
}
