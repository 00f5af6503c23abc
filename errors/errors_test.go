package errors_test

import (
	"testing"

	"github.com/kvasari/stm32emu/errors"
)

func TestError(t *testing.T) {
	e := errors.New(errors.ConfigUnknownPeripheral, "FOOBAR")
	want := "unknown peripheral type for FOOBAR"
	if e.Error() != want {
		t.Errorf("got %q, want %q", e.Error(), want)
	}
}

func TestIs(t *testing.T) {
	var err error = errors.New(errors.EngineFault, uint32(0x08000000), "undefined instruction")
	if !errors.Is(err, errors.EngineFault) {
		t.Errorf("expected errors.Is to match EngineFault")
	}
	if errors.Is(err, errors.ConfigFileInvalid) {
		t.Errorf("did not expect errors.Is to match ConfigFileInvalid")
	}
}
