package touch_test

import (
	"testing"

	"github.com/kvasari/stm32emu/hardware/peripheral/gpio"
	"github.com/kvasari/stm32emu/hardware/extdevice/touch"
)

func newRig(t *testing.T, cfg touch.Config) (*touch.Touch, *gpio.Ports) {
	t.Helper()
	ports := gpio.NewPorts()
	d, err := touch.New(cfg, ports)
	if err != nil {
		t.Fatal(err)
	}
	return d, ports
}

func TestNoActiveEventRepliesZero(t *testing.T) {
	d, _ := newRig(t, touch.Config{Width: 240, Height: 320})
	d.Xfer(0x80 | 0x50) // MeasureX control byte
	if got := d.Xfer(0); got != 0 {
		t.Errorf("expected zero reply with no active touch, got 0x%02x", got)
	}
}

func TestMeasureXYReportsScaledPosition(t *testing.T) {
	d, _ := newRig(t, touch.Config{
		Width: 240, Height: 320,
		Events: []touch.Event{{StartTick: 0, EndTick: 100, X: 120, Y: 160, Pressure: 10}},
	})
	d.Tick(50)

	d.Xfer(0xD0) // start=1 op=101(X) mode=0 diff=0 power=00
	hi := d.Xfer(0)
	lo := d.Xfer(0)
	v := uint32(hi)<<4 | uint32(lo)>>4
	want := uint32(120) * 0xFFF / 240
	if v != want {
		t.Errorf("got 0x%03x want 0x%03x", v, want)
	}

	d.Xfer(0x90) // start=1 op=001(Y) mode=0 diff=0 power=00
	hi = d.Xfer(0)
	lo = d.Xfer(0)
	v = uint32(hi)<<4 | uint32(lo)>>4
	want = uint32(160) * 0xFFF / 320
	if v != want {
		t.Errorf("Y: got 0x%03x want 0x%03x", v, want)
	}
}

func TestPenIRQReflectsActiveEvent(t *testing.T) {
	d, ports := newRig(t, touch.Config{
		Width: 240, Height: 320, PenDetectedPin: "PA0",
		Events: []touch.Event{{StartTick: 10, EndTick: 20, X: 1, Y: 1}},
	})
	pin, _ := gpio.ParsePin("PA0")

	d.Tick(5)
	if val := (ports.ReadPort(pin.Port) >> pin.Num) & 1; val == 0 {
		t.Error("expected pen-up (high) before event window")
	}

	d.Tick(15)
	if val := (ports.ReadPort(pin.Port) >> pin.Num) & 1; val != 0 {
		t.Error("expected pen-down (low) during event window")
	}
}

func TestSwapXYExchangesOperations(t *testing.T) {
	d, _ := newRig(t, touch.Config{
		Width: 240, Height: 320, SwapXY: true,
		Events: []touch.Event{{StartTick: 0, EndTick: 10, X: 120, Y: 80}},
	})
	d.Tick(5)

	d.Xfer(0xD0) // MeasureX control byte, swapped to Y internally
	hi := d.Xfer(0)
	lo := d.Xfer(0)
	v := uint32(hi)<<4 | uint32(lo)>>4
	want := uint32(80) * 0xFFF / 320
	if v != want {
		t.Errorf("got 0x%03x want 0x%03x", v, want)
	}
}
