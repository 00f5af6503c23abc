package gpio_test

import (
	"testing"

	"github.com/kvasari/stm32emu/hardware/peripheral/gpio"
	"github.com/kvasari/stm32emu/svd"
)

func reg(name string) *svd.Register { return &svd.Register{Name: name} }

func TestParsePin(t *testing.T) {
	cases := map[string]gpio.Pin{
		"PA0":  {Port: 0, Num: 0},
		"PB12": {Port: 1, Num: 12},
		"c5":   {Port: 2, Num: 5},
	}
	for in, want := range cases {
		got, err := gpio.ParsePin(in)
		if err != nil {
			t.Fatalf("ParsePin(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParsePin(%q) = %+v, want %+v", in, got, want)
		}
	}
}

func TestParsePinInvalid(t *testing.T) {
	if _, err := gpio.ParsePin("Z3"); err == nil {
		t.Error("expected error for out-of-range port letter")
	}
}

func TestODRWriteDrivesPort(t *testing.T) {
	ports := gpio.NewPorts()
	var observed bool
	ports.AddWriteCallback(gpio.Pin{Port: 0, Num: 5}, func(v bool) { observed = v })

	g, ok := gpio.New("GPIOA", 0x40020000, ports)
	if !ok {
		t.Fatal("expected GPIOA to match")
	}

	g.OnWrite(reg("ODR"), 0, 1<<5, nil)
	if !observed {
		t.Error("expected write callback invoked with true")
	}

	g.OnWrite(reg("ODR"), 1<<5, 0, nil)
	if observed {
		t.Error("expected write callback invoked with false")
	}
}

func TestBSRRSetAndReset(t *testing.T) {
	ports := gpio.NewPorts()
	var level bool
	ports.AddWriteCallback(gpio.Pin{Port: 1, Num: 3}, func(v bool) { level = v })

	g, _ := gpio.New("GPIOB", 0x40020400, ports)

	g.OnWrite(reg("BSRR"), 0, 1<<3, nil) // set
	if !level {
		t.Error("expected BSRR set bit to drive pin high")
	}

	g.OnWrite(reg("BSRR"), 0, 1<<(16+3), nil) // reset
	if level {
		t.Error("expected BSRR reset bit to drive pin low")
	}
}

func TestIDRReadsPort(t *testing.T) {
	ports := gpio.NewPorts()
	ports.AddReadCallback(gpio.Pin{Port: 0, Num: 2}, func() bool { return true })

	g, _ := gpio.New("GPIOA", 0x40020000, ports)
	result, _ := g.OnRead(reg("IDR"), 0, nil)
	if result != 1<<2 {
		t.Errorf("expected IDR bit 2 set, got 0x%x", result)
	}
}

func TestNonGPIOPeripheralRejected(t *testing.T) {
	ports := gpio.NewPorts()
	if _, ok := gpio.New("USART1", 0x40011000, ports); ok {
		t.Error("expected non-GPIO name to be rejected")
	}
}

func TestModeRoundTrip(t *testing.T) {
	ports := gpio.NewPorts()
	g, _ := gpio.New("GPIOC", 0x40020800, ports)

	g.OnWrite(reg("MODER"), 0, 0b01, nil) // pin0 = output
	result, _ := g.OnRead(reg("MODER"), 0, nil)
	if result != 0b01 {
		t.Errorf("expected MODER=1, got 0x%x", result)
	}
}
