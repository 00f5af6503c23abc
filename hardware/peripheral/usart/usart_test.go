package usart_test

import (
	"testing"

	"github.com/kvasari/stm32emu/hardware/peripheral/usart"
	"github.com/kvasari/stm32emu/svd"
)

func reg(name string) *svd.Register { return &svd.Register{Name: name} }

type echoDevice struct {
	renamed string
	history []byte
}

func (e *echoDevice) Name(usartName string) string {
	if e.renamed != "" {
		return e.renamed
	}
	return usartName
}

func (e *echoDevice) Xfer(tx byte) ([]byte, bool) {
	e.history = append(e.history, tx)
	return []byte{tx + 1}, true
}

func TestDeviceRenamesUsart(t *testing.T) {
	u, ok := usart.New("USART1", 0x40011000, &echoDevice{renamed: "usart-probe"})
	if !ok {
		t.Fatal("expected USART1 to match")
	}
	if u.Name() != "usart-probe" {
		t.Errorf("expected renamed device, got %q", u.Name())
	}
}

func TestWriteDRFeedsDeviceAndQueuesRx(t *testing.T) {
	dev := &echoDevice{}
	u, _ := usart.New("USART2", 0x40004400, dev)

	u.OnWrite(reg("DR"), 0, 'A', nil)
	result, _ := u.OnRead(reg("DR"), 0, nil)
	if result != 'A'+1 {
		t.Errorf("expected echoed byte, got %d", result)
	}
}

func TestSRReflectsQueueState(t *testing.T) {
	u, _ := usart.New("USART3", 0x40004800, nil)
	sr, _ := u.OnRead(reg("SR"), 0, nil)
	if sr&(1<<7) == 0 {
		t.Error("expected TXE always set")
	}
	if sr&(1<<5) != 0 {
		t.Error("expected RXNE clear with empty rx queue")
	}
}

func TestWithoutDeviceStillQueuesTx(t *testing.T) {
	u, ok := usart.New("UART4", 0x40004C00, nil)
	if !ok {
		t.Fatal("expected UART4 to match the UART prefix")
	}
	u.OnWrite(reg("DR"), 0, 'x', nil)
}

func TestNonUsartRejected(t *testing.T) {
	if _, ok := usart.New("SPI1", 0x40013000, nil); ok {
		t.Error("expected non-USART name to be rejected")
	}
}
