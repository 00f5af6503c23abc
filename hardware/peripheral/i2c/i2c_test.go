package i2c_test

import (
	"testing"

	"github.com/kvasari/stm32emu/hardware/peripheral/i2c"
	"github.com/kvasari/stm32emu/svd"
)

func reg(name string) *svd.Register { return &svd.Register{Name: name} }

type recordingDevice struct {
	startAddr  uint8
	startWrite bool
	written    []byte
	stopped    bool
}

func (d *recordingDevice) Start(address uint8, write bool) { d.startAddr, d.startWrite = address, write }
func (d *recordingDevice) WriteByte(b byte)                { d.written = append(d.written, b) }
func (d *recordingDevice) ReadByte() byte                   { return 0x42 }
func (d *recordingDevice) Stop()                            { d.stopped = true }

func TestStartAddressDecode(t *testing.T) {
	dev := &recordingDevice{}
	i, ok := i2c.New("I2C1", 0x40005400, dev)
	if !ok {
		t.Fatal("expected I2C1 to match")
	}
	i.OnWrite(reg("CR1"), 0, 1<<8, nil)
	i.OnWrite(reg("DR"), 0, (0x50<<1)|0, nil) // address 0x50, write

	if dev.startAddr != 0x50 || !dev.startWrite {
		t.Errorf("got addr=0x%x write=%v", dev.startAddr, dev.startWrite)
	}
}

func TestDataBytesForwardedAfterStart(t *testing.T) {
	dev := &recordingDevice{}
	i, _ := i2c.New("I2C2", 0x40005800, dev)
	i.OnWrite(reg("CR1"), 0, 1<<8, nil)
	i.OnWrite(reg("DR"), 0, 0x50<<1, nil)
	i.OnWrite(reg("DR"), 0, 0xAB, nil)
	i.OnWrite(reg("DR"), 0, 0xCD, nil)

	if len(dev.written) != 2 || dev.written[0] != 0xAB || dev.written[1] != 0xCD {
		t.Errorf("unexpected written bytes %x", dev.written)
	}
}

func TestStopInvokesDevice(t *testing.T) {
	dev := &recordingDevice{}
	i, _ := i2c.New("I2C3", 0x40005C00, dev)
	i.OnWrite(reg("CR1"), 0, 1<<9, nil)
	if !dev.stopped {
		t.Error("expected Stop() invoked")
	}
}

func TestStatusRegistersAlwaysReady(t *testing.T) {
	i, _ := i2c.New("I2C1", 0x40005400, nil)
	sr1, _ := i.OnRead(reg("SR1"), 0, nil)
	if sr1 == 0 {
		t.Error("expected SR1 to report ready bits")
	}
}
