// Package usartprobe implements a line-buffered USART sink that logs
// completed lines at INFO instead of driving a real serial peer, grounded
// on ext_devices/usart_probe.rs. It implements usart.Device.
package usartprobe

import (
	"strings"

	"github.com/kvasari/stm32emu/logger"
)

const eol = 0x0a

// Config names which USART peripheral a probe attaches to.
type Config struct {
	Peripheral string
}

// UsartProbe accumulates transmitted bytes into a line buffer and logs the
// completed line when it sees a trailing linefeed.
type UsartProbe struct {
	peripheral string
	name       string
	rx         []byte
}

// New returns a UsartProbe for cfg.
func New(cfg Config) *UsartProbe {
	return &UsartProbe{peripheral: cfg.Peripheral}
}

// Name implements usart.Device, matching the original's "<peripheral>
// usart-probe" rename.
func (p *UsartProbe) Name(usartName string) string {
	p.name = usartName + " usart-probe"
	return p.name
}

// Xfer implements usart.Device. The probe never produces bytes for the
// firmware to read back; stdin injection (the original's non-blocking
// stdin read) is out of scope for a scripted emulator run.
func (p *UsartProbe) Xfer(tx byte) ([]byte, bool) {
	if tx == eol {
		line := strings.TrimSpace(string(p.rx))
		logger.Info(logger.Allow, "usart-probe p=%s %s '%s'", p.peripheral, p.name, line)
		p.rx = p.rx[:0]
		return nil, false
	}
	p.rx = append(p.rx, tx)
	return nil, false
}
