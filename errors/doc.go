// Package errors defines the fatal error taxonomy for stm32emu:
// configuration problems, missing vendor description or image files, and
// CPU engine faults. These are the only conditions that abort emulation.
// Everything firmware itself can provoke -- unmapped accesses, malformed
// SPI commands, inconsistent DMA setup -- is logged as a warning and never
// represented as an error; see the logger package.
package errors
