// Package max17048 drives the MAX17048 single-cell fuel gauge over I²C.
//
// Every accessor issues a fresh bus transaction; nothing is cached. The
// driver is not safe for concurrent use.
package max17048

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// DefaultAddr is the bus address used by NewMAX17048.
const DefaultAddr = 0x6C

// DefaultRCOMP is the compensation byte at the 20°C anchor temperature.
const DefaultRCOMP = 0x97

const (
	regVCell   = 0x02
	regSOC     = 0x04
	regVersion = 0x08
	regConfig  = 0x0C // high byte RCOMP, low byte ATHD/SLEEP/ALSC
	regCRate   = 0x16
)

// ErrReleased is returned by every operation after Release.
var ErrReleased = errors.New("max17048: device released")

type MAX17048 struct {
	dev *i2c.Dev

	// Receive scratch, overwritten by every read.
	r [2]byte
}

// New binds the gauge to bus at addr. No transaction is performed.
func New(bus i2c.Bus, addr uint16) *MAX17048 {
	return &MAX17048{dev: &i2c.Dev{Addr: addr, Bus: bus}}
}

// NewMAX17048 binds the gauge to bus at DefaultAddr.
func NewMAX17048(bus i2c.Bus) *MAX17048 {
	return New(bus, DefaultAddr)
}

func (m *MAX17048) String() string {
	if m.dev == nil {
		return "MAX17048{released}"
	}
	return fmt.Sprintf("MAX17048{%s}", m.dev)
}

// Version returns the raw VERSION register.
func (m *MAX17048) Version() (uint16, error) {
	return m.readReg(regVersion)
}

// StateOfCharge returns the whole percent of charge. The fractional low byte
// is discarded; see StateOfChargePercent.
func (m *MAX17048) StateOfCharge() (uint16, error) {
	raw, err := m.readReg(regSOC)
	if err != nil {
		return 0, err
	}
	return raw / 256, nil
}

// StateOfChargePercent returns the state of charge including the 1/256%
// resolution of the low byte.
func (m *MAX17048) StateOfChargePercent() (float32, error) {
	raw, err := m.readReg(regSOC)
	if err != nil {
		return 0, err
	}
	return float32(raw) / 256, nil
}

// ChargeRate returns the C/Rate in %/hr. The register is scaled as an
// unsigned bit pattern, so a discharge shows up as a large positive value.
func (m *MAX17048) ChargeRate() (float32, error) {
	raw, err := m.readReg(regCRate)
	if err != nil {
		return 0, err
	}
	return float32(raw) * 0.208, nil
}

// SignedChargeRate returns the C/Rate in %/hr with the register read as two's
// complement: positive while charging, negative while discharging.
func (m *MAX17048) SignedChargeRate() (float32, error) {
	raw, err := m.readReg(regCRate)
	if err != nil {
		return 0, err
	}
	return float32(int16(raw)) * 0.208, nil
}

// CellVoltage returns the cell voltage in volts.
func (m *MAX17048) CellVoltage() (float32, error) {
	raw, err := m.readReg(regVCell)
	if err != nil {
		return 0, err
	}
	return float32(raw) * 0.000078125, nil
}

// CellPotential returns the cell voltage at full register resolution
// (78.125µV per LSB).
func (m *MAX17048) CellPotential() (physic.ElectricPotential, error) {
	raw, err := m.readReg(regVCell)
	if err != nil {
		return 0, err
	}
	return physic.ElectricPotential(raw) * 78125 * physic.NanoVolt, nil
}

// DefaultTemperatureCompensation writes DefaultRCOMP.
func (m *MAX17048) DefaultTemperatureCompensation() error {
	return m.compensation(DefaultRCOMP)
}

// TemperatureCompensation writes the RCOMP byte computed by RCOMP(tempC).
func (m *MAX17048) TemperatureCompensation(tempC float32) error {
	return m.compensation(RCOMP(tempC))
}

// ClampedTemperatureCompensation writes the RCOMP byte computed by
// ClampedRCOMP(tempC).
func (m *MAX17048) ClampedTemperatureCompensation(tempC float32) error {
	return m.compensation(ClampedRCOMP(tempC))
}

// Release hands the bus back to the caller. The gauge is unusable afterwards.
func (m *MAX17048) Release() i2c.Bus {
	if m.dev == nil {
		return nil
	}
	bus := m.dev.Bus
	m.dev = nil
	return bus
}

// compensation replaces the RCOMP byte of CONFIG and keeps the low byte.
// The read and the write are separate transactions.
func (m *MAX17048) compensation(rcomp uint8) error {
	v, err := m.readReg(regConfig)
	if err != nil {
		return err
	}
	v &= 0x00FF
	v |= uint16(rcomp) << 8
	return m.writeReg(regConfig, v)
}

func (m *MAX17048) readReg(reg byte) (uint16, error) {
	if m.dev == nil {
		return 0, ErrReleased
	}
	if err := m.dev.Tx([]byte{reg}, m.r[:]); err != nil {
		return 0, err
	}
	return uint16(m.r[0])<<8 | uint16(m.r[1]), nil
}

// writeReg sends the register pointer and the big-endian value as two writes.
func (m *MAX17048) writeReg(reg byte, val uint16) error {
	if m.dev == nil {
		return ErrReleased
	}
	if err := m.dev.Tx([]byte{reg}, nil); err != nil {
		return err
	}
	return m.dev.Tx([]byte{byte(val >> 8), byte(val)}, nil)
}
