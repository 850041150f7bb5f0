package max17048

import "periph.io/x/conn/v3/physic"

// Reading is a snapshot of the gauge registers.
type Reading struct {
	Voltage    physic.ElectricPotential
	SOC        uint16  // whole percent
	SOCPercent float32 // with fractional part
	ChargeRate float32 // %/hr, negative while discharging
	Version    uint16
}

// Read collects a Reading, one register read per field. The first bus error
// is returned unchanged.
func (m *MAX17048) Read() (Reading, error) {
	var r Reading
	var err error
	if r.Voltage, err = m.CellPotential(); err != nil {
		return Reading{}, err
	}
	if r.SOCPercent, err = m.StateOfChargePercent(); err != nil {
		return Reading{}, err
	}
	r.SOC = uint16(r.SOCPercent)
	if r.ChargeRate, err = m.SignedChargeRate(); err != nil {
		return Reading{}, err
	}
	if r.Version, err = m.Version(); err != nil {
		return Reading{}, err
	}
	return r, nil
}
