package max17048

import "math"

// RCOMP returns the compensation byte for the ambient temperature tempC.
//
// Above 20°C the byte drops by 0.5 per degree, at or below 20°C it rises by 5
// per degree. The result is truncated and wraps modulo 256, so temperatures
// far below the anchor alias to small values. NaN and infinite temperatures
// yield DefaultRCOMP.
func RCOMP(tempC float32) uint8 {
	v := float64(rcompModel(tempC))
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return DefaultRCOMP
	}
	v = math.Mod(math.Trunc(v), 256)
	if v < 0 {
		v += 256
	}
	return uint8(v)
}

// ClampedRCOMP is RCOMP with the result held to [0, 255] instead of wrapping.
// A NaN temperature yields DefaultRCOMP.
func ClampedRCOMP(tempC float32) uint8 {
	v := rcompModel(tempC)
	switch {
	case math.IsNaN(float64(v)):
		return DefaultRCOMP
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v)
}

func rcompModel(tempC float32) float32 {
	if tempC > 20 {
		return DefaultRCOMP + (tempC-20)*-0.5
	}
	return DefaultRCOMP + (tempC-20)*-5.0
}
