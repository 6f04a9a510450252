package physics

import "math"

const twoPi = 2 * math.Pi

// WrapAngle wraps an angle to (-Pi, Pi]. WrapAngle(WrapAngle(a)) == WrapAngle(a).
func WrapAngle(a float64) float64 {
	if math.IsInf(a, 0) || math.IsNaN(a) {
		return math.NaN()
	}
	if a > -math.Pi && a <= math.Pi {
		return a
	}
	r := math.Mod(a+math.Pi, twoPi)
	if r < 0 {
		r += twoPi
	}
	r -= math.Pi
	if r <= -math.Pi {
		return math.Pi
	}
	return r
}

// clampFloat clamps v between minVal and maxVal.
func clampFloat(v, minVal, maxVal float64) float64 {
	if v < minVal {
		return minVal
	}
	if v > maxVal {
		return maxVal
	}
	return v
}
