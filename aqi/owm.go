package aqi

import (
	"math"
)

// owmLabels is OpenWeatherMap's 1-5 air pollution index. It is a
// pre-categorised scale and shares nothing with usBands.
var owmLabels = map[int]string{
	1: "Good (1)",
	2: "Fair (2)",
	3: "Moderate (3)",
	4: "Poor (4)",
	5: "Very Poor (5)",
}

// ResolveOWM maps an OpenWeatherMap index to its label. Anything that is not
// an integer between 1 and 5 resolves to UnknownLabel.
func ResolveOWM(v any) string {
	f, ok := ParseValue(v)
	if !ok || f != math.Trunc(f) {
		return UnknownLabel
	}
	if label, ok := owmLabels[int(f)]; ok {
		return label
	}
	return UnknownLabel
}
