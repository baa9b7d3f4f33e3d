// Package aqi classifies air quality values into display categories.
//
// Two independent scales are supported: the continuous US EPA index (0-500)
// reported by IQAir and WAQI, and OpenWeatherMap's coarse 1-5 index. Each has
// its own table and the two are never mixed.
package aqi

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

const (
	// UnknownLabel is returned for missing, unparsable or negative input
	UnknownLabel = "Unknown"
	// NeutralColor is the display color for UnknownLabel
	NeutralColor = "#808080"
)

// Category is a resolved label and its display color
type Category struct {
	Label string `json:"label"`
	Color string `json:"color"`
}

// Unknown is the category for values that cannot be classified
var Unknown = Category{Label: UnknownLabel, Color: NeutralColor}

// Band is a closed interval of the US AQI scale
type Band struct {
	Low  int `json:"low"`
	High int `json:"high"`
	Category
}

// usBands covers [0,500] with no gaps or overlaps, ascending.
var usBands = []Band{
	{0, 50, Category{"Good", "#5EC445"}},
	{51, 100, Category{"Moderate", "#F5E769"}},
	{101, 150, Category{"Unhealthy for Sensitive Groups", "#FE9B57"}},
	{151, 200, Category{"Unhealthy", "#FE6A69"}},
	{201, 300, Category{"Very Unhealthy", "#A97ABC"}},
	{301, 500, Category{"Hazardous", "#A06A7B"}},
}

// Bands returns a copy of the US AQI band table
func Bands() []Band {
	out := make([]Band, len(usBands))
	copy(out, usBands)
	return out
}

// Resolve maps a US AQI value to its category. It accepts nil, strings,
// any integer or float type, json.Number and pointers to those. It never panics:
// input that is not a finite, non-negative number resolves to Unknown.
// Fractions are truncated before lookup and values above 500 are Hazardous.
func Resolve(v any) Category {
	f, ok := ParseValue(v)
	if !ok || f < 0 {
		return Unknown
	}
	n := int(math.Trunc(f))
	for _, b := range usBands {
		if n >= b.Low && n <= b.High {
			return b.Category
		}
	}
	top := usBands[len(usBands)-1]
	if n > top.High {
		return top.Category
	}
	return Unknown
}

// ParseValue extracts a finite number from a loosely typed value such as a
// decoded JSON field. The boolean is false when no number could be read.
func ParseValue(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case nil:
		return 0, false
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int8:
		f = float64(x)
	case int16:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint:
		f = float64(x)
	case uint8:
		f = float64(x)
	case uint16:
		f = float64(x)
	case uint32:
		f = float64(x)
	case uint64:
		f = float64(x)
	case json.Number:
		return parseString(x.String())
	case string:
		return parseString(x)
	case *float64:
		if x == nil {
			return 0, false
		}
		f = *x
	case *int:
		if x == nil {
			return 0, false
		}
		f = float64(*x)
	case *string:
		if x == nil {
			return 0, false
		}
		return parseString(*x)
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func parseString(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
