package pipeline

import (
	"encoding/json"
	"fmt"
	"image"
	"math"
	"strings"
)

// Unit is the unit a requested width or height is expressed in.
type Unit string

const (
	UnitPixel   Unit = "px"
	UnitPercent Unit = "percent"
	UnitCM      Unit = "cm"
	UnitInch    Unit = "inch"
)

const cmPerInch = 2.54

// ParseUnit accepts the canonical unit names as well as "%" and "in".
// An empty string means pixels.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "px", "pixel", "pixels":
		return UnitPixel, nil
	case "percent", "%", "pct":
		return UnitPercent, nil
	case "cm":
		return UnitCM, nil
	case "inch", "in", "inches":
		return UnitInch, nil
	default:
		return "", fmt.Errorf("unknown unit %q", s)
	}
}

func (u *Unit) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseUnit(s)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// Axis selects which source dimension a percentage refers to.
type Axis int

const (
	AxisWidth Axis = iota
	AxisHeight
)

func (a Axis) of(size image.Point) int {
	if a == AxisHeight {
		return size.Y
	}
	return size.X
}

// ToPixels converts value in unit to an absolute pixel count.
// With no source loaded (zero size) the value is used as-is. The result is
// rounded and never below MinDimension.
func ToPixels(value float64, axis Axis, unit Unit, source image.Point, dpi float64) int {
	if source.X <= 0 || source.Y <= 0 {
		return clampDimension(value)
	}

	var px float64
	switch unit {
	case UnitPercent:
		px = value / 100 * float64(axis.of(source))
	case UnitCM:
		px = value * dpi / cmPerInch
	case UnitInch:
		px = value * dpi
	default:
		px = value
	}
	return clampDimension(px)
}

// FromPixels is the inverse of ToPixels, without the floor.
func FromPixels(px int, axis Axis, unit Unit, source image.Point, dpi float64) float64 {
	if source.X <= 0 || source.Y <= 0 {
		return float64(px)
	}

	switch unit {
	case UnitPercent:
		return float64(px) * 100 / float64(axis.of(source))
	case UnitCM:
		if dpi <= 0 {
			return 0
		}
		return float64(px) * cmPerInch / dpi
	case UnitInch:
		if dpi <= 0 {
			return 0
		}
		return float64(px) / dpi
	default:
		return float64(px)
	}
}

// clampDimension rounds v and applies the MinDimension floor. NaN and
// infinities are treated as degenerate input.
func clampDimension(v float64) int {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return MinDimension
	}
	r := math.Round(v)
	if r < MinDimension {
		return MinDimension
	}
	if r > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(r)
}
