package units

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTemperatureConversion(t *testing.T) {
	c, sym := Convert(300.0, "K", "C")
	assert.Equal(t, "C", sym)
	assert.InDelta(t, 26.85, c, 1e-9)

	f, sym := Convert(300.0, "K", "F")
	assert.Equal(t, "F", sym)
	assert.InDelta(t, 80.33, f, 1e-6)
}

func TestPressureConversion(t *testing.T) {
	psi, _ := Convert(100.0, "kPa", "PSI")
	assert.InDelta(t, 14.5038, psi, 1e-9)

	bar, _ := Convert(100.0, "kPa", "bar")
	assert.InDelta(t, 1.0, bar, 1e-9)
}

func TestFuelEconomyZeroGuard(t *testing.T) {
	mpg, _ := Convert(0.0, "L/100km", "mpg")
	assert.Equal(t, 0.0, mpg)
	kml, _ := Convert(-1.0, "L/100km", "km/L")
	assert.Equal(t, 0.0, kml)
}

func TestUnknownUnitIsIdentity(t *testing.T) {
	v, sym := Convert(42.0, "RPM", "anything")
	assert.Equal(t, 42.0, v)
	assert.Equal(t, "RPM", sym)
}

// Property: unit conversion is dimension-preserving (spec.md §8 property 6).
func TestConversionRoundTrips(t *testing.T) {
	cases := []struct {
		unit    string
		targets []string
	}{
		{"K", []string{"C", "F"}},
		{"kPa", []string{"PSI", "bar"}},
		{"km/h", []string{"mph"}},
		{"km", []string{"mi"}},
		{"L", []string{"gal"}},
		{"cc/min", []string{"lb/hr"}},
		{"m/s2", []string{"g"}},
	}
	for _, c := range cases {
		for _, target := range c.targets {
			orig := 123.456
			converted, sym := Convert(orig, c.unit, target)
			back := Invert(converted, c.unit, sym)
			assert.InEpsilon(t, orig, back, 1e-9, "%s -> %s -> %s", c.unit, target, c.unit)
		}
	}
}

func TestFuelEconomyRoundTrip(t *testing.T) {
	orig := 8.5
	for _, target := range []string{"mpg", "km/L"} {
		converted, sym := Convert(orig, "L/100km", target)
		back := Invert(converted, "L/100km", sym)
		assert.True(t, math.Abs(back-orig) < 1e-9)
	}
}
