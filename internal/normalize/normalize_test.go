package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPathStrip(t *testing.T) {
	n := New(nil)
	assert.Equal(t, "RPM", n.Normalize("Sensors/RPM"))
	assert.Equal(t, "RPM", n.Normalize("Sensors.Engine.RPM"))
}

func TestBuiltinDictionary(t *testing.T) {
	n := New(nil)
	assert.Equal(t, "RPM", n.Normalize("rpm"))
	assert.Equal(t, "Coolant Temperature", n.Normalize("Coolant Temp"))
	assert.Equal(t, "Intake Air Temperature", n.Normalize("IAT"))
}

func TestOverrideWinsOverBuiltin(t *testing.T) {
	n := New(map[string]string{"rpm": "Engine RPM (custom)"})
	assert.Equal(t, "Engine RPM (custom)", n.Normalize("RPM"))
}

func TestIdentityFallback(t *testing.T) {
	n := New(nil)
	assert.Equal(t, "Some Weird Channel", n.Normalize("Some Weird Channel"))
}

func TestHasNormalization(t *testing.T) {
	n := New(nil)
	assert.True(t, n.HasNormalization("rpm"))
	assert.False(t, n.HasNormalization("Some Weird Channel"))
}

func TestDisplayName(t *testing.T) {
	n := New(nil)
	assert.Equal(t, "RPM (rpm)", n.DisplayName("rpm"))
	assert.Equal(t, "Unmapped", n.DisplayName("Unmapped"))
}

func TestNormalizeIsIdempotentForSlashCanonicalNames(t *testing.T) {
	n := New(nil)
	once := n.Normalize("afr")
	assert.Equal(t, "Air/Fuel Ratio", once)
	assert.Equal(t, once, n.Normalize(once))
	assert.Equal(t, "Air/Fuel Ratio", n.Normalize("Air/Fuel Ratio"))
}

func TestSortChannelsByPriority(t *testing.T) {
	got := SortChannelsByPriority([]string{"Zebra Channel", "Gear", "RPM", "Alpha Channel", "Throttle Position"})
	assert.Equal(t, []string{"RPM", "Throttle Position", "Gear", "Alpha Channel", "Zebra Channel"}, got)
}
