package geo

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var itu = Coordinate{Lat: 55.659359, Lon: 12.591005}

func TestNewCoordinate(t *testing.T) {
	_, err := NewCoordinate(55.6, 12.5)
	assert.NoError(t, err)

	for _, c := range [][2]float64{{91, 0}, {-91, 0}, {0, 181}, {0, -181}, {math.NaN(), 0}, {0, math.Inf(1)}} {
		_, err := NewCoordinate(c[0], c[1])
		assert.ErrorIs(t, err, ErrInvalidCoordinate, "%v", c)
	}
}

func TestDistance(t *testing.T) {
	assert.Equal(t, 0.0, Distance(itu, itu))

	// ITU to Kongens Nytorv is roughly 2.3km
	kn := Coordinate{Lat: 55.680173, Lon: 12.585731}
	d := Distance(itu, kn)
	assert.InDelta(t, 2335, d, 50)
	assert.InDelta(t, d, Distance(kn, itu), 1e-6)
}

func TestOffset(t *testing.T) {
	far := Offset(itu, 1000, 0)
	assert.InDelta(t, 1000, Distance(itu, far), 1)

	east := Offset(itu, 0, 25)
	assert.InDelta(t, 25, Distance(itu, east), 0.1)
}

func TestZoneContains(t *testing.T) {
	z := Zone{Name: "ITU", Center: itu, RadiusMeters: 30, Expiry: DefaultExpiry}

	assert.True(t, z.Contains(itu))
	assert.True(t, z.Contains(Offset(itu, 29, 0)))
	assert.False(t, z.Contains(Offset(itu, 31, 0)))
	assert.True(t, z.Expires())

	z.Expiry = NeverExpire
	assert.False(t, z.Expires())
	z.Expiry = 0
	assert.False(t, z.Expires())
}

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()
	assert.Equal(t, 9, c.Len())
	assert.Equal(t, "ITU", c.Names()[0])

	z, ok := c.Lookup("ITU")
	require.True(t, ok)
	assert.Equal(t, DefaultRadius, z.RadiusMeters)
	assert.Equal(t, DefaultExpiry, z.Expiry)

	_, ok = c.Lookup("Nowhere")
	assert.False(t, ok)

	assert.Equal(t, []string{"ITU"}, c.Containing(itu))
	assert.Empty(t, c.Containing(Offset(itu, 1000, 0)))
}

func TestNewCatalogRejects(t *testing.T) {
	_, err := NewCatalog(Zone{Name: "a", Center: itu, RadiusMeters: 30}, Zone{Name: "a", Center: itu, RadiusMeters: 30})
	assert.ErrorIs(t, err, ErrDuplicateZone)

	_, err = NewCatalog(Zone{Name: "", Center: itu, RadiusMeters: 30})
	assert.ErrorIs(t, err, ErrInvalidZone)

	_, err = NewCatalog(Zone{Name: "b", Center: itu, RadiusMeters: 0})
	assert.ErrorIs(t, err, ErrInvalidZone)
}

func TestLoadCatalog(t *testing.T) {
	doc := `
radius: 40
expiry: 120s
zones:
  - name: ITU
    lat: 55.659359
    long: 12.591005
  - name: DR_Byen
    lat: 55.655893
    long: 12.589257
    radius: 15
    expiry: never
`
	path := filepath.Join(t.TempDir(), "zones.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"ITU", "DR_Byen"}, c.Names())

	z, _ := c.Lookup("ITU")
	assert.Equal(t, 40.0, z.RadiusMeters)
	assert.Equal(t, 120*time.Second, z.Expiry)

	z, _ = c.Lookup("DR_Byen")
	assert.Equal(t, 15.0, z.RadiusMeters)
	assert.Equal(t, NeverExpire, z.Expiry)
}

func TestParseExpiry(t *testing.T) {
	for s, expected := range map[string]time.Duration{
		"":      DefaultExpiry,
		"never": NeverExpire,
		"0s":    NeverExpire,
		"-5m":   NeverExpire,
		"90s":   90 * time.Second,
	} {
		d, err := parseExpiry(s, DefaultExpiry)
		require.NoError(t, err, s)
		assert.Equal(t, expected, d, s)
	}

	_, err := parseExpiry("soon", DefaultExpiry)
	assert.Error(t, err)
}

func TestLoadCatalogErrors(t *testing.T) {
	_, err := LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = ParseCatalog([]byte("zones:\n  - name: x\n    lat: 100\n    long: 0\n"))
	assert.ErrorIs(t, err, ErrInvalidZone)

	_, err = ParseCatalog([]byte("expiry: soon\nzones: []\n"))
	assert.Error(t, err)
}
