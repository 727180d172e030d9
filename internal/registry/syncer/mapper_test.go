package syncer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeHeader(t *testing.T) {
	assert.Equal(t, "N-NUMBER", normalizeHeader("\ufeffN-Number"))
	assert.Equal(t, "MODE S CODE HEX", normalizeHeader("  mode s code hex "))
	assert.Equal(t, "", normalizeHeader("   "))
}

func TestMapAircraft(t *testing.T) {
	rec, ok := mapAircraft(map[string]string{
		"N-NUMBER":        "123ab",
		"SERIAL NUMBER":   "SN-1",
		"MFR MDL CODE":    "1151515",
		"NAME":            "SKY HOLDINGS LLC",
		"MODE S CODE HEX": "a1b2c3",
		"STATUS CODE":     "V",
	})
	assert.True(t, ok)
	assert.Equal(t, "123AB", rec.Registration)
	assert.Equal(t, "SN-1", rec.SerialNumber)
	assert.Equal(t, "A1B2C3", rec.ModeSHex)
	assert.Equal(t, "SKY HOLDINGS LLC", rec.RegistrantName)
}

func TestMapAircraft_AlternateHeaders(t *testing.T) {
	rec, ok := mapAircraft(map[string]string{
		"TAIL NUMBER": "9Q1",
		"OWNER":       "JANE DOE",
		"ICAO":        "ignored",
		"MODE S HEX":  "ABC123",
	})
	assert.True(t, ok)
	assert.Equal(t, "9Q1", rec.Registration)
	assert.Equal(t, "JANE DOE", rec.RegistrantName)
	assert.Equal(t, "ABC123", rec.ModeSHex)
}

func TestMapAircraft_MissingRegistrationSkips(t *testing.T) {
	_, ok := mapAircraft(map[string]string{
		"SERIAL NUMBER": "SN-2",
		"NAME":          "NO TAIL INC",
	})
	assert.False(t, ok)
}

func TestMapAircraft_InvalidHexDropped(t *testing.T) {
	for _, hex := range []string{"XYZ123", "A1B2C", "A1B2C3D", "12 456"} {
		rec, ok := mapAircraft(map[string]string{
			"N-NUMBER":        "1X",
			"MODE S CODE HEX": hex,
		})
		assert.True(t, ok)
		assert.Empty(t, rec.ModeSHex, "hex %q should be rejected", hex)
	}
}

func TestRowToMap_ShortRow(t *testing.T) {
	headers := []string{"N-NUMBER", "SERIAL NUMBER", "CITY"}
	raw := rowToMap(headers, []string{"1AB", "SN"})
	assert.Equal(t, "1AB", raw["N-NUMBER"])
	assert.Equal(t, "SN", raw["SERIAL NUMBER"])
	assert.Empty(t, raw["CITY"])
}
