package normalizers

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/sorrel/pkg/models"
)

func TestNormalizeEmail(t *testing.T) {
	t.Run("trims and lowercases", func(t *testing.T) {
		assert.Equal(t, "jane@x.com", NormalizeEmail("  Jane@X.com "))
	})

	t.Run("empty input normalizes to empty", func(t *testing.T) {
		assert.Equal(t, "", NormalizeEmail(""))
		assert.Equal(t, "", NormalizeEmail("   "))
	})
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"formatted ten digit", "(707) 555-1212", "7075551212"},
		{"bare ten digit", "7075551212", "7075551212"},
		{"eleven digit with country code", "1-707-555-1212", "7075551212"},
		{"eleven digit without leading one", "27075551212", ""},
		{"too short", "555-1212", ""},
		{"too long", "707-555-12122", ""},
		{"letters only", "no phone", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizePhone(tt.input))
		})
	}
}

func TestNormalizeName(t *testing.T) {
	t.Run("collapses whitespace and casefolds", func(t *testing.T) {
		assert.Equal(t, "jane van doe", NormalizeName("  Jane   van  DOE "))
	})

	t.Run("strips suffixes and punctuation", func(t *testing.T) {
		assert.Equal(t, "john smith", NormalizeName("John Smith Jr."))
		assert.Equal(t, "oconnor", NormalizeName("O'Connor"))
	})

	t.Run("deterministic", func(t *testing.T) {
		assert.Equal(t, NormalizeName("Jane  Doe"), NormalizeName("Jane  Doe"))
	})
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "123 main st apt 4", NormalizeAddress("123 Main Street Apartment 4"))
	assert.Equal(t, "55 n oak ave", NormalizeAddress("55  North  Oak Avenue"))
}

func TestSoundex(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Robert", "R163"},
		{"Rupert", "R163"},
		{"Smith", "S530"},
		{"Smyth", "S530"},
		{"Lee", "L000"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, Soundex(tt.input))
		})
	}
}

func TestForIdentifierType(t *testing.T) {
	assert.Equal(t, "jane@x.com", ForIdentifierType(models.IdentifierTypeEmail, " Jane@X.com"))
	assert.Equal(t, "7075551212", ForIdentifierType(models.IdentifierTypePhone, "(707) 555-1212"))
	assert.Equal(t, "", ForIdentifierType(models.IdentifierTypePhone, "555-1212"))
}
