// Package normalizers provides deterministic field normalization for
// identity matching. Every function is pure: same input, same output, no I/O.
// An empty return value means the input is unusable and must be treated as
// missing, never as a disagreement.
package normalizers

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/Ramsey-B/sorrel/pkg/models"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

// registry holds all registered normalizers
var registry = make(map[string]Normalizer)

func init() {
	Register("lowercase", Lowercase)
	Register("trim", Trim)
	Register("nphone", NormalizePhone)
	Register("nemail", NormalizeEmail)
	Register("nname", NormalizeName)
	Register("naddress", NormalizeAddress)
	Register("digits_only", DigitsOnly)
	Register("soundex", Soundex)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// ForIdentifierType normalizes a raw value for the given identifier type.
func ForIdentifierType(idType models.IdentifierType, raw string) string {
	switch idType {
	case models.IdentifierTypeEmail:
		return NormalizeEmail(raw)
	case models.IdentifierTypePhone:
		return NormalizePhone(raw)
	default:
		return Trim(raw)
	}
}

// Built-in normalizers

// Lowercase converts string to lowercase
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// NormalizeEmail normalizes an email address (lowercase, trim). Empty input
// normalizes to empty.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizePhone normalizes a US phone number to exactly ten digits. All
// non-digits are stripped; an eleven digit number with a leading country
// code 1 has the 1 dropped. Anything that does not leave exactly ten digits
// normalizes to empty.
func NormalizePhone(s string) string {
	digits := DigitsOnly(s)
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	if len(digits) != 10 {
		return ""
	}
	return digits
}

// NormalizeName normalizes a person's name for matching
// - Lowercase
// - Remove extra whitespace
// - Remove common suffixes (Jr., Sr., III, etc.)
// - Remove punctuation
// Display casing is kept on the person row; this form is for comparison only.
func NormalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	suffixes := []string{" jr.", " jr", " sr.", " sr", " iii", " ii", " iv", " phd", " md", " dds"}
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			s = s[:len(s)-len(suffix)]
		}
	}

	var result strings.Builder
	prevSpace := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
			prevSpace = false
		} else if unicode.IsSpace(r) {
			if !prevSpace {
				result.WriteRune(' ')
				prevSpace = true
			}
		}
	}

	return strings.TrimSpace(result.String())
}

// DigitsOnly keeps only digit characters
func DigitsOnly(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

var addressSpaceRe = regexp.MustCompile(`\s+`)

// NormalizeAddress normalizes an address string
func NormalizeAddress(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	// Common abbreviations
	replacements := map[string]string{
		" street":    " st",
		" avenue":    " ave",
		" boulevard": " blvd",
		" drive":     " dr",
		" road":      " rd",
		" lane":      " ln",
		" court":     " ct",
		" circle":    " cir",
		" place":     " pl",
		" apartment": " apt",
		" suite":     " ste",
		" north":     " n",
		" south":     " s",
		" east":      " e",
		" west":      " w",
	}

	for full, abbr := range replacements {
		s = strings.ReplaceAll(s, full, abbr)
	}

	s = addressSpaceRe.ReplaceAllString(s, " ")

	return strings.TrimSpace(s)
}
