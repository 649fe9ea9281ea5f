package identity

import (
	"strings"
	"time"
	"unicode"

	"loan-lifecycle/internal/common/errors"
)

const isoDate = "2006-01-02"

var birthDateLayouts = []string{
	isoDate,
	"2006/01/02",
	"01/02/2006",
	time.RFC3339,
}

// NormalizeTaxID keeps digits only. A valid tax id has exactly nine.
func NormalizeTaxID(taxID string) (string, bool) {
	var b strings.Builder
	for _, r := range taxID {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	out := b.String()
	return out, len(out) == 9
}

// NormalizeBirthDate parses any accepted layout and returns the ISO form.
func NormalizeBirthDate(birthDate string) (time.Time, bool) {
	s := strings.TrimSpace(birthDate)
	for _, layout := range birthDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// Normalize validates both identity fields and returns their canonical forms.
func Normalize(taxID, birthDate string) (string, string, []errors.FieldError) {
	var fields []errors.FieldError

	digits, ok := NormalizeTaxID(taxID)
	if !ok {
		fields = append(fields, errors.FieldError{Field: "taxId", Code: "INVALID_FORMAT", Message: "taxId must contain 9 digits"})
	}
	date, ok := NormalizeBirthDate(birthDate)
	if !ok {
		fields = append(fields, errors.FieldError{Field: "birthDate", Code: "INVALID_FORMAT", Message: "birthDate must be a calendar date"})
	}
	if len(fields) > 0 {
		return "", "", fields
	}
	return digits, date.Format(isoDate), nil
}
