// Package normalize converts heterogeneous spreadsheet cell values into
// canonical numeric and date forms. Every function is total: bad input
// degrades to a defined value, never to a panic or NaN.
package normalize

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// SeparatorPolicy names the numeric separator and currency-marker
// convention applied when parsing amount strings. The production data
// was written with a fixed Turkish convention and the policy must be
// preserved for compatibility, even where it is locale-incorrect for
// other inputs ("1.234,56" is always 1234.56, never 1.23456).
type SeparatorPolicy struct {
	ThousandsSep    string
	DecimalSep      string
	CurrencyMarkers []string
}

// PolicyTRComma is the fixed policy of the source data: period as
// thousands separator, comma as decimal separator.
var PolicyTRComma = SeparatorPolicy{
	ThousandsSep:    ".",
	DecimalSep:      ",",
	CurrencyMarkers: []string{"USD", "EUR", "TL", "$", "€", "₺"},
}

// amountColumns and dateColumns are the fixed column sets subject to
// normalization on import.
var amountColumns = []string{
	"Tutar", "Ödenen Tutar", "Kalan Bakiye", "Vade (Gün)",
	"Ciro Hedefi", "Görüşme Kalitesi",
}

var dateColumns = []string{
	"Tarih", "Fatura Tarihi", "Vade Tarihi", "Sevk Tarihi",
	"ETA Tarihi", "Ulaşma Tarihi", "Termin Tarihi",
	"Oluşturma Tarihi", "Güncelleme Tarihi",
}

// dateFormats are tried in order when parsing string dates.
var dateFormats = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"02.01.2006",
	"02/01/2006",
	"2006/01/02",
}

// Normalizer applies a separator policy to cell values.
type Normalizer struct {
	policy SeparatorPolicy
}

// NewNormalizer creates a normalizer with the given policy.
func NewNormalizer(policy SeparatorPolicy) *Normalizer {
	return &Normalizer{policy: policy}
}

// AmountColumns returns the column names normalized as amounts.
func AmountColumns() []string {
	return append([]string(nil), amountColumns...)
}

// DateColumns returns the column names normalized as dates.
func DateColumns() []string {
	return append([]string(nil), dateColumns...)
}

// IsAmountColumn reports whether a column is amount-typed: either a
// member of the fixed set or a name carrying a currency marker.
func (n *Normalizer) IsAmountColumn(name string) bool {
	for _, col := range amountColumns {
		if name == col {
			return true
		}
	}
	upper := strings.ToUpper(name)
	tokens := strings.FieldsFunc(upper, func(r rune) bool {
		return r == ' ' || r == '(' || r == ')' || r == '/'
	})
	for _, marker := range n.policy.CurrencyMarkers {
		m := strings.ToUpper(marker)
		if isLetterMarker(m) {
			// Alphabetic markers match whole tokens only, so "Notlar"
			// never matches "TL".
			for _, tok := range tokens {
				if tok == m {
					return true
				}
			}
			continue
		}
		if strings.Contains(upper, m) {
			return true
		}
	}
	return false
}

func isLetterMarker(m string) bool {
	for _, r := range m {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// IsDateColumn reports whether a column is date-typed.
func (n *Normalizer) IsDateColumn(name string) bool {
	for _, col := range dateColumns {
		if name == col {
			return true
		}
	}
	return false
}

// Amount converts an arbitrary cell value to a float64. Numeric input
// passes through, empty input becomes 0, and strings are parsed under
// the separator policy. Unparseable input degrades to 0.
func (n *Normalizer) Amount(v any) float64 {
	switch val := v.(type) {
	case nil:
		return 0
	case float64:
		return sanitize(val)
	case float32:
		return sanitize(float64(val))
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case bool:
		if val {
			return 1
		}
		return 0
	}

	s := strings.TrimSpace(fmt.Sprint(v))
	if s == "" {
		return 0
	}

	for _, marker := range n.policy.CurrencyMarkers {
		s = stripFold(s, marker)
	}
	s = strings.Join(strings.Fields(s), "")
	s = strings.ReplaceAll(s, n.policy.ThousandsSep, "")
	s = strings.ReplaceAll(s, n.policy.DecimalSep, ".")

	parsed, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return sanitize(parsed)
}

// Date converts a cell value to a YYYY-MM-DD string. Numeric input is
// treated as a 1900-system spreadsheet date serial. String input is
// tried against the known calendar formats; on failure the original
// string is returned unchanged so no data is silently lost. Empty
// input becomes the empty string.
func (n *Normalizer) Date(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case float64:
		return serialToISO(val)
	case float32:
		return serialToISO(float64(val))
	case int:
		return serialToISO(float64(val))
	case int64:
		return serialToISO(float64(val))
	case time.Time:
		return val.Format("2006-01-02")
	}

	s := strings.TrimSpace(fmt.Sprint(v))
	if s == "" {
		return ""
	}

	// Cells loaded as text may still hold a bare serial number. The
	// window starts well above any plausible bare year so strings like
	// "2024" are preserved rather than read as early-1900s serials.
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 30000 && serial < 200000 {
		return serialToISO(serial)
	}

	for _, format := range dateFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return s
}

// serialToISO converts a 1900-date-system serial to an ISO date.
// excelize owns the epoch arithmetic, including the 1900 leap-year
// quirk of the format.
func serialToISO(serial float64) string {
	if serial <= 0 || math.IsNaN(serial) || math.IsInf(serial, 0) {
		return fmt.Sprint(serial)
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return fmt.Sprint(serial)
	}
	return t.Format("2006-01-02")
}

// stripFold removes every occurrence of marker from s regardless of
// case, so "USD", "usd" and "Usd" all disappear.
func stripFold(s, marker string) string {
	if marker == "" {
		return s
	}
	var b strings.Builder
	for len(s) > 0 {
		if len(s) >= len(marker) && strings.EqualFold(s[:len(marker)], marker) {
			s = s[len(marker):]
			continue
		}
		_, size := utf8.DecodeRuneInString(s)
		b.WriteString(s[:size])
		s = s[size:]
	}
	return b.String()
}

func sanitize(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
