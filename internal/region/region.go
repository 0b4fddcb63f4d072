// Package region defines the closed catalog of region codes appearing in
// Eurostat life-expectancy extracts: countries plus statistical aggregates.
//
// The catalog is fixed at build time. Aggregates are multi-country
// economic/political groupings (EU- and EFTA-wide totals) and duplicate or
// historical country encodings; "actual countries" is the catalog minus the
// aggregate set.
package region

import (
	"fmt"
	"sort"
	"strings"
)

// Code is a canonical catalog code, always uppercase.
type Code string

// catalog maps every known code to its aggregate flag.
var catalog = map[Code]bool{
	"AL": false, "AM": false, "AT": false, "AZ": false,
	"BE": false, "BG": false, "BY": false,
	"CH": false, "CY": false, "CZ": false,
	"DE": false, "DE_TOT": true, "DK": false,
	"EA18": true, "EA19": true, "EE": false,
	"EEA30_2007": true, "EEA31": true, "EFTA": true, "EL": false, "ES": false,
	"EU27_2007": true, "EU27_2020": true, "EU28": true,
	"FI": false, "FR": false, "FX": false,
	"GE": false,
	"HR": false, "HU": false,
	"IE": false, "IS": false, "IT": false,
	"LI": false, "LT": false, "LU": false, "LV": false,
	"MD": false, "ME": false, "MK": false, "MT": false,
	"NL": false, "NO": false,
	"PL": false, "PT": false,
	"RO": false, "RS": false, "RU": false,
	"SE": false, "SI": false, "SK": false, "SM": false,
	"TR": false,
	"UA": false, "UK": false,
	"XK": false,
}

// Contains reports whether s matches a catalog code, case-insensitively.
func Contains(s string) bool {
	_, ok := Normalize(s)
	return ok
}

// Normalize maps free-text input onto its canonical catalog code.
// Matching is case-insensitive after trimming whitespace. The second return
// is false when the input matches nothing, letting callers fall back to the
// original text.
func Normalize(s string) (Code, bool) {
	c := Code(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := catalog[c]; ok {
		return c, true
	}
	return "", false
}

// IsAggregate reports whether c is one of the fixed aggregate codes.
// Unknown codes are not aggregates.
func IsAggregate(c Code) bool {
	return catalog[c]
}

// All returns every catalog code in sorted order.
func All() []Code {
	out := make([]Code, 0, len(catalog))
	for c := range catalog {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ActualCountries returns the catalog minus the aggregate set, sorted.
func ActualCountries() []Code {
	out := make([]Code, 0, len(catalog))
	for c, agg := range catalog {
		if !agg {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Resolve maps a requested target region (code or symbolic alias,
// case-insensitive) onto its canonical code. Unresolvable input fails with
// *InvalidRegionError, whose message enumerates the valid country codes.
func Resolve(s string) (Code, error) {
	if c, ok := Normalize(s); ok {
		return c, nil
	}
	return "", &InvalidRegionError{Input: s}
}

// InvalidRegionError is returned when a requested target region does not
// resolve against the catalog.
type InvalidRegionError struct {
	Input string
}

// Error lists the valid non-aggregate codes grouped ten per line so the
// caller-facing message stays readable.
func (e *InvalidRegionError) Error() string {
	codes := ActualCountries()
	values := make([]string, len(codes))
	for i, c := range codes {
		values[i] = string(c)
	}

	var chunks []string
	for i := 0; i < len(values); i += 10 {
		end := i + 10
		if end > len(values) {
			end = len(values)
		}
		chunks = append(chunks, strings.Join(values[i:end], ", "))
	}

	return fmt.Sprintf("invalid region: %q; valid country codes are:\n  - %s",
		e.Input, strings.Join(chunks, "\n  - "))
}
