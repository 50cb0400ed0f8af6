package parser

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// ErrNotFinite is the cause when a cell spells NaN, an infinity or a hex float.
var ErrNotFinite = errors.New("value is not a finite decimal number")

// ParseNumber parses a numeric cell. Decimal commas ("1,5") are accepted when
// the cell has no '.'. NaN, Inf and hex floats are rejected with ErrNotFinite.
func ParseNumber(cell string) (float64, error) {
	s := strings.TrimSpace(cell)
	v, err := parseFloat(s)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || strings.ContainsAny(s, "xX") {
		return 0, &strconv.NumError{Func: "ParseNumber", Num: s, Err: ErrNotFinite}
	}
	return v, nil
}

func parseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err == nil {
		return v, nil
	}
	if strings.Contains(s, ",") && !strings.Contains(s, ".") {
		if v, err2 := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64); err2 == nil {
			return v, nil
		}
	}
	return 0, err
}

// IsNumeric reports whether every cell reads as a number. Non-finite
// spellings count, so a data record holding NaN is not mistaken for a header.
func IsNumeric(cells []string) bool {
	for _, c := range cells {
		if _, err := parseFloat(strings.TrimSpace(c)); err != nil {
			return false
		}
	}
	return true
}
