package schema

import (
	"math"
	"strings"
	"unicode/utf8"
)

// Infer picks a type from a column's values. Empty values are ignored.
//
// More specific kinds win: integer (bigint past int32), then date, then
// boolean words, then numeric, otherwise character (text when some value
// exceeds defLen runes).
func Infer(values []string, defLen int) ColumnType {
	var seen bool
	allInt, allNum, allDate, allBool := true, true, true, true
	maxLen, maxScale := 0, 0
	var maxAbs float64

	for _, raw := range values {
		v := strings.TrimSpace(raw)
		if n := utf8.RuneCountInString(v); n > maxLen {
			maxLen = n
		}
		if v == "" {
			continue
		}
		seen = true

		if allNum || allInt {
			f, ok := ParseNumber(v)
			if !ok {
				allNum, allInt = false, false
			} else {
				if math.Abs(f) > maxAbs {
					maxAbs = math.Abs(f)
				}
				if s := decimals(v); s > 0 {
					allInt = false
					if s > maxScale {
						maxScale = s
					}
				}
			}
		}
		if allDate {
			if _, ok := ParseDate(v); !ok {
				allDate = false
			}
		}
		if allBool {
			if _, ok := parseBoolWord(v); !ok {
				allBool = false
			}
		}
	}

	switch {
	case !seen:
		return Char(defLen)
	case allInt && maxAbs > math.MaxInt32:
		return ColumnType{Kind: KindBigInt}
	case allInt:
		return ColumnType{Kind: KindInteger}
	case allDate:
		return ColumnType{Kind: KindDate}
	case allBool:
		return ColumnType{Kind: KindBoolean}
	case allNum:
		if maxScale < DefaultScale {
			maxScale = DefaultScale
		}
		if maxScale > 6 {
			maxScale = 6
		}
		return ColumnType{Kind: KindNumeric, Precision: DefaultPrecision, Scale: maxScale}
	case maxLen > defLen:
		return ColumnType{Kind: KindText}
	}
	return Char(defLen)
}

func decimals(v string) int {
	i := strings.LastIndexByte(v, '.')
	if i < 0 {
		return 0
	}
	n := 0
	for _, r := range v[i+1:] {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

// parseBoolWord accepts only word forms; 1/0 are left to the integer kinds.
func parseBoolWord(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "t", "true", "yes", "y", "si", "sí":
		return true, true
	case "f", "false", "no", "n":
		return false, true
	}
	return false, false
}
