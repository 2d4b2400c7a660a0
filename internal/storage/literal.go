package storage

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// renderLiteral converts a coerced value into SQL literal text.
//
// Backends must not assume a particular Go type for values; this helper
// keeps rendering consistent across dialects. strPrefix is prepended to
// string literals ("N" for SQL Server unicode strings).
func renderLiteral(v any, strPrefix, trueLit, falseLit string) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case string:
		return strPrefix + "'" + strings.ReplaceAll(t, "'", "''") + "'"
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return "NULL"
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if t {
			return trueLit
		}
		return falseLit
	case time.Time:
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return "'" + t.Format("2006-01-02") + "'"
		}
		return "'" + t.Format("2006-01-02 15:04:05") + "'"
	case []byte:
		return strPrefix + "'" + strings.ReplaceAll(string(t), "'", "''") + "'"
	default:
		return strPrefix + "'" + strings.ReplaceAll(fmt.Sprint(v), "'", "''") + "'"
	}
}
