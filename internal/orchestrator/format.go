package orchestrator

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	successPrefix    = "Operation successful: "
	failurePrefix    = "Operation failed: "
	parseErrorPrefix = "Could not parse database operation: "
	malformedPrefix  = "Invalid database operation: "
)

// formatResult renders a remote result for splicing into reply text:
// scalars as-is, records and lists as JSON.
func formatResult(v interface{}) string {
	switch r := v.(type) {
	case nil:
		return "done"
	case string:
		return r
	case bool:
		return strconv.FormatBool(r)
	case int64:
		return strconv.FormatInt(r, 10)
	case int:
		return strconv.Itoa(r)
	case float64:
		if r == math.Trunc(r) && math.Abs(r) < 1e15 {
			return strconv.FormatInt(int64(r), 10)
		}
		return strconv.FormatFloat(r, 'f', -1, 64)
	}

	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// splicePrefix trims trailing blanks left in front of a marker so the
// annotation starts on its own line.
func splicePrefix(prefix string) string {
	return strings.TrimRight(prefix, " \t")
}
