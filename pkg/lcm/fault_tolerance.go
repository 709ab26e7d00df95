package lcm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cuemby/anvil/pkg/log"
)

// FaultTolerance converts a group's fault_tolerance setting into the number
// of nodes allowed to fail out of total. Accepted values are an integer, a
// negative integer counted back from total, or a percentage like "30%".
// Anything else allows no failures.
func FaultTolerance(value interface{}, total int) int {
	n, err := faultTolerance(value, total)
	if err != nil {
		logger := log.WithComponent("lcm")
		logger.Warn().Err(err).Msg("Invalid fault tolerance, using 0")
		return 0
	}
	if n < 0 {
		return 0
	}
	return n
}

func faultTolerance(value interface{}, total int) (int, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case int:
		return relative(v, total), nil
	case int64:
		return relative(int(v), total), nil
	case float64:
		return relative(int(v), total), nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, nil
		}
		if pct, ok := strings.CutSuffix(s, "%"); ok {
			p, err := strconv.Atoi(strings.TrimSpace(pct))
			if err != nil {
				return 0, fmt.Errorf("fault tolerance %q: %w", v, err)
			}
			return total * p / 100, nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("fault tolerance %q: %w", v, err)
		}
		return relative(n, total), nil
	}
	return 0, fmt.Errorf("fault tolerance has unsupported type %T", value)
}

func relative(n, total int) int {
	if n < 0 {
		return total + n
	}
	return n
}
