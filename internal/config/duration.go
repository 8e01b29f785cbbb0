package config

import (
	"strconv"
	"strings"

	"github.com/zr-run/zr/internal/zrerrors"
)

// parseDurationMS parses a duration string per spec §4.1: a bare integer is
// milliseconds ("500"), otherwise a Go-style suffix ("1s", "1m", "1h",
// "100ms"). Malformed input returns InvalidConfig{BadDuration}.
func parseDurationMS(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, zrerrors.InvalidConfig(zrerrors.SubBadDuration, "empty duration")
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms, nil
	}

	units := []struct {
		suffix string
		factor int64
	}{
		{"ms", 1},
		{"s", 1000},
		{"m", 60 * 1000},
		{"h", 60 * 60 * 1000},
	}
	for _, u := range units {
		if strings.HasSuffix(s, u.suffix) {
			numPart := strings.TrimSuffix(s, u.suffix)
			n, err := strconv.ParseFloat(numPart, 64)
			if err != nil {
				return 0, zrerrors.InvalidConfig(zrerrors.SubBadDuration, "bad duration %q", s)
			}
			return int64(n * float64(u.factor)), nil
		}
	}
	return 0, zrerrors.InvalidConfig(zrerrors.SubBadDuration, "bad duration %q", s)
}
