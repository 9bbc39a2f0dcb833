package format

import (
	"fmt"
	"math"
	"strings"
	"time"
)

func Percent(val float64) string {
	if val == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.0f%%", val*100)
}

func Float(val float64, decimals int) string {
	if decimals < 0 {
		decimals = 4
	}
	out := fmt.Sprintf("%.*f", decimals, val)
	out = strings.TrimRight(strings.TrimRight(out, "0"), ".")
	if out == "" {
		return "0"
	}
	return out
}

// Pips renders a pip distance without trailing noise (31.50 -> "31.5").
func Pips(val float64) string {
	return Float(val, 1)
}

// Lots renders a lot size at broker precision.
func Lots(val float64) string {
	return fmt.Sprintf("%.2f", val)
}

func Duration(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	d := time.Duration(ms) * time.Millisecond
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, d/time.Second)
	}
	return fmt.Sprintf("%ds", d/time.Second)
}

func RangeSummary(bars []float64) (float64, float64) {
	low := math.MaxFloat64
	high := -math.MaxFloat64
	for _, v := range bars {
		if v < low {
			low = v
		}
		if v > high {
			high = v
		}
	}
	return low, high
}
