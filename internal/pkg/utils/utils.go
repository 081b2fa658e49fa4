package utils

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerateTransactionRef generates a ledger transaction reference for manual
// settlements that arrive without one.
func GenerateTransactionRef() string {
	return fmt.Sprintf("manual_%s_%s", time.Now().Format("20060102_150405"), uuid.New().String()[:8])
}

// ShortToken returns a short random suffix for deep-link payloads.
func ShortToken() string {
	return uuid.New().String()[:8]
}

// FormatBytes converts bytes to a human-readable size.
func FormatBytes(bytes int64) string {
	if bytes <= 0 {
		return "0 B"
	}
	units := []string{"B", "KB", "MB", "GB", "TB", "PB"}
	val := float64(bytes)
	i := 0
	for val >= 1024 && i < len(units)-1 {
		val /= 1024
		i++
	}
	return fmt.Sprintf("%.1f %s", val, units[i])
}

// BytesToGB converts bytes to gigabytes.
func BytesToGB(bytes int64) float64 {
	return float64(bytes) / (1 << 30)
}

// GBToBytes converts gigabytes to bytes.
func GBToBytes(gb float64) int64 {
	return int64(gb * (1 << 30))
}
