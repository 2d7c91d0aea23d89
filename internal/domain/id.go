package domain

import (
	"time"

	"github.com/google/uuid"
)

// NewID generates a store identifier that sorts lexicographically in
// creation order: a fixed-width UTC nanosecond timestamp prefix followed
// by a short random suffix to break ties within the same nanosecond.
// Creation-order sortability is what cursor pagination relies on.
func NewID(t time.Time) string {
	return t.UTC().Format("20060102150405.000000000") + "-" + uuid.NewString()[:8]
}
