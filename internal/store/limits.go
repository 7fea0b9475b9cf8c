package store

// Outcome listing limits.
const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// NormalizeLimit maps non-positive limits to the default and caps large ones.
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}
