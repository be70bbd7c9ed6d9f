package domain

import (
	"fmt"
	"strings"
)

// Direction is a relative navigation step in display order (newest first).
type Direction string

const (
	// DirectionPrev steps to the stored neighbour one index further down the
	// newest-first order (the next older block). Past the oldest stored block
	// it falls back to newest+1.
	DirectionPrev Direction = "prev"
	// DirectionNext steps to the stored neighbour one index up the
	// newest-first order (the next newer block). Past the newest stored block
	// it falls back to oldest-1.
	DirectionNext Direction = "next"
)

// ParseDirection parses "prev" or "next", case-insensitively.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(s))); d {
	case DirectionPrev, DirectionNext:
		return d, nil
	default:
		return "", fmt.Errorf("unknown direction %q", s)
	}
}
