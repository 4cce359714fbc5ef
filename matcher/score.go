package matcher

import (
	"math"
	"strconv"
)

// Score is a template distance in [-1, 0]; lower is a better match. A Score
// may carry no value, which happens when either side has no minutiae or
// nothing was compared. A Score without a value never beats one with a value.
type Score struct {
	value float64
	valid bool
}

// NoScore is the Score of a comparison that could not be made.
var NoScore = Score{}

func Distance(d float64) Score {
	return Score{value: d, valid: true}
}

// Value returns the distance and whether there is one.
func (s Score) Value() (float64, bool) {
	return s.value, s.valid
}

func (s Score) Valid() bool { return s.valid }

// Float renders s for numeric consumers: the distance, or +Inf without one.
func (s Score) Float() float64 {
	if !s.valid {
		return math.Inf(1)
	}
	return s.value
}

// Less reports whether s is a strictly better match than o.
func (s Score) Less(o Score) bool {
	if !s.valid {
		return false
	}
	if !o.valid {
		return true
	}
	return s.value < o.value
}

func (s Score) String() string {
	if !s.valid {
		return "none"
	}
	return strconv.FormatFloat(s.value, 'f', 6, 64)
}

// MarshalJSON encodes a missing value as null.
func (s Score) MarshalJSON() ([]byte, error) {
	if !s.valid {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, s.value, 'g', -1, 64), nil
}
