package domain

// Direction selects how the sequence navigator moves through an ordering.
type Direction string

const (
	DirectionNext  Direction = "next"
	DirectionPrev  Direction = "prev"
	DirectionFirst Direction = "first"
	DirectionLast  Direction = "last"
)

// ParseDirection maps user input onto a Direction. Unknown values report false.
func ParseDirection(s string) (Direction, bool) {
	switch Direction(s) {
	case DirectionNext, DirectionPrev, DirectionFirst, DirectionLast:
		return Direction(s), true
	}
	return "", false
}
