package grid

import "fmt"

type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Position) Add(d Direction) Position {
	dx, dy := d.Delta()
	return Position{X: p.X + dx, Y: p.Y + dy}
}

// DistSq is the squared Euclidean distance. Coordinates are widened before
// subtracting so positions far off the grid cannot wrap around to a small
// distance; grid-scale results are exact.
func DistSq(a, b Position) float64 {
	dx := float64(a.X) - float64(b.X)
	dy := float64(a.Y) - float64(b.Y)
	return dx*dx + dy*dy
}

type Direction uint8

const (
	North Direction = iota
	South
	East
	West
	Stop
)

// Cardinal is the canonical enumeration order of movement actions.
var Cardinal = [4]Direction{North, South, East, West}

var directionNames = [...]string{
	North: "North",
	South: "South",
	East:  "East",
	West:  "West",
	Stop:  "Stop",
}

func (d Direction) String() string {
	if int(d) < len(directionNames) {
		return directionNames[d]
	}
	return fmt.Sprintf("Direction(%d)", uint8(d))
}

func ParseDirection(s string) (Direction, error) {
	for i, name := range directionNames {
		if name == s {
			return Direction(i), nil
		}
	}
	return Stop, fmt.Errorf("unknown direction %q", s)
}

func (d Direction) Valid() bool { return d <= Stop }

func (d Direction) IsMove() bool { return d < Stop }

// Delta is the coordinate step; North grows Y.
func (d Direction) Delta() (dx, dy int) {
	switch d {
	case North:
		return 0, 1
	case South:
		return 0, -1
	case East:
		return 1, 0
	case West:
		return -1, 0
	}
	return 0, 0
}

// Perpendicular returns the two slip directions of an intended move.
func (d Direction) Perpendicular() (Direction, Direction) {
	switch d {
	case North:
		return West, East
	case South:
		return East, West
	case East:
		return North, South
	case West:
		return South, North
	}
	return Stop, Stop
}

func (d Direction) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("invalid direction %d", uint8(d))
	}
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(b []byte) error {
	v, err := ParseDirection(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}
