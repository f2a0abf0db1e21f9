package screen

// UsedCapacity is the number of recently acted-on positions remembered.
const UsedCapacity = 3

// UsedPositions remembers the last few positions a session clicked in the
// current listing. The oldest position is evicted first. It must be reset
// whenever the listing changes (refresh, scroll, drag).
type UsedPositions struct {
	radius    int
	positions []Point
}

func NewUsedPositions() *UsedPositions {
	return &UsedPositions{
		radius:    Radius,
		positions: make([]Point, 0, UsedCapacity),
	}
}

func (u *UsedPositions) Add(p Point) {
	if len(u.positions) == UsedCapacity {
		copy(u.positions, u.positions[1:])
		u.positions = u.positions[:UsedCapacity-1]
	}
	u.positions = append(u.positions, p)
}

// Contains reports whether p is near any remembered position.
func (u *UsedPositions) Contains(p Point) bool {
	for _, q := range u.positions {
		if Near(p, q, u.radius) {
			return true
		}
	}
	return false
}

func (u *UsedPositions) Reset() {
	u.positions = u.positions[:0]
}

func (u *UsedPositions) Len() int {
	return len(u.positions)
}

// Positions returns a copy, oldest first.
func (u *UsedPositions) Positions() []Point {
	return append([]Point(nil), u.positions...)
}
