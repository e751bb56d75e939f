package event

import "time"

// Kind is the pointer event type.
type Kind string

const (
	Move  Kind = "move"
	Down  Kind = "down"
	Up    Kind = "up"
	Leave Kind = "leave"
	Wheel Kind = "wheel"
)

// Event is the canonical input model for pointer and wheel input on the
// graph canvas. Coordinates are screen pixels relative to the canvas.
type Event struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	X          float64   `json:"x"`
	Y          float64   `json:"y"`
	DeltaY     float64   `json:"delta_y,omitempty"` // wheel only
	OccurredAt time.Time `json:"occurred_at"`
	ReceivedAt time.Time `json:"-"`
}

// Valid reports whether the kind is known.
func (e Event) Valid() bool {
	switch e.Kind {
	case Move, Down, Up, Leave, Wheel:
		return true
	}
	return false
}
