// Package input defines the contract of the input injection backend.
package input

import (
	"context"
	"time"

	"github.com/CZERTAINLY/Sortie/internal/screen"
)

// Actuator performs clicks, key presses and drags. An error means the action
// did not happen; callers treat it like a missed target.
type Actuator interface {
	Click(ctx context.Context, at screen.Point) error
	PressKey(ctx context.Context, key string) error
	Drag(ctx context.Context, from, to screen.Point, d time.Duration) error
}
