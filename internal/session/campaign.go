package session

import (
	"context"
	"time"

	"github.com/CZERTAINLY/Sortie/internal/log"
)

// Campaign is a placeholder routine which only reports that it is alive.
type Campaign struct {
	Interval time.Duration
}

func (c Campaign) Name() string {
	return "campaign"
}

func (c Campaign) Run(ctx context.Context) error {
	return c.RunLogged(ctx, nil)
}

func (c Campaign) RunLogged(ctx context.Context, sink log.Sink) error {
	interval := c.Interval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	sink = sink.Prefixed("campaign")
	for ctx.Err() == nil {
		sink.Print("tick")
		sleep(ctx, interval)
	}
	return nil
}
