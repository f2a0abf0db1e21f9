package model

import (
	"context"
	"log/slog"
)

// DefaultConfig is stored when no configuration file exists. It runs the
// two arena modules once, each with the cooldown of its game mode.
func DefaultConfig(ctx context.Context) Config {
	cfg := Config{
		Version: 0,
		Service: Service{
			Mode:         ServiceModeManual,
			Log:          LogStderr,
			StopTimeout:  "5s",
			PollInterval: "200ms",
		},
		Window: Window{
			Title:  "Raid: Shadow Legends",
			Width:  1280,
			Height: 720,
		},
		Templates: Templates{
			Dir:       "templates",
			Threshold: 0.8,
			Overlay:   []string{"CloseAd.png"},
		},
		Sequence: []string{"arena", "tag_arena"},
		Modules: []Module{
			{Name: "arena", Kind: KindArena, Cooldown: "15m", BattleCap: 10},
			{Name: "tag_arena", Kind: KindTagArena, Cooldown: "1d", BattleCap: 10},
			{Name: "campaign", Kind: KindCampaign},
		},
	}
	slog.DebugContext(ctx, "using default configuration")
	return cfg
}
