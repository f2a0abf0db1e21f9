package model_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/CZERTAINLY/Sortie/internal/model"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoadConfig(t *testing.T) {
	t.Parallel()
	yml := `
version: 0
service:
  mode: timer
  log: stderr
  schedule:
    cron: "*/30 * * * *"
  state: /var/lib/sortie/state.db
  stop_timeout: 5s
  poll_interval: 200ms
templates:
  dir: ./assets
  threshold: 0.85
backend:
  locate:
    path: /usr/local/bin/sortie-locate
    timeout: 10s
  input:
    path: /usr/local/bin/sortie-input
    args: [--display, ":0"]
sequence: [arena, tag_arena]
modules:
  - name: arena
    kind: arena
    cooldown: 15m
    battle_cap: 10
  - name: tag_arena
    kind: tag_arena
    cooldown: 1d
`
	cfg, err := model.LoadConfig(strings.NewReader(yml))
	require.NoError(t, err)
	require.NotNil(t, cfg)
	require.Equal(t, model.ServiceModeTimer, cfg.Service.Mode)
	require.Equal(t, model.LogStderr, cfg.Service.Log)
	require.NotNil(t, cfg.Service.Schedule)
	require.Equal(t, "*/30 * * * *", cfg.Service.Schedule.Cron)
	require.Equal(t, "200ms", cfg.Service.PollInterval)

	// defaults from the schema
	require.Equal(t, "Raid: Shadow Legends", cfg.Window.Title)
	require.Equal(t, 1280, cfg.Window.Width)
	require.Equal(t, 720, cfg.Window.Height)
	require.Equal(t, []string{"CloseAd.png"}, cfg.Templates.Overlay)

	require.Equal(t, "./assets", cfg.Templates.Dir)
	require.InDelta(t, 0.85, cfg.Templates.Threshold, 1e-9)
	require.NotNil(t, cfg.Backend.Locate)
	require.Equal(t, "10s", cfg.Backend.Locate.Timeout)
	require.Equal(t, []string{"--display", ":0"}, cfg.Backend.Input.Args)
	require.Nil(t, cfg.Backend.Window)

	require.Equal(t, []string{"arena", "tag_arena"}, cfg.Sequence)
	m, ok := cfg.Module("tag_arena")
	require.True(t, ok)
	require.Equal(t, model.Module{Name: "tag_arena", Kind: model.KindTagArena, Cooldown: "1d"}, m)
	_, ok = cfg.Module("campaign")
	require.False(t, ok)
}

func TestLoadConfig_Fail(t *testing.T) {
	t.Parallel()

	type then struct {
		path    string
		code    string
		message string
	}
	var testCases = []struct {
		scenario string
		given    string
		then     then
	}{
		{
			scenario: "schedule with both cron and duration",
			given: `
service:
  mode: timer
  schedule:
    cron: "@hourly"
    duration: 1h
`,
			then: then{
				path:    "service.schedule",
				code:    model.CodeInvalidSchedule,
				message: "service.schedule needs exactly one of cron or duration",
			},
		},
		{
			scenario: "unknown service mode",
			given: `
service:
  mode: daemon
`,
			then: then{
				path:    "service.mode",
				code:    model.CodeInvalidEnum,
				message: "service.mode has invalid value: possible values (manual,timer)",
			},
		},
		{
			scenario: "unknown module kind",
			given: `
modules:
  - name: dungeon
    kind: dungeon
`,
			then: then{
				path:    "modules.0.kind",
				code:    model.CodeInvalidEnum,
				message: "modules.0.kind has invalid value: possible values (arena,tag_arena,campaign)",
			},
		},
		{
			scenario: "bad duration",
			given: `
modules:
  - name: arena
    kind: arena
    cooldown: fifteen minutes
`,
			then: then{
				path:    "modules.0.cooldown",
				code:    model.CodeInvalidDuration,
				message: "modules.0.cooldown is not a duration like 1d2h3m4s or 200ms",
			},
		},
		{
			scenario: "unknown field",
			given: `
service:
  mode: manual
  upload: true
`,
			then: then{
				path:    "service.upload",
				code:    model.CodeUnknownField,
				message: "service.upload is not allowed",
			},
		},
	}

	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			t.Parallel()
			_, err := model.LoadConfig(strings.NewReader(tt.given))
			require.Error(t, err)
			details := model.CueErrDetails(err)
			require.NotEmpty(t, details)
			var got []model.ConfigErrorDetail
			for _, d := range details {
				if d.Path == tt.then.path {
					got = append(got, d)
				}
			}
			require.Len(t, got, 1, "details: %+v", details)
			require.Equal(t, tt.then.code, got[0].Code)
			require.Equal(t, tt.then.message, got[0].Message)
			require.NotEmpty(t, got[0].Raw)
		})
	}
}

func TestLoadConfig_Enums(t *testing.T) {
	t.Parallel()
	for _, mode := range []string{model.ServiceModeManual, model.ServiceModeTimer} {
		_, err := model.LoadConfig(strings.NewReader("service:\n  mode: " + mode + "\n"))
		require.NoError(t, err, mode)
	}
	for _, kind := range []string{model.KindArena, model.KindTagArena, model.KindCampaign} {
		_, err := model.LoadConfig(strings.NewReader("modules:\n  - name: m\n    kind: " + kind + "\n"))
		require.NoError(t, err, kind)
	}
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := model.DefaultConfig(t.Context())

	var buf bytes.Buffer
	require.NoError(t, yaml.NewEncoder(&buf).Encode(cfg))
	require.Contains(t, buf.String(), "battle_cap: 10")
	require.NotContains(t, buf.String(), "backend")

	loaded, err := model.LoadConfig(&buf)
	require.NoError(t, err)
	require.Equal(t, cfg, *loaded)
}
