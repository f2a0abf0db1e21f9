package model

import (
	"io"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"

	_ "embed"
)

const (
	ServiceModeManual = "manual"
	ServiceModeTimer  = "timer"

	LogStderr  = "stderr"
	LogStdout  = "stdout"
	LogDiscard = "discard"

	KindArena    = "arena"
	KindTagArena = "tag_arena"
	KindCampaign = "campaign"
)

//go:embed config.cue
var cueSource []byte

var (
	cueCtx *cue.Context
	schema cue.Value
)

func init() {
	if len(cueSource) == 0 {
		panic("variable cueSource is empty")
	}
	cueCtx = cuecontext.New()
	compiled := cueCtx.CompileBytes(cueSource, cue.Filename("config.cue"))
	if compiled.Err() != nil {
		panic(compiled.Err())
	}

	if err := compiled.Validate(); err != nil {
		panic(err)
	}

	schema = compiled.LookupPath(cue.ParsePath("#Config"))
	if schema.Err() != nil {
		panic(schema.Err())
	}
	if err := schema.Validate(); err != nil {
		panic(err)
	}
}

type Config struct {
	Version   int       `json:"version" yaml:"version"` // fixed 0 for now
	Service   Service   `json:"service" yaml:"service"`
	Window    Window    `json:"window" yaml:"window"`
	Templates Templates `json:"templates" yaml:"templates"`
	Backend   Backend   `json:"backend" yaml:"backend,omitempty"`
	Sequence  []string  `json:"sequence" yaml:"sequence"`
	Modules   []Module  `json:"modules" yaml:"modules"`
}

type Service struct {
	Mode     string         `json:"mode" yaml:"mode"` // "manual" | "timer"
	Verbose  bool           `json:"verbose,omitempty" yaml:"verbose,omitempty"`
	Log      string         `json:"log,omitempty" yaml:"log,omitempty"` // "stderr"|"stdout"|"discard"|path
	Schedule *TimerSchedule `json:"schedule,omitempty" yaml:"schedule,omitempty"`
	// State is the sqlite database keeping completion times across runs.
	State        string `json:"state,omitempty" yaml:"state,omitempty"`
	StopTimeout  string `json:"stop_timeout,omitempty" yaml:"stop_timeout,omitempty"`
	PollInterval string `json:"poll_interval,omitempty" yaml:"poll_interval,omitempty"`
}

// TimerSchedule is either a cron expression or a duration.
type TimerSchedule struct {
	Cron     string `json:"cron,omitempty" yaml:"cron,omitempty"`
	Duration string `json:"duration,omitempty" yaml:"duration,omitempty"`
}

type Window struct {
	Title    string `json:"title" yaml:"title"`
	Template string `json:"template,omitempty" yaml:"template,omitempty"`
	Width    int    `json:"width" yaml:"width"`
	Height   int    `json:"height" yaml:"height"`
}

type Templates struct {
	Dir       string   `json:"dir" yaml:"dir"`
	Threshold float64  `json:"threshold" yaml:"threshold"`
	Overlay   []string `json:"overlay" yaml:"overlay"`
}

// Backend lists the helper commands driving the real environment. A nil
// command means the capability is not available.
type Backend struct {
	Locate *Command `json:"locate,omitempty" yaml:"locate,omitempty"`
	Input  *Command `json:"input,omitempty" yaml:"input,omitempty"`
	Window *Command `json:"window,omitempty" yaml:"window,omitempty"`
}

type Command struct {
	Path    string            `json:"path" yaml:"path"`
	Args    []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	Timeout string            `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

type Module struct {
	Name      string `json:"name" yaml:"name"`
	Kind      string `json:"kind" yaml:"kind"` // "arena" | "tag_arena" | "campaign"
	Cooldown  string `json:"cooldown,omitempty" yaml:"cooldown,omitempty"`
	BattleCap int    `json:"battle_cap,omitempty" yaml:"battle_cap,omitempty"`
}

// Module returns the module configuration of the given name.
func (c Config) Module(name string) (Module, bool) {
	for _, m := range c.Modules {
		if m.Name == name {
			return m, true
		}
	}
	return Module{}, false
}

// LoadConfig validates YAML from r against CUE schema and decodes to Config.
func LoadConfig(r io.Reader) (*Config, error) {
	yamlFile, err := yaml.Extract("config.yaml", r)
	if err != nil {
		return nil, err
	}
	yamlValue := cueCtx.BuildFile(yamlFile)

	unified := schema.Unify(yamlValue)
	if err := unified.Validate(
		cue.All(),          // all constraints
		cue.Concrete(true), // no incomplete values
	); err != nil {
		return nil, err
	}

	var out Config
	if err := unified.Decode(&out); err != nil {
		return nil, err
	}

	return &out, nil
}
