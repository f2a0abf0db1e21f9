package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/CZERTAINLY/Sortie/internal/backend"
	"github.com/CZERTAINLY/Sortie/internal/input"
	"github.com/CZERTAINLY/Sortie/internal/log"
	"github.com/CZERTAINLY/Sortie/internal/model"
	"github.com/CZERTAINLY/Sortie/internal/screen"
	"github.com/CZERTAINLY/Sortie/internal/service"
	"github.com/CZERTAINLY/Sortie/internal/session"
	"github.com/CZERTAINLY/Sortie/internal/sim"
	"github.com/CZERTAINLY/Sortie/internal/store"
	"github.com/CZERTAINLY/Sortie/internal/window"
)

const (
	simOpponents = 12
	simSpeedup   = 0.01
)

type wireOptions struct {
	simulate bool
	// sink receives module and sequence progress lines
	sink log.Sink
}

// wiring is everything the run command needs to start a service.
type wiring struct {
	sup      *service.Supervisor
	entries  []service.Entry
	preparer window.Preparer
	machines map[string]*session.Machine
	runs     *store.Completions
	close    func() error

	mx    sync.Mutex
	saved map[string]string // module -> id of the last saved run
}

// environment is one set of collaborators sessions act through.
type environment struct {
	locator  screen.Locator
	actuator input.Actuator
	manager  window.Manager
}

func wire(ctx context.Context, cfg *model.Config, opts wireOptions) (*wiring, error) {
	w := &wiring{
		machines: make(map[string]*session.Machine),
		close:    func() error { return nil },
		saved:    make(map[string]string),
	}

	supOpts, err := cooldowns(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Service.State != "" {
		db, err := store.InitDB(ctx, cfg.Service.State)
		if err != nil {
			return nil, fmt.Errorf("opening state %s: %w", cfg.Service.State, err)
		}
		w.close = db.Close
		w.runs = store.NewCompletions(db)
		supOpts = append(supOpts, service.WithCompletions(w.runs))
	}
	w.sup = service.NewSupervisor(supOpts...)
	if err := w.sup.Restore(ctx); err != nil {
		_ = w.close()
		return nil, err
	}

	var catalog screen.Catalog = screen.NameCatalog{}
	var shared environment
	timings := session.DefaultTimings()
	placementDelay := window.DefaultPlacementDelay
	if opts.simulate {
		timings = timings.Scaled(simSpeedup)
		placementDelay = time.Duration(float64(placementDelay) * simSpeedup)
		env := sim.New()
		shared = environment{locator: env, actuator: env, manager: env}
	} else {
		catalog, err = screen.NewDirCatalog(ctx, cfg.Templates.Dir)
		if err != nil {
			_ = w.close()
			return nil, err
		}
		shared, err = execEnvironment(cfg)
		if err != nil {
			_ = w.close()
			return nil, err
		}
	}
	if cfg.Templates.Threshold > 0 {
		timings.Threshold = cfg.Templates.Threshold
	}
	overlay := overlayTemplates(ctx, catalog, cfg.Templates.Overlay)

	w.preparer = window.Preparer{
		Manager:   shared.manager,
		Dismisser: closer(shared, overlay, timings),
		Reference: reference(cfg.Window),
		Attempts:  window.DefaultPlacementAttempts,
		Delay:     placementDelay,
	}

	var errs []error
	for _, name := range cfg.Sequence {
		m, ok := cfg.Module(name)
		if !ok {
			errs = append(errs, fmt.Errorf("sequence names unknown module %q", name))
			continue
		}
		entry := service.Entry{Name: m.Name, Sink: opts.sink}
		switch m.Kind {
		case model.KindArena, model.KindTagArena:
			profile := session.Profiles()[m.Kind]
			profile.Name = m.Name
			tpl, err := profile.Resolve(catalog)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			env := shared
			if opts.simulate {
				arena := sim.NewArena(profile, simOpponents)
				env = environment{locator: arena, actuator: arena, manager: arena}
			}
			machine := session.New(profile, tpl, session.Deps{
				Locator:  env.locator,
				Actuator: env.actuator,
				Overlay:  closer(env, overlay, timings),
			}, session.WithTimings(timings), session.WithBattleCap(m.BattleCap))
			w.machines[m.Name] = machine
			entry.Routine = machine
		case model.KindCampaign:
			entry.Routine = session.Campaign{}
		default:
			errs = append(errs, fmt.Errorf("module %s: unsupported kind %q", m.Name, m.Kind))
			continue
		}
		w.entries = append(w.entries, entry)
	}
	if err := errors.Join(errs...); err != nil {
		_ = w.close()
		return nil, err
	}
	return w, nil
}

// observer records finished sessions and forwards sequence progress to the
// sink. A record is written even when ctx is already cancelled.
func (w *wiring) observer(ctx context.Context, sink log.Sink) service.Observer {
	return service.Observer{
		ModuleSkipped: func(name string, remaining time.Duration) {
			slog.InfoContext(ctx, "module skipped", "module", name, "remaining", remaining.String())
		},
		ModuleEnded: func(name string) {
			w.saveRun(context.WithoutCancel(ctx), name)
		},
		Log: sink,
	}
}

// saveRun stores the last session of a module once and reports whether a
// record was written. A machine abandoned by a stop timeout may still report
// an older run, which is skipped.
func (w *wiring) saveRun(ctx context.Context, name string) bool {
	m, ok := w.machines[name]
	if !ok || w.runs == nil {
		return false
	}
	r := m.LastRun()
	w.mx.Lock()
	defer w.mx.Unlock()
	if r.ID == "" || w.saved[name] == r.ID {
		slog.DebugContext(ctx, "no new session record", "module", name, "id", r.ID)
		return false
	}
	err := w.runs.SaveRun(ctx, store.Run{
		ID:        r.ID,
		Module:    name,
		Battles:   r.Battles,
		Exhausted: r.Exhausted,
		Reason:    r.Reason,
		Started:   r.Started,
		Stopped:   r.Stopped,
	})
	if err != nil {
		slog.ErrorContext(ctx, "saving session record failed", "module", name, "error", err)
		return false
	}
	w.saved[name] = r.ID
	return true
}

func cooldowns(cfg *model.Config) ([]service.Option, error) {
	var opts []service.Option
	for _, m := range cfg.Modules {
		if m.Cooldown == "" {
			continue
		}
		d, err := model.ParseCueDuration(m.Cooldown)
		if err != nil {
			return nil, fmt.Errorf("module %s: parsing cooldown: %w", m.Name, err)
		}
		opts = append(opts, service.WithCooldown(m.Name, d))
	}
	return opts, nil
}

func execEnvironment(cfg *model.Config) (environment, error) {
	runner := backend.NewRunner(backend.LogStderr)
	locate, err := backend.CommandFromConfig(cfg.Backend.Locate)
	if err != nil {
		return environment{}, fmt.Errorf("backend.locate: %w", err)
	}
	in, err := backend.CommandFromConfig(cfg.Backend.Input)
	if err != nil {
		return environment{}, fmt.Errorf("backend.input: %w", err)
	}
	env := environment{
		locator:  backend.NewLocator(runner, locate),
		actuator: backend.NewActuator(runner, in),
		manager:  window.Unsupported{},
	}
	if cfg.Backend.Window != nil {
		place, err := backend.CommandFromConfig(cfg.Backend.Window)
		if err != nil {
			return environment{}, fmt.Errorf("backend.window: %w", err)
		}
		env.manager = backend.NewWindowManager(runner, place, cfg.Window)
	}
	return env, nil
}

func overlayTemplates(ctx context.Context, catalog screen.Catalog, names []string) []screen.Template {
	var ret []screen.Template
	for _, name := range names {
		tpl, err := catalog.Resolve(name)
		if err != nil {
			slog.WarnContext(ctx, "overlay template ignored", "error", err)
			continue
		}
		ret = append(ret, tpl)
	}
	return ret
}

func closer(env environment, overlay []screen.Template, timings session.Timings) *window.Closer {
	c := window.NewCloser(env.locator, env.actuator, overlay...)
	c.Threshold = timings.Threshold
	c.Pause = timings.OverlayWait / 2
	return c
}

func reference(w model.Window) *screen.Template {
	if w.Template == "" {
		return nil
	}
	return &screen.Template{Name: filepath.Base(w.Template), Path: w.Template}
}
