package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/CZERTAINLY/Sortie/internal/log"
	"github.com/CZERTAINLY/Sortie/internal/screen"
	"github.com/CZERTAINLY/Sortie/internal/service"
	"github.com/CZERTAINLY/Sortie/internal/session"
	"github.com/CZERTAINLY/Sortie/internal/store"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run command reads the configuration and executes the module sequence",
	RunE:  doRun,
}

var modulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "list configured modules and their cooldowns",
	RunE:  doModules,
}

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "check that every template the modules need exists",
	RunE:  doTemplates,
}

func doRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	simulate := viper.GetBool("simulate")
	ctx = log.ContextAttrs(ctx, slog.Group("sortie",
		slog.String("cmd", "run"),
		slog.Int("pid", os.Getpid()),
		slog.Bool("simulate", simulate),
	))

	sink := console(cmd.OutOrStdout())
	w, err := wire(ctx, config, wireOptions{simulate: simulate, sink: sink})
	if err != nil {
		return err
	}
	defer func() {
		if err := w.close(); err != nil {
			slog.WarnContext(ctx, "closing state failed", "error", err)
		}
	}()

	svc, err := service.NewService(ctx, config.Service, w.sup, w.entries,
		service.WithObserver(w.observer(ctx, sink)),
		service.WithPreparer(w.preparer),
	)
	if err != nil {
		return err
	}
	err = svc.Do(ctx)
	slog.InfoContext(ctx, "sortie finished", "cycles", svc.Cycles())
	return err
}

func doModules(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	opts, err := cooldowns(config)
	if err != nil {
		return err
	}
	var runs *store.Completions
	if config.Service.State != "" {
		db, err := store.InitDB(ctx, config.Service.State)
		if err != nil {
			return err
		}
		defer func() {
			_ = db.Close()
		}()
		runs = store.NewCompletions(db)
		opts = append(opts, service.WithCompletions(runs))
	}
	sup := service.NewSupervisor(opts...)
	if err := sup.Restore(ctx); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tIN SEQUENCE\tCOOLDOWN\tREMAINING\tLAST COMPLETED\tLAST RUN")
	for _, m := range config.Modules {
		st := sup.Status(m.Name)
		last := "-"
		if !st.LastCompleted.IsZero() {
			last = st.LastCompleted.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\t%s\t%s\n",
			m.Name,
			m.Kind,
			slices.Contains(config.Sequence, m.Name),
			orDash(m.Cooldown),
			st.Remaining.Truncate(time.Second),
			last,
			lastRun(cmd, runs, m.Name),
		)
	}
	return tw.Flush()
}

func lastRun(cmd *cobra.Command, runs *store.Completions, module string) string {
	if runs == nil {
		return "-"
	}
	r, err := runs.LastRun(cmd.Context(), module)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return "-"
	case err != nil:
		slog.WarnContext(cmd.Context(), "reading last run failed", "module", module, "error", err)
		return "?"
	}
	return fmt.Sprintf("%d battles (%s)", r.Battles, r.Reason)
}

func doTemplates(cmd *cobra.Command, args []string) error {
	catalog, err := screen.NewDirCatalog(cmd.Context(), config.Templates.Dir)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	var errs []error
	for _, m := range config.Modules {
		profile, ok := session.Profiles()[m.Kind]
		if !ok {
			continue
		}
		profile.Name = m.Name
		if _, err := profile.Resolve(catalog); err != nil {
			fmt.Fprintf(out, "%s: %v\n", m.Name, err)
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(out, "%s: ok\n", m.Name)
	}
	for _, name := range config.Templates.Overlay {
		if _, err := catalog.Resolve(name); err != nil {
			fmt.Fprintf(out, "overlay: %v\n", err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d module(s) miss templates", len(errs))
	}
	return nil
}

// console prints progress lines to w.
func console(w io.Writer) log.Sink {
	return func(msg string) {
		_, _ = fmt.Fprintln(w, msg)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
