package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/CZERTAINLY/Sortie/internal/log"
	"github.com/CZERTAINLY/Sortie/internal/model"
)

var (
	userConfigPath string // /default/config/path/sortie on given OS
	configPath     string // actual config file used (if loaded)
	config         *model.Config
	logCloser      io.Closer

	flagConfigFilePath string // value of --config flag
)

func init() {
	d, err := os.UserConfigDir()
	if err != nil {
		panic(err)
	}
	userConfigPath = filepath.Join(d, "sortie")
}

func main() {
	// root flags
	rootCmd.PersistentFlags().StringVar(&flagConfigFilePath, "config", "", "Config file to load - default is sortie.yaml in current directory or in "+userConfigPath)
	rootCmd.PersistentFlags().Bool("verbose", false, "verbose logging")
	runCmd.Flags().Bool("simulate", false, "run against a scripted in-memory game instead of the helper commands")
	runCmd.Flags().String("state", "", "sqlite database keeping cooldowns across runs, overrides service.state")

	// SORTIE_VERBOSE, SORTIE_SIMULATE, SORTIE_STATE and SORTIE_LOG override
	// the config file, flags override the environment
	viper.SetEnvPrefix("sortie")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	for _, f := range []struct {
		key  string
		flag *cobra.Command
	}{
		{"verbose", rootCmd},
		{"simulate", runCmd},
		{"state", runCmd},
	} {
		flags := f.flag.Flags()
		if f.flag == rootCmd {
			flags = rootCmd.PersistentFlags()
		}
		if err := viper.BindPFlag(f.key, flags.Lookup(f.key)); err != nil {
			panic(err)
		}
	}

	// never print messages
	rootCmd.SilenceErrors = true

	// parse or create a config, setup logging
	rootCmd.PersistentPreRunE = initSortie
	rootCmd.PersistentPostRun = func(*cobra.Command, []string) {
		if logCloser != nil {
			_ = logCloser.Close()
		}
	}

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(modulesCmd)
	rootCmd.AddCommand(templatesCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("sortie failed", "err", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "sortie",
	Short:        "Tool running game automation modules in sequence",
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version provide version of a sortie",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("sortie: version info not available")
			return
		}

		if configPath != "" {
			fmt.Printf("config: %s\n", configPath)
		}
		fmt.Printf("sortie: %s\n", info.Main.Version)
		fmt.Printf("go:     %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit: %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("date:   %s\n", s.Value)
			case "vcs.modified":
				fmt.Printf("dirty:  %s\n", s.Value)
			}
		}
		fmt.Println()
	},
}

func initSortie(cmd *cobra.Command, _ []string) error {
	if envConfig, ok := os.LookupEnv("SORTIECONFIG"); ok {
		configPath = envConfig
	} else if flagConfigFilePath != "" {
		configPath = flagConfigFilePath
	} else {
		for _, d := range []string{userConfigPath, "."} {
			path := filepath.Join(d, "sortie.yaml")
			if exists(path) {
				configPath = path
				break
			}
		}
	}

	// store default configuration
	if configPath == "" {
		def := model.DefaultConfig(context.Background())
		config = &def
		configPath = filepath.Join(userConfigPath, "sortie.yaml")
		if err := storeConfig(configPath, config); err != nil {
			return err
		}
	} else {
		f, err := os.Open(configPath)
		if err != nil {
			return fmt.Errorf("opening config file: %w", err)
		}
		defer func() {
			_ = f.Close()
		}()
		config, err = model.LoadConfig(f)
		if err != nil {
			for _, d := range model.CueErrDetails(err) {
				slog.Error(d.Message, d.Attr("detail"))
			}
			return fmt.Errorf("parsing config: %w", err)
		}
	}

	// flags and environment have a precedence over config file
	if viper.GetBool("verbose") {
		config.Service.Verbose = true
	}
	if viper.IsSet("log") {
		config.Service.Log = viper.GetString("log")
	}
	if state := viper.GetString("state"); state != "" {
		config.Service.State = state
	}

	// initialize logging
	w, closer, err := logWriter(config.Service.Log)
	if err != nil {
		return err
	}
	logCloser = closer
	slog.SetDefault(log.New(config.Service.Verbose, w))

	slog.Debug("sortie run", "configPath", configPath)
	slog.Debug("sortie run", "config", config)
	return nil
}

func storeConfig(path string, cfg *model.Config) error {
	err := os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		return fmt.Errorf("creating directory %s: %w", filepath.Dir(path), err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating file %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()
	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("storing configuration: %w", err)
	}
	return enc.Close()
}

// logWriter opens the configured log target. The closer is nil for the
// standard streams.
func logWriter(target string) (io.Writer, io.Closer, error) {
	switch target {
	case "", model.LogStderr:
		return os.Stderr, nil, nil
	case model.LogStdout:
		return os.Stdout, nil, nil
	case model.LogDiscard:
		return io.Discard, nil, nil
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, f, nil
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
