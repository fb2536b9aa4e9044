// Package cmd contains the lwgeomfix commands.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/bsaid97/go-lwgeom-fixer/config"
	"github.com/bsaid97/go-lwgeom-fixer/lwgeom"
	"github.com/bsaid97/go-lwgeom-fixer/proclog"
	"github.com/bsaid97/go-lwgeom-fixer/provider"
)

// Version is set via -ldflags.
var Version = "dev"

// app carries what every subcommand needs once the flags are parsed.
type app struct {
	v       *viper.Viper
	cfgFile string

	cfg    *config.Config
	logger *zap.Logger

	// opts are passed to every provider, for tests.
	opts []provider.Option
}

// NewRootCommand builds the command tree.
func NewRootCommand(opts ...provider.Option) *cobra.Command {
	a := &app{v: config.New(), opts: opts}

	root := &cobra.Command{
		Use:   config.AppName,
		Short: "Repair polygons and build areas with liblwgeom",
		Long: `lwgeomfix runs liblwgeom's make-valid and build-area over every
feature of a layer, either from the command line or as an HTTP service.

Examples:
  lwgeomfix algorithms                          List the algorithms
  lwgeomfix run makevalid in.shp out.shp        Repair a shapefile
  lwgeomfix run buildarea lines.geojson out.geojson --select 3,4
  lwgeomfix serve                               Start the HTTP service
  lwgeomfix config show                         Show the effective configuration`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (YAML)")
	flags.String("backend", "", "native backend: lwgeom or geos")
	flags.String("lwgeom-path", "", "path to the liblwgeom shared library")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	_ = a.v.BindPFlag("backend", flags.Lookup("backend"))
	_ = a.v.BindPFlag("lwgeom.path", flags.Lookup("lwgeom-path"))
	_ = a.v.BindPFlag("log.level", flags.Lookup("log-level"))

	root.AddCommand(newServeCommand(a))
	root.AddCommand(newRunCommand(a))
	root.AddCommand(newAlgorithmsCommand(a))
	root.AddCommand(newConfigCommand(a))
	return root
}

// init loads the configuration and sets up logging.
func (a *app) init() error {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	logger, err := proclog.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	a.cfg, a.logger = cfg, logger
	lwgeom.SetLogger(logger.Named("lwgeom"))
	return nil
}

func (a *app) provider() *provider.Provider {
	opts := append([]provider.Option{provider.WithLogger(a.logger)}, a.opts...)
	return provider.New(a.cfg, opts...)
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	root := NewRootCommand()
	if err := root.ExecuteContext(context.Background()); err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)
}
