package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	gateway "github.com/goliatone/go-drive-gateway"
	gocommandadapter "github.com/goliatone/go-drive-gateway/adapters/gocommand"
	"github.com/goliatone/go-drive-gateway/core"
	prommetrics "github.com/goliatone/go-drive-gateway/metrics/prometheus"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var errCallFailed = errors.New("operation failed")

type rootFlags struct {
	envFile   string
	backend   string
	storePath string
	verbose   bool
}

type app struct {
	flags  rootFlags
	in     io.Reader
	out    io.Writer
	errOut io.Writer
	lookup func(string) (string, bool)

	config   core.Config
	logger   glog.Logger
	registry *prometheus.Registry
	metrics  *prommetrics.Recorder
	gateway  *gateway.Gateway
	wiring   *gocommandadapter.Wiring
}

func newApp(in io.Reader, out io.Writer, errOut io.Writer) *app {
	return &app{in: in, out: out, errOut: errOut, lookup: os.LookupEnv}
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "drivegw",
		Short:         "Google Drive dispatch gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			return a.loadConfig(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}

	cmd.PersistentFlags().StringVar(&a.flags.envFile, "env-file", ".env", "Dotenv file loaded before reading DRIVEGW_* variables")
	cmd.PersistentFlags().StringVar(&a.flags.backend, "store", "", "Credential store backend (file, keyring, sql)")
	cmd.PersistentFlags().StringVar(&a.flags.storePath, "store-path", "", "Credential file path for the file backend")
	cmd.PersistentFlags().BoolVarP(&a.flags.verbose, "verbose", "v", false, "Debug logging on stderr")

	cmd.AddCommand(newOpsCmd(a))
	cmd.AddCommand(newCallCmd(a))
	cmd.AddCommand(newServeCmd(a))
	cmd.AddCommand(newTokenCmd(a))
	return cmd
}

func (a *app) loadConfig(cmd *cobra.Command) error {
	if err := godotenv.Load(a.flags.envFile); err != nil {
		if !errors.Is(err, fs.ErrNotExist) || cmd.Flags().Changed("env-file") {
			return fmt.Errorf("load env file %s: %w", a.flags.envFile, err)
		}
	}
	runtime := core.Config{Store: core.StoreConfig{Backend: a.flags.backend, Path: a.flags.storePath}}
	cfg, err := core.LoadConfig(cmd.Context(), core.EnvRawConfigLoader{Lookup: a.lookup}, runtime)
	if err != nil {
		return err
	}
	a.config = cfg
	a.logger = newSlogLogger(a.errOut, a.flags.verbose)
	return nil
}

// open builds the gateway and subscribes the go-command handlers on first use.
func (a *app) open(ctx context.Context) error {
	if a.gateway != nil {
		return nil
	}
	a.registry = prometheus.NewRegistry()
	recorder := prommetrics.New(a.registry)
	a.metrics = recorder

	gw, err := gateway.New(ctx, a.config,
		gateway.WithLogger(a.logger),
		gateway.WithMetrics(recorder),
	)
	if err != nil {
		return err
	}
	adapter := gocommandadapter.NewRegistryAdapter(nil)
	wiring, err := gocommandadapter.RegisterGateway(adapter, gocommandadapter.Services{
		Invoker:     gw,
		Catalog:     gw,
		Credentials: gw,
	})
	if err != nil {
		_ = gw.Close()
		return err
	}
	if err := adapter.Initialize(); err != nil {
		wiring.Close()
		_ = gw.Close()
		return err
	}
	a.gateway = gw
	a.wiring = wiring
	return nil
}

func (a *app) close() error {
	a.wiring.Close()
	a.wiring = nil
	if a.gateway == nil {
		return nil
	}
	err := a.gateway.Close()
	a.gateway = nil
	return err
}

func (a *app) writeJSON(value any) error {
	encoder := json.NewEncoder(a.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
