package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/shaunagostinho/vbusreader/internal/catalog"
	"github.com/shaunagostinho/vbusreader/internal/config"
	"github.com/shaunagostinho/vbusreader/internal/logging"
	"github.com/shaunagostinho/vbusreader/internal/reader"
	"github.com/shaunagostinho/vbusreader/internal/recorder"
	"github.com/shaunagostinho/vbusreader/internal/server"
	"github.com/shaunagostinho/vbusreader/internal/vbus"
	"github.com/shaunagostinho/vbusreader/web"
)

// Global flags
var (
	configPath string
	logLevel   string
	connection string
	listenAddr string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Path to config file (YAML or TOML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); logs go to stderr")
	rootCmd.PersistentFlags().StringVar(&connection, "connection", "", "Override connection type (lan, serial, stdin, demo)")

	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(serveCmd)
}

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Read one set of values and print it as JSON",
	Long: `Connect, collect one packet from each expected device and print the
decoded values as a JSON object keyed by device name.

If the repetitive packet guard ends the read early, whatever was decoded
so far is printed.`,
	Example: `  # Read through the LAN adapter from config.yaml
  vbusreader read

  # Decode a captured stream
  vbusreader read --connection stdin < capture.bin`,
	RunE: runRead,
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Count the distinct packets on the bus",
	Long: `Watch the bus until the set of packets per batch stops changing and
report how many distinct packet sets were seen. Use the result as
expected_packets in the config.`,
	RunE: runProbe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Poll periodically and serve readings over HTTP and WebSocket",
	Long: `Read the bus every poll interval, publish each reading to WebSocket
clients at /ws and at /api/latest, and serve the live view at /.
Readings are appended to CSV files when the recorder is enabled.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "Override listen address (e.g. :8080)")
}

// setup loads config, logging and the device catalog shared by every command.
func setup() (*config.Config, *vbus.Catalog, error) {
	if err := logging.Initialize(logLevel); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if logLevel == "" && cfg.Log.Level != "" {
		if err := logging.Initialize(cfg.Log.Level); err != nil {
			return nil, nil, err
		}
	}
	if connection != "" {
		cfg.Connection = connection
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	c, err := catalog.Load(cfg.Spec.Dir, cfg.Spec.Files)
	if err != nil {
		return nil, nil, err
	}
	logging.L().Debug("catalog loaded",
		zap.Int("devices", len(c.Devices())),
		zap.Int("packets", len(c.Packets())))
	return cfg, c, nil
}

func newReader(cfg *config.Config, c *vbus.Catalog) *reader.Reader {
	return reader.New(reader.Settings{
		Transport:         cfg.Transport(),
		ExpectedPackets:   cfg.ExpectedPackets,
		RepetitivePackets: cfg.RepetitivePackets,
		UseUnits:          cfg.UseUnits,
		Debug:             cfg.Debug,
	}, c, logging.Named("reader"))
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logging.L().Info("shutting down", zap.Stringer("signal", sig))
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func runRead(cmd *cobra.Command, args []string) error {
	cfg, c, err := setup()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	reading, err := newReader(cfg, c).Read(ctx)
	if err != nil && len(reading.Result) == 0 {
		return err
	}
	if err != nil {
		logging.L().Warn("read ended early", zap.Error(err))
	}

	out := cmd.OutOrStdout()
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		enc.SetIndent("", "  ")
	}
	if reading.Result == nil {
		reading.Result = vbus.Result{}
	}
	return enc.Encode(reading.Result)
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, c, err := setup()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	out := cmd.OutOrStdout()
	report, err := newReader(cfg, c).Probe(ctx, func(step vbus.ProbeStep) {
		fmt.Fprintf(out, "packets=%d tries=%d %s\n", step.Packets, step.Tries, step.Signature)
	})
	if err != nil {
		return fmt.Errorf("probe failed: %w", err)
	}
	fmt.Fprintf(out, "\nFound %d distinct packet set(s) in %d batches.\n", report.Packets, len(report.Steps))
	fmt.Fprintf(out, "Set expected_packets: %d in %s\n", report.Packets, cfg.Path())
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, c, err := setup()
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Server.ListenAddr = listenAddr
	}
	ctx, cancel := signalContext()
	defer cancel()

	rec := recorder.New(recorder.Config{
		Enabled: cfg.Recorder.Enabled,
		Path:    cfg.Recorder.Path,
	}, logging.Named("recorder"))

	srv := server.New(server.Options{
		ListenAddr:   cfg.Server.ListenAddr,
		PollInterval: cfg.PollInterval(),
	}, newReader(cfg, c), rec, web.FS, logging.Named("server"))
	return srv.Run(ctx)
}
