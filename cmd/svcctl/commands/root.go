// Package commands implements the svcctl CLI commands.
package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/svcmodel/svcmodel-go/pkg/diagnostics"
	"github.com/svcmodel/svcmodel-go/pkg/log"
	"github.com/svcmodel/svcmodel-go/pkg/version"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	verbose     bool
	protocolLog string
}

// NewRootCommand builds the svcctl command tree.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "svcctl",
		Short:         "Exercise bindings, channels and the echo service host",
		Version:       version.Library,
		SilenceUsage:  true,
	}
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&opts.protocolLog, "protocol-log", "", "Write a protocol capture (.svclog) to this file")

	root.AddCommand(
		newRequestCommand(opts),
		newServeCommand(opts),
		newShellCommand(opts),
		newEventsCommand(),
		newLogCommand(),
	)
	return root
}

// logger returns the operational logger for w.
func (o *globalOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// observability bundles the loggers a command wires into the stack.
type observability struct {
	logger   *slog.Logger
	protocol log.Logger
	diag     diagnostics.Sink
	closer   func() error
}

// observe builds the loggers. The protocol log and the diagnostics sink
// share one capture file when --protocol-log is set.
func (o *globalOptions) observe(w io.Writer, role log.Role) (*observability, error) {
	obs := &observability{logger: o.logger(w), closer: func() error { return nil }}
	sinks := diagnostics.MultiSink{diagnostics.NewSlogSink(obs.logger)}

	if o.protocolLog != "" {
		fl, err := log.NewFileLogger(o.protocolLog)
		if err != nil {
			return nil, fmt.Errorf("failed to open protocol log: %w", err)
		}
		obs.protocol = fl
		obs.closer = func() error {
			if n := fl.Dropped(); n > 0 {
				fmt.Fprintf(os.Stderr, "protocol log dropped %d events\n", n)
			}
			return fl.Close()
		}
		sinks = append(sinks, &diagnostics.ProtocolSink{Logger: fl, Layer: log.LayerChannel, Role: role})
	}
	if o.verbose {
		obs.protocol = log.NewMultiLogger(obs.protocol, log.NewSlogAdapter(obs.logger))
	}
	obs.diag = sinks
	return obs, nil
}
