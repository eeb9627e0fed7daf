package commands

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/svcmodel/svcmodel-go/pkg/diagnostics"
	"github.com/svcmodel/svcmodel-go/pkg/log"
)

func newLogCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Inspect protocol log files",
	}
	cmd.AddCommand(newLogViewCommand(), newLogExportCommand())
	return cmd
}

// viewFlags are the filter flags shared by log view and log export.
type viewFlags struct {
	layer     string
	direction string
	category  string
	role      string
	channel   string
	action    string
}

func (v *viewFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&v.layer, "layer", "", "Filter by layer (transport, encoder, security, channel)")
	f.StringVar(&v.direction, "direction", "", "Filter by direction (in, out)")
	f.StringVar(&v.category, "category", "", "Filter by category (message, control, state, error)")
	f.StringVar(&v.role, "role", "", "Filter by capturing side (client, service)")
	f.StringVar(&v.channel, "channel", "", "Filter by channel id")
	f.StringVar(&v.action, "action", "", "Filter messages by action")
}

func (v *viewFlags) filter() (log.Filter, error) {
	f := log.Filter{ChannelID: v.channel, Action: v.action}
	if v.layer != "" {
		l, err := ParseLayer(v.layer)
		if err != nil {
			return f, err
		}
		f.Layer = &l
	}
	if v.direction != "" {
		d, err := ParseDirection(v.direction)
		if err != nil {
			return f, err
		}
		f.Direction = &d
	}
	if v.category != "" {
		c, err := ParseCategory(v.category)
		if err != nil {
			return f, err
		}
		f.Category = &c
	}
	if v.role != "" {
		r, err := ParseRole(v.role)
		if err != nil {
			return f, err
		}
		f.Role = &r
	}
	return f, nil
}

func newLogViewCommand() *cobra.Command {
	var flags viewFlags
	cmd := &cobra.Command{
		Use:   "view <file.svclog>",
		Short: "View a protocol log in human-readable form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := flags.filter()
			if err != nil {
				return err
			}
			return RunView(args[0], filter, cmd.OutOrStdout())
		},
	}
	flags.register(cmd)
	return cmd
}

func newLogExportCommand() *cobra.Command {
	var flags viewFlags
	cmd := &cobra.Command{
		Use:   "export <file.svclog>",
		Short: "Export a protocol log as JSON lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := flags.filter()
			if err != nil {
				return err
			}
			return RunExport(args[0], filter, cmd.OutOrStdout())
		},
	}
	flags.register(cmd)
	return cmd
}

// RunView prints every event of path that matches filter.
func RunView(path string, filter log.Filter, w io.Writer) error {
	return eachEvent(path, filter, func(e log.Event) error {
		formatEvent(w, e)
		return nil
	})
}

// RunExport writes every event of path that matches filter as one JSON
// object per line.
func RunExport(path string, filter log.Filter, w io.Writer) error {
	enc := json.NewEncoder(w)
	return eachEvent(path, filter, func(e log.Event) error {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
		return nil
	})
}

func eachEvent(path string, filter log.Filter, fn func(log.Event) error) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := fn(event); err != nil {
			return err
		}
	}
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")

	var label string
	switch {
	case event.Frame != nil:
		label = "Frame"
	case event.Message != nil:
		label = event.Message.Type.String()
	case event.StateChange != nil:
		label = "State"
	case event.ControlMsg != nil:
		label = event.ControlMsg.Type.String()
	case event.Error != nil:
		label = "Error"
	default:
		label = "Unknown"
	}

	ids := "conn:" + shortID(event.ConnectionID)
	if event.ChannelID != "" {
		ids += " ch:" + shortID(event.ChannelID)
	}
	fmt.Fprintf(w, "%s [%s] %-7s %-3s %s %s\n", ts, ids, event.LocalRole, event.Direction, event.Layer, label)
	if event.Endpoint != "" {
		fmt.Fprintf(w, "  Endpoint: %s\n", event.Endpoint)
	}

	switch {
	case event.Frame != nil:
		fmt.Fprintf(w, "  Size: %d bytes\n", event.Frame.Size)
		if len(event.Frame.Data) > 0 {
			fmt.Fprintf(w, "  Data: %s", hex.EncodeToString(event.Frame.Data))
			if event.Frame.Truncated {
				fmt.Fprint(w, " (truncated)")
			}
			fmt.Fprintln(w)
		}
	case event.Message != nil:
		formatMessage(w, event.Message)
	case event.StateChange != nil:
		sc := event.StateChange
		fmt.Fprintf(w, "  Entity: %s\n", sc.Entity)
		if sc.OldState != "" {
			fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
		} else {
			fmt.Fprintf(w, "  -> %s\n", sc.NewState)
		}
		if sc.Reason != "" {
			fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
		}
	case event.ControlMsg != nil:
		if event.ControlMsg.Sequence != 0 {
			fmt.Fprintf(w, "  Sequence: %d\n", event.ControlMsg.Sequence)
		}
	case event.Error != nil:
		formatError(w, event.Error)
	}
	fmt.Fprintln(w)
}

func formatMessage(w io.Writer, m *log.MessageEvent) {
	if m.Action != "" {
		fmt.Fprintf(w, "  Action: %s\n", m.Action)
	}
	if m.MessageID != "" {
		fmt.Fprintf(w, "  MessageID: %s\n", m.MessageID)
	}
	if m.RelatesTo != "" {
		fmt.Fprintf(w, "  RelatesTo: %s\n", m.RelatesTo)
	}
	if m.ContentType != "" {
		fmt.Fprintf(w, "  ContentType: %s (%d bytes)\n", m.ContentType, m.Size)
	}
	if m.FaultCode != "" {
		fmt.Fprintf(w, "  Fault: %s\n", m.FaultCode)
	}
	if m.Elapsed != nil {
		fmt.Fprintf(w, "  Elapsed: %s\n", formatDuration(*m.Elapsed))
	}
}

func formatError(w io.Writer, e *log.ErrorEventData) {
	fmt.Fprintf(w, "  Message: %s\n", e.Message)
	if e.Kind != "" {
		fmt.Fprintf(w, "  Kind: %s\n", e.Kind)
	}
	if e.EventID != 0 {
		fmt.Fprintf(w, "  Event: %s (0x%08x)\n", diagnostics.EventID(e.EventID), e.EventID)
	}
	if e.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", e.Context)
	}
}

func shortID(id string) string {
	if id == "" {
		return "-"
	}
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1000)
	}
	if d < time.Second {
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}

// ParseLayer parses a layer name (case-insensitive).
func ParseLayer(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "transport":
		return log.LayerTransport, nil
	case "encoder":
		return log.LayerEncoder, nil
	case "security":
		return log.LayerSecurity, nil
	case "channel":
		return log.LayerChannel, nil
	}
	return 0, fmt.Errorf("invalid layer: %s (must be transport, encoder, security or channel)", s)
}

// ParseDirection parses a direction name (case-insensitive).
func ParseDirection(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	}
	return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
}

// ParseCategory parses a category name (case-insensitive).
func ParseCategory(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "message":
		return log.CategoryMessage, nil
	case "control":
		return log.CategoryControl, nil
	case "state":
		return log.CategoryState, nil
	case "error":
		return log.CategoryError, nil
	}
	return 0, fmt.Errorf("invalid category: %s (must be message, control, state or error)", s)
}

// ParseRole parses a capturing side name (case-insensitive).
func ParseRole(s string) (log.Role, error) {
	switch strings.ToLower(s) {
	case "client":
		return log.RoleClient, nil
	case "service":
		return log.RoleService, nil
	}
	return 0, fmt.Errorf("invalid role: %s (must be client or service)", s)
}
