package commands

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/svcmodel/svcmodel-go/pkg/diagnostics"
)

func newEventsCommand() *cobra.Command {
	var (
		decode   string
		facility string
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List or decode diagnostic event ids",
		Example: `  svcctl events
  svcctl events --facility SecurityAudit
  svcctl events --decode 0xc0060008`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if decode != "" {
				return RunDecode(cmd.OutOrStdout(), decode)
			}
			return RunEvents(cmd.OutOrStdout(), facility)
		},
	}
	cmd.Flags().StringVar(&decode, "decode", "", "Decode one event id (decimal, 0x-hex or a registered name)")
	cmd.Flags().StringVar(&facility, "facility", "", "Only list events of this facility")
	return cmd
}

// RunDecode prints the parts of one event id.
func RunDecode(w io.Writer, s string) error {
	id, err := diagnostics.ParseEventID(s)
	if err != nil {
		e, ok := diagnostics.LookupName(s)
		if !ok {
			return err
		}
		id = e.ID
	}
	sev, fac, seq := diagnostics.Decode(id)
	fmt.Fprintf(w, "ID:       0x%08x (%d)\n", uint32(id), uint32(id))
	fmt.Fprintf(w, "Severity: %s\n", sev)
	fmt.Fprintf(w, "Facility: %s (0x%03x)\n", fac, uint16(fac))
	fmt.Fprintf(w, "Sequence: 0x%04x\n", seq)
	if e, ok := diagnostics.Lookup(id); ok {
		fmt.Fprintf(w, "Name:     %s\n", e.Name)
	} else {
		fmt.Fprintln(w, "Name:     (unregistered)")
	}
	return nil
}

// RunEvents prints the registered events, optionally of one facility.
func RunEvents(w io.Writer, facility string) error {
	entries := diagnostics.Entries()
	if facility != "" {
		f, err := parseFacility(facility)
		if err != nil {
			return err
		}
		entries = diagnostics.FacilityEntries(f)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSEVERITY\tFACILITY\tNAME")
	for _, e := range entries {
		fmt.Fprintf(tw, "0x%08x\t%s\t%s\t%s\n", uint32(e.ID), e.Severity(), e.Facility(), e.Name)
	}
	return tw.Flush()
}

func parseFacility(s string) (diagnostics.Facility, error) {
	for _, f := range []diagnostics.Facility{
		diagnostics.FacilityTracing,
		diagnostics.FacilityServiceModel,
		diagnostics.FacilityTransactionBridge,
		diagnostics.FacilitySMSvcHost,
		diagnostics.FacilityInfoCards,
		diagnostics.FacilitySecurityAudit,
	} {
		if strings.EqualFold(f.String(), s) {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown facility %q", s)
}
