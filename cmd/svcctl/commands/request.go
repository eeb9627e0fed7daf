package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/svcmodel/svcmodel-go/pkg/channel"
	"github.com/svcmodel/svcmodel-go/pkg/fault"
	"github.com/svcmodel/svcmodel-go/pkg/log"
	"github.com/svcmodel/svcmodel-go/pkg/message"
	"github.com/svcmodel/svcmodel-go/pkg/retry"
	"github.com/svcmodel/svcmodel-go/pkg/servicehost"
)

func newRequestCommand(global *globalOptions) *cobra.Command {
	var (
		target targetOptions
		action string
		body   string
	)
	cmd := &cobra.Command{
		Use:   "request",
		Short: "Send one request and print the reply",
		Example: `  svcctl request --config client.yaml --endpoint echo --body "hello"
  svcctl request --address http://127.0.0.1:8080/basic --binding basic-http --body "hello"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			obs, err := global.observe(cmd.ErrOrStderr(), log.RoleClient)
			if err != nil {
				return err
			}
			defer obs.closer()

			t, err := target.resolve(ctx, obs)
			if err != nil {
				return err
			}
			return runRequest(ctx, cmd.OutOrStdout(), t, action, body)
		},
	}
	target.register(cmd)
	cmd.Flags().StringVar(&action, "action", servicehost.EchoAction, "Request action")
	cmd.Flags().StringVar(&body, "body", "[client] This is my request.", "Request body text")
	return cmd
}

// runRequest sends one request, retrying per the target's policy, and
// prints the reply.
func runRequest(ctx context.Context, w io.Writer, t *target, action, body string) error {
	f, err := t.openFactory(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = channel.CloseCommunicationObjects(context.Background(), f) }()

	var reply *message.Message
	start := time.Now()
	err = retry.Do(ctx, f, t.address, t.policy, func(ctx context.Context, ch *channel.Channel) error {
		var err error
		reply, err = ch.Request(ctx, message.NewString(t.binding.MessageVersion(), action, body), t.timeout)
		return err
	})
	if err != nil {
		return describeFailure(err)
	}
	return printReply(w, reply, time.Since(start))
}

func printReply(w io.Writer, reply *message.Message, elapsed time.Duration) error {
	text, err := reply.ReadBodyString()
	if err != nil {
		return err
	}
	if a := reply.Action(); a != "" {
		fmt.Fprintf(w, "Action: %s\n", a)
	}
	fmt.Fprintf(w, "RelatesTo: %s\n", reply.RelatesTo())
	fmt.Fprintf(w, "Elapsed: %s\n", elapsed.Round(time.Microsecond))
	fmt.Fprintln(w, text)
	return nil
}

// describeFailure adds the fault kind, and for remote faults the code, to
// err.
func describeFailure(err error) error {
	var rf *fault.RemoteFault
	if errors.As(err, &rf) {
		return fmt.Errorf("remote fault %s: %w", rf.Code, err)
	}
	return fmt.Errorf("%s: %w", fault.KindOf(err), err)
}
