package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/svcmodel/svcmodel-go/pkg/channel"
	"github.com/svcmodel/svcmodel-go/pkg/fault"
	"github.com/svcmodel/svcmodel-go/pkg/log"
	"github.com/svcmodel/svcmodel-go/pkg/message"
	"github.com/svcmodel/svcmodel-go/pkg/servicehost"
)

func newShellCommand(global *globalOptions) *cobra.Command {
	var target targetOptions
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Send requests interactively over one channel",
		Long: `Open one channel to the endpoint and send each entered line as a request.
A channel that faults is replaced on the next request.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "svcctl> ",
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",
			})
			if err != nil {
				return fmt.Errorf("failed to create readline: %w", err)
			}
			defer rl.Close()

			obs, err := global.observe(rl.Stderr(), log.RoleClient)
			if err != nil {
				return err
			}
			defer obs.closer()

			ctx := cmd.Context()
			t, err := target.resolve(ctx, obs)
			if err != nil {
				return err
			}
			f, err := t.openFactory(ctx)
			if err != nil {
				return err
			}
			defer f.Abort()

			s := &shell{factory: f, target: t, action: servicehost.EchoAction, out: rl.Stdout()}
			defer s.closeChannel()
			s.printHelp()
			for {
				line, err := rl.Readline()
				if err != nil {
					if errors.Is(err, readline.ErrInterrupt) {
						continue
					}
					return channel.CloseCommunicationObjects(context.Background(), f)
				}
				if !s.exec(ctx, strings.TrimSpace(line)) {
					return channel.CloseCommunicationObjects(context.Background(), f)
				}
			}
		},
	}
	target.register(cmd)
	return cmd
}

// shell holds the interactive session state.
type shell struct {
	factory *channel.Factory
	target  *target
	ch      *channel.Channel
	action  string
	out     io.Writer
}

// exec runs one input line. It returns false when the session should end.
func (s *shell) exec(ctx context.Context, line string) bool {
	if line == "" {
		return true
	}
	cmd, rest, _ := strings.Cut(line, " ")
	switch strings.ToLower(cmd) {
	case "help", "?":
		s.printHelp()
	case "action":
		if rest == "" {
			fmt.Fprintf(s.out, "Action: %s\n", s.action)
		} else {
			s.action = rest
		}
	case "state":
		fmt.Fprintf(s.out, "Factory: %s\n", s.factory.State())
		if s.ch != nil {
			fmt.Fprintf(s.out, "Channel: %s\n", s.ch.State())
		}
	case "reset":
		s.closeChannel()
	case "send", "s":
		s.send(ctx, rest)
	case "quit", "exit", "q":
		fmt.Fprintln(s.out, "Exiting...")
		return false
	default:
		s.send(ctx, line)
	}
	return true
}

func (s *shell) send(ctx context.Context, body string) {
	ch, err := s.channel(ctx)
	if err != nil {
		fmt.Fprintf(s.out, "open failed: %v\n", err)
		return
	}
	start := time.Now()
	reply, err := ch.Request(ctx, message.NewString(s.target.binding.MessageVersion(), s.action, body), s.target.timeout)
	if err != nil {
		fmt.Fprintf(s.out, "request failed: %v\n", describeFailure(err))
		if fault.Faults(err) {
			s.closeChannel()
		}
		return
	}
	if err := printReply(s.out, reply, time.Since(start)); err != nil {
		fmt.Fprintf(s.out, "reply unreadable: %v\n", err)
	}
}

// channel returns the open channel, creating one when there is none.
func (s *shell) channel(ctx context.Context) (*channel.Channel, error) {
	if s.ch != nil && s.ch.State() == channel.StateOpened {
		return s.ch, nil
	}
	s.closeChannel()
	ch, err := s.factory.CreateChannel(s.target.address)
	if err != nil {
		return nil, err
	}
	if err := ch.Open(ctx); err != nil {
		ch.Abort()
		return nil, err
	}
	s.ch = ch
	return ch, nil
}

func (s *shell) closeChannel() {
	if s.ch == nil {
		return
	}
	_ = channel.CloseCommunicationObjects(context.Background(), s.ch)
	s.ch = nil
}

func (s *shell) printHelp() {
	fmt.Fprintf(s.out, `Connected to %s (%s)
Commands:
  <text>            - Send text with the current action
  send <text>       - Same as above
  action [action]   - Show or set the request action
  state             - Show factory and channel state
  reset             - Close the current channel
  help              - Show this help
  quit              - Exit
`, s.target.address, s.target.binding.Name())
}
