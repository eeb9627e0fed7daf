package channel

import (
	"log/slog"
	"time"

	"github.com/svcmodel/svcmodel-go/pkg/diagnostics"
	"github.com/svcmodel/svcmodel-go/pkg/log"
	"github.com/svcmodel/svcmodel-go/pkg/message"
)

// DefaultTimeout is the default open, close and send timeout.
const DefaultTimeout = time.Minute

// Timeouts bound the blocking operations of factories and channels.
type Timeouts struct {
	Open  time.Duration
	Close time.Duration
	Send  time.Duration
}

// DefaultTimeouts returns one minute for every operation.
func DefaultTimeouts() Timeouts {
	return Timeouts{Open: DefaultTimeout, Close: DefaultTimeout, Send: DefaultTimeout}
}

func (t Timeouts) withDefaults() Timeouts {
	if t.Open <= 0 {
		t.Open = DefaultTimeout
	}
	if t.Close <= 0 {
		t.Close = DefaultTimeout
	}
	if t.Send <= 0 {
		t.Send = DefaultTimeout
	}
	return t
}

// FactoryConfig configures a channel factory.
type FactoryConfig struct {
	// Shape of the channels the factory creates.
	Shape Shape

	// MessageVersion spoken by the stack. Decides whether empty
	// relates-to on replies is acceptable.
	MessageVersion message.Version

	// Timeouts for open, close and request.
	Timeouts Timeouts

	// ConcurrentRequests allows more than one outstanding Request per
	// channel.
	ConcurrentRequests bool

	// Logger for operational logging (nil disables).
	Logger *slog.Logger

	// ProtocolLogger receives lifecycle and message events (nil disables).
	ProtocolLogger log.Logger

	// Diagnostics receives diagnostic events (nil disables).
	Diagnostics diagnostics.Sink
}
