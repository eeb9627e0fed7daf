package binding

import (
	"log/slog"

	"github.com/svcmodel/svcmodel-go/pkg/diagnostics"
	"github.com/svcmodel/svcmodel-go/pkg/log"
	"github.com/svcmodel/svcmodel-go/pkg/resolve"
	"github.com/svcmodel/svcmodel-go/pkg/security"
	"github.com/svcmodel/svcmodel-go/pkg/transport"
	"github.com/svcmodel/svcmodel-go/pkg/wire"
)

// Parameters are supplied by the caller of BuildChannelFactory.
type Parameters struct {
	// Target, if set, is resolved and probed when the factory opens.
	Target *resolve.ResourceRequest

	// Resolver resolves Target. Nil uses resolve.Static.
	Resolver resolve.Resolver

	// Pool shares framed connections. Nil uses transport.DefaultPool.
	Pool *transport.Pool

	Logger         *slog.Logger
	ProtocolLogger log.Logger
	Diagnostics    diagnostics.Sink
}

// BuildContext carries what outer elements register for inner ones while
// a binding builds.
type BuildContext struct {
	Params Parameters

	// Encoder registered by the encoding element.
	Encoder wire.Encoder

	// Security registered by the security element.
	Security *security.Settings

	// TransportCredentials are sent by the transport.
	TransportCredentials *transport.BasicCredentials
}
