// Package channel implements channel factories and channels.
//
// A Factory is built from a binding as an ordered stack of LayerFactory
// values, outermost first with the transport last. Opening the factory
// opens the stack from the transport outwards; CreateChannel asks each
// layer factory for a per-channel Layer wrapping the next one.
//
// Factories and channels share one lifecycle:
//
//	Created -> Opening -> Opened -> Closing -> Closed
//	any state -> Faulted -> Closed (abort path)
//
// Typical use:
//
//	f, err := b.BuildChannelFactory(channel.ShapeRequest, params)
//	err = channel.Use(ctx, f, addr, func(ch *channel.Channel) error {
//	    reply, err := ch.Request(ctx, msg, 0)
//	    ...
//	})
//
// A Channel serves one request at a time unless the binding enables
// concurrent requests. Failures of the transport, the peer's protocol, or
// message security fault the channel; build a new channel to retry.
package channel
