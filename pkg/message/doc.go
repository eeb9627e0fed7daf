// Package message provides the Message type exchanged over channels.
//
// A Message carries an action, ordered headers, a lazily produced body and
// addressing information (message id and relates-to). The Version decides
// which addressing fields appear on the wire:
//
//	req := message.NewString(message.Soap12WSAddressing10, "urn:echo/Echo", "hello")
//	reply, err := ch.Request(ctx, req, 0)
//	text, err := reply.ReadBodyString()
//
// Bodies are read exactly once; a second read returns ErrBodyConsumed.
package message
