// Package binding composes binding elements into a channel factory.
//
// A Binding is an ordered list of elements. Exactly one TransportElement
// must come last; at most one EncodingElement and one SecurityElement may
// appear; any number of custom elements (CustomElement, CompressionElement)
// may sit outward of the transport. Elements are never reordered.
//
// BuildChannelFactory walks the elements outermost first. Every element is
// asked whether it supports the requested channel shape before anything is
// built, so an unsupported shape fails without side effects. Encoding and
// security elements register what the transport needs in the BuildContext;
// the transport element consumes it when it builds last.
//
//	b, err := binding.New("echo", []binding.Element{
//		&binding.EncodingElement{Kind: wire.KindText, Version: message.Soap12WSAddressing10},
//		&binding.TransportElement{Scheme: transport.SchemeHTTP},
//	})
//	f, err := b.BuildChannelFactory(channel.ShapeRequest, binding.Parameters{})
package binding
