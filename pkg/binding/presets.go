package binding

import (
	"github.com/svcmodel/svcmodel-go/pkg/message"
	"github.com/svcmodel/svcmodel-go/pkg/security"
	"github.com/svcmodel/svcmodel-go/pkg/transport"
	"github.com/svcmodel/svcmodel-go/pkg/wire"
)

// BasicHTTPBinding speaks SOAP 1.1 text over HTTP. Transport security
// switches to https. Basic credentials are sent by the transport.
func BasicHTTPBinding(sec security.Settings, opts ...Option) (*Binding, error) {
	scheme := transport.SchemeHTTP
	if sec.Mode == security.ModeTransport {
		scheme = transport.SchemeHTTPS
	}
	var elements []Element
	if sec.Mode != security.ModeNone || sec.Credential != security.CredentialNone {
		elements = append(elements, &SecurityElement{Settings: sec})
	}
	elements = append(elements,
		&EncodingElement{Encoding: wire.KindText, Version: message.Soap11},
		&TransportElement{Scheme: scheme},
	)
	return New("basicHttp", elements, opts...)
}

// TextHTTPBinding is the custom binding of a text encoder speaking SOAP 1.2
// with WS-Addressing over HTTP.
func TextHTTPBinding(opts ...Option) (*Binding, error) {
	return New("customTextHttp", []Element{
		&EncodingElement{Encoding: wire.KindText, Version: message.Soap12WSAddressing10},
		&TransportElement{Scheme: transport.SchemeHTTP},
	}, opts...)
}

// NetTCPBinding speaks binary SOAP 1.2 over net.tcp. Transport security
// enables TLS.
func NetTCPBinding(sec security.Settings, opts ...Option) (*Binding, error) {
	var elements []Element
	if sec.Mode != security.ModeNone || sec.Credential != security.CredentialNone {
		elements = append(elements, &SecurityElement{Settings: sec})
	}
	elements = append(elements,
		&EncodingElement{Encoding: wire.KindBinary, Version: message.Soap12WSAddressing10},
		&TransportElement{Scheme: transport.SchemeTCP},
	)
	return New("netTcp", elements, opts...)
}

// NetPipeBinding speaks binary SOAP 1.2 over a local unix socket.
func NetPipeBinding(opts ...Option) (*Binding, error) {
	return New("netNamedPipe", []Element{
		&EncodingElement{Encoding: wire.KindBinary, Version: message.Soap12WSAddressing10},
		&TransportElement{Scheme: transport.SchemePipe},
	}, opts...)
}

// WebSocketBinding speaks binary SOAP 1.2 over a websocket, duplex only.
func WebSocketBinding(secure bool, opts ...Option) (*Binding, error) {
	scheme := transport.SchemeWS
	if secure {
		scheme = transport.SchemeWSS
	}
	return New("netWebSocket", []Element{
		&EncodingElement{Encoding: wire.KindBinary, Version: message.Soap12WSAddressing10},
		&TransportElement{Scheme: scheme},
	}, opts...)
}

// Custom returns a binding of the given elements.
func Custom(elements []Element, opts ...Option) (*Binding, error) {
	return New("custom", elements, opts...)
}
