// Package resolve maps endpoint resource requests to addresses.
//
// A ResourceRequest names a protocol and a logical port. Static resolves it
// against a fixed host; MDNS browses for services announced by an
// MDNSAdvertiser, so a client can find a service host on the local network
// without knowing its address:
//
//	r := resolve.NewMDNS(resolve.MDNSConfig{Fallback: &resolve.Static{}})
//	addr, err := r.Resolve(ctx, resolve.ResourceRequest{Protocol: "http", Port: 8080, Path: "/echo"})
package resolve
