// Package dnsresolve defines a standalone DNS collaborator (the protocol
// strategies do not use it; they resolve through the net package
// directly): given a hostname and port, it returns a stream of resolved
// socket addresses in preference order. Resolution errors are delivered
// as an in-band bad chunk rather than a second return value, matching
// every other producer in this module.
package dnsresolve

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/ski-ext/streamhttp/stream"
)

// AddressFamily selects whether IPv4 or IPv6 results are preferred first
// in the returned stream.
type AddressFamily int

const (
	PreferIPv6 AddressFamily = iota
	PreferIPv4
)

// Address is one resolved socket address a caller may dial.
type Address struct {
	IP      net.IP
	Port    int
	Network string // "tcp" or "udp"
	Err     error
}

func (a Address) IsError() bool        { return a.Err != nil }
func (a Address) ErrorMessage() string {
	if a.Err == nil {
		return ""
	}
	return a.Err.Error()
}

// String returns the dialable host:port form of the address.
func (a Address) String() string {
	return net.JoinHostPort(a.IP.String(), strconv.Itoa(a.Port))
}

// Resolver is the capability to turn a hostname into dialable addresses.
// Neither protocol strategy takes a Resolver.
type Resolver interface {
	Resolve(ctx context.Context, host string, port int, network string, prefer AddressFamily) *stream.Stream[Address]
}

// SystemResolver resolves via net.Resolver (so it honors /etc/hosts,
// /etc/resolv.conf, and the Go runtime's platform resolver by default).
type SystemResolver struct {
	resolver *net.Resolver
}

// NewSystemResolver returns a SystemResolver using net.DefaultResolver.
func NewSystemResolver() *SystemResolver {
	return &SystemResolver{resolver: net.DefaultResolver}
}

// Resolve looks up host and streams every resolved address ordered per
// prefer. A lookup failure is delivered as a single bad Address chunk
// rather than a second return value.
func (r *SystemResolver) Resolve(ctx context.Context, host string, port int, network string, prefer AddressFamily) *stream.Stream[Address] {
	return stream.WithChannel[Address](0, func(ctx context.Context, send stream.Sender[Address]) {
		ips, err := r.resolver.LookupIPAddr(ctx, host)
		if err != nil {
			send.Emit(ctx, Address{Err: fmt.Errorf("dnsresolve: lookup %s: %w", host, err)})
			return
		}
		if len(ips) == 0 {
			send.Emit(ctx, Address{Err: fmt.Errorf("dnsresolve: no addresses for %s", host)})
			return
		}

		var v4, v6 []Address
		for _, ip := range ips {
			addr := Address{IP: ip.IP, Port: port, Network: network}
			if ip.IP.To4() != nil {
				v4 = append(v4, addr)
			} else {
				v6 = append(v6, addr)
			}
		}

		ordered := append(v6, v4...)
		if prefer == PreferIPv4 {
			ordered = append(v4, v6...)
		}
		for _, addr := range ordered {
			send.Emit(ctx, addr)
		}
	})
}
