// Package resolver turns a target hostname into connectable TCP addresses.
// Each worker resolves once and reuses the result for all of its requests.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// DefaultPort is the only port the benchmark targets
const DefaultPort = 80

var errNoAddresses = errors.New("no addresses found")

// ResolutionError reports a failed host lookup. The owning worker aborts.
type ResolutionError struct {
	Host string
	Err  error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s: %v", e.Host, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// ResolvedAddress holds the dialable host:port strings for one target, in lookup order
type ResolvedAddress struct {
	Host  string
	Port  int
	Addrs []string
}

// Release drops the resolved addresses once the worker is done with them
func (a *ResolvedAddress) Release() {
	a.Addrs = nil
}

// Resolver resolves a host and port into a ResolvedAddress
type Resolver interface {
	Resolve(ctx context.Context, host string, port int) (*ResolvedAddress, error)
}

// NetResolver resolves through the system resolver.
// IP literals are returned without a lookup.
type NetResolver struct {
	Resolver *net.Resolver
	Timeout  time.Duration // 0 means no extra deadline
}

// NewNetResolver creates a NetResolver using net.DefaultResolver
func NewNetResolver(timeout time.Duration) *NetResolver {
	return &NetResolver{
		Resolver: net.DefaultResolver,
		Timeout:  timeout,
	}
}

// Resolve implements Resolver
func (r *NetResolver) Resolve(ctx context.Context, host string, port int) (*ResolvedAddress, error) {
	if host == "" {
		return nil, &ResolutionError{Host: host, Err: errors.New("empty host")}
	}
	if port <= 0 || port > 65535 {
		return nil, &ResolutionError{Host: host, Err: fmt.Errorf("invalid port %d", port)}
	}

	portStr := strconv.Itoa(port)

	if ip := net.ParseIP(host); ip != nil {
		return &ResolvedAddress{
			Host:  host,
			Port:  port,
			Addrs: []string{net.JoinHostPort(ip.String(), portStr)},
		}, nil
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	res := r.Resolver
	if res == nil {
		res = net.DefaultResolver
	}

	ips, err := res.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, &ResolutionError{Host: host, Err: err}
	}
	if len(ips) == 0 {
		return nil, &ResolutionError{Host: host, Err: errNoAddresses}
	}

	addrs := make([]string, 0, len(ips))
	for _, ip := range ips {
		addrs = append(addrs, net.JoinHostPort(ip.String(), portStr))
	}

	return &ResolvedAddress{Host: host, Port: port, Addrs: addrs}, nil
}

// StaticResolver always returns the given addresses; host is ignored.
// Used to point workers at a fixed endpoint.
type StaticResolver struct {
	Addrs []string
}

// Resolve implements Resolver
func (s StaticResolver) Resolve(_ context.Context, host string, port int) (*ResolvedAddress, error) {
	if len(s.Addrs) == 0 {
		return nil, &ResolutionError{Host: host, Err: errNoAddresses}
	}
	addrs := make([]string, len(s.Addrs))
	copy(addrs, s.Addrs)
	return &ResolvedAddress{Host: host, Port: port, Addrs: addrs}, nil
}
