// Package discovery finds a Lyrion server on the local network via
// mDNS/DNS-SD when no server address was configured explicitly, using
// the same pure-Go github.com/brutella/dnssd library doismellburning-samoyed
// uses to announce a KISS-over-TCP service, here used on the browsing
// side instead of the announcing side.
package discovery

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/brutella/dnssd"
)

// ServiceType is the DNS-SD service type a Lyrion server is expected to
// advertise itself under.
const ServiceType = "_slimproto._tcp"

// Server is one discovered candidate.
type Server struct {
	Name string
	Host string
	Port int
}

func (s Server) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

// sortedServers returns the values of found sorted by name, the part of
// Find that's pure enough to unit test without a real mDNS browse.
func sortedServers(found map[string]Server) []Server {
	servers := make([]Server, 0, len(found))
	for _, s := range found {
		servers = append(servers, s)
	}
	sort.Slice(servers, func(i, j int) bool { return servers[i].Name < servers[j].Name })
	return servers
}

// Find browses for ServiceType for up to timeout and returns every
// distinct server seen, sorted by name for deterministic output.
func Find(ctx context.Context, timeout time.Duration) ([]Server, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var mu sync.Mutex
	found := make(map[string]Server)

	added := func(e dnssd.BrowseEntry) {
		if len(e.IPs) == 0 {
			return
		}
		mu.Lock()
		found[e.Name] = Server{
			Name: e.Name,
			Host: e.IPs[0].String(),
			Port: e.Port,
		}
		mu.Unlock()
	}
	removed := func(e dnssd.BrowseEntry) {
		mu.Lock()
		delete(found, e.Name)
		mu.Unlock()
	}

	err := dnssd.LookupType(ctx, ServiceType+".local.", added, removed)
	if err != nil && ctx.Err() == nil {
		return nil, fmt.Errorf("discovery: lookup %s: %w", ServiceType, err)
	}

	mu.Lock()
	defer mu.Unlock()
	return sortedServers(found), nil
}

// FindFirst is a convenience wrapper for the common case: the caller
// just wants any one server within timeout.
func FindFirst(ctx context.Context, timeout time.Duration) (Server, error) {
	servers, err := Find(ctx, timeout)
	if err != nil {
		return Server{}, err
	}
	if len(servers) == 0 {
		return Server{}, fmt.Errorf("discovery: no %s server found within %s", ServiceType, timeout)
	}
	return servers[0], nil
}
