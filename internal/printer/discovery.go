package printer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"pos-edge/internal/metrics"
	"pos-edge/internal/parse"
)

const (
	MinProbeTimeout = 50 * time.Millisecond
	MaxProbeTimeout = 2000 * time.Millisecond
	MinConcurrency  = 1
	MaxConcurrency  = 200
)

// Found is a host that accepted a TCP connection on the probed port.
type Found struct {
	IP   string `json:"ip"`
	Port int    `json:"port"`
}

// DiscoverOptions tunes a subnet sweep. Values are clamped before use.
type DiscoverOptions struct {
	Port        int
	Timeout     time.Duration
	Concurrency int
}

// Normalize clamps the options into their allowed ranges.
func (o DiscoverOptions) Normalize() DiscoverOptions {
	if o.Port <= 0 || o.Port > 65535 {
		o.Port = 9100
	}
	ms := parse.ClampInt(int(o.Timeout/time.Millisecond), int(MinProbeTimeout/time.Millisecond), int(MaxProbeTimeout/time.Millisecond))
	o.Timeout = time.Duration(ms) * time.Millisecond
	o.Concurrency = parse.ClampInt(o.Concurrency, MinConcurrency, MaxConcurrency)
	return o
}

// ProbeFunc reports whether addr accepted a TCP connection within timeout.
type ProbeFunc func(ctx context.Context, addr string, timeout time.Duration) bool

// Scanner discovers printers on the /24 subnet of the host.
type Scanner struct {
	probe   ProbeFunc
	localIP func() (net.IP, error)
}

// NewScanner returns a scanner using real TCP probes and interface lookup.
func NewScanner() *Scanner {
	return &Scanner{probe: Probe, localIP: DetectLocalIP}
}

// NewScannerWith lets callers substitute the probe and local address lookup.
func NewScannerWith(probe ProbeFunc, localIP func() (net.IP, error)) *Scanner {
	return &Scanner{probe: probe, localIP: localIP}
}

// LocalIP returns the address the scanner sweeps around.
func (s *Scanner) LocalIP() (net.IP, error) {
	return s.localIP()
}

// Discover probes every other host of the local /24 with a fixed pool of
// workers pulling from a shared cursor. A single timed connect is the unit of
// truth; errors and timeouts count as negative. Results are sorted by address.
func (s *Scanner) Discover(ctx context.Context, opts DiscoverOptions) ([]Found, error) {
	opts = opts.Normalize()

	local, err := s.localIP()
	if err != nil {
		return nil, fmt.Errorf("failed to detect local address: %w", err)
	}
	candidates, err := Candidates(local)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	log.Info().
		Str("local_ip", local.String()).
		Int("port", opts.Port).
		Dur("timeout", opts.Timeout).
		Int("concurrency", opts.Concurrency).
		Msg("starting printer discovery")

	var (
		cursor atomic.Int64
		mu     sync.Mutex
		hits   []netip.Addr
		wg     sync.WaitGroup
	)
	for i := 0; i < opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				idx := int(cursor.Add(1) - 1)
				if idx >= len(candidates) || ctx.Err() != nil {
					return
				}
				addr := candidates[idx]
				if s.probe(ctx, net.JoinHostPort(addr.String(), strconv.Itoa(opts.Port)), opts.Timeout) {
					metrics.DiscoveryProbesTotal.WithLabelValues("hit").Inc()
					mu.Lock()
					hits = append(hits, addr)
					mu.Unlock()
				} else {
					metrics.DiscoveryProbesTotal.WithLabelValues("miss").Inc()
				}
			}
		}()
	}
	wg.Wait()

	slices.SortFunc(hits, func(a, b netip.Addr) int { return a.Compare(b) })
	found := make([]Found, 0, len(hits))
	for _, h := range hits {
		found = append(found, Found{IP: h.String(), Port: opts.Port})
	}

	metrics.DiscoveryDuration.Observe(time.Since(start).Seconds())
	log.Info().Int("found", len(found)).Dur("elapsed", time.Since(start)).Msg("printer discovery finished")
	return found, ctx.Err()
}

// Candidates lists x.y.z.1 through x.y.z.254 of local's /24, without local.
func Candidates(local net.IP) ([]netip.Addr, error) {
	v4 := local.To4()
	if v4 == nil {
		return nil, errors.New("discovery requires an IPv4 address")
	}
	self, _ := netip.AddrFromSlice(v4)

	out := make([]netip.Addr, 0, 253)
	for host := 1; host <= 254; host++ {
		a := netip.AddrFrom4([4]byte{v4[0], v4[1], v4[2], byte(host)})
		if a == self {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// Probe attempts one TCP connect to addr within timeout.
func Probe(ctx context.Context, addr string, timeout time.Duration) bool {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// DetectLocalIP returns the first non-loopback IPv4 address of the host.
func DetectLocalIP() (net.IP, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}
	for _, a := range addrs {
		if ipnet, ok := a.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
			return ipnet.IP.To4(), nil
		}
	}
	return nil, errors.New("no local IPv4 address found")
}
