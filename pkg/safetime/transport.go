package safetime

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"syscall"
	"time"

	"github.com/maximewewer/safetime/pkg/logger"
)

// Exchange is the raw result of one NTP round-trip: the response bytes plus
// the local readings taken around it. RequestTicks and ResponseTicks come
// from the configured TickSource; RequestWallMs is the wall clock read
// immediately before the request was sent.
type Exchange struct {
	Host          string
	Data          []byte
	RequestWallMs int64
	RequestTicks  int64
	ResponseTicks int64
}

// ResponseWallMs is the wall clock at reception: the request wall clock
// advanced by the ticks elapsed during the round-trip. Using ticks instead
// of a second wall read keeps the value immune to clock steps mid-flight.
func (ex *Exchange) ResponseWallMs() int64 {
	return ex.RequestWallMs + (ex.ResponseTicks - ex.RequestTicks)
}

// Fetcher performs one NTP exchange against one host. Implementations do
// not retry; the retry controller owns that policy.
type Fetcher interface {
	Fetch(ctx context.Context, host string) (*Exchange, error)
}

// FetcherFunc adapts a function to the Fetcher interface
type FetcherFunc func(ctx context.Context, host string) (*Exchange, error)

func (f FetcherFunc) Fetch(ctx context.Context, host string) (*Exchange, error) {
	return f(ctx, host)
}

// UDPTransport sends a single mode-3 request over UDP and reads one
// datagram back within the configured timeout.
type UDPTransport struct {
	port     int
	timeout  time.Duration
	ticks    TickSource
	resolver *Resolver
	nowMs    func() int64
}

// NewUDPTransport creates a transport that queries the given UDP port
// (123 for NTP) with the given per-exchange timeout
func NewUDPTransport(port int, timeout time.Duration, ticks TickSource) *UDPTransport {
	return &UDPTransport{
		port:     port,
		timeout:  timeout,
		ticks:    ticks,
		resolver: NewResolver(0, 0),
		nowMs:    wallNowMs,
	}
}

// Fetch resolves the host, performs one request/response exchange, and
// returns the raw bytes with the surrounding tick readings. No validation
// happens here.
func (t *UDPTransport) Fetch(ctx context.Context, host string) (*Exchange, error) {
	addrs, err := t.resolver.Resolve(ctx, host)
	if err != nil {
		return nil, err
	}

	conn, err := net.DialTimeout("udp", net.JoinHostPort(addrs[0], strconv.Itoa(t.port)), t.timeout)
	if err != nil {
		return nil, classifyNetError(host, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(t.timeout)); err != nil {
		return nil, fmt.Errorf("%w: set deadline: %v", ErrIo, err)
	}

	requestWallMs := t.nowMs()
	requestTicks := t.ticks.Ticks()

	if _, err := conn.Write(NewRequest(requestWallMs)); err != nil {
		return nil, classifyNetError(host, err)
	}

	buf := make([]byte, PacketSize)
	n, err := conn.Read(buf)
	responseTicks := t.ticks.Ticks()
	if err != nil {
		return nil, classifyNetError(host, err)
	}

	logger.SafeDebug("transport", "NTP exchange completed", map[string]interface{}{
		"host":     host,
		"bytes":    n,
		"rtt_ms":   responseTicks - requestTicks,
		"resolved": addrs[0],
	})

	return &Exchange{
		Host:          host,
		Data:          buf[:n],
		RequestWallMs: requestWallMs,
		RequestTicks:  requestTicks,
		ResponseTicks: responseTicks,
	}, nil
}

// classifyNetError maps a network error onto the package error taxonomy
func classifyNetError(host string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s: %v", ErrTimeout, host, err)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return fmt.Errorf("%w: %s: %v", ErrUnresolvedHost, host, err)
	}

	if errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) {
		return fmt.Errorf("%w: %s: %v", ErrSecurity, host, err)
	}

	return fmt.Errorf("%w: %s: %v", ErrIo, host, err)
}
