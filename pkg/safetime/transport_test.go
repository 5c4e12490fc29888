package safetime

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startFakeServer runs a loopback NTP server answering every request with
// a response built by the handler. It returns the port to query.
func startFakeServer(t *testing.T, handler func(request *Packet) *Packet) int {
	t.Helper()

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, 512)
		for {
			n, addr, err := conn.ReadFrom(buf)
			if err != nil {
				return
			}

			request, err := ParsePacket(buf[:n])
			if err != nil {
				continue
			}

			response := handler(request)
			if response == nil {
				continue
			}
			if _, err := conn.WriteTo(response.Marshal(), addr); err != nil {
				return
			}
		}
	}()

	return conn.LocalAddr().(*net.UDPAddr).Port
}

// echoServerPacket builds a plausible server response echoing the client's
// transmit timestamp into the originate field
func echoServerPacket(request *Packet) *Packet {
	serverMs := request.TransmitMs() + 5
	return &Packet{
		LeapIndicator:  LeapNoWarning,
		Version:        VersionNTPv3,
		Mode:           ModeServer,
		Stratum:        2,
		Poll:           6,
		Precision:      -20,
		RootDelay:      10,
		RootDispersion: 10,
		ReferenceTime:  unixMsToNTP(serverMs - 1000),
		OriginateTime:  request.TransmitTime,
		ReceiveTime:    unixMsToNTP(serverMs),
		TransmitTime:   unixMsToNTP(serverMs + 1),
	}
}

func TestUDPTransport_Fetch(t *testing.T) {
	port := startFakeServer(t, echoServerPacket)

	transport := NewUDPTransport(port, 2*time.Second, SystemTicks())

	ex, err := transport.Fetch(context.Background(), "127.0.0.1")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", ex.Host)
	assert.Len(t, ex.Data, PacketSize)
	assert.GreaterOrEqual(t, ex.ResponseTicks, ex.RequestTicks)
	assert.Positive(t, ex.RequestWallMs)

	// The response parses and echoes our request wall clock
	p, err := ParsePacket(ex.Data)
	require.NoError(t, err)
	assert.Equal(t, uint8(ModeServer), p.Mode)
	assert.Equal(t, ex.RequestWallMs, p.OriginateMs())
}

func TestUDPTransport_FetchEndToEnd(t *testing.T) {
	port := startFakeServer(t, echoServerPacket)

	transport := NewUDPTransport(port, 2*time.Second, SystemTicks())
	validator := NewValidator(100, 100, 750*time.Millisecond)

	ex, err := transport.Fetch(context.Background(), "127.0.0.1")
	require.NoError(t, err)

	p, err := ParsePacket(ex.Data)
	require.NoError(t, err)
	require.NoError(t, validator.Validate(p, ex))

	sample := ComputeSample(p, ex)
	assert.NotNil(t, sample.Raw)

	// Loopback round-trip against the same clock: the offset is tiny
	assert.Less(t, sample.OffsetMs, int64(1_000))
	assert.Greater(t, sample.OffsetMs, int64(-1_000))
}

func TestUDPTransport_Timeout(t *testing.T) {
	// A server that never answers
	port := startFakeServer(t, func(request *Packet) *Packet { return nil })

	transport := NewUDPTransport(port, 100*time.Millisecond, SystemTicks())

	started := time.Now()
	_, err := transport.Fetch(context.Background(), "127.0.0.1")

	assert.True(t, errors.Is(err, ErrTimeout))
	assert.Less(t, time.Since(started), 2*time.Second)
}

func TestUDPTransport_UnresolvedHost(t *testing.T) {
	transport := NewUDPTransport(123, 500*time.Millisecond, SystemTicks())

	_, err := transport.Fetch(context.Background(), "host.invalid")
	assert.True(t, errors.Is(err, ErrUnresolvedHost))
}

func TestUDPTransport_ShortResponseFailsParse(t *testing.T) {
	// A server answering with a truncated datagram: the transport returns
	// the bytes, the codec rejects them
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, 512)
		for {
			_, addr, err := conn.ReadFrom(buf)
			if err != nil {
				return
			}
			if _, err := conn.WriteTo([]byte("too short"), addr); err != nil {
				return
			}
		}
	}()

	port := conn.LocalAddr().(*net.UDPAddr).Port
	transport := NewUDPTransport(port, 2*time.Second, SystemTicks())

	ex, err := transport.Fetch(context.Background(), "127.0.0.1")
	require.NoError(t, err)

	_, err = ParsePacket(ex.Data)
	assert.True(t, errors.Is(err, ErrMalformedResponse))
}

func TestClassifyNetError(t *testing.T) {
	dnsErr := &net.DNSError{Err: "no such host", Name: "x", IsNotFound: true}
	assert.True(t, errors.Is(classifyNetError("x", dnsErr), ErrUnresolvedHost))

	opErr := &net.OpError{Op: "write", Net: "udp", Err: errors.New("connection refused")}
	assert.True(t, errors.Is(classifyNetError("x", opErr), ErrIo))
}
