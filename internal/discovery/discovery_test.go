package discovery

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startResponder(t *testing.T, advertise string) *Responder {
	t.Helper()
	r := NewResponder("127.0.0.1:0", advertise)
	require.NoError(t, r.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
	return r
}

func TestDiscoverFindsHost(t *testing.T) {
	r := startResponder(t, "192.168.1.20:12345")

	addr, err := Discover(context.Background(), r.Addr().String(), 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.20:12345", addr)

	_, _, err = net.SplitHostPort(addr)
	assert.NoError(t, err)
}

func TestWrongTokenGetsNoReply(t *testing.T) {
	r := startResponder(t, "192.168.1.20:12345")

	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.WriteTo([]byte("HIVE_DISCOVER_V0"), r.Addr())
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	_, _, err = conn.ReadFrom(make([]byte, maxPacketSize))
	var ne net.Error
	require.True(t, errors.As(err, &ne))
	assert.True(t, ne.Timeout())

	// the responder keeps serving after ignoring garbage
	addr, err := Discover(context.Background(), r.Addr().String(), 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.20:12345", addr)
}

func TestDiscoverTimeout(t *testing.T) {
	// a bound socket that never answers
	silent, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer silent.Close()

	start := time.Now()
	_, err = Discover(context.Background(), silent.LocalAddr().String(), 200*time.Millisecond)
	assert.ErrorIs(t, err, ErrDiscoveryTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestDiscoverCancelled(t *testing.T) {
	silent, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer silent.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err = Discover(ctx, silent.LocalAddr().String(), 10*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		payload string
		addr    string
		ok      bool
	}{
		{"HIVE_HOST:10.0.0.5:12345", "10.0.0.5:12345", true},
		{"HIVE_HOST:host.local:80\n", "host.local:80", true},
		{"HIVE_HOST:[::1]:9000", "[::1]:9000", true},
		{"HIVE_HOST:10.0.0.5", "", false},
		{"HIVE_HOST::12345", "", false},
		{"HIVE_HOST:10.0.0.5:99999", "", false},
		{"OTHER:10.0.0.5:12345", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		addr, ok := ParseResponse([]byte(tt.payload))
		assert.Equal(t, tt.ok, ok, tt.payload)
		assert.Equal(t, tt.addr, addr, tt.payload)
	}
}

func TestAdvertiseAddress(t *testing.T) {
	bound := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 12345}
	assert.Equal(t, "127.0.0.1:12345", AdvertiseAddress("", bound))
	assert.Equal(t, "example:1", AdvertiseAddress("example:1", bound))

	wildcard := &net.TCPAddr{IP: net.IPv4zero, Port: 12345}
	addr := AdvertiseAddress("", wildcard)
	host, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	assert.Equal(t, "12345", port)
	assert.False(t, net.ParseIP(host).IsUnspecified())
}

func TestBroadcastTarget(t *testing.T) {
	assert.Equal(t, "255.255.255.255:2901", BroadcastTarget("255.255.255.255", DefaultPort))
}
