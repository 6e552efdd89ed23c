// Package discovery lets workers find a host on the local network without
// configuration. A worker broadcasts a fixed token over UDP and the host
// answers with a fixed prefix followed by its coordination address.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"yqhp/kambo-hive/pkg/logger"
)

const (
	// DefaultPort is the well-known discovery port.
	DefaultPort = 2901

	// Token is the request payload a worker broadcasts.
	Token = "HIVE_DISCOVER_V1"

	// ResponsePrefix precedes the advertised address in a reply.
	ResponsePrefix = "HIVE_HOST:"

	maxPacketSize = 512
)

// ErrDiscoveryTimeout is returned when no host answered in time.
var ErrDiscoveryTimeout = errors.New("discovery timed out")

// Responder answers discovery requests on a UDP port.
type Responder struct {
	listenAddr string
	advertise  string
	conn       net.PacketConn
	log        *zap.Logger
}

// NewResponder creates a responder bound to listenAddr that advertises the given host:port.
func NewResponder(listenAddr, advertise string) *Responder {
	return &Responder{
		listenAddr: listenAddr,
		advertise:  advertise,
		log:        logger.Named("discovery"),
	}
}

// Name implements the host service contract.
func (r *Responder) Name() string {
	return "discovery"
}

// Listen binds the UDP socket.
func (r *Responder) Listen() error {
	if r.conn != nil {
		return nil
	}
	conn, err := net.ListenPacket("udp4", r.listenAddr)
	if err != nil {
		return fmt.Errorf("listen udp %s: %w", r.listenAddr, err)
	}
	r.conn = conn
	r.log.Info("discovery responder listening",
		zap.String("address", conn.LocalAddr().String()),
		zap.String("advertise", r.advertise))
	return nil
}

// Addr returns the bound UDP address, or nil before Listen.
func (r *Responder) Addr() net.Addr {
	if r.conn == nil {
		return nil
	}
	return r.conn.LocalAddr()
}

// Run answers requests until ctx is cancelled.
func (r *Responder) Run(ctx context.Context) error {
	if err := r.Listen(); err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, func() {
		r.conn.Close()
	})
	defer stop()

	reply := []byte(ResponsePrefix + r.advertise)
	buf := make([]byte, maxPacketSize)
	for {
		n, from, err := r.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read udp: %w", err)
		}

		if strings.TrimSpace(string(buf[:n])) != Token {
			r.log.Debug("ignoring unknown discovery payload", zap.String("from", from.String()))
			continue
		}
		if _, err := r.conn.WriteTo(reply, from); err != nil {
			r.log.Warn("discovery reply failed", zap.String("to", from.String()), zap.Error(err))
			continue
		}
		r.log.Debug("discovery request answered", zap.String("from", from.String()))
	}
}

// Discover sends the token to target (usually the broadcast address on the
// discovery port) and waits up to timeout for a valid reply. It returns the
// advertised host:port.
func Discover(ctx context.Context, target string, timeout time.Duration) (string, error) {
	dst, err := net.ResolveUDPAddr("udp4", target)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", target, err)
	}

	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return "", fmt.Errorf("open udp socket: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return "", err
	}
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	if _, err := conn.WriteTo([]byte(Token), dst); err != nil {
		return "", fmt.Errorf("send discovery request: %w", err)
	}

	buf := make([]byte, maxPacketSize)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return "", fmt.Errorf("%w after %s", ErrDiscoveryTimeout, timeout)
			}
			return "", err
		}

		if addr, ok := ParseResponse(buf[:n]); ok {
			return addr, nil
		}
	}
}

// ParseResponse extracts the host:port from a reply payload.
func ParseResponse(payload []byte) (string, bool) {
	s := strings.TrimSpace(string(payload))
	if !strings.HasPrefix(s, ResponsePrefix) {
		return "", false
	}
	addr := strings.TrimPrefix(s, ResponsePrefix)
	host, port, err := net.SplitHostPort(addr)
	if err != nil || host == "" {
		return "", false
	}
	if p, err := strconv.Atoi(port); err != nil || p <= 0 || p > 65535 {
		return "", false
	}
	return addr, true
}

// BroadcastTarget returns the host:port a worker sends its request to.
func BroadcastTarget(broadcastAddr string, port int) string {
	return net.JoinHostPort(broadcastAddr, strconv.Itoa(port))
}

// AdvertiseAddress picks the address workers should connect to. A configured
// value wins; otherwise the bound address is used, with an unspecified host
// replaced by the machine's outbound IP.
func AdvertiseAddress(configured string, bound net.Addr) string {
	if configured != "" {
		return configured
	}
	host, port, err := net.SplitHostPort(bound.String())
	if err != nil {
		return bound.String()
	}
	if ip := net.ParseIP(host); ip == nil || !ip.IsUnspecified() {
		return bound.String()
	}
	return net.JoinHostPort(outboundIP(), port)
}

// outboundIP returns the local address used for outgoing traffic. No packet is sent.
func outboundIP() string {
	conn, err := net.Dial("udp4", "192.0.2.1:9")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}
