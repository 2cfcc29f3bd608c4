package ping

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"

	"fritzwatch/internal/config"
	"fritzwatch/internal/model"
)

const protocolICMP = 1

// Store persists probe results.
type Store interface {
	SavePing(ctx context.Context, ping model.PingInfo) error
}

// Prober measures ICMP round-trip latency to the configured targets and
// persists one row per probe. Timeouts are recorded too, with the
// latency fields left empty.
type Prober struct {
	cfg    *config.Manager
	store  Store
	logger *slog.Logger
}

func NewProber(cfg *config.Manager, store Store, logger *slog.Logger) *Prober {
	return &Prober{cfg: cfg, store: store, logger: logger}
}

// Run probes until the context is cancelled. Uses unprivileged
// datagram ICMP sockets, so no raw-socket capability is needed.
func (p *Prober) Run(ctx context.Context) error {
	conn, err := icmp.ListenPacket("udp4", "0.0.0.0")
	if err != nil {
		return fmt.Errorf("open icmp socket: %w", err)
	}
	defer conn.Close()
	if err := conn.IPv4PacketConn().SetControlMessage(ipv4.FlagTTL, true); err != nil && p.logger != nil {
		p.logger.Warn("couldn't enable ttl reporting", "err", err)
	}

	seq := 0
	timer := time.NewTimer(p.interval())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
		cfg := p.cfg.Get().Ping
		for _, target := range cfg.Targets {
			seq++
			result := p.probe(conn, target, seq, cfg.Timeout)
			if err := p.store.SavePing(ctx, result); err != nil && p.logger != nil {
				p.logger.Warn("couldn't save ping", "target", target, "err", err)
			}
		}
		timer.Reset(p.interval())
	}
}

func (p *Prober) interval() time.Duration {
	if interval := p.cfg.Get().Ping.Interval; interval > 0 {
		return interval
	}
	return 30 * time.Second
}

func (p *Prober) probe(conn *icmp.PacketConn, target string, seq int, timeout time.Duration) model.PingInfo {
	result := model.PingInfo{
		Timestamp: time.Now().UTC(),
		Target:    target,
	}

	payload := make([]byte, 56)
	request := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Body: &icmp.Echo{
			ID:   os.Getpid() & 0xffff,
			Seq:  seq,
			Data: payload,
		},
	}
	wire, err := request.Marshal(nil)
	if err != nil {
		p.warn(target, err)
		return result
	}

	start := time.Now()
	if _, err := conn.WriteTo(wire, &net.UDPAddr{IP: net.ParseIP(target)}); err != nil {
		p.warn(target, err)
		return result
	}

	deadline := start.Add(timeout)
	buf := make([]byte, 1500)
	for {
		if err := conn.SetReadDeadline(deadline); err != nil {
			p.warn(target, err)
			return result
		}
		n, cm, peer, err := conn.IPv4PacketConn().ReadFrom(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				// Timeout rows keep their empty latency fields.
				return result
			}
			p.warn(target, err)
			return result
		}
		if udp, ok := peer.(*net.UDPAddr); !ok || udp.IP.String() != target {
			continue
		}
		reply, err := icmp.ParseMessage(protocolICMP, buf[:n])
		if err != nil || reply.Type != ipv4.ICMPTypeEchoReply {
			continue
		}
		echo, ok := reply.Body.(*icmp.Echo)
		if !ok || echo.Seq != seq {
			continue
		}

		rtt := time.Since(start).Milliseconds()
		size := int64(len(payload))
		result.DurationMS = &rtt
		result.Bytes = &size
		if cm != nil {
			ttl := int64(cm.TTL)
			result.TTL = &ttl
		}
		return result
	}
}

func (p *Prober) warn(target string, err error) {
	if p.logger != nil {
		p.logger.Warn("couldn't ping target", "target", target, "err", err)
	}
}
