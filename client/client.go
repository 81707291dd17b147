// Package client is the sending side of a remote game client: it announces
// a player slot to the session host and streams that player's state.
package client

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/multispidey/spideysync/core"
	"github.com/multispidey/spideysync/markov"
	"github.com/multispidey/spideysync/messages"
)

type Config struct {
	// Loss probabilities of the simulated link, see markov.Conn.
	MarkovP float64
	MarkovQ float64
	// Registrations sent by Announce.
	Retransmissions int
	// Pause between two registrations or two state updates.
	Interval time.Duration
}

var DefaultConfig = Config{
	Retransmissions: 5,
	Interval:        500 * time.Millisecond,
}

type Client struct {
	conn net.Conn
	cfg  Config
	log  *zap.Logger
}

// Dial connects to the host at ip:port through a markov.Conn configured
// from cfg. A nil cfg uses DefaultConfig.
func Dial(ip net.IP, port int, cfg *Config, log *zap.Logger) (*Client, error) {
	if cfg == nil {
		cfg = &DefaultConfig
	}
	conn, err := markov.CreateClientSocket(ip, port, cfg.MarkovP, cfg.MarkovQ)
	if err != nil {
		return nil, fmt.Errorf("create client socket: %w", err)
	}
	return New(conn, *cfg, log), nil
}

// New sends over an already connected socket.
func New(conn net.Conn, cfg Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Retransmissions <= 0 {
		cfg.Retransmissions = 1
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig.Interval
	}
	return &Client{conn: conn, cfg: cfg, log: log.Named("client")}
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// Dropped is the number of datagrams lost on the simulated link, zero when
// the socket is not a markov.Conn.
func (c *Client) Dropped() uint64 {
	if mc, ok := c.conn.(*markov.Conn); ok {
		return mc.Dropped()
	}
	return 0
}

// Register sends one endpoint registration for slot.
func (c *Client) Register(slot core.PlayerSlot) error {
	if err := messages.Send(c.conn, messages.GetSpinAWeb(slot)); err != nil {
		return fmt.Errorf("send registration: %w", err)
	}
	c.log.Debug("registration sent", zap.Stringer("slot", slot))
	return nil
}

// SendState sends one state update for slot.
func (c *Client) SendState(slot core.PlayerSlot, level uint8, payload []byte) error {
	if err := messages.Send(c.conn, messages.GetSpiderman(slot, level, payload)); err != nil {
		return fmt.Errorf("send state: %w", err)
	}
	c.log.Debug("state sent",
		zap.Stringer("slot", slot),
		zap.Uint8("level", level),
		zap.Int("size", len(payload)),
	)
	return nil
}

// Announce sends the registration Retransmissions times, Interval apart.
// The host does not answer, so repeating is the only way to get past a
// lossy link.
func (c *Client) Announce(ctx context.Context, slot core.PlayerSlot) error {
	return c.repeat(ctx, c.cfg.Retransmissions, func() error {
		return c.Register(slot)
	})
}

// Stream sends count state updates, Interval apart. It stops early when ctx
// is done.
func (c *Client) Stream(ctx context.Context, slot core.PlayerSlot, level uint8, payload []byte, count int) error {
	return c.repeat(ctx, count, func() error {
		return c.SendState(slot, level, payload)
	})
}

func (c *Client) repeat(ctx context.Context, n int, send func() error) error {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()
	for i := 0; i < n; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
		if err := send(); err != nil {
			return err
		}
	}
	return nil
}
