package observer

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/multispidey/spideysync/core"
)

// Publisher is the part of *nats.Conn the NATS listener needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATS returns a listener publishing every event as JSON on subject.
// Publish failures are logged and otherwise ignored.
func NATS[E any](pub Publisher, subject string, log *zap.Logger) core.Observer[E] {
	log = log.Named("nats").With(zap.String("subject", subject))
	return core.ObserverFunc[E](func(event E) {
		data, err := json.Marshal(event)
		if err != nil {
			log.Error("encode event", zap.Error(err))
			return
		}
		if err := pub.Publish(subject, data); err != nil {
			log.Warn("publish event", zap.Error(err))
		}
	})
}

// Connect opens a NATS connection that keeps reconnecting for the lifetime
// of the process.
func Connect(url string, log *zap.Logger) (*nats.Conn, error) {
	log = log.Named("nats")
	nc, err := nats.Connect(url,
		nats.Name("spideysync"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats %s: %w", url, err)
	}
	return nc, nil
}
