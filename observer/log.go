package observer

import (
	"go.uber.org/zap"

	"github.com/multispidey/spideysync/core"
)

// Log returns a listener writing every event to log at info level.
func Log[E any](log *zap.Logger, msg string) core.Observer[E] {
	return core.ObserverFunc[E](func(event E) {
		log.Info(msg, zap.Any("event", event))
	})
}
