// Package sink applies decoded player state to the monitored game.
package sink

import (
	"encoding/hex"

	"go.uber.org/zap"

	"github.com/multispidey/spideysync/core"
)

// Log is a core.TelemetrySink that only logs. It is used when no game
// process is attached.
type Log struct {
	log *zap.Logger
}

func NewLog(log *zap.Logger) *Log {
	return &Log{log: log.Named("sink")}
}

func (s *Log) WriteState(state core.PlayerState) error {
	if ce := s.log.Check(zap.DebugLevel, "player state"); ce != nil {
		ce.Write(
			zap.Stringer("slot", state.Slot),
			zap.String("level", state.Level.Name),
			zap.Int("offset", state.Offset),
			zap.Int("player_count", state.PlayerCount),
			zap.String("payload", hex.EncodeToString(state.Payload)),
		)
	}
	return nil
}
