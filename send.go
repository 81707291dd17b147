package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"go.uber.org/zap"

	"github.com/multispidey/spideysync/client"
	"github.com/multispidey/spideysync/config"
	"github.com/multispidey/spideysync/core"
	"github.com/multispidey/spideysync/logging"
	"github.com/multispidey/spideysync/markov"
	"github.com/multispidey/spideysync/messages"
)

func runSend() error {
	if !markov.ValidProbabilities(*markovP, *markovQ) {
		return fmt.Errorf("p and/or q values for the markov chain are invalid")
	}
	if err := validateSend(*slot, *payload); err != nil {
		return err
	}

	logCfg := config.Default().Logging
	logCfg.Level = "debug"
	log, err := logging.New(logCfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	cfg := client.DefaultConfig
	cfg.MarkovP = *markovP
	cfg.MarkovQ = *markovQ
	cfg.Interval = *interval

	c, err := client.Dial(*host, *sendPort, &cfg, log)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s := core.PlayerSlot(*slot)
	log.Info("announcing",
		zap.Stringer("slot", s),
		zap.Stringer("host", *host),
		zap.Int("port", *sendPort),
		zap.Stringer("local", c.LocalAddr()),
	)
	if err := c.Announce(ctx, s); err != nil {
		return err
	}
	if err := c.Stream(ctx, s, *level, *payload, *count); err != nil {
		return err
	}
	log.Info("done", zap.Uint64("dropped", c.Dropped()))
	return nil
}

// validateSend rejects what the host would drop as undecodable.
func validateSend(slot uint8, payload []byte) error {
	switch {
	case slot <= uint8(core.HostSlot):
		return fmt.Errorf("slot %d is reserved for the host", slot)
	case slot > messages.MaxSlot:
		return fmt.Errorf("slot %d is above the last slot %d", slot, messages.MaxSlot)
	case len(payload) == 0:
		return fmt.Errorf("payload cannot be empty")
	case len(payload) > messages.MaxPayloadSize:
		return fmt.Errorf("payload of %d bytes exceeds %d", len(payload), messages.MaxPayloadSize)
	}
	return nil
}
