package main

import (
	"os"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/multispidey/spideysync/config"
)

var (
	app = kingpin.New("spideysync", "Multiplayer state relay between remote game clients and a local game process.")

	serveCmd    = app.Command("serve", "Host a session: accept registrations and state updates from remote players.")
	configFile  = serveCmd.Flag("config", "YAML configuration file.").Short('c').String()
	servePort   = serveCmd.Flag("port", "UDP port to listen on (overrides the configuration).").Short('t').Int()
	bindAddress = serveCmd.Flag("bind", "IP address to listen on (overrides the configuration).").String()
	levelsFile  = serveCmd.Flag("levels", "YAML level table (overrides the configuration).").ExistingFile()
	pid         = serveCmd.Flag("pid", "Game process to write player state into; selects the memory sink.").Int()
	natsURL     = serveCmd.Flag("nats", "Publish session events to this NATS server.").String()
	metricsAddr = serveCmd.Flag("metrics", "Serve prometheus metrics on this address, e.g. :9154.").String()
	logLevel    = serveCmd.Flag("log-level", "debug, info, warn or error.").Enum("debug", "info", "warn", "error")

	sendCmd  = app.Command("send", "Act as a remote player: register a slot and send state updates.")
	host     = sendCmd.Arg("host", "The session host (hostname or IPv4 address).").Required().ResolvedIP()
	slot     = sendCmd.Flag("slot", "Player slot, 2 to 8.").Required().Uint8()
	sendPort = sendCmd.Flag("port", "UDP port of the session host.").Short('t').Default("5154").Int()
	level    = sendCmd.Flag("level", "Level id reported with every state update.").Default("0").Uint8()
	payload  = sendCmd.Flag("payload", "State payload as hex.").Default("00").HexBytes()
	count    = sendCmd.Flag("count", "Number of state updates to send.").Default("10").Int()
	interval = sendCmd.Flag("interval", "Pause between two datagrams.").Default("500ms").Duration()
	markovP  = sendCmd.Flag("p", "Specify the loss probabilities for the Markov chain model.").Short('p').Default("0").Float64()
	markovQ  = sendCmd.Flag("q", "Specify the loss probabilities for the Markov chain model.").Short('q').Default("0").Float64()
)

func main() {
	app.HelpFlag.Short('h')

	var err error
	switch kingpin.MustParse(app.Parse(os.Args[1:])) {
	case serveCmd.FullCommand():
		err = runServe()
	case sendCmd.FullCommand():
		err = runSend()
	}
	app.FatalIfError(err, "")
}

// serveConfig layers the configuration file, SPIDEY_* environment and
// command line flags, in that order.
func serveConfig() (config.Config, error) {
	cfg, err := config.Load(*configFile)
	if err != nil {
		return cfg, err
	}
	if err := config.ApplyEnv(&cfg); err != nil {
		return cfg, err
	}

	if *servePort != 0 {
		cfg.Server.Port = *servePort
	}
	if *bindAddress != "" {
		cfg.Server.BindAddress = *bindAddress
	}
	if *levelsFile != "" {
		cfg.Levels.File = *levelsFile
	}
	if *pid != 0 {
		cfg.Sink.Kind = config.SinkMemory
		cfg.Sink.PID = *pid
	}
	if *natsURL != "" {
		cfg.Observers.NATSURL = *natsURL
	}
	if *metricsAddr != "" {
		cfg.Metrics.Address = *metricsAddr
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	return cfg, cfg.Validate()
}
