package main

import (
	"context"
	"log"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"trellis/internal/app"
	"trellis/pkg/config"
	"trellis/pkg/logger"
	"trellis/pkg/shutdown"
)

// build metadata - set via ldflags during build/release
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	_ = godotenv.Load(".env")
	addrVal, dbVal, cfgVal, setFlags := config.ParseCommandFlags()

	cfgPath := config.ResolveConfigPath(cfgVal, setFlags["config"])
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// flags win over env/config
	if setFlags["addr"] {
		host, port, ok := strings.Cut(addrVal, ":")
		if !ok {
			log.Fatalf("invalid -addr %q: want host:port", addrVal)
		}
		p, err := strconv.Atoi(port)
		if err != nil {
			log.Fatalf("invalid -addr port %q: %v", port, err)
		}
		cfg.Server.Address = host
		cfg.Server.Port = p
	}
	if setFlags["db"] {
		cfg.Storage.DBPath = dbVal
	}

	logger.InitWithLevel(cfg.Logging.Level)

	a, err := app.New(cfg, version, commit, buildDate)
	if err != nil {
		shutdown.Abort("startup failed", err, cfg.Storage.DBPath)
	}

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	if err := a.Run(ctx); err != nil {
		shutdown.Abort("server exited", err, cfg.Storage.DBPath)
	}
}
