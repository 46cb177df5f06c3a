package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/aegislink/internal/buildinfo"
	"github.com/dmitrijs2005/aegislink/internal/client/cli"
	"github.com/dmitrijs2005/aegislink/internal/client/config"
	"github.com/dmitrijs2005/aegislink/internal/cryptox"
	"github.com/dmitrijs2005/aegislink/internal/logging"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()

	cfg := config.LoadConfig()
	logger := logging.NewTextLogger(os.Stderr, cfg.LogLevel)

	// without a working cipher and RNG nothing else can run
	if _, err := cryptox.GenerateMasterKey(); err != nil {
		log.Fatalf("crypto self-test failed: %v", err)
	}

	app, err := cli.NewApp(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	app.Run(ctx)

}
