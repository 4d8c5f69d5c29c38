package main

import (
	"log"
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/vibewaybusiness-oss/chatflow/remote"
	"github.com/vibewaybusiness-oss/chatflow/runtime"
)

func main() {
	cfg := runtime.DefaultConfig()
	if path := configPath(); path != "" {
		loaded, err := runtime.LoadConfig(path)
		if err != nil {
			log.Fatalf("Error loading config: %v", err)
		}
		cfg = loaded
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	var defs runtime.DefinitionSource
	if cfg.DefinitionsURL != "" {
		defs = remote.NewDefinitionClient(cfg.DefinitionsURL, cfg.RequestTimeout())
	} else if cfg.DefinitionsDir != "" {
		defs = remote.NewLocalSource(cfg.DefinitionsDir)
	} else {
		log.Fatal("Either definitions_url or definitions_dir must be configured")
	}

	gen := remote.NewGeneratorClient(cfg.GeneratorURL, cfg.FeedbackURL, cfg.RequestTimeout())

	g := gin.Default()
	runtime.NewHTTPHandler(cfg, logger, defs, gen, g)

	if err := g.Run(cfg.Addr); err != nil {
		log.Fatalf("Error running server: %v", err)
	}
}

func configPath() string {
	if path := os.Getenv("CHATFLOW_CONFIG"); path != "" {
		return path
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	return ""
}
