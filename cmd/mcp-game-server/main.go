package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/cexll/gamegen/internal/app"
	"github.com/cexll/gamegen/internal/config"
	"github.com/cexll/gamegen/internal/logging"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[MCP Game Server] Invalid configuration: %v", err)
	}

	// zap writes to stderr; stdout carries the MCP transport.
	flush, err := logging.Setup(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("[MCP Game Server] %v", err)
	}
	defer flush()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svc, err := app.New(ctx, cfg, nil)
	if err != nil {
		log.Fatalf("[MCP Game Server] %v", err)
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "gamegen",
		Version: "v1.0.0",
	}, nil)

	tools := &Tools{Generator: svc.Generator}
	if svc.Codemagic != nil {
		tools.Builds = svc.Codemagic
	}
	tools.Register(server)

	zap.L().Info("starting MCP game server on stdio",
		zap.String("provider", svc.Provider.Name()),
		zap.Bool("builds", tools.Builds != nil))
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		zap.L().Error("server error", zap.Error(err))
		flush()
		os.Exit(1)
	}
	zap.L().Info("server stopped gracefully")
}
