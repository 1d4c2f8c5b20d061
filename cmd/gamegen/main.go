package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/cexll/gamegen/internal/app"
	"github.com/cexll/gamegen/internal/config"
	"github.com/cexll/gamegen/internal/logging"
)

var version = "dev"

var errBuildsDisabled = errors.New("mobile builds are not configured (set CODEMAGIC_API_TOKEN and CODEMAGIC_APP_ID)")

type cliDeps struct {
	loadServices func(ctx context.Context) (*app.Services, error)
}

func defaultDeps() cliDeps {
	return cliDeps{loadServices: loadServices}
}

func loadServices(ctx context.Context) (*app.Services, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if _, err := logging.Setup(cfg.LogLevel, "console"); err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, nil)
}

func main() {
	if err := newRootCmd(defaultDeps()).Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(deps cliDeps) *cobra.Command {
	root := &cobra.Command{
		Use:           "gamegen",
		Short:         "Generate games with an AI model and build them on Codemagic",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}

	root.AddCommand(
		newGenerateCmd(deps),
		newBuildCmd(deps),
		newStatusCmd(deps),
		newCancelCmd(deps),
		newBuildsCmd(deps),
		newDownloadCmd(deps),
	)
	return root
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
