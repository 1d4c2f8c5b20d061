package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/cexll/gamegen/internal/codemagic"
	"github.com/cexll/gamegen/internal/game"
)

// GameGenerator produces games.
type GameGenerator interface {
	Generate(ctx context.Context, req game.GenerationRequest) (*game.GenerationResult, error)
}

// BuildStatusGetter reads provider builds.
type BuildStatusGetter interface {
	GetBuildStatus(ctx context.Context, buildID string) (*codemagic.Build, error)
}

// GenerateGameParams defines the input of generate_game.
type GenerateGameParams struct {
	Description string `json:"description" jsonschema:"What the game is about and how it plays"`
	Platform    string `json:"platform" jsonschema:"One of flutter, react-native, unity, web"`
	GameType    string `json:"gameType,omitempty" jsonschema:"Genre hint, defaults to arcade"`
}

// BuildStatusParams defines the input of get_build_status.
type BuildStatusParams struct {
	BuildID string `json:"buildId" jsonschema:"Codemagic build identifier"`
}

// Tools implements the MCP tool handlers.
type Tools struct {
	Generator GameGenerator
	Builds    BuildStatusGetter
}

type generatedGame struct {
	ID        string        `json:"id"`
	Platform  game.Platform `json:"platform"`
	OutputDir string        `json:"outputDir,omitempty"`
	Files     []string      `json:"files"`
}

// HandleGenerateGame handles the generate_game tool call.
func (t *Tools) HandleGenerateGame(
	ctx context.Context,
	req *mcp.CallToolRequest,
	params GenerateGameParams,
) (*mcp.CallToolResult, any, error) {
	if params.Description == "" {
		return nil, nil, fmt.Errorf("description parameter is required")
	}
	if params.Platform == "" {
		return nil, nil, fmt.Errorf("platform parameter is required")
	}

	result, err := t.Generator.Generate(ctx, game.GenerationRequest{
		Description: params.Description,
		Platform:    game.Platform(params.Platform),
		GameType:    params.GameType,
	})
	if err != nil {
		zap.L().Error("generate_game failed", zap.Error(err))
		return errorResult(err), nil, nil
	}

	files := make([]string, 0, len(result.Files))
	for name := range result.Files {
		files = append(files, name)
	}
	sort.Strings(files)

	return jsonResult(generatedGame{
		ID:        result.ID,
		Platform:  result.Platform,
		OutputDir: result.OutputDir,
		Files:     files,
	})
}

// HandleBuildStatus handles the get_build_status tool call.
func (t *Tools) HandleBuildStatus(
	ctx context.Context,
	req *mcp.CallToolRequest,
	params BuildStatusParams,
) (*mcp.CallToolResult, any, error) {
	if params.BuildID == "" {
		return nil, nil, fmt.Errorf("buildId parameter is required")
	}
	if t.Builds == nil {
		return errorResult(fmt.Errorf("mobile builds are not configured")), nil, nil
	}

	build, err := t.Builds.GetBuildStatus(ctx, params.BuildID)
	if err != nil {
		zap.L().Error("get_build_status failed", zap.String("build_id", params.BuildID), zap.Error(err))
		return errorResult(err), nil, nil
	}
	return jsonResult(build)
}

// Register adds the tools to server. get_build_status is only registered
// when builds are configured.
func (t *Tools) Register(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "generate_game",
		Description: "Generate a complete game for a platform from a natural-language description",
	}, t.HandleGenerateGame)

	if t.Builds != nil {
		mcp.AddTool(server, &mcp.Tool{
			Name:        "get_build_status",
			Description: "Get the status and artifacts of a Codemagic build",
		}, t.HandleBuildStatus)
	}
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("encode result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(b)}},
	}, nil, nil
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("Error: %v", err)}},
		IsError: true,
	}
}
