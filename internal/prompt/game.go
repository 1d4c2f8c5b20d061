package prompt

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/cexll/gamegen/internal/game"
)

// GamePromptTemplate is the completion prompt for a single-file game.
const GamePromptTemplate = `Generate a complete {{.Platform}} {{.GameType}} game based on this description: {{.Description}}.

Requirements:
{{- range .Requirements}}
- {{.}}
{{- end}}

Platform: {{.Platform}}
Game Type: {{.GameType}}`

// DefaultRequirements are listed in every game prompt.
var DefaultRequirements = []string{
	"Complete, runnable code",
	"Modern best practices",
	"Clean architecture",
	"Comments explaining key parts",
	"Error handling",
}

var gamePrompt = template.Must(template.New("game").Parse(GamePromptTemplate))

type gamePromptData struct {
	Platform     game.Platform
	GameType     string
	Description  string
	Requirements []string
}

// BuildGamePrompt renders the completion prompt for a validated request.
func BuildGamePrompt(req game.GenerationRequest) (string, error) {
	gameType := req.GameType
	if gameType == "" {
		gameType = game.DefaultGameType
	}

	var buf bytes.Buffer
	err := gamePrompt.Execute(&buf, gamePromptData{
		Platform:     req.Platform,
		GameType:     gameType,
		Description:  req.Description,
		Requirements: DefaultRequirements,
	})
	if err != nil {
		return "", fmt.Errorf("render game prompt: %w", err)
	}
	return buf.String(), nil
}
