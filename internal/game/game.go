package game

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Platform identifies the target framework of a generated game.
type Platform string

const (
	PlatformFlutter     Platform = "flutter"
	PlatformReactNative Platform = "react-native"
	PlatformUnity       Platform = "unity"
	PlatformWeb         Platform = "web"
)

// DefaultGameType is used when a request does not name a game type.
const DefaultGameType = "arcade"

var supportedPlatforms = []Platform{
	PlatformFlutter,
	PlatformReactNative,
	PlatformUnity,
	PlatformWeb,
}

var (
	// ErrUnsupportedPlatform is returned for platforms outside SupportedPlatforms.
	ErrUnsupportedPlatform = errors.New("platform not supported")
	// ErrMissingDescription is returned when a request has no description.
	ErrMissingDescription = errors.New("description is required")
)

// SupportedPlatforms returns a copy of the fixed platform list.
func SupportedPlatforms() []Platform {
	out := make([]Platform, len(supportedPlatforms))
	copy(out, supportedPlatforms)
	return out
}

// IsSupported reports whether p is one of the supported platforms.
func IsSupported(p Platform) bool {
	for _, s := range supportedPlatforms {
		if s == p {
			return true
		}
	}
	return false
}

func supportedList() string {
	names := make([]string, len(supportedPlatforms))
	for i, p := range supportedPlatforms {
		names[i] = string(p)
	}
	return strings.Join(names, ", ")
}

// Status is the outcome of a generation.
type Status string

const (
	StatusGenerated Status = "generated"
	StatusFailed    Status = "failed"
)

// GenerationRequest is the user input for a game generation.
type GenerationRequest struct {
	Description string   `json:"description"`
	Platform    Platform `json:"platform"`
	GameType    string   `json:"gameType,omitempty"`
}

// Validate checks the platform and description and fills in the default game type.
// It never performs I/O.
func (r *GenerationRequest) Validate() error {
	if !IsSupported(r.Platform) {
		return fmt.Errorf("%w: %s (supported: %s)", ErrUnsupportedPlatform, r.Platform, supportedList())
	}
	if strings.TrimSpace(r.Description) == "" {
		return ErrMissingDescription
	}
	if strings.TrimSpace(r.GameType) == "" {
		r.GameType = DefaultGameType
	}
	return nil
}

// GenerationResult is the materialized output of a generation.
type GenerationResult struct {
	ID          string            `json:"id"`
	Platform    Platform          `json:"platform"`
	GameType    string            `json:"gameType"`
	Description string            `json:"description"`
	Files       map[string]string `json:"files"`
	Status      Status            `json:"status"`
	Timestamp   time.Time         `json:"timestamp"`
	OutputDir   string            `json:"outputDir,omitempty"`
}

// FileNames returns the result's file names sorted.
func (r *GenerationResult) FileNames() []string {
	names := make([]string, 0, len(r.Files))
	for name := range r.Files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
