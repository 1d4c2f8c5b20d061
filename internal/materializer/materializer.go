package materializer

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/cexll/gamegen/internal/game"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templateCache sync.Map

// MetadataFile is written next to the generated files.
const MetadataFile = "metadata.json"

// Layout is the fixed file set for a platform. CodeFile receives the generated code.
type Layout struct {
	CodeFile string
	Files    []string
}

var layouts = map[game.Platform]Layout{
	game.PlatformFlutter:     {CodeFile: "lib/main.dart", Files: []string{"lib/main.dart", "pubspec.yaml"}},
	game.PlatformReactNative: {CodeFile: "App.js", Files: []string{"App.js", "package.json"}},
	game.PlatformUnity:       {CodeFile: "GameManager.cs", Files: []string{"GameManager.cs"}},
	game.PlatformWeb:         {CodeFile: "game.js", Files: []string{"index.html", "game.js", "style.css"}},
}

// LayoutFor returns the file layout for p.
func LayoutFor(p game.Platform) (Layout, error) {
	l, ok := layouts[p]
	if !ok {
		return Layout{}, fmt.Errorf("%w: %s", game.ErrUnsupportedPlatform, p)
	}
	return l, nil
}

// Options tune the generated manifests and web scaffolding.
type Options struct {
	Title      string
	GameType   string
	Width      int
	Height     int
	Background string
}

func (o Options) withDefaults() Options {
	if o.Width <= 0 {
		o.Width = 800
	}
	if o.Height <= 0 {
		o.Height = 600
	}
	return o
}

// Files builds the platform's file set around the generated code. An empty
// code string for react-native falls back to the bundled starter App.js.
func Files(p game.Platform, code string, opts Options) (map[string]string, error) {
	layout, err := LayoutFor(p)
	if err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	files := make(map[string]string, len(layout.Files))
	switch p {
	case game.PlatformFlutter:
		pubspec, err := FlutterPubspec()
		if err != nil {
			return nil, err
		}
		files["lib/main.dart"] = code
		files["pubspec.yaml"] = pubspec
	case game.PlatformReactNative:
		if code == "" {
			code, err = renderTemplate("App.js.tmpl", opts)
			if err != nil {
				return nil, err
			}
		}
		pkg, err := ReactNativePackageJSON()
		if err != nil {
			return nil, err
		}
		files["App.js"] = code
		files["package.json"] = pkg
	case game.PlatformUnity:
		files["GameManager.cs"] = code
	case game.PlatformWeb:
		html, err := renderTemplate("index.html.tmpl", opts)
		if err != nil {
			return nil, err
		}
		css, err := renderTemplate("style.css.tmpl", opts)
		if err != nil {
			return nil, err
		}
		files["index.html"] = html
		files["game.js"] = code
		files["style.css"] = css
	}
	return files, nil
}

type pubspec struct {
	Name            string            `yaml:"name"`
	Description     string            `yaml:"description"`
	Version         string            `yaml:"version"`
	Environment     map[string]string `yaml:"environment"`
	Dependencies    map[string]any    `yaml:"dependencies"`
	DevDependencies map[string]any    `yaml:"dev_dependencies"`
	Flutter         map[string]any    `yaml:"flutter"`
}

// FlutterPubspec renders pubspec.yaml for a Flame based game.
func FlutterPubspec() (string, error) {
	spec := pubspec{
		Name:        "ai_generated_game",
		Description: "AI Generated Flutter Game",
		Version:     "1.0.0+1",
		Environment: map[string]string{"sdk": ">=3.0.0 <4.0.0"},
		Dependencies: map[string]any{
			"flutter": map[string]string{"sdk": "flutter"},
			"flame":   "^1.10.0",
		},
		DevDependencies: map[string]any{
			"flutter_test": map[string]string{"sdk": "flutter"},
		},
		Flutter: map[string]any{"uses-material-design": true},
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(spec); err != nil {
		return "", fmt.Errorf("encode pubspec: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("encode pubspec: %w", err)
	}
	return buf.String(), nil
}

type packageJSON struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Dependencies map[string]string `json:"dependencies"`
}

// ReactNativePackageJSON renders package.json for a react-native-game-engine app.
func ReactNativePackageJSON() (string, error) {
	pkg := packageJSON{
		Name:    "AIGeneratedGame",
		Version: "1.0.0",
		Dependencies: map[string]string{
			"react":                    "^18.2.0",
			"react-native":             "^0.72.0",
			"react-native-game-engine": "^1.2.0",
		},
	}
	b, err := json.MarshalIndent(pkg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode package.json: %w", err)
	}
	return string(b), nil
}

func renderTemplate(name string, data any) (string, error) {
	tmpl, err := loadTemplate(name)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

func loadTemplate(name string) (*template.Template, error) {
	if cached, ok := templateCache.Load(name); ok {
		return cached.(*template.Template), nil
	}
	content, err := templateFS.ReadFile("templates/" + name)
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", name, err)
	}
	// JSX uses {{ }} for object literals.
	tmpl, err := template.New(name).
		Delims("[[", "]]").
		Funcs(sprig.TxtFuncMap()).
		Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}
	actual, _ := templateCache.LoadOrStore(name, tmpl)
	return actual.(*template.Template), nil
}

// Metadata is persisted as metadata.json beside the generated files.
type Metadata struct {
	ID          string        `json:"id"`
	Platform    game.Platform `json:"platform"`
	GameType    string        `json:"gameType"`
	Description string        `json:"description"`
	Status      game.Status   `json:"status"`
	Timestamp   time.Time     `json:"timestamp"`
	Files       []string      `json:"files"`
}

// Writer persists generation results under a root directory.
type Writer struct {
	root string
}

// NewWriter creates a Writer rooted at dir.
func NewWriter(dir string) *Writer {
	return &Writer{root: dir}
}

// Root returns the directory results are written under.
func (w *Writer) Root() string {
	return w.root
}

// Write stores result's files in a new timestamped directory and returns its path.
func (w *Writer) Write(result *game.GenerationResult) (string, error) {
	if result == nil {
		return "", fmt.Errorf("write result: result is nil")
	}

	dir := filepath.Join(w.root, DirName(result))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	names := result.FileNames()
	for _, name := range names {
		if !filepath.IsLocal(name) {
			return "", fmt.Errorf("refusing to write non-local path %q", name)
		}
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", fmt.Errorf("create dir for %s: %w", name, err)
		}
		if err := os.WriteFile(path, []byte(result.Files[name]), 0o644); err != nil {
			return "", fmt.Errorf("write %s: %w", name, err)
		}
	}

	meta := Metadata{
		ID:          result.ID,
		Platform:    result.Platform,
		GameType:    result.GameType,
		Description: result.Description,
		Status:      result.Status,
		Timestamp:   result.Timestamp,
		Files:       names,
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, MetadataFile), b, 0o644); err != nil {
		return "", fmt.Errorf("write metadata: %w", err)
	}

	zap.L().Info("generated files written",
		zap.String("dir", dir),
		zap.String("platform", string(result.Platform)),
		zap.Int("files", len(names)))
	return dir, nil
}

// DirName is "<platform>-<UTC timestamp>[-<id prefix>]".
func DirName(result *game.GenerationResult) string {
	name := fmt.Sprintf("%s-%s", result.Platform, result.Timestamp.UTC().Format("20060102T150405Z"))
	if id := result.ID; id != "" {
		if len(id) > 8 {
			id = id[:8]
		}
		name += "-" + id
	}
	return name
}

// ReadMetadata loads metadata.json from a directory produced by Write.
func ReadMetadata(dir string) (*Metadata, error) {
	b, err := os.ReadFile(filepath.Join(dir, MetadataFile))
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(b, &meta); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &meta, nil
}
