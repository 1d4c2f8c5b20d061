package publish

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	gh "github.com/google/go-github/v66/github"
	"sigs.k8s.io/yaml"

	"github.com/cexll/gamegen/internal/codemagic"
	"github.com/cexll/gamegen/internal/game"
)

func testResult() *game.GenerationResult {
	return &game.GenerationResult{
		ID:        "abcdef0123456789",
		Platform:  game.PlatformFlutter,
		GameType:  "arcade",
		Files:     map[string]string{"lib/main.dart": "void main() {}", "pubspec.yaml": "name: g\n"},
		Status:    game.StatusGenerated,
		Timestamp: time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC),
	}
}

func newTestClient(t *testing.T, mux *http.ServeMux) *gh.Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := gh.NewClient(srv.Client())
	base, _ := url.Parse(srv.URL + "/")
	client.BaseURL = base
	return client
}

func TestPublish_CreatesBranchAndCommits(t *testing.T) {
	branch := "games/flutter-20240203T040506Z-abcdef01"
	var treeEntries []map[string]any
	var updatedSHA string
	var createdRef string

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/r/git/ref/heads/"+branch, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/repos/o/r/git/refs/heads/"+branch, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			http.NotFound(w, r)
			return
		}
		var body struct {
			SHA string `json:"sha"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		updatedSHA = body.SHA
		_ = json.NewEncoder(w).Encode(map[string]any{"ref": "refs/heads/" + branch})
	})
	mux.HandleFunc("/repos/o/r/git/ref/heads/main", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ref": "refs/heads/main", "object": map[string]any{"sha": "base-sha"}})
	})
	mux.HandleFunc("/repos/o/r/git/refs", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Ref string `json:"ref"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		createdRef = body.Ref
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"ref": body.Ref})
	})
	mux.HandleFunc("/repos/o/r/git/commits/base-sha", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"sha": "base-sha", "tree": map[string]any{"sha": "tree-sha"}})
	})
	mux.HandleFunc("/repos/o/r/git/trees", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			BaseTree string           `json:"base_tree"`
			Tree     []map[string]any `json:"tree"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.BaseTree != "tree-sha" {
			http.Error(w, "base tree "+body.BaseTree, http.StatusBadRequest)
			return
		}
		treeEntries = body.Tree
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"sha": "new-tree-sha"})
	})
	mux.HandleFunc("/repos/o/r/git/commits", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"sha": "new-commit-sha"})
	})

	pub, err := NewPublisher(newTestClient(t, mux), "o/r", "")
	if err != nil {
		t.Fatalf("NewPublisher() error = %v", err)
	}

	cfg, err := codemagic.NewBuildConfig(codemagic.BuildOptions{AppID: "app", Framework: game.PlatformFlutter, Target: codemagic.TargetAndroid})
	if err != nil {
		t.Fatalf("NewBuildConfig() error = %v", err)
	}

	commit, err := pub.Publish(context.Background(), testResult(), map[codemagic.Target]*codemagic.BuildConfig{codemagic.TargetAndroid: cfg})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if commit.SHA != "new-commit-sha" || commit.Branch != branch {
		t.Fatalf("commit = %+v", commit)
	}
	if createdRef != "refs/heads/"+branch {
		t.Errorf("created ref = %s", createdRef)
	}
	if updatedSHA != "new-commit-sha" {
		t.Errorf("ref updated to %s", updatedSHA)
	}
	if cfg.Branch != branch {
		t.Errorf("build config branch = %s, want %s", cfg.Branch, branch)
	}

	paths := make([]string, 0, len(treeEntries))
	for _, e := range treeEntries {
		paths = append(paths, e["path"].(string))
	}
	if strings.Join(paths, ",") != "lib/main.dart,pubspec.yaml,codemagic.yaml" {
		t.Errorf("tree paths = %v", paths)
	}
}

func TestNewPublisher_InvalidRepo(t *testing.T) {
	if _, err := NewPublisher(gh.NewClient(nil), "bad", "main"); err == nil {
		t.Fatal("expected error")
	}
}

func TestWorkflowYAML(t *testing.T) {
	android, _ := codemagic.NewBuildConfig(codemagic.BuildOptions{AppID: "a", Framework: game.PlatformFlutter, Target: codemagic.TargetAndroid})
	ios, _ := codemagic.NewBuildConfig(codemagic.BuildOptions{AppID: "a", Framework: game.PlatformFlutter, Target: codemagic.TargetIOS})

	out, err := WorkflowYAML(game.PlatformFlutter, map[codemagic.Target]*codemagic.BuildConfig{
		codemagic.TargetAndroid: android,
		codemagic.TargetIOS:     ios,
	})
	if err != nil {
		t.Fatalf("WorkflowYAML() error = %v", err)
	}

	var doc workflowFile
	if err := yaml.Unmarshal(out, &doc); err != nil {
		t.Fatalf("yaml.Unmarshal() error = %v", err)
	}
	if len(doc.Workflows) != 2 {
		t.Fatalf("workflows = %v", doc.Workflows)
	}
	if doc.Workflows["flutter-ios"] == nil || doc.Workflows["flutter-ios"].IOS == nil {
		t.Errorf("flutter-ios workflow missing ios signing")
	}
	if doc.Workflows["flutter-android"].Android == nil {
		t.Errorf("flutter-android workflow missing android signing")
	}
}

func TestRemote_PublishUsesToken(t *testing.T) {
	var auth string
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/r/git/ref/", func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		http.Error(w, `{"message":"boom"}`, http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	remote := &Remote{
		Credentials: Credentials{Token: "ghp_test", BaseURL: srv.URL},
		Repo:        "o/r",
	}
	_, err := remote.Publish(context.Background(), testResult(), nil)
	if err == nil {
		t.Fatal("expected error from failing API")
	}
	if auth != "Bearer ghp_test" {
		t.Fatalf("Authorization = %q", auth)
	}
}
