package builder

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cexll/gamegen/internal/codemagic"
	"github.com/cexll/gamegen/internal/game"
)

type fakeBuildClient struct {
	mu       sync.Mutex
	started  []*codemagic.BuildConfig
	startErr error
	status   func(buildID string) (*codemagic.Build, error)
}

func (f *fakeBuildClient) StartBuild(ctx context.Context, cfg *codemagic.BuildConfig) (*codemagic.StartedBuild, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.started = append(f.started, cfg)
	id := "build-android"
	if cfg.IOS != nil {
		id = "build-ios"
	}
	return &codemagic.StartedBuild{BuildID: id, Status: codemagic.StatusQueued}, nil
}

func (f *fakeBuildClient) GetBuildStatus(ctx context.Context, buildID string) (*codemagic.Build, error) {
	return f.status(buildID)
}

func finishedWith(url string) func(string) (*codemagic.Build, error) {
	return func(id string) (*codemagic.Build, error) {
		return &codemagic.Build{ID: id, Status: codemagic.StatusFinished, Artifacts: []codemagic.Artifact{{URL: url + "/" + id}}}, nil
	}
}

func newTestBuilder(client *fakeBuildClient) *Builder {
	clock := newFakeClock()
	p := NewPoller(nil, time.Second, time.Minute)
	p.now = clock.Now
	p.sleep = clock.Sleep
	return New(client, p, Settings{AppID: "app-1", Recipients: []string{"qa@example.com"}})
}

func TestBuildMobileApp(t *testing.T) {
	client := &fakeBuildClient{status: finishedWith("https://cdn")}
	b := newTestBuilder(client)

	res, err := b.BuildMobileApp(context.Background(), App{Name: "dodge", Framework: game.PlatformFlutter}, codemagic.TargetAndroid)
	require.NoError(t, err)
	assert.Equal(t, "build-android", res.BuildID)
	assert.Equal(t, "https://cdn/build-android", res.DownloadURL)
	assert.Equal(t, codemagic.TargetAndroid, res.Target)

	require.Len(t, client.started, 1)
	cfg := client.started[0]
	assert.Equal(t, "app-1", cfg.AppID)
	assert.Equal(t, []string{"qa@example.com"}, cfg.Publishing.Email.Recipients)
	assert.NotNil(t, cfg.Android)
}

func TestBuildMobileApp_WrapsErrors(t *testing.T) {
	t.Run("start failure", func(t *testing.T) {
		client := &fakeBuildClient{startErr: errors.New("quota exceeded")}
		_, err := newTestBuilder(client).BuildMobileApp(context.Background(), App{Framework: game.PlatformFlutter}, codemagic.TargetIOS)
		require.Error(t, err)
		assert.True(t, strings.HasPrefix(err.Error(), "mobile build failed: "))
		assert.Contains(t, err.Error(), "quota exceeded")
	})

	t.Run("unsupported framework", func(t *testing.T) {
		client := &fakeBuildClient{}
		_, err := newTestBuilder(client).BuildMobileApp(context.Background(), App{Framework: game.PlatformWeb}, codemagic.TargetAndroid)
		require.ErrorIs(t, err, codemagic.ErrUnsupportedTarget)
		assert.Empty(t, client.started)
	})

	t.Run("build failed", func(t *testing.T) {
		client := &fakeBuildClient{status: func(id string) (*codemagic.Build, error) {
			return &codemagic.Build{Status: codemagic.StatusFailed, Error: "signing"}, nil
		}}
		_, err := newTestBuilder(client).BuildMobileApp(context.Background(), App{Framework: game.PlatformFlutter}, codemagic.TargetAndroid)
		var failed *BuildFailedError
		require.ErrorAs(t, err, &failed)
		assert.Equal(t, "mobile build failed: build failed: signing", err.Error())
	})
}

func TestBuildTargets(t *testing.T) {
	client := &fakeBuildClient{status: finishedWith("https://cdn")}
	b := newTestBuilder(client)

	results, err := b.BuildTargets(context.Background(), App{Framework: game.PlatformReactNative},
		[]codemagic.Target{codemagic.TargetAndroid, codemagic.TargetIOS})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, codemagic.TargetAndroid, results[0].Target)
	assert.Equal(t, "build-android", results[0].BuildID)
	assert.Equal(t, codemagic.TargetIOS, results[1].Target)
	assert.Equal(t, "build-ios", results[1].BuildID)
}

func TestBuildTargets_FirstErrorWins(t *testing.T) {
	client := &fakeBuildClient{status: func(id string) (*codemagic.Build, error) {
		if id == "build-ios" {
			return &codemagic.Build{Status: codemagic.StatusCanceled}, nil
		}
		return &codemagic.Build{Status: codemagic.StatusFinished}, nil
	}}

	_, err := newTestBuilder(client).BuildTargets(context.Background(), App{Framework: game.PlatformFlutter},
		[]codemagic.Target{codemagic.TargetAndroid, codemagic.TargetIOS})
	var failed *BuildFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, codemagic.StatusCanceled, failed.Status)
}

func TestConfigUsesSettings(t *testing.T) {
	b := New(&fakeBuildClient{}, nil, Settings{
		AppID:   "app-7",
		Signing: codemagic.Signing{IOSCertificatePath: "/certs/dist.p12"},
	})

	cfg, err := b.Config(App{Framework: game.PlatformFlutter, Branch: "games/x"}, codemagic.TargetIOS)
	require.NoError(t, err)
	assert.Equal(t, "app-7", cfg.AppID)
	assert.Equal(t, "games/x", cfg.Branch)
	require.NotNil(t, cfg.IOS)
	assert.Equal(t, "/certs/dist.p12", cfg.IOS.Signing.Certificate)
}
