package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cexll/gamegen/internal/artifact"
	"github.com/cexll/gamegen/internal/builder"
	"github.com/cexll/gamegen/internal/codemagic"
	"github.com/cexll/gamegen/internal/concurrency"
	"github.com/cexll/gamegen/internal/config"
	"github.com/cexll/gamegen/internal/costcontrol"
	"github.com/cexll/gamegen/internal/executor"
	"github.com/cexll/gamegen/internal/generator"
	"github.com/cexll/gamegen/internal/materializer"
	"github.com/cexll/gamegen/internal/provider"
	"github.com/cexll/gamegen/internal/publish"
	"github.com/cexll/gamegen/internal/taskstore"
)

// ProviderFactory creates the completion provider.
type ProviderFactory func(ctx context.Context, cfg *provider.Config) (provider.Provider, error)

// Services are the components shared by the server, CLI and MCP binaries.
// Codemagic, Builder and Artifacts are nil when builds are disabled;
// Publisher is nil when publishing is disabled.
type Services struct {
	Config    *config.Config
	Provider  provider.Provider
	Usage     *costcontrol.CallTracker
	Generator *generator.Generator
	Codemagic *codemagic.Client
	Builder   *builder.Builder
	Publisher *publish.Remote
	Artifacts *artifact.Store
	Locks     *concurrency.Manager
}

// New wires Services from cfg.
func New(ctx context.Context, cfg *config.Config, newProvider ProviderFactory) (*Services, error) {
	if newProvider == nil {
		newProvider = provider.NewProvider
	}

	p, err := newProvider(ctx, &provider.Config{
		Name:          cfg.Provider,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
		OpenAIModel:   cfg.OpenAIModel,
		GeminiAPIKey:  cfg.GeminiAPIKey,
		GeminiModel:   cfg.GeminiModel,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize AI provider: %w", err)
	}

	usage := costcontrol.NewCallTracker(cfg.DailyGenerationLimit, cfg.GenerationAlertThreshold)
	svc := &Services{
		Config:   cfg,
		Provider: p,
		Usage:    usage,
		Locks:    concurrency.NewManager(),
		Generator: generator.New(p,
			generator.WithWriter(materializer.NewWriter(cfg.OutputDir)),
			generator.WithLimiter(usage)),
	}

	if cfg.BuildsEnabled() {
		svc.Codemagic = codemagic.NewClient(cfg.CodemagicAPIURL, cfg.CodemagicAPIToken, nil)
		svc.Builder = builder.New(svc.Codemagic,
			builder.NewPoller(svc.Codemagic, cfg.BuildPollInterval, cfg.BuildMaxWait),
			builder.Settings{
				AppID:      cfg.CodemagicAppID,
				Recipients: cfg.BuildRecipients,
				Signing:    signing(cfg.Signing),
			})

		store, err := newArtifactStore(ctx, cfg, svc.Codemagic)
		if err != nil {
			return nil, err
		}
		svc.Artifacts = store
	}

	if cfg.PublishingEnabled() {
		svc.Publisher = &publish.Remote{
			Credentials: publish.Credentials{
				Token:      cfg.GitHubToken,
				AppID:      cfg.GitHubAppID,
				PrivateKey: cfg.GitHubPrivateKey,
			},
			Repo:       cfg.GitHubRepo,
			BaseBranch: cfg.GitHubBranch,
		}
	}

	zap.L().Info("services initialized",
		zap.String("provider", p.Name()),
		zap.Bool("builds", svc.Builder != nil),
		zap.Bool("publishing", svc.Publisher != nil),
		zap.Bool("s3", cfg.ArtifactS3Bucket != ""))
	return svc, nil
}

// NewExecutor creates the task executor for the configured services.
func (s *Services) NewExecutor(store *taskstore.Store) *executor.Executor {
	opts := []executor.Option{executor.WithBuildLocks(s.Locks)}
	if s.Publisher != nil {
		opts = append(opts, executor.WithPublisher(s.Publisher))
	}
	if s.Artifacts != nil {
		opts = append(opts, executor.WithArtifactStore(s.Artifacts))
	}
	// A nil *builder.Builder must not reach the interface.
	var b executor.Builder
	if s.Builder != nil {
		b = s.Builder
	}
	return executor.New(s.Generator, b, store, opts...)
}

func newArtifactStore(ctx context.Context, cfg *config.Config, dl artifact.Downloader) (*artifact.Store, error) {
	if cfg.ArtifactS3Bucket == "" {
		return artifact.NewStore(cfg.ArtifactDir, dl), nil
	}
	client, err := artifact.NewS3Client(ctx, artifact.S3Config{
		Region:    cfg.AWSRegion,
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
	})
	if err != nil {
		return nil, err
	}
	return artifact.NewStore(cfg.ArtifactDir, dl, artifact.WithS3(client, cfg.ArtifactS3Bucket, "builds")), nil
}

func signing(s config.Signing) codemagic.Signing {
	return codemagic.Signing{
		AndroidKeystorePath:     s.AndroidKeystorePath,
		AndroidKeystorePassword: s.AndroidKeystorePassword,
		AndroidKeyAlias:         s.AndroidKeyAlias,
		AndroidKeyPassword:      s.AndroidKeyPassword,
		IOSCertificatePath:      s.IOSCertificatePath,
		IOSCertificatePassword:  s.IOSCertificatePassword,
		IOSProvisioningProfile:  s.IOSProvisioningProfile,
	}
}
