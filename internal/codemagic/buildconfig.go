package codemagic

import (
	"errors"
	"fmt"

	"sigs.k8s.io/yaml"

	"github.com/cexll/gamegen/internal/game"
)

// Target is a mobile build target.
type Target string

const (
	TargetAndroid Target = "android"
	TargetIOS     Target = "ios"
)

// ErrUnsupportedTarget is returned for framework/target pairs without build scripts.
var ErrUnsupportedTarget = errors.New("unsupported build target")

// BuildConfig is the payload submitted to the builds endpoint.
type BuildConfig struct {
	AppID       string         `json:"appId"`
	Branch      string         `json:"branch"`
	Environment Environment    `json:"environment"`
	Scripts     []string       `json:"scripts"`
	Artifacts   []string       `json:"artifacts"`
	Publishing  Publishing     `json:"publishing"`
	Android     *AndroidConfig `json:"android,omitempty"`
	IOS         *IOSConfig     `json:"ios,omitempty"`
}

type Environment struct {
	Flutter string `json:"flutter"`
	Xcode   string `json:"xcode"`
	Node    string `json:"node"`
}

type Publishing struct {
	Email EmailPublishing `json:"email"`
}

type EmailPublishing struct {
	Recipients []string `json:"recipients"`
	Notify     Notify   `json:"notify"`
}

type Notify struct {
	Success bool `json:"success"`
	Failure bool `json:"failure"`
}

type AndroidConfig struct {
	Signing AndroidSigning `json:"signing"`
}

type AndroidSigning struct {
	Debug   bool           `json:"debug"`
	Release AndroidRelease `json:"release"`
}

type AndroidRelease struct {
	Keystore         string `json:"keystore,omitempty"`
	KeystorePassword string `json:"keystore_password,omitempty"`
	KeyAlias         string `json:"key_alias,omitempty"`
	KeyPassword      string `json:"key_password,omitempty"`
}

type IOSConfig struct {
	Signing IOSSigning `json:"signing"`
}

type IOSSigning struct {
	Certificate         string `json:"certificate,omitempty"`
	CertificatePassword string `json:"certificate_password,omitempty"`
	ProvisioningProfile string `json:"provisioning_profile,omitempty"`
}

// Signing holds code-signing material for both targets.
type Signing struct {
	AndroidKeystorePath     string
	AndroidKeystorePassword string
	AndroidKeyAlias         string
	AndroidKeyPassword      string

	IOSCertificatePath     string
	IOSCertificatePassword string
	IOSProvisioningProfile string
}

// BuildOptions describe one build request.
type BuildOptions struct {
	AppID      string
	Branch     string
	Framework  game.Platform
	Target     Target
	Recipients []string
	Signing    Signing
}

var buildScripts = map[game.Platform]map[Target][]string{
	game.PlatformFlutter: {
		TargetAndroid: {
			"flutter packages get",
			"flutter build apk --release",
			"flutter build appbundle --release",
		},
		TargetIOS: {
			"flutter packages get",
			"flutter build ios --release --no-codesign",
			"xcodebuild -workspace ios/Runner.xcworkspace -scheme Runner -configuration Release archive -archivePath build/Runner.xcarchive",
			"xcodebuild -exportArchive -archivePath build/Runner.xcarchive -exportPath build/ios -exportOptionsPlist ios/ExportOptions.plist",
		},
	},
	game.PlatformReactNative: {
		TargetAndroid: {
			"npm install",
			"cd android && ./gradlew assembleRelease",
			"cd android && ./gradlew bundleRelease",
		},
		TargetIOS: {
			"npm install",
			"cd ios && pod install",
			"xcodebuild -workspace ios/GameApp.xcworkspace -scheme GameApp -configuration Release archive -archivePath build/GameApp.xcarchive",
			"xcodebuild -exportArchive -archivePath build/GameApp.xcarchive -exportPath build/ios -exportOptionsPlist ios/ExportOptions.plist",
		},
	},
}

var artifactPaths = map[game.Platform]map[Target][]string{
	game.PlatformFlutter: {
		TargetAndroid: {
			"build/app/outputs/flutter-apk/app-release.apk",
			"build/app/outputs/bundle/release/app-release.aab",
		},
		TargetIOS: {"build/ios/*.ipa"},
	},
	game.PlatformReactNative: {
		TargetAndroid: {
			"android/app/build/outputs/apk/release/app-release.apk",
			"android/app/build/outputs/bundle/release/app-release.aab",
		},
		TargetIOS: {"build/ios/*.ipa"},
	},
}

// BuildScripts returns the script list for a framework and target.
func BuildScripts(framework game.Platform, target Target) ([]string, error) {
	scripts, ok := buildScripts[framework][target]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnsupportedTarget, framework, target)
	}
	return append([]string(nil), scripts...), nil
}

// ArtifactPaths returns the artifact globs for a framework and target.
func ArtifactPaths(framework game.Platform, target Target) []string {
	return append([]string(nil), artifactPaths[framework][target]...)
}

// NewBuildConfig assembles the build payload for opts.
func NewBuildConfig(opts BuildOptions) (*BuildConfig, error) {
	scripts, err := BuildScripts(opts.Framework, opts.Target)
	if err != nil {
		return nil, err
	}

	branch := opts.Branch
	if branch == "" {
		branch = "main"
	}

	cfg := &BuildConfig{
		AppID:  opts.AppID,
		Branch: branch,
		Environment: Environment{
			Flutter: "3.13.0",
			Xcode:   "latest",
			Node:    "18.17.0",
		},
		Scripts:   scripts,
		Artifacts: ArtifactPaths(opts.Framework, opts.Target),
		Publishing: Publishing{
			Email: EmailPublishing{
				Recipients: opts.Recipients,
				Notify:     Notify{Success: true, Failure: true},
			},
		},
	}

	switch opts.Target {
	case TargetAndroid:
		cfg.Android = &AndroidConfig{
			Signing: AndroidSigning{
				Debug: true,
				Release: AndroidRelease{
					Keystore:         opts.Signing.AndroidKeystorePath,
					KeystorePassword: opts.Signing.AndroidKeystorePassword,
					KeyAlias:         opts.Signing.AndroidKeyAlias,
					KeyPassword:      opts.Signing.AndroidKeyPassword,
				},
			},
		}
	case TargetIOS:
		cfg.IOS = &IOSConfig{
			Signing: IOSSigning{
				Certificate:         opts.Signing.IOSCertificatePath,
				CertificatePassword: opts.Signing.IOSCertificatePassword,
				ProvisioningProfile: opts.Signing.IOSProvisioningProfile,
			},
		}
	}

	return cfg, nil
}

// YAML renders the config as YAML using its JSON field names.
func (c *BuildConfig) YAML() ([]byte, error) {
	b, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode build config yaml: %w", err)
	}
	return b, nil
}
