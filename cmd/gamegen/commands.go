package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cexll/gamegen/internal/codemagic"
	"github.com/cexll/gamegen/internal/game"
	"github.com/cexll/gamegen/internal/taskstore"
)

func newGenerateCmd(deps cliDeps) *cobra.Command {
	var req game.GenerationRequest
	var platform string

	command := &cobra.Command{
		Use:   "generate <description>",
		Short: "Generate a game and write its files to OUTPUT_DIR",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := deps.loadServices(cmd.Context())
			if err != nil {
				return err
			}
			req.Description = strings.Join(args, " ")
			req.Platform = game.Platform(platform)

			result, err := svc.Generator.Generate(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Generated %s game %s\n", result.Platform, result.ID)
			if result.OutputDir != "" {
				_, _ = fmt.Fprintf(out, "Output: %s\n", result.OutputDir)
			}
			for _, name := range result.FileNames() {
				_, _ = fmt.Fprintf(out, "  %s\n", name)
			}
			return nil
		},
	}

	command.Flags().StringVarP(&platform, "platform", "p", string(game.PlatformWeb), "flutter, react-native, unity or web")
	command.Flags().StringVarP(&req.GameType, "type", "t", "", "game type hint, defaults to arcade")
	return command
}

func newBuildCmd(deps cliDeps) *cobra.Command {
	var platform string
	var gameType string
	var targets []string

	command := &cobra.Command{
		Use:   "build <description>",
		Short: "Generate a mobile game and build it for each target",
		Long: `Generate a mobile game and build it for each target.

Files are committed to GITHUB_REPO first when publishing is configured.
The command blocks until every build reaches a terminal state.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := deps.loadServices(cmd.Context())
			if err != nil {
				return err
			}
			if svc.Builder == nil {
				return errBuildsDisabled
			}

			task := &taskstore.Task{
				ID: "cli",
				Request: game.GenerationRequest{
					Description: strings.Join(args, " "),
					Platform:    game.Platform(platform),
					GameType:    gameType,
				},
			}
			for _, t := range targets {
				task.Targets = append(task.Targets, codemagic.Target(t))
			}

			store := taskstore.NewStore()
			store.Create(task)
			task.Attempt = 1
			if err := svc.NewExecutor(store).Execute(cmd.Context(), task); err != nil {
				return err
			}

			done, _ := store.Get(task.ID)
			return writeJSON(cmd.OutOrStdout(), done.Result)
		},
	}

	command.Flags().StringVarP(&platform, "platform", "p", string(game.PlatformFlutter), "flutter or react-native")
	command.Flags().StringVarP(&gameType, "type", "t", "", "game type hint, defaults to arcade")
	command.Flags().StringSliceVar(&targets, "targets", []string{string(codemagic.TargetAndroid)}, "build targets (android, ios)")
	return command
}

func newStatusCmd(deps cliDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "status <build-id>",
		Short: "Show the status of a Codemagic build",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := codemagicClient(cmd, deps)
			if err != nil {
				return err
			}
			build, err := client.GetBuildStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), build)
		},
	}
}

func newCancelCmd(deps cliDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <build-id>",
		Short: "Cancel a running Codemagic build",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := codemagicClient(cmd, deps)
			if err != nil {
				return err
			}
			res, err := client.CancelBuild(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			return err
		},
	}
}

func newBuildsCmd(deps cliDeps) *cobra.Command {
	var limit int
	var format string

	command := &cobra.Command{
		Use:   "builds",
		Short: "List recent Codemagic builds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != "text" && format != "json" {
				return fmt.Errorf("--format must be text or json")
			}
			client, err := codemagicClient(cmd, deps)
			if err != nil {
				return err
			}
			builds, err := client.ListBuilds(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if format == "json" {
				return writeJSON(cmd.OutOrStdout(), builds)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "ID\tSTATUS\tBRANCH\tARTIFACTS")
			for _, b := range builds {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", b.ID, b.Status, b.Branch, len(b.Artifacts))
			}
			return tw.Flush()
		},
	}

	command.Flags().IntVar(&limit, "limit", codemagic.DefaultListLimit, "maximum number of builds")
	command.Flags().StringVar(&format, "format", "text", "output format: text or json")
	return command
}

func newDownloadCmd(deps cliDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "download <build-id>",
		Short: "Download the primary artifact of a finished build into ARTIFACT_DIR",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := deps.loadServices(cmd.Context())
			if err != nil {
				return err
			}
			if svc.Codemagic == nil || svc.Artifacts == nil {
				return errBuildsDisabled
			}

			build, err := svc.Codemagic.GetBuildStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if build.Status != codemagic.StatusFinished {
				return fmt.Errorf("build %s is %s, not finished", build.ID, build.Status)
			}
			if len(build.Artifacts) == 0 {
				return fmt.Errorf("build %s has no artifacts", build.ID)
			}

			stored, err := svc.Artifacts.Fetch(cmd.Context(), build.Artifacts[0].URL, build.ID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Saved %s (%d bytes)\n", stored.Path, stored.Size)
			if stored.Location != "" {
				_, _ = fmt.Fprintf(out, "Uploaded to %s\n", stored.Location)
			}
			return nil
		},
	}
}

func codemagicClient(cmd *cobra.Command, deps cliDeps) (*codemagic.Client, error) {
	svc, err := deps.loadServices(cmd.Context())
	if err != nil {
		return nil, err
	}
	if svc.Codemagic == nil {
		return nil, errBuildsDisabled
	}
	return svc.Codemagic, nil
}
