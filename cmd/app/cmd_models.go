package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"spokestack-tray/internal/download"
)

var (
	refreshModels bool
	removeAll     bool
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Manage the local model cache",
}

var modelsFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download the configured NLU and wake-word models",
	Args:  cobra.NoArgs,
	RunE:  runModelsFetch,
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known model files and whether they are cached",
	Args:  cobra.NoArgs,
	RunE:  runModelsList,
}

var modelsRemoveCmd = &cobra.Command{
	Use:   "remove [id...]",
	Short: "Delete cached model files",
	Example: `  spokestack-tray models remove nlu vocab
  spokestack-tray models remove --all`,
	RunE: runModelsRemove,
}

func init() {
	modelsFetchCmd.Flags().BoolVar(&refreshModels, "refresh", false, "Download again even when cached")
	modelsRemoveCmd.Flags().BoolVar(&removeAll, "all", false, "Remove every cached model")

	modelsCmd.AddCommand(modelsFetchCmd, modelsListCmd, modelsRemoveCmd)
}

func runModelsFetch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	out := cmd.OutOrStdout()
	paths, err := app.FetchModels(ctx, refreshModels, func(id string, percent int) {
		fmt.Fprintf(out, "%-9s %3d%%\n", id, percent)
	})
	if err != nil {
		return err
	}
	for _, path := range paths {
		fmt.Fprintln(out, path)
	}
	return nil
}

func runModelsList(cmd *cobra.Command, args []string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	statuses, err := app.Models.Catalog()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tGROUP\tCACHED\tPATH")
	for _, status := range statuses {
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", status.ID, status.Group, status.Downloaded, status.LocalPath)
	}
	return w.Flush()
}

func runModelsRemove(cmd *cobra.Command, args []string) error {
	ids := args
	if removeAll {
		ids = append(download.GroupIDs(download.GroupNLU), download.GroupIDs(download.GroupWakeword)...)
	}
	if len(ids) == 0 {
		return fmt.Errorf("name at least one model id or pass --all")
	}
	for _, id := range ids {
		if _, ok := download.LookupArtifact(id); !ok {
			return fmt.Errorf("unknown model %q", id)
		}
	}

	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Models.Remove(ids...); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed %d model file(s)\n", len(ids))
	return nil
}
