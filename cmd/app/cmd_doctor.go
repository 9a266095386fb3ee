package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var doctorJSON bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, connectivity and the model cache",
	Args:  cobra.NoArgs,
	RunE:  runDoctor,
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "Print the report as JSON")
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	report := app.Diagnose(ctx)
	out := cmd.OutOrStdout()
	if doctorJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		for _, item := range report.Items {
			fmt.Fprintf(out, "[%s] %s: %s\n", item.Status, item.Name, item.Message)
			if item.Hint != "" && !item.Status.Healthy() {
				fmt.Fprintf(out, "       %s\n", item.Hint)
			}
		}
	}

	if report.HasFailures {
		return errors.New("one or more checks failed")
	}
	return nil
}
