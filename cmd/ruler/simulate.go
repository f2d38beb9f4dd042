package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zeusync/ruler/internal/script"
)

var printFrame bool

var simulateCmd = &cobra.Command{
	Use:   "simulate [script.yaml]",
	Short: "Run a scenario script without a host",
	Long: `Run a YAML scenario of grab, pose and tick steps against a fresh tool and
check its expectations. Exits non-zero on the first failed step.`,
	Args: cobra.ExactArgs(1),
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().BoolVar(&printFrame, "print-frame", false, "print the final visual tree as JSON")
}

func runSimulate(cmd *cobra.Command, args []string) (err error) {
	s, err := script.LoadFile(args[0])
	if err != nil {
		return err
	}
	app, err := loadApp()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(); err == nil {
			err = cerr
		}
	}()

	out := cmd.OutOrStdout()
	rep, runErr := app.Runner().Run(s)
	name := rep.Name
	if name == "" {
		name = args[0]
	}
	fmt.Fprintf(out, "Scenario: %s\n", name)
	fmt.Fprintf(out, "Steps:    %d/%d\n", rep.Steps, len(s.Steps))
	fmt.Fprintf(out, "Frame:    %d\n", rep.Frame)
	fmt.Fprintf(out, "State:    %s\n", rep.State)
	if rep.Shown {
		fmt.Fprintf(out, "Readout:  %s\n", rep.Label)
	} else {
		fmt.Fprintln(out, "Readout:  none")
	}
	if printFrame {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(app.Tool.Render()); err != nil {
			return err
		}
	}
	return runErr
}
