package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	svcinit "github.com/axondata/go-svcinit"
)

// defaultStateFile is read when neither a flag nor the config names one
const defaultStateFile = "/run/svcinit/state.yaml"

func newStatusCmd() *cobra.Command {
	var (
		configPath string
		stateFile  string
		output     string
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of every service",
		Long: `status reads the state file written by a running supervisor and prints
one line per service.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := stateFile
			if path == "" {
				cfg, err := svcinit.LoadConfig(configPath)
				if err != nil {
					return err
				}
				path = cfg.StateFile
			}
			if path == "" {
				path = defaultStateFile
			}

			statuses, err := svcinit.ReadStateFile(path)
			if err != nil {
				return fmt.Errorf("reading state file: %w", err)
			}

			switch output {
			case "yaml":
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				defer enc.Close()
				return enc.Encode(statuses)
			case "table":
				renderStatus(cmd.OutOrStdout(), statuses, time.Now())
				return nil
			default:
				return fmt.Errorf("unknown output format %q", output)
			}
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to the configuration file")
	cmd.Flags().StringVar(&stateFile, "state-file", "", "State file to read (default from config)")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table or yaml")
	return cmd
}

func renderStatus(w io.Writer, statuses []svcinit.ServiceStatus, now time.Time) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"SERVICE", "STATE", "SINCE", "PID", "PROVIDES", "ERROR"})

	for _, st := range statuses {
		pid := "-"
		if st.PID > 0 {
			pid = strconv.Itoa(st.PID)
		}
		since := "-"
		if !st.Since.IsZero() {
			since = now.Sub(st.Since).Truncate(time.Second).String()
		}
		t.AppendRow(table.Row{
			st.Name,
			stateColor(st.State).Sprint(st.State),
			since,
			pid,
			fmt.Sprint(st.Provides),
			st.LastError,
		})
	}

	t.Render()
}

func stateColor(s svcinit.State) text.Colors {
	switch s {
	case svcinit.StateOnline:
		return text.Colors{text.FgGreen}
	case svcinit.StateFailed:
		return text.Colors{text.FgRed}
	default:
		return text.Colors{text.FgYellow}
	}
}
