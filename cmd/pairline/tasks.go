package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/pairline/internal/pipeline"
	"github.com/ShayCichocki/pairline/pkg/models"
)

var (
	tasksPRD     string
	tasksCount   int
	tasksFormat  string
	tasksProject string
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Turn a PRD into a scored task list",
	Long: `Decompose a product requirements document into a dependency-ordered
task list. Every task gets a complexity score; complex tasks are expanded
into subtasks.

Examples:
  pairline tasks --prd docs/prd.md -n 8
  pairline tasks --prd - --format yaml < prd.md`,
	RunE: runTasks,
}

func init() {
	tasksCmd.Flags().StringVar(&tasksPRD, "prd", "", "PRD file, or - for stdin (required)")
	tasksCmd.Flags().IntVarP(&tasksCount, "num-tasks", "n", 0, "number of tasks (default pipeline.default_tasks)")
	tasksCmd.Flags().StringVar(&tasksFormat, "format", "text", "output format: text, json or yaml")
	tasksCmd.Flags().StringVar(&tasksProject, "project", "", "project name recorded in the metadata")
	_ = tasksCmd.MarkFlagRequired("prd")
}

func runTasks(cmd *cobra.Command, args []string) error {
	switch tasksFormat {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("unknown format %q: want text, json or yaml", tasksFormat)
	}

	prd, err := readPRD(cmd.InOrStdin(), tasksPRD)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	n := tasksCount
	if n == 0 {
		n = cfg.Pipeline.DefaultTasks
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	pipe := pipeline.New(client,
		pipeline.WithExpandConcurrency(cfg.Pipeline.ExpandConcurrency),
		pipeline.WithExpandThreshold(cfg.Pipeline.ExpandThreshold),
		pipeline.WithLogger(logger),
	)
	list, err := pipe.Run(ctx, prd, n, tasksProject)
	if err != nil {
		return fmt.Errorf("generate tasks: %w", err)
	}

	return writeTaskList(cmd.OutOrStdout(), list, tasksFormat, cfg.Pipeline.ExpandThreshold)
}

func readPRD(stdin io.Reader, path string) (string, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read PRD: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", fmt.Errorf("PRD %s is empty", path)
	}
	return string(data), nil
}

// writeTaskList renders list in format. threshold marks complex tasks in
// the text summary.
func writeTaskList(w io.Writer, list *models.TaskList, format string, threshold float64) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(list); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	default:
		printTaskSummary(w, list, threshold)
		return nil
	}
}

func printTaskSummary(w io.Writer, list *models.TaskList, threshold float64) {
	bold := color.New(color.Bold)
	dim := color.New(color.FgHiBlack)
	red := color.New(color.FgRed)

	meta := list.Metadata
	bold.Fprintf(w, "%s: %d tasks, %d complex\n\n", meta.ProjectName, meta.TotalTasks, meta.ComplexTasks)

	for _, t := range list.Tasks {
		score := fmt.Sprintf("%.1f", t.ComplexityScore)
		if t.ComplexityScore > threshold {
			score = red.Sprint(score)
		}
		fmt.Fprintf(w, "%2d. %s %s (complexity %s)\n", t.ID, priorityColor(t.Priority).Sprintf("[%s]", t.Priority), t.Title, score)
		if len(t.Dependencies) > 0 {
			deps := make([]string, len(t.Dependencies))
			for i, d := range t.Dependencies {
				deps[i] = fmt.Sprint(d)
			}
			dim.Fprintf(w, "    depends on %s\n", strings.Join(deps, ", "))
		}
		for _, st := range t.Subtasks {
			fmt.Fprintf(w, "    %s %s\n", dim.Sprint(st.ID), st.Title)
		}
		if t.SubtaskError != "" {
			red.Fprintf(w, "    subtasks unavailable: %s\n", t.SubtaskError)
		}
	}
}

func priorityColor(p models.Priority) *color.Color {
	switch p {
	case models.PriorityHigh:
		return color.New(color.FgRed)
	case models.PriorityLow:
		return color.New(color.FgGreen)
	default:
		return color.New(color.FgYellow)
	}
}
