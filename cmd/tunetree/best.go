package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tunetree/tunetree/pkg/adapters/disk"
	"github.com/tunetree/tunetree/pkg/automl"
	"github.com/tunetree/tunetree/pkg/metadata"
	"github.com/tunetree/tunetree/pkg/scope"
	"github.com/tunetree/tunetree/pkg/session"
)

var bestCmd = &cobra.Command{
	Use:   "best",
	Short: "Print the best trial of a client's round",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd)
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}
		if p, _ := cmd.Flags().GetString("project"); p != "" {
			cfg.Project = p
		}
		if c, _ := cmd.Flags().GetString("client"); c != "" {
			cfg.Client = c
		}
		if m, _ := cmd.Flags().GetString("metric"); m != "" {
			cfg.Metric = m
		}

		repo, err := disk.New(cfg.RepositoryDir)
		if err != nil {
			fmt.Printf("Error opening repository: %v\n", err)
			os.Exit(1)
		}

		ctx := cmd.Context()
		clientScope, err := automl.OpenClient(ctx, session.New(repo), cfg.Project, cfg.Client, "")
		if err != nil {
			fmt.Printf("Error opening client: %v\n", err)
			os.Exit(1)
		}

		roundNumber, _ := cmd.Flags().GetInt("round")
		var round *metadata.Round
		if roundNumber >= 0 {
			project := cfg.Project
			if project == "" {
				project = metadata.DefaultProject
			}
			loc, err := scope.New(project, clientScope.Client().Name, roundNumber)
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				os.Exit(1)
			}
			n, err := repo.Load(ctx, loc, true)
			if err != nil {
				fmt.Printf("Error loading round %d: %v\n", roundNumber, err)
				os.Exit(1)
			}
			round = n.(*metadata.Round)
		} else {
			roundScope, err := clientScope.ResumeLastRound(ctx)
			if err != nil {
				fmt.Printf("Error opening round: %v\n", err)
				os.Exit(1)
			}
			round, err = roundScope.Round(ctx)
			if err != nil {
				fmt.Printf("Error loading round: %v\n", err)
				os.Exit(1)
			}
		}

		metric := cfg.Metric
		if metric == "" {
			metric = clientScope.Client().MainMetricName
		}
		idx, trial, err := automl.BestTrial(round, metric)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		out := map[string]any{
			"round":       round.Number,
			"trial":       idx,
			"metric":      metric,
			"status":      trial.Status,
			"hyperparams": trial.Hyperparams,
		}
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(data))
	},
}

func init() {
	rootCmd.AddCommand(bestCmd)
	bestCmd.Flags().String("project", "", "Project name")
	bestCmd.Flags().String("client", "", "Client name")
	bestCmd.Flags().String("metric", "", "Metric used to rank trials")
	bestCmd.Flags().Int("round", -1, "Round number (default: the last round)")
}
