// Package main provides the otto-run command, a one-shot workflow runner.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/ottoflow/otto/pkg/cmd"
	"github.com/ottoflow/otto/pkg/jsontree"
	"github.com/ottoflow/otto/pkg/log"
	"github.com/ottoflow/otto/pkg/models"
	"github.com/ottoflow/otto/pkg/parser"
	"github.com/ottoflow/otto/pkg/workflow"
)

func main() {
	logger := log.WithModule("run")

	cmdline := &cli.Command{
		Name:                  "otto-run",
		Usage:                 "Execute a workflow document and wait for it to finish",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "Path to the workflow document (JSON)",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "input",
				Aliases: []string{"i"},
				Usage:   "Execution input as a JSON document",
				Value:   "",
			},
			&cli.StringFlag{
				Name:  "repo",
				Usage: "Repository metadata as a JSON document",
				Value: "",
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL for persistence",
				Value:   "file://./data",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "plugins-path",
				Usage:    "Path to the directory containing tool plugins",
				Value:    "",
				Required: false,
				Sources:  cli.EnvVars("PLUGINS_PATH"),
			},
			&cli.StringFlag{
				Name:  "correlation-id",
				Usage: "Correlation ID attached to the execution",
				Value: "",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			document, err := os.ReadFile(command.String("file"))
			if err != nil {
				return fmt.Errorf("failed to read workflow document: %w", err)
			}

			definition, err := parser.NewParser().Parse(document)
			if err != nil {
				return err
			}

			input, err := decodeTree(command.String("input"))
			if err != nil {
				return fmt.Errorf("invalid input document: %w", err)
			}

			repoMeta, err := decodeTree(command.String("repo"))
			if err != nil {
				return fmt.Errorf("invalid repo document: %w", err)
			}

			registry := cmd.NewRegistry(logger, command.String("plugins-path"))

			repository := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				err := repository.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			executor := workflow.NewExecutor(registry, logger, workflow.WithRepository(repository))

			record, err := executor.Execute(ctx, definition, input, repoMeta, models.TriggerMetadata{
				TriggeredBy:   "cli",
				CorrelationID: command.String("correlation-id"),
			})
			if err != nil {
				return err
			}

			encoded, err := json.MarshalIndent(record, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode execution record: %w", err)
			}

			fmt.Println(string(encoded))

			if record.Status != models.ExecutionStatusCompleted {
				return fmt.Errorf("execution %s finished with status %s", record.ID, record.Status)
			}

			return nil
		},
	}

	err := cmdline.Run(context.Background(), os.Args)
	if err != nil {
		logger.Error("Execution failed", "error", err)
		os.Exit(1)
	}
}

func decodeTree(raw string) (jsontree.Value, error) {
	if raw == "" {
		return jsontree.Null(), nil
	}

	var value jsontree.Value

	err := value.UnmarshalJSON([]byte(raw))
	if err != nil {
		return jsontree.Null(), err
	}

	return value, nil
}
