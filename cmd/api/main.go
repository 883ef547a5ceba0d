package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/IANDYI/breeding-service/internal/adapters/repository"
	"github.com/IANDYI/breeding-service/internal/config"
	"github.com/IANDYI/breeding-service/internal/core/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "breeding-service",
		Short: "Reproductive protocol scheduling and event validation service",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(scheduleCmd())
	rootCmd.AddCommand(templateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger builds the process logger; unknown levels fall back to info
func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Str("service", "breeding-service").Logger()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the apply-request consumer",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return runServer(cfg, newLogger(cfg.LogLevel))
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.RequireDatabase(); err != nil {
				return err
			}
			logger := newLogger(cfg.LogLevel)

			db, err := config.ConnectDatabase(cfg.DatabaseURL, 5, 2*time.Second, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			return config.InitDatabase(cmd.Context(), db, cfg.DropTablesOnStartup, logger)
		},
	}
}

// templateFile is the JSON layout accepted by the schedule and template commands
type templateFile struct {
	ID       uuid.UUID     `json:"id"`
	Name     string        `json:"name"`
	Category string        `json:"category"`
	Steps    []domain.Step `json:"steps"`
}

func readTemplate(path string) (domain.ProtocolTemplate, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return domain.ProtocolTemplate{}, fmt.Errorf("failed to open template: %w", err)
		}
		defer f.Close()
		r = f
	}

	var tf templateFile
	if err := json.NewDecoder(r).Decode(&tf); err != nil {
		return domain.ProtocolTemplate{}, fmt.Errorf("failed to decode template: %w", err)
	}
	category, err := domain.ParseProtocolCategory(tf.Category)
	if err != nil {
		return domain.ProtocolTemplate{}, err
	}
	if tf.ID == uuid.Nil {
		tf.ID = uuid.New()
	}
	tmpl := domain.ProtocolTemplate{
		ID:       tf.ID,
		Name:     tf.Name,
		Category: category,
		Steps:    tf.Steps,
	}
	return tmpl, tmpl.Validate()
}

func scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule <template.json|->",
		Short: "Print the calendar of a protocol template for a start date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rawStart, _ := cmd.Flags().GetString("start")
			start, err := domain.ParseDate(rawStart)
			if err != nil {
				return err
			}
			tmpl, err := readTemplate(args[0])
			if err != nil {
				return err
			}

			schedule := domain.Instantiate(tmpl.Steps, start)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s) starting %s\n", tmpl.Name, tmpl.Category, start)
			for _, day := range schedule.Days() {
				if len(day.Steps) == 0 {
					continue
				}
				for _, s := range day.Steps {
					fmt.Fprintf(out, "D%-3d %s  %s\n", day.DayOffset, day.Date, s.Step.Label())
				}
			}
			return nil
		},
	}
	cmd.Flags().String("start", "", "Start date (YYYY-MM-DD)")
	cmd.MarkFlagRequired("start")
	return cmd
}

func templateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Manage protocol templates",
	}

	importCmd := &cobra.Command{
		Use:   "import <template.json|->",
		Short: "Store a protocol template for a farm",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rawFarm, _ := cmd.Flags().GetString("farm")
			farmID, err := uuid.Parse(rawFarm)
			if err != nil {
				return fmt.Errorf("invalid --farm: %w", err)
			}
			tmpl, err := readTemplate(args[0])
			if err != nil {
				return err
			}
			tmpl.FarmID = farmID

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.RequireDatabase(); err != nil {
				return err
			}
			logger := newLogger(cfg.LogLevel)

			db, err := config.ConnectDatabase(cfg.DatabaseURL, 5, 2*time.Second, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := repository.NewSQLRepository(db, cfg.Breaker()).CreateTemplate(ctx, tmpl); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported template %s (%s)\n", tmpl.ID, tmpl.Name)
			return nil
		},
	}
	importCmd.Flags().String("farm", "", "Farm ID owning the template")
	importCmd.MarkFlagRequired("farm")
	cmd.AddCommand(importCmd)

	return cmd
}
