package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"quiz-leaderboard-service/internal/config"
	"quiz-leaderboard-service/internal/domain"
)

// reseedFile is the YAML document accepted by `reseed --file`.
type reseedFile struct {
	Entries []domain.Entry `yaml:"entries"`
}

// NewReseedCmd rebuilds one book's leaderboard from a list of attempts.
func NewReseedCmd(configPath *string) *cobra.Command {
	var bookID, file string
	cmd := &cobra.Command{
		Use:   "reseed",
		Short: "Replace a book's leaderboard with the best attempts from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := loadReseedEntries(file)
			if err != nil {
				return err
			}

			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			deps, err := buildDependencies(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer deps.Close()

			slots, err := deps.service.Reseed(cmd.Context(), bookID, entries)
			if err != nil {
				return err
			}
			logger.Info("book reseeded", zap.String("book_id", bookID), zap.Int("entries", len(entries)), zap.Int("slots", len(slots)))
			for _, s := range slots {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\t%s\t%s\n", s.Rank, s.SubmitterID, s.DisplayName, s.Tier, s.Difficulty)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&bookID, "book", "", "book to reseed")
	cmd.Flags().StringVar(&file, "file", "", "YAML file with an entries list")
	_ = cmd.MarkFlagRequired("book")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func loadReseedEntries(path string) ([]domain.Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc reseedFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc.Entries, nil
}
