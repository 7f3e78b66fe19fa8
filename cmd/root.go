package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/thomaspryor/broadwayscore/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "broadwayscore",
	Short: "Critic review aggregation and scoring",
	Long:  "Ingests critic reviews of Broadway shows, resolves critic and outlet identities, scores each review with a panel of language models and exposes one authoritative score per review.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
