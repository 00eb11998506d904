package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/chopstar001/chat-intent-bridge/internal/conf"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// cli carries state shared by every subcommand
type cli struct {
	cfg *conf.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "intent-bridge",
		Short:         "Coalesce chat fragments and decide when the assistant should speak",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.load()
		},
	}

	root.AddCommand(c.newServeCmd(), c.newClassifyCmd(), c.newMCPCmd())
	return root
}

// load reads .env, the environment and the prompts file, then sets up logging
func (c *cli) load() error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return err
	}

	cfg, err := conf.LoadFromEnv()
	if err != nil {
		return err
	}
	conf.SetupLogging(cfg.Log)
	if err := cfg.ValidateCore(); err != nil {
		log.Error().Str("component", "cli").Err(err).Msg("invalid config")
		return err
	}
	c.cfg = cfg
	return nil
}
