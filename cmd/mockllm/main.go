package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/yungtweek/mockllm/internal/config"
	mgrpc "github.com/yungtweek/mockllm/internal/grpc"
	"github.com/yungtweek/mockllm/internal/logger"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	if err := newRootCmd(config.LoadConfig()).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(cfg config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:          "mockllm",
		Short:        "Mock server for the OpenAI and Anthropic chat APIs",
		Version:      version,
		SilenceUsage: true,
	}
	root.AddCommand(newStartCmd(cfg), newValidateCmd())
	return root
}

func newStartCmd(cfg config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the mock server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := logger.Init(cfg.Profile, cfg.LogLevel); err != nil {
				return err
			}
			defer logger.Sync()
			mgrpc.UseZapLogger(logger.Desugar())

			cfg.ConfigFile = configFileFlag(cmd)
			if cfg.ResponseModule != "" && cfg.ConfigFile != "" {
				logger.Log.Warnw("[mockllm] --response-module overrides --config", "module", cfg.ResponseModule, "config", cfg.ConfigFile)
			}
			return run(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&cfg.ConfigFile, "config", "c", cfg.ConfigFile, "path to the responses YAML file")
	f.StringP("responses", "r", "", "path to the responses YAML file")
	_ = f.MarkDeprecated("responses", "use --config instead")
	f.StringVarP(&cfg.ResponseModule, "response-module", "m", cfg.ResponseModule, "name of a registered response callback")
	f.StringVar(&cfg.ResolverAddr, "resolver-addr", cfg.ResolverAddr, "address of a remote mockllm.v1.Resolver")
	f.StringVar(&cfg.Host, "host", cfg.Host, "host to bind to")
	f.IntVarP(&cfg.Port, "port", "p", cfg.Port, "HTTP port")
	f.IntVar(&cfg.GRPCPort, "grpc-port", cfg.GRPCPort, "gRPC resolver port (0 disables)")
	f.IntVar(&cfg.ChunkSize, "chunk-size", cfg.ChunkSize, "streaming chunk size in characters (0 streams single characters)")
	return cmd
}

// configFileFlag returns the config path for start. An explicit --responses
// beats the environment but not an explicit --config.
func configFileFlag(cmd *cobra.Command) string {
	f := cmd.Flags()
	path, _ := f.GetString("config")
	if f.Changed("responses") && !f.Changed("config") {
		path, _ = f.GetString("responses")
	}
	return path
}
