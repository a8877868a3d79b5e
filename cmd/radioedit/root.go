package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yirzhou/radioedit/config"
	"github.com/yirzhou/radioedit/logging"
)

var (
	cfgFile string
	logger  = zap.NewNop()
	appCfg  *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "radioedit",
	Short: "Master radio show recordings",
	Long: `radioedit trims silence, normalizes loudness to a LUFS target,
keeps peaks under full scale and wraps each show in intro and outro
jingles. Jobs run on a pool of workers and can be canceled at any time.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		l, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
		if err != nil {
			return err
		}
		appCfg = cfg
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Path to a YAML config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
