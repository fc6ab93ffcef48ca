// Package main is the entry point for the rnaget CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is set at build time via ldflags.
var version = "dev"

// rootCmd is the base command for the rnaget CLI.
var rootCmd = &cobra.Command{
	Use:   "rnaget",
	Short: "Store and slice RNA expression matrices",
	Long: `rnaget converts per-sample quantification files into expression matrices
and serves slices of them as downloadable artifacts.

Matrices and artifacts live in a blob store (local directory, S3 or MinIO).
Expression IDs and issued tickets are kept in a SQLite catalog, so a ticket
returned by "query" can be fetched later with "download".`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./rnaget.yaml or ~/.config/rnaget/rnaget.yaml)")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "text", "log format: text or json")
	pf.String("store", "local", "blob store backend: local, s3 or minio")
	pf.String("root", "data", "root directory of the local store")
	pf.String("catalog", "", "catalog database (default: <root>/rnaget.db)")

	_ = viper.BindPFlag("log.level", pf.Lookup("log-level"))
	_ = viper.BindPFlag("log.format", pf.Lookup("log-format"))
	_ = viper.BindPFlag("store.backend", pf.Lookup("store"))
	_ = viper.BindPFlag("store.root", pf.Lookup("root"))
	_ = viper.BindPFlag("catalog.path", pf.Lookup("catalog"))

	viper.SetDefault("ticket.ttl", time.Hour)
	viper.SetDefault("ticket.compress", false)
	viper.SetDefault("store.prefix", "")
	viper.SetDefault("store.secure", true)
	viper.SetDefault("cache.bytes", int64(256<<20))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("rnaget")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "rnaget"))
		}
	}

	viper.SetEnvPrefix("RNAGET")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
