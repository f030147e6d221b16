package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	cfgpkg "github.com/KaramelBytes/riskloom-cli/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set riskloom configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if cfg == nil {
			fmt.Fprintln(out, "No config loaded")
			return nil
		}
		fmt.Fprintf(out, "data_dir: %s\n", cfg.DataDir)
		fmt.Fprintf(out, "models_dir: %s\n", cfg.ModelsDir)
		fmt.Fprintf(out, "logs_dir: %s\n", cfg.LogsDir)
		fmt.Fprintf(out, "debug: %t\n", cfg.Debug)
		fmt.Fprintf(out, "dashboard_addr: %s\n", cfg.DashboardAddr)
		fmt.Fprintf(out, "boosting_enabled: %t\n", cfg.BoostingEnabled)
		fmt.Fprintf(out, "forest_trees: %d\n", cfg.ForestTrees)
		fmt.Fprintf(out, "random_seed: %d\n", cfg.RandomSeed)
		fmt.Fprintf(out, "test_size: %.3f\n", cfg.TestSize)
		fmt.Fprintf(out, "artifact_backend: %s\n", cfg.ArtifactBackend)
		if cfg.ArtifactBackend == "minio" {
			fmt.Fprintf(out, "minio_endpoint: %s\n", cfg.MinioEndpoint)
			fmt.Fprintf(out, "minio_bucket: %s\n", cfg.MinioBucket)
			fmt.Fprintf(out, "minio_secure: %t\n", cfg.MinioSecure)
			fmt.Fprintf(out, "minio_access_key: %s\n", mask(cfg.MinioAccessKey))
			fmt.Fprintf(out, "minio_secret_key: %s\n", mask(cfg.MinioSecretKey))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		if cfg == nil {
			c, err := cfgpkg.Load(cfgFile)
			if err != nil && cfgFile != "" {
				// a new config file starts from the defaults
				if _, statErr := os.Stat(cfgFile); errors.Is(statErr, fs.ErrNotExist) {
					c, err = cfgpkg.Load("")
				}
			}
			if err != nil {
				return err
			}
			cfg = c
		}
		next := *cfg
		switch key {
		case "data_dir":
			next.DataDir = val
		case "models_dir":
			next.ModelsDir = val
		case "logs_dir":
			next.LogsDir = val
		case "debug":
			next.Debug = cfgpkg.Truthy(val)
		case "dashboard_addr":
			next.DashboardAddr = val
		case "boosting_enabled":
			next.BoostingEnabled = cfgpkg.Truthy(val)
		case "forest_trees":
			i, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("invalid int for forest_trees: %w", err)
			}
			next.ForestTrees = i
		case "random_seed":
			i, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid int for random_seed: %w", err)
			}
			next.RandomSeed = i
		case "test_size":
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return fmt.Errorf("invalid float for test_size: %w", err)
			}
			next.TestSize = f
		case "artifact_backend":
			next.ArtifactBackend = strings.ToLower(val)
		case "minio_endpoint":
			next.MinioEndpoint = val
		case "minio_access_key":
			next.MinioAccessKey = val
		case "minio_secret_key":
			next.MinioSecretKey = val
		case "minio_bucket":
			next.MinioBucket = val
		case "minio_secure":
			next.MinioSecure = cfgpkg.Truthy(val)
		default:
			return fmt.Errorf("unknown key: %s", key)
		}
		if err := next.Validate(); err != nil {
			return err
		}
		if err := cfgpkg.Save(&next, cfgFile); err != nil {
			return err
		}
		cfg = &next
		fmt.Fprintln(cmd.OutOrStdout(), "Saved config")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 6 {
		return "******"
	}
	return s[:3] + "****" + s[len(s)-3:]
}
