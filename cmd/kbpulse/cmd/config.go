package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/kbpulse/configs"
	"github.com/Aman-CERP/kbpulse/internal/config"
	kberrors "github.com/Aman-CERP/kbpulse/internal/errors"
)

const projectConfigName = ".kbpulse.yaml"

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage kbpulse configuration files.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/kbpulse/config.yaml)
  3. Project config (.kbpulse.yaml)
  4. Environment variables (KBPULSE_*)`,
		Example: `  # Create user config from template
  kbpulse config init

  # Create .kbpulse.yaml in the project directory
  kbpulse config init --project

  # Show effective configuration
  kbpulse config show --json`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force, project bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file from the template",
		Long: `Create the user configuration file, or with --project the
.kbpulse.yaml file in the project directory. An existing file is only
replaced with --force, after a timestamped backup.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, template := config.GetUserConfigPath(), configs.UserConfigTemplate
			if project {
				path, template = filepath.Join(projectDir, projectConfigName), configs.ProjectConfigTemplate
			}
			return runConfigInit(cmd, path, template, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file (a backup is kept)")
	cmd.Flags().BoolVar(&project, "project", false, "Write .kbpulse.yaml in the project directory")

	return cmd
}

func runConfigInit(cmd *cobra.Command, path, template string, force bool) error {
	p := newPrinter(cmd)

	if _, err := os.Stat(path); err == nil {
		if !force {
			p.Warning("Configuration already exists")
			p.Info("Location: " + path)
			p.Info("Use --force to replace it (a backup is kept)")
			return nil
		}
		backup, err := config.BackupFile(path)
		if err != nil {
			return err
		}
		p.Info("Backup: " + backup)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(template), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	p.Success("Created configuration")
	p.Info("Location: " + path)
	p.Info("Run 'kbpulse config show' to verify")
	return nil
}

func newConfigShowCmd() *cobra.Command {
	var (
		jsonOutput bool
		source     string
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show configuration",
		Long: `Show the effective configuration after merging all sources, the
built-in defaults, or the raw user or project file.`,
		Example: `  kbpulse config show
  kbpulse config show --json
  kbpulse config show --source project`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShow(cmd, jsonOutput, source)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&source, "source", "merged", "Config source: merged, defaults, user, project")

	return cmd
}

func runConfigShow(cmd *cobra.Command, jsonOutput bool, source string) error {
	var cfg *config.Config
	switch source {
	case "merged":
		loaded, err := loadConfig()
		if err != nil {
			return err
		}
		cfg = loaded
	case "defaults":
		cfg = config.NewConfig()
	case "user", "project":
		path := config.GetUserConfigPath()
		if source == "project" {
			path = config.ProjectConfigPath(projectDir)
		}
		data, err := os.ReadFile(path)
		if path == "" || err != nil {
			return kberrors.New(kberrors.ErrCodeConfigNotFound, source+" configuration not found", err).
				WithDetail("path", path).
				WithSuggestion("Create one with `kbpulse config init`")
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	default:
		return kberrors.ValidationError("unknown config source", nil).
			WithDetail("source", source).
			WithSuggestion("Use one of: merged, defaults, user, project")
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	}
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	defer func() { _ = enc.Close() }()
	return enc.Encode(cfg)
}

func newConfigPathCmd() *cobra.Command {
	var project bool

	cmd := &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := config.GetUserConfigPath()
			if project {
				path = filepath.Join(projectDir, projectConfigName)
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), path)
			return err
		},
	}

	cmd.Flags().BoolVar(&project, "project", false, "Print the project config path instead")

	return cmd
}
