package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/doclex/doclex/configs"
	"github.com/doclex/doclex/internal/config"
)

// telemetryPath places the query-telemetry database next to the index
// directory, so an auto-reindex wipe never takes the history with it.
func telemetryPath(indexPath string) string {
	return filepath.Join(filepath.Dir(indexPath), "telemetry.db")
}

// newConfigCmd creates the config command group.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show, validate, or initialize configuration",
	}
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigValidateCmd())
	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigBackupCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := loadConfig(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid.")
			return nil
		},
	}
}

func newConfigInitCmd() *cobra.Command {
	var force bool
	var project bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a commented configuration template",
		Long: `Write the user configuration template to ~/.config/doclex/config.yaml,
or with --project a .doclex.yaml template into the current directory.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var path, template string
			if project {
				wd, err := os.Getwd()
				if err != nil {
					return err
				}
				path = filepath.Join(wd, ".doclex.yaml")
				template = configs.ProjectConfigTemplate
			} else {
				path = config.GetUserConfigPath()
				template = configs.UserConfigTemplate
			}

			if _, err := os.Stat(path); err == nil && !force {
				return &configError{cause: fmt.Errorf("%s already exists (use --force to overwrite)", path)}
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(template), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	cmd.Flags().BoolVar(&project, "project", false, "Write a project-level .doclex.yaml instead")
	return cmd
}

func newConfigBackupCmd() *cobra.Command {
	var list bool
	var restore string

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Back up, list, or restore user configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			switch {
			case list:
				backups, err := config.ListUserConfigBackups()
				if err != nil {
					return err
				}
				if len(backups) == 0 {
					fmt.Fprintln(out, "No backups found.")
					return nil
				}
				for _, b := range backups {
					fmt.Fprintln(out, b)
				}
				return nil
			case restore != "":
				if err := config.RestoreUserConfig(restore); err != nil {
					return err
				}
				fmt.Fprintf(out, "Restored %s\n", restore)
				return nil
			default:
				path, err := config.BackupUserConfig()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Backed up to %s\n", path)
				return nil
			}
		},
	}

	cmd.Flags().BoolVar(&list, "list", false, "List existing backups")
	cmd.Flags().StringVar(&restore, "restore", "", "Restore the named backup")
	return cmd
}
