package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/alnah/go-mdrender/internal/config"
	"github.com/alnah/go-mdrender/internal/fileutil"
	"github.com/alnah/go-mdrender/internal/yamlutil"
)

// ErrConfigExists is returned by config init when the file exists.
var ErrConfigExists = errors.New("config file already exists")

// defaultConfigFile is written by config init without an argument.
const defaultConfigFile = "mdrender.yaml"

func configCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Long: `Print the configuration after layering the config file and MDRENDER_*
environment variables over the defaults.`,
		Args: cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			data, err := yamlutil.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = a.deps.Stdout.Write(data)
			return err
		},
	}

	cmd.AddCommand(configPathsCmd(a), configInitCmd(a))
	return cmd
}

func configPathsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "paths [name]",
		Short: "List where a config name is searched",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			name := a.configName()
			if len(args) == 1 {
				name = args[0]
			}
			if name == "" {
				return fmt.Errorf("%w: pass a config name or set --config", ErrUsage)
			}
			if fileutil.IsFilePath(name) {
				fmt.Fprintln(a.deps.Stdout, name)
				return nil
			}
			for _, p := range config.SearchPaths(name) {
				marker := " "
				if fileutil.FileExists(p) {
					marker = "*"
				}
				fmt.Fprintf(a.deps.Stdout, "%s %s\n", marker, p)
			}
			return nil
		},
	}
}

func configInitCmd(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a config file with the default settings",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			path := defaultConfigFile
			if len(args) == 1 {
				path = args[0]
			}
			if ext := filepath.Ext(path); ext != ".yaml" && ext != ".yml" {
				return fmt.Errorf("%w: config file must end in .yaml or .yml", ErrUsage)
			}
			if fileutil.FileExists(path) && !force {
				return fmt.Errorf("%w: %s (use --force to overwrite)", ErrConfigExists, path)
			}

			data, err := yamlutil.Marshal(config.DefaultConfig())
			if err != nil {
				return err
			}
			if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", path, err)
			}
			if !a.quiet {
				fmt.Fprintf(a.deps.Stdout, "Created %s\n", path)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}
