// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/callscope/pkg/ux"
	"github.com/AleutianAI/callscope/services/trace/config"
)

// errConfigExists is returned by "config init" without --force.
var errConfigExists = errors.New("config file already exists")

func (a *app) newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(a.newConfigInitCmd())
	return cmd
}

func (a *app) newConfigInitCmd() *cobra.Command {
	var (
		user  bool
		force bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the effective configuration to a file",
		Long: `Write the effective configuration, defaults plus any flags given, as YAML.

The file is <root>/.callscope.yaml, or ~/.callscope/config.yaml with --user.
An existing file is kept unless --force is set.`,
		Args: exactArgs(0),
		RunE: func(_ *cobra.Command, _ []string) error {
			path := config.ProjectPath(a.root)
			if user {
				var err error
				if path, err = config.UserPath(); err != nil {
					return err
				}
			}

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%w: %s (use --force to overwrite)", errConfigExists, path)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("stat %s: %w", path, err)
			}

			if err := config.Write(path, a.cfg); err != nil {
				return err
			}
			a.logger.Info("configuration written", slog.String("path", path))
			return a.emit(map[string]string{"path": path}, func(p *ux.Printer) {
				p.Success("wrote " + path)
			})
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&user, "user", false, "write the per-user file instead of the project file")
	flags.BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
