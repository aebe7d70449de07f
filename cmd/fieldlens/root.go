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
	"github.com/spf13/cobra"

	"github.com/AleutianAI/FieldLens/services/fieldlens/config"
)

// rootOptions hold the persistent flag values.
type rootOptions struct {
	envFiles []string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "fieldlens",
		Short:         "Read-only field-service reporting",
		Long:          "FieldLens answers reporting questions about technicians, jobs, revenue and recalls from a read-only field-service API tenant.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", config.DefaultEnvFiles,
		".env files loaded before the environment is read (missing files are skipped)")

	root.AddCommand(
		newServeCmd(opts),
		newToolsCmd(),
		newRunCmd(opts),
		newCheckAuthCmd(opts),
		newAuditCmd(opts),
	)
	return root
}
