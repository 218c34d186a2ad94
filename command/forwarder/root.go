// Copyright 2022-2024 Sauce Labs Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package forwarder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/saucelabs/proxychain/bind"
	"github.com/saucelabs/proxychain/command/ready"
	"github.com/saucelabs/proxychain/command/run"
	"github.com/saucelabs/proxychain/internal/version"
	"github.com/saucelabs/proxychain/utils/cobrautil"
)

const (
	EnvPrefix          = "PROXYCHAIN"
	ConfigFileFlagName = "config-file"
)

func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proxychain",
		Short: "Programmable HTTP (forward) proxy server",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cobrautil.BindAll(cmd, EnvPrefix, ConfigFileFlagName)
		},
	}
	var configFile string
	bind.ConfigFile(cmd.PersistentFlags(), &configFile)
	cobrautil.AppendEnvToUsage(cmd, EnvPrefix)

	cmd.AddCommand(
		run.Command(),
		ready.Command(),
		versionCommand(),
	)

	return cmd
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprint(cmd.OutOrStdout(), version.Get().String())
			return err
		},
	}
}
