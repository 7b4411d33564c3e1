/*
Copyright the Varco contributors 2023

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package app

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/varcolabs/varco/pkg/client"
	"github.com/varcolabs/varco/pkg/config"
	"github.com/varcolabs/varco/pkg/errlog"
	"github.com/varcolabs/varco/pkg/server"
)

type serveFlags struct {
	configPath string
}

func NewCmdServe() *cobra.Command {
	var f serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Runs the varco scan API server until interrupted",
		Run:   runServe(&f),
		Args:  cobra.ExactArgs(0),
	}
	AddConfigFlag(&f.configPath, cmd.Flags())
	return cmd
}

func runServe(f *serveFlags) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		cfg, err := config.LoadConfig(f.configPath)
		if err != nil {
			errlog.LogError(errors.Wrap(err, "could not load config"))
			os.Exit(1)
		}

		c, err := client.NewVarcoClient(cfg)
		if err != nil {
			errlog.LogError(errors.Wrap(err, "could not create varco client"))
			os.Exit(1)
		}
		defer c.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv := server.New(c, cfg.BindAddr, cfg.ResultsDir)
		if err := srv.Start(ctx); err != nil {
			errlog.LogError(err)
			os.Exit(1)
		}
	}
}
