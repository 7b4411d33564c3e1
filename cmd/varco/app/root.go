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
	"github.com/spf13/cobra"

	"github.com/varcolabs/varco/pkg/errlog"
)

func NewVarcoCommand() *cobra.Command {
	cmds := &cobra.Command{
		Use:   "varco",
		Short: "Scan websites for WCAG accessibility violations",
		Long:  "Varco drives multiple accessibility scanners against a website and aggregates their findings into a single EAA compliance report",
		Run:   rootCmd,
	}

	cmds.ResetFlags()
	cmds.AddCommand(NewCmdRun())
	cmds.AddCommand(NewCmdServe())
	cmds.AddCommand(NewCmdStatus())
	cmds.AddCommand(NewCmdEvents())
	cmds.AddCommand(NewCmdResults())
	cmds.AddCommand(NewCmdCancel())
	cmds.AddCommand(NewCmdRetrieve())
	cmds.AddCommand(NewCmdCheck())
	cmds.AddCommand(NewCmdGen())
	cmds.AddCommand(NewCmdVersion())

	cmds.PersistentFlags().BoolVarP(&errlog.DebugOutput, "debug", "d", false, "Enable debug output (includes stack traces)")
	cmds.PersistentFlags().Var(&errlog.LogLevel, "level", "Log level. One of {panic, fatal, error, warn, info, debug, trace}")
	return cmds
}

func rootCmd(cmd *cobra.Command, args []string) {
	// Varco does nothing when not given a subcommand
	cmd.Help()
}
