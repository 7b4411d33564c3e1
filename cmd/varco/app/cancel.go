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
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/varcolabs/varco/pkg/errlog"
	"github.com/varcolabs/varco/pkg/scan"
)

type cancelFlags struct {
	server string
}

func NewCmdCancel() *cobra.Command {
	var f cancelFlags
	cmd := &cobra.Command{
		Use:   "cancel scan-id",
		Short: "Requests cancellation of a running scan",
		Run:   cancelScan(&f),
		Args:  cobra.ExactArgs(1),
	}
	AddServerFlag(&f.server, cmd.Flags())
	return cmd
}

func cancelScan(f *cancelFlags) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		api := newAPIClient(f.server)

		var status scan.Status
		if err := api.deleteJSON("/scans/"+args[0], &status); err != nil {
			errlog.LogError(err)
			os.Exit(1)
		}
		// Cancellation is cooperative; the scan winds down on its own time.
		fmt.Printf("Cancellation of scan %v requested (state %v)\n", status.ID, status.State)
	}
}
