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
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/varcolabs/varco/pkg/errlog"
	"github.com/varcolabs/varco/pkg/scan"
)

type statusFlags struct {
	server string
	state  string
	json   bool
}

func NewCmdStatus() *cobra.Command {
	var f statusFlags
	cmd := &cobra.Command{
		Use:   "status [scan-id]",
		Short: "Gets the status of scans on a varco server",
		Run:   getStatus(&f),
		Args:  cobra.MaximumNArgs(1),
	}
	flags := cmd.Flags()

	AddServerFlag(&f.server, flags)
	flags.StringVar(
		&f.state, stateFlag, "",
		"Only list scans in this state (pending, running, completed, failed, cancelled).",
	)
	flags.BoolVar(
		&f.json, jsonFlag, false,
		"Print the status objects as json.",
	)

	return cmd
}

func getStatus(f *statusFlags) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		api := newAPIClient(f.server)

		if len(args) == 1 {
			var status scan.Status
			if err := api.getJSON("/scans/"+args[0], &status); err != nil {
				errlog.LogError(err)
				os.Exit(1)
			}
			if err := printStatuses(os.Stdout, []*scan.Status{&status}, f.json); err != nil {
				errlog.LogError(err)
				os.Exit(1)
			}
			os.Exit(statusExitCode(&status))
		}

		path := "/scans"
		if f.state != "" {
			path += "?state=" + url.QueryEscape(f.state)
		}
		var statuses []*scan.Status
		if err := api.getJSON(path, &statuses); err != nil {
			errlog.LogError(err)
			os.Exit(1)
		}
		if err := printStatuses(os.Stdout, statuses, f.json); err != nil {
			errlog.LogError(err)
			os.Exit(1)
		}
	}
}

// statusExitCode makes `varco status <id>` scriptable: failed scans exit
// nonzero without the caller parsing output.
func statusExitCode(status *scan.Status) int {
	if status.State == scan.StateFailed {
		return 1
	}
	return 0
}

func printStatuses(w io.Writer, statuses []*scan.Status, asJSON bool) error {
	if asJSON {
		return errors.Wrap(json.NewEncoder(w).Encode(statuses), "encoding status")
	}

	tw := tabwriter.NewWriter(w, 1, 8, 1, '\t', tabwriter.AlignRight)
	fmt.Fprintf(tw, "SCAN\tSTATE\tPROGRESS\tURL\tCREATED\n")
	for _, s := range statuses {
		extra := ""
		if s.State == scan.StateFailed && s.FailureReason != "" {
			extra = " (" + s.FailureReason + ")"
		}
		fmt.Fprintf(tw, "%v\t%v%v\t%v%%\t%v\t%v\n",
			s.ID, s.State, extra, s.Progress, s.Request.URL, s.CreatedAt.Format(time.RFC3339))
	}
	return errors.Wrap(tw.Flush(), "writing status table")
}
