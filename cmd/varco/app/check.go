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
	"io"
	"os"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/varcolabs/varco/pkg/client"
	"github.com/varcolabs/varco/pkg/errlog"
	"github.com/varcolabs/varco/pkg/scan"
	"github.com/varcolabs/varco/pkg/scanner"
)

type checkFlags struct {
	configPath string
	scanners   scan.ScannerSelection
}

func NewCmdCheck() *cobra.Command {
	var f checkFlags
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Checks which scanners are installed and usable",
		Run:   runCheck(&f),
		Args:  cobra.ExactArgs(0),
	}
	flags := cmd.Flags()

	AddConfigFlag(&f.configPath, flags)
	AddScannersFlag(&f.scanners, flags)

	return cmd
}

func runCheck(f *checkFlags) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		c, err := getVarcoClient(f.configPath)
		if err != nil {
			errlog.LogError(err)
			os.Exit(1)
		}
		defer c.Close()

		results := c.Preflight(&client.PreflightConfig{Scanners: f.scanners})
		if err := printChecks(os.Stdout, results); err != nil {
			errlog.LogError(err)
			os.Exit(1)
		}
		os.Exit(checkExitCode(results))
	}
}

// checkExitCode is nonzero when any probed scanner is unusable, so CI can
// gate on `varco check` directly.
func checkExitCode(results []scanner.CheckResult) int {
	for _, r := range results {
		if !r.Available {
			return 1
		}
	}
	return 0
}

func printChecks(w io.Writer, results []scanner.CheckResult) error {
	tw := tabwriter.NewWriter(w, 1, 8, 1, '\t', tabwriter.AlignRight)
	fmt.Fprintf(tw, "SCANNER\tAVAILABLE\tVERSION\tERROR\n")
	for _, r := range results {
		version := r.Version
		if version == "" {
			version = "-"
		}
		errMsg := r.Error
		if errMsg == "" {
			errMsg = "-"
		}
		fmt.Fprintf(tw, "%v\t%v\t%v\t%v\n", r.Kind, r.Available, version, errMsg)
	}
	return errors.Wrap(tw.Flush(), "writing check table")
}
