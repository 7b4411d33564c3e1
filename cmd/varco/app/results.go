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
	"os"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/varcolabs/varco/pkg/errlog"
	"github.com/varcolabs/varco/pkg/scan"
)

type resultsFlags struct {
	server string
	json   bool
}

func NewCmdResults() *cobra.Command {
	var f resultsFlags
	cmd := &cobra.Command{
		Use:   "results scan-id",
		Short: "Fetches and summarizes the result of a completed scan",
		Run:   getResults(&f),
		Args:  cobra.ExactArgs(1),
	}
	flags := cmd.Flags()

	AddServerFlag(&f.server, flags)
	flags.BoolVar(
		&f.json, jsonFlag, false,
		"Print the full result object as json.",
	)

	return cmd
}

func getResults(f *resultsFlags) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		api := newAPIClient(f.server)

		var result scan.Result
		if err := api.getJSON(fmt.Sprintf("/scans/%v/result", args[0]), &result); err != nil {
			errlog.LogError(err)
			os.Exit(1)
		}

		var err error
		if f.json {
			err = json.NewEncoder(os.Stdout).Encode(&result)
		} else {
			err = printResultSummary(os.Stdout, &result)
		}
		if err != nil {
			errlog.LogError(err)
			os.Exit(1)
		}
	}
}

func complianceLabel(level scan.ComplianceLevel) string {
	switch level {
	case scan.Conforme:
		return "conforme (compliant)"
	case scan.ParzialmenteConforme:
		return "parzialmente conforme (partially compliant)"
	case scan.NonConforme:
		return "non conforme (not compliant)"
	}
	return string(level)
}

// printResultSummary renders the human-readable report: the compliance
// verdict, the severity and principle tallies, the aggregated violations
// and how each scanner fared.
func printResultSummary(w io.Writer, result *scan.Result) error {
	// Locale-aware number formatting; violation counts on large sites get
	// into grouped-digits territory.
	p := message.NewPrinter(language.English)
	m := result.Metrics

	p.Fprintf(w, "Target: %v (%v)\n", result.Request.URL, result.Request.CompanyName)
	p.Fprintf(w, "Pages scanned: %d\n", len(result.Pages))
	p.Fprintf(w, "Overall score: %d/100\n", m.OverallScore)
	p.Fprintf(w, "Compliance: %v\n", complianceLabel(m.ComplianceLevel))
	p.Fprintf(w, "Confidence: %.2f\n", m.Confidence)
	p.Fprintf(w, "Total violations: %d (critical %d, high %d, medium %d, low %d)\n",
		m.TotalViolations, m.BySeverity.Critical, m.BySeverity.High, m.BySeverity.Medium, m.BySeverity.Low)
	p.Fprintf(w, "By principle: perceivable %d, operable %d, understandable %d, robust %d\n",
		m.ByPrinciple.Perceivable, m.ByPrinciple.Operable, m.ByPrinciple.Understandable, m.ByPrinciple.Robust)
	p.Fprintf(w, "Elapsed: %v\n", result.CompletedAt.Sub(result.StartedAt).Round(time.Millisecond))

	if len(result.Violations) > 0 {
		fmt.Fprintln(w)
		tw := tabwriter.NewWriter(w, 1, 8, 1, '\t', tabwriter.AlignRight)
		fmt.Fprintf(tw, "CODE\tSEVERITY\tWCAG\tCOUNT\tPAGES\n")
		for _, v := range result.Violations {
			fmt.Fprintf(tw, "%v\t%v\t%v (%v)\t%v\t%v\n",
				v.Code, v.Severity, v.WCAGCriterion, v.WCAGLevel, v.TotalCount, len(v.Pages))
		}
		if err := tw.Flush(); err != nil {
			return errors.Wrap(err, "writing violations table")
		}
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 1, 8, 1, '\t', tabwriter.AlignRight)
	fmt.Fprintf(tw, "SCANNER\tOK\tFAILED\n")
	for _, kind := range scan.AllKinds() {
		tally, ok := result.ScannerRuns[kind]
		if !ok {
			continue
		}
		fmt.Fprintf(tw, "%v\t%v\t%v\n", kind, tally.OK, tally.Failed)
	}
	return errors.Wrap(tw.Flush(), "writing scanner runs table")
}
