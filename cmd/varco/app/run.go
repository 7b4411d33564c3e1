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
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/briandowns/spinner"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/varcolabs/varco/pkg/client"
	"github.com/varcolabs/varco/pkg/errlog"
	"github.com/varcolabs/varco/pkg/scan"
)

type runFlags struct {
	configPath    string
	company       string
	email         string
	scanners      scan.ScannerSelection
	timeoutMs     int
	mode          scan.Mode
	maxPages      int
	maxDepth      int
	allowLocal    bool
	skipPreflight bool
	json          bool
}

func NewCmdRun() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run url",
		Short: "Runs a scan against the target website and waits for the result",
		Run:   submitScan(&f),
		Args:  cobra.ExactArgs(1),
	}
	flags := cmd.Flags()

	AddConfigFlag(&f.configPath, flags)
	AddCompanyFlag(&f.company, flags)
	AddEmailFlag(&f.email, flags)
	AddScannersFlag(&f.scanners, flags)
	AddTimeoutFlag(&f.timeoutMs, flags)
	AddModeFlag(&f.mode, flags)
	AddMaxPagesFlag(&f.maxPages, flags)
	AddMaxDepthFlag(&f.maxDepth, flags)
	flags.BoolVar(
		&f.allowLocal, "allow-local", false,
		"Permit loopback and private-network targets. Meant for scanning locally hosted sites.",
	)
	flags.BoolVar(
		&f.skipPreflight, "skip-preflight", false,
		"Skip the scanner availability checks before starting.",
	)
	flags.BoolVar(
		&f.json, jsonFlag, false,
		"Print the final result as json instead of a summary.",
	)

	return cmd
}

func submitScan(f *runFlags) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		c, err := getVarcoClient(f.configPath)
		if err != nil {
			errlog.LogError(err)
			os.Exit(1)
		}
		defer c.Close()

		// Simulate mode never invokes the real tools, so there is nothing
		// to preflight.
		if !f.skipPreflight && f.mode != scan.ModeSimulate {
			if err := preflight(c, f.scanners); err != nil {
				errlog.LogError(err)
				os.Exit(1)
			}
		}

		status, err := c.StartScan(&client.StartScanConfig{Request: scan.Request{
			URL:         args[0],
			CompanyName: f.company,
			Email:       f.email,
			Scanners:    f.scanners,
			TimeoutMs:   f.timeoutMs,
			Mode:        f.mode,
			MaxPages:    f.maxPages,
			MaxDepth:    f.maxDepth,
			AllowLocal:  f.allowLocal,
		}})
		if err != nil {
			errlog.LogError(errors.Wrap(err, "could not start the scan"))
			os.Exit(1)
		}

		final, err := waitForScan(c, status, f.json)
		if err != nil {
			errlog.LogError(err)
			os.Exit(1)
		}

		switch final.State {
		case scan.StateCompleted:
			result, err := c.Result(&client.ResultConfig{ID: final.ID})
			if err != nil {
				errlog.LogError(errors.Wrap(err, "could not fetch the result"))
				os.Exit(1)
			}
			if f.json {
				err = json.NewEncoder(os.Stdout).Encode(result)
			} else {
				err = printResultSummary(os.Stdout, result)
			}
			if err != nil {
				errlog.LogError(err)
				os.Exit(1)
			}
		case scan.StateCancelled:
			errlog.LogError(errors.Errorf("scan %v was cancelled", final.ID))
			os.Exit(1)
		default:
			errlog.LogError(errors.Errorf("scan %v failed: %v", final.ID, final.FailureReason))
			os.Exit(1)
		}
	}
}

// preflight probes the selected scanners and fails when any of them is
// unusable, so misconfiguration surfaces before the scan spends time
// crawling. --skip-preflight bypasses it.
func preflight(c client.Interface, sel scan.ScannerSelection) error {
	var unavailable []string
	for _, r := range c.Preflight(&client.PreflightConfig{Scanners: sel}) {
		if !r.Available {
			unavailable = append(unavailable, fmt.Sprintf("%v (%v)", r.Kind, r.Error))
		}
	}
	if len(unavailable) > 0 {
		return errors.Errorf(
			"scanners unavailable: %v. Fix them, narrow --scanners, or pass --skip-preflight",
			strings.Join(unavailable, ", "),
		)
	}
	return nil
}

// waitForScan blocks until the scan is terminal, spinning on interactive
// terminals. JSON output keeps stdout clean for piping.
func waitForScan(c client.Interface, status *scan.Status, jsonOut bool) (*scan.Status, error) {
	if !jsonOut && term.IsTerminal(int(os.Stdout.Fd())) {
		s := spinner.New(spinner.CharSets[spinnerType], spinnerDuration)
		s.Color(spinnerColor)
		s.Suffix = fmt.Sprintf(" Scanning %v (scan %v)", status.Request.URL, status.ID)
		s.Start()
		defer s.Stop()
	}

	final, err := c.WaitForScan(context.Background(), &client.WaitConfig{ID: status.ID})
	return final, errors.Wrap(err, "waiting for the scan to finish")
}
