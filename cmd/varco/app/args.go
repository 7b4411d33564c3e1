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
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"github.com/varcolabs/varco/pkg/scan"
)

const (
	companyFlag  = "company"
	emailFlag    = "email"
	scannersFlag = "scanners"
	timeoutFlag  = "timeout"
	modeFlag     = "mode"
	maxPagesFlag = "max-pages"
	maxDepthFlag = "max-depth"
	configFlag   = "config"
	serverFlag   = "server"
	jsonFlag     = "json"
	stateFlag    = "state"
	sinceSeqFlag = "since-seq"
	formatFlag   = "format"
)

// defaultServerURL is where remote commands expect `varco serve` to listen.
const defaultServerURL = "http://127.0.0.1:8090"

// AddConfigFlag initialises the engine config file flag.
func AddConfigFlag(str *string, flags *pflag.FlagSet) {
	flags.StringVar(
		str, configFlag, "",
		"Path to an engine config file (JSON or YAML). Defaults and VARCO_* environment variables apply either way.",
	)
}

// AddServerFlag initialises the server URL flag used by commands that talk
// to a running `varco serve`.
func AddServerFlag(str *string, flags *pflag.FlagSet) {
	flags.StringVar(
		str, serverFlag, defaultServerURL,
		"Base URL of the varco server to talk to.",
	)
}

// AddCompanyFlag initialises the company name flag.
func AddCompanyFlag(str *string, flags *pflag.FlagSet) {
	flags.StringVar(
		str, companyFlag, "",
		"Name of the organization the scan report is for. Required.",
	)
}

// AddEmailFlag initialises the contact email flag.
func AddEmailFlag(str *string, flags *pflag.FlagSet) {
	flags.StringVar(
		str, emailFlag, "",
		"Contact email recorded with the scan. Optional.",
	)
}

// AddTimeoutFlag initialises the per-scanner timeout flag, in milliseconds.
func AddTimeoutFlag(ms *int, flags *pflag.FlagSet) {
	flags.IntVar(
		ms, timeoutFlag, scan.DefaultTimeoutMs,
		"Per-scanner timeout in milliseconds for each page.",
	)
}

// AddMaxPagesFlag initialises the page budget flag.
func AddMaxPagesFlag(n *int, flags *pflag.FlagSet) {
	flags.IntVar(
		n, maxPagesFlag, scan.DefaultMaxPages,
		"Maximum number of pages to discover and scan, seed included.",
	)
}

// AddMaxDepthFlag initialises the crawl depth flag.
func AddMaxDepthFlag(n *int, flags *pflag.FlagSet) {
	flags.IntVar(
		n, maxDepthFlag, scan.DefaultMaxDepth,
		"Maximum link depth the crawler follows from the seed page.",
	)
}

// AddModeFlag initialises the mode flag. Real mode drives the actual
// scanners; simulate mode runs the whole pipeline on canned fixtures.
func AddModeFlag(mode *scan.Mode, flags *pflag.FlagSet) {
	*mode = scan.ModeReal
	flags.Var(
		modeValue{mode}, modeFlag,
		"What mode to run the scan in. Valid modes are real and simulate.",
	)
}

// AddScannersFlag initialises the scanner selection flag. Leaving it unset
// enables every scanner.
func AddScannersFlag(sel *scan.ScannerSelection, flags *pflag.FlagSet) {
	flags.Var(
		scannersValue{sel}, scannersFlag,
		"Comma-separated list of scanners to run (wave, pa11y, axe, lighthouse). Defaults to all of them.",
	)
}

// modeValue adapts scan.Mode to pflag.Value with validation at parse time.
type modeValue struct {
	mode *scan.Mode
}

func (m modeValue) String() string { return string(*m.mode) }
func (m modeValue) Type() string   { return "mode" }
func (m modeValue) Set(str string) error {
	switch mode := scan.Mode(str); mode {
	case scan.ModeReal, scan.ModeSimulate:
		*m.mode = mode
		return nil
	}
	return errors.Errorf("unknown mode %q, valid modes are real and simulate", str)
}

// scannersValue adapts scan.ScannerSelection to pflag.Value, parsing a
// comma-separated list of kind names.
type scannersValue struct {
	sel *scan.ScannerSelection
}

func (v scannersValue) String() string {
	var names []string
	for _, kind := range v.sel.Enabled() {
		names = append(names, string(kind))
	}
	return strings.Join(names, ",")
}

func (v scannersValue) Type() string { return "scanners" }

func (v scannersValue) Set(str string) error {
	var sel scan.ScannerSelection
	for _, name := range strings.Split(str, ",") {
		switch scan.ScannerKind(strings.ToLower(strings.TrimSpace(name))) {
		case scan.Wave:
			sel.Wave = true
		case scan.Pa11y:
			sel.Pa11y = true
		case scan.Axe:
			sel.Axe = true
		case scan.Lighthouse:
			sel.Lighthouse = true
		default:
			return errors.Errorf("unknown scanner %q", name)
		}
	}
	*v.sel = sel
	return nil
}
