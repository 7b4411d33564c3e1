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

package scanner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/varcolabs/varco/pkg/scan"
	varcotime "github.com/varcolabs/varco/pkg/time"
)

// stderrCap bounds how much scanner stderr is kept for diagnostics.
const stderrCap = 4 * 1024

// subprocessSpec describes how one subprocess scanner is invoked and how
// its exit codes are classified.
type subprocessSpec struct {
	kind scan.ScannerKind

	// args builds the command line for a page.
	args func(page scan.PageRef, cfg Config) []string

	// okExits are non-zero exit codes that still count as success when
	// stdout holds parseable JSON (pa11y exits 2 when it finds issues).
	okExits map[int]bool

	// transientExits are exit codes classified as retryable transport
	// failures; any other non-zero exit is a protocol failure.
	transientExits map[int]bool
}

// runSubprocess executes one scanner process under the run deadline and
// classifies the outcome into the adapter failure taxonomy.
func runSubprocess(ctx context.Context, spec subprocessSpec, page scan.PageRef, cfg Config) scan.RawOutput {
	start := varcotime.Now()
	elapsed := func() int64 { return varcotime.Now().Sub(start).Milliseconds() }

	binary := cfg.BinaryPath
	if binary == "" {
		binary = string(spec.kind)
	}
	if _, err := exec.LookPath(binary); err != nil {
		return scan.Failed(scan.NewFailure(scan.FailureConfiguration,
			fmt.Sprintf("scanner binary %q not found", binary)), elapsed())
	}

	args := append(spec.args(page, cfg), cfg.ExtraArgs...)
	cmd := exec.CommandContext(ctx, binary, args...)

	var stdout bytes.Buffer
	stderr := &cappedBuffer{cap: stderrCap}
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	logrus.WithFields(logrus.Fields{
		"scanner": spec.kind,
		"url":     page.URL,
	}).Debugf("running %v %v", binary, strings.Join(args, " "))

	err := cmd.Run()

	if ctx.Err() == context.DeadlineExceeded {
		return scan.Failed(scan.NewFailure(scan.FailureTimeout,
			fmt.Sprintf("%v did not finish within %v", spec.kind, cfg.Timeout())), elapsed())
	}
	if ctx.Err() == context.Canceled {
		return scan.Failed(scan.NewFailure(scan.FailureTimeout, "run cancelled"), elapsed())
	}

	if err != nil {
		exitErr, isExit := err.(*exec.ExitError)
		if !isExit {
			// Start/wait plumbing failure (broken pipe and friends).
			return scan.Failed(scan.NewFailure(scan.FailureTransport, err.Error()), elapsed())
		}
		code := exitErr.ExitCode()
		switch {
		case spec.okExits[code] && json.Valid(stdout.Bytes()):
			// Fall through to success below.
		case spec.transientExits[code]:
			return scan.Failed(scan.NewFailure(scan.FailureTransport,
				fmt.Sprintf("%v exited %d: %v", spec.kind, code, stderr.tail())), elapsed())
		default:
			return scan.Failed(scan.NewFailure(scan.FailureProtocol,
				fmt.Sprintf("%v exited %d: %v", spec.kind, code, stderr.tail())), elapsed())
		}
	}

	if !json.Valid(stdout.Bytes()) {
		return scan.Failed(scan.NewFailure(scan.FailureProtocol,
			fmt.Sprintf("%v produced unparseable output: %v", spec.kind, stderr.tail())), elapsed())
	}

	payload := stdout.Bytes()
	writeRawArtifact(cfg, spec.kind, page, payload)
	return scan.Success(payload, elapsed())
}

// subprocessScan is the shared Scan implementation for the subprocess
// adapters: deadline, retries and progress framing around runSubprocess.
func subprocessScan(ctx context.Context, spec subprocessSpec, page scan.PageRef, cfg Config) scan.RawOutput {
	runCtx, cancel := context.WithTimeout(ctx, cfg.Timeout())
	defer cancel()

	cfg.reportProgress(25)
	out := withRetries(runCtx, spec.kind, cfg.MaxRetries, func() scan.RawOutput {
		return runSubprocess(runCtx, spec, page, cfg)
	})
	cfg.reportProgress(75)
	return out
}

// cappedBuffer keeps only the first cap bytes written to it; scanner
// stderr can be arbitrarily noisy.
type cappedBuffer struct {
	buf bytes.Buffer
	cap int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if remaining := b.cap - b.buf.Len(); remaining > 0 {
		if len(p) > remaining {
			b.buf.Write(p[:remaining])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *cappedBuffer) tail() string {
	return strings.TrimSpace(b.buf.String())
}
