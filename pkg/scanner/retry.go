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
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/varcolabs/varco/pkg/scan"
	varcotime "github.com/varcolabs/varco/pkg/time"
)

const (
	backoffBase = time.Second
	backoffCap  = 10 * time.Second
)

// backoffDelay returns the wait before retry attempt n (1-based):
// 1s, 2s, 4s, ... capped at 10s.
func backoffDelay(attempt int) time.Duration {
	delay := backoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= backoffCap {
			return backoffCap
		}
	}
	return delay
}

// withRetries runs one adapter attempt and retries retryable failures up
// to maxRetries times with exponential backoff. Non-retryable failures
// and successes return immediately; a cancelled context returns the last
// failure seen.
func withRetries(ctx context.Context, kind scan.ScannerKind, maxRetries int, attempt func() scan.RawOutput) scan.RawOutput {
	out := attempt()
	for retry := 1; retry <= maxRetries; retry++ {
		if out.OK() || !out.Failure.Retryable {
			return out
		}
		if ctx.Err() != nil {
			return out
		}

		delay := backoffDelay(retry)
		logrus.WithFields(logrus.Fields{
			"scanner": kind,
			"retry":   retry,
			"delay":   delay.String(),
		}).Info("retrying scanner run after retryable failure")

		select {
		case <-ctx.Done():
			return out
		case <-varcotime.After(delay):
		}
		out = attempt()
	}
	return out
}
