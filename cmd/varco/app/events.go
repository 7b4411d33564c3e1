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
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/varcolabs/varco/pkg/errlog"
)

type eventsFlags struct {
	server   string
	sinceSeq int64
}

func NewCmdEvents() *cobra.Command {
	var f eventsFlags
	cmd := &cobra.Command{
		Use:   "events scan-id",
		Short: "Follows a scan's event stream, printing one JSON event per line",
		Run:   followEvents(&f),
		Args:  cobra.ExactArgs(1),
	}
	flags := cmd.Flags()

	AddServerFlag(&f.server, flags)
	flags.Int64Var(
		&f.sinceSeq, sinceSeqFlag, 0,
		"Replay retained events with seq greater than this before following; 0 replays everything retained.",
	)

	return cmd
}

// followEvents consumes the server's SSE stream and reduces it back to
// NDJSON on stdout. The stream ends when the scan does.
func followEvents(f *eventsFlags) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		api := newAPIClient(f.server)

		resp, err := api.get(fmt.Sprintf("/scans/%v/events?since_seq=%d", args[0], f.sinceSeq))
		if err != nil {
			errlog.LogError(err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			// Only the data lines matter here; ids and heartbeat comments
			// exist for resumable browser clients.
			if strings.HasPrefix(line, "data: ") {
				fmt.Println(strings.TrimPrefix(line, "data: "))
			}
		}
		if err := scanner.Err(); err != nil {
			errlog.LogError(errors.Wrap(err, "reading event stream"))
			os.Exit(1)
		}
	}
}
