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
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/varcolabs/varco/pkg/errlog"
	"github.com/varcolabs/varco/pkg/tarball"
)

var defaultOutDir = "."

type retrieveFlags struct {
	server string
}

func NewCmdRetrieve() *cobra.Command {
	var f retrieveFlags
	cmd := &cobra.Command{
		Use:   "retrieve scan-id [path]",
		Short: "Downloads a scan's artifact directory to a local path",
		Run:   retrieveArtifacts(&f),
		Args:  cobra.RangeArgs(1, 2),
	}
	AddServerFlag(&f.server, cmd.Flags())
	return cmd
}

func retrieveArtifacts(f *retrieveFlags) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		id := args[0]
		outDir := defaultOutDir
		if len(args) > 1 {
			outDir = args[1]
		}
		// Artifacts land under a scan-id subdirectory so retrieving several
		// scans into the same path never collides.
		outDir = filepath.Join(outDir, id)

		api := newAPIClient(f.server)
		resp, err := api.get(fmt.Sprintf("/scans/%v/artifacts", id))
		if err != nil {
			errlog.LogError(err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		if err := os.MkdirAll(outDir, 0755); err != nil {
			errlog.LogError(errors.Wrapf(err, "creating output directory %v", outDir))
			os.Exit(1)
		}
		if err := tarball.DecodeTarball(resp.Body, outDir); err != nil {
			errlog.LogError(errors.Wrap(err, "extracting artifacts"))
			os.Exit(1)
		}
		fmt.Println(outDir)
	}
}
