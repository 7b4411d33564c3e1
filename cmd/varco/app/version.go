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
	"runtime"

	"github.com/spf13/cobra"

	"github.com/varcolabs/varco/pkg/buildinfo"
)

func NewCmdVersion() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print varco version",
		Run:   runVersion,
		Args:  cobra.ExactArgs(0),
	}
}

func runVersion(cmd *cobra.Command, args []string) {
	fmt.Printf("Varco Version: %s\n", buildinfo.Version)
	fmt.Printf("GitSHA: %s\n", buildinfo.GitSHA)
	fmt.Printf("GoVersion: %s\n", runtime.Version())
	fmt.Printf("Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}
