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
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	yaml "gopkg.in/yaml.v2"

	"github.com/varcolabs/varco/pkg/config"
	"github.com/varcolabs/varco/pkg/errlog"
)

type genConfigFlags struct {
	format string
}

// NewCmdGenConfig creates the `config` command which prints the default
// engine config, ready to be edited and fed back via --config.
func NewCmdGenConfig() *cobra.Command {
	var f genConfigFlags
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Generates the default varco config for input to serve or run",
		Run:   genConfigCobra(&f),
		Args:  cobra.ExactArgs(0),
	}
	cmd.Flags().StringVar(
		&f.format, formatFlag, "json",
		"Output format. One of json or yaml.",
	)
	return cmd
}

// genConfigCobra wraps the functional logic in the signature cobra expects.
func genConfigCobra(f *genConfigFlags) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		s, err := genConfig(f)
		if err != nil {
			errlog.LogError(err)
			os.Exit(1)
		}
		fmt.Println(string(s))
	}
}

// genConfig is the actual functional logic of the command.
func genConfig(f *genConfigFlags) ([]byte, error) {
	cfg := config.New()
	switch f.format {
	case "json":
		b, err := json.MarshalIndent(cfg, "", "  ")
		return b, errors.Wrap(err, "unable to marshal configuration")
	case "yaml":
		// Round-trip through the json tags so the yaml keys match the
		// snake_case names LoadConfig expects; a straight yaml.Marshal of
		// the struct would invent its own key names.
		raw, err := json.Marshal(cfg)
		if err != nil {
			return nil, errors.Wrap(err, "unable to marshal configuration")
		}
		var m map[string]interface{}
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, errors.Wrap(err, "unable to remarshal configuration")
		}
		b, err := yaml.Marshal(m)
		return b, errors.Wrap(err, "unable to marshal configuration as yaml")
	}
	return nil, errors.Errorf("unknown format %q, expected json or yaml", f.format)
}
