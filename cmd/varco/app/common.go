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
	"time"

	"github.com/pkg/errors"

	"github.com/varcolabs/varco/pkg/client"
	"github.com/varcolabs/varco/pkg/config"
)

var (
	spinnerType     int           = 14
	spinnerDuration time.Duration = 2000 * time.Millisecond
	spinnerColor                  = "red"
)

// getVarcoClient loads the engine config and wires up an in-process client.
// The caller owns Close.
func getVarcoClient(configPath string) (*client.VarcoClient, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "could not load config")
	}
	c, err := client.NewVarcoClient(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "could not create varco client")
	}
	return c, nil
}
