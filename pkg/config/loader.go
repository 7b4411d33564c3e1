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

package config

import (
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Environment variables understood by LoadConfig. Each maps onto the config
// key of the same trailing name.
const (
	EnvBindAddr           = "VARCO_BIND_ADDR"
	EnvResultsDir         = "VARCO_RESULTS_DIR"
	EnvMaxConcurrentScans = "VARCO_MAX_CONCURRENT_SCANS"
	EnvWaveAPIKey         = "VARCO_WAVE_API_KEY"
	EnvWaveEndpoint       = "VARCO_WAVE_ENDPOINT"
	EnvAllowLocalTargets  = "VARCO_ALLOW_LOCAL_TARGETS"
)

// LoadConfig builds the engine configuration from defaults, the optional
// config file at path (JSON or YAML, decided by extension) and VARCO_*
// environment variables. Environment wins over file, file wins over
// defaults. The returned config is validated.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	v.BindEnv("bind_addr", EnvBindAddr)
	v.BindEnv("results_dir", EnvResultsDir)
	v.BindEnv("max_concurrent_scans", EnvMaxConcurrentScans)
	v.BindEnv("wave_api_key", EnvWaveAPIKey)
	v.BindEnv("wave_endpoint", EnvWaveEndpoint)
	v.BindEnv("allow_local_targets", EnvAllowLocalTargets)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "reading config file %v", path)
		}
	}

	cfg := New()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshaling config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "validating config")
	}
	return cfg, nil
}
