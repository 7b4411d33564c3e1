package features

import "os"

const (
	All = "VARCO_ALL_FEATURES"

	// EventLogArtifact controls writing events.ndjson into the scan directory.
	EventLogArtifact = "VARCO_EVENT_LOG_ARTIFACT"

	// RawArtifacts controls writing per-(page, scanner) raw payloads into
	// the scan directory's raw/ folder.
	RawArtifacts = "VARCO_RAW_ARTIFACTS"
)

var (
	featureDefaultMap = map[string]bool{
		EventLogArtifact: true,
		RawArtifacts:     true,
	}
)

// Enabled returns if the named feature is enabled based on the current env and defaults.
func Enabled(feature string) bool {
	return enabledCore(feature, os.Getenv(All), os.Getenv(feature), featureDefaultMap)
}

// Extracted logic here for testing so we can modify the env and defaults easily.
func enabledCore(featureName, allEnv, featureEnv string, defaultMap map[string]bool) bool {
	// Allow features we default as true to be turned off while still relatively new so if major
	// bugs are found we have workarounds.
	if featureEnv == "false" {
		return false
	}
	return defaultMap[featureName] || allEnv == "true" || featureEnv == "true"
}
