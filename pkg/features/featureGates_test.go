package features

import (
	"testing"
)

func TestFeatureEnabled(t *testing.T) {
	// Arbitrary feature name; the default map is supplied per test case.
	feature := "foo"
	tests := []struct {
		name       string
		want       bool
		allEnv     string
		featureEnv string
		defaultVal bool
	}{
		{
			name:   "everything off",
			want:   false,
			allEnv: "false", featureEnv: "false", defaultVal: false,
		}, {
			name:   "explicit false beats all-features and the default",
			want:   false,
			allEnv: "true", featureEnv: "false", defaultVal: true,
		}, {
			name:   "explicit true beats the default",
			want:   true,
			allEnv: "false", featureEnv: "true", defaultVal: false,
		}, {
			name:   "all-features enables non-default features",
			want:   true,
			allEnv: "true", featureEnv: "", defaultVal: false,
		}, {
			name:   "default true survives all-features false",
			want:   true,
			allEnv: "false", featureEnv: "", defaultVal: true,
		}, {
			name:   "default used when env is empty",
			want:   true,
			allEnv: "", featureEnv: "", defaultVal: true,
		}, {
			name:   "unknown feature with empty env is off",
			want:   false,
			allEnv: "", featureEnv: "", defaultVal: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := enabledCore(feature, tt.allEnv, tt.featureEnv, map[string]bool{feature: tt.defaultVal}); got != tt.want {
				t.Errorf("Enabled() = %v, want %v", got, tt.want)
			}
		})
	}
}
