// Package config loads the lospctl YAML configuration.
//
// Values from the file are decoded over Default, so a file only needs the
// keys it changes. Unknown keys are rejected. Durations use Go syntax
// ("2s", "500ms").
package config
