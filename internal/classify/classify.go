// Package classify decides whether a deployment's build log looks clean.
// The decision is a fixed substring heuristic: marker sets are data handed in
// by the caller, not logic embedded here.
package classify

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Markers holds the ordered failure and success substrings, matched against
// lower-cased log text.
type Markers struct {
	Failure []string `yaml:"failure" mapstructure:"failure"`
	Success []string `yaml:"success" mapstructure:"success"`
}

// DefaultMarkers returns the marker sets tuned for Vercel build output.
func DefaultMarkers() Markers {
	return Markers{
		Failure: []string{
			"error ",
			"failed",
			"build failed",
			"exit code 1",
			`command "npm run build" exited with 1`,
		},
		Success: []string{
			"deployment completed",
			"build completed",
			"ready! deployed to",
		},
	}
}

// LoadMarkers reads marker sets from a YAML file. Missing sections fall back
// to the defaults so a file can override just one side. Markers are
// lower-cased on load because Successful matches against lower-cased text.
func LoadMarkers(path string) (Markers, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Markers{}, fmt.Errorf("classify: read markers file: %w", err)
	}
	m := Markers{}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Markers{}, fmt.Errorf("classify: parse markers file %s: %w", path, err)
	}
	def := DefaultMarkers()
	if len(m.Failure) == 0 {
		m.Failure = def.Failure
	}
	if len(m.Success) == 0 {
		m.Success = def.Success
	}
	for i, marker := range m.Failure {
		m.Failure[i] = strings.ToLower(marker)
	}
	for i, marker := range m.Success {
		m.Success[i] = strings.ToLower(marker)
	}
	return m, nil
}

// Successful reports whether logs look like a clean build. Failure markers
// take precedence over success markers, and a log with no markers at all is
// not successful: ambiguity keeps the loop iterating rather than stopping on
// a false positive.
func (m Markers) Successful(logs string) bool {
	text := strings.ToLower(logs)
	for _, marker := range m.Failure {
		if strings.Contains(text, marker) {
			return false
		}
	}
	for _, marker := range m.Success {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}
