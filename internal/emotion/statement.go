package emotion

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed statements.yaml
var statementsYAML []byte

type statementsConfig struct {
	Statements map[string]string `yaml:"statements"`
	Unknown    string            `yaml:"unknown"`
}

var statements statementsConfig

func init() {
	if err := yaml.Unmarshal(statementsYAML, &statements); err != nil {
		panic(fmt.Sprintf("invalid embedded statements.yaml: %v", err))
	}
}

// Statement renders a human-readable line for an emotion with its
// confidence as a percentage.
func Statement(emotion string, confidence float64) string {
	base, ok := statements.Statements[emotion]
	if !ok {
		base = statements.Unknown
	}
	return fmt.Sprintf("%s (Confidence: %d%%)", base, int(confidence*100))
}
