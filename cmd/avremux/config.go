package main

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/xaionaro-go/avcore"
)

// loadConfig reads the job from path if it is set; the positional
// URLs override the ones from the file.
func loadConfig(path string, args []string) (avcore.PipelineConfig, error) {
	var cfg avcore.PipelineConfig
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("unable to read '%s': %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("unable to parse '%s': %w", path, err)
		}
	}
	if len(args) == 2 {
		cfg.Input.URL = args[0]
		cfg.Output.URL = args[1]
	}
	return cfg, nil
}
