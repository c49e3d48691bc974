package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/axion-mining/fleet-optimizer/internal/optimizer"
)

// LoadParameters reads optimization parameters from a JSON or YAML file,
// chosen by extension. Omitted fields take the values of
// optimizer.BaseParameters.
func LoadParameters(path string) (optimizer.Parameters, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return optimizer.Parameters{}, fmt.Errorf("read parameters: %w", err)
	}

	params := optimizer.BaseParameters()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &params)
	default:
		err = yaml.Unmarshal(data, &params)
	}
	if err != nil {
		return optimizer.Parameters{}, fmt.Errorf("parse parameters %s: %w", path, err)
	}
	return params, nil
}
