package config

import (
	"path/filepath"

	"github.com/cokeSchlumpf/openwhisk-action-manager/pkg/errors"
)

// ActionConfigFile is the name of the optional per-action configuration
// file within an action directory.
const ActionConfigFile = "action.yaml"

var actionKeys = []string{"name", "build"}

// Action is the local configuration of a single action.
type Action struct {
	// Name defaults to the base name of the action directory.
	Name string `json:"name,omitempty"`

	// Build overrides the package's build command for this action.
	Build []string `json:"build,omitempty"`

	// Fields contains the remaining keys of the file, such as `exec`,
	// `limits` and `parameters`. They're passed to the platform as is.
	Fields map[string]interface{} `json:"-"`
}

// ParseAction parses the configuration of the action in `dir`. The file is
// optional.
func ParseAction(dir string) (Action, error) {
	var config Action
	fields, err := parseConfig(filepath.Join(dir, ActionConfigFile), &config, actionKeys)
	if err != nil {
		if _, ok := err.(errors.FileNotFound); !ok {
			return Action{}, errors.WithContext(err, "parse")
		}
		fields = map[string]interface{}{}
	}

	if config.Name == "" {
		config.Name = filepath.Base(dir)
	}
	config.Fields = fields
	return config, nil
}
