package config

import (
	"path/filepath"

	"github.com/cokeSchlumpf/openwhisk-action-manager/pkg/errors"
)

// PackageConfigFile is the name of the optional package configuration file
// at the root of the deployment directory.
const PackageConfigFile = "package.yaml"

var (
	// DefaultActionExcludes are the patterns for subdirectories of the root
	// that are never treated as actions.
	DefaultActionExcludes = []string{".*", "node_modules"}

	// DefaultFingerprintExcludes are the patterns for files that never
	// contribute to an action's fingerprint. Installed dependencies are
	// derived from the manifest, which is hashed. The action config only
	// holds platform fields, and changing those alone doesn't re-upload.
	DefaultFingerprintExcludes = []string{"node_modules/**", ".git/**", "*.zip", ActionConfigFile}

	// DefaultArchiveExcludes are the patterns for files that are never
	// uploaded as part of an action.
	DefaultArchiveExcludes = []string{".git/**", ActionConfigFile, "*.zip"}

	packageKeys = []string{"name", "actionExcludes", "fingerprintExcludes",
		"archiveExcludes", "build"}
)

// Package is the configuration of the package that groups the deployed
// actions.
type Package struct {
	// Name defaults to the base name of the deployment root.
	Name string `json:"name,omitempty"`

	// The exclude patterns are appended to the defaults. They're matched
	// against paths relative to the deployment root for ActionExcludes, and
	// relative to each action directory for the others.
	ActionExcludes      []string `json:"actionExcludes,omitempty"`
	FingerprintExcludes []string `json:"fingerprintExcludes,omitempty"`
	ArchiveExcludes     []string `json:"archiveExcludes,omitempty"`

	// Build is the command that prepares each action directory before it's
	// archived. Actions may override it.
	Build []string `json:"build,omitempty"`

	// Fields contains the remaining keys of the file. They're passed to the
	// platform as is.
	Fields map[string]interface{} `json:"-"`
}

// ParsePackage parses the package configuration in the deployment root.
// The file is optional, so a missing file results in the default
// configuration.
func ParsePackage(root string) (Package, error) {
	var config Package
	fields, err := parseConfig(filepath.Join(root, PackageConfigFile), &config, packageKeys)
	if err != nil {
		if _, ok := err.(errors.FileNotFound); !ok {
			return Package{}, errors.WithContext(err, "parse")
		}
		fields = map[string]interface{}{}
	}

	if config.Name == "" {
		absRoot, err := filepath.Abs(root)
		if err != nil {
			return Package{}, errors.WithContext(err, "absolute path")
		}
		config.Name = filepath.Base(absRoot)
	}

	config.ActionExcludes = mergePatterns(DefaultActionExcludes, config.ActionExcludes)
	config.FingerprintExcludes = mergePatterns(DefaultFingerprintExcludes, config.FingerprintExcludes)
	config.ArchiveExcludes = mergePatterns(DefaultArchiveExcludes, config.ArchiveExcludes)
	config.Fields = fields
	return config, nil
}
