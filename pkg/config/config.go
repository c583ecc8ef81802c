package config

import (
	"os"

	"github.com/ghodss/yaml"
	"github.com/spf13/afero"

	"github.com/cokeSchlumpf/openwhisk-action-manager/pkg/errors"
)

// parseConfigErrTemplate is a template for when the CLI fails to parse yaml
// configuration files. The yaml library constructs errors in a way that loses
// context, and so we can only pass the error message on.
const parseConfigErrTemplate = "Configuration file could not be parsed. " +
	"Please review %q.\n" +
	"Common pitfalls include:\n" +
	" - Using the wrong types for fields\n" +
	" - Using YAML tabs for indentation\n\n" +
	"For reference, here is the error from the parser:\n" +
	"%s"

// parseConfig reads the file at `path` into `config`, and returns the fields
// that weren't consumed by `config` so that they can be passed to the
// platform verbatim. `reserved` lists the keys that `config` consumes.
func parseConfig(path string, config interface{}, reserved []string) (map[string]interface{}, error) {
	configBytes, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileNotFound{Path: path}
		}
		return nil, errors.WithContext(err, "read file")
	}

	if err := yaml.Unmarshal(configBytes, config); err != nil {
		return nil, errors.NewFriendlyError(parseConfigErrTemplate, path, err)
	}

	fields := map[string]interface{}{}
	if err := yaml.Unmarshal(configBytes, &fields); err != nil {
		return nil, errors.NewFriendlyError(parseConfigErrTemplate, path, err)
	}

	for _, key := range reserved {
		delete(fields, key)
	}
	return fields, nil
}

// mergePatterns returns the defaults followed by the user's patterns.
func mergePatterns(defaults, user []string) []string {
	return append(append([]string{}, defaults...), user...)
}
