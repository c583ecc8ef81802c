package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/magiconair/properties"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"

	"github.com/cokeSchlumpf/openwhisk-action-manager/pkg/errors"
)

const (
	// PropsPath is the default location of the OpenWhisk CLI properties
	// file. It's shared with the `wsk` CLI.
	PropsPath = "~/.wskprops"

	// DefaultNamespace is the namespace that resolves to the namespace of
	// the authenticated user.
	DefaultNamespace = "_"

	propsPathEnvKey  = "WSK_CONFIG_FILE"
	apiHostEnvKey    = "__OW_API_HOST"
	authEnvKey       = "__OW_API_KEY"
	namespaceEnvKey  = "__OW_NAMESPACE"
	insecureSSLEnv   = "__OW_INSECURE_SSL"
	apiHostPropKey   = "APIHOST"
	authPropKey      = "AUTH"
	namespacePropKey = "NAMESPACE"
	insecurePropKey  = "INSECURE_SSL"
)

// Platform contains the information needed to connect to the OpenWhisk API.
type Platform struct {
	// APIHost is the base URL of the platform, including the scheme.
	APIHost string

	// Auth is the `uuid:key` pair used for basic authentication.
	Auth string

	Namespace string

	// Insecure disables TLS certificate verification.
	Insecure bool
}

// Mocked out for unit testing.
var (
	homedirExpand = homedir.Expand
	getenv        = os.Getenv
)

// ParsePlatform resolves the platform configuration. Values from the
// environment take precedence over the properties file, which is optional.
func ParsePlatform() (Platform, error) {
	props, err := readProps()
	if err != nil {
		return Platform{}, errors.WithContext(err, "read properties")
	}

	lookup := func(envKey, propKey string) string {
		if val := getenv(envKey); val != "" {
			return val
		}
		return props.GetString(propKey, "")
	}

	platform := Platform{
		APIHost:   lookup(apiHostEnvKey, apiHostPropKey),
		Auth:      lookup(authEnvKey, authPropKey),
		Namespace: lookup(namespaceEnvKey, namespacePropKey),
	}

	if insecure := lookup(insecureSSLEnv, insecurePropKey); insecure != "" {
		platform.Insecure, err = strconv.ParseBool(insecure)
		if err != nil {
			return Platform{}, errors.WithContext(err, "parse "+insecurePropKey)
		}
	}

	return platform.withDefaults()
}

func (platform Platform) withDefaults() (Platform, error) {
	if platform.APIHost == "" {
		return Platform{}, errors.NewFriendlyError(
			"The OpenWhisk API host is not configured.\n"+
				"Set %s in %s, or the %s environment variable.",
			apiHostPropKey, PropsPath, apiHostEnvKey)
	}

	if platform.Auth == "" {
		return Platform{}, errors.NewFriendlyError(
			"OpenWhisk credentials are not configured.\n"+
				"Set %s in %s, or the %s environment variable.",
			authPropKey, PropsPath, authEnvKey)
	}

	if !strings.Contains(platform.APIHost, "://") {
		platform.APIHost = "https://" + platform.APIHost
	}
	platform.APIHost = strings.TrimSuffix(platform.APIHost, "/")

	if platform.Namespace == "" {
		platform.Namespace = DefaultNamespace
	}
	return platform, nil
}

// Credentials splits Auth into the basic authentication username and
// password.
func (platform Platform) Credentials() (string, string, error) {
	parts := strings.SplitN(platform.Auth, ":", 2)
	if len(parts) != 2 {
		return "", "", errors.NewFriendlyError(
			"The OpenWhisk credentials are malformed. Expected `uuid:key`.")
	}
	return parts[0], parts[1], nil
}

func readProps() (*properties.Properties, error) {
	path := getenv(propsPathEnvKey)
	if path == "" {
		path = PropsPath
	}

	path, err := homedirExpand(path)
	if err != nil {
		return nil, errors.WithContext(err, "expand path")
	}

	propsBytes, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return properties.NewProperties(), nil
		}
		return nil, errors.WithContext(err, "read file")
	}

	loader := properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	props, err := loader.LoadBytes(propsBytes)
	if err != nil {
		return nil, errors.WithContext(err, "parse "+path)
	}
	return props, nil
}
