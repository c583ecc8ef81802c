package openwhisk

// FingerprintAnnotation is the annotation that records the fingerprint of
// the content an action was last uploaded with. It's the only state that's
// persisted between deployments.
const FingerprintAnnotation = "md5sum"

// DefaultKind is the runtime used for actions that don't specify one.
const DefaultKind = "nodejs:default"

// KeyValue is the platform's representation of parameters and annotations.
type KeyValue struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}

// KeyValues is an ordered list of key value pairs.
type KeyValues []KeyValue

// Get returns the value for `key`.
func (kvs KeyValues) Get(key string) (interface{}, bool) {
	for _, kv := range kvs {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return nil, false
}

// With returns a copy of kvs where `key` is set to `value`. An existing entry
// for `key` is replaced in place.
func (kvs KeyValues) With(key string, value interface{}) KeyValues {
	updated := KeyValues{}
	replaced := false
	for _, kv := range kvs {
		if kv.Key == key {
			kv.Value = value
			replaced = true
		}
		updated = append(updated, kv)
	}
	if !replaced {
		updated = append(updated, KeyValue{Key: key, Value: value})
	}
	return updated
}

// Package is the remote representation of a package.
type Package struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
	Version   string `json:"version,omitempty"`
}

// Action is the remote representation of an action's metadata. The code is
// never fetched.
type Action struct {
	Name        string    `json:"name"`
	Namespace   string    `json:"namespace"`
	Version     string    `json:"version,omitempty"`
	Annotations KeyValues `json:"annotations,omitempty"`
}

// Fingerprint returns the fingerprint recorded when the action was last
// uploaded, or the empty string if it was never recorded.
func (action Action) Fingerprint() string {
	val, ok := action.Annotations.Get(FingerprintAnnotation)
	if !ok {
		return ""
	}
	fingerprint, _ := val.(string)
	return fingerprint
}
