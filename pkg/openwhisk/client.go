package openwhisk

//go:generate mockery -name Client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/cokeSchlumpf/openwhisk-action-manager/pkg/config"
	"github.com/cokeSchlumpf/openwhisk-action-manager/pkg/errors"
)

// ErrNotFound is returned when the requested entity doesn't exist.
var ErrNotFound = errors.New("not found")

const (
	apiPath      = "/api/v1"
	listPageSize = 200

	// Archives can take a while to be accepted by the controller.
	requestTimeout = 5 * time.Minute
)

// Client is used for reading and modifying the packages and actions on the
// OpenWhisk platform.
type Client interface {
	// UpdatePackage creates the package, or overwrites its configuration if
	// it already exists.
	UpdatePackage(ctx context.Context, name string, fields map[string]interface{}) (Package, error)

	// GetAction returns ErrNotFound if the action doesn't exist.
	GetAction(ctx context.Context, pkg, name string) (Action, error)

	// UpdateAction creates the action, or overwrites its content and
	// configuration if it already exists. The code and the annotations are
	// written in a single request.
	UpdateAction(ctx context.Context, pkg, name string, archive []byte,
		fields map[string]interface{}, annotations KeyValues) (Action, error)

	// ListActions returns all actions in the package.
	ListActions(ctx context.Context, pkg string) ([]Action, error)

	// DeleteAction returns ErrNotFound if the action doesn't exist.
	DeleteAction(ctx context.Context, pkg, name string) error
}

type client struct {
	baseURL    string
	namespace  string
	user, pass string
	httpClient *http.Client
}

// apiError is the error body returned by the platform.
type apiError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"error"`
}

func (err apiError) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("platform responded with %d %s",
			err.StatusCode, http.StatusText(err.StatusCode))
	}
	return fmt.Sprintf("platform responded with %d: %s", err.StatusCode, err.Message)
}

// New creates a client for the given platform.
func New(platform config.Platform) (Client, error) {
	user, pass, err := platform.Credentials()
	if err != nil {
		return nil, err
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if platform.Insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402
	}

	return &client{
		baseURL:    platform.APIHost + apiPath,
		namespace:  platform.Namespace,
		user:       user,
		pass:       pass,
		httpClient: &http.Client{Transport: transport, Timeout: requestTimeout},
	}, nil
}

func (c *client) UpdatePackage(ctx context.Context, name string, fields map[string]interface{}) (Package, error) {
	body := copyFields(fields)
	var pkg Package
	err := c.do(ctx, http.MethodPut, c.entityPath("packages", name),
		url.Values{"overwrite": {"true"}}, body, &pkg)
	return pkg, err
}

func (c *client) GetAction(ctx context.Context, pkg, name string) (Action, error) {
	var action Action
	err := c.do(ctx, http.MethodGet, c.entityPath("actions", pkg, name),
		url.Values{"code": {"false"}}, nil, &action)
	return action, err
}

func (c *client) UpdateAction(ctx context.Context, pkg, name string, archive []byte,
	fields map[string]interface{}, annotations KeyValues) (Action, error) {

	body := copyFields(fields)

	exec := map[string]interface{}{"kind": DefaultKind}
	if userExec, ok := fields["exec"].(map[string]interface{}); ok {
		for k, v := range userExec {
			exec[k] = v
		}
	}
	exec["code"] = base64.StdEncoding.EncodeToString(archive)
	exec["binary"] = true
	body["exec"] = exec

	merged, err := userAnnotations(fields)
	if err != nil {
		return Action{}, errors.WithContext(err, "parse annotations")
	}
	for _, kv := range annotations {
		merged = merged.With(kv.Key, kv.Value)
	}
	body["annotations"] = merged

	var action Action
	err = c.do(ctx, http.MethodPut, c.entityPath("actions", pkg, name),
		url.Values{"overwrite": {"true"}}, body, &action)
	return action, err
}

func (c *client) ListActions(ctx context.Context, pkg string) ([]Action, error) {
	var actions []Action
	for skip := 0; ; skip += listPageSize {
		var page []Action
		query := url.Values{
			"limit": {strconv.Itoa(listPageSize)},
			"skip":  {strconv.Itoa(skip)},
		}
		// The trailing slash lists the contents of the package rather than
		// fetching an action with the package's name.
		if err := c.do(ctx, http.MethodGet, c.entityPath("actions", pkg)+"/", query, nil, &page); err != nil {
			return nil, err
		}

		actions = append(actions, page...)
		if len(page) < listPageSize {
			return actions, nil
		}
	}
}

func (c *client) DeleteAction(ctx context.Context, pkg, name string) error {
	return c.do(ctx, http.MethodDelete, c.entityPath("actions", pkg, name), nil, nil, nil)
}

func (c *client) entityPath(collection string, names ...string) string {
	path := fmt.Sprintf("/namespaces/%s/%s", url.PathEscape(c.namespace), collection)
	for _, name := range names {
		path += "/" + url.PathEscape(name)
	}
	return path
}

// do sends a request to the platform, and decodes the JSON response into
// `out` if it's non-nil.
func (c *client) do(ctx context.Context, method, path string, query url.Values,
	in interface{}, out interface{}) error {

	var body io.Reader
	if in != nil {
		inBytes, err := json.Marshal(in)
		if err != nil {
			return errors.WithContext(err, "marshal request")
		}
		body = bytes.NewReader(inBytes)
	}

	reqURL := c.baseURL + path
	if len(query) != 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return errors.WithContext(err, "new request")
	}
	req.SetBasicAuth(c.user, c.pass)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	log.WithFields(log.Fields{
		"method": method,
		"path":   path,
	}).Debug("Sending request to OpenWhisk")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.WithContext(err, "send request")
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.WithContext(err, "read response")
	}

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := apiError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(respBytes, &apiErr); err != nil {
			log.WithError(err).Debug("Failed to parse error response")
		}
		return apiErr
	}

	if out == nil || len(respBytes) == 0 {
		return nil
	}

	if err := json.Unmarshal(respBytes, out); err != nil {
		return errors.WithContext(err, "unmarshal response")
	}
	return nil
}

func copyFields(fields map[string]interface{}) map[string]interface{} {
	copied := map[string]interface{}{}
	for k, v := range fields {
		copied[k] = v
	}
	return copied
}

// userAnnotations converts the annotations from the user's configuration,
// which were decoded generically, into KeyValues.
func userAnnotations(fields map[string]interface{}) (KeyValues, error) {
	raw, ok := fields["annotations"]
	if !ok {
		return KeyValues{}, nil
	}

	rawBytes, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}

	var annotations KeyValues
	if err := json.Unmarshal(rawBytes, &annotations); err != nil {
		return nil, errors.NewFriendlyError(
			"Action annotations must be a list of `key` and `value` pairs: %s", err)
	}
	return annotations, nil
}
