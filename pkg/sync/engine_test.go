package sync

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cokeSchlumpf/openwhisk-action-manager/pkg/build"
	"github.com/cokeSchlumpf/openwhisk-action-manager/pkg/config"
	"github.com/cokeSchlumpf/openwhisk-action-manager/pkg/errors"
	"github.com/cokeSchlumpf/openwhisk-action-manager/pkg/openwhisk"
	"github.com/cokeSchlumpf/openwhisk-action-manager/pkg/openwhisk/mocks"
)

const testRoot = "/deploy/utils"

var testPackage = config.Package{
	Name:                "utils",
	ActionExcludes:      config.DefaultActionExcludes,
	FingerprintExcludes: config.DefaultFingerprintExcludes,
	ArchiveExcludes:     config.DefaultArchiveExcludes,
	Fields:              map[string]interface{}{"publish": false},
}

// fakeClient is an in-memory platform with a single namespace.
type fakeClient struct {
	packages map[string]map[string]interface{}

	// actions is keyed by `<package>/<action>`.
	actions map[string]fakeAction

	deleteErrs map[string]error

	uploads []string
	deletes []string
}

type fakeAction struct {
	archive     []byte
	fields      map[string]interface{}
	annotations openwhisk.KeyValues
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		packages:   map[string]map[string]interface{}{},
		actions:    map[string]fakeAction{},
		deleteErrs: map[string]error{},
	}
}

func (c *fakeClient) UpdatePackage(_ context.Context, name string,
	fields map[string]interface{}) (openwhisk.Package, error) {
	c.packages[name] = fields
	return openwhisk.Package{Name: name, Namespace: "guest"}, nil
}

func (c *fakeClient) GetAction(_ context.Context, pkg, name string) (openwhisk.Action, error) {
	action, ok := c.actions[pkg+"/"+name]
	if !ok {
		return openwhisk.Action{}, openwhisk.ErrNotFound
	}
	return openwhisk.Action{Name: name, Namespace: "guest/" + pkg,
		Annotations: action.annotations}, nil
}

func (c *fakeClient) UpdateAction(_ context.Context, pkg, name string, archive []byte,
	fields map[string]interface{}, annotations openwhisk.KeyValues) (openwhisk.Action, error) {
	c.uploads = append(c.uploads, name)
	c.actions[pkg+"/"+name] = fakeAction{archive, fields, annotations}
	return openwhisk.Action{Name: name, Namespace: "guest/" + pkg, Annotations: annotations}, nil
}

func (c *fakeClient) ListActions(_ context.Context, pkg string) ([]openwhisk.Action, error) {
	var actions []openwhisk.Action
	for key := range c.actions {
		parts := strings.SplitN(key, "/", 2)
		if parts[0] == pkg {
			actions = append(actions, openwhisk.Action{Name: parts[1], Namespace: "guest/" + pkg})
		}
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i].Name < actions[j].Name })
	return actions, nil
}

func (c *fakeClient) DeleteAction(_ context.Context, pkg, name string) error {
	if err := c.deleteErrs[name]; err != nil {
		return err
	}
	if _, ok := c.actions[pkg+"/"+name]; !ok {
		return openwhisk.ErrNotFound
	}
	c.deletes = append(c.deletes, name)
	delete(c.actions, pkg+"/"+name)
	return nil
}

func (c *fakeClient) recordedFingerprint(pkg, name string) string {
	val, _ := c.actions[pkg+"/"+name].annotations.Get(openwhisk.FingerprintAnnotation)
	fingerprint, _ := val.(string)
	return fingerprint
}

func (c *fakeClient) resetCalls() {
	c.uploads = nil
	c.deletes = nil
}

// fakeBuilder records which directories were built.
type fakeBuilder struct {
	built []string
	fail  map[string]error
	clock clockwork.FakeClock
}

func (b *fakeBuilder) Build(_ context.Context, dir string, _ []string) (build.Archive, error) {
	name := filepath.Base(dir)
	b.built = append(b.built, name)
	b.clock.Advance(2 * time.Second)
	if err := b.fail[name]; err != nil {
		return build.Archive{}, err
	}
	return build.Archive{Contents: []byte("archive of " + name), Files: []string{"index.js"}}, nil
}

func newTestEngine(client openwhisk.Client) (*Engine, *fakeBuilder) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	clock := clockwork.NewFakeClock()
	builder := &fakeBuilder{fail: map[string]error{}, clock: clock}
	engine := NewEngine(client, builder, logger)
	engine.clock = clock
	return engine, builder
}

// setupActions creates an action directory for each name, and mocks out
// the action configs according to `configs`.
func setupActions(t *testing.T, configs map[string]config.Action, names ...string) {
	fs = afero.NewMemMapFs()
	for _, name := range names {
		writeFiles(t, map[string]string{
			filepath.Join(testRoot, name, "index.js"): "function main() { return '" + name + "' }",
		})
	}

	parseAction = func(dir string) (config.Action, error) {
		if cfg, ok := configs[filepath.Base(dir)]; ok {
			return cfg, nil
		}
		return config.Action{Name: filepath.Base(dir), Fields: map[string]interface{}{}}, nil
	}
	t.Cleanup(func() { parseAction = config.ParseAction })
}

func TestRunScenario(t *testing.T) {
	setupActions(t, nil, "alpha", "beta")

	client := newFakeClient()
	alphaFingerprint := mustFingerprint(t, filepath.Join(testRoot, "alpha"),
		testPackage.FingerprintExcludes)
	client.actions["utils/alpha"] = fakeAction{annotations: openwhisk.KeyValues{
		{Key: openwhisk.FingerprintAnnotation, Value: alphaFingerprint},
	}}
	client.actions["utils/gamma"] = fakeAction{}
	client.actions["other/delta"] = fakeAction{}

	engine, builder := newTestEngine(client)
	result, err := engine.Run(context.Background(), testRoot, testPackage, Options{})
	assert.NoError(t, err)

	assert.Equal(t, map[string]interface{}{"publish": false}, client.packages["utils"])
	assert.Equal(t, []string{"alpha", "beta"}, builder.built)
	assert.Equal(t, []string{"beta"}, client.uploads)
	assert.Equal(t, []string{"gamma"}, client.deletes)
	assert.Contains(t, client.actions, "other/delta")

	assert.Equal(t, []string{"alpha", "beta"}, result.Processed())
	assert.Equal(t, []string{"gamma"}, result.Deleted)
	assert.Equal(t, Unchanged, result.Actions[0].Outcome)
	assert.Equal(t, Created, result.Actions[1].Outcome)
	assert.Equal(t, 2*time.Second, result.Actions[0].Duration)
	assert.Equal(t, 4*time.Second, result.Duration)

	assert.Equal(t, []byte("archive of beta"), client.actions["utils/beta"].archive)
	assert.Equal(t, result.Actions[1].Fingerprint, client.recordedFingerprint("utils", "beta"))
}

func TestRunIdempotent(t *testing.T) {
	setupActions(t, nil, "alpha", "beta", "gamma")

	client := newFakeClient()
	engine, _ := newTestEngine(client)

	_, err := engine.Run(context.Background(), testRoot, testPackage, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, client.uploads)

	client.resetCalls()
	result, err := engine.Run(context.Background(), testRoot, testPackage, Options{})
	assert.NoError(t, err)
	assert.Empty(t, client.uploads)
	assert.Empty(t, client.deletes)
	assert.Equal(t, 3, result.Count(Unchanged))
}

func TestRunUploadGating(t *testing.T) {
	setupActions(t, nil, "alpha")

	client := newFakeClient()
	client.actions["utils/alpha"] = fakeAction{annotations: openwhisk.KeyValues{
		{Key: "web-export", Value: true},
		{Key: openwhisk.FingerprintAnnotation, Value: "stale"},
	}}

	engine, _ := newTestEngine(client)
	result, err := engine.Run(context.Background(), testRoot, testPackage, Options{})
	assert.NoError(t, err)

	assert.Equal(t, []string{"alpha"}, client.uploads)
	assert.Equal(t, Updated, result.Actions[0].Outcome)

	localFingerprint := mustFingerprint(t, filepath.Join(testRoot, "alpha"),
		testPackage.FingerprintExcludes)
	assert.Equal(t, localFingerprint, result.Actions[0].Fingerprint)
	assert.Equal(t, localFingerprint, client.recordedFingerprint("utils", "alpha"))
}

func TestRunConfigurationOnlyChange(t *testing.T) {
	configs := map[string]config.Action{
		"alpha": {Name: "alpha", Fields: map[string]interface{}{"limits": map[string]interface{}{"timeout": 1000}}},
	}
	setupActions(t, configs, "alpha")

	client := newFakeClient()
	engine, _ := newTestEngine(client)
	_, err := engine.Run(context.Background(), testRoot, testPackage, Options{})
	require.NoError(t, err)

	client.resetCalls()
	configs["alpha"] = config.Action{Name: "alpha", Fields: map[string]interface{}{
		"limits": map[string]interface{}{"timeout": 2000}}}
	_, err = engine.Run(context.Background(), testRoot, testPackage, Options{})
	assert.NoError(t, err)
	assert.Empty(t, client.uploads)
}

func TestRunContentChange(t *testing.T) {
	setupActions(t, nil, "alpha", "beta")

	client := newFakeClient()
	engine, _ := newTestEngine(client)
	_, err := engine.Run(context.Background(), testRoot, testPackage, Options{})
	require.NoError(t, err)

	client.resetCalls()
	writeFiles(t, map[string]string{filepath.Join(testRoot, "beta", "index.js"): "changed"})
	// Installed dependencies don't affect the fingerprint.
	writeFiles(t, map[string]string{filepath.Join(testRoot, "alpha", "node_modules", "x.js"): "x"})

	result, err := engine.Run(context.Background(), testRoot, testPackage, Options{})
	assert.NoError(t, err)
	assert.Equal(t, []string{"beta"}, client.uploads)
	assert.Equal(t, Updated, result.Actions[1].Outcome)
}

func TestRunRenamedAction(t *testing.T) {
	configs := map[string]config.Action{
		"alpha": {Name: "greeter", Fields: map[string]interface{}{}},
	}
	setupActions(t, configs, "alpha")

	client := newFakeClient()
	client.actions["utils/alpha"] = fakeAction{}

	engine, _ := newTestEngine(client)
	result, err := engine.Run(context.Background(), testRoot, testPackage, Options{})
	assert.NoError(t, err)
	assert.Equal(t, []string{"greeter"}, result.Processed())
	assert.Equal(t, []string{"greeter"}, client.uploads)
	assert.Equal(t, []string{"alpha"}, client.deletes)
}

func TestRunDuplicateActionNames(t *testing.T) {
	configs := map[string]config.Action{
		"alpha": {Name: "same"},
		"beta":  {Name: "same"},
	}
	setupActions(t, configs, "alpha", "beta")

	client := &mocks.Client{}
	engine, builder := newTestEngine(client)
	_, err := engine.Run(context.Background(), testRoot, testPackage, Options{})

	var configErr errors.ConfigurationError
	assert.True(t, errors.As(err, &configErr))
	assert.Empty(t, builder.built)
	client.AssertExpectations(t)
}

func TestRunMissingRoot(t *testing.T) {
	setupActions(t, nil)

	client := &mocks.Client{}
	engine, _ := newTestEngine(client)
	_, err := engine.Run(context.Background(), "/does-not-exist", testPackage, Options{})

	var configErr errors.ConfigurationError
	assert.True(t, errors.As(err, &configErr))
	client.AssertExpectations(t)
}

func TestRunIgnoresExcludedDirectories(t *testing.T) {
	setupActions(t, nil, "alpha", ".hidden", "node_modules")

	client := newFakeClient()
	engine, builder := newTestEngine(client)
	result, err := engine.Run(context.Background(), testRoot, testPackage, Options{})
	assert.NoError(t, err)
	assert.Equal(t, []string{"alpha"}, builder.built)
	assert.Equal(t, []string{"alpha"}, result.Processed())
}

func TestRunFailFastOnBuildFailure(t *testing.T) {
	setupActions(t, nil, "alpha", "beta", "gamma")

	client := &mocks.Client{}
	client.On("UpdatePackage", mock.Anything, "utils", testPackage.Fields).
		Return(openwhisk.Package{Name: "utils"}, nil).Once()
	client.On("GetAction", mock.Anything, "utils", "alpha").
		Return(openwhisk.Action{}, openwhisk.ErrNotFound).Once()
	client.On("UpdateAction", mock.Anything, "utils", "alpha", []byte("archive of alpha"),
		mock.Anything, mock.Anything).Return(openwhisk.Action{}, nil).Once()

	engine, builder := newTestEngine(client)
	buildErr := errors.New("npm install failed")
	builder.fail["beta"] = buildErr

	result, err := engine.Run(context.Background(), testRoot, testPackage, Options{})
	assert.Equal(t, errors.BuildError{Action: "beta", Err: buildErr}, err)
	assert.True(t, errors.Is(err, buildErr))

	assert.Equal(t, []string{"alpha", "beta"}, builder.built)
	assert.Equal(t, []string{"alpha"}, result.Processed())
	client.AssertExpectations(t)
	client.AssertNotCalled(t, "ListActions", mock.Anything, mock.Anything)
	client.AssertNotCalled(t, "DeleteAction", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunPackageUpdateFails(t *testing.T) {
	setupActions(t, nil, "alpha")

	platformErr := errors.New("unauthorized")
	client := &mocks.Client{}
	client.On("UpdatePackage", mock.Anything, "utils", mock.Anything).
		Return(openwhisk.Package{}, platformErr).Once()

	engine, builder := newTestEngine(client)
	_, err := engine.Run(context.Background(), testRoot, testPackage, Options{})
	assert.Equal(t, errors.RemoteError{Op: "update package", Target: "utils", Err: platformErr}, err)
	assert.Empty(t, builder.built)
	client.AssertExpectations(t)
}

func TestRunUploadFails(t *testing.T) {
	setupActions(t, nil, "alpha", "beta")

	platformErr := errors.New("payload too large")
	client := &mocks.Client{}
	client.On("UpdatePackage", mock.Anything, "utils", mock.Anything).
		Return(openwhisk.Package{}, nil).Once()
	client.On("GetAction", mock.Anything, "utils", "alpha").
		Return(openwhisk.Action{}, openwhisk.ErrNotFound).Once()
	client.On("UpdateAction", mock.Anything, "utils", "alpha", mock.Anything,
		mock.Anything, mock.Anything).Return(openwhisk.Action{}, platformErr).Once()

	engine, builder := newTestEngine(client)
	_, err := engine.Run(context.Background(), testRoot, testPackage, Options{})
	assert.Equal(t, errors.RemoteError{Op: "upload action", Target: "alpha", Err: platformErr}, err)
	assert.Equal(t, []string{"alpha"}, builder.built)
	client.AssertExpectations(t)
}

func TestRunGetActionFails(t *testing.T) {
	setupActions(t, nil, "alpha")

	platformErr := errors.New("connection refused")
	client := &mocks.Client{}
	client.On("UpdatePackage", mock.Anything, "utils", mock.Anything).
		Return(openwhisk.Package{}, nil).Once()
	client.On("GetAction", mock.Anything, "utils", "alpha").
		Return(openwhisk.Action{}, platformErr).Once()

	engine, _ := newTestEngine(client)
	_, err := engine.Run(context.Background(), testRoot, testPackage, Options{})
	assert.Equal(t, errors.RemoteError{Op: "get action", Target: "alpha", Err: platformErr}, err)
	client.AssertNotCalled(t, "UpdateAction", mock.Anything, mock.Anything, mock.Anything,
		mock.Anything, mock.Anything, mock.Anything)
}

func TestRunCollectsDeleteFailures(t *testing.T) {
	setupActions(t, nil, "alpha")

	client := newFakeClient()
	for _, name := range []string{"orphan-1", "orphan-2", "orphan-3"} {
		client.actions["utils/"+name] = fakeAction{}
	}
	errOne := errors.New("forbidden")
	errThree := errors.New("timeout")
	client.deleteErrs["orphan-1"] = errOne
	client.deleteErrs["orphan-3"] = errThree

	engine, _ := newTestEngine(client)
	result, err := engine.Run(context.Background(), testRoot, testPackage, Options{})

	assert.Equal(t, errors.DeleteErrors{
		{Action: "orphan-1", Err: errOne},
		{Action: "orphan-3", Err: errThree},
	}, err)
	assert.True(t, errors.Is(err, errThree))
	assert.Equal(t, []string{"orphan-2"}, client.deletes)
	assert.Equal(t, []string{"orphan-2"}, result.Deleted)
	assert.Equal(t, []string{"alpha"}, result.Processed())
}

func TestRunDryRun(t *testing.T) {
	setupActions(t, nil, "alpha", "beta")

	client := &mocks.Client{}
	client.On("GetAction", mock.Anything, "utils", "alpha").
		Return(openwhisk.Action{Annotations: openwhisk.KeyValues{
			{Key: openwhisk.FingerprintAnnotation, Value: "stale"},
		}}, nil).Once()
	client.On("GetAction", mock.Anything, "utils", "beta").
		Return(openwhisk.Action{}, openwhisk.ErrNotFound).Once()
	client.On("ListActions", mock.Anything, "utils").
		Return([]openwhisk.Action{
			{Name: "alpha", Namespace: "guest/utils"},
			{Name: "gamma", Namespace: "guest/utils"},
		}, nil).Once()

	engine, builder := newTestEngine(client)
	result, err := engine.Run(context.Background(), testRoot, testPackage, Options{DryRun: true})
	assert.NoError(t, err)

	assert.True(t, result.DryRun)
	assert.Equal(t, []string{"alpha", "beta"}, builder.built)
	assert.Equal(t, Updated, result.Actions[0].Outcome)
	assert.Equal(t, Created, result.Actions[1].Outcome)
	assert.Equal(t, []string{"gamma"}, result.Deleted)
	client.AssertExpectations(t)
}

func TestRunDryRunNewPackage(t *testing.T) {
	setupActions(t, nil, "alpha")

	client := &mocks.Client{}
	client.On("GetAction", mock.Anything, "utils", "alpha").
		Return(openwhisk.Action{}, openwhisk.ErrNotFound).Once()
	client.On("ListActions", mock.Anything, "utils").
		Return(nil, openwhisk.ErrNotFound).Once()

	engine, _ := newTestEngine(client)
	result, err := engine.Run(context.Background(), testRoot, testPackage, Options{DryRun: true})
	assert.NoError(t, err)
	assert.Empty(t, result.Deleted)
	client.AssertExpectations(t)
}

func TestRunNoPrune(t *testing.T) {
	setupActions(t, nil, "alpha")

	client := newFakeClient()
	client.actions["utils/gamma"] = fakeAction{}

	engine, _ := newTestEngine(client)
	result, err := engine.Run(context.Background(), testRoot, testPackage, Options{NoPrune: true})
	assert.NoError(t, err)
	assert.Empty(t, client.deletes)
	assert.Empty(t, result.Deleted)
	assert.Contains(t, client.actions, "utils/gamma")
}

func TestFindOrphans(t *testing.T) {
	remote := []openwhisk.Action{
		{Name: "c", Namespace: "guest/utils"},
		{Name: "a", Namespace: "guest/utils"},
		{Name: "b", Namespace: "guest/utils"},
		{Name: "d", Namespace: "guest/other"},
		{Name: "e", Namespace: "guest"},
	}
	assert.Equal(t, []string{"c"}, findOrphans("utils", remote, []string{"a", "b"}))
	assert.Equal(t, []string{"a", "b", "c"}, findOrphans("utils", remote, nil))
	assert.Empty(t, findOrphans("utils", remote, []string{"a", "b", "c"}))
}

func TestNeedsUpload(t *testing.T) {
	tests := []struct {
		name   string
		action Action
		exp    bool
	}{
		{
			name:   "Missing",
			action: Action{Fingerprint: "abc"},
			exp:    true,
		},
		{
			name:   "Stale",
			action: Action{Fingerprint: "abc", RemoteExists: true, RemoteFingerprint: "def"},
			exp:    true,
		},
		{
			name:   "NeverRecorded",
			action: Action{Fingerprint: "abc", RemoteExists: true},
			exp:    true,
		},
		{
			name:   "UpToDate",
			action: Action{Fingerprint: "abc", RemoteExists: true, RemoteFingerprint: "abc"},
			exp:    false,
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.exp, test.action.NeedsUpload())
		})
	}
}

// The archive and the fingerprint are computed with independent exclude
// lists. This test uses the real builder, which reads from the OS
// filesystem.
// useOsFs points the engine at the real filesystem for the duration of the
// test.
func useOsFs(t *testing.T) {
	origFs, origParseAction := fs, parseAction
	fs = afero.NewOsFs()
	parseAction = config.ParseAction
	t.Cleanup(func() {
		fs = origFs
		parseAction = origParseAction
	})
}

func TestRunSymlinkedRoot(t *testing.T) {
	useOsFs(t)

	tmp := t.TempDir()
	target := filepath.Join(tmp, "target")
	shared := filepath.Join(tmp, "shared")
	require.NoError(t, os.MkdirAll(filepath.Join(target, "alpha"), 0755))
	require.NoError(t, os.MkdirAll(shared, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(target, "alpha", "index.js"), []byte("alpha"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(shared, "index.js"), []byte("gamma"), 0644))
	require.NoError(t, os.Symlink(shared, filepath.Join(target, "gamma")))

	root := filepath.Join(tmp, "utils")
	require.NoError(t, os.Symlink(target, root))

	client := newFakeClient()
	client.actions["utils/alpha"] = fakeAction{}
	client.actions["utils/beta"] = fakeAction{}

	engine, builder := newTestEngine(client)
	result, err := engine.Run(context.Background(), root, testPackage, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha", "gamma"}, builder.built)
	assert.Equal(t, []string{"alpha", "gamma"}, result.Processed())
	assert.Equal(t, []string{"alpha", "gamma"}, client.uploads)
	assert.Equal(t, []string{"beta"}, result.Deleted)
	assert.Contains(t, client.actions, "utils/alpha")
	assert.NotEmpty(t, client.recordedFingerprint("utils", "gamma"))
}

func TestExcludeScoping(t *testing.T) {
	useOsFs(t)
	root := t.TempDir()

	actionDir := filepath.Join(root, "alpha")
	require.NoError(t, os.MkdirAll(actionDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(actionDir, "index.js"), []byte("main"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(actionDir, "notes.md"), []byte("v1"), 0644))

	pkg := testPackage
	pkg.ArchiveExcludes = []string{"*.md"}
	pkg.FingerprintExcludes = nil

	client := newFakeClient()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	engine := NewEngine(client, build.New(pkg.ArchiveExcludes), logger)

	_, err := engine.Run(context.Background(), root, pkg, Options{})
	require.NoError(t, err)

	archive := client.actions["utils/alpha"].archive
	zipped, err := build.Zip(actionDir, pkg.ArchiveExcludes)
	require.NoError(t, err)
	assert.Equal(t, []string{"index.js"}, zipped.Files)
	assert.Equal(t, zipped.Contents, archive)

	// Changing the file that's excluded from the archive still triggers an
	// upload, since it's part of the fingerprint.
	client.resetCalls()
	require.NoError(t, os.WriteFile(filepath.Join(actionDir, "notes.md"), []byte("v2"), 0644))
	_, err = engine.Run(context.Background(), root, pkg, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha"}, client.uploads)
}
