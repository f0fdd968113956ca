// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/adiadia/tracker/internal/archive"
	"github.com/adiadia/tracker/internal/domain"
	"github.com/adiadia/tracker/internal/tracking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const registryYAML = `
event_types:
  ET_LOGIN: 1
  ET_LOGOUT: 2
state_keys:
  SK_MODE: 1
  SK_THEME: 2
`

// storeArgs points the CLI at a fresh sqlite store and registry file.
func storeArgs(t *testing.T) []string {
	t.Helper()
	t.Setenv("WEBHOOK_URL", "")
	t.Setenv("ARCHIVE_BUCKET", "")

	dir := t.TempDir()
	reg := filepath.Join(dir, "registry.yaml")
	require.NoError(t, os.WriteFile(reg, []byte(registryYAML), 0o600))

	return []string{
		"--driver", "sqlite",
		"--sqlite-path", filepath.Join(dir, "tracker.db"),
		"--registry", reg,
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func withStore(store []string, args ...string) []string {
	return append(append([]string{}, args...), store...)
}

func decodeLines[T any](t *testing.T, out string) []T {
	t.Helper()

	var items []T
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		var item T
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &item), scanner.Text())
		items = append(items, item)
	}
	return items
}

func TestRootRejectsUnknownFormat(t *testing.T) {
	_, err := run(t, "registry", "--format", "yaml")

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid format")
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad")))

	wrapped := WrapExitError(ExitFailure, "log event failed", domain.ErrDuplicateInstant)
	assert.ErrorIs(t, wrapped, domain.ErrDuplicateInstant)
	assert.Equal(t, "log event failed: instant already recorded", wrapped.Error())
}

func TestMigrateSQLite(t *testing.T) {
	store := storeArgs(t)

	out, err := run(t, withStore(store, "migrate", "--format", "json")...)
	require.NoError(t, err)

	res := decodeLines[migrateResult](t, out)
	require.Len(t, res, 1)
	assert.Equal(t, migrateResult{Driver: "sqlite", Status: "ready", SchemaVersion: 1}, res[0])

	out, err = run(t, withStore(store, "migrate")...)
	require.NoError(t, err)
	assert.Equal(t, "sqlite schema ready (version 1)\n", out)
}

func TestMigrateUnknownDriver(t *testing.T) {
	_, err := run(t, "migrate", "--driver", "mysql")

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRegistryListing(t *testing.T) {
	out, err := run(t, withStore(storeArgs(t), "registry", "--format", "json")...)
	require.NoError(t, err)

	listing := decodeLines[registryListing](t, out)
	require.Len(t, listing, 1)
	assert.Equal(t, []registryEntry{{Name: "ET_LOGIN", ID: 1}, {Name: "ET_LOGOUT", ID: 2}}, listing[0].EventTypes)
	assert.Equal(t, []registryEntry{{Name: "SK_MODE", ID: 1}, {Name: "SK_THEME", ID: 2}}, listing[0].StateKeys)
}

func TestRegistryMissingFile(t *testing.T) {
	_, err := run(t, "registry", "--driver", "sqlite", "--sqlite-path", filepath.Join(t.TempDir(), "x.db"), "--registry", "/nonexistent/registry.yaml")

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestLogEventAndQuery(t *testing.T) {
	store := storeArgs(t)

	out, err := run(t, withStore(store, "log-event", "ET_LOGIN", "--user", "7", "--timestamp", "100000", "--payload", `{"ip": "10.0.0.1"}`)...)
	require.NoError(t, err)
	assert.Equal(t, "100000 user=7 type=1 payload={\"ip\":\"10.0.0.1\"}\n", out)

	_, err = run(t, withStore(store, "log-event", "2", "--user", "8", "--timestamp", "200000")...)
	require.NoError(t, err)
	_, err = run(t, withStore(store, "log-event", "ET_LOGOUT", "--user", "7", "--timestamp", "300000", "--payload", "null")...)
	require.NoError(t, err)

	out, err = run(t, withStore(store, "events", "--format", "json")...)
	require.NoError(t, err)
	events := decodeLines[domain.Event](t, out)
	require.Len(t, events, 3)
	assert.Equal(t, "100000", events[0].Timestamp.String())
	assert.JSONEq(t, `{"ip":"10.0.0.1"}`, string(events[0].Payload))
	assert.Equal(t, domain.UserID(8), events[1].UserID)
	assert.JSONEq(t, "null", string(events[2].Payload))

	out, err = run(t, withStore(store, "events", "--format", "json", "--user", "7", "--type", "ET_LOGOUT")...)
	require.NoError(t, err)
	events = decodeLines[domain.Event](t, out)
	require.Len(t, events, 1)
	assert.Equal(t, "300000", events[0].Timestamp.String())

	out, err = run(t, withStore(store, "events", "--format", "json", "--from-ts", "150000", "--until-ts", "250000")...)
	require.NoError(t, err)
	events = decodeLines[domain.Event](t, out)
	require.Len(t, events, 1)
	assert.Equal(t, "200000", events[0].Timestamp.String())

	out, err = run(t, withStore(store, "events", "--from", "25", "--until", "30")...)
	require.NoError(t, err)
	assert.Equal(t, "300000 user=7 type=2 payload=null\n", out)
}

func TestLogEventErrors(t *testing.T) {
	store := storeArgs(t)

	tests := []struct {
		name string
		args []string
		code int
		is   error
	}{
		{name: "missing user", args: []string{"log-event", "ET_LOGIN"}, code: ExitCommandError},
		{name: "unknown name", args: []string{"log-event", "ET_NOPE", "--user", "1"}, code: ExitCommandError},
		{name: "bad payload", args: []string{"log-event", "1", "--user", "1", "--payload", "{"}, code: ExitCommandError, is: domain.ErrEncoding},
		{name: "bad timestamp", args: []string{"log-event", "1", "--user", "1", "--timestamp", "007"}, code: ExitCommandError, is: domain.ErrInvalidTimestamp},
		{name: "undeclared id", args: []string{"log-event", "9", "--user", "1"}, code: ExitFailure, is: domain.ErrInvalidType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, withStore(store, tt.args...)...)
			require.Error(t, err)
			assert.Equal(t, tt.code, GetExitCode(err))
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}
}

func TestLogEventDuplicateInstant(t *testing.T) {
	store := storeArgs(t)
	args := withStore(store, "log-event", "ET_LOGIN", "--user", "3", "--timestamp", "42")

	_, err := run(t, args...)
	require.NoError(t, err)

	_, err = run(t, args...)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.ErrorIs(t, err, domain.ErrDuplicateInstant)
	assert.False(t, tracking.IsHookError(err))
}

func TestLogStateAndSnapshot(t *testing.T) {
	store := storeArgs(t)

	_, err := run(t, withStore(store, "log-state", "SK_MODE", "--user", "1", "--timestamp", "100", "--value", `"dark"`)...)
	require.NoError(t, err)
	_, err = run(t, withStore(store, "log-state", "SK_MODE", "--user", "2", "--timestamp", "200", "--value", `"light"`)...)
	require.NoError(t, err)

	out, err := run(t, withStore(store, "state", "--format", "json", "--at-ts", "150")...)
	require.NoError(t, err)
	listing := decodeLines[stateListing](t, out)
	require.Len(t, listing, 1)
	assert.Equal(t, "150", listing[0].At.String())
	require.Len(t, listing[0].States, 2)
	assert.JSONEq(t, `"dark"`, string(listing[0].States[0].Value))
	assert.JSONEq(t, "null", string(listing[0].States[1].Value))

	out, err = run(t, withStore(store, "state", "--at-ts", "250", "--key", "SK_MODE")...)
	require.NoError(t, err)
	assert.Contains(t, out, `"light"`)
	assert.NotContains(t, out, "SK_THEME")

	_, err = run(t, withStore(store, "state", "--at", "1", "--at-ts", "1")...)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestLogStateNullValue(t *testing.T) {
	out, err := run(t, withStore(storeArgs(t), "log-state", "2", "--user", "4", "--timestamp", "9")...)
	require.NoError(t, err)
	assert.Equal(t, "9 user=4 key=2 value=null\n", out)
}

func TestExportToDirectory(t *testing.T) {
	store := storeArgs(t)
	for _, ts := range []string{"10", "20", "30"} {
		_, err := run(t, withStore(store, "log-event", "ET_LOGIN", "--user", "1", "--timestamp", ts)...)
		require.NoError(t, err)
	}

	dir := t.TempDir()
	out, err := run(t, withStore(store, "export", "--format", "json", "--dir", dir, "--until-ts", "25", "--key", "batch/one.sz")...)
	require.NoError(t, err)

	res := decodeLines[archive.Result](t, out)
	require.Len(t, res, 1)
	assert.Equal(t, "batch/one.sz", res[0].Key)
	assert.Equal(t, 2, res[0].Events)

	f, err := os.Open(filepath.Join(dir, "batch", "one.sz"))
	require.NoError(t, err)
	defer f.Close()

	events, err := tracking.Collect(archive.Read(f))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "20", events[1].Timestamp.String())
}

func TestExportRequiresTarget(t *testing.T) {
	_, err := run(t, withStore(storeArgs(t), "export")...)

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
