package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hanpama/graphsync/internal/introspection"
	"github.com/hanpama/graphsync/internal/remote"
	"github.com/hanpama/graphsync/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cmsSDL = `
interface EntryInterface { id: ID title: String }
type blog_blog_Entry implements EntryInterface { id: ID title: String }
type Query {
  entries(type: String, limit: Int, offset: Int): [EntryInterface]
  entry(type: String, id: ID): EntryInterface
}
`

// newCMS serves introspection and the blog entry list.
func newCMS(t *testing.T) *httptest.Server {
	t.Helper()
	model, err := schema.BuildFromSDL(cmsSDL)
	require.NoError(t, err)
	schemaData, err := introspection.Encode(model)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var op remote.Operation
		if err := json.NewDecoder(r.Body).Decode(&op); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch op.Name {
		case introspection.OperationName:
			_ = json.NewEncoder(w).Encode(remote.Response{Data: schemaData})
		case "LIST_blog_blog_Entry":
			entries := []map[string]any{}
			if op.Variables["offset"] == float64(0) {
				entries = append(entries,
					map[string]any{"__typename": "blog_blog_Entry", "id": "1", "title": "one"},
					map[string]any{"__typename": "blog_blog_Entry", "id": "2", "title": "two"})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"entries": entries}})
		default:
			http.Error(w, "unexpected operation "+op.Name, http.StatusBadRequest)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, dir, endpoint string) string {
	t.Helper()
	path := filepath.Join(dir, "graphsync.yaml")
	text := strings.Join([]string{
		"endpoint: " + endpoint,
		"fragmentsDir: " + filepath.Join(dir, "fragments"),
		"debugDir: " + filepath.Join(dir, "debug"),
		"schemaOutput: " + filepath.Join(dir, "schema.graphql"),
		"store:",
		"  inMemory: true",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

func TestIntrospect(t *testing.T) {
	srv := newCMS(t)
	var stdout, stderr bytes.Buffer
	err := run([]string{"introspect", "--endpoint", srv.URL, "--store.in-memory"}, &stdout, &stderr)
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "interface EntryInterface {")
	assert.Contains(t, stdout.String(), "type blog_blog_Entry implements EntryInterface {")
}

func TestRunAllHooks(t *testing.T) {
	srv := newCMS(t)
	dir := t.TempDir()
	cfg := writeConfig(t, dir, srv.URL)

	var stdout, stderr bytes.Buffer
	err := run([]string{"run", "--config", cfg, "--log.format", "json"}, &stdout, &stderr)
	require.NoError(t, err, stderr.String())

	assert.Equal(t, "full sync of 1 types: 2 created, 0 updated, 0 deleted, 0 unchanged\n", stdout.String())
	assert.FileExists(t, filepath.Join(dir, "fragments", "blog_blog_Entry.graphql"))
	assert.FileExists(t, filepath.Join(dir, "debug", "blog_blog_Entry.graphql"))

	sdl, err := os.ReadFile(filepath.Join(dir, "schema.graphql"))
	require.NoError(t, err)
	assert.Contains(t, string(sdl), "type Craft_blog_blog_Entry {")
}

func TestCustomizeSchemaToStdout(t *testing.T) {
	srv := newCMS(t)
	dir := t.TempDir()
	cfg := writeConfig(t, dir, srv.URL)

	var stdout, stderr bytes.Buffer
	err := run([]string{"customize-schema", "--config", cfg, "--out", "-"}, &stdout, &stderr)
	require.NoError(t, err, stderr.String())
	assert.Contains(t, stdout.String(), "remoteTypeName: String!")
	assert.NoFileExists(t, filepath.Join(dir, "schema.graphql"))
}

func TestConfigErrors(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run([]string{"source", "--store.in-memory"}, &stdout, &stderr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint")

	err = run([]string{"source", "--endpoint", "http://localhost", "--log.level", "loud"}, &stdout, &stderr)
	assert.ErrorContains(t, err, "log level")

	err = run([]string{"source", "extra"}, &stdout, &stderr)
	assert.Error(t, err)
}
