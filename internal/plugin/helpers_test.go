package plugin

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

// grayscaleLua registers the "gs" filter and records cleanup in settings.
const grayscaleLua = `
local host

function initialize(api)
  host = api
  api.filters.register({
    id = "gs",
    name = "Grayscale",
    apply = function(pixels, settings)
      local d = pixels.data
      for i = 1, #d, 4 do
        local y = math.floor(0.299 * d[i] + 0.587 * d[i + 1] + 0.114 * d[i + 2] + 0.5)
        d[i] = y
        d[i + 1] = y
        d[i + 2] = y
      end
      return pixels
    end,
  })
end

function cleanup()
  host.settings.set("cleaned", true)
end
`

const throwingLua = `
function initialize(api)
  error("initialize exploded")
end
`

const sharpenJS = `
function initialize(api) {
  api.filters.register({
    id: "sharpen",
    apply: function (pixels, settings) { return pixels; }
  });
}
`

func testManifest(id string) map[string]any {
	return map[string]any{
		"id":          id,
		"name":        "Test " + id,
		"version":     "1.0.0",
		"apiVersion":  "1.2",
		"type":        "filter",
		"main":        "main.lua",
		"permissions": []any{"filter:register"},
		"capabilities": map[string]any{
			"filters": []any{map[string]any{"id": "gs", "name": "Grayscale"}},
		},
	}
}

func sharpenManifest(id string) map[string]any {
	m := testManifest(id)
	m["main"] = "main.js"
	m["capabilities"] = map[string]any{
		"filters": []any{map[string]any{"id": "sharpen"}},
	}
	return m
}

// packageFiles returns the files of a package with the manifest encoded
// as plugin.json.
func packageFiles(t *testing.T, manifest map[string]any, files map[string]string) map[string]string {
	t.Helper()
	data, err := json.MarshalIndent(manifest, "", "  ")
	require.NoError(t, err)

	out := map[string]string{"plugin.json": string(data)}
	for name, content := range files {
		out[name] = content
	}
	return out
}

// writeDir writes files below dir and returns dir.
func writeDir(t *testing.T, dir string, files map[string]string) string {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return dir
}

// writePackage writes a package directory with a Lua entry file.
func writePackage(t *testing.T, manifest map[string]any, entry string) string {
	t.Helper()
	main, _ := manifest["main"].(string)
	if main == "" {
		main = "main.lua"
	}
	return writeDir(t, t.TempDir(), packageFiles(t, manifest, map[string]string{main: entry}))
}

func sortedNames(files map[string]string) []string {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func writeZip(t *testing.T, path string, files map[string]string) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range sortedNames(files) {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(files[name]))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func writeTar(t *testing.T, w io.Writer, files map[string]string) {
	t.Helper()
	tw := tar.NewWriter(w)
	for _, name := range sortedNames(files) {
		content := files[name]
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0o644,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
}

func writeTarGz(t *testing.T, path string, files map[string]string) string {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	writeTar(t, gz, files)
	require.NoError(t, gz.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func writeTarXz(t *testing.T, path string, files map[string]string) string {
	t.Helper()
	var buf bytes.Buffer
	xw, err := xz.NewWriter(&buf)
	require.NoError(t, err)
	writeTar(t, xw, files)
	require.NoError(t, xw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func nullLogger() *logrus.Logger {
	logger, _ := test.NewNullLogger()
	return logger
}

// eventRecorder collects registry events.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) handle(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) types(plugin string) []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []EventType
	for _, e := range r.events {
		if e.Plugin == plugin {
			out = append(out, e.Type)
		}
	}
	return out
}
