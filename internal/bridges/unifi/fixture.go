package unifi

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"
	"github.com/tidwall/jsonc"

	"github.com/nerrad567/gray-logic-unifi/internal/jsontree"
)

// FileController replays controller responses from a directory of JSON
// snapshots. Comments and trailing commas are allowed.
//
// Layout:
//
//	<dir>/sites.json
//	<dir>/<site>/sysinfo.json
//	<dir>/<site>/clients.json
//	<dir>/<site>/devices.json
//
// Each file may hold either the bare data array or the controller envelope
// {"meta":{"rc":"ok"},"data":[...]}. Files may use the .jsonc extension.
// A missing per-site file reads as an empty list.
type FileController struct {
	dir string
}

// NewFileController creates a fixture controller rooted at dir.
func NewFileController(dir string) *FileController {
	return &FileController{dir: dir}
}

// Login implements Controller. It only checks that the fixture exists.
func (f *FileController) Login(_ context.Context, _, _ string) error {
	if _, ok := f.find("sites"); !ok {
		return fmt.Errorf("%w: %w: no sites.json in %s", ErrLoginFailed, ErrFixtureNotFound, f.dir)
	}
	return nil
}

// SiteStats implements Controller.
func (f *FileController) SiteStats(_ context.Context) ([]jsontree.Node, error) {
	path, ok := f.find("sites")
	if !ok {
		return nil, fmt.Errorf("%w: no sites.json in %s", ErrFixtureNotFound, f.dir)
	}
	doc, err := readFixture(path)
	if err != nil {
		return nil, err
	}
	arr, ok := doc.([]jsontree.Node)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not an array", ErrControllerResponse, path)
	}
	return arr, nil
}

// SiteSysinfo implements Controller.
func (f *FileController) SiteSysinfo(_ context.Context, sites []string) ([]jsontree.Node, error) {
	return f.perSite(sites, "sysinfo")
}

// ClientDevices implements Controller.
func (f *FileController) ClientDevices(_ context.Context, sites []string) ([]jsontree.Node, error) {
	return f.perSite(sites, "clients")
}

// AccessDevices implements Controller.
func (f *FileController) AccessDevices(_ context.Context, sites []string) ([]jsontree.Node, error) {
	return f.perSite(sites, "devices")
}

// Logout implements Controller.
func (f *FileController) Logout(_ context.Context) error {
	return nil
}

func (f *FileController) perSite(sites []string, name string) ([]jsontree.Node, error) {
	out := make([]jsontree.Node, 0, len(sites))
	for _, site := range sites {
		path, ok := f.find(filepath.Join(filepath.Clean("/" + site)[1:], name))
		if !ok {
			out = append(out, []jsontree.Node{})
			continue
		}
		doc, err := readFixture(path)
		if err != nil {
			return nil, fmt.Errorf("site %s: %w", site, err)
		}
		out = append(out, doc)
	}
	return out, nil
}

// find returns the path of <dir>/<base>.json or <dir>/<base>.jsonc.
func (f *FileController) find(base string) (string, bool) {
	for _, ext := range []string{".json", ".jsonc"} {
		path := filepath.Join(f.dir, base+ext)
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

// readFixture loads one snapshot file and unwraps a controller envelope.
func readFixture(path string) (jsontree.Node, error) {
	raw, err := os.ReadFile(path) //nolint:gosec // Path is built from the configured fixture directory
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFixtureNotFound, path)
		}
		return nil, fmt.Errorf("%w: reading %s: %w", ErrRequestFailed, path, err)
	}

	clean := jsonc.ToJSON(raw)
	if !gjson.ValidBytes(clean) {
		return nil, fmt.Errorf("%w: %s is not valid JSON", ErrControllerResponse, path)
	}

	doc := gjson.ParseBytes(clean)
	if doc.IsObject() && doc.Get("data").Exists() {
		return parseEnvelope(clean)
	}
	return jsontree.FromResult(doc), nil
}
