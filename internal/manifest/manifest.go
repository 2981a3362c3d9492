// Package manifest loads the TOML document listing which project corpora
// to mirror.
//
// The document maps each project to the fuzz targets whose corpora should
// be fetched:
//
//	libpng = ["libpng_read_fuzzer"]
//	zlib   = ["compress_fuzzer", "zlib_uncompress_fuzzer"]
//
// Projects and targets keep document order, which is the download order.
package manifest

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Error is returned for any manifest that cannot be used: missing,
// unreadable, malformed, or with empty names.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("manifest: %v", e.Err)
	}
	return fmt.Sprintf("manifest %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Project is one manifest entry.
type Project struct {
	Name    string
	Targets []string
}

// Manifest is the ordered list of projects to mirror.
type Manifest struct {
	Projects []Project
}

// TargetCount returns the number of targets across all projects.
func (m *Manifest) TargetCount() int {
	n := 0
	for _, p := range m.Projects {
		n += len(p.Targets)
	}
	return n
}

// Load reads and parses the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}

	m, err := Parse(data)
	if err != nil {
		var me *Error
		if errors.As(err, &me) {
			me.Path = path
		}
		return nil, err
	}
	return m, nil
}

// Parse decodes a manifest document.
func Parse(data []byte) (*Manifest, error) {
	var raw map[string][]string
	md, err := toml.Decode(string(data), &raw)
	if err != nil {
		return nil, &Error{Err: err}
	}

	m := &Manifest{}
	for _, key := range md.Keys() {
		// Array elements never show up as keys, so anything deeper than one
		// level means a table was used where a target list was expected.
		if len(key) != 1 {
			return nil, &Error{Err: fmt.Errorf("unexpected nested key %q", key.String())}
		}

		name := key[0]
		if name == "" {
			return nil, &Error{Err: errors.New("empty project name")}
		}

		targets := raw[name]
		for i, t := range targets {
			if t == "" {
				return nil, &Error{Err: fmt.Errorf("project %s: empty target name at index %d", name, i)}
			}
		}

		m.Projects = append(m.Projects, Project{Name: name, Targets: targets})
	}

	return m, nil
}
