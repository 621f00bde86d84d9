// Package manifest loads the list of sessions a stdiomux process should run.
//
// A manifest is a TOML or YAML file, chosen by extension:
//
//	[[session]]
//	id = "fs"
//	command = "npx -y @modelcontextprotocol/server-filesystem /tmp"
//	env = [{ key = "DEBUG", value = "1" }]
package manifest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/wagiedev/stdiomux/internal/subprocess"
)

// Format is a manifest encoding.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// Manifest is the set of sessions to run.
type Manifest struct {
	Sessions []Entry `toml:"session" yaml:"session"`
}

// Entry describes one session.
type Entry struct {
	ID      string              `toml:"id"      yaml:"id"`
	Command string              `toml:"command" yaml:"command"`
	Env     []subprocess.EnvVar `toml:"env"     yaml:"env"`
}

// FormatFor picks the format from the file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported manifest extension %q (want .toml, .yaml or .yml)", filepath.Ext(path))
	}
}

// Load reads, parses and validates the manifest at path.
func Load(path string) (*Manifest, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	return Parse(data, format)
}

// Parse decodes and validates a manifest.
func Parse(data []byte, format Format) (*Manifest, error) {
	var m Manifest

	switch format {
	case FormatTOML:
		if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&m); err != nil {
			return nil, fmt.Errorf("parsing manifest: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parsing manifest: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported manifest format %q", format)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Validate checks that every entry has a unique id and a command.
func (m *Manifest) Validate() error {
	seen := make(map[string]struct{}, len(m.Sessions))

	for i, entry := range m.Sessions {
		if strings.TrimSpace(entry.ID) == "" {
			return fmt.Errorf("session entry %d missing id", i)
		}

		if strings.TrimSpace(entry.Command) == "" {
			return fmt.Errorf("session %q missing command", entry.ID)
		}

		if _, dup := seen[entry.ID]; dup {
			return fmt.Errorf("session %q listed more than once", entry.ID)
		}

		seen[entry.ID] = struct{}{}

		for _, env := range entry.Env {
			if env.Key == "" || strings.Contains(env.Key, "=") {
				return fmt.Errorf("session %q has invalid env key %q", entry.ID, env.Key)
			}
		}
	}

	return nil
}

// Lookup returns the entry with the given id.
func (m *Manifest) Lookup(id string) (Entry, bool) {
	for _, entry := range m.Sessions {
		if entry.ID == id {
			return entry, true
		}
	}

	return Entry{}, false
}

// Added returns the entries of next whose ids are not in prev, in order.
func Added(prev, next *Manifest) []Entry {
	known := make(map[string]struct{})

	if prev != nil {
		for _, entry := range prev.Sessions {
			known[entry.ID] = struct{}{}
		}
	}

	var added []Entry

	for _, entry := range next.Sessions {
		if _, ok := known[entry.ID]; !ok {
			added = append(added, entry)
		}
	}

	return added
}
