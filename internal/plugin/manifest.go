package plugin

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/woxQAQ/readerscan/internal/wasm"
	"gopkg.in/yaml.v3"
)

// ManifestFile is the manifest file name inside a plugin directory.
const ManifestFile = "manifest.yaml"

// CapabilityChapterImages marks a guest implementing the chapter image ABI.
const CapabilityChapterImages = "chapter_images"

// Manifest represents a parser plugin's manifest.yaml.
type Manifest struct {
	Name         string       `yaml:"name"`
	Version      string       `yaml:"version"`
	Sites        []string     `yaml:"sites"`
	Wasm         WasmConfig   `yaml:"wasm"`
	Exports      ExportConfig `yaml:"exports"`
	Capabilities []string     `yaml:"capabilities"`
	Author       string       `yaml:"author"`
	License      string       `yaml:"license"`

	dir string // Directory containing manifest
}

// WasmConfig holds Wasm module configuration.
type WasmConfig struct {
	File string `yaml:"file"`
}

// ExportConfig overrides the guest export names. Empty fields fall back to
// the names in pkg/protocol.
type ExportConfig struct {
	Alloc   string `yaml:"alloc"`
	Dealloc string `yaml:"dealloc"`
	Extract string `yaml:"extract"`
}

// ParseManifest reads and parses manifest.yaml from a directory.
func ParseManifest(dir string) (*Manifest, error) {
	manifestPath := filepath.Join(dir, ManifestFile)

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, &ManifestNotFoundError{
			Path: manifestPath,
			Err:  err,
		}
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, &ManifestParseError{
			Path: manifestPath,
			Err:  err,
		}
	}

	m.dir = dir

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Validate checks manifest fields.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return &ManifestValidationError{
			Path:    m.Path(),
			Field:   "name",
			Message: "name is required",
		}
	}

	if m.Version == "" {
		return &ManifestValidationError{
			Path:    m.Path(),
			Field:   "version",
			Message: "version is required",
		}
	}

	if len(m.Sites) == 0 {
		return &ManifestValidationError{
			Path:    m.Path(),
			Field:   "sites",
			Message: "at least one site is required",
		}
	}

	for _, site := range m.Sites {
		if site == "" || strings.ContainsAny(site, "/: ") {
			return &ManifestValidationError{
				Path:    m.Path(),
				Field:   "sites",
				Message: fmt.Sprintf("invalid site %q (must be a bare host name)", site),
			}
		}
	}

	if m.Wasm.File == "" {
		return &ManifestValidationError{
			Path:    m.Path(),
			Field:   "wasm.file",
			Message: "wasm.file is required",
		}
	}

	if len(m.Capabilities) == 0 {
		return &ManifestValidationError{
			Path:    m.Path(),
			Field:   "capabilities",
			Message: "at least one capability is required",
		}
	}

	for _, c := range m.Capabilities {
		if c != CapabilityChapterImages {
			return &ManifestValidationError{
				Path:    m.Path(),
				Field:   "capabilities",
				Message: fmt.Sprintf("unknown capability: %s (must be %s)", c, CapabilityChapterImages),
			}
		}
	}

	if _, err := os.Stat(m.WasmPath()); os.IsNotExist(err) {
		return &WasmNotFoundError{
			ManifestPath: m.Path(),
			WasmFile:     m.Wasm.File,
		}
	}

	return nil
}

// ExportNames returns the guest export names with protocol defaults applied.
func (m *Manifest) ExportNames() wasm.ExportNames {
	return wasm.ExportNames{
		Alloc:   m.Exports.Alloc,
		Dealloc: m.Exports.Dealloc,
		Extract: m.Exports.Extract,
	}.WithDefaults()
}

// Path returns the manifest file path.
func (m *Manifest) Path() string {
	return filepath.Join(m.dir, ManifestFile)
}

// WasmPath returns the path to the Wasm file.
func (m *Manifest) WasmPath() string {
	return filepath.Join(m.dir, m.Wasm.File)
}

// Dir returns the directory containing the manifest.
func (m *Manifest) Dir() string {
	return m.dir
}
