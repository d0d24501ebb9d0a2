// Package config loads and validates the site configuration from site.toml.
//
// The build engine never starts with an invalid configuration: Load applies
// defaults and Validate must pass before any build pass begins.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultFileName is the configuration file looked up in the site root.
const DefaultFileName = "site.toml"

// Config represents the site configuration.
type Config struct {
	Title   string         `toml:"title"`
	BaseURL string         `toml:"base_url,omitempty"`
	Root    string         `toml:"-"` // site root directory, set by Load
	Workers int            `toml:"workers,omitempty"`
	Paths   Paths          `toml:"paths"`
	Vars    map[string]any `toml:"vars,omitempty"`
	Deploy  *DeployConfig  `toml:"deploy,omitempty"`
}

// Paths holds the content collection roots and the destination tree,
// all relative to the site root.
type Paths struct {
	Posts   string `toml:"posts,omitempty"`
	Pages   string `toml:"pages,omitempty"`
	Layouts string `toml:"layouts,omitempty"`
	Static  string `toml:"static,omitempty"`
	Output  string `toml:"output,omitempty"`
}

// DeployConfig selects a deployment strategy for the rendered site.
type DeployConfig struct {
	Strategy string `toml:"strategy"`
	Bucket   string `toml:"bucket,omitempty"`
}

// Load reads the configuration file under root, applies defaults and
// validates the result. A missing file yields the default configuration.
func Load(root string) (*Config, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve site root: %w", err)
	}

	cfg := &Config{Root: absRoot}
	path := filepath.Join(absRoot, DefaultFileName)
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// No site.toml: conventions only.
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Paths.Posts == "" {
		c.Paths.Posts = "posts"
	}
	if c.Paths.Pages == "" {
		c.Paths.Pages = "pages"
	}
	if c.Paths.Layouts == "" {
		c.Paths.Layouts = "layouts"
	}
	if c.Paths.Static == "" {
		c.Paths.Static = "static"
	}
	if c.Paths.Output == "" {
		c.Paths.Output = "public"
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.Vars == nil {
		c.Vars = map[string]any{}
	}
}

// Validate checks the configuration for problems that must abort startup:
// a missing layout root, path entries escaping the site root, or an output
// directory nested inside a content root.
func (c *Config) Validate() error {
	if c.Root == "" {
		return errors.New("config: site root is required")
	}
	for name, rel := range map[string]string{
		"paths.posts":   c.Paths.Posts,
		"paths.pages":   c.Paths.Pages,
		"paths.layouts": c.Paths.Layouts,
		"paths.static":  c.Paths.Static,
		"paths.output":  c.Paths.Output,
	} {
		if filepath.IsAbs(rel) || strings.HasPrefix(filepath.Clean(rel), "..") {
			return fmt.Errorf("config: %s must be a relative path inside the site root, got %q", name, rel)
		}
	}

	if st, err := os.Stat(c.LayoutsDir()); err != nil || !st.IsDir() {
		return fmt.Errorf("config: layout root %s not found", c.LayoutsDir())
	}

	out := filepath.Clean(c.Paths.Output)
	for name, rel := range map[string]string{
		"paths.posts":   c.Paths.Posts,
		"paths.pages":   c.Paths.Pages,
		"paths.layouts": c.Paths.Layouts,
		"paths.static":  c.Paths.Static,
	} {
		if within(filepath.Clean(rel), out) || within(out, filepath.Clean(rel)) {
			return fmt.Errorf("config: paths.output %q overlaps %s %q", out, name, rel)
		}
	}

	if c.Deploy != nil && c.Deploy.Strategy == "" {
		return errors.New("config: deploy.strategy is required when [deploy] is present")
	}
	return nil
}

func within(child, parent string) bool {
	return child == parent || strings.HasPrefix(child, parent+string(filepath.Separator))
}

// PostsDir returns the absolute post collection root.
func (c *Config) PostsDir() string { return filepath.Join(c.Root, c.Paths.Posts) }

// PagesDir returns the absolute page collection root.
func (c *Config) PagesDir() string { return filepath.Join(c.Root, c.Paths.Pages) }

// LayoutsDir returns the absolute layout root.
func (c *Config) LayoutsDir() string { return filepath.Join(c.Root, c.Paths.Layouts) }

// StaticDir returns the absolute static asset root.
func (c *Config) StaticDir() string { return filepath.Join(c.Root, c.Paths.Static) }

// OutputDir returns the absolute destination root.
func (c *Config) OutputDir() string { return filepath.Join(c.Root, c.Paths.Output) }

// ConfigFile returns the absolute path of the configuration file,
// whether or not it exists.
func (c *Config) ConfigFile() string { return filepath.Join(c.Root, DefaultFileName) }
