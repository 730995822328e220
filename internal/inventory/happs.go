package inventory

import (
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"holoport-stats/internal/config"

	"gopkg.in/yaml.v3"
)

// Happ is one entry of the host's happs manifest.
type Happ struct {
	BundleURL  string `yaml:"bundle_url"`
	BundlePath string `yaml:"bundle_path"`
	UIURL      string `yaml:"ui_url"`
	UIPath     string `yaml:"ui_path"`
}

// HappsFile is the manifest written for the conductor configurator.
type HappsFile struct {
	SelfHostedHapps []Happ `yaml:"self_hosted_happs"`
	CoreHapps       []Happ `yaml:"core_happs"`
}

func LoadHappsFile(p string) (*HappsFile, error) {
	raw, err := os.ReadFile(p)
	if err != nil {
		return nil, &config.Error{Subject: p, Err: err}
	}
	var file HappsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, config.Errorf(p, "parsing happs manifest: %w", err)
	}
	return &file, nil
}

// ID derives the installed app id from the bundle file name:
// "core-app.v0_1_2.happ" becomes "core-app:v0_1_2", with "::<uid>"
// appended when uidOverride is set.
func (h Happ) ID(uidOverride string) string {
	name := h.bundleName()
	id := strings.ReplaceAll(strings.ReplaceAll(name, ".happ", ""), ".", ":")
	if uidOverride != "" {
		id += "::" + uidOverride
	}
	return id
}

func (h Happ) bundleName() string {
	if h.BundlePath != "" {
		return filepath.Base(h.BundlePath)
	}
	if h.BundleURL != "" {
		if u, err := url.Parse(h.BundleURL); err == nil && u.Path != "" {
			return path.Base(u.Path)
		}
	}
	return "unreadable"
}

// FindCoreApp returns the first core happ whose id names the core app.
func (f *HappsFile) FindCoreApp(uidOverride string) (Happ, bool) {
	for _, happ := range f.CoreHapps {
		if strings.Contains(happ.ID(uidOverride), "core-app") {
			return happ, true
		}
	}
	return Happ{}, false
}
