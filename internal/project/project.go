// Package project detects the hybrid project flavor and reads project
// metadata files (config.xml, AndroidManifest.xml, package.json).
package project

import (
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"
)

// Flavor is the recognized hybrid project type.
type Flavor int

const (
	// FlavorCordova is a plain Cordova project.
	FlavorCordova Flavor = iota

	// FlavorIonic is an Ionic project (Cordova plus the ionic CLI and its
	// live-reload dev server).
	FlavorIonic
)

func (f Flavor) String() string {
	if f == FlavorIonic {
		return "ionic"
	}
	return "cordova"
}

// ErrNotHybridProject means the directory holds neither an Ionic nor a
// Cordova project.
var ErrNotHybridProject = errors.New("no config.xml or ionic.config.json found; not a Cordova/Ionic project")

// DetectFlavor classifies the project at root.
func DetectFlavor(root string) (Flavor, error) {
	if fileExists(filepath.Join(root, "ionic.config.json")) {
		return FlavorIonic, nil
	}

	if data, err := os.ReadFile(filepath.Join(root, "package.json")); err == nil {
		deps := gjson.GetBytes(data, "dependencies")
		devDeps := gjson.GetBytes(data, "devDependencies")
		if hasIonicDep(deps) || hasIonicDep(devDeps) {
			return FlavorIonic, nil
		}
	}

	if fileExists(filepath.Join(root, "config.xml")) {
		return FlavorCordova, nil
	}
	return FlavorCordova, ErrNotHybridProject
}

func hasIonicDep(deps gjson.Result) bool {
	found := false
	deps.ForEach(func(key, _ gjson.Result) bool {
		name := key.String()
		if name == "ionic-angular" || name == "ionic" || len(name) > 7 && name[:7] == "@ionic/" {
			found = true
			return false
		}
		return true
	})
	return found
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// widget models the root element of config.xml; only the id attribute is
// needed.
type widget struct {
	XMLName xml.Name `xml:"widget"`
	ID      string   `xml:"id,attr"`
}

// BundleID reads the app's bundle/application identifier from the project's
// config.xml widget id attribute.
func BundleID(root string) (string, error) {
	path := filepath.Join(root, "config.xml")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read config.xml: %w", err)
	}
	var w widget
	if err := xml.Unmarshal(data, &w); err != nil {
		return "", fmt.Errorf("failed to parse config.xml: %w", err)
	}
	if w.ID == "" {
		return "", fmt.Errorf("config.xml widget element has no id attribute")
	}
	return w.ID, nil
}

// manifest models the root element of AndroidManifest.xml; only the package
// attribute is needed.
type manifest struct {
	XMLName xml.Name `xml:"manifest"`
	Package string   `xml:"package,attr"`
}

// AndroidPackage reads the installed app's package identifier from the
// generated Android manifest. Both the legacy and the current Gradle
// project layouts are checked.
func AndroidPackage(root string) (string, error) {
	candidates := []string{
		filepath.Join(root, "platforms", "android", "app", "src", "main", "AndroidManifest.xml"),
		filepath.Join(root, "platforms", "android", "AndroidManifest.xml"),
	}

	var lastErr error
	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			lastErr = err
			continue
		}
		var m manifest
		if err := xml.Unmarshal(data, &m); err != nil {
			return "", fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if m.Package == "" {
			return "", fmt.Errorf("%s has no package attribute", path)
		}
		return m.Package, nil
	}
	return "", fmt.Errorf("AndroidManifest.xml not found under platforms/android (build the project first): %w", lastErr)
}
