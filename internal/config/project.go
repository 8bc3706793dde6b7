package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ProjectConfig represents the optional .wvd/config.yaml file in a project
// root. Every field has a flag equivalent; flags win over file values.
type ProjectConfig struct {
	// Platform is the default platform for launch/attach.
	Platform string `yaml:"platform,omitempty"`

	// Target is the default target ("device", "emulator", or a named id).
	Target string `yaml:"target,omitempty"`

	// Port is the local debug port (default 9222).
	Port int `yaml:"port,omitempty"`

	// IOSProxyPort is the webkit debug proxy listing port (default 9221).
	IOSProxyPort int `yaml:"ios_proxy_port,omitempty"`

	// WebkitRangeMin/Max bound the proxy's per-device port range.
	WebkitRangeMin int `yaml:"webkit_range_min,omitempty"`
	WebkitRangeMax int `yaml:"webkit_range_max,omitempty"`

	// AttachAttempts/AttachDelayMs drive webview discovery retries.
	AttachAttempts int `yaml:"attach_attempts,omitempty"`
	AttachDelayMs  int `yaml:"attach_delay_ms,omitempty"`

	// AppStepTimeoutMs bounds the app-launch step on an iOS device.
	AppStepTimeoutMs int `yaml:"app_step_timeout_ms,omitempty"`

	// DevServerAddress/DevServerPort override the dev server bind address.
	DevServerAddress string `yaml:"dev_server_address,omitempty"`
	DevServerPort    int    `yaml:"dev_server_port,omitempty"`

	// NoLiveReload disables the live-reload dev-server path.
	NoLiveReload bool `yaml:"no_live_reload,omitempty"`
}

// ConfigPath returns the path of the project config file under root.
func ConfigPath(root string) string {
	return filepath.Join(root, ".wvd", "config.yaml")
}

// LoadProjectConfig loads .wvd/config.yaml from the project root. A missing
// file is not an error; it yields an empty config.
func LoadProjectConfig(root string) (*ProjectConfig, error) {
	data, err := os.ReadFile(ConfigPath(root))
	if err != nil {
		if os.IsNotExist(err) {
			return &ProjectConfig{}, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}

// Apply overlays file values onto specs wherever the spec still carries the
// built-in default, so explicit flags keep priority.
func (c *ProjectConfig) Apply(launch *LaunchSpec, attach *AttachSpec) {
	if launch != nil {
		if c.DevServerAddress != "" && launch.DevServerAddress == "" {
			launch.DevServerAddress = c.DevServerAddress
		}
		if c.DevServerPort != 0 && launch.DevServerPort == 0 {
			launch.DevServerPort = c.DevServerPort
		}
		if c.NoLiveReload {
			launch.LiveReload = false
		}
		if c.IOSProxyPort != 0 {
			launch.IOSProxyPort = c.IOSProxyPort
		}
		if c.WebkitRangeMin != 0 {
			launch.WebkitRangeMin = c.WebkitRangeMin
		}
		if c.WebkitRangeMax != 0 {
			launch.WebkitRangeMax = c.WebkitRangeMax
		}
		if c.AppStepTimeoutMs != 0 {
			launch.AppStepTimeout = time.Duration(c.AppStepTimeoutMs) * time.Millisecond
		}
	}
	if attach != nil {
		if c.Port != 0 && attach.Port == DefaultDebugPort {
			attach.Port = c.Port
		}
		if c.IOSProxyPort != 0 {
			attach.IOSProxyPort = c.IOSProxyPort
		}
		if c.WebkitRangeMin != 0 {
			attach.WebkitRangeMin = c.WebkitRangeMin
		}
		if c.WebkitRangeMax != 0 {
			attach.WebkitRangeMax = c.WebkitRangeMax
		}
		if c.AttachAttempts != 0 {
			attach.AttachAttempts = c.AttachAttempts
		}
		if c.AttachDelayMs != 0 {
			attach.AttachDelay = time.Duration(c.AttachDelayMs) * time.Millisecond
		}
		if c.AppStepTimeoutMs != 0 {
			attach.AppStepTimeout = time.Duration(c.AppStepTimeoutMs) * time.Millisecond
		}
	}
}

// SettingsHome returns the per-user settings directory used for sandboxed
// browser profiles and tool state.
func SettingsHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".wvd"
	}
	return filepath.Join(home, ".wvd")
}
