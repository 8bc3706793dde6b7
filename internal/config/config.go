// Package config provides launch/attach request configuration.
//
// It defines the immutable LaunchSpec and AttachSpec built from CLI flags
// merged over an optional .wvd/config.yaml project file, and the defaults
// for every tunable the debug workflow recognizes.
package config

import (
	"fmt"
	"time"
)

// Platform identifies the debug backend.
type Platform string

const (
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
	PlatformBrowser Platform = "browser"
)

// ErrUnknownPlatform is returned for a platform outside android/ios/browser.
type ErrUnknownPlatform struct {
	Platform string
}

func (e *ErrUnknownPlatform) Error() string {
	return fmt.Sprintf("unknown platform %q (expected android, ios or browser)", e.Platform)
}

// ParsePlatform validates a platform string.
func ParsePlatform(s string) (Platform, error) {
	switch Platform(s) {
	case PlatformAndroid, PlatformIOS, PlatformBrowser:
		return Platform(s), nil
	default:
		return "", &ErrUnknownPlatform{Platform: s}
	}
}

// TargetKind classifies the launch target.
type TargetKind int

const (
	// TargetDevice selects the sole physical device attached to the bridge.
	TargetDevice TargetKind = iota

	// TargetEmulator selects the first emulator/simulator the bridge reports.
	TargetEmulator

	// TargetNamed selects a target by explicit identifier.
	TargetNamed
)

// Defaults recognized by the workflow.
const (
	DefaultDebugPort       = 9222
	DefaultTarget          = "emulator"
	DefaultIOSProxyPort    = 9221
	DefaultWebkitRangeMin  = 9223
	DefaultWebkitRangeMax  = 9322
	DefaultAttachAttempts  = 5
	DefaultAttachDelay     = 1000 * time.Millisecond
	DefaultAppStepTimeout  = 5000 * time.Millisecond
	DefaultPIDAttempts     = 5
	DefaultPIDDelay        = 5000 * time.Millisecond
	DefaultServerTimeout   = 60 * time.Second
	DefaultAppReadyTimeout = 300 * time.Second
)

// LaunchSpec describes one launch request. Immutable once built by
// NewLaunchSpec; construct a fresh one per request.
type LaunchSpec struct {
	Platform Platform

	// Target is "device", "emulator", or a named target identifier.
	Target string

	// Cwd is the project root.
	Cwd string

	// LiveReload enables the live-reload dev-server path where the project
	// supports it.
	LiveReload bool

	// DevServerAddress/DevServerPort override the dev server's bind address.
	DevServerAddress string
	DevServerPort    int

	// ServerReadyTimeout bounds dev-server startup until the ready banner.
	ServerReadyTimeout time.Duration

	// AppReadyTimeout bounds the build/deploy phase after the server is up.
	AppReadyTimeout time.Duration

	// IOSProxyPort is the webkit debug proxy's own listing port.
	IOSProxyPort int

	// WebkitRangeMin/Max bound the per-device port range handed to the proxy.
	WebkitRangeMin int
	WebkitRangeMax int

	// AppStepTimeout bounds the app-launch step on an iOS device.
	AppStepTimeout time.Duration
}

// AttachSpec describes one attach request. Immutable once built.
type AttachSpec struct {
	Platform Platform
	Target   string

	// Port is the local debug port forwarded to the webview.
	Port int

	// WebRoot is the directory served to the debugger as the content root.
	WebRoot string

	// IOSProxyPort is the webkit debug proxy's own listing port.
	IOSProxyPort int

	// WebkitRangeMin/Max bound the per-device port range handed to the proxy.
	WebkitRangeMin int
	WebkitRangeMax int

	// AttachAttempts/AttachDelay drive the webview discovery retry loop.
	AttachAttempts int
	AttachDelay    time.Duration

	// AppStepTimeout bounds the app-launch step on iOS.
	AppStepTimeout time.Duration
}

// TargetKind classifies the spec's target string.
func (s *LaunchSpec) TargetKind() TargetKind {
	return targetKind(s.Target)
}

// TargetKind classifies the spec's target string.
func (s *AttachSpec) TargetKind() TargetKind {
	return targetKind(s.Target)
}

func targetKind(target string) TargetKind {
	switch target {
	case "device":
		return TargetDevice
	case "emulator", "":
		return TargetEmulator
	default:
		return TargetNamed
	}
}

// NewLaunchSpec validates and builds a LaunchSpec, applying defaults for
// every zero field.
func NewLaunchSpec(platform, target, cwd string, liveReload bool) (*LaunchSpec, error) {
	p, err := ParsePlatform(platform)
	if err != nil {
		return nil, err
	}
	if cwd == "" {
		return nil, fmt.Errorf("launch: working directory is required")
	}
	if target == "" {
		target = DefaultTarget
	}
	return &LaunchSpec{
		Platform:           p,
		Target:             target,
		Cwd:                cwd,
		LiveReload:         liveReload,
		ServerReadyTimeout: DefaultServerTimeout,
		AppReadyTimeout:    DefaultAppReadyTimeout,
		IOSProxyPort:       DefaultIOSProxyPort,
		WebkitRangeMin:     DefaultWebkitRangeMin,
		WebkitRangeMax:     DefaultWebkitRangeMax,
		AppStepTimeout:     DefaultAppStepTimeout,
	}, nil
}

// NewAttachSpec validates and builds an AttachSpec with defaults applied.
func NewAttachSpec(platform, target, cwd string, port int) (*AttachSpec, error) {
	p, err := ParsePlatform(platform)
	if err != nil {
		return nil, err
	}
	if cwd == "" {
		return nil, fmt.Errorf("attach: working directory is required")
	}
	if target == "" {
		target = DefaultTarget
	}
	if port == 0 {
		port = DefaultDebugPort
	}
	return &AttachSpec{
		Platform:       p,
		Target:         target,
		Port:           port,
		WebRoot:        cwd,
		IOSProxyPort:   DefaultIOSProxyPort,
		WebkitRangeMin: DefaultWebkitRangeMin,
		WebkitRangeMax: DefaultWebkitRangeMax,
		AttachAttempts: DefaultAttachAttempts,
		AttachDelay:    DefaultAttachDelay,
		AppStepTimeout: DefaultAppStepTimeout,
	}, nil
}
