// Package main provides the doctor command for installation diagnostics.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/webviewtools/wvd/internal/project"
	"github.com/webviewtools/wvd/internal/ui"
)

// DoctorCheck represents a single diagnostic check result.
type DoctorCheck struct {
	// Name is the tool or check name.
	Name string `json:"name"`

	// Status is "ok", "warning" or "error".
	Status string `json:"status"`

	// Message is the human-readable result message.
	Message string `json:"message"`
}

// DoctorResult contains all diagnostic check results.
type DoctorResult struct {
	Checks  []DoctorCheck `json:"checks"`
	Issues  int           `json:"issues"`
	Healthy bool          `json:"healthy"`
}

var doctorOutputJSON bool

// doctorCmd checks that the tools the debug workflow shells out to are
// installed.
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check required tools and project setup",
	Long: `Check that the external tools the debug workflow depends on are
installed and that the current directory is a recognized project.

CHECKS PERFORMED:
  - adb (Android attach)
  - ionic / cordova CLI (launch)
  - ios_webkit_debug_proxy, ideviceinstaller (iOS attach, macOS only)
  - project type detection (Cordova or Ionic)

EXAMPLES:
  wvd doctor              # Run all checks
  wvd doctor --json       # Output as JSON for scripting`,
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorOutputJSON, "json", false, "Output results as JSON")
}

// toolCheck describes one external binary the workflow may shell out to.
type toolCheck struct {
	name     string
	hint     string
	required bool
	darwin   bool
}

var toolChecks = []toolCheck{
	{name: "adb", hint: "Install Android platform tools: https://developer.android.com/tools/releases/platform-tools", required: true},
	{name: "ionic", hint: "npm install -g ionic", required: false},
	{name: "cordova", hint: "npm install -g cordova", required: false},
	{name: "ios_webkit_debug_proxy", hint: "brew install ios-webkit-debug-proxy", required: true, darwin: true},
	{name: "ideviceinstaller", hint: "brew install ideviceinstaller", required: true, darwin: true},
	{name: "idevicedebug", hint: "brew install libimobiledevice", required: false, darwin: true},
}

func runDoctor(cmd *cobra.Command, args []string) error {
	result := DoctorResult{Checks: make([]DoctorCheck, 0), Healthy: true}

	if !doctorOutputJSON {
		ui.PrintInfo("Checking tools...")
		ui.Println()
	}

	for _, tc := range toolChecks {
		if tc.darwin && runtime.GOOS != "darwin" {
			continue
		}
		check := DoctorCheck{Name: tc.name, Status: "ok", Message: "found"}
		if _, err := exec.LookPath(tc.name); err != nil {
			check.Message = tc.hint
			if tc.required {
				check.Status = "error"
				result.Healthy = false
			} else {
				check.Status = "warning"
			}
			result.Issues++
		}
		result.Checks = append(result.Checks, check)
		if !doctorOutputJSON {
			ui.PrintCheck(tc.name, check.Status == "ok", tc.hint)
		}
	}

	result.Checks = append(result.Checks, checkProject(doctorOutputJSON))

	if doctorOutputJSON {
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	ui.Println()
	if result.Healthy {
		ui.PrintSuccess("All required tools found")
	} else {
		ui.PrintWarning("%d issue(s) found", result.Issues)
	}
	return nil
}

// checkProject reports whether the current directory is a Cordova or Ionic
// project. Not being in one is informational, not an error.
func checkProject(jsonOutput bool) DoctorCheck {
	check := DoctorCheck{Name: "project", Status: "ok"}
	cwd, err := os.Getwd()
	if err != nil {
		check.Status = "warning"
		check.Message = err.Error()
		return check
	}

	flavor, err := project.DetectFlavor(cwd)
	if err != nil {
		check.Status = "warning"
		check.Message = "current directory is not a Cordova or Ionic project"
	} else {
		check.Message = fmt.Sprintf("%s project detected", flavor)
	}
	if !jsonOutput {
		ui.Println()
		ui.PrintDim("Project: %s", check.Message)
	}
	return check
}
