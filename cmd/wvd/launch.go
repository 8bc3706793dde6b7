// Package main provides the launch command.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/webviewtools/wvd/internal/config"
	"github.com/webviewtools/wvd/internal/session"
	"github.com/webviewtools/wvd/internal/ui"
)

var (
	launchTarget     string
	launchPort       int
	launchAddress    string
	launchServerPort int
	launchNoReload   bool
)

// launchCmd builds, deploys and debugs the app in the current project.
var launchCmd = &cobra.Command{
	Use:   "launch [platform]",
	Short: "Build, deploy and debug the app",
	Long: `Build the project, deploy it to the selected target and attach a
debugger to the app's webview.

PLATFORMS:
  android    Deploy to an Android device or emulator via adb
  ios        Deploy to an iOS device or simulator (macOS only)
  browser    Serve the app locally and debug it in Chrome

TARGETS:
  --target device       the sole attached physical device
  --target emulator     the first running emulator/simulator (default)
  --target <id>         a specific device or simulator by identifier

EXAMPLES:
  wvd launch android                     # emulator, live reload
  wvd launch android --target device
  wvd launch ios --target "iPhone 15"
  wvd launch browser --port 9222`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLaunch,
}

func init() {
	launchCmd.Flags().StringVar(&launchTarget, "target", "", "Deploy target: device, emulator or a named id")
	launchCmd.Flags().IntVar(&launchPort, "port", config.DefaultDebugPort, "Local debug port")
	launchCmd.Flags().StringVar(&launchAddress, "address", "", "Dev server bind address")
	launchCmd.Flags().IntVar(&launchServerPort, "server-port", 0, "Dev server port")
	launchCmd.Flags().BoolVar(&launchNoReload, "no-livereload", false, "Disable the live-reload dev server")
}

// resolveRequest merges the positional platform, flags and the project's
// .wvd/config.yaml into a spec pair. Flags win over file values, so flag
// values are set on the specs before the file overlay runs.
func resolveRequest(args []string, target string, port int, address string, serverPort int) (*config.LaunchSpec, *config.AttachSpec, *config.ProjectConfig, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to resolve working directory: %w", err)
	}

	cfg, err := config.LoadProjectConfig(cwd)
	if err != nil {
		return nil, nil, nil, err
	}

	platform := cfg.Platform
	if len(args) > 0 {
		platform = args[0]
	}
	if platform == "" {
		return nil, nil, nil, fmt.Errorf("no platform given and none set in %s", config.ConfigPath(cwd))
	}
	if target == "" {
		target = cfg.Target
	}

	launch, err := config.NewLaunchSpec(platform, target, cwd, !launchNoReload)
	if err != nil {
		return nil, nil, nil, err
	}
	if address != "" {
		launch.DevServerAddress = address
	}
	if serverPort != 0 {
		launch.DevServerPort = serverPort
	}
	attach, err := config.NewAttachSpec(platform, target, cwd, port)
	if err != nil {
		return nil, nil, nil, err
	}
	cfg.Apply(launch, attach)
	return launch, attach, cfg, nil
}

func runLaunch(cmd *cobra.Command, args []string) error {
	launch, attach, _, err := resolveRequest(args, launchTarget, launchPort, launchAddress, launchServerPort)
	if err != nil {
		return err
	}

	sess, err := session.New(launch, attach, session.Options{})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if err := sess.Launch(ctx); err != nil {
		ui.PrintError("Launch failed: %v", err)
		return err
	}

	ui.PrintSuccess("App launched on %s", launch.Platform)
	if url := sess.DevServerURL(); url != "" {
		ui.PrintLink("Dev server", url)
	}
	ui.PrintDim("Debugger attached on port %d. Press Ctrl+C to stop.", attach.Port)

	waitForInterrupt(ctx)
	ui.Println()
	ui.PrintInfo("Shutting down...")
	sess.Disconnect(context.Background())
	return nil
}

// waitForInterrupt blocks until SIGINT/SIGTERM or context cancellation.
func waitForInterrupt(ctx context.Context) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-sigChan:
	case <-ctx.Done():
	}
}
