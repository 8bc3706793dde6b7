// Package main provides the attach command.
package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/webviewtools/wvd/internal/config"
	"github.com/webviewtools/wvd/internal/session"
	"github.com/webviewtools/wvd/internal/ui"
)

var (
	attachTarget string
	attachPort   int
)

// attachCmd attaches a debugger to an app that is already running.
var attachCmd = &cobra.Command{
	Use:   "attach [platform]",
	Short: "Attach a debugger to a running app",
	Long: `Attach a debugger to the webview of an app that is already running
on the selected target.

On Android this forwards the webview's devtools socket over adb. On iOS
it discovers the webview through the webkit debug proxy. On browser it
connects to Chrome's debug port directly.

EXAMPLES:
  wvd attach android                   # first running emulator
  wvd attach android --target device
  wvd attach ios --port 9224`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAttach,
}

func init() {
	attachCmd.Flags().StringVar(&attachTarget, "target", "", "Attach target: device, emulator or a named id")
	attachCmd.Flags().IntVar(&attachPort, "port", config.DefaultDebugPort, "Local debug port")
}

func runAttach(cmd *cobra.Command, args []string) error {
	_, attach, _, err := resolveRequest(args, attachTarget, attachPort, "", 0)
	if err != nil {
		return err
	}

	sess, err := session.New(nil, attach, session.Options{})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if err := sess.Attach(ctx); err != nil {
		ui.PrintError("Attach failed: %v", err)
		return err
	}

	ui.PrintSuccess("Debugger attached on port %d", attach.Port)
	ui.PrintDim("Press Ctrl+C to detach.")

	waitForInterrupt(ctx)
	ui.Println()
	ui.PrintInfo("Detaching...")
	sess.Disconnect(context.Background())
	return nil
}
