package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jvs-project/syncbridge/pkg/color"
	"github.com/jvs-project/syncbridge/pkg/model"
)

var syncFlags model.SyncRequest

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one synchronization call",
	Long: `Run one synchronization call against the configured server.

The runtime is initialized, a client session is opened, the workspace is
synchronized, and the session and runtime are torn down again whatever the
result. Flags override the request built from the config file.

Exit codes:
  0  success
  1  runtime initialization failed
  2  session open failed
  3  sync failed
  4  invalid configuration
  5  internal error`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openClient()
		if err != nil {
			return err
		}
		defer c.Close()

		req := overlay(c.Config().Request(os.Getenv), syncFlags)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		o := c.SynchronizeRequest(ctx, req)

		if jsonOutput {
			if err := outputJSON(outcomeJSON(o)); err != nil {
				return err
			}
		} else if o.OK() {
			fmt.Printf("%s in %s %s\n", color.Success("Synchronized"), o.Duration.Round(time.Millisecond), color.Dim("(call "+o.CallID+")"))
		} else {
			fmtErr("%s [%s]", o.Message, color.Status(o.Status(), o.Code))
		}
		if !o.OK() {
			return &exitError{code: int(o.Status())}
		}
		return nil
	},
}

type syncResult struct {
	CallID     string `json:"call_id"`
	Result     string `json:"result"`
	Status     int    `json:"status"`
	Step       string `json:"step,omitempty"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

func outcomeJSON(o model.Outcome) syncResult {
	return syncResult{
		CallID:     o.CallID,
		Result:     o.Result(),
		Status:     int(o.Status()),
		Step:       string(o.Step),
		Code:       o.Code,
		Message:    o.Message,
		DurationMS: o.Duration.Milliseconds(),
	}
}

// overlay replaces the fields of base that are set in flags.
func overlay(base, flags model.SyncRequest) model.SyncRequest {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&base.Server, flags.Server)
	set(&base.User, flags.User)
	set(&base.Client, flags.Client)
	set(&base.Stream, flags.Stream)
	set(&base.Root, flags.Root)
	set(&base.FileSpec, flags.FileSpec)
	set(&base.Revision, flags.Revision)
	return base
}

func init() {
	f := syncCmd.Flags()
	f.StringVarP(&syncFlags.Server, "server", "p", "", "server address (P4PORT or git URL)")
	f.StringVarP(&syncFlags.User, "user", "u", "", "user name")
	f.StringVarP(&syncFlags.Client, "client", "c", "", "client workspace name")
	f.StringVar(&syncFlags.Stream, "stream", "", "stream path")
	f.StringVar(&syncFlags.Root, "root", "", "workspace root directory")
	f.StringVar(&syncFlags.FileSpec, "filespec", "", "depot path to synchronize")
	f.StringVar(&syncFlags.Revision, "revision", "", "revision specifier (default #head)")
	rootCmd.AddCommand(syncCmd)
}
