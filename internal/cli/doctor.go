package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jvs-project/syncbridge/pkg/color"
	"github.com/jvs-project/syncbridge/pkg/errclass"
)

type doctorCheck struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
	status errclass.Status
}

type doctorResult struct {
	Healthy bool          `json:"healthy"`
	Checks  []doctorCheck `json:"checks"`
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the bridge can run",
	Long: `Check that the bridge can run.

Validates the config file, initializes and releases the runtime without
contacting a server, and verifies the lifecycle journal when one is
configured: its hash chain must be intact and every runtime init and
session open must have a matching teardown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		result := runDoctor(cmd.Context())

		if jsonOutput {
			if err := outputJSON(result); err != nil {
				return err
			}
		} else {
			for _, c := range result.Checks {
				mark := color.Success("ok")
				if !c.OK {
					mark = color.Error("FAIL")
				}
				if c.Detail != "" {
					fmt.Printf("  [%s] %s: %s\n", mark, c.Name, c.Detail)
				} else {
					fmt.Printf("  [%s] %s\n", mark, c.Name)
				}
			}
			if result.Healthy {
				fmt.Println("Bridge is healthy.")
			}
		}

		for _, c := range result.Checks {
			if !c.OK {
				return &exitError{code: int(c.status)}
			}
		}
		return nil
	},
}

func runDoctor(ctx context.Context) doctorResult {
	if ctx == nil {
		ctx = context.Background()
	}
	var res doctorResult
	add := func(name string, err error, detail string) {
		c := doctorCheck{Name: name, OK: err == nil, Detail: detail}
		if err != nil {
			c.Detail = err.Error()
			c.status = errclass.StatusOf(err)
		}
		res.Checks = append(res.Checks, c)
	}

	c, err := openClient()
	if err != nil {
		add("config", err, "")
		return res
	}
	defer c.Close()
	add("config", nil, fmt.Sprintf("backend %s, policy %s", c.Config().Backend, c.Policy()))

	add("runtime", c.Probe(ctx), "")

	if path := c.Config().Audit.Path; path != "" {
		sum, err := c.VerifyJournal()
		if err == nil && !sum.Balanced() {
			err = errclass.ErrInternal.WithMessagef("journal %s has unmatched init or open records", path)
		}
		add("journal", err, fmt.Sprintf("%d records", sum.Records))
	}

	res.Healthy = true
	for _, check := range res.Checks {
		res.Healthy = res.Healthy && check.OK
	}
	return res
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
