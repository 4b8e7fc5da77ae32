package app

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/accessgate/accessgate/internal/auth"
	"github.com/accessgate/accessgate/internal/config"
	"github.com/accessgate/accessgate/internal/daemon"
	"github.com/accessgate/accessgate/internal/metrics"
)

// errDenied makes the check command exit non-zero on a denial.
var errDenied = errors.New("access denied")

func init() { //nolint: gochecknoinits
	f := checkCmd.Flags()
	f.StringVar(&checkCtx.ActorID, "actor", "", "Actor id")
	f.StringVar(&checkCtx.ActorRole, "role", "", "Actor role")
	f.StringVar(&checkCtx.ActorEmail, "email", "", "Actor email")
	f.StringVar(&checkCtx.ResourceID, "resource-id", "", "Resource id")
	f.StringVar(&checkCtx.ResourceType, "resource-type", "", "Resource type")
	f.StringVar(&checkCtx.ResourceOwnerID, "owner", "", "Resource owner id")
	f.StringVar(&checkCtx.AssignedActorID, "assignee", "", "Assigned reviewer id")
	f.StringVar(&checkCtx.CurrentState, "state", "", "Current workflow state")
	f.StringVar(&checkCtx.TargetUserID, "target-user", "", "Target user id")
	f.StringVar(&checkResource, "resource", "", "Resource type the action applies to")

	_ = checkCmd.MarkFlagRequired("actor")
	_ = checkCmd.MarkFlagRequired("role")

	rootCmd.AddCommand(checkCmd)
}

var (
	checkCtx      auth.Context
	checkResource string

	checkCmd = &cobra.Command{
		Use:   "check <action>",
		Short: "Evaluate one authorization request against the configured role table",
		Long: `check evaluates a single request with the configured role table and prints the
decision as JSON. Dynamic grants live in the running service and are not
consulted. The command exits non-zero when access is denied.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.ReadConfig(configPath)
			if err != nil {
				return err
			}

			// one-shot evaluations skip warm-up
			c.Environment = "ephemeral"

			core, err := daemon.NewCore(&c, metrics.New(nil))
			if err != nil {
				return err
			}

			res := core.Engine.Evaluate(&checkCtx, args[0], checkResource)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")

			if err := enc.Encode(res); err != nil {
				return err
			}

			if !res.Granted {
				return errDenied
			}

			return nil
		},
	}
)
