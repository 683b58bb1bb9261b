package cli

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func init() {
	grantCmd.Flags().StringVar(&grantReason, "reason", "", "Idempotency key; a repeated reason pays nothing (default: random)")
	rootCmd.AddCommand(grantCmd)
}

var grantReason string

var grantCmd = &cobra.Command{
	Use:   "grant USER AMOUNT",
	Short: "Award XP to a user",
	Args:  cobra.ExactArgs(2),
	RunE:  runGrant,
}

func runGrant(cmd *cobra.Command, args []string) error {
	amount, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", args[1], err)
	}

	reason := grantReason
	if reason == "" {
		reason = uuid.NewString()
	}

	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	res, err := d.Engine.Levels.AddXP(cmd.Context(), args[0], amount, "grant:"+reason)
	if err != nil {
		return err
	}
	if res.Duplicate {
		fmt.Printf("Reason %q was already granted; total XP stays %d\n", reason, res.NewXP)
		return nil
	}

	fmt.Printf("Granted %d XP to %s (total %d)\n", amount, args[0], res.NewXP)
	if res.LeveledUp {
		fmt.Printf("Level up! Now level %d\n", res.NewLevel)
	}
	return nil
}
