package cli

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gitquest/gitquest/internal/domain"
)

func init() {
	achievementsCmd.Flags().BoolVar(&achievementsCheck, "check", false, "Evaluate the catalog before listing")
	rootCmd.AddCommand(achievementsCmd)
	rootCmd.AddCommand(unlockCmd)
}

var achievementsCheck bool

var achievementsCmd = &cobra.Command{
	Use:     "achievements USER",
	Aliases: []string{"ach"},
	Short:   "List the achievement catalog with a user's unlock status",
	Args:    cobra.ExactArgs(1),
	RunE:    runAchievements,
}

var unlockCmd = &cobra.Command{
	Use:   "unlock USER SLUG",
	Short: "Unlock an achievement for a user and pay its reward",
	Args:  cobra.ExactArgs(2),
	RunE:  runUnlock,
}

func runAchievements(cmd *cobra.Command, args []string) error {
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	ctx := cmd.Context()
	if achievementsCheck {
		events, err := d.Engine.Achievements.CheckAchievements(ctx, args[0])
		if err != nil {
			return err
		}
		for _, ev := range events {
			fmt.Printf("Unlocked %s %s (+%d XP)\n", ev.Icon, ev.Name, ev.XPReward)
		}
	}

	list, err := d.Engine.Achievements.ListWithStatus(ctx, args[0])
	if err != nil {
		return err
	}
	return printAchievements(os.Stdout, list)
}

func printAchievements(w io.Writer, list []domain.AchievementStatus) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SLUG\tNAME\tCATEGORY\tRARITY\tXP\tUNLOCKED")
	for _, a := range list {
		unlocked := "-"
		if a.IsUnlocked && a.UnlockedAt != nil {
			unlocked = a.UnlockedAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%s\t%s %s\t%s\t%s\t%d\t%s\n",
			a.Slug, a.Icon, a.Name, a.Category, a.Rarity, a.XPReward, unlocked)
	}
	return tw.Flush()
}

func runUnlock(cmd *cobra.Command, args []string) error {
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	ev, err := d.Engine.Achievements.UnlockBySlug(cmd.Context(), args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Printf("Unlocked %s %s for %s (+%d XP)\n", ev.Icon, ev.Name, args[0], ev.XPReward)
	return nil
}
