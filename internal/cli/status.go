package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/gitquest/gitquest/internal/domain"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status USER",
	Short: "Show a user's level, streak and commit totals",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	ov, err := d.Engine.Stats.Overview(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	printStatus(os.Stdout, args[0], ov)
	return nil
}

func printStatus(w io.Writer, userID string, ov domain.StatsOverview) {
	fmt.Fprintf(w, "User:          %s\n", userID)
	fmt.Fprintf(w, "Level:         %d (%s)\n", ov.Level.Level, ov.Level.Title)
	fmt.Fprintf(w, "Total XP:      %d\n", ov.Level.TotalXP)
	fmt.Fprintf(w, "Progress:      %s\n", levelBar(ov.Level))
	fmt.Fprintf(w, "Streak:        %d days (longest %d)\n", ov.CurrentStreak, ov.LongestStreak)
	fmt.Fprintf(w, "Commits:       %d total, %d today\n", ov.TotalCommits, ov.TodayCommits)
	fmt.Fprintf(w, "Lines:         +%d / -%d\n", ov.Additions, ov.Deletions)
	fmt.Fprintf(w, "Achievements:  %d / %d\n", ov.AchievementsUnlocked, ov.AchievementsTotal)
	if !ov.LastCommitDate.IsZero() {
		fmt.Fprintf(w, "Last commit:   %s\n", ov.LastCommitDate.Format("2006-01-02 15:04"))
	}
}
