package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gitquest/gitquest/internal/daemon"
)

func init() {
	configCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing config file")
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(configCmd)
}

var configForce bool

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the database and upsert the achievement catalog",
	Args:  cobra.NoArgs,
	RunE:  runSeed,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Write the default config file to the gitquest home directory",
	Args:  cobra.NoArgs,
	RunE:  runConfig,
}

func runSeed(cmd *cobra.Command, args []string) error {
	// Opening the daemon migrates and seeds.
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	n, err := d.DB.CountAchievements(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("Database ready at %s (%d achievements)\n", d.Config.Database.Dir, n)
	return nil
}

func runConfig(cmd *cobra.Command, args []string) error {
	path := daemon.ConfigPath()
	if _, err := os.Stat(path); err == nil && !configForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := daemon.SaveConfig(daemon.DefaultConfig()); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}
