package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

func main() {
	root := &cobra.Command{
		Use:   "git-as-svn",
		Short: "Expose a Git branch as a Subversion repository",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				log.SetLevel(log.DebugLevel)
			}
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "git-as-svn.yml", "config file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newUpdateCmd())
	root.AddCommand(newInfoCmd())
	root.AddCommand(newLogCmd())
	root.AddCommand(newImportCmd())
	root.AddCommand(newLsCmd())
	root.AddCommand(newCatCmd())
	root.AddCommand(newPropsCmd())
	root.AddCommand(newLockCmd())
	root.AddCommand(newUnlockCmd())
	root.AddCommand(newLocksCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("git-as-svn 0.1.0-dev")
		},
	}
}
