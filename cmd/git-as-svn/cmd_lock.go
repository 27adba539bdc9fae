package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/StarLamp/git-as-svn/pkg/svn"
)

func currentUser() svn.User {
	name := os.Getenv("USER")
	if name == "" {
		name = "anonymous"
	}
	return svn.User{Name: name, RealName: name}
}

func newLockCmd() *cobra.Command {
	var comment string
	var force bool
	cmd := &cobra.Command{
		Use:   "lock <path>...",
		Short: "Acquire path locks at the latest revision",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, _, err := openBridge()
			if err != nil {
				return err
			}
			latest := repo.Latest().ID()
			targets := make([]svn.LockTarget, 0, len(args))
			for _, path := range args {
				targets = append(targets, svn.LockTarget{Path: path, Revision: latest})
			}
			results, err := repo.Lock(currentUser(), comment, force, targets)
			if err != nil {
				return err
			}
			for _, result := range results {
				if result.Err != nil {
					fmt.Printf("%s: %v\n", result.Path, result.Err)
					continue
				}
				fmt.Printf("%s: %s\n", result.Path, result.Lock.Token)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&comment, "message", "m", "", "lock comment")
	cmd.Flags().BoolVar(&force, "force", false, "steal an existing lock")
	return cmd
}

func newUnlockCmd() *cobra.Command {
	var token string
	var breakLock bool
	cmd := &cobra.Command{
		Use:   "unlock <path>",
		Short: "Release a path lock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, _, err := openBridge()
			if err != nil {
				return err
			}
			results, err := repo.Unlock(currentUser(), breakLock, map[string]string{args[0]: token})
			if err != nil {
				return err
			}
			for _, result := range results {
				if result.Err != nil {
					fmt.Printf("%s: %v\n", result.Path, result.Err)
					continue
				}
				fmt.Printf("%s: unlocked\n", result.Path)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "lock token")
	cmd.Flags().BoolVar(&breakLock, "break", false, "break the lock without a token")
	return cmd
}

func newLocksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "locks [prefix]",
		Short: "List held locks",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, _, err := openBridge()
			if err != nil {
				return err
			}
			prefix := "/"
			if len(args) == 1 {
				prefix = args[0]
			}
			for _, lock := range repo.LockManager().GetLocks(prefix) {
				fmt.Printf("%s  %s  %s\n", lock.Path, lock.Owner, lock.Token)
			}
			return nil
		},
	}
}
