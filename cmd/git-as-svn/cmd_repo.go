package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/StarLamp/git-as-svn/pkg/gitdb"
	"github.com/StarLamp/git-as-svn/pkg/svn"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init <dir>",
		Short: "Create an empty repository and its bridge state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			git, err := gitdb.Init(args[0])
			if err != nil {
				return err
			}
			repo, err := svn.NewRepository(git, "master", false, nil, nil)
			if err != nil {
				return err
			}
			fmt.Printf("initialized repository %s (uuid %s)\n", args[0], repo.UUID())
			return nil
		},
	}
}

func newUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Extend the revision cache to the branch tip",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, _, err := openBridge()
			if err != nil {
				return err
			}
			if err := repo.Update(); err != nil {
				return err
			}
			fmt.Printf("latest revision: %d\n", repo.Latest().ID())
			return nil
		},
	}
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print repository identity and latest revision",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, cfg, err := openBridge()
			if err != nil {
				return err
			}
			latest := repo.Latest()
			fmt.Printf("uuid:     %s\n", repo.UUID())
			fmt.Printf("branch:   %s\n", cfg.Branch)
			fmt.Printf("revision: %d\n", latest.ID())
			if latest.GitCommit() != "" {
				fmt.Printf("commit:   %s\n", latest.GitCommit())
			}
			refs, err := repo.Git().ListRefs("refs/git-as-svn/")
			if err != nil {
				return err
			}
			for name, hash := range refs {
				fmt.Printf("cache:    %s -> %s\n", name, hash)
			}
			return nil
		},
	}
}

func newLogCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "log",
		Short: "List revisions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, _, err := openBridge()
			if err != nil {
				return err
			}
			for id := repo.Latest().ID(); id >= 0 && limit != 0; id-- {
				rev, err := repo.ByID(id)
				if err != nil {
					return err
				}
				fmt.Printf("r%d | %s | %s\n", rev.ID(), rev.Author(), rev.Log())
				limit--
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "revision count")
	return cmd
}

// parseRevision resolves a revision argument; "HEAD" means latest.
func parseRevision(repo *svn.Repository, arg string) (*svn.Revision, error) {
	if arg == "HEAD" {
		return repo.Latest(), nil
	}
	id, err := strconv.Atoi(arg)
	if err != nil {
		return nil, fmt.Errorf("bad revision %q: %w", arg, err)
	}
	return repo.ByID(id)
}

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls <revision> <path>",
		Short: "List a directory at a revision",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, _, err := openBridge()
			if err != nil {
				return err
			}
			rev, err := parseRevision(repo, args[0])
			if err != nil {
				return err
			}
			node, err := rev.File(args[1])
			if err != nil {
				return err
			}
			if node == nil {
				return fmt.Errorf("path not found: %s", args[1])
			}
			entries, err := node.Entries()
			if err != nil {
				return err
			}
			for name, child := range entries {
				fmt.Printf("%-7s %s\n", child.Kind(), name)
			}
			return nil
		},
	}
}

func newCatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat <revision> <path>",
		Short: "Print file content at a revision",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, _, err := openBridge()
			if err != nil {
				return err
			}
			rev, err := parseRevision(repo, args[0])
			if err != nil {
				return err
			}
			node, err := rev.File(args[1])
			if err != nil {
				return err
			}
			if node == nil {
				return fmt.Errorf("path not found: %s", args[1])
			}
			data, err := node.Content()
			if err != nil {
				return err
			}
			os.Stdout.Write(data)
			return nil
		},
	}
}

func newPropsCmd() *cobra.Command {
	var internal bool
	cmd := &cobra.Command{
		Use:   "props <revision> <path>",
		Short: "Print derived SVN properties of a node",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, _, err := openBridge()
			if err != nil {
				return err
			}
			rev, err := parseRevision(repo, args[0])
			if err != nil {
				return err
			}
			node, err := rev.File(args[1])
			if err != nil {
				return err
			}
			if node == nil {
				return fmt.Errorf("path not found: %s", args[1])
			}
			nodeProps, err := node.Properties(internal)
			if err != nil {
				return err
			}
			for k, v := range nodeProps {
				fmt.Printf("%s = %q\n", k, v)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&internal, "internal", false, "include entry props")
	return cmd
}
