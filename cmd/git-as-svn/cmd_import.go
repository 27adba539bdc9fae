package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/StarLamp/git-as-svn/pkg/svn"
)

func newImportCmd() *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "import <dir>",
		Short: "Commit a local directory tree as the next revision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, cfg, err := openBridge()
			if err != nil {
				return err
			}

			builder, err := repo.NewCommitBuilder()
			if err != nil {
				return err
			}
			if cfg.SignKey != "" {
				signer, keyPath, err := newSSHCommitSigner(cfg.SignKey)
				if err != nil {
					return err
				}
				fmt.Printf("signing with %s\n", keyPath)
				builder.SetSigner(signer)
			}

			root, err := repo.Latest().Root()
			if err != nil {
				return err
			}
			if err := syncDir(repo, builder, root, args[0]); err != nil {
				return err
			}

			rev, err := builder.Commit(currentUser(), message)
			if err != nil {
				return err
			}
			if rev == nil {
				return fmt.Errorf("push rejected, repository advanced concurrently")
			}
			fmt.Printf("committed revision %d\n", rev.ID())
			return nil
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "imported", "commit message")
	return cmd
}

// syncDir drives the commit builder so the current directory frame ends up
// mirroring the local directory at src. existing is the node currently at
// this path, or nil for a freshly-added directory.
func syncDir(repo *svn.Repository, builder *svn.CommitBuilder, existing *svn.Node, src string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var existingEntries map[string]*svn.Node
	if existing != nil {
		existingEntries, err = existing.Entries()
		if err != nil {
			return err
		}
	}

	// Delete entries that vanished locally.
	present := make(map[string]bool, len(entries))
	for _, e := range entries {
		present[e.Name()] = true
	}
	for name := range existingEntries {
		if !present[name] {
			if err := builder.Delete(name); err != nil {
				return err
			}
		}
	}

	for _, e := range entries {
		name := e.Name()
		old := existingEntries[name]
		srcPath := filepath.Join(src, name)

		if e.IsDir() {
			if old != nil && old.IsDir() {
				if err := builder.OpenDir(name); err != nil {
					return err
				}
				if err := syncDir(repo, builder, old, srcPath); err != nil {
					return err
				}
			} else {
				if old != nil {
					if err := builder.Delete(name); err != nil {
						return err
					}
				}
				if err := builder.AddDir(name, nil); err != nil {
					return err
				}
				if err := syncDir(repo, builder, nil, srcPath); err != nil {
					return err
				}
			}
			if err := builder.CloseDir(); err != nil {
				return err
			}
			continue
		}

		data, err := os.ReadFile(srcPath)
		if err != nil {
			return err
		}
		if old != nil && old.IsDir() {
			if err := builder.Delete(name); err != nil {
				return err
			}
			old = nil
		}

		var dc *svn.DeltaConsumer
		modify := old != nil
		if modify {
			dc = repo.ModifyFile(old)
		} else {
			dc = repo.CreateFile()
		}
		dc.WriteContent(data)
		if err := builder.SaveFile(name, dc, modify); err != nil {
			return err
		}
	}
	return nil
}
