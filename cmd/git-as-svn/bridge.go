package main

import (
	"fmt"

	"github.com/StarLamp/git-as-svn/pkg/gitdb"
	"github.com/StarLamp/git-as-svn/pkg/svn"
)

// openBridge loads the config file and opens the bridged repository with
// its linked repositories, lock manager and push mode.
func openBridge() (*svn.Repository, *svn.Config, error) {
	cfg, err := svn.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	git, err := gitdb.Open(cfg.Path)
	if err != nil {
		return nil, nil, err
	}
	for _, linkedPath := range cfg.Linked {
		linked, err := gitdb.Open(linkedPath)
		if err != nil {
			return nil, nil, fmt.Errorf("linked repository: %w", err)
		}
		git.Linked = append(git.Linked, linked)
	}

	var pusher svn.Pusher = svn.SimplePush{}
	if cfg.PushMode == "native" {
		pusher = svn.NativePush{Command: cfg.PushCommand}
	}
	locks, err := svn.NewLockManager(cfg.LocksFile)
	if err != nil {
		return nil, nil, err
	}

	repo, err := svn.NewRepository(git, cfg.Branch, cfg.RenameDetection, pusher, locks)
	if err != nil {
		return nil, nil, err
	}
	return repo, cfg, nil
}
