package svn

import (
	"errors"
	"fmt"
	"os/exec"

	"github.com/kballard/go-shellquote"
	log "github.com/sirupsen/logrus"

	"github.com/StarLamp/git-as-svn/pkg/gitdb"
)

// Pusher advances the exported branch ref to a freshly-built commit.
// The boolean result distinguishes a non-fast-forward rejection (false,
// caller restarts from the new latest) from success.
type Pusher interface {
	Push(repo *gitdb.Repo, commit gitdb.Hash, branchRef string, expectedOld gitdb.Hash) (bool, error)
}

// SimplePush updates the ref with an in-process compare-and-swap.
type SimplePush struct{}

func (SimplePush) Push(repo *gitdb.Repo, commit gitdb.Hash, branchRef string, expectedOld gitdb.Hash) (bool, error) {
	err := repo.UpdateRefCAS(branchRef, commit, expectedOld)
	if errors.Is(err, gitdb.ErrRefCASMismatch) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("simple push: %w", err)
	}
	return true, nil
}

// NativePush delegates the ref update to an external command so
// server-side hooks run. The repository directory, commit hash and branch
// ref are appended to the configured command line; exit status 1 reads as
// a rejected push. The ref is verified afterwards.
type NativePush struct {
	Command string
}

func (p NativePush) Push(repo *gitdb.Repo, commit gitdb.Hash, branchRef string, expectedOld gitdb.Hash) (bool, error) {
	words, err := shellquote.Split(p.Command)
	if err != nil {
		return false, fmt.Errorf("native push: bad command %q: %w", p.Command, err)
	}
	if len(words) == 0 {
		return false, fmt.Errorf("native push: empty command")
	}
	args := append(words[1:], repo.Dir, string(commit), branchRef)

	cmd := exec.Command(words[0], args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			log.WithField("output", string(output)).Info("native push rejected")
			return false, nil
		}
		return false, fmt.Errorf("native push: %w: %s", err, output)
	}

	current, err := repo.ResolveRef(branchRef)
	if err != nil {
		return false, fmt.Errorf("native push: verify ref: %w", err)
	}
	if current != commit {
		log.WithFields(log.Fields{"ref": branchRef, "want": commit, "got": current}).
			Info("native push did not advance ref")
		return false, nil
	}
	return true, nil
}
