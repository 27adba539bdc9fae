package svn

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/StarLamp/git-as-svn/pkg/gitdb"
)

func TestSimplePushCAS(t *testing.T) {
	git, err := newScratchGit(t)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	first := gitdb.Hash(fmt.Sprintf("%064x", 1))
	ok, err := SimplePush{}.Push(git, first, "refs/heads/master", "")
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if !ok {
		t.Fatal("initial push rejected")
	}

	// A push expecting the wrong old tip is rejected, not an error.
	second := gitdb.Hash(fmt.Sprintf("%064x", 2))
	ok, err = SimplePush{}.Push(git, second, "refs/heads/master", "")
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if ok {
		t.Fatal("non-fast-forward push accepted")
	}

	ok, err = SimplePush{}.Push(git, second, "refs/heads/master", first)
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if !ok {
		t.Fatal("fast-forward push rejected")
	}
}

func TestNativePushRunsCommand(t *testing.T) {
	git, err := newScratchGit(t)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	script := filepath.Join(t.TempDir(), "push.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\nprintf '%s\\n' \"$2\" > \"$1/$3\"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}

	h := gitdb.Hash(fmt.Sprintf("%064x", 9))
	ok, err := NativePush{Command: script}.Push(git, h, "refs/heads/master", "")
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if !ok {
		t.Fatal("native push rejected")
	}
	got, err := git.ResolveRef("refs/heads/master")
	if err != nil {
		t.Fatalf("ResolveRef: %v", err)
	}
	if got != h {
		t.Fatalf("ref = %s, want %s", got, h)
	}
}

func TestNativePushExitOneIsRejection(t *testing.T) {
	git, err := newScratchGit(t)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	ok, err := NativePush{Command: "sh -c 'exit 1' hook"}.Push(git, gitdb.Hash(fmt.Sprintf("%064x", 1)), "refs/heads/master", "")
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if ok {
		t.Fatal("hook rejection reported as success")
	}
}

func TestNativePushNoAdvanceIsRejection(t *testing.T) {
	git, err := newScratchGit(t)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	// The command exits 0 but never moves the ref.
	ok, err := NativePush{Command: "true"}.Push(git, gitdb.Hash(fmt.Sprintf("%064x", 1)), "refs/heads/master", "")
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if ok {
		t.Fatal("unmoved ref reported as success")
	}
}
