package props

import (
	"strings"
	"testing"
)

func TestParseIgnoreBasics(t *testing.T) {
	fragment := ParseIgnore("# comment\n\n*.log\n/local.txt\nbuild/\n!keep.log\nsub/dir\n")
	if fragment == nil {
		t.Fatal("ParseIgnore returned nil")
	}
	got := ApplyAll([]Property{fragment})
	value := got[Ignore]
	if !strings.Contains(value, "*.log") {
		t.Fatalf("svn:ignore = %q, want *.log included", value)
	}
	if !strings.Contains(value, "local.txt") {
		t.Fatalf("svn:ignore = %q, want local.txt included", value)
	}
	if !strings.Contains(value, "build") {
		t.Fatalf("svn:ignore = %q, want build included", value)
	}
	if strings.Contains(value, "keep.log") {
		t.Fatalf("svn:ignore = %q, negated pattern leaked", value)
	}
	if strings.Contains(value, "sub/dir") {
		t.Fatalf("svn:ignore = %q, slashed pattern leaked", value)
	}

	// Only unanchored patterns are inheritable.
	global := got[GlobalIgnores]
	if !strings.Contains(global, "*.log") || !strings.Contains(global, "build") {
		t.Fatalf("svn:global-ignores = %q, want recursive patterns", global)
	}
	if strings.Contains(global, "local.txt") {
		t.Fatalf("svn:global-ignores = %q, anchored pattern leaked", global)
	}
}

func TestParseIgnoreEmpty(t *testing.T) {
	if fragment := ParseIgnore("# only comments\n\n"); fragment != nil {
		t.Fatalf("ParseIgnore on empty content = %v, want nil", fragment)
	}
}

func TestIgnoreRecursiveInheritance(t *testing.T) {
	fragment := ParseIgnore("*.log\n/local.txt\n")

	// Anchored pattern applies only to the containing directory.
	child := fragment.ForChild("sub", true)
	if child == nil {
		t.Fatal("recursive patterns must survive into child directories")
	}
	childProps := ApplyAll([]Property{child})
	if strings.Contains(childProps[Ignore], "local.txt") {
		t.Fatalf("child svn:ignore = %q, anchored pattern leaked", childProps[Ignore])
	}
	if !strings.Contains(childProps[Ignore], "*.log") {
		t.Fatalf("child svn:ignore = %q, want *.log", childProps[Ignore])
	}
	if !strings.Contains(childProps[GlobalIgnores], "*.log") {
		t.Fatalf("child svn:global-ignores = %q, want *.log", childProps[GlobalIgnores])
	}

	// Files take nothing from an ignore fragment.
	if got := fragment.ForChild("a.txt", false); got != nil {
		t.Fatalf("ForChild(file) = %v, want nil", got)
	}
}

func TestParseAttributes(t *testing.T) {
	fragment := ParseAttributes("*.txt text\n*.sh eol=lf\n*.bin binary\nsub/*.c text\n")
	if fragment == nil {
		t.Fatal("ParseAttributes returned nil")
	}

	cases := []struct {
		name string
		key  string
		want string
	}{
		{"readme.txt", EolStyle, "native"},
		{"run.sh", EolStyle, "LF"},
		{"data.bin", MimeType, MimeBinary},
	}
	for _, tc := range cases {
		leaf := fragment.ForChild(tc.name, false)
		if leaf == nil {
			t.Fatalf("no fragment for %s", tc.name)
		}
		got := ApplyAll([]Property{leaf})
		if got[tc.key] != tc.want {
			t.Errorf("%s: %s = %q, want %q", tc.name, tc.key, got[tc.key], tc.want)
		}
	}

	if leaf := fragment.ForChild("other.go", false); leaf != nil {
		t.Fatalf("unmatched file got fragment %v", leaf)
	}
	if dir := fragment.ForChild("sub", true); dir != fragment {
		t.Fatal("attribute rules must propagate into subdirectories unchanged")
	}
}

func TestParseTgitConfig(t *testing.T) {
	fragment := ParseTgitConfig("[bugtraq]\n\turl = https://bugs.example.com/%BUGID%\n\tlogregex = #(\\d+)\n; comment\n")
	if fragment == nil {
		t.Fatal("ParseTgitConfig returned nil")
	}
	got := ApplyAll([]Property{fragment})
	if got["bugtraq:url"] != "https://bugs.example.com/%BUGID%" {
		t.Fatalf("bugtraq:url = %q", got["bugtraq:url"])
	}
	if got["bugtraq:logregex"] == "" {
		t.Fatal("bugtraq:logregex missing")
	}
}

func TestJoinForChildScoping(t *testing.T) {
	ignore := ParseIgnore("*.tmp\n")
	attrs := ParseAttributes("*.txt text\n")

	stack := []Property{ignore, attrs}
	fileStack := JoinForChild(stack, "note.txt", false, nil)
	got := ApplyAll(fileStack)
	if got[EolStyle] != "native" {
		t.Fatalf("file props = %v, want svn:eol-style=native", got)
	}
	if _, ok := got[Ignore]; ok {
		t.Fatalf("file props = %v, svn:ignore must not reach files", got)
	}

	dirStack := JoinForChild(stack, "sub", true, nil)
	dirProps := ApplyAll(dirStack)
	if !strings.Contains(dirProps[Ignore], "*.tmp") {
		t.Fatalf("dir props = %v, want inherited *.tmp", dirProps)
	}
}

func TestRegistered(t *testing.T) {
	names := Registered()
	want := []string{".gitattributes", ".gitignore", ".tgitconfig"}
	if len(names) != len(want) {
		t.Fatalf("Registered() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("Registered() = %v, want %v", names, want)
		}
	}
	if FactoryFor(".gitignore") == nil {
		t.Fatal("FactoryFor(.gitignore) = nil")
	}
	if FactoryFor("README.md") != nil {
		t.Fatal("FactoryFor(README.md) != nil")
	}
}
