package props

import "strings"

// IgnoreProp derives svn:ignore and svn:global-ignores from a .gitignore
// blob. Patterns without a slash apply to the directory and every
// descendant: they join the directory's svn:ignore and additionally
// surface as the inheritable svn:global-ignores. Patterns anchored with a
// leading slash apply to the containing directory's svn:ignore only.
// Patterns with an inner slash need the full wildcard engine and are
// skipped here.
type IgnoreProp struct {
	local     []string
	recursive []string
}

// ParseIgnore translates .gitignore contents into an IgnoreProp. Returns
// nil when no usable pattern remains.
func ParseIgnore(content string) Property {
	p := &IgnoreProp{}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimRight(line, " \t\r")
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}
		line = strings.TrimSuffix(line, "/")
		if strings.HasPrefix(line, "/") {
			name := strings.TrimPrefix(line, "/")
			if name == "" || strings.Contains(name, "/") {
				continue
			}
			p.local = append(p.local, name)
			continue
		}
		if strings.Contains(line, "/") {
			continue
		}
		p.recursive = append(p.recursive, line)
	}
	if len(p.local) == 0 && len(p.recursive) == 0 {
		return nil
	}
	return p
}

func (p *IgnoreProp) Apply(props map[string]string) {
	patterns := make([]string, 0, len(p.local)+len(p.recursive))
	patterns = append(patterns, p.local...)
	patterns = append(patterns, p.recursive...)
	appendPatterns(props, Ignore, patterns)
	appendPatterns(props, GlobalIgnores, p.recursive)
}

func appendPatterns(props map[string]string, key string, patterns []string) {
	if len(patterns) == 0 {
		return
	}
	value := strings.Join(patterns, "\n") + "\n"
	if prev, ok := props[key]; ok {
		value = prev + value
	}
	props[key] = value
}

// ForChild keeps recursive patterns alive for child directories; files get
// nothing from an ignore fragment.
func (p *IgnoreProp) ForChild(name string, isDir bool) Property {
	if !isDir || len(p.recursive) == 0 {
		return nil
	}
	return &IgnoreProp{recursive: p.recursive}
}
