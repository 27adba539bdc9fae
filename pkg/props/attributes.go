package props

import (
	"path"
	"strings"
)

// attrRule maps a basename pattern from .gitattributes to SVN properties
// for matching files.
type attrRule struct {
	pattern string
	values  map[string]string
}

// AttributesProp derives svn:eol-style and svn:mime-type from a
// .gitattributes blob. The fragment travels down the subtree and resolves
// to a PropSet at each matching file.
type AttributesProp struct {
	rules []attrRule
}

// ParseAttributes translates .gitattributes contents into an
// AttributesProp. Returns nil when no rule maps to an SVN property.
func ParseAttributes(content string) Property {
	p := &AttributesProp{}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		pattern := fields[0]
		if strings.Contains(pattern, "/") {
			// Anchored patterns need the full wildcard engine.
			continue
		}
		values := make(map[string]string)
		for _, attr := range fields[1:] {
			switch {
			case attr == "text":
				values[EolStyle] = "native"
			case attr == "eol=lf":
				values[EolStyle] = "LF"
			case attr == "eol=crlf":
				values[EolStyle] = "CRLF"
			case attr == "binary" || attr == "-text":
				values[MimeType] = MimeBinary
				delete(values, EolStyle)
			}
		}
		if len(values) > 0 {
			p.rules = append(p.rules, attrRule{pattern: pattern, values: values})
		}
	}
	if len(p.rules) == 0 {
		return nil
	}
	return p
}

// Apply contributes nothing to the directory the file lives in.
func (p *AttributesProp) Apply(props map[string]string) {}

func (p *AttributesProp) ForChild(name string, isDir bool) Property {
	if isDir {
		return p
	}
	values := make(map[string]string)
	for _, rule := range p.rules {
		if ok, err := path.Match(rule.pattern, name); err == nil && ok {
			for k, v := range rule.values {
				values[k] = v
			}
		}
	}
	if len(values) == 0 {
		return nil
	}
	return &PropSet{Values: values}
}
