package props

import "sort"

// Factory parses a config-file blob into a property fragment. A nil result
// means the file contributes nothing.
type Factory func(content string) Property

var factories = map[string]Factory{
	".gitignore":     ParseIgnore,
	".gitattributes": ParseAttributes,
	".tgitconfig":    ParseTgitConfig,
}

// FactoryFor returns the factory registered for a config-file basename,
// or nil if the name carries no property mapping.
func FactoryFor(fileName string) Factory {
	return factories[fileName]
}

// Registered returns the sorted list of config-file names the property
// bridge considers authoritative.
func Registered() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
