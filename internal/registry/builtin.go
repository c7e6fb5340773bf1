package registry

import (
	"regexp"

	"github.com/Guiraud/gallery-dl/internal/extractor"
	"github.com/Guiraud/gallery-dl/internal/options"
)

// Builtin returns the descriptors that ship with the tool. Site plugins
// append their own descriptors to this table at startup.
func Builtin() []Descriptor {
	return []Descriptor{
		{
			Category:    "directlink",
			Subcategory: "file",
			Pattern:     regexp.MustCompile(extractor.DirectlinkPattern),
			Specificity: 1,
			New: func(target string, _ options.Lookup) (extractor.Extractor, error) {
				return extractor.NewDirectlink(target), nil
			},
		},
	}
}
