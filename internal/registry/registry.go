// Package registry maps raw input strings to extractor descriptors. The
// table is static, ordered, and side-effect free: resolution is a pure
// lookup over compiled patterns.
package registry

import (
	"regexp"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/Guiraud/gallery-dl/internal/extractor"
	"github.com/Guiraud/gallery-dl/internal/options"
)

// ErrNoExtractor is returned when no descriptor matches an input. It is
// non-fatal: the caller skips the input and continues with the batch.
var ErrNoExtractor = eris.New("registry: no extractor matches input")

// Descriptor describes one registered extractor: its scoping keys, match
// pattern, specificity rank, and construction function.
type Descriptor struct {
	Category    string
	Subcategory string
	Pattern     *regexp.Regexp

	// Specificity ranks competing matches; the highest value wins. Ties
	// fall back to registration order.
	Specificity int

	// New constructs an extractor bound to the matched target and its
	// resolved options.
	New func(target string, opts options.Lookup) (extractor.Extractor, error)
}

// Match is a successful resolution: the winning descriptor and the target
// the extractor should operate on.
type Match struct {
	Descriptor *Descriptor
	Target     string
}

// Registry is the ordered descriptor table.
type Registry struct {
	descriptors []*Descriptor
	byCategory  map[string][]*Descriptor
}

// New builds a registry from descriptors in registration order.
func New(descs ...Descriptor) *Registry {
	r := &Registry{byCategory: make(map[string][]*Descriptor)}
	for i := range descs {
		d := &descs[i]
		r.descriptors = append(r.descriptors, d)
		r.byCategory[d.Category] = append(r.byCategory[d.Category], d)
	}
	return r
}

// Categories returns the registered category names, sorted.
func (r *Registry) Categories() []string {
	out := make([]string, 0, len(r.byCategory))
	for c := range r.byCategory {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// HasCategory reports whether a category is registered.
func (r *Registry) HasCategory(name string) bool {
	_, ok := r.byCategory[name]
	return ok
}

// Resolve maps an input to a descriptor and target.
//
// A `category:rest` prefix naming a registered category forces that
// category: the remainder is matched only against its patterns, and when
// none fit, its lowest-specificity descriptor accepts the target verbatim.
// Otherwise every descriptor's pattern is evaluated against the full input
// and the most specific match wins, ties broken by registration order.
func (r *Registry) Resolve(input string) (*Match, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrNoExtractor
	}

	if name, rest, ok := strings.Cut(input, ":"); ok {
		if cands, forced := r.byCategory[name]; forced {
			return r.resolveForced(cands, rest)
		}
	}

	var best *Descriptor
	for _, d := range r.descriptors {
		if !d.Pattern.MatchString(input) {
			continue
		}
		if best == nil || d.Specificity > best.Specificity {
			best = d
		}
	}
	if best == nil {
		return nil, eris.Wrapf(ErrNoExtractor, "input %q", input)
	}
	return &Match{Descriptor: best, Target: input}, nil
}

// resolveForced restricts matching to one category's descriptors. Ranking
// is bypassed: the first pattern match wins, and a remainder no pattern
// accepts still resolves to the category's most general descriptor.
func (r *Registry) resolveForced(cands []*Descriptor, target string) (*Match, error) {
	for _, d := range cands {
		if d.Pattern.MatchString(target) {
			return &Match{Descriptor: d, Target: target}, nil
		}
	}
	general := cands[0]
	for _, d := range cands[1:] {
		if d.Specificity < general.Specificity {
			general = d
		}
	}
	return &Match{Descriptor: general, Target: target}, nil
}
