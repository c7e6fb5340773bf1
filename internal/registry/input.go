package registry

import "strings"

// InputKind discriminates the special input forms.
type InputKind int

const (
	// KindTarget is a plain target resolved against the descriptor table.
	KindTarget InputKind = iota
	// KindRemote is an `r:` input: the target is fetched and scanned for
	// embedded URLs, each re-fed through resolution.
	KindRemote
	// KindOAuth is an `oauth:category[:instance]` setup directive.
	KindOAuth
)

// InputSpec is a parsed raw input string.
type InputSpec struct {
	Kind InputKind

	// Target is the input with any marker prefix stripped.
	Target string

	// OAuth fields, set when Kind == KindOAuth.
	OAuthCategory string
	OAuthInstance string
}

// ParseInput classifies a raw input string. The `r:` and `oauth:` markers
// are recognized here; forced-extractor prefixes are handled inside
// Resolve, which knows the registered category names.
func ParseInput(raw string) InputSpec {
	raw = strings.TrimSpace(raw)

	if rest, ok := strings.CutPrefix(raw, "r:"); ok {
		return InputSpec{Kind: KindRemote, Target: rest}
	}

	if rest, ok := strings.CutPrefix(raw, "oauth:"); ok {
		category, instance, _ := strings.Cut(rest, ":")
		return InputSpec{
			Kind:          KindOAuth,
			Target:        rest,
			OAuthCategory: category,
			OAuthInstance: instance,
		}
	}

	return InputSpec{Kind: KindTarget, Target: raw}
}
