// Package extractor defines the capability contract every site handler
// implements: a pull-based, finite, non-restartable stream of metadata
// records, each optionally carrying a byte-stream source for the transfer
// stage.
package extractor

import (
	"context"
	"errors"
)

// ErrEnd is returned by ItemIterator.Next when the stream is exhausted.
var ErrEnd = errors.New("extractor: end of items")

// Source describes where an item's bytes come from. Either URL is set, or
// Bytes holds content the extractor already fetched. A zero Source means the
// item is metadata-only.
type Source struct {
	URL   string
	Bytes []byte
}

// IsZero reports whether the item carries no byte-stream source.
func (s Source) IsZero() bool {
	return s.URL == "" && s.Bytes == nil
}

// Item is one downloadable unit: its metadata record, a stable identity used
// for dedup, and the source of its bytes.
type Item struct {
	Record   *Record
	Identity string
	Source   Source
}

// ItemIterator is a pull-based stream of items. Next blocks until the next
// item is available; the consumer drives the pace (backpressure). Iterators
// are finite and non-restartable.
type ItemIterator interface {
	Next(ctx context.Context) (*Item, error)
}

// Extractor is the contract each site plugin implements. Category and
// Subcategory are static and feed registry construction and option scoping.
type Extractor interface {
	Category() string
	Subcategory() string

	// Items begins lazy enumeration. One record is fetched only when the
	// pipeline asks for it.
	Items(ctx context.Context) ItemIterator
}

// Authenticator is implemented by extractors that perform a login handshake
// with the credentials supplied by the password provider.
type Authenticator interface {
	Login(ctx context.Context, username, password string) error
}

// iterFunc adapts a pull function to ItemIterator.
type iterFunc func(ctx context.Context) (*Item, error)

func (f iterFunc) Next(ctx context.Context) (*Item, error) {
	return f(ctx)
}

// IterFunc wraps a pull function as an ItemIterator.
func IterFunc(fn func(ctx context.Context) (*Item, error)) ItemIterator {
	return iterFunc(fn)
}

// SliceIterator returns an iterator over a fixed set of items.
func SliceIterator(items []*Item) ItemIterator {
	i := 0
	return IterFunc(func(ctx context.Context) (*Item, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if i >= len(items) {
			return nil, ErrEnd
		}
		item := items[i]
		i++
		return item, nil
	})
}
