package extractor

import (
	"context"
	"net/url"
	"path"
	"strings"
)

// DirectlinkPattern matches URLs pointing straight at a media file.
const DirectlinkPattern = `^(?:https?://)?(?:[^/?#]+)/[^?#]+\.(?i:jpe?g|png|gif|webp|bmp|svg|avif|mp4|webm|mkv|mov|m4v|mp3|m4a|ogg|opus|flac|wav|pdf|zip|rar|7z)(?:[?#].*)?$`

// Directlink handles URLs that point directly at a media file. No site API
// is involved: the single item's identity is the normalized URL itself.
type Directlink struct {
	target string
}

// NewDirectlink constructs a directlink extractor for the given URL.
func NewDirectlink(target string) *Directlink {
	if !strings.Contains(target, "://") {
		target = "https://" + target
	}
	return &Directlink{target: target}
}

func (d *Directlink) Category() string    { return "directlink" }
func (d *Directlink) Subcategory() string { return "file" }

func (d *Directlink) Items(ctx context.Context) ItemIterator {
	u, err := url.Parse(d.target)
	if err != nil {
		return IterFunc(func(context.Context) (*Item, error) { return nil, err })
	}

	base := path.Base(u.Path)
	ext := strings.TrimPrefix(path.Ext(base), ".")
	name := strings.TrimSuffix(base, path.Ext(base))

	rec := RecordFrom(
		"category", d.Category(),
		"subcategory", d.Subcategory(),
		"domain", u.Hostname(),
		"path", strings.TrimSuffix(u.Path, base),
		"filename", name,
		"extension", strings.ToLower(ext),
		"url", d.target,
	)

	return SliceIterator([]*Item{{
		Record:   rec,
		Identity: d.target,
		Source:   Source{URL: d.target},
	}})
}
