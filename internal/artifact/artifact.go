// Package artifact persists rendered landing pages.
package artifact

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"landing-page-generator/internal/config"
)

// Store saves rendered HTML under a name and hands back an opaque location.
type Store interface {
	Upload(ctx context.Context, content, name string) (string, error)
	Fetch(ctx context.Context, location string) (string, error)
	Replace(ctx context.Context, oldLocation, content, name string) (string, error)
	Delete(ctx context.Context, location string) error
}

// New picks S3 when a bucket is configured and the local filesystem otherwise.
func New(ctx context.Context, cfg config.Config) (Store, error) {
	if cfg.ArtifactS3Bucket != "" {
		client, err := newS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewS3Store(client, cfg.ArtifactS3Bucket), nil
	}
	return NewLocalStore(cfg.ArtifactDir)
}

const maxSlugLen = 50

// Name builds the deterministic file name of a job's artifact. A retried upload
// of the same job overwrites its earlier copy.
func Name(seed, jobID string) string {
	slug := Slug(seed)
	if slug == "" {
		slug = "landing"
	}
	return fmt.Sprintf("%s_%s.html", slug, jobID)
}

// turkishFold maps the dotless and dotted i forms that NFD cannot decompose.
var turkishFold = runes.Map(func(r rune) rune {
	switch r {
	case 'ı':
		return 'i'
	case 'İ':
		return 'I'
	}
	return r
})

// Slug reduces s to lowercase ASCII letters, digits and single dashes.
func Slug(s string) string {
	folder := transform.Chain(turkishFold, norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(folder, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	b.Grow(len(folded))
	dash := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimRight(b.String(), "-")
	if len(out) > maxSlugLen {
		out = strings.TrimRight(out[:maxSlugLen], "-")
	}
	return out
}
