package render

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"landing-page-generator/internal/apperrors"
)

var (
	// One pass over both tokens so a substituted URL is never rescanned.
	placeholderURL = regexp.MustCompile(`(?:https?://)?(?:` + regexp.QuoteMeta(placeholderPrimary) + `|` + regexp.QuoteMeta(placeholderSecondary) + `)/?`)
	doubleSlash    = regexp.MustCompile(`([^:]/)/+`)
)

// urlAttrs lists the attributes the placeholder rewrite is scoped to.
var urlAttrs = []struct{ selector, attr string }{
	{"a[href]", "href"},
	{"meta[content]", "content"},
	{"img[src]", "src"},
}

type urlRewriter struct {
	canonical     string
	canonicalHost string
	alternate     string
	alternateHost string
}

func newURLRewriter(canonical, alternate string) (*urlRewriter, error) {
	ch, err := hostname(canonical)
	if err != nil {
		return nil, err
	}
	ah, err := hostname(alternate)
	if err != nil {
		return nil, err
	}
	return &urlRewriter{
		canonical:     strings.TrimRight(canonical, "/"),
		canonicalHost: ch,
		alternate:     strings.TrimRight(alternate, "/"),
		alternateHost: ah,
	}, nil
}

func hostname(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "", apperrors.Validation(fmt.Sprintf("invalid url %q", raw))
	}
	return u.Hostname(), nil
}

func (w *urlRewriter) apply(doc *goquery.Document) {
	for _, target := range urlAttrs {
		doc.Find(target.selector).Each(func(_ int, s *goquery.Selection) {
			val, ok := s.Attr(target.attr)
			if !ok || val == "" {
				return
			}
			if next := w.rewrite(val); next != val {
				s.SetAttr(target.attr, next)
			}
		})
	}
}

func (w *urlRewriter) rewrite(val string) string {
	if !strings.Contains(val, placeholderPrimary) && !strings.Contains(val, placeholderSecondary) {
		return val
	}
	val = placeholderURL.ReplaceAllStringFunc(val, w.substitute)
	return doubleSlash.ReplaceAllString(val, "$1")
}

// substitute maps one placeholder match. Absolute forms become the full URL with a
// trailing slash, bare host forms become the hostname.
func (w *urlRewriter) substitute(match string) string {
	absolute := strings.HasPrefix(match, "http")
	trailing := strings.HasSuffix(match, "/")
	primary := strings.Contains(match, placeholderPrimary)
	switch {
	case absolute && primary:
		return w.canonical + "/"
	case absolute:
		return w.alternate + "/"
	}
	host := w.alternateHost
	if primary {
		host = w.canonicalHost
	}
	if trailing {
		host += "/"
	}
	return host
}
