// Package render merges a generated content document into a template's static HTML.
package render

import (
	"context"
	"fmt"
	"html"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"landing-page-generator/internal/models"
)

// Placeholder tokens every template is authored with.
const (
	placeholderBrand      = "Meritking"
	placeholderBrandLower = "meritking"
	placeholderPrimary    = "siteurl.com"
	placeholderSecondary  = "domain.com"
)

// Sources resolves a template id to its static HTML.
type Sources interface {
	Source(id string) (string, error)
}

// Input is everything one render needs.
type Input struct {
	TemplateID   string
	SiteName     string
	CanonicalURL string
	AlternateURL string
	Content      *models.GeneratedContent
}

// Renderer is stateless apart from the read-only template sources.
type Renderer struct {
	sources Sources
	logger  zerolog.Logger
}

func New(sources Sources, logger zerolog.Logger) *Renderer {
	return &Renderer{sources: sources, logger: logger}
}

// Render produces the final HTML. The same input always yields the same bytes.
func (r *Renderer) Render(ctx context.Context, in Input) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if in.Content == nil {
		return "", fmt.Errorf("render %s: no content", in.TemplateID)
	}
	src, err := r.sources.Source(in.TemplateID)
	if err != nil {
		return "", err
	}
	brand := capitalize(in.SiteName)
	src = strings.ReplaceAll(src, placeholderBrand, brand)
	src = strings.ReplaceAll(src, placeholderBrandLower, strings.ToLower(in.SiteName))

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		return "", fmt.Errorf("parse template %s: %w", in.TemplateID, err)
	}
	rw, err := newURLRewriter(in.CanonicalURL, in.AlternateURL)
	if err != nil {
		return "", err
	}
	c := in.Content
	log := r.logger.With().Str("template_id", in.TemplateID).Logger()

	// Placeholders are rewritten before any caller value lands in an attribute,
	// so a canonical host like "mydomain.com" is never taken for a token.
	rw.apply(doc)
	setMeta(doc, c.Meta, in.CanonicalURL)
	setLinks(doc, in.CanonicalURL, in.AlternateURL)
	setHero(doc, c.Hero)
	doc.Find(".btn-primary").First().SetText(c.Buttons.Primary)
	doc.Find(".btn-secondary").First().SetText(c.Buttons.Secondary)
	doc.Find(".security-text h3, .security-title").SetText(c.Security.SecurityTitle)
	doc.Find(".security-text p, .security-description").SetText(c.Security.SecurityDescription)
	if c.Features != nil {
		setFeatures(doc, c.Features)
	}
	if c.Article != nil {
		setArticle(doc, c.Article)
	}
	setFAQs(doc, c.FAQs)
	if c.Bonus != nil {
		setBonus(doc, c.Bonus)
	}
	if c.Testimonials != nil {
		setTestimonials(doc, c.Testimonials)
	}
	if c.Games != nil {
		setGames(doc, c.Games)
	}
	setFooter(doc, c.Footer)
	rewriteStructuredData(doc, structuredInput{
		brand:        brand,
		canonicalURL: in.CanonicalURL,
		description:  c.Meta.MetaDescription,
		faqs:         c.FAQs,
	}, log)

	out, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("serialize %s: %w", in.TemplateID, err)
	}
	return out, nil
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func setMeta(doc *goquery.Document, m models.Meta, canonical string) {
	doc.Find("title").SetText(m.MetaTitle)
	doc.Find(`meta[name="description"]`).SetAttr("content", m.MetaDescription)
	doc.Find(`meta[name="keywords"]`).SetAttr("content", m.MetaKeywords)
	doc.Find(`meta[property="og:title"]`).SetAttr("content", m.MetaTitle)
	doc.Find(`meta[property="og:description"]`).SetAttr("content", m.MetaDescription)
	doc.Find(`meta[property="og:url"]`).SetAttr("content", canonical)
	doc.Find(`meta[name="twitter:title"]`).SetAttr("content", m.MetaTitle)
	doc.Find(`meta[name="twitter:description"]`).SetAttr("content", m.MetaDescription)
}

func setLinks(doc *goquery.Document, canonical, alternate string) {
	doc.Find(`link[rel="canonical"]`).SetAttr("href", canonical)
	doc.Find(`link[rel="alternate"][hreflang="x-default"]`).SetAttr("href", canonical)
	doc.Find(`link[rel="alternate"][hreflang]`).Each(func(_ int, s *goquery.Selection) {
		if lang, _ := s.Attr("hreflang"); lang != "x-default" {
			s.SetAttr("href", alternate)
		}
	})
}

func setHero(doc *goquery.Document, h models.Hero) {
	title := doc.Find(".hero-title").First()
	if title.Length() > 0 {
		words := strings.Fields(h.HeroTitle)
		if len(words) > 0 {
			markup := `<span class="highlight">` + html.EscapeString(words[0]) + `</span>`
			if len(words) > 1 {
				markup += " " + html.EscapeString(strings.Join(words[1:], " "))
			}
			title.SetHtml(markup)
		}
	}
	doc.Find(".hero-subtitle").First().SetText(h.HeroSubtitle)
	doc.Find(".hero-feature").Each(func(i int, s *goquery.Selection) {
		if i >= len(h.HeroBadges) {
			return
		}
		s.Find("span").First().SetText(h.HeroBadges[i])
	})
}

func setFeatures(doc *goquery.Document, features []models.Feature) {
	doc.Find(".feature-card").Each(func(i int, s *goquery.Selection) {
		if i >= len(features) {
			return
		}
		s.Find("h3, .feature-title").First().SetText(features[i].Title)
		s.Find("p, .feature-description").First().SetText(features[i].Description)
	})
}

func setArticle(doc *goquery.Document, a *models.Article) {
	container := doc.Find(".article-content")
	if container.Length() == 0 {
		container = doc.Find("article")
	}
	if container.Length() == 0 {
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "<h2>%s</h2>\n", html.EscapeString(a.MainTitle))
	for _, s := range a.Sections {
		fmt.Fprintf(&b, "\n<h3>%s</h3>\n", html.EscapeString(s.Heading))
		for _, p := range s.Paragraphs {
			fmt.Fprintf(&b, "<p>%s</p>\n", html.EscapeString(p))
		}
	}
	container.First().SetHtml(b.String())
}

func setFAQs(doc *goquery.Document, faqs []models.FAQ) {
	doc.Find(".faq-item").Each(func(i int, s *goquery.Selection) {
		if i >= len(faqs) {
			return
		}
		firstOf(s, ".faq-question span", ".faq-question").SetText(faqs[i].Question)
		firstOf(s, ".faq-answer p", ".faq-answer").SetText(faqs[i].Answer)
	})
}

func setBonus(doc *goquery.Document, b *models.Bonus) {
	doc.Find(".bonus-title").First().SetText(b.Title)
	doc.Find(".bonus-amount").First().SetText(b.Amount)
	doc.Find(".bonus-description").First().SetText(b.Description)
	if b.CTA != "" {
		doc.Find(".bonus-cta").First().SetText(b.CTA)
	}
}

func setTestimonials(doc *goquery.Document, items []models.Testimonial) {
	doc.Find(".testimonial-card").Each(func(i int, s *goquery.Selection) {
		if i >= len(items) {
			return
		}
		s.Find(".testimonial-text").First().SetText(items[i].Text)
		s.Find(".testimonial-author").First().SetText(items[i].Name)
		if r := items[i].Rating; r > 0 {
			s.Find(".testimonial-rating").First().SetText(strings.Repeat("★", r) + strings.Repeat("☆", 5-r))
		}
	})
}

func setGames(doc *goquery.Document, games []models.Game) {
	doc.Find(".game-card").Each(func(i int, s *goquery.Selection) {
		if i >= len(games) {
			return
		}
		s.Find(".game-title").First().SetText(games[i].Name)
		s.Find(".game-category").First().SetText(games[i].Category)
	})
}

func setFooter(doc *goquery.Document, f models.Footer) {
	about := doc.Find(".footer-about").First()
	if about.Length() == 0 {
		about = doc.Find(".footer-section").First().Find("p").First()
	}
	about.SetText(f.About)
	doc.Find(".footer-bottom p").First().SetText(f.Copyright)
}

// firstOf returns the first match of the first selector that matches anything.
func firstOf(s *goquery.Selection, selectors ...string) *goquery.Selection {
	for _, sel := range selectors {
		if found := s.Find(sel); found.Length() > 0 {
			return found.First()
		}
	}
	return s.Find(selectors[len(selectors)-1])
}
