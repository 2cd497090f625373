package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Section names used as keys of the generated document and in error reports.
const (
	SectionMeta         = "meta"
	SectionHero         = "hero"
	SectionButtons      = "buttons"
	SectionSecurity     = "security"
	SectionFooter       = "footer"
	SectionFeatures     = "features"
	SectionArticle      = "article"
	SectionFAQs         = "faqs"
	SectionBonus        = "bonus"
	SectionTestimonials = "testimonials"
	SectionGames        = "games"
)

// GeneratedContent is the complete document produced for one job.
// Optional sections are nil when the template does not ask for them.
type GeneratedContent struct {
	Meta         Meta          `json:"meta"`
	Hero         Hero          `json:"hero"`
	Buttons      Buttons       `json:"buttons"`
	Security     Security      `json:"security"`
	Footer       Footer        `json:"footer"`
	Features     []Feature     `json:"features,omitempty"`
	Article      *Article      `json:"article,omitempty"`
	FAQs         []FAQ         `json:"faqs,omitempty"`
	Bonus        *Bonus        `json:"bonus,omitempty"`
	Testimonials []Testimonial `json:"testimonials,omitempty"`
	Games        []Game        `json:"games,omitempty"`
}

type Meta struct {
	MetaTitle       string `json:"metaTitle"`
	MetaDescription string `json:"metaDescription"`
	MetaKeywords    string `json:"metaKeywords"`
}

func (m Meta) Validate() error {
	return requireFields(map[string]string{
		"metaTitle":       m.MetaTitle,
		"metaDescription": m.MetaDescription,
		"metaKeywords":    m.MetaKeywords,
	})
}

type Hero struct {
	HeroTitle    string   `json:"heroTitle"`
	HeroSubtitle string   `json:"heroSubtitle"`
	HeroBadges   []string `json:"heroBadges"`
}

func (h Hero) Validate() error {
	if err := requireFields(map[string]string{"heroTitle": h.HeroTitle, "heroSubtitle": h.HeroSubtitle}); err != nil {
		return err
	}
	if len(h.HeroBadges) == 0 {
		return errors.New("missing field heroBadges")
	}
	return nil
}

type Buttons struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
}

func (b Buttons) Validate() error {
	return requireFields(map[string]string{"primary": b.Primary, "secondary": b.Secondary})
}

type Security struct {
	SecurityTitle       string `json:"securityTitle"`
	SecurityDescription string `json:"securityDescription"`
}

func (s Security) Validate() error {
	return requireFields(map[string]string{
		"securityTitle":       s.SecurityTitle,
		"securityDescription": s.SecurityDescription,
	})
}

type Footer struct {
	About     string `json:"about"`
	Copyright string `json:"copyright"`
}

func (f Footer) Validate() error {
	return requireFields(map[string]string{"about": f.About, "copyright": f.Copyright})
}

type Feature struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (f Feature) Validate() error {
	return requireFields(map[string]string{"title": f.Title, "description": f.Description})
}

type Article struct {
	MainTitle string           `json:"mainTitle"`
	Sections  []ArticleSection `json:"sections"`
}

type ArticleSection struct {
	Heading    string   `json:"h3"`
	Paragraphs []string `json:"paragraphs"`
}

func (a Article) Validate() error {
	if strings.TrimSpace(a.MainTitle) == "" {
		return errors.New("missing field mainTitle")
	}
	if len(a.Sections) == 0 {
		return errors.New("article has no sections")
	}
	for i, s := range a.Sections {
		if strings.TrimSpace(s.Heading) == "" {
			return fmt.Errorf("sections[%d]: missing field h3", i)
		}
		if len(s.Paragraphs) == 0 {
			return fmt.Errorf("sections[%d]: no paragraphs", i)
		}
	}
	return nil
}

type FAQ struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

func (f FAQ) Validate() error {
	return requireFields(map[string]string{"question": f.Question, "answer": f.Answer})
}

type Bonus struct {
	Title       string `json:"title"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
	CTA         string `json:"cta"`
}

func (b Bonus) Validate() error {
	return requireFields(map[string]string{"title": b.Title, "amount": b.Amount, "description": b.Description})
}

type Testimonial struct {
	Name   string `json:"name"`
	Text   string `json:"text"`
	Rating int    `json:"rating"`
}

func (t Testimonial) Validate() error {
	if err := requireFields(map[string]string{"name": t.Name, "text": t.Text}); err != nil {
		return err
	}
	if t.Rating < 0 || t.Rating > 5 {
		return fmt.Errorf("rating %d out of range", t.Rating)
	}
	return nil
}

type Game struct {
	Name     string `json:"name"`
	Category string `json:"category"`
}

func (g Game) Validate() error {
	return requireFields(map[string]string{"name": g.Name, "category": g.Category})
}

// ValidateList checks a list section item by item.
func ValidateList[T interface{ Validate() error }](items []T) error {
	if len(items) == 0 {
		return errors.New("empty list")
	}
	for i, item := range items {
		if err := item.Validate(); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
	}
	return nil
}

func requireFields(fields map[string]string) error {
	var missing []string
	for name, v := range fields {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("missing field %s", strings.Join(missing, ", "))
}
