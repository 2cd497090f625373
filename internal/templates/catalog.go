// Package templates holds the read-only catalog of landing page templates
// and their static HTML sources.
package templates

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"landing-page-generator/internal/apperrors"
)

// SectionType names a content block a template can display.
type SectionType string

const (
	SectionHero         SectionType = "hero"
	SectionFeatures     SectionType = "features"
	SectionArticle      SectionType = "article"
	SectionFAQ          SectionType = "faq"
	SectionBonus        SectionType = "bonus"
	SectionTestimonials SectionType = "testimonials"
	SectionGames        SectionType = "games"
)

// SectionSpec is one entry of a template's section list.
type SectionSpec struct {
	Type  SectionType `json:"type"`
	Count int         `json:"count,omitempty"`
}

// Colors is the template's visual theme.
type Colors struct {
	Primary    string `json:"primary"`
	Background string `json:"bg"`
	Accent     string `json:"accent"`
}

// Config describes which sections a template requires.
type Config struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Colors      Colors        `json:"colors"`
	Sections    []SectionSpec `json:"sections"`
	DemoURL     string        `json:"demoUrl"`
}

//go:embed assets/*.html
var embedded embed.FS

// Catalog is process-wide immutable template data. Safe for concurrent reads.
type Catalog struct {
	configs []Config
	byID    map[string]Config
	assets  fs.FS
}

var defaultCatalog = mustNew(builtin, nil)

// Default returns the built-in catalog backed by the embedded assets.
func Default() *Catalog {
	return defaultCatalog
}

// WithAssetDir returns a catalog whose HTML sources are read from dir instead of the embedded copies.
func WithAssetDir(dir string) (*Catalog, error) {
	if dir == "" {
		return Default(), nil
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("template dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("template dir %s is not a directory", dir)
	}
	return New(builtin, os.DirFS(dir))
}

// New validates configs and builds a catalog. A nil assets FS means the embedded assets.
func New(configs []Config, assets fs.FS) (*Catalog, error) {
	if assets == nil {
		sub, err := fs.Sub(embedded, "assets")
		if err != nil {
			return nil, err
		}
		assets = sub
	}
	c := &Catalog{
		configs: make([]Config, 0, len(configs)),
		byID:    make(map[string]Config, len(configs)),
		assets:  assets,
	}
	for _, cfg := range configs {
		if err := validate(cfg); err != nil {
			return nil, err
		}
		if _, dup := c.byID[cfg.ID]; dup {
			return nil, fmt.Errorf("duplicate template id %q", cfg.ID)
		}
		cfg.Sections = append([]SectionSpec(nil), cfg.Sections...)
		c.configs = append(c.configs, cfg)
		c.byID[cfg.ID] = cfg
	}
	return c, nil
}

func mustNew(configs []Config, assets fs.FS) *Catalog {
	c, err := New(configs, assets)
	if err != nil {
		panic(err)
	}
	return c
}

func validate(cfg Config) error {
	if cfg.ID == "" {
		return errors.New("template id is required")
	}
	for _, s := range cfg.Sections {
		switch s.Type {
		case SectionHero, SectionFeatures, SectionArticle, SectionFAQ, SectionBonus, SectionTestimonials, SectionGames:
		default:
			return fmt.Errorf("template %s: unknown section type %q", cfg.ID, s.Type)
		}
		if s.Count < 0 {
			return fmt.Errorf("template %s: negative count for %s", cfg.ID, s.Type)
		}
	}
	return nil
}

// Get returns a copy of the template config.
func (c *Catalog) Get(id string) (Config, bool) {
	cfg, ok := c.byID[id]
	if !ok {
		return Config{}, false
	}
	cfg.Sections = append([]SectionSpec(nil), cfg.Sections...)
	return cfg, true
}

// Lookup is Get returning a TemplateNotFound error.
func (c *Catalog) Lookup(id string) (Config, error) {
	cfg, ok := c.Get(id)
	if !ok {
		return Config{}, apperrors.TemplateNotFound(id)
	}
	return cfg, nil
}

// All lists the catalog in declaration order.
func (c *Catalog) All() []Config {
	out := make([]Config, 0, len(c.configs))
	for _, cfg := range c.configs {
		cfg.Sections = append([]SectionSpec(nil), cfg.Sections...)
		out = append(out, cfg)
	}
	return out
}

// Source loads the static HTML of a template.
func (c *Catalog) Source(id string) (string, error) {
	if _, ok := c.byID[id]; !ok {
		return "", apperrors.TemplateNotFound(id)
	}
	raw, err := fs.ReadFile(c.assets, id+".html")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", apperrors.TemplateNotFound(id)
		}
		return "", fmt.Errorf("read template %s: %w", id, err)
	}
	return string(raw), nil
}

var builtin = []Config{
	{
		ID:          "template-1",
		Name:        "Premium Trust",
		Description: "Lüks casino teması - Premium kullanıcılar için",
		Colors:      Colors{Primary: "#D4AF37", Background: "#1A1A1A", Accent: "#8B0000"},
		Sections: []SectionSpec{
			{Type: SectionHero},
			{Type: SectionFeatures, Count: 6},
			{Type: SectionArticle},
			{Type: SectionFAQ, Count: 6},
		},
		DemoURL: "/demos/template-1-demo.html",
	},
	{
		ID:          "template-2",
		Name:        "Modern Convert",
		Description: "Modern minimal tema - Yüksek conversion odaklı",
		Colors:      Colors{Primary: "#0066FF", Background: "#FFFFFF", Accent: "#00C2FF"},
		Sections: []SectionSpec{
			{Type: SectionHero},
			{Type: SectionBonus},
			{Type: SectionFeatures, Count: 4},
			{Type: SectionTestimonials, Count: 3},
			{Type: SectionFAQ, Count: 5},
		},
		DemoURL: "/demos/template-2-demo.html",
	},
	{
		ID:          "template-3",
		Name:        "Neon Gaming",
		Description: "Cyberpunk tema - Genç kitle için",
		Colors:      Colors{Primary: "#8338EC", Background: "#0D0221", Accent: "#FF006E"},
		Sections: []SectionSpec{
			{Type: SectionHero},
			{Type: SectionGames, Count: 8},
			{Type: SectionBonus},
			{Type: SectionArticle},
			{Type: SectionFAQ, Count: 6},
		},
		DemoURL: "/demos/template-3-demo.html",
	},
	{
		ID:          "template-4",
		Name:        "Classic Pro",
		Description: "Klasik profesyonel tema - Spor bahis odaklı",
		Colors:      Colors{Primary: "#006B3D", Background: "#F8F9FA", Accent: "#FFB800"},
		Sections: []SectionSpec{
			{Type: SectionHero},
			{Type: SectionFeatures, Count: 4},
			{Type: SectionTestimonials, Count: 4},
			{Type: SectionFAQ, Count: 5},
		},
		DemoURL: "/demos/template-4-demo.html",
	},
	{
		ID:          "template-5",
		Name:        "Energy Fire",
		Description: "Energik dinamik tema - Aksiyon casino",
		Colors:      Colors{Primary: "#FF4500", Background: "#1C1C1C", Accent: "#FFA500"},
		Sections: []SectionSpec{
			{Type: SectionHero},
			{Type: SectionBonus},
			{Type: SectionFeatures, Count: 6},
			{Type: SectionArticle},
			{Type: SectionTestimonials, Count: 3},
			{Type: SectionFAQ, Count: 6},
		},
		DemoURL: "/demos/template-5-demo.html",
	},
}
