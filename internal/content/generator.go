package content

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"landing-page-generator/internal/apperrors"
	"landing-page-generator/internal/llm"
	"landing-page-generator/internal/models"
	"landing-page-generator/internal/telemetry"
	"landing-page-generator/internal/templates"
)

// SectionRequest is one generation call the generator will issue.
type SectionRequest struct {
	Section string
	Count   int
}

var requiredSections = []string{
	models.SectionMeta,
	models.SectionHero,
	models.SectionButtons,
	models.SectionSecurity,
	models.SectionFooter,
}

// Plan lists the section calls for a template: the always-required sections
// followed by one call per conditional entry of the template's section list.
func Plan(cfg templates.Config) []SectionRequest {
	plan := make([]SectionRequest, 0, len(requiredSections)+len(cfg.Sections))
	seen := make(map[string]bool, len(requiredSections)+len(cfg.Sections))
	for _, s := range requiredSections {
		plan = append(plan, SectionRequest{Section: s})
		seen[s] = true
	}
	for _, spec := range cfg.Sections {
		req, ok := conditionalRequest(spec)
		if !ok || seen[req.Section] {
			continue
		}
		seen[req.Section] = true
		plan = append(plan, req)
	}
	return plan
}

func conditionalRequest(spec templates.SectionSpec) (SectionRequest, bool) {
	switch spec.Type {
	case templates.SectionFeatures:
		return SectionRequest{Section: models.SectionFeatures, Count: countOr(spec.Count, DefaultFeatureCount)}, true
	case templates.SectionArticle:
		return SectionRequest{Section: models.SectionArticle}, true
	case templates.SectionFAQ:
		return SectionRequest{Section: models.SectionFAQs, Count: countOr(spec.Count, DefaultFAQCount)}, true
	case templates.SectionBonus:
		return SectionRequest{Section: models.SectionBonus}, true
	case templates.SectionTestimonials:
		return SectionRequest{Section: models.SectionTestimonials, Count: countOr(spec.Count, DefaultTestimonialCount)}, true
	case templates.SectionGames:
		return SectionRequest{Section: models.SectionGames, Count: countOr(spec.Count, DefaultGameCount)}, true
	default:
		// hero is part of the required set
		return SectionRequest{}, false
	}
}

func countOr(n, def int) int {
	if n > 0 {
		return n
	}
	return def
}

// Generator produces the GeneratedContent of one job.
type Generator struct {
	client llm.ChatClient
	logger zerolog.Logger
}

func NewGenerator(client llm.ChatClient, logger zerolog.Logger) *Generator {
	return &Generator{client: client, logger: logger}
}

// parts collects section results. Each goroutine owns exactly one field.
type parts struct {
	meta         models.Meta
	hero         models.Hero
	buttons      models.Buttons
	security     models.Security
	footer       models.Footer
	features     []models.Feature
	article      *models.Article
	faqs         []models.FAQ
	bonus        *models.Bonus
	testimonials []models.Testimonial
	games        []models.Game
}

// GenerateAll issues every planned section call concurrently and waits for all of them.
// Any failure fails the whole call and no document is returned.
func (g *Generator) GenerateAll(ctx context.Context, seed string, keywords []string, cfg templates.Config) (*models.GeneratedContent, error) {
	if len(keywords) != KeywordCount {
		return nil, apperrors.Generation(fmt.Sprintf("expected %d derived keywords, got %d", KeywordCount, len(keywords)), nil)
	}
	plan := Plan(cfg)
	var p parts
	var group errgroup.Group
	for _, req := range plan {
		req := req
		group.Go(func() error {
			start := time.Now()
			err := g.generate(ctx, seed, keywords, req, &p)
			log := g.logger.With().Str("section", req.Section).Dur("took", time.Since(start)).Logger()
			if err != nil {
				telemetry.SectionFailures.WithLabelValues(req.Section).Inc()
				log.Warn().Err(err).Msg("section generation failed")
				return err
			}
			log.Debug().Msg("section generated")
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return &models.GeneratedContent{
		Meta:         p.meta,
		Hero:         p.hero,
		Buttons:      p.buttons,
		Security:     p.security,
		Footer:       p.footer,
		Features:     p.features,
		Article:      p.article,
		FAQs:         p.faqs,
		Bonus:        p.bonus,
		Testimonials: p.testimonials,
		Games:        p.games,
	}, nil
}

func (g *Generator) generate(ctx context.Context, seed string, kw []string, req SectionRequest, p *parts) error {
	pr := buildPrompt(req.Section, seed, kw, req.Count)
	raw, err := g.client.Chat(ctx, pr.messages(), llm.ChatOptions{MaxTokens: pr.maxTokens})
	if err != nil {
		return err
	}
	switch req.Section {
	case models.SectionMeta:
		p.meta, err = decodeSection(req.Section, raw, models.Meta.Validate)
	case models.SectionHero:
		p.hero, err = decodeSection(req.Section, raw, models.Hero.Validate)
	case models.SectionButtons:
		p.buttons, err = decodeSection(req.Section, raw, models.Buttons.Validate)
	case models.SectionSecurity:
		p.security, err = decodeSection(req.Section, raw, models.Security.Validate)
	case models.SectionFooter:
		p.footer, err = decodeSection(req.Section, raw, models.Footer.Validate)
	case models.SectionFeatures:
		p.features, err = decodeSection(req.Section, raw, models.ValidateList[models.Feature])
	case models.SectionArticle:
		var a models.Article
		a, err = decodeSection(req.Section, raw, models.Article.Validate)
		if err == nil {
			if len(a.Sections) < MinArticleSections {
				g.logger.Info().Int("sections", len(a.Sections)).Msg("article shorter than requested")
			}
			p.article = &a
		}
	case models.SectionFAQs:
		p.faqs, err = decodeSection(req.Section, raw, models.ValidateList[models.FAQ])
	case models.SectionBonus:
		var b models.Bonus
		b, err = decodeSection(req.Section, raw, models.Bonus.Validate)
		if err == nil {
			p.bonus = &b
		}
	case models.SectionTestimonials:
		p.testimonials, err = decodeSection(req.Section, raw, models.ValidateList[models.Testimonial])
	case models.SectionGames:
		p.games, err = decodeSection(req.Section, raw, models.ValidateList[models.Game])
	default:
		return apperrors.Generation(fmt.Sprintf("unknown section %q", req.Section), nil)
	}
	return err
}
