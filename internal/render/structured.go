package render

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"golang.org/x/net/html"

	"landing-page-generator/internal/models"
)

const searchTargetSuffix = "/search?q={search_term_string}"

type structuredInput struct {
	brand        string
	canonicalURL string
	description  string
	faqs         []models.FAQ
}

// rewriteStructuredData updates Organization, WebSite and FAQPage JSON-LD blocks.
// Other blocks, and blocks that do not parse, are left byte-for-byte as they were.
func rewriteStructuredData(doc *goquery.Document, in structuredInput, log zerolog.Logger) {
	doc.Find(`script[type="application/ld+json"]`).Each(func(i int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		block, err := decodeBlock(raw)
		if err != nil {
			log.Warn().Err(err).Int("block", i).Msg("structured data block skipped: unparseable")
			return
		}
		kind, _ := block["@type"].(string)
		switch kind {
		case "Organization":
			block["name"] = in.brand
			block["url"] = in.canonicalURL
			block["description"] = in.description
		case "WebSite":
			block["name"] = in.brand
			block["url"] = in.canonicalURL
			if action, ok := block["potentialAction"].(map[string]any); ok {
				action["target"] = strings.TrimRight(in.canonicalURL, "/") + searchTargetSuffix
			}
		case "FAQPage":
			if len(in.faqs) == 0 {
				log.Debug().Int("block", i).Msg("no generated FAQs; FAQPage left untouched")
				return
			}
			block["mainEntity"] = faqEntities(in.faqs)
		default:
			log.Debug().Str("type", kind).Int("block", i).Msg("structured data block left untouched")
			return
		}
		out, err := json.MarshalIndent(block, "", "  ")
		if err != nil {
			log.Warn().Err(err).Str("type", kind).Msg("structured data block skipped: encode failed")
			return
		}
		// Script content is raw text; SetText would entity-escape the quotes.
		s.Empty().AppendNodes(&html.Node{Type: html.TextNode, Data: "\n" + string(out) + "\n"})
	})
}

func decodeBlock(raw string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var block map[string]any
	if err := dec.Decode(&block); err != nil {
		return nil, err
	}
	return block, nil
}

func faqEntities(faqs []models.FAQ) []any {
	out := make([]any, 0, len(faqs))
	for _, f := range faqs {
		out = append(out, map[string]any{
			"@type": "Question",
			"name":  f.Question,
			"acceptedAnswer": map[string]any{
				"@type": "Answer",
				"text":  f.Answer,
			},
		})
	}
	return out
}
