package content

import (
	"fmt"
	"strings"

	"landing-page-generator/internal/llm"
	"landing-page-generator/internal/models"
)

// Default item counts when a template section does not set one.
const (
	DefaultFeatureCount     = 6
	DefaultFAQCount         = 6
	DefaultTestimonialCount = 3
	DefaultGameCount        = 8
	MinArticleSections      = 7
)

const jsonOnly = " Sadece geçerli JSON döndürürsün, açıklama eklemezsin."

// prompt is the two-message exchange for one section.
type prompt struct {
	system    string
	user      string
	maxTokens int
}

func (p prompt) messages() []llm.Message {
	return []llm.Message{
		{Role: "system", Content: p.system},
		{Role: "user", Content: p.user},
	}
}

func buildPrompt(section string, seed string, kw []string, count int) prompt {
	switch section {
	case models.SectionMeta:
		return metaPrompt(seed, kw)
	case models.SectionHero:
		return heroPrompt(seed, kw)
	case models.SectionButtons:
		return buttonsPrompt(seed, kw)
	case models.SectionSecurity:
		return securityPrompt(seed)
	case models.SectionFooter:
		return footerPrompt(seed, kw)
	case models.SectionFeatures:
		return featuresPrompt(seed, count)
	case models.SectionArticle:
		return articlePrompt(seed, kw)
	case models.SectionFAQs:
		return faqPrompt(seed, kw, count)
	case models.SectionBonus:
		return bonusPrompt(seed, kw)
	case models.SectionTestimonials:
		return testimonialsPrompt(seed, count)
	case models.SectionGames:
		return gamesPrompt(seed, count)
	}
	panic(fmt.Sprintf("content: no prompt for section %q", section))
}

func metaPrompt(seed string, kw []string) prompt {
	user := fmt.Sprintf(`"%s" için SEO uyumlu meta bilgileri oluştur:

1. Meta Title (55-60 karakter, "%s" içermeli)
2. Meta Description (150-160 karakter, doğal ve akıcı Türkçe)
3. Meta Keywords (10-15 anahtar kelime, virgülle ayrılmış)

Türev kelimeler: %s

JSON formatı:
{"metaTitle": "...", "metaDescription": "...", "metaKeywords": "..."}`, seed, kw[KeywordBase], strings.Join(kw, ", "))
	return prompt{system: "Sen SEO uzmanı bir içerik yazarısın." + jsonOnly, user: user, maxTokens: 500}
}

func heroPrompt(seed string, kw []string) prompt {
	user := fmt.Sprintf(`"%s" temalı casino/bahis sitesi için hero bölümü yaz:

1. heroTitle: çekici başlık, en fazla 10 kelime, "%s" ifadesini içersin
2. heroSubtitle: 15-20 kelimelik açıklayıcı alt başlık
3. heroBadges: 2-3 kelimelik 3 rozet (örn: "Canlı Casino", "Slot Oyunları")

JSON formatı:
{"heroTitle": "...", "heroSubtitle": "...", "heroBadges": ["...", "...", "..."]}`, seed, kw[KeywordLogin])
	return prompt{system: "Sen yaratıcı bir copywriter'sın." + jsonOnly, user: user, maxTokens: 500}
}

func buttonsPrompt(seed string, kw []string) prompt {
	user := fmt.Sprintf(`"%s" temalı casino/bahis sitesi için 2 CTA buton metni yaz:

1. primary: ana aksiyon (örn: "Hemen Giriş Yap", "%s")
2. secondary: ikincil aksiyon (örn: "Oyunları İncele", "Demo Dene")

Her buton 2-4 kelime, aksiyon odaklı Türkçe.

JSON formatı:
{"primary": "...", "secondary": "..."}`, seed, kw[KeywordLogin])
	return prompt{system: "Sen CTA copywriting uzmanısın." + jsonOnly, user: user, maxTokens: 200}
}

func securityPrompt(seed string) prompt {
	user := fmt.Sprintf(`"%s" casino/bahis sitesi için güvenlik bölümü yaz:

1. securityTitle: güvenliği vurgulayan başlık (örn: "256-bit SSL Şifreleme ile Korunuyorsunuz")
2. securityDescription: güvenlik önlemlerini anlatan 40-50 kelime

JSON formatı:
{"securityTitle": "...", "securityDescription": "..."}`, seed)
	return prompt{system: "Sen güvenlik mesajlaşması uzmanısın." + jsonOnly, user: user, maxTokens: 300}
}

func footerPrompt(seed string, kw []string) prompt {
	user := fmt.Sprintf(`"%s" casino/bahis sitesi için footer metinleri yaz:

1. about: site hakkında 30-40 kelimelik tanıtım
2. copyright: telif satırı (örn: "© 2025 %s. Tüm hakları saklıdır. 18+ Sorumlu Oyun.")

JSON formatı:
{"about": "...", "copyright": "..."}`, seed, kw[KeywordBase])
	return prompt{system: "Sen footer copywriting uzmanısın." + jsonOnly, user: user, maxTokens: 300}
}

func featuresPrompt(seed string, count int) prompt {
	user := fmt.Sprintf(`"%s" casino/bahis sitesi için %d özellik kartı yaz.

Her kart:
- title: 3-5 kelime
- description: faydaları vurgulayan 20-30 kelime

Konu önerileri: Canlı Casino, Slot Oyunları, Spor Bahisleri, Bonuslar, Hızlı Çekim, Güvenlik

Tam olarak %d elemanlı JSON dizisi döndür:
[{"title": "...", "description": "..."}]`, seed, count, count)
	return prompt{system: "Sen özellik yazarlığında uzman bir pazarlamacısın." + jsonOnly, user: user, maxTokens: 1500}
}

func articlePrompt(seed string, kw []string) prompt {
	user := fmt.Sprintf(`"%s" hakkında SEO uyumlu, 2000+ kelimelik detaylı makale yaz.

Yapı:
- 1 ana başlık (mainTitle)
- en az %d alt bölüm, her biri bir h3 başlığı ve 2-3 paragraf
- şu ifadeleri doğal şekilde kullan: %s
- profesyonel, bilgilendirici Türkçe

JSON formatı:
{"mainTitle": "...", "sections": [{"h3": "...", "paragraphs": ["...", "..."]}]}`,
		seed, MinArticleSections, strings.Join(kw[KeywordLogin:], ", "))
	return prompt{system: "Sen uzun ve bilgilendirici içerik üreten bir SEO makale yazarısın." + jsonOnly, user: user, maxTokens: 4000}
}

func faqPrompt(seed string, kw []string, count int) prompt {
	user := fmt.Sprintf(`"%s" hakkında %d sıkça sorulan soru ve cevap yaz.

Sorular gerçek kullanıcı soruları olsun (oyunlar, güvenlik, bonuslar, para çekme, destek, "%s" adresi).
Her cevap 60-80 kelime.

Tam olarak %d elemanlı JSON dizisi döndür:
[{"question": "...", "answer": "..."}]`, seed, count, kw[KeywordCurrentLogin], count)
	return prompt{system: "Sen net ve yardımcı cevaplar veren bir müşteri destek uzmanısın." + jsonOnly, user: user, maxTokens: 2000}
}

func bonusPrompt(seed string, kw []string) prompt {
	user := fmt.Sprintf(`"%s" casino/bahis sitesi için hoş geldin bonusu bloğu yaz ("%s" ifadesini kullan):

1. title: 3-6 kelimelik başlık
2. amount: kısa tutar/oran (örn: "%%100 + 250 Free Spin")
3. description: 25-35 kelimelik açıklama
4. cta: 2-3 kelimelik buton metni

JSON formatı:
{"title": "...", "amount": "...", "description": "...", "cta": "..."}`, seed, kw[KeywordBonus])
	return prompt{system: "Sen kampanya metni yazarısın." + jsonOnly, user: user, maxTokens: 600}
}

func testimonialsPrompt(seed string, count int) prompt {
	user := fmt.Sprintf(`"%s" kullanıcılarından %d kısa yorum yaz.

Her yorum:
- name: kısaltılmış isim (örn: "Ahmet Y.")
- text: 20-30 kelimelik deneyim
- rating: 4 veya 5

Tam olarak %d elemanlı JSON dizisi döndür:
[{"name": "...", "text": "...", "rating": 5}]`, seed, count, count)
	return prompt{system: "Sen gerçekçi kullanıcı yorumları yazan bir içerik editörüsün." + jsonOnly, user: user, maxTokens: 1200}
}

func gamesPrompt(seed string, count int) prompt {
	user := fmt.Sprintf(`"%s" casino sitesinde öne çıkan %d oyun listele.

Her oyun:
- name: oyun adı
- category: "Slot", "Canlı Casino", "Crash" veya "Masa Oyunu"

Tam olarak %d elemanlı JSON dizisi döndür:
[{"name": "...", "category": "..."}]`, seed, count, count)
	return prompt{system: "Sen casino oyunları editörüsün." + jsonOnly, user: user, maxTokens: 1200}
}
