package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

const (
	articleSystemPrompt = "あなたは40年の経験を持つ税務・会計記事の専門ライターです。指示されたプロンプトに完全に従い、読者に価値を提供する高品質な記事を生成してください。"
	chartSystemPrompt   = "あなたは記事内容分析と図表生成の専門家です。記事の実際の内容のみに基づき、推測を一切せず、適切な図表を生成してください。"
	schemaSystemPrompt  = "あなたはSEOとSchema.org構造化データのエキスパートです。高品質なSchema.org構造化データ（JSON-LD形式）を生成してください。"
)

var (
	wpHTMLBlockRe = regexp.MustCompile(`(?s)<!-- wp:html -->.*?<!-- /wp:html -->`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
	h2TagRe       = regexp.MustCompile(`<h2`)
	codeFenceRe   = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	sentenceRe    = regexp.MustCompile(`[。！？]`)
)

// ArticleMetadata summarizes a generated article for reporting.
type ArticleMetadata struct {
	WordCount    int
	HeadingCount int
	ChartCount   int
	HasDialogues bool
}

// ArticleGenerator runs the three generation phases (content, charts,
// schema) against the chat-completion API and post-processes the results.
type ArticleGenerator struct {
	chat     *ChatClient
	prompts  *PromptBuilder
	settings *Settings
}

func NewArticleGenerator(chat *ChatClient, prompts *PromptBuilder, settings *Settings) *ArticleGenerator {
	return &ArticleGenerator{chat: chat, prompts: prompts, settings: settings}
}

// Generate produces a complete article from a brief. Content generation is
// fatal on failure; charts and schema degrade gracefully to none.
func (g *ArticleGenerator) Generate(ctx context.Context, brief *ResearchBrief) (*GeneratedArticle, error) {
	content, underLength, err := g.GenerateDetailedContent(ctx, brief)
	if err != nil {
		return nil, err
	}

	charts := g.GenerateCharts(ctx, content, brief)
	content = IntegrateArticleWithCharts(content, charts)

	wordCount := CountContentChars(content)
	slug := GenerateSlug(brief.MainKeyword)
	metaDescription := GenerateMetaDescription(content, brief.MainKeyword)
	schema := g.GenerateSchema(ctx, brief, slug, metaDescription, wordCount)

	return &GeneratedArticle{
		Title:           brief.Title,
		MainKeyword:     brief.MainKeyword,
		Content:         content,
		Charts:          charts,
		Schema:          schema,
		Slug:            slug,
		MetaDescription: metaDescription,
		SEOScore:        CalculateSEOScore(content, brief.MainKeyword),
		WordCount:       wordCount,
		UnderLength:     underLength,
	}, nil
}

// GenerateDetailedContent runs the primary content completion, checks the
// result against the brief's target length and lints it, auto-fixing
// Markdown leakage and unwrapped shortcodes. The returned bool reports
// whether the content came in under 80% of the target.
func (g *ArticleGenerator) GenerateDetailedContent(ctx context.Context, brief *ResearchBrief) (string, bool, error) {
	log.Printf("→ Generating article content: %s", brief.Title)

	prompt := g.prompts.BuildArticlePrompt(brief)
	cfg := g.settings.OpenAI
	content, err := g.chat.Complete(ctx, cfg.Model, articleSystemPrompt, prompt, cfg.Content.MaxTokens, cfg.Content.Temperature)
	if err != nil {
		return "", false, fmt.Errorf("generating article content: %w", err)
	}

	wordCount := CountContentChars(content)
	underLength := wordCount < brief.TargetWordCount*80/100
	if underLength {
		log.Printf("✗ content below 80%% of target length: %d/%d chars", wordCount, brief.TargetWordCount)
	} else {
		log.Printf("✓ content length: %d chars", wordCount)
	}

	if result := ValidateContent(content); !result.IsValid {
		log.Printf("→ Auto-fixing content issues: %s", strings.Join(result.Issues, "; "))
		content = ConvertMarkdownToWordPress(content)
		content = FixSpeechBalloons(content)
	}

	return content, underLength, nil
}

// GenerateCharts asks for wp:html visualization blocks matching the article.
// Chart generation is supplementary: any failure degrades to zero charts.
func (g *ArticleGenerator) GenerateCharts(ctx context.Context, articleContent string, brief *ResearchBrief) []Chart {
	log.Printf("→ Generating charts...")

	prompt := g.prompts.BuildChartPrompt(articleContent, brief)
	cfg := g.settings.OpenAI
	response, err := g.chat.Complete(ctx, cfg.Model, chartSystemPrompt, prompt, cfg.Charts.MaxTokens, cfg.Charts.Temperature)
	if err != nil {
		log.Printf("✗ chart generation failed (%s), continuing without charts: %v", ErrKindOf(err), err)
		return nil
	}

	var charts []Chart
	for i, match := range wpHTMLBlockRe.FindAllString(response, -1) {
		charts = append(charts, Chart{ID: fmt.Sprintf("chart_%d", i), HTML: match})
	}
	log.Printf("✓ extracted %d charts", len(charts))
	return charts
}

// IntegrateArticleWithCharts inserts each chart near the middle H2 heading.
// The position is approximate; charts are supplementary, not content-critical.
func IntegrateArticleWithCharts(content string, charts []Chart) string {
	if len(charts) == 0 {
		return content
	}

	for _, chart := range charts {
		position := findChartAnchor(content)
		lines := strings.Split(content, "\n")
		lineIndex := position / 100
		if lineIndex > len(lines) {
			lineIndex = len(lines)
		}
		inserted := make([]string, 0, len(lines)+3)
		inserted = append(inserted, lines[:lineIndex]...)
		inserted = append(inserted, "", chart.HTML, "")
		inserted = append(inserted, lines[lineIndex:]...)
		content = strings.Join(inserted, "\n")
	}
	return content
}

// findChartAnchor returns the byte offset of the middle H2 heading.
func findChartAnchor(content string) int {
	locs := h2TagRe.FindAllStringIndex(content, -1)
	if len(locs) == 0 {
		return 1000
	}
	return locs[len(locs)/2][0]
}

// GenerateSchema produces a JSON-LD document for the article. The response
// is parsed and reserialized; anything that does not survive a JSON
// round-trip falls back to a static BlogPosting schema rather than being
// regex-patched.
func (g *ArticleGenerator) GenerateSchema(ctx context.Context, brief *ResearchBrief, slug, metaDescription string, wordCount int) string {
	log.Printf("→ Generating schema markup...")

	prompt := g.prompts.BuildSchemaPrompt(brief, slug, wordCount)
	cfg := g.settings.OpenAI
	response, err := g.chat.Complete(ctx, cfg.Model, schemaSystemPrompt, prompt, cfg.Schema.MaxTokens, cfg.Schema.Temperature)
	if err != nil {
		log.Printf("✗ schema generation failed (%s), using fallback schema: %v", ErrKindOf(err), err)
		return FallbackSchema(brief, slug, metaDescription)
	}

	schema, err := NormalizeSchemaJSON(response)
	if err != nil {
		log.Printf("✗ schema response is not valid JSON, using fallback schema: %v", err)
		return FallbackSchema(brief, slug, metaDescription)
	}
	log.Printf("✓ schema markup generated")
	return schema
}

// NormalizeSchemaJSON extracts the JSON document from a completion response
// and reserializes it. Responses wrapped in code fences or prose around the
// outermost braces are tolerated; broken JSON is an error, never repaired.
func NormalizeSchemaJSON(response string) (string, error) {
	candidate := response
	if m := codeFenceRe.FindStringSubmatch(response); m != nil {
		candidate = m[1]
	}
	start := strings.Index(candidate, "{")
	end := strings.LastIndex(candidate, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("no JSON object found in schema response")
	}
	candidate = candidate[start : end+1]

	var parsed any
	if err := json.Unmarshal([]byte(candidate), &parsed); err != nil {
		return "", fmt.Errorf("schema JSON does not parse: %w", err)
	}
	out, err := json.MarshalIndent(parsed, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// FallbackSchema builds a minimal static BlogPosting JSON-LD document.
func FallbackSchema(brief *ResearchBrief, slug, metaDescription string) string {
	if metaDescription == "" {
		metaDescription = brief.MainKeyword + "について詳しく解説した実務重視の記事です。"
	}
	schema := map[string]any{
		"@context":      "https://schema.org",
		"@type":         "BlogPosting",
		"headline":      brief.Title,
		"description":   metaDescription,
		"keywords":      brief.MainKeyword,
		"datePublished": time.Now().Format(time.RFC3339),
		"url":           fmt.Sprintf("https://ezark-tax-accounting.com/%s/", slug),
	}
	out, _ := json.MarshalIndent(schema, "", "  ")
	return string(out)
}

// CountContentChars counts characters after stripping whitespace. For CJK
// text this is the word count.
func CountContentChars(text string) int {
	return utf8.RuneCountInString(whitespaceRe.ReplaceAllString(text, ""))
}

// GenerateSlug maps a known keyword onto a fixed English slug.
func GenerateSlug(keyword string) string {
	slugMap := map[string]string{
		"会計ソフト":    "accounting-software",
		"インボイス":    "invoice",
		"確定申告":     "tax-return",
		"freee":    "freee",
		"マネーフォワード": "moneyforward",
	}
	if slug, ok := slugMap[keyword]; ok {
		return slug
	}
	return "accounting-guide"
}

// GenerateMetaDescription extracts the first full sentence from the article,
// capped at 155 characters.
func GenerateMetaDescription(content, keyword string) string {
	runes := []rune(content)
	if len(runes) > 500 {
		runes = runes[:500]
	}

	var meta string
	for _, sentence := range sentenceRe.Split(string(runes), -1) {
		sentence = strings.TrimSpace(sentence)
		if utf8.RuneCountInString(sentence) > 10 {
			meta = sentence + "。"
			break
		}
	}
	if meta == "" {
		meta = keyword + "について詳しく解説します。"
	}

	if metaRunes := []rune(meta); len(metaRunes) > 155 {
		meta = string(metaRunes[:152]) + "..."
	}
	return meta
}

// CalculateSEOScore computes the ad-hoc 0-100 score reported after
// generation. It is a rough signal, not a ranking prediction.
func CalculateSEOScore(content, keyword string) int {
	score := 0

	occurrences := strings.Count(content, keyword)
	if occurrences > 10 {
		occurrences = 10
	}
	score += occurrences * 3

	meta := ExtractMetadata(content)
	headingPoints := meta.HeadingCount * 4
	if headingPoints > 20 {
		headingPoints = 20
	}
	score += headingPoints

	if meta.WordCount >= 4000 {
		score += 30
	} else {
		score += meta.WordCount * 30 / 4000
	}

	if meta.HasDialogues {
		score += 10
	}
	if meta.ChartCount > 0 {
		score += 10
	}

	if score > 100 {
		score = 100
	}
	return score
}

// ExtractMetadata inspects the article HTML for reporting counters.
func ExtractMetadata(content string) ArticleMetadata {
	meta := ArticleMetadata{
		WordCount:    CountContentChars(content),
		ChartCount:   strings.Count(content, wpHTMLOpen),
		HasDialogues: strings.Contains(content, "[speech_balloon"),
	}
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(content)); err == nil {
		meta.HeadingCount = doc.Find("h2, h3, h4, h5, h6").Length()
	}
	return meta
}
