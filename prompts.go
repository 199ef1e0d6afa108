package main

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PromptTemplates holds the three base prompt templates. They are embedded
// by default and can be overridden with files (see config.go).
type PromptTemplates struct {
	Article string
	Chart   string
	Schema  string
}

// PromptBuilder assembles the final prompt strings sent to the generation
// API. Templates are injected at construction so there is no load-ordering
// to get wrong.
type PromptBuilder struct {
	templates PromptTemplates
}

// NewPromptBuilder validates that all three templates are present. Prompts
// are load-bearing for output quality, so a missing one is a hard error.
func NewPromptBuilder(t PromptTemplates) (*PromptBuilder, error) {
	if strings.TrimSpace(t.Article) == "" {
		return nil, fmt.Errorf("prompt builder: article template is empty")
	}
	if strings.TrimSpace(t.Chart) == "" {
		return nil, fmt.Errorf("prompt builder: chart template is empty")
	}
	if strings.TrimSpace(t.Schema) == "" {
		return nil, fmt.Errorf("prompt builder: schema template is empty")
	}
	return &PromptBuilder{templates: t}, nil
}

// BuildArticlePrompt combines the article template with the brief and an
// explicit checklist of hard requirements.
func (pb *PromptBuilder) BuildArticlePrompt(brief *ResearchBrief) string {
	headingsJSON, _ := json.MarshalIndent(brief.Headings, "", "  ")

	return fmt.Sprintf(`%s

【記事生成指示】
以下のリサーチ結果に基づき、上記プロンプトに完全準拠した記事を生成してください。

キーワード: %s
想定文字数: %d文字
タイトル: %s
見出し構成: %s

【必須要件】
1. 文字数: %d文字以上を厳守
2. WordPress完全対応: <!-- wp:paragraph --> 等のブロック形式必須
3. SEO最適化: H2→H3構造でキーワードを戦略的に配置
4. キャラクター会話: [speech_balloon] による二人の対話を挿入
5. H2セクション数: %d個以上

【禁止事項】
- Markdown記法（##、**、- ）の使用禁止
- 薄い内容・水増しの禁止`,
		strings.TrimSpace(pb.templates.Article),
		brief.MainKeyword,
		brief.TargetWordCount,
		brief.Title,
		string(headingsJSON),
		brief.TargetWordCount,
		countLevel2(brief.Headings))
}

// BuildChartPrompt combines the chart template with the article content and
// the brief. Generated data must be traceable to the article itself.
func (pb *PromptBuilder) BuildChartPrompt(articleContent string, brief *ResearchBrief) string {
	briefJSON, _ := json.MarshalIndent(brief, "", "  ")

	return fmt.Sprintf(`%s

【図表生成指示】
以下の記事内容を分析し、記事内容に完全連動した図表を生成してください。

【記事内容】
%s

【リサーチデータ】
%s

【厳守事項】
1. 記事内の実際のデータ・数値のみ使用（推測・捏造禁止）
2. 各図表は <!-- wp:html --> ブロックで囲む
3. モバイル最適化必須
4. JavaScript禁止、CSSはインラインで完結`,
		strings.TrimSpace(pb.templates.Chart),
		articleContent,
		string(briefJSON))
}

// BuildSchemaPrompt combines the schema template with the article metadata.
// The result must be a single JSON-LD document.
func (pb *PromptBuilder) BuildSchemaPrompt(brief *ResearchBrief, slug string, wordCount int) string {
	return fmt.Sprintf(`%s

【スキーママークアップ生成指示】
以下の記事情報に基づき、Schema.org構造化データ（JSON-LD形式）を1つだけ生成してください。

記事スラッグ: %s
記事タイトル: %s
メインキーワード: %s
文字数: %d

JSON-LD本体のみを出力し、説明文やコードフェンスは含めないでください。`,
		strings.TrimSpace(pb.templates.Schema),
		slug,
		brief.Title,
		brief.MainKeyword,
		wordCount)
}

func countLevel2(headings []Heading) int {
	n := 0
	for _, h := range headings {
		if h.Level == 2 {
			n++
		}
	}
	return n
}
