package main

import (
	"strings"
	"testing"
)

func testTemplates() PromptTemplates {
	return PromptTemplates{
		Article: "記事プロンプト本文",
		Chart:   "図表プロンプト本文",
		Schema:  "スキーマプロンプト本文",
	}
}

func TestNewPromptBuilder(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*PromptTemplates)
		wantErr bool
	}{
		{"all present", func(*PromptTemplates) {}, false},
		{"missing article", func(t *PromptTemplates) { t.Article = "" }, true},
		{"whitespace chart", func(t *PromptTemplates) { t.Chart = "  \n" }, true},
		{"missing schema", func(t *PromptTemplates) { t.Schema = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			templates := testTemplates()
			tt.mutate(&templates)
			_, err := NewPromptBuilder(templates)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewPromptBuilder() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBuildArticlePrompt(t *testing.T) {
	pb, err := NewPromptBuilder(testTemplates())
	if err != nil {
		t.Fatal(err)
	}

	brief := &ResearchBrief{
		Title:           "freee使い方完全ガイド",
		MainKeyword:     "freee",
		TargetWordCount: 8000,
		Headings: []Heading{
			{Level: 2, Text: "基本機能"},
			{Level: 3, Text: "自動仕訳"},
			{Level: 2, Text: "料金プラン"},
		},
	}

	prompt := pb.BuildArticlePrompt(brief)

	for _, want := range []string{
		"記事プロンプト本文",
		"キーワード: freee",
		"想定文字数: 8000文字",
		"8000文字以上を厳守",
		"タイトル: freee使い方完全ガイド",
		"基本機能",
		"H2セクション数: 2個以上",
		"Markdown記法",
		"speech_balloon",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("article prompt missing %q", want)
		}
	}
}

func TestBuildChartPrompt(t *testing.T) {
	pb, err := NewPromptBuilder(testTemplates())
	if err != nil {
		t.Fatal(err)
	}

	brief := &ResearchBrief{MainKeyword: "確定申告", TargetWordCount: 5000}
	prompt := pb.BuildChartPrompt("記事本文サンプル", brief)

	for _, want := range []string{
		"図表プロンプト本文",
		"記事本文サンプル",
		"確定申告",
		"<!-- wp:html -->",
		"JavaScript禁止",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("chart prompt missing %q", want)
		}
	}
}

func TestBuildSchemaPrompt(t *testing.T) {
	pb, err := NewPromptBuilder(testTemplates())
	if err != nil {
		t.Fatal(err)
	}

	brief := &ResearchBrief{Title: "インボイス解説", MainKeyword: "インボイス"}
	prompt := pb.BuildSchemaPrompt(brief, "invoice", 6200)

	for _, want := range []string{
		"スキーマプロンプト本文",
		"記事スラッグ: invoice",
		"記事タイトル: インボイス解説",
		"文字数: 6200",
		"JSON-LD",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("schema prompt missing %q", want)
		}
	}
}

func TestCountLevel2(t *testing.T) {
	headings := []Heading{
		{Level: 2, Text: "a"},
		{Level: 3, Text: "b"},
		{Level: 2, Text: "c"},
		{Level: 3, Text: "d"},
	}
	if got := countLevel2(headings); got != 2 {
		t.Errorf("countLevel2() = %d, want 2", got)
	}
	if got := countLevel2(nil); got != 0 {
		t.Errorf("countLevel2(nil) = %d, want 0", got)
	}
}
