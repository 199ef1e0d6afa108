package main

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	defaultTargetWordCount = 5000
	maxOutlineEntries      = 10
)

// Known domain keywords, matched against brief filenames. Order matters:
// the first pattern that matches wins.
var keywordPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)freee`),
	regexp.MustCompile(`マネーフォワード`),
	regexp.MustCompile(`会計ソフト`),
	regexp.MustCompile(`確定申告`),
	regexp.MustCompile(`インボイス`),
	regexp.MustCompile(`(?i)tax`),
	regexp.MustCompile(`(?i)accounting`),
}

var (
	wordCountRe   = regexp.MustCompile(`(\d{4,5})\s*文字`)
	h2MarkerRe    = regexp.MustCompile(`^[■●▲◆]\s*(.+)$`)
	numberedH2Re  = regexp.MustCompile(`^\d+\.\s*(.+)$`)
	h3MarkerRe    = regexp.MustCompile(`^[-・]\s*(.+)$`)
	underscoresRe = regexp.MustCompile(`[_-]`)
)

// Default outlines used when a brief contains no recognizable structure.
var defaultOutlines = map[string][]string{
	"freee": {
		"freeeの基本概要と特徴",
		"アカウント作成と初期設定",
		"銀行口座・カード連携の手順",
		"自動仕訳とレポートの使い方",
		"よくある質問と解決方法",
		"まとめと活用のポイント",
	},
	"確定申告": {
		"確定申告の基本と対象者",
		"必要書類の準備",
		"申告書の作成手順",
		"電子申告（e-Tax）の使い方",
		"よくある間違いと対処法",
		"まとめと提出後のポイント",
	},
}

var genericOutline = []string{
	"基本的な概要と特徴",
	"初期設定・導入方法",
	"具体的な使い方・操作手順",
	"料金プランと選び方",
	"よくある質問と解決方法",
	"まとめと活用のポイント",
}

// ParseResearchBrief reads a manual research file and extracts the fields
// needed to drive generation. Extraction is heuristic: the result is always
// best-effort and downstream consumers must tolerate a wrong title or a
// default outline. The only error case is an unreadable file.
func ParseResearchBrief(path string) (*ResearchBrief, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading brief %s: %w", path, err)
	}
	content := string(data)

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	keyword := extractKeywordFromFileName(base)

	return &ResearchBrief{
		FileName:        filepath.Base(path),
		Title:           extractTitle(content, keyword),
		MainKeyword:     keyword,
		TargetWordCount: extractWordCount(content),
		Headings:        extractHeadings(content, keyword),
		RawContent:      content,
	}, nil
}

// ListBriefFiles returns the .txt and .md files in dir, sorted by name.
func ListBriefFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading brief directory %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".txt", ".md":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}

func extractKeywordFromFileName(base string) string {
	for _, p := range keywordPatterns {
		if m := p.FindString(base); m != "" {
			return m
		}
	}
	return strings.TrimSpace(underscoresRe.ReplaceAllString(base, " "))
}

func extractTitle(content, keyword string) string {
	lines := strings.Split(content, "\n")
	if len(lines) > 0 {
		first := strings.TrimSpace(lines[0])
		if n := utf8.RuneCountInString(first); n > 10 && n < 100 {
			return first
		}
	}

	// Fixed templates; the first one wins deterministically.
	templates := []string{
		keyword + "の使い方完全ガイド【2024年最新版】",
		"実務家が教える" + keyword + "活用法",
		keyword + "徹底解説｜初心者から上級者まで",
		"【完全版】" + keyword + "でできること・設定方法",
	}
	return templates[0]
}

func extractWordCount(content string) int {
	m := wordCountRe.FindStringSubmatch(content)
	if m == nil {
		return defaultTargetWordCount
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return defaultTargetWordCount
	}
	return n
}

// extractHeadings builds a two-level outline from bullet markers. ■●▲◆ and
// numbered lines become H2, -/・ lines become H3. Briefs without any marker
// fall back to a fixed per-keyword outline.
func extractHeadings(content, keyword string) []Heading {
	var headings []Heading
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case h2MarkerRe.MatchString(trimmed):
			headings = append(headings, Heading{Level: 2, Text: strings.TrimSpace(h2MarkerRe.FindStringSubmatch(trimmed)[1])})
		case numberedH2Re.MatchString(trimmed):
			headings = append(headings, Heading{Level: 2, Text: strings.TrimSpace(numberedH2Re.FindStringSubmatch(trimmed)[1])})
		case h3MarkerRe.MatchString(trimmed):
			// H3 entries only make sense under an H2.
			if len(headings) > 0 {
				headings = append(headings, Heading{Level: 3, Text: strings.TrimSpace(h3MarkerRe.FindStringSubmatch(trimmed)[1])})
			}
		}
		if len(headings) >= maxOutlineEntries {
			break
		}
	}

	if len(headings) == 0 {
		outline, ok := defaultOutlines[keyword]
		if !ok {
			outline = genericOutline
		}
		for _, text := range outline {
			headings = append(headings, Heading{Level: 2, Text: text})
		}
	}

	if len(headings) > maxOutlineEntries {
		headings = headings[:maxOutlineEntries]
	}
	return headings
}
