package main

import (
	"fmt"
	"regexp"
	"strings"
)

// Gutenberg block comment delimiters used throughout the formatter.
const (
	wpHTMLOpen  = "<!-- wp:html -->"
	wpHTMLClose = "<!-- /wp:html -->"
)

var (
	headingLineRe   = regexp.MustCompile(`^(#{1,3}) (.+)$`)
	boldRe          = regexp.MustCompile(`\*\*(.+?)\*\*`)
	bulletItemRe    = regexp.MustCompile(`^[-*+] (.*)$`)
	numberedItemRe  = regexp.MustCompile(`^\d+\. (.*)$`)
	blankRunRe      = regexp.MustCompile(`\n{3,}`)
	speechBalloonRe = regexp.MustCompile(`\[speech_balloon[^\]]*\](?s:.*?)\[/speech_balloon\]`)

	mdHeadingRe = regexp.MustCompile(`(?m)^##\s`)
	mdListRe    = regexp.MustCompile(`(?m)^[-*+]\s`)
	mdBoldRe    = regexp.MustCompile(`\*\*.+?\*\*`)
)

// ValidationResult is the outcome of the pre-publish lint gate.
type ValidationResult struct {
	IsValid bool
	Issues  []string
}

// ConvertMarkdownToWordPress rewrites light Markdown (headings, bold, lists,
// bare paragraphs) into Gutenberg block markup. Lines that already carry
// block comments or HTML tags pass through untouched. The transformation is
// best-effort and never fails on malformed input.
func ConvertMarkdownToWordPress(content string) string {
	content = boldRe.ReplaceAllString(content, "<strong>$1</strong>")

	lines := strings.Split(content, "\n")
	var out []string

	for i := 0; i < len(lines); {
		line := strings.TrimSpace(lines[i])

		if m := headingLineRe.FindStringSubmatch(line); m != nil {
			level := len(m[1])
			out = append(out, fmt.Sprintf(`<!-- wp:heading {"level":%d} --><h%d>%s</h%d><!-- /wp:heading -->`,
				level, level, m[2], level))
			i++
			continue
		}

		if isListItem(line) {
			// List type follows the first marker of the contiguous run.
			tag := "ul"
			if numberedItemRe.MatchString(line) {
				tag = "ol"
			}
			out = append(out, "<!-- wp:list --><"+tag+">")
			for i < len(lines) {
				item := strings.TrimSpace(lines[i])
				if !isListItem(item) {
					break
				}
				out = append(out, "<li>"+stripListMarker(item)+"</li>")
				i++
			}
			out = append(out, "</"+tag+"><!-- /wp:list -->")
			continue
		}

		switch {
		case line == "":
			out = append(out, "")
		case strings.HasPrefix(line, "<!-- wp:"), strings.HasPrefix(line, "<!-- /wp:"):
			out = append(out, line)
		case strings.HasPrefix(line, "<") && strings.HasSuffix(line, ">"):
			out = append(out, line)
		default:
			out = append(out, "<!-- wp:paragraph --><p>"+line+"</p><!-- /wp:paragraph -->")
		}
		i++
	}

	return blankRunRe.ReplaceAllString(strings.Join(out, "\n"), "\n\n")
}

func isListItem(line string) bool {
	return bulletItemRe.MatchString(line) || numberedItemRe.MatchString(line)
}

func stripListMarker(line string) string {
	if m := bulletItemRe.FindStringSubmatch(line); m != nil {
		return m[1]
	}
	if m := numberedItemRe.FindStringSubmatch(line); m != nil {
		return m[1]
	}
	return line
}

// FixSpeechBalloons wraps speech balloon shortcodes in wp:html blocks. The
// theme renders the shortcode only inside a raw HTML block. Shortcodes
// already directly wrapped are left alone, so repeated runs are stable.
func FixSpeechBalloons(content string) string {
	locs := speechBalloonRe.FindAllStringIndex(content, -1)
	if len(locs) == 0 {
		return content
	}

	var b strings.Builder
	last := 0
	for _, loc := range locs {
		b.WriteString(content[last:loc[0]])
		wrapped := strings.HasSuffix(content[:loc[0]], wpHTMLOpen) &&
			strings.HasPrefix(content[loc[1]:], wpHTMLClose)
		if !wrapped {
			b.WriteString(wpHTMLOpen)
			b.WriteString(content[loc[0]:loc[1]])
			b.WriteString(wpHTMLClose)
		} else {
			b.WriteString(content[loc[0]:loc[1]])
		}
		last = loc[1]
	}
	b.WriteString(content[last:])
	return b.String()
}

// ValidateContent is the pre-publish lint gate. It flags leftover Markdown
// syntax, missing block markup, and unwrapped speech balloon shortcodes.
// Pure validation: the content is never modified.
func ValidateContent(content string) ValidationResult {
	var issues []string

	if mdHeadingRe.MatchString(content) {
		issues = append(issues, "markdown heading syntax detected")
	}
	if mdBoldRe.MatchString(content) {
		issues = append(issues, "markdown bold syntax detected")
	}
	if mdListRe.MatchString(content) {
		issues = append(issues, "markdown list syntax detected")
	}
	if !strings.Contains(content, "<!-- wp:") {
		issues = append(issues, "no WordPress block markup found")
	}
	for _, loc := range speechBalloonRe.FindAllStringIndex(content, -1) {
		wrapped := strings.HasSuffix(content[:loc[0]], wpHTMLOpen) &&
			strings.HasPrefix(content[loc[1]:], wpHTMLClose)
		if !wrapped {
			issues = append(issues, "speech balloon shortcode not wrapped in wp:html block")
			break
		}
	}

	return ValidationResult{IsValid: len(issues) == 0, Issues: issues}
}
