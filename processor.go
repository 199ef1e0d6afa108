package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Pipeline wires the brief parser, the article generator and the publishing
// client into the full-automation flow.
type Pipeline struct {
	cfg       *Config
	generator *ArticleGenerator
	wp        *WordPressClient
}

// NewPipeline builds the pipeline from loaded configuration. The generator
// is only constructed when an OpenAI key is present; publish-only commands
// work without one.
func NewPipeline(cfg *Config) (*Pipeline, error) {
	p := &Pipeline{
		cfg: cfg,
		wp:  NewWordPressClient(cfg),
	}

	if cfg.OpenAIKey != "" {
		templates, err := cfg.PromptTemplates()
		if err != nil {
			return nil, err
		}
		prompts, err := NewPromptBuilder(templates)
		if err != nil {
			return nil, err
		}
		chat := NewChatClient(cfg.OpenAIKey, os.Getenv("OPENAI_BASE_URL"))
		p.generator = NewArticleGenerator(chat, prompts, cfg.Settings)
	}

	return p, nil
}

func (p *Pipeline) requireGenerator() error {
	if p.generator == nil {
		return fmt.Errorf("OPENAI_API_KEY required for content generation")
	}
	return nil
}

// Run executes the full automation: parse every pending brief, generate,
// and publish sequentially with the configured interval between posts.
func (p *Pipeline) Run(ctx context.Context) ([]ProcessingResult, error) {
	if err := p.requireGenerator(); err != nil {
		return nil, err
	}

	briefs, err := ListBriefFiles(p.cfg.Settings.InputDirectory)
	if err != nil {
		return nil, err
	}
	if len(briefs) == 0 {
		log.Printf("no research briefs found in %s", p.cfg.Settings.InputDirectory)
		return nil, nil
	}

	// Fail fast before any write: a batch must not partially publish and
	// then die on auth.
	if !p.cfg.DryRun && !p.wp.TestConnection(ctx) {
		return nil, fmt.Errorf("WordPress connection test failed")
	}

	log.Printf("Processing %d briefs...", len(briefs))
	results := make([]ProcessingResult, 0, len(briefs))
	for i, brief := range briefs {
		log.Printf("[%d/%d] %s", i+1, len(briefs), filepath.Base(brief))
		result := p.ProcessBrief(ctx, brief)
		results = append(results, result)

		switch result.Status {
		case StatusSuccess:
			log.Printf("✓ %s (post id %d)", filepath.Base(brief), result.PostID)
		case StatusSkipped:
			log.Printf("✓ %s (dry run, not published)", filepath.Base(brief))
		default:
			log.Printf("✗ %s: %v", filepath.Base(brief), result.Error)
		}

		if i < len(briefs)-1 {
			if err := p.waitInterval(ctx); err != nil {
				return results, err
			}
		}
	}
	return results, nil
}

// ProcessBrief runs one brief through parse, generate and publish.
func (p *Pipeline) ProcessBrief(ctx context.Context, path string) ProcessingResult {
	name := filepath.Base(path)

	brief, err := ParseResearchBrief(path)
	if err != nil {
		return ProcessingResult{BriefFile: name, Status: StatusError, Error: err}
	}

	article, err := p.generator.Generate(ctx, brief)
	if err != nil {
		return ProcessingResult{BriefFile: name, Status: StatusError, Error: fmt.Errorf("generating article: %w", err)}
	}

	if err := p.SaveDraft(article); err != nil {
		log.Printf("✗ draft not saved locally: %v", err)
	}

	if p.cfg.DryRun {
		return ProcessingResult{BriefFile: name, Status: StatusSkipped}
	}

	draft := p.BuildDraft(article)
	result, err := p.wp.PublishArticle(ctx, draft)
	if err != nil {
		return ProcessingResult{BriefFile: name, Status: StatusError, Error: fmt.Errorf("publishing: %w", err)}
	}
	return ProcessingResult{BriefFile: name, Status: StatusSuccess, PostID: result.WordPressID}
}

// BuildDraft converts a generated article into the publish unit.
func (p *Pipeline) BuildDraft(article *GeneratedArticle) *ArticleDraft {
	tags := append([]string{}, p.cfg.Settings.DefaultTags...)
	if article.MainKeyword != "" {
		tags = append(tags, article.MainKeyword)
	}

	return &ArticleDraft{
		Title:           article.Title,
		Content:         article.Content,
		Slug:            article.Slug,
		MetaDescription: article.MetaDescription,
		Categories:      p.cfg.Settings.DefaultCategories,
		Tags:            tags,
		FocusKeyword:    article.MainKeyword,
		Schema:          article.Schema,
		Status:          p.cfg.Settings.DefaultStatus,
	}
}

// SaveDraft writes the generated article to the output directory as a
// write-once audit artifact.
func (p *Pipeline) SaveDraft(article *GeneratedArticle) error {
	dir := p.cfg.Settings.OutputDirectory
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	name := fmt.Sprintf("%s_%s_content.json", article.Slug, time.Now().Format("20060102_150405"))
	data, err := json.MarshalIndent(article, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, name), data, 0o644)
}

// PublishGenerated publishes previously generated article files. With no
// explicit paths it picks up every *_content.json in the output directory.
func (p *Pipeline) PublishGenerated(ctx context.Context, paths []string) ([]ProcessingResult, error) {
	if len(paths) == 0 {
		var err error
		paths, err = filepath.Glob(filepath.Join(p.cfg.Settings.OutputDirectory, "*_content.json"))
		if err != nil {
			return nil, err
		}
	}
	if len(paths) == 0 {
		log.Printf("no generated articles to publish")
		return nil, nil
	}

	if !p.wp.TestConnection(ctx) {
		return nil, fmt.Errorf("WordPress connection test failed")
	}

	results := make([]ProcessingResult, 0, len(paths))
	for i, path := range paths {
		name := filepath.Base(path)

		data, err := os.ReadFile(path)
		if err != nil {
			results = append(results, ProcessingResult{BriefFile: name, Status: StatusError, Error: err})
			continue
		}
		var article GeneratedArticle
		if err := json.Unmarshal(data, &article); err != nil {
			results = append(results, ProcessingResult{BriefFile: name, Status: StatusError, Error: fmt.Errorf("parsing %s: %w", name, err)})
			continue
		}

		result, err := p.wp.PublishArticle(ctx, p.BuildDraft(&article))
		if err != nil {
			results = append(results, ProcessingResult{BriefFile: name, Status: StatusError, Error: err})
		} else {
			results = append(results, ProcessingResult{BriefFile: name, Status: StatusSuccess, PostID: result.WordPressID})
		}

		if i < len(paths)-1 {
			if err := p.waitInterval(ctx); err != nil {
				return results, err
			}
		}
	}
	return results, nil
}

var mdTitleRe = regexp.MustCompile(`(?m)^# (.+)$`)

// UploadMarkdown publishes local markdown drafts: each file is converted to
// block markup and created as a WordPress draft.
func (p *Pipeline) UploadMarkdown(ctx context.Context, dir string) ([]ProcessingResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading markdown directory %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".md" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		log.Printf("no markdown files found in %s", dir)
		return nil, nil
	}

	if !p.wp.TestConnection(ctx) {
		return nil, fmt.Errorf("WordPress connection test failed")
	}

	results := make([]ProcessingResult, 0, len(files))
	for i, path := range files {
		name := filepath.Base(path)
		result, err := p.uploadMarkdownFile(ctx, path)
		if err != nil {
			results = append(results, ProcessingResult{BriefFile: name, Status: StatusError, Error: err})
			log.Printf("✗ %s: %v", name, err)
		} else {
			results = append(results, ProcessingResult{BriefFile: name, Status: StatusSuccess, PostID: result.WordPressID})
			log.Printf("✓ %s (post id %d)", name, result.WordPressID)
		}

		if i < len(files)-1 {
			if err := p.waitInterval(ctx); err != nil {
				return results, err
			}
		}
	}
	return results, nil
}

func (p *Pipeline) uploadMarkdownFile(ctx context.Context, path string) (*PublishResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	body := string(data)

	title := strings.TrimSuffix(filepath.Base(path), ".md")
	if m := mdTitleRe.FindStringSubmatch(body); m != nil {
		title = strings.TrimSpace(m[1])
		body = strings.Replace(body, m[0], "", 1)
	}

	content := FixSpeechBalloons(ConvertMarkdownToWordPress(body))
	if result := ValidateContent(content); !result.IsValid {
		debugLog("markdown upload lint issues for %s: %s", path, strings.Join(result.Issues, "; "))
	}

	draft := &ArticleDraft{
		Title:           title,
		Content:         content,
		Slug:            slugifyTerm(title),
		MetaDescription: GenerateMetaDescription(content, title),
		Categories:      p.cfg.Settings.DefaultCategories,
		Tags:            p.cfg.Settings.DefaultTags,
		Status:          "draft",
	}
	return p.wp.PublishArticle(ctx, draft)
}

// waitInterval pauses between posts to respect the remote API's rate limit.
func (p *Pipeline) waitInterval(ctx context.Context) error {
	d := time.Duration(p.cfg.Settings.PostIntervalSeconds) * time.Second
	if p.cfg.DryRun || d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
