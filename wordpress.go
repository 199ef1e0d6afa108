package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
)

// WordPressClient wraps the WordPress REST API (Basic Auth with an
// application password). Write operations require a successful
// TestConnection first, so batch runs fail fast instead of partially
// publishing and then erroring on auth.
type WordPressClient struct {
	apiURL      string // {site}/wp-json/wp/v2
	siteURL     string
	username    string
	appPassword string
	authorName  string
	recordDir   string
	client      *http.Client
	retry       RetryConfig

	mu        sync.Mutex
	connected bool

	// Serializes search-then-create term resolution within this process.
	// The REST API enforces no uniqueness visible to the client, so this
	// is the strongest guard available against duplicate terms.
	termMu sync.Mutex
}

// Term is a WordPress category or tag.
type Term struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Post is the subset of a post response the client consumes.
type Post struct {
	ID      int      `json:"id"`
	Link    string   `json:"link"`
	Title   rendered `json:"title"`
	Content rendered `json:"content"`
}

type rendered struct {
	Rendered string `json:"rendered"`
}

type wpUser struct {
	ID int `json:"id"`
}

// wpErrorBody is the JSON error envelope the REST API returns.
type wpErrorBody struct {
	Code string `json:"code"`
	Data struct {
		TermID int `json:"term_id"`
	} `json:"data"`
}

// SEOMeta carries the Yoast fields attached after post creation.
type SEOMeta struct {
	Title           string
	MetaDescription string
	FocusKeyword    string
}

// NewWordPressClient builds a client from the loaded configuration.
func NewWordPressClient(cfg *Config) *WordPressClient {
	return &WordPressClient{
		apiURL:      strings.TrimSuffix(cfg.WordPressAPIURL, "/"),
		siteURL:     strings.TrimSuffix(cfg.SiteURL, "/"),
		username:    cfg.WordPressUser,
		appPassword: cfg.WordPressAppPassword,
		authorName:  cfg.Settings.AuthorName,
		recordDir:   cfg.Settings.RecordDirectory,
		client:      &http.Client{Timeout: 30 * time.Second},
		retry:       DefaultRetryConfig(),
	}
}

// doJSON performs one authenticated API call with bounded retry, decoding
// the response into out when out is non-nil.
func (c *WordPressClient) doJSON(ctx context.Context, method, path string, query url.Values, payload, out any) error {
	var bodyJSON []byte
	if payload != nil {
		var err error
		bodyJSON, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
	}

	requestURL := c.apiURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	buildReq := func(ctx context.Context) (*http.Request, error) {
		var body *bytes.Reader
		if bodyJSON != nil {
			body = bytes.NewReader(bodyJSON)
		} else {
			body = bytes.NewReader(nil)
		}
		req, err := http.NewRequestWithContext(ctx, method, requestURL, body)
		if err != nil {
			return nil, err
		}
		req.SetBasicAuth(c.username, c.appPassword)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}

	body, err := doWithRetry(ctx, c.client, buildReq, c.retry)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parsing %s %s response: %w", method, path, err)
	}
	return nil
}

// TestConnection confirms the base URL and credentials with two lightweight
// reads (site info plus one post) before any write operation.
func (c *WordPressClient) TestConnection(ctx context.Context) bool {
	log.Printf("→ Testing WordPress connection...")

	siteInfoURL := strings.TrimSuffix(c.apiURL, "/wp/v2")
	buildReq := func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, siteInfoURL, nil)
		if err != nil {
			return nil, err
		}
		req.SetBasicAuth(c.username, c.appPassword)
		return req, nil
	}
	if _, err := doWithRetry(ctx, c.client, buildReq, c.retry); err != nil {
		log.Printf("✗ connection test failed (%s): %v", ErrKindOf(err), err)
		return false
	}

	var posts []Post
	if err := c.doJSON(ctx, http.MethodGet, "/posts", url.Values{"per_page": {"1"}}, nil, &posts); err != nil {
		log.Printf("✗ connection test failed (%s): %v", ErrKindOf(err), err)
		return false
	}

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	log.Printf("✓ WordPress connection OK")
	return true
}

func (c *WordPressClient) isConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// EnsureCategories resolves category names to ids, creating missing terms.
func (c *WordPressClient) EnsureCategories(ctx context.Context, names []string) []int {
	return c.ensureTerms(ctx, "categories", names)
}

// EnsureTags resolves tag names to ids, creating missing terms.
func (c *WordPressClient) EnsureTags(ctx context.Context, names []string) []int {
	return c.ensureTerms(ctx, "tags", names)
}

// ensureTerms resolves each name by searching before creating, so re-running
// with the same names never creates duplicate terms. Individual failures are
// logged and skipped: the returned list may be shorter than names.
func (c *WordPressClient) ensureTerms(ctx context.Context, taxonomy string, names []string) []int {
	c.termMu.Lock()
	defer c.termMu.Unlock()

	var ids []int
	for _, name := range names {
		id, err := c.ensureTerm(ctx, taxonomy, name)
		if err != nil {
			log.Printf("✗ skipping %s %q: %v", taxonomy, name, err)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func (c *WordPressClient) ensureTerm(ctx context.Context, taxonomy, name string) (int, error) {
	var existing []Term
	if err := c.doJSON(ctx, http.MethodGet, "/"+taxonomy, url.Values{"search": {name}}, nil, &existing); err != nil {
		return 0, fmt.Errorf("searching %s: %w", taxonomy, err)
	}
	if len(existing) > 0 {
		log.Printf("✓ reusing %s %q (id %d)", taxonomy, name, existing[0].ID)
		return existing[0].ID, nil
	}

	var created Term
	payload := map[string]string{"name": name, "slug": slugifyTerm(name)}
	err := c.doJSON(ctx, http.MethodPost, "/"+taxonomy, nil, payload, &created)
	if err != nil {
		// A concurrent writer may have created the term between our
		// search and create; WordPress reports this as term_exists
		// together with the existing id.
		if id, ok := termExistsID(err); ok {
			log.Printf("✓ %s %q already created elsewhere (id %d)", taxonomy, name, id)
			return id, nil
		}
		return 0, fmt.Errorf("creating %s: %w", taxonomy, err)
	}
	log.Printf("✓ created %s %q (id %d)", taxonomy, name, created.ID)
	return created.ID, nil
}

func termExistsID(err error) (int, bool) {
	var herr *HTTPError
	if !errors.As(err, &herr) {
		return 0, false
	}
	var body wpErrorBody
	if json.Unmarshal(herr.Body, &body) != nil {
		return 0, false
	}
	if body.Code == "term_exists" && body.Data.TermID > 0 {
		return body.Data.TermID, true
	}
	return 0, false
}

var slugCleanRe = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// slugifyTerm builds a slug from a term name, keeping CJK characters intact
// (WordPress percent-encodes them itself).
func slugifyTerm(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = slugCleanRe.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}

// LookupAuthor resolves an author name to a user id, defaulting to 1.
func (c *WordPressClient) LookupAuthor(ctx context.Context, name string) int {
	var users []wpUser
	if err := c.doJSON(ctx, http.MethodGet, "/users", url.Values{"search": {name}}, nil, &users); err != nil {
		log.Printf("✗ author lookup failed, using default author: %v", err)
		return 1
	}
	if len(users) == 0 {
		return 1
	}
	return users[0].ID
}

// CreatePost creates the post with content, taxonomy ids and Yoast meta in
// one call.
func (c *WordPressClient) CreatePost(ctx context.Context, draft *ArticleDraft, categoryIDs, tagIDs []int, authorID int) (*Post, error) {
	status := draft.Status
	if status == "" {
		status = "draft"
	}

	payload := map[string]any{
		"title":      draft.Title,
		"content":    draft.Content,
		"slug":       draft.Slug,
		"status":     status,
		"categories": categoryIDs,
		"tags":       tagIDs,
		"author":     authorID,
		"excerpt":    draft.MetaDescription,
		"meta": map[string]string{
			"_yoast_wpseo_metadesc": draft.MetaDescription,
			"_yoast_wpseo_focuskw":  draft.FocusKeyword,
			"_yoast_wpseo_title":    draft.Title,
		},
	}

	var post Post
	if err := c.doJSON(ctx, http.MethodPost, "/posts", nil, payload, &post); err != nil {
		return nil, fmt.Errorf("creating post %q: %w", draft.Title, err)
	}
	log.Printf("✓ post created: id %d", post.ID)
	return &post, nil
}

// UpdatePost updates arbitrary post fields.
func (c *WordPressClient) UpdatePost(ctx context.Context, postID int, fields map[string]any) error {
	if err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/posts/%d", postID), nil, fields, nil); err != nil {
		return fmt.Errorf("updating post %d: %w", postID, err)
	}
	return nil
}

// PublishDraft flips a draft post to publish.
func (c *WordPressClient) PublishDraft(ctx context.Context, postID int) error {
	return c.UpdatePost(ctx, postID, map[string]any{"status": "publish"})
}

// DeletePost removes a post permanently (bypassing trash).
func (c *WordPressClient) DeletePost(ctx context.Context, postID int) error {
	if err := c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/posts/%d", postID), url.Values{"force": {"true"}}, nil, nil); err != nil {
		return fmt.Errorf("deleting post %d: %w", postID, err)
	}
	return nil
}

// updatePostMeta sets one custom field on a post.
func (c *WordPressClient) updatePostMeta(ctx context.Context, postID int, key, value string) error {
	payload := map[string]string{"meta_key": key, "meta_value": value}
	return c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/posts/%d/meta", postID), nil, payload, nil)
}

// AddSchemaMarkup attaches a JSON-LD script block as a custom field.
// Best-effort: a post without schema is still a valid result.
func (c *WordPressClient) AddSchemaMarkup(ctx context.Context, postID int, schemaJSON string) {
	script := fmt.Sprintf("<script type=\"application/ld+json\">\n%s\n</script>", schemaJSON)
	if err := c.updatePostMeta(ctx, postID, "_schema_markup", script); err != nil {
		log.Printf("✗ schema markup attach failed for post %d: %v", postID, err)
		return
	}
	log.Printf("✓ schema markup attached to post %d", postID)
}

// SetYoastMetadata attaches the Yoast SEO custom fields. Best-effort:
// individual field failures are logged, not escalated.
func (c *WordPressClient) SetYoastMetadata(ctx context.Context, postID int, meta SEOMeta) {
	fields := map[string]string{
		"_yoast_wpseo_title":                 meta.Title,
		"_yoast_wpseo_metadesc":              meta.MetaDescription,
		"_yoast_wpseo_focuskw":               meta.FocusKeyword,
		"_yoast_wpseo_meta-robots-noindex":   "0",
		"_yoast_wpseo_meta-robots-nofollow":  "0",
		"_yoast_wpseo_opengraph-title":       meta.Title,
		"_yoast_wpseo_opengraph-description": meta.MetaDescription,
	}
	for key, value := range fields {
		if err := c.updatePostMeta(ctx, postID, key, value); err != nil {
			log.Printf("✗ meta %s failed for post %d: %v", key, postID, err)
		}
	}
}

// PublishArticle is the orchestrating entry point: resolve terms, create the
// post, attach schema and SEO meta, record and return the result. It refuses
// to run before a successful TestConnection.
func (c *WordPressClient) PublishArticle(ctx context.Context, draft *ArticleDraft) (*PublishResult, error) {
	if !c.isConnected() {
		return nil, fmt.Errorf("not connected: run TestConnection before publishing")
	}

	log.Printf("→ Publishing: %s", draft.Title)

	categoryIDs := c.EnsureCategories(ctx, draft.Categories)
	tagIDs := c.EnsureTags(ctx, draft.Tags)
	authorID := c.LookupAuthor(ctx, c.authorName)

	post, err := c.CreatePost(ctx, draft, categoryIDs, tagIDs, authorID)
	if err != nil {
		return nil, err
	}

	if draft.Schema != "" {
		c.AddSchemaMarkup(ctx, post.ID, draft.Schema)
	}
	c.SetYoastMetadata(ctx, post.ID, SEOMeta{
		Title:           draft.Title,
		MetaDescription: draft.MetaDescription,
		FocusKeyword:    draft.FocusKeyword,
	})

	result := &PublishResult{
		WordPressID: post.ID,
		DraftURL:    fmt.Sprintf("%s/wp-admin/post.php?post=%d&action=edit", c.siteURL, post.ID),
		Title:       draft.Title,
		SavedAt:     time.Now(),
	}

	if err := c.savePublishRecord(result); err != nil {
		log.Printf("✗ publish record not saved: %v", err)
	}

	log.Printf("✓ published: %s (id %d)", draft.Title, post.ID)
	return result, nil
}

// savePublishRecord writes the result as a write-once JSON audit file.
func (c *WordPressClient) savePublishRecord(result *PublishResult) error {
	if c.recordDir == "" {
		return nil
	}
	if err := os.MkdirAll(c.recordDir, 0o755); err != nil {
		return err
	}
	name := fmt.Sprintf("post_%d_%s.json", result.WordPressID, result.SavedAt.Format("20060102_150405"))
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.recordDir, name), data, 0o644)
}

// PullPost fetches a post and converts its rendered HTML to Markdown, for
// local revision of already-published articles.
func (c *WordPressClient) PullPost(ctx context.Context, postID int) (title, markdown string, err error) {
	var post Post
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/posts/%d", postID), nil, nil, &post); err != nil {
		return "", "", fmt.Errorf("fetching post %d: %w", postID, err)
	}

	converter := md.NewConverter("", true, nil)
	markdown, err = converter.ConvertString(post.Content.Rendered)
	if err != nil {
		return "", "", fmt.Errorf("converting post %d to markdown: %w", postID, err)
	}
	return post.Title.Rendered, markdown, nil
}
