package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeWordPress is an in-memory stand-in for the WordPress REST API.
type fakeWordPress struct {
	mu         sync.Mutex
	terms      map[string][]Term // taxonomy -> terms
	nextTermID int
	nextPostID int

	postPayloads []map[string]any
	metaPayloads map[int][]map[string]string
	pulled       map[int]Post

	failTermCreate map[string]int // term name -> status code
	termExistsID   map[string]int // term name -> existing id returned as term_exists
	authUsers      []wpUser
}

func newFakeWordPress() *fakeWordPress {
	return &fakeWordPress{
		terms:          map[string][]Term{"categories": nil, "tags": nil},
		nextTermID:     41,
		nextPostID:     100,
		metaPayloads:   map[int][]map[string]string{},
		pulled:         map[int]Post{},
		failTermCreate: map[string]int{},
		termExistsID:   map[string]int{},
		authUsers:      []wpUser{{ID: 3}},
	}
}

func (f *fakeWordPress) createdPosts() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.postPayloads...)
}

func (f *fakeWordPress) termCount(taxonomy string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.terms[taxonomy])
}

func (f *fakeWordPress) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/wp-json")
	switch {
	case path == "" || path == "/":
		json.NewEncoder(w).Encode(map[string]string{"name": "test site"})

	case path == "/wp/v2/posts" && r.Method == http.MethodGet:
		json.NewEncoder(w).Encode([]Post{})

	case path == "/wp/v2/posts" && r.Method == http.MethodPost:
		var payload map[string]any
		json.NewDecoder(r.Body).Decode(&payload)
		f.postPayloads = append(f.postPayloads, payload)
		f.nextPostID++
		json.NewEncoder(w).Encode(Post{ID: f.nextPostID, Link: "https://example.com/?p=" + strconv.Itoa(f.nextPostID)})

	case path == "/wp/v2/categories" || path == "/wp/v2/tags":
		taxonomy := strings.TrimPrefix(path, "/wp/v2/")
		if r.Method == http.MethodGet {
			search := r.URL.Query().Get("search")
			var matched []Term
			for _, term := range f.terms[taxonomy] {
				if strings.Contains(term.Name, search) {
					matched = append(matched, term)
				}
			}
			json.NewEncoder(w).Encode(matched)
			return
		}
		var payload map[string]string
		json.NewDecoder(r.Body).Decode(&payload)
		if code, ok := f.failTermCreate[payload["name"]]; ok {
			w.WriteHeader(code)
			return
		}
		if id, ok := f.termExistsID[payload["name"]]; ok {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]any{
				"code": "term_exists",
				"data": map[string]any{"term_id": id},
			})
			return
		}
		f.nextTermID++
		term := Term{ID: f.nextTermID, Name: payload["name"], Slug: payload["slug"]}
		f.terms[taxonomy] = append(f.terms[taxonomy], term)
		json.NewEncoder(w).Encode(term)

	case path == "/wp/v2/users":
		json.NewEncoder(w).Encode(f.authUsers)

	case strings.HasPrefix(path, "/wp/v2/posts/") && strings.HasSuffix(path, "/meta"):
		idStr := strings.TrimSuffix(strings.TrimPrefix(path, "/wp/v2/posts/"), "/meta")
		id, _ := strconv.Atoi(idStr)
		var payload map[string]string
		json.NewDecoder(r.Body).Decode(&payload)
		f.metaPayloads[id] = append(f.metaPayloads[id], payload)
		json.NewEncoder(w).Encode(map[string]bool{"success": true})

	case strings.HasPrefix(path, "/wp/v2/posts/"):
		id, _ := strconv.Atoi(strings.TrimPrefix(path, "/wp/v2/posts/"))
		switch r.Method {
		case http.MethodGet:
			post, ok := f.pulled[id]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				json.NewEncoder(w).Encode(map[string]string{"code": "rest_post_invalid_id"})
				return
			}
			json.NewEncoder(w).Encode(post)
		default:
			json.NewEncoder(w).Encode(Post{ID: id})
		}

	default:
		http.NotFound(w, r)
	}
}

func newTestWPClient(t *testing.T, handler http.Handler) *WordPressClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return &WordPressClient{
		apiURL:      server.URL + "/wp-json/wp/v2",
		siteURL:     server.URL,
		username:    "editor",
		appPassword: "xxxx xxxx xxxx xxxx",
		authorName:  "ゆーた",
		recordDir:   t.TempDir(),
		client:      server.Client(),
		retry:       fastRetryConfig(2),
	}
}

func testDraft() *ArticleDraft {
	return &ArticleDraft{
		Title:           "freee会計の使い方",
		Content:         "<!-- wp:paragraph --><p>本文</p><!-- /wp:paragraph -->",
		Slug:            "freee",
		MetaDescription: "freeeの使い方を解説します。",
		Categories:      []string{"C1"},
		Tags:            []string{"Tag1"},
		FocusKeyword:    "freee",
		Status:          "draft",
	}
}

func TestPublishArticleEndToEnd(t *testing.T) {
	fake := newFakeWordPress()
	client := newTestWPClient(t, fake)
	ctx := context.Background()

	if !client.TestConnection(ctx) {
		t.Fatal("TestConnection failed against fake server")
	}

	result, err := client.PublishArticle(ctx, testDraft())
	if err != nil {
		t.Fatalf("PublishArticle() error: %v", err)
	}

	if result.WordPressID != 101 {
		t.Errorf("WordPressID = %d, want 101", result.WordPressID)
	}
	if !strings.Contains(result.DraftURL, "post=101") || !strings.Contains(result.DraftURL, "wp-admin") {
		t.Errorf("DraftURL = %q", result.DraftURL)
	}
	if result.Title != "freee会計の使い方" {
		t.Errorf("Title = %q", result.Title)
	}

	// The created terms must be referenced by the post payload.
	posts := fake.createdPosts()
	if len(posts) != 1 {
		t.Fatalf("got %d posts, want 1", len(posts))
	}
	payload := posts[0]
	cats, _ := payload["categories"].([]any)
	if len(cats) != 1 || cats[0].(float64) != 42 {
		t.Errorf("categories = %v, want [42]", payload["categories"])
	}
	tags, _ := payload["tags"].([]any)
	if len(tags) != 1 || tags[0].(float64) != 43 {
		t.Errorf("tags = %v, want [43]", payload["tags"])
	}
	if payload["author"].(float64) != 3 {
		t.Errorf("author = %v, want 3", payload["author"])
	}
	if payload["status"] != "draft" {
		t.Errorf("status = %v, want draft", payload["status"])
	}

	// Yoast meta fields attached after creation.
	if len(fake.metaPayloads[101]) < 7 {
		t.Errorf("got %d meta calls, want at least 7", len(fake.metaPayloads[101]))
	}

	// A publish record file is written.
	entries, err := os.ReadDir(client.recordDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d record files, want 1", len(entries))
	}
	data, err := os.ReadFile(filepath.Join(client.recordDir, entries[0].Name()))
	if err != nil {
		t.Fatal(err)
	}
	var record PublishResult
	if err := json.Unmarshal(data, &record); err != nil {
		t.Fatalf("record is not valid JSON: %v", err)
	}
	if record.WordPressID != 101 {
		t.Errorf("record WordPressID = %d", record.WordPressID)
	}
}

func TestPublishArticleRequiresConnection(t *testing.T) {
	fake := newFakeWordPress()
	client := newTestWPClient(t, fake)

	_, err := client.PublishArticle(context.Background(), testDraft())
	if err == nil {
		t.Fatal("expected error without prior TestConnection")
	}
	if len(fake.createdPosts()) != 0 {
		t.Error("post was created despite failed connection gate")
	}
}

func TestTestConnectionFailure(t *testing.T) {
	client := newTestWPClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	if client.TestConnection(context.Background()) {
		t.Error("TestConnection succeeded against 401 server")
	}
	if client.isConnected() {
		t.Error("client marked connected after failed test")
	}
}

func TestEnsureTermsIdempotent(t *testing.T) {
	fake := newFakeWordPress()
	client := newTestWPClient(t, fake)
	ctx := context.Background()

	first := client.EnsureCategories(ctx, []string{"IT導入補助金", "会計ソフト"})
	second := client.EnsureCategories(ctx, []string{"IT導入補助金", "会計ソフト"})

	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("got %d and %d ids, want 2 and 2", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("ids differ between runs: %v vs %v", first, second)
		}
	}
	if n := fake.termCount("categories"); n != 2 {
		t.Errorf("server holds %d categories, want 2", n)
	}
}

func TestEnsureTermsSkipsFailures(t *testing.T) {
	fake := newFakeWordPress()
	fake.failTermCreate["壊れたタグ"] = http.StatusInternalServerError
	client := newTestWPClient(t, fake)

	ids := client.EnsureTags(context.Background(), []string{"正常タグ", "壊れたタグ", "もう一つ"})
	if len(ids) != 2 {
		t.Errorf("got %d ids, want 2 (failure skipped): %v", len(ids), ids)
	}
}

func TestEnsureTermRecoversFromTermExists(t *testing.T) {
	fake := newFakeWordPress()
	fake.termExistsID["既存タグ"] = 55
	client := newTestWPClient(t, fake)

	ids := client.EnsureTags(context.Background(), []string{"既存タグ"})
	if len(ids) != 1 || ids[0] != 55 {
		t.Errorf("ids = %v, want [55]", ids)
	}
}

func TestLookupAuthor(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		fake := newFakeWordPress()
		client := newTestWPClient(t, fake)
		if id := client.LookupAuthor(context.Background(), "ゆーた"); id != 3 {
			t.Errorf("LookupAuthor() = %d, want 3", id)
		}
	})

	t.Run("not found defaults to 1", func(t *testing.T) {
		fake := newFakeWordPress()
		fake.authUsers = nil
		client := newTestWPClient(t, fake)
		if id := client.LookupAuthor(context.Background(), "居ない人"); id != 1 {
			t.Errorf("LookupAuthor() = %d, want 1", id)
		}
	})

	t.Run("error defaults to 1", func(t *testing.T) {
		client := newTestWPClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		if id := client.LookupAuthor(context.Background(), "ゆーた"); id != 1 {
			t.Errorf("LookupAuthor() = %d, want 1", id)
		}
	})
}

func TestCreatePostDefaultsStatusToDraft(t *testing.T) {
	fake := newFakeWordPress()
	client := newTestWPClient(t, fake)

	draft := testDraft()
	draft.Status = ""
	if _, err := client.CreatePost(context.Background(), draft, nil, nil, 1); err != nil {
		t.Fatal(err)
	}
	if status := fake.createdPosts()[0]["status"]; status != "draft" {
		t.Errorf("status = %v, want draft", status)
	}
}

func TestPullPost(t *testing.T) {
	fake := newFakeWordPress()
	fake.pulled[9] = Post{
		ID:      9,
		Title:   rendered{Rendered: "確定申告ガイド"},
		Content: rendered{Rendered: "<h2>提出書類</h2><p>必要な書類を揃えます。</p>"},
	}
	client := newTestWPClient(t, fake)

	title, markdown, err := client.PullPost(context.Background(), 9)
	if err != nil {
		t.Fatalf("PullPost() error: %v", err)
	}
	if title != "確定申告ガイド" {
		t.Errorf("title = %q", title)
	}
	if !strings.Contains(markdown, "提出書類") || !strings.Contains(markdown, "必要な書類を揃えます。") {
		t.Errorf("markdown = %q", markdown)
	}
	if strings.Contains(markdown, "<h2>") {
		t.Errorf("markdown still contains HTML: %q", markdown)
	}
}

func TestPullPostMissing(t *testing.T) {
	fake := newFakeWordPress()
	client := newTestWPClient(t, fake)

	_, _, err := client.PullPost(context.Background(), 404)
	if err == nil {
		t.Fatal("expected error for missing post")
	}
	if ErrKindOf(err) != KindValidation {
		t.Errorf("ErrKindOf = %v, want %v", ErrKindOf(err), KindValidation)
	}
}

func TestSlugifyTerm(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"IT導入補助金", "it導入補助金"},
		{"Cloud Accounting", "cloud-accounting"},
		{"  経理 / 効率化  ", "経理-効率化"},
		{"--taxes--", "taxes"},
	}

	for _, tt := range tests {
		if got := slugifyTerm(tt.input); got != tt.expected {
			t.Errorf("slugifyTerm(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestSavePublishRecordDisabled(t *testing.T) {
	client := &WordPressClient{recordDir: ""}
	err := client.savePublishRecord(&PublishResult{WordPressID: 1, SavedAt: time.Now()})
	if err != nil {
		t.Errorf("savePublishRecord() with empty dir should be a no-op, got %v", err)
	}
}
