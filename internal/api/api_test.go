package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/ctxvault/internal/models"
	"github.com/starford/ctxvault/internal/testutil"
)

// testEnv sets up a temp vault, SQLite DB, service, and router for testing.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string) (*testutil.Vault, http.Handler) {
	t.Helper()
	return testEnvWithSSE(t, authToken != "", authToken, nil)
}

func testEnvWithSSE(t *testing.T, authEnabled bool, token string, sseHandler http.Handler) (*testutil.Vault, http.Handler) {
	t.Helper()
	v := testutil.TestVault(t)
	return v, NewRouter(v.Service, authEnabled, token, sseHandler)
}

func do(t *testing.T, router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, rd)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func createRetryBackoff(t *testing.T, router http.Handler) KnowledgeDetail {
	t.Helper()
	w := do(t, router, http.MethodPost, "/knowledge", CreateKnowledgeRequest{
		Title:    "Retry Backoff",
		Content:  "# Notes\nUse exponential backoff.\nSee error handling.",
		Category: "tech_notes",
		Tags:     []string{"go"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var got KnowledgeDetail
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	return got
}

func TestCreateAndGetKnowledge(t *testing.T) {
	_, router := testEnv(t, "")

	created := createRetryBackoff(t, router)
	if !strings.HasPrefix(created.ID, "tech_notes-") {
		t.Errorf("id = %q", created.ID)
	}
	if created.IndexError != "" {
		t.Errorf("unexpected index error: %s", created.IndexError)
	}

	w := do(t, router, http.MethodGet, "/knowledge/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var got KnowledgeDetail
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got.Title != "Retry Backoff" {
		t.Errorf("title = %q", got.Title)
	}
	if got.Confidence != models.ConfidenceMedium {
		t.Errorf("confidence = %q", got.Confidence)
	}
	if !strings.Contains(got.Content, "exponential backoff") {
		t.Errorf("content = %q", got.Content)
	}
}

func TestCreateKnowledge_Validation(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/knowledge", CreateKnowledgeRequest{Title: "x", Category: "recipes"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown category = %d, want 400", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/knowledge", strings.NewReader("{not json"))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed body = %d, want 400", w.Code)
	}
}

func TestGetKnowledge_NotFound(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodGet, "/knowledge/tech_notes-2025-01-01-deadbeef", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing item = %d, want 404", w.Code)
	}
}

func TestListKnowledge(t *testing.T) {
	_, router := testEnv(t, "")
	createRetryBackoff(t, router)
	w := do(t, router, http.MethodPost, "/knowledge", CreateKnowledgeRequest{Title: "Idea", Category: "thinking"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d", w.Code)
	}

	w = do(t, router, http.MethodGet, "/knowledge?limit=10", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var resp KnowledgeListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 2 {
		t.Errorf("total = %d, want 2", resp.Total)
	}

	w = do(t, router, http.MethodGet, "/knowledge?category=thinking", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 1 || resp.Items[0].Category != models.CategoryThinking {
		t.Errorf("category filter returned %+v", resp.Items)
	}

	w = do(t, router, http.MethodGet, "/knowledge?category=recipes", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown category = %d, want 400", w.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	created := createRetryBackoff(t, router)

	w := do(t, router, http.MethodGet, "/search?q=BACKOFF&category=tech_notes", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d", w.Code)
	}
	var resp SearchResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Results) != 1 || resp.Results[0].ID != created.ID {
		t.Errorf("results = %+v", resp.Results)
	}

	w = do(t, router, http.MethodGet, "/search?q=backoff&category=thinking", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Results) != 0 {
		t.Errorf("other category should not match: %+v", resp.Results)
	}

	w = do(t, router, http.MethodGet, "/search?category=bogus", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad category = %d, want 400", w.Code)
	}
}

func TestFullTextSearchEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	created := createRetryBackoff(t, router)

	w := do(t, router, http.MethodGet, "/search/fts?q=exponential", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("fts = %d", w.Code)
	}
	var resp FullTextResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Results) != 1 || resp.Results[0].ID != created.ID {
		t.Errorf("GET results = %+v", resp.Results)
	}

	w = do(t, router, http.MethodPost, "/search/fts", FullTextRequest{Query: "exponential", Limit: 5})
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Results) != 1 {
		t.Errorf("POST results = %+v", resp.Results)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodGet, "/search/fts", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing query = %d, want 400", w.Code)
	}
}

func TestSessionsSaveListGet(t *testing.T) {
	_, router := testEnv(t, "")
	at := time.Date(2025, 1, 15, 10, 0, 0, 0, time.Local)
	sess := testutil.Session(at, "claude", 4)

	w := do(t, router, http.MethodPost, "/sessions", sess)
	if w.Code != http.StatusCreated {
		t.Fatalf("save = %d, body = %s", w.Code, w.Body.String())
	}
	var saved SessionSaveResponse
	_ = json.Unmarshal(w.Body.Bytes(), &saved)
	if saved.SessionID != sess.SessionID || !strings.HasSuffix(saved.Path, ".json") {
		t.Errorf("saved = %+v", saved)
	}

	w = do(t, router, http.MethodGet, "/sessions?model=claude", nil)
	var list SessionListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if list.Total != 1 {
		t.Errorf("total = %d", list.Total)
	}
	w = do(t, router, http.MethodGet, "/sessions?model=gemini", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if list.Total != 0 {
		t.Errorf("model filter total = %d", list.Total)
	}
	w = do(t, router, http.MethodGet, "/sessions?source=index", nil)
	list = SessionListResponse{}
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if list.Total != 1 || list.Sessions[0].SessionID != sess.SessionID {
		t.Errorf("indexed listing = %+v", list)
	}

	w = do(t, router, http.MethodGet, "/sessions/"+sess.SessionID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get = %d", w.Code)
	}
	var got models.Session
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if len(got.Messages) != 4 || got.Messages[3].Content != "message 3" {
		t.Errorf("messages = %+v", got.Messages)
	}
}

func TestSaveSession_InvalidID(t *testing.T) {
	_, router := testEnv(t, "")
	sess := testutil.Session(time.Now(), "claude", 1)
	sess.SessionID = "../escape"
	w := do(t, router, http.MethodPost, "/sessions", sess)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid id = %d, want 400", w.Code)
	}
}

func TestGetSession_NotFound(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodGet, "/sessions/2025-01-01T00-00-00-claude", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing session = %d, want 404", w.Code)
	}
}

func TestPromoteCandidate(t *testing.T) {
	v, router := testEnv(t, "")
	at := time.Date(2025, 2, 1, 9, 0, 0, 0, time.Local)
	sess := testutil.Session(at, "gemini", 2)
	sess.Summaries.KnowledgeCandidates = []models.KnowledgeCandidate{
		{Type: models.CategoryThinking, Title: "Small PRs", Content: "Keep PRs small.", Confidence: models.ConfidenceHigh},
	}
	if _, err := v.Service.SaveSession(context.Background(), sess); err != nil {
		t.Fatal(err)
	}

	w := do(t, router, http.MethodPost, "/sessions/"+sess.SessionID+"/promote",
		PromoteRequest{Index: 0, Category: "tech_notes"})
	if w.Code != http.StatusCreated {
		t.Fatalf("promote = %d, body = %s", w.Code, w.Body.String())
	}
	var got KnowledgeDetail
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got.Category != models.CategoryTechNotes {
		t.Errorf("category = %q", got.Category)
	}
	if len(got.SourceSessions) != 1 || got.SourceSessions[0] != sess.SessionID {
		t.Errorf("source_sessions = %v", got.SourceSessions)
	}

	w = do(t, router, http.MethodPost, "/sessions/"+sess.SessionID+"/promote", PromoteRequest{Index: 5})
	if w.Code != http.StatusNotFound {
		t.Errorf("out of range = %d, want 404", w.Code)
	}
}

func TestStatsAndReindex(t *testing.T) {
	v, router := testEnv(t, "")
	createRetryBackoff(t, router)
	if err := v.DB.Reset(context.Background()); err != nil {
		t.Fatal(err)
	}

	w := do(t, router, http.MethodPost, "/reindex?full=true", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reindex = %d", w.Code)
	}

	w = do(t, router, http.MethodGet, "/stats", nil)
	var st models.Stats
	_ = json.Unmarshal(w.Body.Bytes(), &st)
	if st.KnowledgeItems != 1 || st.ByCategory["tech_notes"] != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestSkillsEndpoints(t *testing.T) {
	v, router := testEnv(t, "")
	manifest := "---\nskill_id: \"summarize\"\nname: \"Summarize\"\n---\n\n# Summarize sessions\n"
	path := filepath.Join(v.Skills.Root(), "summarize", "SKILL.md")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}

	w := do(t, router, http.MethodGet, "/skills", nil)
	var list SkillListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if len(list.Skills) != 1 || list.Skills[0].Name != "Summarize" {
		t.Errorf("skills = %+v", list.Skills)
	}

	w = do(t, router, http.MethodPost, "/skills/summarize/validate", nil)
	var res models.SkillValidation
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if !res.Valid || len(res.Warnings) != 1 {
		t.Errorf("validation = %+v", res)
	}

	w = do(t, router, http.MethodGet, "/skills/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing skill = %d, want 404", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/knowledge", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid token = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/knowledge", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("missing token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/knowledge", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_QueryToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/stats?access_token=secret123", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("query token on GET = %d, want 200", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/reindex?access_token=secret123", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("query token on POST = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	_, router := testEnv(t, "")

	req := httptest.NewRequest(http.MethodGet, "/knowledge", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("disabled auth = %d, want 200", w.Code)
	}
}

// blockingSSE writes headers and blocks until the request context is done.
var blockingSSE = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	_, router := testEnvWithSSE(t, true, "tok", blockingSSE)

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE without token = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	_, router := testEnvWithSSE(t, true, "tok", blockingSSE)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}

// Session import tests.

func uploadSession(t *testing.T, router http.Handler, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = io.Copy(part, bytes.NewReader(content))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/sessions/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestImportSession(t *testing.T) {
	v, router := testEnv(t, "")
	raw := `{
  "session_id": "2025-03-04T05-06-07-claude",
  "created_at": "2025-03-04T05:06:07",
  "model_source": "claude",
  "messages": [{"role": "user", "content": "hi", "timestamp": "2025-03-04T05:06:07"}]
}`
	w := uploadSession(t, router, "export.json", []byte(raw))
	if w.Code != http.StatusCreated {
		t.Fatalf("import = %d, body = %s", w.Code, w.Body.String())
	}

	got, err := v.Sessions.Load(context.Background(), "2025-03-04T05-06-07-claude")
	if err != nil || got == nil {
		t.Fatalf("Load = %v, %v", got, err)
	}
	if got.EntryPoint != models.EntryPointImport {
		t.Errorf("entry_point = %q, want import", got.EntryPoint)
	}
}

func TestImportSession_Rejects(t *testing.T) {
	_, router := testEnv(t, "")

	if w := uploadSession(t, router, "notes.txt", []byte("{}")); w.Code != http.StatusBadRequest {
		t.Errorf("non-json name = %d, want 400", w.Code)
	}
	if w := uploadSession(t, router, "bad.json", []byte("{oops")); w.Code != http.StatusBadRequest {
		t.Errorf("malformed json = %d, want 400", w.Code)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("wrong", "data")
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/sessions/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing field = %d, want 400", w.Code)
	}
}
