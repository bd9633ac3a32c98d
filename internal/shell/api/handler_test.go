package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dochero/dochero/internal/core/domain"
	"github.com/dochero/dochero/internal/core/split"
	"github.com/dochero/dochero/internal/shell/mail"
	"github.com/dochero/dochero/internal/shell/processing"
)

// =============================================================================
// Test Helpers
// =============================================================================

var testPDF = []byte("%PDF-1.7\n1 0 obj << /Type /Catalog >> endobj\n%%EOF\n")

// stubDocs implements DocumentProcessor for testing.
type stubDocs struct {
	mu       sync.Mutex
	lastOpts split.Options
	lastFile string
	err      error

	started chan struct{}
	release chan struct{}
}

func (s *stubDocs) Split(ctx context.Context, up processing.Upload, opts split.Options) (*processing.Output, error) {
	s.mu.Lock()
	s.lastOpts = opts
	s.lastFile = up.FileName
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return &processing.Output{FileName: split.ArchiveName, ContentType: processing.ContentTypeZIP, Data: []byte("zip-bytes")}, nil
}

func (s *stubDocs) Rotate(ctx context.Context, up processing.Upload) (*processing.Output, error) {
	if s.started != nil {
		s.started <- struct{}{}
		<-s.release
	}
	if s.err != nil {
		return nil, s.err
	}
	return &processing.Output{FileName: processing.RotatedName, ContentType: processing.ContentTypePDF, Data: up.Data}, nil
}

func (s *stubDocs) Prepare(ctx context.Context, up processing.Upload) (*processing.Output, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &processing.Output{FileName: processing.PreparedName(up.FileName), ContentType: processing.ContentTypePDF, Data: []byte("page1")}, nil
}

// blockingDocs never finishes before the request context ends.
type blockingDocs struct{}

func (blockingDocs) Split(ctx context.Context, _ processing.Upload, _ split.Options) (*processing.Output, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingDocs) Rotate(ctx context.Context, _ processing.Upload) (*processing.Output, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingDocs) Prepare(ctx context.Context, _ processing.Upload) (*processing.Output, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// stubMail implements MailService for testing.
type stubMail struct {
	connectErr  error
	statusErr   error
	settingsErr error
	pollErr     error
	attErr      error

	connected    []string
	settingsArgs struct {
		userID  string
		filter  *string
		tokenID *int64
	}
}

func (s *stubMail) InitiateURL(p domain.Provider, userID string) (string, error) {
	if userID == "" {
		return "", domain.ErrMissingUserID
	}
	return "https://auth.example/" + string(p) + "?state=" + userID, nil
}

func (s *stubMail) Connect(ctx context.Context, p domain.Provider, code, state string) error {
	if s.connectErr != nil {
		return s.connectErr
	}
	s.connected = append(s.connected, string(p)+":"+code+":"+state)
	return nil
}

func (s *stubMail) FrontendRedirect(p domain.Provider, connected bool) string {
	if connected {
		return "http://frontend.test?" + string(p) + "_connected=true"
	}
	return "http://frontend.test?" + string(p) + "_connected=false"
}

func (s *stubMail) Status(ctx context.Context, p domain.Provider, userID string) (*mail.Status, error) {
	if s.statusErr != nil {
		return nil, s.statusErr
	}
	return &mail.Status{
		Connected: true,
		Accounts: []domain.AccountView{
			{ID: 7, Email: p.FallbackEmail(), Status: domain.AccountConnected, ConnectedAt: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), Provider: p},
		},
	}, nil
}

func (s *stubMail) UpdateSettings(ctx context.Context, userID string, filter *string, tokenID *int64) ([]domain.SettingsView, error) {
	if userID == "" {
		return nil, domain.ErrMissingUserID
	}
	if s.settingsErr != nil {
		return nil, s.settingsErr
	}
	s.settingsArgs.userID, s.settingsArgs.filter, s.settingsArgs.tokenID = userID, filter, tokenID
	return []domain.SettingsView{{ID: 7, UserID: userID, Provider: domain.ProviderGmail, SubjectFilter: filter}}, nil
}

func (s *stubMail) Poll(ctx context.Context, p domain.Provider) (int, error) {
	if s.pollErr != nil {
		return 0, s.pollErr
	}
	return 3, nil
}

func (s *stubMail) Attachment(ctx context.Context, userID, messageID, attachmentID string) (*mail.Attachment, error) {
	if s.attErr != nil {
		return nil, s.attErr
	}
	return &mail.Attachment{FileName: "invoice.pdf", MimeType: "application/pdf", Data: []byte("%PDF-att")}, nil
}

func setupTestHandler(cfg Config) (*Handler, *stubDocs, *stubMail) {
	docs := &stubDocs{}
	m := &stubMail{}
	return NewHandler(docs, m, cfg, nil), docs, m
}

// multipartRequest builds a form upload with optional extra fields.
func multipartRequest(t *testing.T, path, fileName string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if data != nil {
		fw, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(h *Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

// =============================================================================
// Health and OpenAPI Tests
// =============================================================================

func TestHealth(t *testing.T) {
	h, _, _ := setupTestHandler(Config{})

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody[HealthResponse](t, rec).Status)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestOpenAPIDocument(t *testing.T) {
	h, _, _ := setupTestHandler(Config{})

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/openapi.json", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	doc, err := openapi3.NewLoader().LoadFromData(rec.Body.Bytes())
	require.NoError(t, err)

	for _, path := range []string{"/split", "/rotate", "/prepare", "/oauth/gmail/initiate", "/outlook/poll", "/gmail/attachment"} {
		item := doc.Paths.Value(path)
		require.NotNil(t, item, path)
	}
	assert.NotNil(t, doc.Paths.Value("/split").Post.RequestBody.Value.Content.Get("multipart/form-data"))
	assert.NotNil(t, doc.Paths.Value("/oauth/outlook/status/{user_id}").Get)
	assert.Contains(t, doc.Components.Schemas, "SplitForm")
	assert.Equal(t, "dochero API", doc.Info.Title)
	assert.Equal(t, "dev", doc.Info.Version)
	assert.Equal(t, "PDF processing and mailbox intake", doc.Info.Description)
	assert.Empty(t, doc.Servers)
}

func TestOpenAPIDocument_VersionAndServer(t *testing.T) {
	h, _, _ := setupTestHandler(Config{Version: "1.4.2", PublicURL: "https://api.dochero.nl"})

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/openapi.json", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	doc, err := openapi3.NewLoader().LoadFromData(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "1.4.2", doc.Info.Version)
	require.Len(t, doc.Servers, 1)
	assert.Equal(t, "https://api.dochero.nl", doc.Servers[0].URL)
}

// =============================================================================
// Upload Tests
// =============================================================================

func TestSplit_FixedSize(t *testing.T) {
	h, docs, _ := setupTestHandler(Config{})

	rec := serve(h, multipartRequest(t, "/split", "scan.pdf", testPDF, map[string]string{"split_size": "2"}))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=split_pages.zip", rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "zip-bytes", rec.Body.String())
	require.NotNil(t, docs.lastOpts.Size)
	assert.Equal(t, 2, *docs.lastOpts.Size)
	assert.Equal(t, "scan.pdf", docs.lastFile)
}

func TestSplit_FormFields(t *testing.T) {
	tests := []struct {
		name    string
		fields  map[string]string
		barcode bool
		keyword string
		status  int
		detail  string
	}{
		{name: "barcode yes", fields: map[string]string{"barcode": "yes"}, barcode: true, status: http.StatusOK},
		{name: "barcode on", fields: map[string]string{"barcode": "ON"}, barcode: true, status: http.StatusOK},
		{name: "barcode off", fields: map[string]string{"barcode": "0", "keyword": "Factuur"}, keyword: "Factuur", status: http.StatusOK},
		{name: "bad barcode", fields: map[string]string{"barcode": "maybe"}, status: http.StatusBadRequest, detail: "barcode must be a boolean"},
		{name: "bad size", fields: map[string]string{"split_size": "two"}, status: http.StatusBadRequest, detail: "split_size must be an integer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, docs, _ := setupTestHandler(Config{})

			rec := serve(h, multipartRequest(t, "/split", "scan.pdf", testPDF, tt.fields))

			require.Equal(t, tt.status, rec.Code)
			if tt.detail != "" {
				assert.Equal(t, tt.detail, decodeBody[DetailResponse](t, rec).Detail)
				return
			}
			assert.Equal(t, tt.barcode, docs.lastOpts.Barcode)
			assert.Equal(t, tt.keyword, docs.lastOpts.Keyword)
		})
	}
}

func TestUpload_MissingFile(t *testing.T) {
	h, _, _ := setupTestHandler(Config{})

	rec := serve(h, multipartRequest(t, "/rotate", "", nil, map[string]string{"other": "x"}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "file is required", decodeBody[DetailResponse](t, rec).Detail)
}

func TestUpload_NotAPDF(t *testing.T) {
	h, _, _ := setupTestHandler(Config{})

	rec := serve(h, multipartRequest(t, "/rotate", "notes.txt", []byte("just some text"), nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_pdf", decodeBody[DetailResponse](t, rec).Detail)
}

func TestUpload_TooLarge(t *testing.T) {
	h, _, _ := setupTestHandler(Config{MaxUploadBytes: 1024})
	big := append(append([]byte{}, testPDF...), bytes.Repeat([]byte("x"), 4096)...)

	rec := serve(h, multipartRequest(t, "/prepare", "big.pdf", big, nil))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestParseFormBool(t *testing.T) {
	for _, s := range []string{"true", "1", "yes", "on", " True "} {
		v, ok := parseFormBool(s)
		assert.True(t, ok, s)
		assert.True(t, v, s)
	}
	for _, s := range []string{"false", "0", "no", "off"} {
		v, ok := parseFormBool(s)
		assert.True(t, ok, s)
		assert.False(t, v, s)
	}
	_, ok := parseFormBool("nope")
	assert.False(t, ok)
}

// =============================================================================
// Document Handler Tests
// =============================================================================

func TestRotate(t *testing.T) {
	h, _, _ := setupTestHandler(Config{})

	rec := serve(h, multipartRequest(t, "/rotate", "scan.pdf", testPDF, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=rotated_output.pdf", rec.Header().Get("Content-Disposition"))
	assert.Equal(t, testPDF, rec.Body.Bytes())
}

func TestPrepare(t *testing.T) {
	h, _, _ := setupTestHandler(Config{})

	rec := serve(h, multipartRequest(t, "/prepare", "scan.pdf", testPDF, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "attachment; filename=page1_scan.pdf", rec.Header().Get("Content-Disposition"))
}

func TestProcessingErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		detail string
	}{
		{"invalid input", &processing.Error{Kind: processing.KindInvalidInput, Op: "Split", Message: "choose exactly one split option"}, http.StatusBadRequest, "choose exactly one split option"},
		{"not found", &processing.Error{Kind: processing.KindNotFound, Op: "Prepare", Message: "no pages found"}, http.StatusBadRequest, "no pages found"},
		{"internal", &processing.Error{Kind: processing.KindInternal, Op: "Rotate", Message: "pdftoppm crashed"}, http.StatusInternalServerError, "pdftoppm crashed"},
		{"foreign", errors.New("boom"), http.StatusInternalServerError, "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, docs, _ := setupTestHandler(Config{})
			docs.err = tt.err

			rec := serve(h, multipartRequest(t, "/prepare", "scan.pdf", testPDF, nil))

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.detail, decodeBody[DetailResponse](t, rec).Detail)
		})
	}
}

func TestProcessingThrottled(t *testing.T) {
	h, docs, _ := setupTestHandler(Config{MaxConcurrent: 1})
	h.config.QueueSize = 0
	docs.started = make(chan struct{})
	docs.release = make(chan struct{})
	routes := h.Routes()

	first := multipartRequest(t, "/rotate", "a.pdf", testPDF, nil)
	done := make(chan int)
	go func() {
		rec := httptest.NewRecorder()
		routes.ServeHTTP(rec, first)
		done <- rec.Code
	}()
	<-docs.started

	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, multipartRequest(t, "/rotate", "b.pdf", testPDF, nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	close(docs.release)
	assert.Equal(t, http.StatusOK, <-done)
}

func TestProcessingTimeout(t *testing.T) {
	h := NewHandler(blockingDocs{}, &stubMail{}, Config{RequestTimeout: 50 * time.Millisecond}, nil)

	start := time.Now()
	rec := serve(h, multipartRequest(t, "/rotate", "scan.pdf", testPDF, nil))

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Less(t, time.Since(start), 5*time.Second)
}

// =============================================================================
// CORS Tests
// =============================================================================

func TestCORS_Preflight(t *testing.T) {
	h, _, _ := setupTestHandler(Config{})

	req := httptest.NewRequest(http.MethodOptions, "/split", nil)
	req.Header.Set("Origin", "https://dochero.nl")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := serve(h, req)

	assert.Equal(t, "https://dochero.nl", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "600", rec.Header().Get("Access-Control-Max-Age"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORS_UnknownOrigin(t *testing.T) {
	h, _, _ := setupTestHandler(Config{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := serve(h, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

// =============================================================================
// OAuth Handler Tests
// =============================================================================

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestInitiate(t *testing.T) {
	h, _, _ := setupTestHandler(Config{})

	rec := serve(h, jsonRequest(http.MethodPost, "/oauth/outlook/initiate", `{"user_id":"u1","redirect_url":"http://ignored"}`))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://auth.example/outlook?state=u1", decodeBody[InitiateResponse](t, rec).AuthURL)
}

func TestInitiate_Errors(t *testing.T) {
	h, _, _ := setupTestHandler(Config{})

	rec := serve(h, jsonRequest(http.MethodPost, "/oauth/gmail/initiate", `{}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing_user_id", decodeBody[ErrorResponse](t, rec).Error)

	rec = serve(h, jsonRequest(http.MethodPost, "/oauth/gmail/initiate", `{not json`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid JSON", decodeBody[ErrorResponse](t, rec).Error)
}

func TestCallback_Redirects(t *testing.T) {
	h, _, m := setupTestHandler(Config{})

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/oauth/gmail/callback?code=abc&state=u1", nil))
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "http://frontend.test?gmail_connected=true", rec.Header().Get("Location"))
	assert.Equal(t, []string{"gmail:abc:u1"}, m.connected)

	m.connectErr = errors.New("exchange failed")
	rec = serve(h, httptest.NewRequest(http.MethodGet, "/oauth/outlook/callback?code=abc&state=u1", nil))
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "http://frontend.test?outlook_connected=false", rec.Header().Get("Location"))
}

func TestStatus(t *testing.T) {
	h, _, _ := setupTestHandler(Config{})

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/oauth/gmail/status/u1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["connected"])
	accounts := body["accounts"].([]any)
	require.Len(t, accounts, 1)
	account := accounts[0].(map[string]any)
	assert.Equal(t, "gmail_account", account["email"])
	assert.Equal(t, "connected", account["status"])
	assert.Nil(t, account["last_sync"])
	require.Contains(t, account, "subject_filter")
	assert.Nil(t, account["subject_filter"])

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/oauth/outlook/status/u1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "subject_filter")
}

func TestStatus_StoreFailure(t *testing.T) {
	h, _, m := setupTestHandler(Config{})
	m.statusErr = errors.New("database is locked")

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/oauth/outlook/status/u1", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "Failed to get Outlook status", body.Error)
	assert.Equal(t, "database is locked", body.Detail)
}

func TestSettings(t *testing.T) {
	h, _, m := setupTestHandler(Config{})

	rec := serve(h, jsonRequest(http.MethodPost, "/oauth/gmail/settings", `{"user_id":"u1","subject_filter":"Factuur","token_id":7}`))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", m.settingsArgs.userID)
	require.NotNil(t, m.settingsArgs.filter)
	assert.Equal(t, "Factuur", *m.settingsArgs.filter)
	require.NotNil(t, m.settingsArgs.tokenID)
	assert.Equal(t, int64(7), *m.settingsArgs.tokenID)
	body := decodeBody[SettingsResponse](t, rec)
	require.Len(t, body.Updated, 1)
}

func TestSettings_Errors(t *testing.T) {
	h, _, m := setupTestHandler(Config{})

	rec := serve(h, jsonRequest(http.MethodPost, "/oauth/gmail/settings", `{"subject_filter":null}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	m.settingsErr = errors.New("disk I/O error")
	rec = serve(h, jsonRequest(http.MethodPost, "/oauth/gmail/settings", `{"user_id":"u1"}`))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to update Gmail settings", decodeBody[ErrorResponse](t, rec).Error)
}

// =============================================================================
// Poll and Attachment Handler Tests
// =============================================================================

func TestPoll(t *testing.T) {
	h, _, m := setupTestHandler(Config{})

	rec := serve(h, httptest.NewRequest(http.MethodPost, "/gmail/poll", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, PollResponse{Status: "ok", Processed: 3}, decodeBody[PollResponse](t, rec))

	m.pollErr = errors.New("no such table")
	rec = serve(h, httptest.NewRequest(http.MethodPost, "/outlook/poll", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "store_select_failed", body.Error)
	assert.Equal(t, "no such table", body.Detail)
}

func TestAttachment(t *testing.T) {
	h, _, _ := setupTestHandler(Config{})

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/gmail/attachment?user_id=u1&message_id=m1&attachment_id=a1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="invoice.pdf"`, rec.Header().Get("Content-Disposition"))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-att", string(body))
}

func TestAttachment_Errors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
		detail  string
	}{
		{"user", mail.ErrUserNotFound, http.StatusNotFound, "user not found", ""},
		{"message", &mail.FetchError{What: "message", Err: &mail.APIError{Status: 404, Body: "Not Found"}}, http.StatusBadRequest, "failed to fetch message", "Not Found"},
		{"attachment", &mail.FetchError{What: "attachment", Err: errors.New("timeout")}, http.StatusBadRequest, "failed to fetch attachment", "timeout"},
		{"token", &mail.TokenError{TokenID: 1, Err: domain.ErrNoRefreshToken}, http.StatusBadGateway, "token unavailable", "token 1: no refresh token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, m := setupTestHandler(Config{})
			m.attErr = tt.err

			rec := serve(h, httptest.NewRequest(http.MethodGet, "/gmail/attachment?user_id=u1&message_id=m1&attachment_id=a1", nil))

			assert.Equal(t, tt.status, rec.Code)
			body := decodeBody[ErrorResponse](t, rec)
			assert.Equal(t, tt.message, body.Error)
			assert.Equal(t, tt.detail, body.Detail)
		})
	}
}

func TestAttachment_MissingParameters(t *testing.T) {
	h, _, _ := setupTestHandler(Config{})

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/gmail/attachment?user_id=u1", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing_parameters", decodeBody[ErrorResponse](t, rec).Error)
}
