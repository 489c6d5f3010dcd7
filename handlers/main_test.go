// mopchan/handlers/main_test.go
package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mopchan/auth"
	"mopchan/chat"
	"mopchan/config"
	"mopchan/database"
	"mopchan/models"
	"mopchan/utils"
)

// MockApplication holds dependencies for handler tests.
type MockApplication struct {
	db          *database.DatabaseService
	auth        *auth.Service
	chat        *chat.Room
	rateLimiter *models.RateLimiter
	uploadDir   string
	logger      *slog.Logger
	storage     models.StorageService
}

func (a *MockApplication) DB() *database.DatabaseService    { return a.db }
func (a *MockApplication) Auth() *auth.Service              { return a.auth }
func (a *MockApplication) Chat() *chat.Room                 { return a.chat }
func (a *MockApplication) RateLimiter() *models.RateLimiter { return a.rateLimiter }
func (a *MockApplication) Logger() *slog.Logger             { return a.logger }
func (a *MockApplication) UploadDir() string                { return a.uploadDir }
func (a *MockApplication) Storage() models.StorageService   { return a.storage }

// setupTestApp creates a full application stack with a test database for
// integration testing. The rate limiter burst is high so only the rate limit
// tests exercise it.
func setupTestApp(t *testing.T) *MockApplication {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	dbDir, err := os.MkdirTemp("", "mopchan_test_db_*")
	if err != nil {
		t.Fatalf("Failed to create temp dir for test DB: %v", err)
	}
	dbPath := filepath.Join(dbDir, "test.db") + "?_journal_mode=WAL&_foreign_keys=on"
	dbService, err := database.InitDB(dbPath, logger)
	if err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}

	uploadDir, err := os.MkdirTemp("", "mopchan_test_uploads_*")
	if err != nil {
		t.Fatalf("Failed to create temp upload dir: %v", err)
	}

	app := &MockApplication{
		db:          dbService,
		auth:        auth.NewService(dbService.DB, logger, []byte("test-secret"), time.Hour),
		chat:        chat.NewRoom(config.ChatHistorySize, config.ChatSendBuffer, config.MaxChatMessageLen, logger),
		rateLimiter: models.NewRateLimiter(time.Millisecond, 1000, time.Hour, 24*time.Hour),
		uploadDir:   uploadDir,
		logger:      logger,
		storage:     &utils.LocalStorage{UploadDir: uploadDir},
	}

	t.Cleanup(func() {
		app.db.DB.Close()
		os.RemoveAll(dbDir)
		os.RemoveAll(uploadDir)
	})

	return app
}

// loginAs creates an admin account and returns a session token for it.
func loginAs(t *testing.T, app *MockApplication, username string, role models.Role) string {
	t.Helper()
	if _, err := app.auth.CreateAdmin(username, "test-password", role); err != nil {
		t.Fatalf("Failed to create admin %q: %v", username, err)
	}
	token, _, err := app.auth.Login(username, "test-password")
	if err != nil {
		t.Fatalf("Failed to log in as %q: %v", username, err)
	}
	return token
}

// postForm builds a multipart form request the way the board frontend does.
func postForm(t *testing.T, path string, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("Failed to write form field %q: %v", key, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Failed to close multipart writer: %v", err)
	}

	req := httptest.NewRequest("POST", path, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.RemoteAddr = "1.2.3.4:5678"
	return req
}

func postJSON(t *testing.T, path string, payload interface{}, token string) *http.Request {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Failed to marshal request payload: %v", err)
	}
	req := httptest.NewRequest("POST", path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.RemoteAddr = "1.2.3.4:5678"
	return req
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("Failed to decode response body %q: %v", rr.Body.String(), err)
	}
}

// makeTestThread creates a thread through the API and returns its id.
func makeTestThread(t *testing.T, router http.Handler, content string) int64 {
	t.Helper()
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, postForm(t, "/api/threads", map[string]string{
		"subject": "Test Thread",
		"content": content,
	}))
	if rr.Code != http.StatusOK {
		t.Fatalf("Failed to create thread: status %d, body %s", rr.Code, rr.Body.String())
	}
	var thread models.Thread
	decodeBody(t, rr, &thread)
	return thread.ID
}
