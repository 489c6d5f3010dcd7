// mopchan/handlers/moderation_test.go
package handlers

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"mopchan/models"
)

func TestLoginEndpoint(t *testing.T) {
	app := setupTestApp(t)
	router := SetupRouter(app)
	if _, err := app.auth.CreateAdmin("janny", "sweep-it-up", models.RoleModerator); err != nil {
		t.Fatalf("Failed to create admin: %v", err)
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, postJSON(t, "/api/admin/login", map[string]string{
		"username": "janny", "password": "sweep-it-up",
	}, ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200 on valid login, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
		Role  string `json:"role"`
	}
	decodeBody(t, rr, &resp)
	if resp.Token == "" {
		t.Error("Expected a session token")
	}
	if resp.Role != "moderator" {
		t.Errorf("Expected role 'moderator', got %q", resp.Role)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, postJSON(t, "/api/admin/login", map[string]string{
		"username": "janny", "password": "wrong",
	}, ""))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 on bad password, got %d", rr.Code)
	}
}

// TestModerationGate checks the 401/403 split on a protected route.
func TestModerationGate(t *testing.T) {
	app := setupTestApp(t)
	router := SetupRouter(app)
	threadID := makeTestThread(t, router, "target")
	path := "/api/admin/threads/" + strconv.FormatInt(threadID, 10) + "/pin"

	// No credential at all.
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, postJSON(t, path, nil, ""))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without a token, got %d", rr.Code)
	}

	// Garbage credential.
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, postJSON(t, path, nil, "not-a-real-token"))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 with an invalid token, got %d", rr.Code)
	}

	// Valid credential passes.
	token := loginAs(t, app, "janny", models.RoleModerator)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, postJSON(t, path, nil, token))
	if rr.Code != http.StatusOK {
		t.Errorf("Expected 200 with a moderator token, got %d: %s", rr.Code, rr.Body.String())
	}

	// The gate rejects before touching state: the failed attempts must not
	// have produced a pin, only the valid one.
	var pinCount int
	if err := app.db.DB.QueryRow("SELECT COUNT(*) FROM thread_pins").Scan(&pinCount); err != nil {
		t.Fatalf("Failed to count pins: %v", err)
	}
	if pinCount != 1 {
		t.Errorf("Expected exactly 1 pin, got %d", pinCount)
	}
}

func TestPinUnpinEndpoints(t *testing.T) {
	app := setupTestApp(t)
	router := SetupRouter(app)
	token := loginAs(t, app, "janny", models.RoleModerator)
	threadID := makeTestThread(t, router, "pin me")
	path := "/api/admin/threads/" + strconv.FormatInt(threadID, 10) + "/pin"

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, postJSON(t, path, nil, token))
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200 pinning, got %d: %s", rr.Code, rr.Body.String())
	}

	// Double pin conflicts.
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, postJSON(t, path, nil, token))
	if rr.Code != http.StatusConflict {
		t.Errorf("Expected 409 on double pin, got %d", rr.Code)
	}

	// Unpin, then unpin again: the second is a successful no-op.
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("DELETE", path, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr = httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Errorf("Expected 200 on unpin attempt %d, got %d", i+1, rr.Code)
		}
	}

	// Pinning a missing thread is 404.
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, postJSON(t, "/api/admin/threads/999/pin", nil, token))
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 pinning missing thread, got %d", rr.Code)
	}
}

func TestDeleteEndpoints(t *testing.T) {
	app := setupTestApp(t)
	router := SetupRouter(app)
	token := loginAs(t, app, "janny", models.RoleModerator)
	threadID := makeTestThread(t, router, "doomed")
	threadPath := "/api/threads/" + strconv.FormatInt(threadID, 10)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, postForm(t, threadPath+"/replies", map[string]string{"content": "doomed reply"}))
	if rr.Code != http.StatusOK {
		t.Fatalf("Failed to create reply: %d", rr.Code)
	}
	var post models.Post
	decodeBody(t, rr, &post)

	// Delete the reply.
	req := httptest.NewRequest("DELETE", "/api/admin/posts/"+strconv.FormatInt(post.ID, 10), nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200 deleting post, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", threadPath, nil))
	var thread models.Thread
	decodeBody(t, rr, &thread)
	if thread.ReplyCount != 0 || len(thread.Posts) != 0 {
		t.Errorf("Expected deleted reply hidden from readers, got count %d with %d posts", thread.ReplyCount, len(thread.Posts))
	}

	// Delete the whole thread.
	req = httptest.NewRequest("DELETE", "/api/admin/threads/"+strconv.FormatInt(threadID, 10), nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200 deleting thread, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", threadPath, nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 fetching deleted thread, got %d", rr.Code)
	}

	// Deleting it again is 404.
	req = httptest.NewRequest("DELETE", "/api/admin/threads/"+strconv.FormatInt(threadID, 10), nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 on repeat delete, got %d", rr.Code)
	}
}

func TestBanEndpoints(t *testing.T) {
	app := setupTestApp(t)
	router := SetupRouter(app)
	token := loginAs(t, app, "janny", models.RoleModerator)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, postJSON(t, "/api/admin/bans", map[string]string{
		"ip": "1.2.3.4", "reason": "spam", "duration": "1h",
	}, token))
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200 applying ban, got %d: %s", rr.Code, rr.Body.String())
	}

	// The banned IP is refused with the ban reason. postForm sets the remote
	// address to 1.2.3.4.
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, postForm(t, "/api/threads", map[string]string{"content": "let me in"}))
	if rr.Code != http.StatusForbidden {
		t.Errorf("Expected 403 posting from banned IP, got %d: %s", rr.Code, rr.Body.String())
	}

	// The listing includes the record.
	req := httptest.NewRequest("GET", "/api/admin/bans", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200 listing bans, got %d", rr.Code)
	}
	var listing struct {
		Bans []models.Ban `json:"bans"`
	}
	decodeBody(t, rr, &listing)
	if len(listing.Bans) != 1 || listing.Bans[0].IP != "1.2.3.4" {
		t.Errorf("Expected the ban in the listing, got %+v", listing.Bans)
	}

	// Lift the ban; posting works again.
	req = httptest.NewRequest("DELETE", "/api/admin/bans", strings.NewReader(`{"ip":"1.2.3.4"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200 unbanning, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, postForm(t, "/api/threads", map[string]string{"content": "back again"}))
	if rr.Code != http.StatusOK {
		t.Errorf("Expected 200 posting after unban, got %d", rr.Code)
	}
}

func TestBanBadDuration(t *testing.T) {
	app := setupTestApp(t)
	router := SetupRouter(app)
	token := loginAs(t, app, "janny", models.RoleModerator)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, postJSON(t, "/api/admin/bans", map[string]string{
		"ip": "1.2.3.4", "reason": "spam", "duration": "fortnight",
	}, token))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unparseable duration, got %d", rr.Code)
	}
}

func TestBanZeroDurationRecordsWithoutBlocking(t *testing.T) {
	app := setupTestApp(t)
	router := SetupRouter(app)
	token := loginAs(t, app, "janny", models.RoleModerator)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, postJSON(t, "/api/admin/bans", map[string]string{
		"ip": "1.2.3.4", "reason": "warning only", "duration": "0",
	}, token))
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200 applying zero-duration ban, got %d: %s", rr.Code, rr.Body.String())
	}

	// Already expired: the record exists but posting is not blocked.
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, postForm(t, "/api/threads", map[string]string{"content": "still allowed"}))
	if rr.Code != http.StatusOK {
		t.Errorf("Expected zero-duration ban not to block posting, got %d", rr.Code)
	}

	req := httptest.NewRequest("GET", "/api/admin/bans", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	var listing struct {
		Bans []models.Ban `json:"bans"`
	}
	decodeBody(t, rr, &listing)
	if len(listing.Bans) != 1 {
		t.Errorf("Expected the expired ban to stay on record, got %d entries", len(listing.Bans))
	}
}

func TestIPLookupEndpoint(t *testing.T) {
	app := setupTestApp(t)
	router := SetupRouter(app)
	token := loginAs(t, app, "janny", models.RoleModerator)
	threadID := makeTestThread(t, router, "OP")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, postForm(t, "/api/threads/"+strconv.FormatInt(threadID, 10)+"/replies", map[string]string{"content": "traceable"}))
	if rr.Code != http.StatusOK {
		t.Fatalf("Failed to create reply: %d", rr.Code)
	}

	req := httptest.NewRequest("GET", "/api/admin/ip-lookup?ip=1.2.3.4", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	var resp struct {
		Posts []models.Post `json:"posts"`
	}
	decodeBody(t, rr, &resp)
	if len(resp.Posts) != 1 || resp.Posts[0].Content != "traceable" {
		t.Errorf("Expected the reply in the lookup, got %+v", resp.Posts)
	}
}
