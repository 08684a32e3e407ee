package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vesaa/tsmreport/internal/models"
	"github.com/vesaa/tsmreport/internal/report"
)

func newTestEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	SetJWTSecret("0123456789abcdef0123")
	SetAdminCredentials("admin", "secret")

	s := openTestStore(t)
	if err := s.SaveSnapshot(models.NewSnapshot("TSM1", collected, sampleRecords())); err != nil {
		t.Fatal(err)
	}
	r, err := report.New("")
	if err != nil {
		t.Fatal(err)
	}
	return NewEngine(&API{Store: s, Renderer: r, Retention: 15, Location: time.UTC})
}

func do(t *testing.T, e *gin.Engine, method, path, token string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)
	return w
}

func login(t *testing.T, e *gin.Engine) string {
	t.Helper()
	w := do(t, e, http.MethodPost, "/api/login", "", []byte(`{"username":"admin","password":"secret"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("login status %d: %s", w.Code, w.Body)
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.Token == "" {
		t.Fatalf("login response %s: %v", w.Body, err)
	}
	return resp.Token
}

func TestHealthz(t *testing.T) {
	e := newTestEngine(t)
	if w := do(t, e, http.MethodGet, "/healthz", "", nil); w.Code != http.StatusOK {
		t.Errorf("healthz status %d", w.Code)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	e := newTestEngine(t)
	w := do(t, e, http.MethodPost, "/api/login", "", []byte(`{"username":"admin","password":"nope"}`))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status %d, want 401", w.Code)
	}
	w = do(t, e, http.MethodPost, "/api/login", "", []byte(`{}`))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status %d, want 400", w.Code)
	}
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	e := newTestEngine(t)
	for _, path := range []string{"/api/instances", "/api/instances/TSM1/groups", "/reports/TSM1/G1"} {
		if w := do(t, e, http.MethodGet, path, "", nil); w.Code != http.StatusUnauthorized {
			t.Errorf("%s without token: status %d", path, w.Code)
		}
		if w := do(t, e, http.MethodGet, path, "garbage", nil); w.Code != http.StatusUnauthorized {
			t.Errorf("%s with bad token: status %d", path, w.Code)
		}
	}
}

func TestGroupsAndReport(t *testing.T) {
	e := newTestEngine(t)
	token := login(t, e)

	w := do(t, e, http.MethodGet, "/api/instances", token, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"instance":"TSM1"`) {
		t.Errorf("instances: %d %s", w.Code, w.Body)
	}

	w = do(t, e, http.MethodGet, "/api/instances/TSM1/groups", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("groups: %d %s", w.Code, w.Body)
	}
	var resp struct {
		Data []groupSummary `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Data) != 2 || resp.Data[0].Name != "G1" || resp.Data[0].Status != report.StatusWarn {
		t.Errorf("groups = %+v", resp.Data)
	}
	if resp.Data[1].Status != report.StatusOK || resp.Data[1].HasJobs {
		t.Errorf("G2 = %+v", resp.Data[1])
	}

	w = do(t, e, http.MethodGet, "/reports/TSM1/G1", token, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "NODE_A") {
		t.Errorf("report: %d %s", w.Code, w.Body)
	}
	if w := do(t, e, http.MethodGet, "/reports/TSM1/NOPE", token, nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown group status %d", w.Code)
	}
	if w := do(t, e, http.MethodGet, "/api/instances/TSM9/groups", token, nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown instance status %d", w.Code)
	}
}

func TestIndex(t *testing.T) {
	e := newTestEngine(t)
	w := do(t, e, http.MethodGet, "/", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("index status %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `/reports/TSM1/G1`) {
		t.Errorf("index = %s", w.Body)
	}
}

func TestReportWithLoginCookie(t *testing.T) {
	e := newTestEngine(t)
	w := do(t, e, http.MethodPost, "/api/login", "", []byte(`{"username":"admin","password":"secret"}`))
	cookies := w.Result().Cookies()
	if len(cookies) == 0 || cookies[0].Name != tokenCookie {
		t.Fatalf("login set no token cookie: %v", cookies)
	}

	req := httptest.NewRequest(http.MethodGet, "/reports/TSM1/G2", nil)
	req.AddCookie(cookies[0])
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "NODE_B") {
		t.Errorf("cookie report: %d", rec.Code)
	}
}
