package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/JacobMintzer/Allstar-API/internal/config"
	"github.com/JacobMintzer/Allstar-API/internal/crypto"
	"github.com/JacobMintzer/Allstar-API/internal/model"
	"github.com/JacobMintzer/Allstar-API/internal/repository"
)

func newTestServer(t *testing.T) (*httptest.Server, *repository.MemoryAccounts, *repository.MemoryRecords) {
	t.Helper()
	cfg := config.Config{
		HTTPAddr:       ":0",
		JWTSecret:      "test-secret",
		JWTIssuer:      "test-issuer",
		AccessTokenTTL: time.Hour,
	}
	accounts := repository.NewMemoryAccounts()
	records := repository.NewMemoryRecords()
	server := NewServer(cfg, accounts, records, nil)
	app := httptest.NewServer(server.Router())
	t.Cleanup(app.Close)
	return app, accounts, records
}

func doReq(t *testing.T, method, url, token string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode error: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("http error: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode error: %v", err)
	}
}

func login(t *testing.T, url, email, password string) string {
	t.Helper()
	resp := doReq(t, http.MethodPost, url+"/login", "", map[string]string{
		"email":    email,
		"password": password,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login expected 200, got %d", resp.StatusCode)
	}
	var body map[string]string
	decodeBody(t, resp, &body)
	if body["accessToken"] == "" {
		t.Fatalf("expected accessToken in login response")
	}
	return body["accessToken"]
}

func seedAdmin(t *testing.T, accounts *repository.MemoryAccounts, email, password string) {
	t.Helper()
	err := accounts.Create(context.Background(), model.Account{
		Email:        email,
		PasswordHash: crypto.HashPassword(password),
		Role:         model.RoleAdmin,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed admin error: %v", err)
	}
}

func TestSignupValidation(t *testing.T) {
	app, _, _ := newTestServer(t)

	cases := []struct {
		name string
		body map[string]interface{}
		want int
	}{
		{"bad email", map[string]interface{}{"email": "not-an-email", "password": "hunter22"}, http.StatusUnprocessableEntity},
		{"weak password", map[string]interface{}{"email": "worker@example.com", "password": "abcd"}, http.StatusUnprocessableEntity},
		{"ok", map[string]interface{}{"email": "worker@example.com", "password": "hunter22"}, http.StatusOK},
		{"duplicate", map[string]interface{}{"email": "worker@example.com", "password": "hunter22"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		resp := doReq(t, http.MethodPost, app.URL+"/signup", "", tc.body)
		if resp.StatusCode != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, resp.StatusCode)
		}
	}
}

func TestSignupForcesEmployeeRole(t *testing.T) {
	app, _, _ := newTestServer(t)

	resp := doReq(t, http.MethodPost, app.URL+"/signup", "", map[string]interface{}{
		"email":    "sneaky@example.com",
		"password": "hunter22",
		"role":     "Admin",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp = doReq(t, http.MethodGet, app.URL+"/employee/sneaky@example.com", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]string
	decodeBody(t, resp, &body)
	if body["role"] != model.RoleEmployee {
		t.Fatalf("expected forced Employee role, got %q", body["role"])
	}
	if _, ok := body["passwordHash"]; ok {
		t.Fatalf("password hash must never be serialized")
	}
}

func TestLoginFailures(t *testing.T) {
	app, _, _ := newTestServer(t)

	resp := doReq(t, http.MethodPost, app.URL+"/signup", "", map[string]string{"email": "worker@example.com", "password": "hunter22"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("signup expected 200, got %d", resp.StatusCode)
	}

	resp = doReq(t, http.MethodPost, app.URL+"/login", "", map[string]string{"email": "worker@example.com", "password": "wrong"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for bad password, got %d", resp.StatusCode)
	}
	resp = doReq(t, http.MethodPost, app.URL+"/login", "", map[string]string{"email": "nobody@example.com", "password": "hunter22"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for unknown account, got %d", resp.StatusCode)
	}

	login(t, app.URL, "worker@example.com", "hunter22")
}

func TestAuthGuards(t *testing.T) {
	app, accounts, _ := newTestServer(t)

	resp := doReq(t, http.MethodGet, app.URL+"/document", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	resp = doReq(t, http.MethodGet, app.URL+"/document", "garbage-token", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for invalid token, got %d", resp.StatusCode)
	}

	doReq(t, http.MethodPost, app.URL+"/signup", "", map[string]string{"email": "worker@example.com", "password": "hunter22"})
	workerToken := login(t, app.URL, "worker@example.com", "hunter22")

	resp = doReq(t, http.MethodGet, app.URL+"/employee", workerToken, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for non-admin on admin route, got %d", resp.StatusCode)
	}

	seedAdmin(t, accounts, "boss@example.com", "hunter22")
	adminToken := login(t, app.URL, "boss@example.com", "hunter22")
	resp = doReq(t, http.MethodGet, app.URL+"/employee", adminToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", resp.StatusCode)
	}
}

func TestRecordLifecycle(t *testing.T) {
	app, _, _ := newTestServer(t)

	doReq(t, http.MethodPost, app.URL+"/signup", "", map[string]string{"email": "worker@example.com", "password": "hunter22"})
	token := login(t, app.URL, "worker@example.com", "hunter22")

	resp := doReq(t, http.MethodPost, app.URL+"/document", token, map[string]interface{}{
		"finishTime": "2024-01-01T10:00:00Z",
		"totalTime":  3600,
		"notes":      "a",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var created map[string]string
	decodeBody(t, resp, &created)
	id := created["id"]
	if id == "" {
		t.Fatalf("expected record id")
	}

	var record struct {
		Email      string     `json:"email"`
		StartTime  *time.Time `json:"startTime"`
		FinishTime *time.Time `json:"finishTime"`
		TotalTime  int64      `json:"totalTime"`
		Notes      string     `json:"notes"`
	}
	resp = doReq(t, http.MethodGet, app.URL+"/document/"+id, token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	decodeBody(t, resp, &record)
	if record.Email != "worker@example.com" {
		t.Fatalf("expected owner from token identity, got %q", record.Email)
	}
	wantStart := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	if record.StartTime == nil || !record.StartTime.Equal(wantStart) {
		t.Fatalf("expected derived start %s, got %v", wantStart, record.StartTime)
	}

	// Update only the total; start is recomputed from the stored finish.
	resp = doReq(t, http.MethodPost, app.URL+"/document/"+id, token, map[string]interface{}{"totalTime": 1800})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	resp = doReq(t, http.MethodGet, app.URL+"/document/"+id, token, nil)
	decodeBody(t, resp, &record)
	wantStart = time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)
	if record.StartTime == nil || !record.StartTime.Equal(wantStart) {
		t.Fatalf("expected recomputed start %s, got %v", wantStart, record.StartTime)
	}

	for _, note := range []string{"x", "y"} {
		resp = doReq(t, http.MethodPost, app.URL+"/add-note/"+id, token, map[string]string{"note": note})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("expected 201, got %d", resp.StatusCode)
		}
	}
	resp = doReq(t, http.MethodGet, app.URL+"/document/"+id, token, nil)
	decodeBody(t, resp, &record)
	if record.Notes != "a x y" {
		t.Fatalf("expected notes %q, got %q", "a x y", record.Notes)
	}

	resp = doReq(t, http.MethodGet, app.URL+"/document", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp = doReq(t, http.MethodDelete, app.URL+"/document/"+id, token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	resp = doReq(t, http.MethodDelete, app.URL+"/document/"+id, token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", resp.StatusCode)
	}
	resp = doReq(t, http.MethodGet, app.URL+"/document/"+id, token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.StatusCode)
	}

	resp = doReq(t, http.MethodPost, app.URL+"/document/"+id, token, map[string]interface{}{"totalTime": 60})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 updating a deleted record, got %d", resp.StatusCode)
	}
}

func TestSearchAndTimes(t *testing.T) {
	app, accounts, _ := newTestServer(t)

	doReq(t, http.MethodPost, app.URL+"/signup", "", map[string]string{"email": "worker@example.com", "password": "hunter22"})
	workerToken := login(t, app.URL, "worker@example.com", "hunter22")
	seedAdmin(t, accounts, "boss@example.com", "hunter22")
	adminToken := login(t, app.URL, "boss@example.com", "hunter22")

	// 09:00-10:00 with meeting notes, 12:00-12:30 without.
	doReq(t, http.MethodPost, app.URL+"/document", workerToken, map[string]interface{}{
		"finishTime": "2024-01-01T10:00:00Z",
		"totalTime":  3600,
		"notes":      "team meeting notes",
	})
	doReq(t, http.MethodPost, app.URL+"/document", workerToken, map[string]interface{}{
		"finishTime": "2024-01-01T12:30:00Z",
		"totalTime":  1800,
		"notes":      "solo work",
	})

	resp := doReq(t, http.MethodGet, app.URL+"/search?term=MEETING", adminToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var found []map[string]interface{}
	decodeBody(t, resp, &found)
	if len(found) != 1 {
		t.Fatalf("expected 1 search match, got %d", len(found))
	}

	// Window 10:00-11:00: the record finishing exactly at 10:00 is excluded.
	resp = doReq(t, http.MethodGet, app.URL+"/get-times?startTime=2024-01-01T10:00:00Z&finishTime=2024-01-01T11:00:00Z", adminToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	decodeBody(t, resp, &found)
	if len(found) != 0 {
		t.Fatalf("expected boundary-touching record to be excluded, got %d", len(found))
	}

	// Window 09:30-12:15 overlaps both.
	resp = doReq(t, http.MethodGet, app.URL+"/get-times?startTime=2024-01-01T09:30:00Z&finishTime=2024-01-01T12:15:00Z", adminToken, nil)
	decodeBody(t, resp, &found)
	if len(found) != 2 {
		t.Fatalf("expected 2 overlapping records, got %d", len(found))
	}

	resp = doReq(t, http.MethodGet, app.URL+"/get-times?startTime=2024-01-01T11:00:00Z&finishTime=2024-01-01T10:00:00Z", adminToken, nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for inverted range, got %d", resp.StatusCode)
	}
	resp = doReq(t, http.MethodGet, app.URL+"/get-times?startTime=yesterday&finishTime=2024-01-01T10:00:00Z", adminToken, nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unparseable date, got %d", resp.StatusCode)
	}

	resp = doReq(t, http.MethodGet, app.URL+"/search?term=meeting", workerToken, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for non-admin search, got %d", resp.StatusCode)
	}
}

func TestWorkTimeReport(t *testing.T) {
	app, accounts, _ := newTestServer(t)

	doReq(t, http.MethodPost, app.URL+"/signup", "", map[string]string{"email": "worker@example.com", "password": "hunter22"})
	workerToken := login(t, app.URL, "worker@example.com", "hunter22")
	seedAdmin(t, accounts, "boss@example.com", "hunter22")
	adminToken := login(t, app.URL, "boss@example.com", "hunter22")

	for _, total := range []int64{100, 250} {
		resp := doReq(t, http.MethodPost, app.URL+"/document", workerToken, map[string]interface{}{
			"finishTime": "2024-01-01T10:00:00Z",
			"totalTime":  total,
		})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("expected 201, got %d", resp.StatusCode)
		}
	}

	resp := doReq(t, http.MethodGet, app.URL+"/employee", adminToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var rows []struct {
		Email         string `json:"email"`
		Role          string `json:"role"`
		SecondsWorked int64  `json:"secondsWorked"`
	}
	decodeBody(t, resp, &rows)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	// List is ordered by email: boss before worker.
	if rows[0].Email != "boss@example.com" || rows[0].SecondsWorked != 0 {
		t.Fatalf("unexpected first row: %+v", rows[0])
	}
	if rows[1].Email != "worker@example.com" || rows[1].SecondsWorked != 350 {
		t.Fatalf("expected worker with 350 seconds, got %+v", rows[1])
	}
	if rows[1].Role != model.RoleEmployee || rows[0].Role != model.RoleAdmin {
		t.Fatalf("unexpected roles: %+v", rows)
	}
}
