package patient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/ehr/records/internal/platform/auth"
	"github.com/ehr/records/internal/platform/middleware"
)

type testServer struct {
	e      *echo.Echo
	svc    *Service
	tokens *auth.TokenManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	svc := newTestSessionService(t)
	tokens, err := auth.NewTokenManager(auth.JWTConfig{Issuer: "test", SigningKey: []byte("0123456789abcdef")})
	if err != nil {
		t.Fatal(err)
	}

	e := echo.New()
	public := e.Group("")
	api := e.Group("", auth.JWTMiddleware(tokens, nil))
	NewHandler(svc, tokens).RegisterRoutes(public, api)
	return &testServer{e: e, svc: svc, tokens: tokens}
}

func (s *testServer) token(t *testing.T, email string, role Role) string {
	t.Helper()
	tok, _, err := s.tokens.Issue(email, string(role))
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func (s *testServer) do(method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Login(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/auth/login", "", `{"email":"a@x","password":"pw"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), `"password"`) {
		t.Error("credential leaked in login response")
	}

	var resp loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Record == nil || resp.Record.Email != "a@x" {
		t.Errorf("unexpected record %+v", resp.Record)
	}
	claims, err := s.tokens.Parse(resp.Token)
	if err != nil {
		t.Fatalf("issued token does not parse: %v", err)
	}
	if claims.Subject != "a@x" || claims.Role != "patient" {
		t.Errorf("unexpected claims %+v", claims)
	}
}

func TestHandler_Login_Failure(t *testing.T) {
	s := newTestServer(t)

	for _, body := range []string{
		`{"email":"a@x","password":"wrong"}`,
		`{"email":"ghost@x","password":"pw"}`,
	} {
		rec := s.do(http.MethodPost, "/auth/login", "", body)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", body, rec.Code)
		}
	}
}

func TestHandler_Register(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/register", "",
		`{"name":"Carol","email":"c@x","password":"pw3","conditions":"","prescriptions":"ibuprofen"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var r Record
	json.Unmarshal(rec.Body.Bytes(), &r)
	if r.Role != RolePatient || len(r.Conditions) != 1 || r.Conditions[0] != "" {
		t.Errorf("unexpected record %+v", r)
	}

	if rec := s.do(http.MethodPost, "/register", "", `{"name":"Carol","email":"c@x","password":"pw3"}`); rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for duplicate, got %d", rec.Code)
	}
	if rec := s.do(http.MethodPost, "/register", "", `{"email":"d@x","password":"pw"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing name, got %d", rec.Code)
	}
}

func TestHandler_RequiresToken(t *testing.T) {
	s := newTestServer(t)

	if rec := s.do(http.MethodGet, "/me", "", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", rec.Code)
	}
	if rec := s.do(http.MethodGet, "/me", "garbage", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for bad token, got %d", rec.Code)
	}
}

func TestHandler_SelfService(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, "a@x", RolePatient)

	rec := s.do(http.MethodGet, "/me", tok, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = s.do(http.MethodPut, "/me/conditions", tok, `{"conditions":"flu,cold"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var r Record
	json.Unmarshal(rec.Body.Bytes(), &r)
	if len(r.Conditions) != 2 || r.Conditions[1] != "cold" {
		t.Errorf("unexpected conditions %q", r.Conditions)
	}

	rec = s.do(http.MethodPut, "/me/prescriptions", tok, `{"prescriptions":"x"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	if rec := s.do(http.MethodPut, "/me/password", tok, `{"password":""}`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty password, got %d", rec.Code)
	}
	if rec := s.do(http.MethodPut, "/me/password", tok, `{"password":"new"}`); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if _, err := s.svc.Authenticate(context.Background(), "a@x", "new"); err != nil {
		t.Errorf("new password should authenticate: %v", err)
	}
}

func TestHandler_PatientForbiddenFromAdminRoutes(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, "a@x", RolePatient)

	tests := []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodGet, "/patients", ""},
		{http.MethodGet, "/patients/b@x", ""},
		{http.MethodPut, "/patients/b@x/conditions", `{"conditions":"x"}`},
		{http.MethodPut, "/patients/b@x/password", `{"password":"x"}`},
		{http.MethodDelete, "/patients/b@x", ""},
	}
	for _, tt := range tests {
		if rec := s.do(tt.method, tt.path, tok, tt.body); rec.Code != http.StatusForbidden {
			t.Errorf("%s %s: expected 403, got %d", tt.method, tt.path, rec.Code)
		}
	}
}

func TestHandler_AdminManagement(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, "root@x", RoleAdmin)

	rec := s.do(http.MethodGet, "/patients?limit=2", tok, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var page struct {
		Data    []Record `json:"data"`
		Total   int      `json:"total"`
		HasMore bool     `json:"has_more"`
	}
	json.Unmarshal(rec.Body.Bytes(), &page)
	if page.Total != 3 || len(page.Data) != 2 || !page.HasMore {
		t.Errorf("unexpected page %+v", page)
	}

	path := "/patients/" + url.PathEscape("b@x")
	if rec := s.do(http.MethodGet, path, tok, ""); rec.Code != http.StatusOK {
		t.Errorf("expected 200 reading b@x, got %d", rec.Code)
	}
	if rec := s.do(http.MethodPut, path+"/prescriptions", tok, `{"prescriptions":"a,b"}`); rec.Code != http.StatusOK {
		t.Errorf("expected 200 updating prescriptions, got %d", rec.Code)
	}
	if rec := s.do(http.MethodPut, path+"/password", tok, `{"password":"pw9"}`); rec.Code != http.StatusNoContent {
		t.Errorf("expected 204 resetting password, got %d", rec.Code)
	}
	if _, err := s.svc.Authenticate(context.Background(), "b@x", "pw9"); err != nil {
		t.Errorf("reset password should authenticate: %v", err)
	}

	if rec := s.do(http.MethodDelete, path, tok, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 deleting, got %d", rec.Code)
	}
	if rec := s.do(http.MethodGet, path, tok, ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", rec.Code)
	}
	if rec := s.do(http.MethodDelete, path, tok, ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 deleting twice, got %d", rec.Code)
	}
}

func TestHandler_Logout(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, "a@x", RolePatient)

	if rec := s.do(http.MethodPost, "/auth/logout", tok, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec := s.do(http.MethodGet, "/me", tok, ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with a logged out token, got %d", rec.Code)
	}
}

func TestHandler_TokenOfDeletedRecord(t *testing.T) {
	s := newTestServer(t)
	patientTok := s.token(t, "b@x", RolePatient)
	adminTok := s.token(t, "root@x", RoleAdmin)

	if rec := s.do(http.MethodDelete, "/patients/b@x", adminTok, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec := s.do(http.MethodGet, "/me", patientTok, ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for a deleted record's token, got %d", rec.Code)
	}
}

func TestHandler_AdminDeleteSelfRevokesToken(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, "root@x", RoleAdmin)

	if rec := s.do(http.MethodDelete, "/patients/root@x", tok, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if s.tokens.Revocations().Count() != 1 {
		t.Errorf("expected the admin's token to be revoked")
	}
}

func TestHandler_BindErrors(t *testing.T) {
	s := newTestServer(t)
	s.e.Use(middleware.BodyLimit("64"))

	if rec := s.do(http.MethodPost, "/register", "", `{"name":`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed JSON, got %d", rec.Code)
	}

	tok := s.token(t, "a@x", RolePatient)
	big := `{"conditions":"` + strings.Repeat("x", 500) + `"}`
	tests := []struct {
		method string
		path   string
		token  string
	}{
		{http.MethodPost, "/register", ""},
		{http.MethodPost, "/auth/login", ""},
		{http.MethodPut, "/me/conditions", tok},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(big))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			req.ContentLength = -1
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()
			s.e.ServeHTTP(rec, req)

			if rec.Code != http.StatusRequestEntityTooLarge {
				t.Errorf("expected 413, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}
