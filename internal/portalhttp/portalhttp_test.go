package portalhttp

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridianhealth/patient-portal/internal/cryptoutil"
	"github.com/meridianhealth/patient-portal/internal/log"
	"github.com/meridianhealth/patient-portal/internal/records"
	"github.com/meridianhealth/patient-portal/internal/session"
	"github.com/meridianhealth/patient-portal/internal/userstore"
)

func newTestRouter(t *testing.T) (http.Handler, *Handlers) {
	t.Helper()

	codec, err := session.NewCodec([]byte("0123456789abcdef0123456789abcdef"), time.Hour)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	recs, err := records.NewMemory(bytes.Repeat([]byte{7}, cryptoutil.KeySize))
	if err != nil {
		t.Fatalf("records.NewMemory: %v", err)
	}

	h := &Handlers{
		Users:   userstore.NewMemory(),
		Records: recs,
		Codec:   codec,
	}

	r := chi.NewRouter()
	r.Use(session.Resolve(codec, h.SessOpts, log.Nop(), nil))
	h.Routes(r, nil)
	return r, h
}

func postJSON(t *testing.T, h http.Handler, path string, payload any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func get(t *testing.T, h http.Handler, path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func registerAndLogin(t *testing.T, h http.Handler, email string) (id string, cookie *http.Cookie) {
	t.Helper()

	creds := map[string]string{"email": email, "password": "Sup3rSecret!"}
	rec := postJSON(t, h, "/api/auth/register", creds)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register = %d: %s", rec.Code, rec.Body.String())
	}
	var acct struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &acct); err != nil {
		t.Fatalf("decode register: %v", err)
	}

	rec = postJSON(t, h, "/api/auth/login", creds)
	if rec.Code != http.StatusOK {
		t.Fatalf("login = %d: %s", rec.Code, rec.Body.String())
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.DefaultCookieName && c.Value != "" {
			return acct.ID, c
		}
	}
	t.Fatal("login issued no session cookie")
	return "", nil
}

func TestRegisterValidation(t *testing.T) {
	h, _ := newTestRouter(t)

	tests := []struct {
		name  string
		creds map[string]string
		field string
	}{
		{"bad email", map[string]string{"email": "not-an-email", "password": "Sup3rSecret!"}, "email"},
		{"weak password", map[string]string{"email": "a@example.com", "password": "abcdefgh"}, "password"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := postJSON(t, h, "/api/auth/register", tc.creds)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			var body struct {
				Error struct {
					Field string `json:"field"`
				} `json:"error"`
			}
			_ = json.Unmarshal(rec.Body.Bytes(), &body)
			if body.Error.Field != tc.field {
				t.Fatalf("field = %q, want %q", body.Error.Field, tc.field)
			}
		})
	}
}

func TestLoginWrongPassword(t *testing.T) {
	h, _ := newTestRouter(t)
	registerAndLogin(t, h, "a@example.com")

	rec := postJSON(t, h, "/api/auth/login",
		map[string]string{"email": "a@example.com", "password": "WrongPass1!"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Fatal("failed login must not set a cookie")
	}
}

func TestPatientAccess(t *testing.T) {
	h, _ := newTestRouter(t)
	aliceID, aliceCookie := registerAndLogin(t, h, "alice@example.com")
	bobID, _ := registerAndLogin(t, h, "bob@example.com")

	t.Run("anonymous gets 401", func(t *testing.T) {
		if rec := get(t, h, "/api/patients/"+aliceID); rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("owner gets own profile", func(t *testing.T) {
		rec := get(t, h, "/api/patients/"+aliceID, aliceCookie)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
		}
		var body struct {
			Email string `json:"email"`
		}
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
		if body.Email != "alice@example.com" {
			t.Fatalf("email = %q", body.Email)
		}
	})

	t.Run("other patient forbidden", func(t *testing.T) {
		if rec := get(t, h, "/api/patients/"+bobID, aliceCookie); rec.Code != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", rec.Code)
		}
	})
}

func TestRecordRoundTrip(t *testing.T) {
	h, _ := newTestRouter(t)
	id, cookie := registerAndLogin(t, h, "alice@example.com")

	rec := postJSON(t, h, "/api/patients/"+id+"/records",
		map[string]string{"filename": "lab results.pdf", "content": "glucose 92 mg/dL"},
		cookie)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload = %d: %s", rec.Code, rec.Body.String())
	}
	var stored struct {
		ID       string `json:"id"`
		Filename string `json:"filename"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &stored)
	if stored.Filename != "lab_results.pdf" {
		t.Fatalf("filename = %q, want sanitized", stored.Filename)
	}

	rec = get(t, h, "/api/patients/"+id+"/records/"+stored.ID, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("fetch = %d: %s", rec.Code, rec.Body.String())
	}
	var fetched struct {
		Content string `json:"content"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &fetched)
	if fetched.Content != "glucose 92 mg/dL" {
		t.Fatalf("content = %q", fetched.Content)
	}

	rec = get(t, h, "/api/patients/"+id+"/records", cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("list = %d", rec.Code)
	}
	var list struct {
		Records []struct {
			ID string `json:"id"`
		} `json:"records"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &list)
	if len(list.Records) != 1 || list.Records[0].ID != stored.ID {
		t.Fatalf("list = %+v", list)
	}
}

func TestUploadValidation(t *testing.T) {
	h, _ := newTestRouter(t)
	id, cookie := registerAndLogin(t, h, "alice@example.com")

	rec := postJSON(t, h, "/api/patients/"+id+"/records",
		map[string]string{"content": "no filename"}, cookie)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestLogoutClearsCookie(t *testing.T) {
	h, _ := newTestRouter(t)
	_, cookie := registerAndLogin(t, h, "alice@example.com")

	rec := postJSON(t, h, "/api/auth/logout", map[string]string{}, cookie)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout = %d, want 204", rec.Code)
	}

	cleared := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.DefaultCookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Fatal("logout did not clear the session cookie")
	}
}
