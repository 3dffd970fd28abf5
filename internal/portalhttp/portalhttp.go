// Package portalhttp implements the patient portal's API routes. The
// security pipeline has already run by the time these handlers execute:
// bodies are bounded and sanitized, the session is resolved, and the
// request is inside the rate budget.
package portalhttp

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meridianhealth/patient-portal/internal/audit"
	"github.com/meridianhealth/patient-portal/internal/authz"
	"github.com/meridianhealth/patient-portal/internal/httpx"
	"github.com/meridianhealth/patient-portal/internal/log"
	"github.com/meridianhealth/patient-portal/internal/records"
	"github.com/meridianhealth/patient-portal/internal/session"
	"github.com/meridianhealth/patient-portal/internal/userstore"
	"github.com/meridianhealth/patient-portal/internal/validate"
)

// Hooks are optional metric callbacks.
type Hooks struct {
	OnSessionIssued func()
	OnLoginFailure  func()
}

type Handlers struct {
	Users    userstore.Store
	Records  records.Store
	Codec    *session.Codec
	SessOpts session.Options
	Hooks    Hooks
}

// Routes mounts the portal API onto r. The caller applies the auth rate
// limiter to the login route.
func (h *Handlers) Routes(r chi.Router, loginLimiter func(http.Handler) http.Handler) {
	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			if loginLimiter != nil {
				r.With(loginLimiter).Post("/login", h.login)
			} else {
				r.Post("/login", h.login)
			}
			r.Post("/register", h.register)
			r.Post("/logout", h.logout)
		})

		r.Route("/patients/{patientID}", func(r chi.Router) {
			r.Use(authz.RequireAuth, authz.RequireOwnerOrAdmin("patientID"))
			r.Get("/", h.getPatient)
			r.Get("/records", h.listRecords)
			r.Post("/records", h.uploadRecord)
			r.Get("/records/{recordID}", h.getRecord)
		})
	})
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (h *Handlers) register(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := decodeJSON(r, &creds); err != nil {
		httpx.Write(w, httpx.Invalid("body", "malformed request body"))
		return
	}
	if !validate.Email(creds.Email) {
		httpx.Write(w, httpx.Invalid("email", "invalid email address"))
		return
	}
	if !validate.PasswordStrength(creds.Password) {
		httpx.Write(w, httpx.Invalid("password",
			"password needs at least 8 characters with upper, lower, digit, and special"))
		return
	}

	acct, err := h.Users.Create(r.Context(), creds.Email, creds.Password, authz.RolePatient)
	if err != nil {
		if errors.Is(err, userstore.ErrDuplicate) {
			httpx.Write(w, httpx.Invalid("email", "email already registered"))
			return
		}
		log.FromContext(r.Context()).Error(r.Context(), err, "register account")
		httpx.Write(w, httpx.Internal())
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"id":    acct.ID,
		"email": acct.Email,
		"role":  acct.Role,
	})
}

func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := decodeJSON(r, &creds); err != nil {
		httpx.Write(w, httpx.Invalid("body", "malformed request body"))
		return
	}

	acct, err := h.Users.Authenticate(r.Context(), creds.Email, creds.Password)
	if err != nil {
		if h.Hooks.OnLoginFailure != nil {
			h.Hooks.OnLoginFailure()
		}
		// same response for unknown email and wrong password
		httpx.Write(w, &httpx.Error{
			Kind:    httpx.KindAuthRequired,
			Status:  http.StatusUnauthorized,
			Message: "invalid email or password",
		})
		return
	}

	id := authz.Identity{UserID: acct.ID, Role: acct.Role}
	token, err := h.Codec.Issue(id)
	if err != nil {
		log.FromContext(r.Context()).Error(r.Context(), err, "issue session")
		httpx.Write(w, httpx.Internal())
		return
	}

	session.SetCookie(w, h.SessOpts, token, int(h.Codec.TTL().Seconds()))
	audit.ObserveIdentity(r.Context(), id.UserID, id.Role)
	if h.Hooks.OnSessionIssued != nil {
		h.Hooks.OnSessionIssued()
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"id":    acct.ID,
		"email": acct.Email,
		"role":  acct.Role,
	})
}

func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	session.ClearCookie(w, h.SessOpts)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) getPatient(w http.ResponseWriter, r *http.Request) {
	patientID := chi.URLParam(r, "patientID")

	acct, err := h.Users.Get(r.Context(), patientID)
	if err != nil {
		if errors.Is(err, userstore.ErrNotFound) {
			httpx.Write(w, httpx.NotFound())
			return
		}
		log.FromContext(r.Context()).Error(r.Context(), err, "fetch patient")
		httpx.Write(w, httpx.Internal())
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"id":    acct.ID,
		"email": acct.Email,
		"role":  acct.Role,
	})
}

func (h *Handlers) listRecords(w http.ResponseWriter, r *http.Request) {
	patientID := chi.URLParam(r, "patientID")

	rs, err := h.Records.List(r.Context(), patientID)
	if err != nil {
		log.FromContext(r.Context()).Error(r.Context(), err, "list records")
		httpx.Write(w, httpx.Internal())
		return
	}
	if rs == nil {
		rs = []records.Record{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"records": rs})
}

type uploadRequest struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

func (h *Handlers) uploadRecord(w http.ResponseWriter, r *http.Request) {
	patientID := chi.URLParam(r, "patientID")

	var up uploadRequest
	if err := decodeJSON(r, &up); err != nil {
		httpx.Write(w, httpx.Invalid("body", "malformed request body"))
		return
	}
	if up.Filename == "" {
		httpx.Write(w, httpx.Invalid("filename", "filename is required"))
		return
	}
	if up.Content == "" {
		httpx.Write(w, httpx.Invalid("content", "content is required"))
		return
	}

	rec, err := h.Records.Save(r.Context(), patientID, up.Filename, []byte(up.Content))
	if err != nil {
		log.FromContext(r.Context()).Error(r.Context(), err, "save record")
		httpx.Write(w, httpx.Internal())
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, rec)
}

func (h *Handlers) getRecord(w http.ResponseWriter, r *http.Request) {
	patientID := chi.URLParam(r, "patientID")
	recordID := chi.URLParam(r, "recordID")

	rec, content, err := h.Records.Open(r.Context(), patientID, recordID)
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			httpx.Write(w, httpx.NotFound())
			return
		}
		log.FromContext(r.Context()).Error(r.Context(), err, "open record")
		httpx.Write(w, httpx.Internal())
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"record":  rec,
		"content": string(content),
	})
}
