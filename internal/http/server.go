package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/JacobMintzer/Allstar-API/internal/auth"
	"github.com/JacobMintzer/Allstar-API/internal/config"
	"github.com/JacobMintzer/Allstar-API/internal/crypto"
	"github.com/JacobMintzer/Allstar-API/internal/model"
	"github.com/JacobMintzer/Allstar-API/internal/repository"
)

const reportCacheKey = "allstar:worktime-report"

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type Server struct {
	cfg      config.Config
	accounts repository.Accounts
	records  repository.Records
	redis    *redis.Client
}

// NewServer wires the handlers to their storage collaborators. The redis
// client is optional; without it the work-time report is computed on every
// request.
func NewServer(cfg config.Config, accounts repository.Accounts, records repository.Records, redisClient *redis.Client) *Server {
	return &Server{
		cfg:      cfg,
		accounts: accounts,
		records:  records,
		redis:    redisClient,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/signup", s.handleSignup)
	r.Post("/login", s.handleLogin)
	r.Get("/employee/{id}", s.handleGetEmployee)
	r.With(s.authMiddleware, s.requireAdmin).Get("/employee", s.handleListEmployees)

	r.With(s.authMiddleware).Post("/document", s.handleCreateRecord)
	r.With(s.authMiddleware).Get("/document", s.handleListRecords)
	r.With(s.authMiddleware).Get("/document/{id}", s.handleGetRecord)
	r.With(s.authMiddleware).Post("/document/{id}", s.handleUpdateRecord)
	r.With(s.authMiddleware).Post("/add-note/{id}", s.handleAddNote)
	r.With(s.authMiddleware).Delete("/document/{id}", s.handleDeleteRecord)

	r.With(s.authMiddleware, s.requireAdmin).Get("/search", s.handleSearch)
	r.With(s.authMiddleware, s.requireAdmin).Get("/get-times", s.handleGetTimes)

	return r
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	// Accepted but ignored: public signup always creates Employees.
	Role string `json:"role,omitempty"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if !emailPattern.MatchString(req.Email) {
		writeError(w, http.StatusUnprocessableEntity, "invalid_email")
		return
	}
	if len(req.Password) < 5 {
		writeError(w, http.StatusUnprocessableEntity, "weak_password")
		return
	}

	account := model.Account{
		Email:        req.Email,
		PasswordHash: crypto.HashPassword(req.Password),
		Role:         model.RoleEmployee,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.accounts.Create(r.Context(), account); err != nil {
		if errors.Is(err, repository.ErrDuplicateAccount) {
			writeError(w, http.StatusBadRequest, "duplicate_account")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	account, err := s.accounts.VerifyCredentials(r.Context(), req.Email, crypto.HashPassword(req.Password))
	if err != nil {
		writeError(w, http.StatusForbidden, "invalid_credentials")
		return
	}

	token, err := auth.NewAccessToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, s.cfg.AccessTokenTTL, auth.Claims{
		Email: account.Email,
		Role:  account.Role,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"accessToken": token})
}

type employeeSummary struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (s *Server) handleGetEmployee(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "id")
	account, err := s.accounts.Get(r.Context(), email)
	if err != nil {
		writeError(w, http.StatusNotFound, "employee_not_found")
		return
	}
	// Never the hash, only email and role.
	writeJSON(w, http.StatusOK, employeeSummary{Email: account.Email, Role: account.Role})
}

type workTimeRow struct {
	Email         string `json:"email"`
	Role          string `json:"role"`
	SecondsWorked int64  `json:"secondsWorked"`
}

func (s *Server) handleListEmployees(w http.ResponseWriter, r *http.Request) {
	if payload, ok := s.cachedReport(r.Context()); ok {
		writeRawJSON(w, http.StatusOK, payload)
		return
	}

	accounts, err := s.accounts.List(r.Context())
	if err != nil {
		writeError(w, http.StatusNotFound, "report_unavailable")
		return
	}

	rows := make([]workTimeRow, 0, len(accounts))
	for _, account := range accounts {
		seconds, err := s.records.SumSecondsByOwner(r.Context(), account.Email)
		if err != nil {
			writeError(w, http.StatusNotFound, "report_unavailable")
			return
		}
		rows = append(rows, workTimeRow{
			Email:         account.Email,
			Role:          account.Role,
			SecondsWorked: seconds,
		})
	}

	payload, err := json.Marshal(rows)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	s.storeReport(r.Context(), payload)
	writeRawJSON(w, http.StatusOK, payload)
}

func (s *Server) cachedReport(ctx context.Context) ([]byte, bool) {
	if s.redis == nil {
		return nil, false
	}
	payload, err := s.redis.Get(ctx, reportCacheKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("report cache read failed: %v", err)
		}
		return nil, false
	}
	return payload, true
}

func (s *Server) storeReport(ctx context.Context, payload []byte) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Set(ctx, reportCacheKey, payload, s.cfg.ReportCacheTTL).Err(); err != nil {
		log.Printf("report cache store failed: %v", err)
	}
}

type recordResponse struct {
	ID         string     `json:"id"`
	Email      string     `json:"email"`
	StartTime  *time.Time `json:"startTime,omitempty"`
	FinishTime *time.Time `json:"finishTime,omitempty"`
	TotalTime  int64      `json:"totalTime"`
	Notes      string     `json:"notes"`
}

func mapRecord(record model.TimeRecord) recordResponse {
	return recordResponse{
		ID:         record.ID,
		Email:      record.OwnerEmail,
		StartTime:  record.StartTime,
		FinishTime: record.FinishTime,
		TotalTime:  record.TotalTime,
		Notes:      record.Notes,
	}
}

func mapRecords(records []model.TimeRecord) []recordResponse {
	resp := make([]recordResponse, 0, len(records))
	for _, record := range records {
		resp = append(resp, mapRecord(record))
	}
	return resp
}

type createRecordRequest struct {
	FinishTime *time.Time `json:"finishTime,omitempty"`
	TotalTime  *int64     `json:"totalTime,omitempty"`
	Notes      *string    `json:"notes,omitempty"`
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	var req createRecordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	notes := ""
	if req.Notes != nil {
		notes = *req.Notes
	}
	id, err := s.records.Create(r.Context(), repository.NewTimeRecord(claims.Email, req.FinishTime, req.TotalTime, notes))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	record, err := s.records.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "document_not_found")
		return
	}
	writeJSON(w, http.StatusOK, mapRecord(record))
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	records, err := s.records.List(r.Context())
	if err != nil {
		writeError(w, http.StatusNotFound, "documents_unavailable")
		return
	}
	writeJSON(w, http.StatusOK, mapRecords(records))
}

type updateRecordRequest struct {
	FinishTime *time.Time `json:"finishTime,omitempty"`
	TotalTime  *int64     `json:"totalTime,omitempty"`
	Notes      *string    `json:"notes,omitempty"`
}

func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	var req updateRecordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	id, err := s.records.Update(r.Context(), chi.URLParam(r, "id"), repository.RecordUpdate{
		FinishTime: req.FinishTime,
		TotalTime:  req.TotalTime,
		Notes:      req.Notes,
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

type addNoteRequest struct {
	Note *string `json:"note"`
}

func (s *Server) handleAddNote(w http.ResponseWriter, r *http.Request) {
	var req addNoteRequest
	if err := decodeJSON(r, &req); err != nil || req.Note == nil {
		writeError(w, http.StatusBadRequest, "missing_note")
		return
	}

	id, err := s.records.AppendNote(r.Context(), chi.URLParam(r, "id"), *req.Note)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.records.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		// Best-effort: the caller only sees 404, the cause goes to the log.
		log.Printf("record delete failed: %v", err)
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "document_not_found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("term")
	records, err := s.records.SearchNotes(r.Context(), term)
	if err != nil {
		writeError(w, http.StatusNotFound, "documents_unavailable")
		return
	}
	writeJSON(w, http.StatusOK, mapRecords(records))
}

func (s *Server) handleGetTimes(w http.ResponseWriter, r *http.Request) {
	start, err := time.Parse(time.RFC3339, r.URL.Query().Get("startTime"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_dates")
		return
	}
	end, err := time.Parse(time.RFC3339, r.URL.Query().Get("finishTime"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_dates")
		return
	}
	if !end.After(start) {
		writeError(w, http.StatusUnprocessableEntity, "invalid_range")
		return
	}

	records, err := s.records.OverlapRange(r.Context(), start, end)
	if err != nil {
		writeError(w, http.StatusNotFound, "documents_unavailable")
		return
	}
	writeJSON(w, http.StatusOK, mapRecords(records))
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}

		claims, err := auth.ParseToken(s.cfg.JWTSecret, token)
		if err != nil {
			writeError(w, http.StatusForbidden, "invalid_token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFromContext(r.Context())
		if claims == nil || claims.Role != model.RoleAdmin {
			writeError(w, http.StatusUnauthorized, "admin_only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type claimsKey struct{}

func claimsFromContext(ctx context.Context) *auth.Claims {
	value := ctx.Value(claimsKey{})
	claims, _ := value.(*auth.Claims)
	return claims
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeRawJSON(w http.ResponseWriter, status int, payload []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
