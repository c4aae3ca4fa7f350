package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"wayfare/api/internal/auth"
	"wayfare/api/internal/authpw"
	"wayfare/api/internal/export"
	"wayfare/api/internal/ratelimit"
	"wayfare/api/internal/search"
	"wayfare/api/internal/store"
)

type HTTPServer struct {
	service      *Service
	corsOrigin   string
	cookieName   string
	cookieSecure bool
	debugErrors  bool
	limiter      ratelimit.Limiter
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{
		service:      service,
		corsOrigin:   corsOrigin,
		cookieName:   service.cfg.CookieName,
		cookieSecure: service.cfg.CookieSecure,
		debugErrors:  service.cfg.DebugErrors,
	}
}

// SetLimiter installs a rate limiter applied to every request.
func (s *HTTPServer) SetLimiter(limiter ratelimit.Limiter) {
	s.limiter = limiter
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		if checked, err := s.service.PingSessions(ctx); checked {
			if err != nil {
				status = "not_ready"
				statusCode = http.StatusServiceUnavailable
				checks["sessions"] = map[string]any{
					"status": "error",
					"error":  err.Error(),
				}
			} else {
				checks["sessions"] = map[string]any{"status": "ok"}
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	// Auth routes (no session required)
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signup" {
		s.handleSignUp(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signin" {
		s.handleSignIn(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/logout" {
		s.handleLogout(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		session, ok := s.resolveIdentity(r)
		if !ok {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userId": nil})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"userId":        session.UserID,
			"email":         session.Email,
			"displayName":   session.DisplayName,
		})
		return
	}

	// Everything below needs a resolved identity.
	session, ok := s.requireIdentity(w, r)
	if !ok {
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch parts[1] {
	case "trips":
		s.handleTrips(w, r, session, parts)
	case "checklists":
		s.handleChecklists(w, r, session, parts)
	case "checklist-items":
		s.handleChecklistItems(w, r, session, parts)
	case "attachments":
		s.handleAttachmentDownload(w, r, session, parts)
	case "search":
		s.handleSearch(w, r, session)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// Trip routes: /api/trips[/{tripId}[/checklists|participants|attachments|export]]

func (s *HTTPServer) handleTrips(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 2 {
		switch r.Method {
		case http.MethodGet:
			trips, err := s.service.ListTrips(r.Context(), session.UserID)
			if err != nil {
				s.writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "trips": tripsJSON(trips)})
		case http.MethodPost:
			var input CreateTripInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			trip, err := s.service.CreateTrip(r.Context(), session.UserID, input)
			if err != nil {
				s.writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"success": true, "trip": tripJSON(trip)})
		default:
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		}
		return
	}

	tripID := parts[2]

	if len(parts) == 3 && r.Method == http.MethodGet {
		trip, err := s.service.GetTrip(r.Context(), session.UserID, tripID)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "trip": tripJSON(trip)})
		return
	}

	if len(parts) == 4 && parts[3] == "checklists" {
		switch r.Method {
		case http.MethodGet:
			checklists, err := s.service.ListChecklists(r.Context(), session.UserID, tripID)
			if err != nil {
				s.writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "checklists": checklistsJSON(checklists)})
		case http.MethodPost:
			var input CreateChecklistInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			checklist, err := s.service.CreateChecklist(r.Context(), session.UserID, tripID, input)
			if err != nil {
				s.writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "checklist": checklistJSON(checklist)})
		default:
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		}
		return
	}

	if len(parts) == 4 && parts[3] == "participants" {
		switch r.Method {
		case http.MethodGet:
			participants, err := s.service.ListParticipants(r.Context(), session.UserID, tripID)
			if err != nil {
				s.writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "participants": participantsJSON(participants)})
		case http.MethodPost:
			var body struct {
				Email string `json:"email"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			if err := s.service.InviteParticipant(r.Context(), session.UserID, tripID, body.Email); err != nil {
				s.writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"success": true})
		default:
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		}
		return
	}

	if len(parts) == 5 && parts[3] == "participants" && parts[4] == "accept" && r.Method == http.MethodPost {
		if err := s.service.AcceptInvite(r.Context(), session.UserID, tripID); err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
		return
	}

	if len(parts) == 4 && parts[3] == "attachments" {
		switch r.Method {
		case http.MethodGet:
			attachments, err := s.service.ListAttachments(r.Context(), session.UserID, tripID)
			if err != nil {
				s.writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "attachments": attachmentsJSON(attachments)})
		case http.MethodPost:
			s.handleAttachmentUpload(w, r, session, tripID)
		default:
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		}
		return
	}

	if len(parts) == 4 && parts[3] == "export" && r.Method == http.MethodPost {
		var body struct {
			Format string `json:"format"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		format := export.Format(strings.TrimSpace(body.Format))
		if format == "" {
			format = export.FormatPDF
		}
		result, err := s.service.ExportTrip(r.Context(), session.UserID, tripID, format)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		w.Header().Set("Content-Type", result.MimeType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Data)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// Checklist routes: /api/checklists/{checklistId}[/items]

func (s *HTTPServer) handleChecklists(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) < 3 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	checklistID := parts[2]

	if len(parts) == 3 {
		switch r.Method {
		case http.MethodPut:
			var body struct {
				Name string `json:"name"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			checklist, err := s.service.RenameChecklist(r.Context(), session.UserID, checklistID, body.Name)
			if err != nil {
				s.writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "checklist": checklistJSON(checklist)})
		case http.MethodDelete:
			if err := s.service.DeleteChecklist(r.Context(), session.UserID, checklistID); err != nil {
				s.writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"success": true})
		default:
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		}
		return
	}

	if len(parts) == 4 && parts[3] == "items" && r.Method == http.MethodPost {
		var body struct {
			Content string `json:"content"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		item, err := s.service.AddItem(r.Context(), session.UserID, checklistID, body.Content)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "item": itemJSON(item)})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// Item routes: /api/checklist-items/reorder and /api/checklist-items/{itemId}

func (s *HTTPServer) handleChecklistItems(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) != 3 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	// "reorder" is a route segment, not an item ID, and must dispatch first.
	if parts[2] == "reorder" && r.Method == http.MethodPut {
		var input ReorderInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		items, err := s.service.ReorderItems(r.Context(), session.UserID, input)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "items": itemsJSON(items)})
		return
	}

	itemID := parts[2]
	switch r.Method {
	case http.MethodPut:
		var input UpdateItemInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		item, err := s.service.UpdateItem(r.Context(), session.UserID, itemID, input)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "item": itemJSON(item)})
	case http.MethodDelete:
		if err := s.service.DeleteItem(r.Context(), session.UserID, itemID); err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// Attachment download: /api/attachments/{attachmentId}

func (s *HTTPServer) handleAttachmentDownload(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) != 3 || r.Method != http.MethodGet {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	attachment, body, err := s.service.OpenAttachment(r.Context(), session.UserID, parts[2])
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	defer body.Close()

	contentType := attachment.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", attachment.FileName))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, body)
}

func (s *HTTPServer) handleAttachmentUpload(w http.ResponseWriter, r *http.Request, session Session, tripID string) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "multipart form expected", nil)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "file field is required", nil)
		return
	}
	defer file.Close()

	attachment, err := s.service.UploadAttachment(r.Context(), session.UserID, tripID,
		header.Filename, header.Header.Get("Content-Type"), file, header.Size)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "attachment": attachmentJSON(attachment)})
}

// Search: /api/search?q=...&type=...&tripId=...&limit=...&offset=...

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, session Session) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	query := search.Query{
		Text:         strings.TrimSpace(r.URL.Query().Get("q")),
		FilterTripID: strings.TrimSpace(r.URL.Query().Get("tripId")),
	}
	switch r.URL.Query().Get("type") {
	case "trip":
		query.FilterType = search.ResultTrip
	case "item":
		query.FilterType = search.ResultItem
	}
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		query.Limit = limit
	}
	if offset, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil {
		query.Offset = offset
	}

	if query.Text == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "q is required", nil)
		return
	}

	resp, err := s.service.Search(r.Context(), session.UserID, query)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"results": resp.Results,
		"total":   resp.Total,
		"query":   resp.Query,
	})
}

// Auth handlers

func (s *HTTPServer) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	session, err := s.service.SignUp(r.Context(), authpw.SignUpRequest{
		Email:       body.Email,
		Password:    body.Password,
		DisplayName: body.DisplayName,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.setSessionCookie(w, session)
	writeJSON(w, http.StatusCreated, sessionJSON(session))
}

func (s *HTTPServer) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	session, err := s.service.SignIn(r.Context(), authpw.SignInRequest{
		Email:    body.Email,
		Password: body.Password,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.setSessionCookie(w, session)
	writeJSON(w, http.StatusOK, sessionJSON(session))
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(s.cookieName); err == nil && cookie.Value != "" {
		_ = s.service.Logout(r.Context(), cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *HTTPServer) setSessionCookie(w http.ResponseWriter, session Session) {
	if session.SessionID == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    session.SessionID,
		Path:     "/",
		MaxAge:   int(s.service.cfg.SessionTTL / time.Second),
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Identity resolution. The two auth paths are a small ordered strategy list
// returning the first hit, so adding a third method later is a one-line
// change here.

type identityStrategy struct {
	name    string
	resolve func(r *http.Request) (Session, error)
}

func (s *HTTPServer) identityStrategies() []identityStrategy {
	return []identityStrategy{
		{name: "cookie", resolve: s.resolveCookie},
		{name: "bearer", resolve: s.resolveBearer},
	}
}

func (s *HTTPServer) resolveCookie(r *http.Request) (Session, error) {
	cookie, err := r.Cookie(s.cookieName)
	if err != nil || cookie.Value == "" {
		return Session{}, auth.ErrInvalidToken
	}
	return s.service.SessionFromCookie(r.Context(), cookie.Value)
}

func (s *HTTPServer) resolveBearer(r *http.Request) (Session, error) {
	token := bearerToken(r)
	if token == "" {
		return Session{}, auth.ErrInvalidToken
	}
	return s.service.SessionFromToken(r.Context(), token)
}

func (s *HTTPServer) resolveIdentity(r *http.Request) (Session, bool) {
	for _, strategy := range s.identityStrategies() {
		session, err := strategy.resolve(r)
		if err == nil && session.UserID != "" {
			return session, true
		}
	}
	return Session{}, false
}

func (s *HTTPServer) requireIdentity(w http.ResponseWriter, r *http.Request) (Session, bool) {
	session, ok := s.resolveIdentity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	return session, true
}

// Middleware

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		if s.limiter != nil && r.Method != http.MethodOptions {
			key := clientIP(r) + " " + r.Method + " " + r.URL.Path
			allowed, err := s.limiter.Allow(ctx, key)
			if err != nil {
				log.Printf("rate limiter error, allowing request: %v", err)
			} else if !allowed {
				writeError(writer, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests", nil)
				s.logRequest(requestID, r, writer.status, started)
				return
			}
		}

		next.ServeHTTP(writer, r)
		s.logRequest(requestID, r, writer.status, started)
	})
}

func (s *HTTPServer) logRequest(requestID string, r *http.Request, status int, started time.Time) {
	log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
		requestID,
		r.Method,
		r.URL.Path,
		status,
		time.Since(started).Milliseconds(),
	)
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if first, _, found := strings.Cut(forwarded, ","); found || first != "" {
			return strings.TrimSpace(first)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Access-Control-Allow-Credentials", "true")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

// writeServiceError maps a service error to HTTP. Raw error text is attached
// as details only when debug errors are enabled, so driver messages never
// reach clients in production.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if details == nil && s.debugErrors && status >= http.StatusInternalServerError {
		details = err.Error()
	}
	writeError(w, status, code, message, details)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		// An absent body decodes as io.EOF; leave the target zero-valued and
		// let the service layer validate it.
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

// JSON shapes

func sessionJSON(session Session) map[string]any {
	return map[string]any{
		"success":     true,
		"accessToken": session.Token,
		"userId":      session.UserID,
		"email":       session.Email,
		"displayName": session.DisplayName,
		"expiresAt":   session.ExpiresAt.Unix(),
	}
}

func tripJSON(t store.Trip) map[string]any {
	return map[string]any{
		"id":          t.ID,
		"ownerId":     t.OwnerID,
		"name":        t.Name,
		"destination": t.Destination,
		"startsOn":    t.StartsOn,
		"endsOn":      t.EndsOn,
		"createdAt":   t.CreatedAt,
		"updatedAt":   t.UpdatedAt,
	}
}

func tripsJSON(trips []store.Trip) []map[string]any {
	out := make([]map[string]any, 0, len(trips))
	for _, t := range trips {
		out = append(out, tripJSON(t))
	}
	return out
}

func checklistJSON(c store.Checklist) map[string]any {
	var ownerID any
	if c.OwnerID != nil {
		ownerID = *c.OwnerID
	}
	return map[string]any{
		"id":        c.ID,
		"tripId":    c.TripID,
		"ownerId":   ownerID,
		"name":      c.Name,
		"type":      c.Type,
		"items":     itemsJSON(c.Items),
		"createdAt": c.CreatedAt,
		"updatedAt": c.UpdatedAt,
	}
}

func checklistsJSON(checklists []store.Checklist) []map[string]any {
	out := make([]map[string]any, 0, len(checklists))
	for _, c := range checklists {
		out = append(out, checklistJSON(c))
	}
	return out
}

func itemJSON(i store.ChecklistItem) map[string]any {
	return map[string]any{
		"id":          i.ID,
		"checklistId": i.ChecklistID,
		"content":     i.Content,
		"isChecked":   i.IsChecked,
		"itemOrder":   i.ItemOrder,
		"createdAt":   i.CreatedAt,
		"updatedAt":   i.UpdatedAt,
	}
}

func itemsJSON(items []store.ChecklistItem) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, i := range items {
		out = append(out, itemJSON(i))
	}
	return out
}

func participantsJSON(participants []store.TripParticipant) []map[string]any {
	out := make([]map[string]any, 0, len(participants))
	for _, p := range participants {
		out = append(out, map[string]any{
			"userId":      p.UserID,
			"email":       p.Email,
			"displayName": p.DisplayName,
			"status":      p.Status,
			"invitedAt":   p.InvitedAt,
			"acceptedAt":  p.AcceptedAt,
		})
	}
	return out
}

func attachmentJSON(a store.TripAttachment) map[string]any {
	return map[string]any{
		"id":          a.ID,
		"tripId":      a.TripID,
		"fileName":    a.FileName,
		"contentType": a.ContentType,
		"sizeBytes":   a.SizeBytes,
		"uploadedBy":  a.UploadedBy,
		"createdAt":   a.CreatedAt,
	}
}

func attachmentsJSON(attachments []store.TripAttachment) []map[string]any {
	out := make([]map[string]any, 0, len(attachments))
	for _, a := range attachments {
		out = append(out, attachmentJSON(a))
	}
	return out
}
