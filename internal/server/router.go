package server

import (
	"errors"
	"io"
	"net"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

type API struct {
	auth    *Auth
	store   Store
	reports *ReportService
	obs     *Observability

	maxUploadBytes int64
}

func NewAPI(cfg ServerConfig, auth *Auth, store Store, reports *ReportService, obs *Observability) *API {
	return &API{
		auth:           auth,
		store:          store,
		reports:        reports,
		obs:            obs,
		maxUploadBytes: cfg.Limits.MaxUploadBytes,
	}
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", a.handleHealthz)

	mux.HandleFunc("POST /api/v1/auth/login", a.auth.HandleLogin)
	mux.HandleFunc("POST /api/v1/auth/logout", a.auth.HandleLogout)
	mux.HandleFunc("GET /api/v1/auth/me", a.auth.HandleMe)

	mux.Handle("POST /api/v1/reports", a.auth.Require(http.HandlerFunc(a.handleUploadReport)))
	mux.Handle("GET /api/v1/reports", a.auth.Require(http.HandlerFunc(a.handleListReports)))
	mux.Handle("GET /api/v1/reports/{id}", a.auth.Require(http.HandlerFunc(a.handleGetReport)))
	mux.Handle("GET /api/v1/reports/{id}/metadata", a.auth.Require(http.HandlerFunc(a.handleReportMetadata)))
	mux.Handle("GET /api/v1/reports/{id}/attempts", a.auth.Require(http.HandlerFunc(a.handleReportAttempts)))
	mux.Handle("POST /api/v1/reports/{id}/score", a.auth.Require(http.HandlerFunc(a.handleUpdateScore)))
	mux.Handle("POST /api/v1/reports/{id}/move", a.auth.Require(http.HandlerFunc(a.handleMoveReport)))
	mux.Handle("DELETE /api/v1/reports/{id}", a.auth.Require(http.HandlerFunc(a.handleDeleteReport)))

	mux.Handle("POST /api/v1/folders", a.auth.Require(http.HandlerFunc(a.handleCreateFolder)))
	mux.Handle("GET /api/v1/folders", a.auth.Require(http.HandlerFunc(a.handleListFolders)))
	mux.Handle("PATCH /api/v1/folders/{id}", a.auth.Require(http.HandlerFunc(a.handleRenameFolder)))
	mux.Handle("DELETE /api/v1/folders/{id}", a.auth.Require(http.HandlerFunc(a.handleDeleteFolder)))

	mux.Handle("GET /api/v1/admin/metrics/overview", a.auth.RequireAdmin(http.HandlerFunc(a.handleAdminOverview)))
	mux.Handle("GET /api/v1/admin/audit", a.auth.RequireAdmin(http.HandlerFunc(a.handleAdminAudit)))

	wrapped := otelhttp.NewHandler(mux, "board-api-http")
	return withCORS(wrapped)
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":   true,
		"time": nowRFC3339(),
	})
}

func (a *API) handleUploadReport(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("board-api").Start(r.Context(), "reports.upload")
	defer span.End()
	principal, _ := PrincipalFromContext(ctx)
	ipHash, uaHash := actorHashes(r)

	if a.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, a.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "expected multipart form with a file field")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read uploaded file")
		return
	}
	span.SetAttributes(
		attribute.String("report.filename", header.Filename),
		attribute.Int("report.size_bytes", len(content)),
	)

	meta, err := a.reports.Upload(ctx, header.Filename, r.FormValue("folder_id"), string(content), principal, ipHash, uaHash)
	if err != nil {
		span.RecordError(err)
		writeError(w, serviceErrorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, meta)
}

func (a *API) handleListReports(w http.ResponseWriter, r *http.Request) {
	folderID := strings.TrimSpace(r.URL.Query().Get("folder_id"))
	writeJSON(w, http.StatusOK, map[string]any{
		"reports": a.store.ListReports(folderID, 500),
	})
}

func (a *API) handleGetReport(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	meta, ok := a.store.GetReport(id)
	if !ok {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (a *API) handleReportMetadata(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("board-api").Start(r.Context(), "reports.metadata")
	defer span.End()
	id := strings.TrimSpace(r.PathValue("id"))
	meta, err := a.reports.Metadata(ctx, id)
	if err != nil {
		span.RecordError(err)
		writeError(w, serviceErrorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (a *API) handleReportAttempts(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("board-api").Start(r.Context(), "reports.attempts")
	defer span.End()
	id := strings.TrimSpace(r.PathValue("id"))
	query := r.URL.Query()
	page := parsePage(r)
	limit := parseLimit(r)
	filter, ok := parseAttemptFilter(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "filter must be one of all, vulnerable, safe")
		return
	}
	span.SetAttributes(
		attribute.String("report.id", id),
		attribute.Int("page", page),
	)
	result, err := a.reports.Attempts(ctx, id, strings.TrimSpace(query.Get("category")), page, limit, filter)
	if err != nil {
		span.RecordError(err)
		writeError(w, serviceErrorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleUpdateScore(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("board-api").Start(r.Context(), "reports.update_score")
	defer span.End()
	principal, _ := PrincipalFromContext(ctx)
	id := strings.TrimSpace(r.PathValue("id"))
	var req ScoreUpdateRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := a.reports.UpdateScore(ctx, id, req, principal); err != nil {
		span.RecordError(err)
		writeError(w, serviceErrorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": true})
}

func (a *API) handleMoveReport(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	id := strings.TrimSpace(r.PathValue("id"))
	var req moveRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	meta, err := a.reports.Move(r.Context(), id, strings.TrimSpace(req.FolderID), principal)
	if err != nil {
		writeError(w, serviceErrorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (a *API) handleDeleteReport(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	id := strings.TrimSpace(r.PathValue("id"))
	if err := a.reports.Delete(r.Context(), id, principal); err != nil {
		writeError(w, serviceErrorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (a *API) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	var req folderRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	folder, err := a.reports.CreateFolder(r.Context(), req.Name, principal)
	if err != nil {
		writeError(w, serviceErrorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, folder)
}

func (a *API) handleListFolders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"folders": a.store.ListFolders(200),
	})
}

func (a *API) handleRenameFolder(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	var req folderRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	folder, err := a.reports.RenameFolder(r.Context(), id, req.Name)
	if err != nil {
		writeError(w, serviceErrorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, folder)
}

func (a *API) handleDeleteFolder(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if err := a.reports.DeleteFolder(r.Context(), id); err != nil {
		writeError(w, serviceErrorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (a *API) handleAdminOverview(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"storage": a.store.GetOverview(),
		"cache":   a.reports.CacheStats(),
	})
}

func (a *API) handleAdminAudit(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"audit": a.store.ListAudit(200),
	})
}

func serviceErrorStatus(err error) int {
	switch {
	case errors.Is(err, ErrReportNotFound),
		errors.Is(err, ErrFolderNotFound),
		errors.Is(err, ErrAttemptNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrInvalidReport), errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Admin-Token")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func actorHashes(r *http.Request) (string, string) {
	ip, _, _ := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if ip == "" {
		ip = strings.TrimSpace(r.RemoteAddr)
	}
	return hashString(ip), hashString(r.UserAgent())
}
