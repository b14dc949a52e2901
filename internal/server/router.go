package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/praxislabs/patientdesk/backend/internal/auth"
	"github.com/praxislabs/patientdesk/backend/internal/cache"
	"github.com/praxislabs/patientdesk/backend/internal/labels"
	"github.com/praxislabs/patientdesk/backend/internal/notes"
	"github.com/praxislabs/patientdesk/backend/internal/signatures"
	"github.com/praxislabs/patientdesk/backend/internal/submissions"
	"go.uber.org/zap"
)

const staffIDContextKey = "patientdesk_staff_id"

// The label union has no natural key; the cache stores it under this one.
const labelListCacheKey = "all"

var (
	errMissingSessionValidator   = errors.New("session validator dependency required")
	errMissingTokenManager       = errors.New("token manager dependency required")
	errMissingStaffResolver      = errors.New("staff resolver dependency required")
	errMissingSubmissionsService = errors.New("submissions service dependency required")
	errMissingNotesStore         = errors.New("notes store dependency required")
	errMissingLabelsService      = errors.New("labels service dependency required")
	errMissingSignaturesService  = errors.New("signatures service dependency required")
	errInvalidAuthorization      = errors.New("authorization header missing or invalid")
)

// SessionValidator checks the hosted-login cookie on incoming requests.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

// BackendTokenManager issues and validates the dashboard's bearer tokens.
type BackendTokenManager interface {
	IssueBackendToken(ctx context.Context, claims auth.SessionClaims) (string, int64, error)
	ValidateToken(token string) (string, error)
}

// StaffResolver maps validated session claims to a canonical staff id.
type StaffResolver interface {
	ResolveStaffID(claims auth.SessionClaims) (string, error)
}

type Dependencies struct {
	SessionValidator SessionValidator
	TokenManager     BackendTokenManager
	StaffResolver    StaffResolver
	Submissions      *submissions.Service
	Notes            *notes.Store
	Labels           *labels.Service
	Signatures       *signatures.Service
	Logger           *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.SessionValidator == nil {
		return nil, errMissingSessionValidator
	}
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.StaffResolver == nil {
		return nil, errMissingStaffResolver
	}
	if deps.Submissions == nil {
		return nil, errMissingSubmissionsService
	}
	if deps.Notes == nil {
		return nil, errMissingNotesStore
	}
	if deps.Labels == nil {
		return nil, errMissingLabelsService
	}
	if deps.Signatures == nil {
		return nil, errMissingSignaturesService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	handler := &httpHandler{
		sessions:    deps.SessionValidator,
		tokens:      deps.TokenManager,
		staff:       deps.StaffResolver,
		submissions: deps.Submissions,
		notes:       deps.Notes,
		labels:      deps.Labels,
		signatures:  deps.Signatures,
		logger:      logger,
	}
	handler.labelList = cache.New(func(ctx context.Context, _ string) ([]labels.Label, error) {
		return deps.Labels.ListAll(ctx)
	})
	handler.contactLabels = cache.New(func(ctx context.Context, email string) ([]string, error) {
		return deps.Labels.ByEmail(ctx, email)
	})

	router.GET("/healthz", handler.handleHealth)
	router.POST("/auth/login", handler.handleLogin)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/submissions", handler.handleListSubmissions)
	protected.GET("/submissions/:id", handler.handleGetSubmission)
	protected.PUT("/submissions/:id", handler.handleEditSubmission)
	protected.DELETE("/submissions/:id", handler.handleDeleteSubmission)
	protected.GET("/submissions/:id/note", handler.handleGetNote)
	protected.POST("/submissions/:id/note", handler.handleSaveNote)
	protected.GET("/submissions/:id/labels", handler.handleLegacyLabels)
	protected.GET("/labels", handler.handleListLabels)
	protected.POST("/labels", handler.handleCreateLabel)
	protected.POST("/labels/assign", handler.handleAssignLabels)
	protected.POST("/labels/remove", handler.handleRemoveLabels)
	protected.GET("/labels/by-email", handler.handleLabelsByEmail)
	protected.POST("/labels/batch", handler.handleBatchLabels)
	protected.GET("/signatures/:fileId/url", handler.handleSignatureURL)
	protected.POST("/signatures/fetch", handler.handleSignatureFetch)
	protected.GET("/signatures/cache/:submissionId", handler.handleSignatureCache)
	protected.GET("/notes", handler.handleListNotes)

	return router, nil
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	})
}

type httpHandler struct {
	sessions      SessionValidator
	tokens        BackendTokenManager
	staff         StaffResolver
	submissions   *submissions.Service
	notes         *notes.Store
	labels        *labels.Service
	signatures    *signatures.Service
	labelList     *cache.Cache[string, []labels.Label]
	contactLabels *cache.Cache[string, []string]
	logger        *zap.Logger
}

// Every endpoint answers with this envelope.
type responseEnvelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func respondData(c *gin.Context, status int, data interface{}) {
	c.JSON(status, responseEnvelope{Success: true, Data: data})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, responseEnvelope{Success: false, Error: message})
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	respondData(c, http.StatusOK, gin.H{"status": "ok"})
}

type loginResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
	StaffID     string `json:"staff_id"`
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		h.logger.Warn("session validation failed", zap.Error(err))
		respondError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	staffID, err := h.staff.ResolveStaffID(claims)
	if err != nil {
		h.logger.Error("staff identity resolution failed", zap.Error(err))
		respondError(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	claims.Subject = staffID

	token, expiresIn, err := h.tokens.IssueBackendToken(c.Request.Context(), claims)
	if err != nil {
		h.logger.Error("failed to issue backend token", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "token_issue_failed")
		return
	}

	respondData(c, http.StatusOK, loginResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
		StaffID:     staffID,
	})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, responseEnvelope{Success: false, Error: errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, responseEnvelope{Success: false, Error: errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		// Expired tokens are routine; anything else deserves attention.
		if errors.Is(err, jwt.ErrTokenExpired) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, responseEnvelope{Success: false, Error: "unauthorized"})
		return
	}
	c.Set(staffIDContextKey, subject)
	c.Next()
}

func (h *httpHandler) handleListSubmissions(c *gin.Context) {
	listed, err := h.submissions.List(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusBadGateway, "submissions_unavailable")
		return
	}
	respondData(c, http.StatusOK, listed)
}

func (h *httpHandler) handleGetSubmission(c *gin.Context) {
	submission, err := h.submissions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, submissions.ErrMissingSubmissionID) {
			respondError(c, http.StatusBadRequest, "invalid_request")
			return
		}
		respondError(c, http.StatusBadGateway, "submission_unavailable")
		return
	}
	submission.Fields = h.submissions.DisplayFields(submission)
	respondData(c, http.StatusOK, submission)
}

type editSubmissionPayload struct {
	Fields map[string]interface{} `json:"fields"`
}

func (h *httpHandler) handleEditSubmission(c *gin.Context) {
	var request editSubmissionPayload
	if err := c.ShouldBindJSON(&request); err != nil || len(request.Fields) == 0 {
		respondError(c, http.StatusBadRequest, "invalid_request")
		return
	}
	updated, err := h.submissions.Edit(c.Request.Context(), c.Param("id"), request.Fields)
	if err != nil {
		switch {
		case errors.Is(err, submissions.ErrMissingSubmissionID):
			respondError(c, http.StatusBadRequest, "invalid_request")
		case errors.Is(err, submissions.ErrMissingFormID), errors.Is(err, submissions.ErrMissingRevision):
			respondError(c, http.StatusUnprocessableEntity, "submission_incomplete")
		default:
			respondError(c, http.StatusBadGateway, "submission_update_failed")
		}
		return
	}
	respondData(c, http.StatusOK, updated)
}

func (h *httpHandler) handleDeleteSubmission(c *gin.Context) {
	permanent := c.Query("permanent") == "true"
	err := h.submissions.Delete(c.Request.Context(), c.Param("id"), permanent)
	if err != nil {
		if errors.Is(err, submissions.ErrMissingSubmissionID) {
			respondError(c, http.StatusBadRequest, "invalid_request")
			return
		}
		respondError(c, http.StatusBadGateway, "submission_delete_failed")
		return
	}
	respondData(c, http.StatusOK, gin.H{"deleted": true, "permanent": permanent})
}

func (h *httpHandler) handleGetNote(c *gin.Context) {
	note, err := h.notes.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, notes.ErrMissingSubmissionID) {
			respondError(c, http.StatusBadRequest, "invalid_request")
			return
		}
		respondError(c, http.StatusBadGateway, "note_unavailable")
		return
	}
	respondData(c, http.StatusOK, note)
}

type saveNotePayload struct {
	Email  string `json:"email"`
	Name   string `json:"name"`
	Text   string `json:"notes"`
	NoteID string `json:"noteId"`
}

func (h *httpHandler) handleSaveNote(c *gin.Context) {
	var request saveNotePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request")
		return
	}
	note, err := h.notes.Save(c.Request.Context(), notes.SaveRequest{
		SubmissionID: c.Param("id"),
		Email:        request.Email,
		Name:         request.Name,
		Text:         request.Text,
		NoteID:       request.NoteID,
	})
	if err != nil {
		if errors.Is(err, notes.ErrMissingSubmissionID) {
			respondError(c, http.StatusBadRequest, "invalid_request")
			return
		}
		respondError(c, http.StatusBadGateway, "note_save_failed")
		return
	}
	h.labelList.Invalidate(labelListCacheKey)
	respondData(c, http.StatusOK, note)
}

func (h *httpHandler) handleLegacyLabels(c *gin.Context) {
	tags, err := h.labels.LegacyBySubmission(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, labels.ErrSubmissionIDRequired) {
			respondError(c, http.StatusBadRequest, "invalid_request")
			return
		}
		respondError(c, http.StatusBadGateway, "labels_unavailable")
		return
	}
	respondData(c, http.StatusOK, tags)
}

func (h *httpHandler) handleListLabels(c *gin.Context) {
	if c.Query("reload") == "true" {
		h.labelList.Invalidate(labelListCacheKey)
	}
	listed, err := h.labelList.Get(c.Request.Context(), labelListCacheKey)
	if err != nil {
		respondError(c, http.StatusBadGateway, "labels_unavailable")
		return
	}
	respondData(c, http.StatusOK, listed)
}

type createLabelPayload struct {
	DisplayName string `json:"displayName"`
}

func (h *httpHandler) handleCreateLabel(c *gin.Context) {
	var request createLabelPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request")
		return
	}
	label, err := h.labels.Create(request.DisplayName)
	if err != nil {
		respondError(c, http.StatusBadRequest, "label_name_required")
		return
	}
	respondData(c, http.StatusOK, label)
}

type assignLabelsPayload struct {
	SubmissionID string   `json:"submissionId"`
	Email        string   `json:"email"`
	Name         string   `json:"name"`
	Labels       []string `json:"labels"`
}

func (h *httpHandler) handleAssignLabels(c *gin.Context) {
	var request assignLabelsPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request")
		return
	}
	record, err := h.labels.Assign(c.Request.Context(), labels.AssignRequest{
		SubmissionID: request.SubmissionID,
		Email:        request.Email,
		Name:         request.Name,
		Tags:         request.Labels,
	})
	if err != nil {
		if errors.Is(err, labels.ErrEmailRequired) {
			respondError(c, http.StatusBadRequest, "email_required")
			return
		}
		respondError(c, http.StatusBadGateway, "label_assign_failed")
		return
	}
	h.labelList.Invalidate(labelListCacheKey)
	h.contactLabels.Put(record.Email, record.LabelTags)
	respondData(c, http.StatusOK, record)
}

type removeLabelsPayload struct {
	SubmissionID string   `json:"submissionId"`
	Email        string   `json:"email"`
	Name         string   `json:"name"`
	Labels       []string `json:"labels"`
}

func (h *httpHandler) handleRemoveLabels(c *gin.Context) {
	var request removeLabelsPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request")
		return
	}
	note, err := h.labels.RemoveFromSubmission(c.Request.Context(), labels.RemoveRequest{
		SubmissionID: request.SubmissionID,
		Email:        request.Email,
		Name:         request.Name,
		Tags:         request.Labels,
	})
	if err != nil {
		if errors.Is(err, labels.ErrSubmissionIDRequired) || errors.Is(err, labels.ErrNoTagsToRemove) {
			respondError(c, http.StatusBadRequest, "invalid_request")
			return
		}
		respondError(c, http.StatusBadGateway, "label_remove_failed")
		return
	}
	h.labelList.Invalidate(labelListCacheKey)
	respondData(c, http.StatusOK, note)
}

func (h *httpHandler) handleLabelsByEmail(c *gin.Context) {
	email := strings.TrimSpace(c.Query("email"))
	if email == "" {
		respondData(c, http.StatusOK, []string{})
		return
	}
	if c.Query("reload") == "true" {
		h.contactLabels.Invalidate(email)
	}
	tags, err := h.contactLabels.Get(c.Request.Context(), email)
	if err != nil {
		respondError(c, http.StatusBadGateway, "labels_unavailable")
		return
	}
	respondData(c, http.StatusOK, tags)
}

type batchLabelsPayload struct {
	Emails []string `json:"emails"`
}

func (h *httpHandler) handleBatchLabels(c *gin.Context) {
	var request batchLabelsPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request")
		return
	}
	resolved, err := h.labels.BatchByEmails(c.Request.Context(), request.Emails)
	if err != nil {
		respondError(c, http.StatusBadGateway, "labels_unavailable")
		return
	}
	respondData(c, http.StatusOK, resolved)
}

func (h *httpHandler) handleSignatureURL(c *gin.Context) {
	url, err := h.signatures.DownloadURL(c.Request.Context(), c.Param("fileId"))
	if err != nil {
		if errors.Is(err, signatures.ErrMissingFileID) {
			respondError(c, http.StatusBadRequest, "invalid_request")
			return
		}
		respondError(c, http.StatusBadGateway, "signature_url_failed")
		return
	}
	respondData(c, http.StatusOK, gin.H{"url": url})
}

type signatureFetchPayload struct {
	ImageURL     string `json:"imageUrl"`
	SubmissionID string `json:"submissionId"`
}

func (h *httpHandler) handleSignatureFetch(c *gin.Context) {
	var request signatureFetchPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request")
		return
	}
	dataURL, err := h.signatures.FetchAsDataURL(c.Request.Context(), request.ImageURL, request.SubmissionID)
	if err != nil {
		if errors.Is(err, signatures.ErrMissingImageURL) {
			respondError(c, http.StatusBadRequest, "invalid_request")
			return
		}
		respondError(c, http.StatusBadGateway, "signature_fetch_failed")
		return
	}
	respondData(c, http.StatusOK, gin.H{"dataUrl": dataURL})
}

func (h *httpHandler) handleSignatureCache(c *gin.Context) {
	cached, err := h.signatures.Cached(c.Request.Context(), c.Param("submissionId"))
	if err != nil {
		switch {
		case errors.Is(err, signatures.ErrMissingSubmissionID):
			respondError(c, http.StatusBadRequest, "invalid_request")
		case errors.Is(err, signatures.ErrNotCached):
			respondError(c, http.StatusNotFound, "not_cached")
		default:
			respondError(c, http.StatusBadGateway, "signature_cache_unavailable")
		}
		return
	}
	respondData(c, http.StatusOK, gin.H{"dataUrl": cached})
}

func (h *httpHandler) handleListNotes(c *gin.Context) {
	listed, err := h.notes.List(c.Request.Context(), 0)
	if err != nil {
		respondError(c, http.StatusBadGateway, "notes_unavailable")
		return
	}
	respondData(c, http.StatusOK, listed)
}
