package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hytky/forum-backend/internal/auth"
	"github.com/hytky/forum-backend/internal/events"
	"github.com/hytky/forum-backend/internal/forum"
	"go.uber.org/zap"
)

const (
	actorIDContextKey  = "forum_actor_id"
	requestIDHeader    = "X-Request-Id"
	requestIDUnmatched = ""
)

var (
	errMissingTelegramVerifier = errors.New("telegram verifier dependency required")
	errMissingTokenIssuer      = errors.New("token issuer dependency required")
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingResolver         = errors.New("path resolver dependency required")
	errMissingForumService     = errors.New("forum service dependency required")
	errMissingEventsService    = errors.New("events service dependency required")
	errMissingSyncSecret       = errors.New("sync shared secret required")
)

// TelegramVerifier validates Telegram login widget payloads.
type TelegramVerifier interface {
	Verify(payload auth.TelegramLoginPayload) (auth.TelegramClaims, error)
}

// SessionIssuer mints session tokens for verified logins.
type SessionIssuer interface {
	IssueSessionToken(ctx context.Context, claims auth.TelegramClaims) (string, int64, error)
}

// SessionValidator authenticates incoming requests.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
	CookieName() string
}

// IdentityRecorder persists identities seen at login.
type IdentityRecorder interface {
	RecordLogin(claims auth.TelegramClaims) (string, error)
}

// Dependencies wires the HTTP boundary to the core services.
type Dependencies struct {
	TelegramVerifier TelegramVerifier
	TokenIssuer      SessionIssuer
	SessionValidator SessionValidator
	Identities       IdentityRecorder
	Resolver         *forum.Resolver
	ForumService     *forum.Service
	EventsService    *events.Service
	SyncSharedSecret string
	CalendarID       string
	Logger           *zap.Logger
}

// NewHTTPHandler builds the gin handler serving the forum, auth, sync bridge
// and public event endpoints.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TelegramVerifier == nil {
		return nil, errMissingTelegramVerifier
	}
	if deps.TokenIssuer == nil {
		return nil, errMissingTokenIssuer
	}
	if deps.SessionValidator == nil {
		return nil, errMissingSessionValidator
	}
	if deps.Resolver == nil {
		return nil, errMissingResolver
	}
	if deps.ForumService == nil {
		return nil, errMissingForumService
	}
	if deps.EventsService == nil {
		return nil, errMissingEventsService
	}
	if strings.TrimSpace(deps.SyncSharedSecret) == "" {
		return nil, errMissingSyncSecret
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	calendarID := strings.TrimSpace(deps.CalendarID)
	if calendarID == "" {
		calendarID = "default"
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	handler := &httpHandler{
		verifier:   deps.TelegramVerifier,
		tokens:     deps.TokenIssuer,
		sessions:   deps.SessionValidator,
		identities: deps.Identities,
		resolver:   deps.Resolver,
		forum:      deps.ForumService,
		events:     deps.EventsService,
		syncSecret: deps.SyncSharedSecret,
		calendarID: calendarID,
		logger:     logger,
	}

	router.POST("/auth/telegram", handler.handleTelegramLogin)
	router.GET("/forum/*path", handler.handleResolvePath)
	router.GET("/api/events/upcoming", handler.handleUpcomingEvents)

	protected := router.Group("/api/forum")
	protected.Use(handler.authorizeSession)
	protected.GET("/categories", handler.handleListCategories)
	protected.POST("/categories", handler.handleCreateCategory)
	protected.POST("/threads", handler.handleCreateThread)
	protected.POST("/posts", handler.handleCreatePost)
	protected.DELETE("/threads/:id", handler.handleDeleteThread)
	protected.POST("/threads/:id/move", handler.handleMoveThread)

	sync := router.Group("/api/sync")
	sync.Use(handler.authorizeSyncSecret)
	sync.GET("/state", handler.handleGetSyncState)
	sync.POST("/events", handler.handleSyncEvents)
	sync.POST("/error", handler.handleRecordSyncError)

	return router, nil
}

type httpHandler struct {
	verifier   TelegramVerifier
	tokens     SessionIssuer
	sessions   SessionValidator
	identities IdentityRecorder
	resolver   *forum.Resolver
	forum      *forum.Service
	events     *events.Service
	syncSecret string
	calendarID string
	logger     *zap.Logger
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == requestIDUnmatched {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)
		c.Next()
	}
}

// --- auth ---

type loginResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (h *httpHandler) handleTelegramLogin(c *gin.Context) {
	var payload auth.TelegramLoginPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	claims, err := h.verifier.Verify(payload)
	if err != nil {
		h.logger.Warn("telegram login verification failed", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if h.identities != nil {
		if _, err := h.identities.RecordLogin(claims); err != nil {
			h.logger.Error("failed to record login identity", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "login_failed"})
			return
		}
	}

	token, expiresIn, err := h.tokens.IssueSessionToken(c.Request.Context(), claims)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.SetCookie(h.sessions.CookieName(), token, int(expiresIn), "/", "", false, true)
	c.JSON(http.StatusOK, loginResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

func (h *httpHandler) authorizeSession(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(actorIDContextKey, claims.UserID)
	c.Next()
}

func (h *httpHandler) authorizeSyncSecret(c *gin.Context) {
	header := c.GetHeader("Authorization")
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if !strings.HasPrefix(header, "Bearer ") || token == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(h.syncSecret)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Next()
}

// --- path resolution ---

type categoryPayload struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	ParentCategoryID *int64 `json:"parent_category_id"`
}

type threadPayload struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	CategoryID int64  `json:"category_id"`
	AuthorID   string `json:"author_id"`
}

type postPayload struct {
	ID         int64  `json:"id"`
	Content    string `json:"content"`
	ThreadID   int64  `json:"thread_id"`
	AuthorID   string `json:"author_id"`
	AuthorName string `json:"author_name"`
	CreatedAt  int64  `json:"created_at_s"`
}

type threadViewPayload struct {
	Thread threadPayload `json:"thread"`
	Posts  []postPayload `json:"posts"`
}

type resolvedPathPayload struct {
	Categories      []categoryPayload  `json:"categories"`
	Breadcrumbs     []forum.Breadcrumb `json:"breadcrumbs"`
	ChildCategories []categoryPayload  `json:"child_categories"`
	Threads         []threadPayload    `json:"threads"`
	Thread          *threadViewPayload `json:"thread,omitempty"`
}

func (h *httpHandler) handleResolvePath(c *gin.Context) {
	segments := splitPathSegments(c.Param("path"))

	resolved, err := h.resolver.Resolve(c.Request.Context(), segments)
	if err != nil {
		h.respondError(c, err)
		return
	}

	response := resolvedPathPayload{
		Categories:      make([]categoryPayload, 0, len(resolved.Categories)),
		Breadcrumbs:     forum.Breadcrumbs(resolved.Categories),
		ChildCategories: make([]categoryPayload, 0, len(resolved.ChildCategories)),
		Threads:         make([]threadPayload, 0, len(resolved.Threads)),
	}
	for _, category := range resolved.Categories {
		response.Categories = append(response.Categories, toCategoryPayload(category))
	}
	for _, category := range resolved.ChildCategories {
		response.ChildCategories = append(response.ChildCategories, toCategoryPayload(category))
	}
	for _, thread := range resolved.Threads {
		response.Threads = append(response.Threads, toThreadPayload(thread))
	}
	if resolved.Thread != nil {
		view := threadViewPayload{
			Thread: toThreadPayload(resolved.Thread.Thread),
			Posts:  make([]postPayload, 0, len(resolved.Thread.Posts)),
		}
		for _, post := range resolved.Thread.Posts {
			view.Posts = append(view.Posts, postPayload{
				ID:         post.ID,
				Content:    post.Content,
				ThreadID:   post.ThreadID,
				AuthorID:   post.AuthorID,
				AuthorName: post.AuthorName,
				CreatedAt:  post.CreatedAtSeconds,
			})
		}
		response.Thread = &view
	}

	c.JSON(http.StatusOK, response)
}

// splitPathSegments turns a catch-all path parameter into ordered segments.
// net/http has already percent-decoded the path; empty segments from doubled
// or trailing slashes are dropped.
func splitPathSegments(rawPath string) []string {
	segments := make([]string, 0, forum.MaxPathDepth+1)
	for _, segment := range strings.Split(rawPath, "/") {
		if segment != "" {
			segments = append(segments, segment)
		}
	}
	return segments
}

// --- forum mutations ---

func (h *httpHandler) handleListCategories(c *gin.Context) {
	categories, err := h.forum.ListCategories(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	response := make([]categoryPayload, 0, len(categories))
	for _, category := range categories {
		response = append(response, toCategoryPayload(category))
	}
	c.JSON(http.StatusOK, gin.H{"categories": response})
}

type createCategoryPayload struct {
	Name             string `json:"name"`
	ParentCategoryID int64  `json:"parent_category_id"`
}

func (h *httpHandler) handleCreateCategory(c *gin.Context) {
	var request createCategoryPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	category, err := h.forum.CreateCategory(c.Request.Context(), request.Name, request.ParentCategoryID, c.GetString(actorIDContextKey))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toCategoryPayload(category))
}

type createThreadPayload struct {
	Name             string `json:"name"`
	CategoryID       int64  `json:"category_id"`
	FirstPostContent string `json:"first_post_content"`
}

type createThreadResponsePayload struct {
	Thread    threadPayload `json:"thread"`
	FirstPost postPayload   `json:"first_post"`
}

func (h *httpHandler) handleCreateThread(c *gin.Context) {
	var request createThreadPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	thread, post, err := h.forum.CreateThread(c.Request.Context(), request.Name, request.CategoryID, request.FirstPostContent, c.GetString(actorIDContextKey))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, createThreadResponsePayload{
		Thread: toThreadPayload(thread),
		FirstPost: postPayload{
			ID:        post.ID,
			Content:   post.Content,
			ThreadID:  post.ThreadID,
			AuthorID:  post.AuthorID,
			CreatedAt: post.CreatedAtSeconds,
		},
	})
}

type createPostPayload struct {
	Content  string `json:"content"`
	ThreadID int64  `json:"thread_id"`
}

func (h *httpHandler) handleCreatePost(c *gin.Context) {
	var request createPostPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	post, err := h.forum.CreatePost(c.Request.Context(), request.Content, request.ThreadID, c.GetString(actorIDContextKey))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, postPayload{
		ID:        post.ID,
		Content:   post.Content,
		ThreadID:  post.ThreadID,
		AuthorID:  post.AuthorID,
		CreatedAt: post.CreatedAtSeconds,
	})
}

func (h *httpHandler) handleDeleteThread(c *gin.Context) {
	threadID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_thread_id"})
		return
	}

	deleted, err := h.forum.DeleteThread(c.Request.Context(), threadID, c.GetString(actorIDContextKey))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toThreadPayload(deleted))
}

type moveThreadPayload struct {
	TargetCategoryID int64 `json:"target_category_id"`
}

func (h *httpHandler) handleMoveThread(c *gin.Context) {
	threadID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_thread_id"})
		return
	}

	var request moveThreadPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	moved, err := h.forum.MoveThread(c.Request.Context(), threadID, request.TargetCategoryID, c.GetString(actorIDContextKey))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toThreadPayload(moved))
}

// --- sync bridge ---

type syncCursorPayload struct {
	CalendarID    string  `json:"calendar_id"`
	SyncToken     *string `json:"sync_token"`
	LastSyncAt    int64   `json:"last_sync_at_s"`
	LastSuccessAt *int64  `json:"last_success_at_s"`
	ErrorCount    int64   `json:"error_count"`
	LastError     *string `json:"last_error"`
}

func (h *httpHandler) handleGetSyncState(c *gin.Context) {
	cursor, err := h.events.GetSyncCursor(c.Request.Context(), h.calendarID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if cursor == nil {
		c.JSON(http.StatusOK, gin.H{"cursor": nil})
		return
	}

	payload := syncCursorPayload{
		CalendarID: cursor.CalendarID,
		SyncToken:  cursor.CursorToken,
		LastSyncAt: cursor.LastSyncAt.Unix(),
		ErrorCount: cursor.ErrorCount,
		LastError:  cursor.LastError,
	}
	if cursor.LastSuccessAt != nil {
		successAt := cursor.LastSuccessAt.Unix()
		payload.LastSuccessAt = &successAt
	}
	c.JSON(http.StatusOK, gin.H{"cursor": payload})
}

type syncEventPayload struct {
	CalendarID  string `json:"calendar_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Location    string `json:"location"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Timezone    string `json:"timezone"`
	AllDay      bool   `json:"all_day"`
	Status      string `json:"status"`
}

type syncEventsRequestPayload struct {
	Events    []syncEventPayload `json:"events"`
	SyncToken *string            `json:"sync_token"`
}

func (h *httpHandler) handleSyncEvents(c *gin.Context) {
	var request syncEventsRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	inputs := make([]events.EventInput, 0, len(request.Events))
	for _, event := range request.Events {
		startTime, err := time.Parse(time.RFC3339, event.StartTime)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_start_time"})
			return
		}
		endTime, err := time.Parse(time.RFC3339, event.EndTime)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_end_time"})
			return
		}
		inputs = append(inputs, events.EventInput{
			ExternalCalendarID: event.CalendarID,
			Title:              event.Title,
			Description:        event.Description,
			Location:           event.Location,
			StartTime:          startTime,
			EndTime:            endTime,
			Timezone:           event.Timezone,
			AllDay:             event.AllDay,
			Status:             event.Status,
		})
	}

	count, err := h.events.SubmitEvents(c.Request.Context(), h.calendarID, inputs, request.SyncToken)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": count})
}

type recordSyncErrorPayload struct {
	Error string `json:"error"`
}

func (h *httpHandler) handleRecordSyncError(c *gin.Context) {
	var request recordSyncErrorPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Error) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	if err := h.events.RecordSyncError(c.Request.Context(), h.calendarID, request.Error); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// --- public events ---

type upcomingEventPayload struct {
	ID          int64  `json:"id"`
	CalendarID  string `json:"calendar_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Location    string `json:"location"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Timezone    string `json:"timezone"`
	AllDay      bool   `json:"all_day"`
	Status      string `json:"status"`
}

func (h *httpHandler) handleUpcomingEvents(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 || limit > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_limit"})
		return
	}
	includeAllDay := c.DefaultQuery("include_all_day", "true") != "false"

	upcoming, err := h.events.GetUpcoming(c.Request.Context(), limit, includeAllDay)
	if err != nil {
		h.respondError(c, err)
		return
	}

	response := make([]upcomingEventPayload, 0, len(upcoming))
	for _, event := range upcoming {
		response = append(response, upcomingEventPayload{
			ID:          event.ID,
			CalendarID:  event.ExternalCalendarID,
			Title:       event.Title,
			Description: event.Description,
			Location:    event.Location,
			StartTime:   event.StartTime.UTC().Format(time.RFC3339),
			EndTime:     event.EndTime.UTC().Format(time.RFC3339),
			Timezone:    event.Timezone,
			AllDay:      event.AllDay,
			Status:      event.Status,
		})
	}
	c.JSON(http.StatusOK, gin.H{"events": response})
}

// --- shared ---

func toCategoryPayload(category forum.Category) categoryPayload {
	return categoryPayload{
		ID:               category.ID,
		Name:             category.Name,
		ParentCategoryID: category.ParentCategoryID,
	}
}

func toThreadPayload(thread forum.Thread) threadPayload {
	return threadPayload{
		ID:         thread.ID,
		Name:       thread.Name,
		CategoryID: thread.CategoryID,
		AuthorID:   thread.AuthorID,
	}
}

func (h *httpHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, forum.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, forum.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	case errors.Is(err, forum.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, forum.ErrDuplicateName):
		c.JSON(http.StatusConflict, gin.H{"error": "duplicate_name"})
	case errors.Is(err, forum.ErrInvalidTitle), errors.Is(err, forum.ErrInvalidContent),
		errors.Is(err, events.ErrInvalidEvent), errors.Is(err, events.ErrMissingCalendarID):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
	default:
		h.logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}
