package integration_test

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/hytky/forum-backend/internal/auth"
	"github.com/hytky/forum-backend/internal/database"
	"github.com/hytky/forum-backend/internal/events"
	"github.com/hytky/forum-backend/internal/forum"
	"github.com/hytky/forum-backend/internal/server"
	"github.com/hytky/forum-backend/internal/users"
)

const (
	sessionSigningSecret = "integration-secret"
	sessionCookieName    = "forum_session"
	sessionIssuer        = "forum-auth"
	telegramBotToken     = "12345:integration-bot-token"
	syncSharedSecret     = "integration-sync-secret"
	jsonContentType      = "application/json"
)

func TestForumLoginAndMutationFlow(testContext *testing.T) {
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:integration_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	if err := database.Migrate(db, zap.NewNop(), database.Options{}); err != nil {
		testContext.Fatalf("failed to migrate: %v", err)
	}

	store, err := forum.NewStore(db)
	if err != nil {
		testContext.Fatalf("failed to build store: %v", err)
	}
	resolver, err := forum.NewResolver(store, zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to build resolver: %v", err)
	}
	forumService, err := forum.NewService(forum.ServiceConfig{Database: db, Logger: zap.NewNop()})
	if err != nil {
		testContext.Fatalf("failed to build forum service: %v", err)
	}
	eventsService, err := events.NewService(events.ServiceConfig{Database: db, Logger: zap.NewNop()})
	if err != nil {
		testContext.Fatalf("failed to build events service: %v", err)
	}
	identityService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		testContext.Fatalf("failed to build identity service: %v", err)
	}
	verifier, err := auth.NewTelegramVerifier(auth.TelegramVerifierConfig{BotToken: telegramBotToken})
	if err != nil {
		testContext.Fatalf("failed to build verifier: %v", err)
	}
	issuer := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(sessionSigningSecret),
		Issuer:        sessionIssuer,
		Audience:      "forum",
	})
	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(sessionSigningSecret),
		Issuer:        sessionIssuer,
		CookieName:    sessionCookieName,
	})
	if err != nil {
		testContext.Fatalf("failed to build session validator: %v", err)
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TelegramVerifier: verifier,
		TokenIssuer:      issuer,
		SessionValidator: validator,
		Identities:       identityService,
		Resolver:         resolver,
		ForumService:     forumService,
		EventsService:    eventsService,
		SyncSharedSecret: syncSharedSecret,
		Logger:           zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build handler: %v", err)
	}

	testServer := httptest.NewServer(handler)
	defer testServer.Close()

	sessionCookie := mustLogin(testContext, testServer.URL, 42, "aino", "Aino")

	// Root resolves before anything is created.
	rootView := mustResolve(testContext, testServer.URL, "/forum/")
	if len(rootView.Categories) != 1 {
		testContext.Fatalf("expected bare root chain, got %#v", rootView.Categories)
	}
	rootID := rootView.Categories[0].ID

	categoryID := mustCreateCategory(testContext, testServer.URL, sessionCookie, "Music", rootID)
	threadID := mustCreateThread(testContext, testServer.URL, sessionCookie, "Favorite sets", categoryID, "check this out")

	threadView := mustResolve(testContext, testServer.URL, "/forum/Music/Favorite%20sets")
	if threadView.Thread == nil {
		testContext.Fatalf("expected thread at resolved path")
	}
	if len(threadView.Thread.Posts) != 1 || threadView.Thread.Posts[0].Content != "check this out" {
		testContext.Fatalf("expected the first post, got %#v", threadView.Thread.Posts)
	}
	if threadView.Thread.Posts[0].AuthorName != "Aino" {
		testContext.Fatalf("expected display name on post, got %q", threadView.Thread.Posts[0].AuthorName)
	}
	if len(threadView.Breadcrumbs) != 2 || threadView.Breadcrumbs[1].Href != "/forum/Music" {
		testContext.Fatalf("unexpected breadcrumbs %#v", threadView.Breadcrumbs)
	}

	// Move the thread to a sibling category and check both listings.
	otherID := mustCreateCategory(testContext, testServer.URL, sessionCookie, "Archive", rootID)
	moveBody, _ := json.Marshal(map[string]any{"target_category_id": otherID})
	moveReq, _ := http.NewRequest(http.MethodPost, fmt.Sprintf("%s/api/forum/threads/%d/move", testServer.URL, threadID), bytes.NewReader(moveBody))
	moveReq.AddCookie(sessionCookie)
	moveReq.Header.Set("Content-Type", jsonContentType)
	moveResp, err := http.DefaultClient.Do(moveReq)
	if err != nil {
		testContext.Fatalf("move request failed: %v", err)
	}
	moveResp.Body.Close()
	if moveResp.StatusCode != http.StatusOK {
		testContext.Fatalf("unexpected move status: %d", moveResp.StatusCode)
	}

	movedView := mustResolve(testContext, testServer.URL, "/forum/Archive")
	if len(movedView.Threads) != 1 || movedView.Threads[0].ID != threadID {
		testContext.Fatalf("expected moved thread under Archive, got %#v", movedView.Threads)
	}

	// Delete and confirm the path stops resolving.
	deleteReq, _ := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/api/forum/threads/%d", testServer.URL, threadID), nil)
	deleteReq.AddCookie(sessionCookie)
	deleteResp, err := http.DefaultClient.Do(deleteReq)
	if err != nil {
		testContext.Fatalf("delete request failed: %v", err)
	}
	deleteResp.Body.Close()
	if deleteResp.StatusCode != http.StatusOK {
		testContext.Fatalf("unexpected delete status: %d", deleteResp.StatusCode)
	}

	goneResp, err := http.Get(testServer.URL + "/forum/Archive/Favorite%20sets")
	if err != nil {
		testContext.Fatalf("resolve request failed: %v", err)
	}
	goneResp.Body.Close()
	if goneResp.StatusCode != http.StatusNotFound {
		testContext.Fatalf("deleted thread should not resolve, got %d", goneResp.StatusCode)
	}
}

type resolvedView struct {
	Categories []struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"categories"`
	Breadcrumbs []struct {
		Label string `json:"label"`
		Href  string `json:"href"`
	} `json:"breadcrumbs"`
	Threads []struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"threads"`
	Thread *struct {
		Posts []struct {
			Content    string `json:"content"`
			AuthorName string `json:"author_name"`
		} `json:"posts"`
	} `json:"thread"`
}

func mustResolve(testContext *testing.T, baseURL, path string) resolvedView {
	testContext.Helper()

	response, err := http.Get(baseURL + path)
	if err != nil {
		testContext.Fatalf("resolve request failed: %v", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		testContext.Fatalf("unexpected resolve status for %s: %d", path, response.StatusCode)
	}

	var view resolvedView
	if err := json.NewDecoder(response.Body).Decode(&view); err != nil {
		testContext.Fatalf("failed to decode resolve response: %v", err)
	}
	return view
}

func mustLogin(testContext *testing.T, baseURL string, telegramID int64, username, firstName string) *http.Cookie {
	testContext.Helper()

	payload := map[string]any{
		"id":         telegramID,
		"first_name": firstName,
		"username":   username,
		"auth_date":  time.Now().Unix(),
	}
	payload["hash"] = signTelegramPayload(payload)

	body, _ := json.Marshal(payload)
	response, err := http.Post(baseURL+"/auth/telegram", jsonContentType, bytes.NewReader(body))
	if err != nil {
		testContext.Fatalf("login request failed: %v", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		testContext.Fatalf("unexpected login status: %d", response.StatusCode)
	}

	for _, cookie := range response.Cookies() {
		if cookie.Name == sessionCookieName {
			return cookie
		}
	}
	testContext.Fatalf("login response missing session cookie")
	return nil
}

func signTelegramPayload(payload map[string]any) string {
	fields := make(map[string]string, len(payload))
	for key, value := range payload {
		switch typed := value.(type) {
		case string:
			fields[key] = typed
		case int64:
			fields[key] = fmt.Sprintf("%d", typed)
		}
	}

	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		lines = append(lines, key+"="+fields[key])
	}

	secret := sha256.Sum256([]byte(telegramBotToken))
	mac := hmac.New(sha256.New, secret[:])
	mac.Write([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(mac.Sum(nil))
}

func mustCreateCategory(testContext *testing.T, baseURL string, sessionCookie *http.Cookie, name string, parentID int64) int64 {
	testContext.Helper()

	body, _ := json.Marshal(map[string]any{"name": name, "parent_category_id": parentID})
	request, _ := http.NewRequest(http.MethodPost, baseURL+"/api/forum/categories", bytes.NewReader(body))
	request.AddCookie(sessionCookie)
	request.Header.Set("Content-Type", jsonContentType)

	response, err := http.DefaultClient.Do(request)
	if err != nil {
		testContext.Fatalf("create category request failed: %v", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusCreated {
		testContext.Fatalf("unexpected create category status: %d", response.StatusCode)
	}

	var created struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(response.Body).Decode(&created); err != nil {
		testContext.Fatalf("failed to decode category response: %v", err)
	}
	return created.ID
}

func mustCreateThread(testContext *testing.T, baseURL string, sessionCookie *http.Cookie, name string, categoryID int64, firstPost string) int64 {
	testContext.Helper()

	body, _ := json.Marshal(map[string]any{
		"name":               name,
		"category_id":        categoryID,
		"first_post_content": firstPost,
	})
	request, _ := http.NewRequest(http.MethodPost, baseURL+"/api/forum/threads", bytes.NewReader(body))
	request.AddCookie(sessionCookie)
	request.Header.Set("Content-Type", jsonContentType)

	response, err := http.DefaultClient.Do(request)
	if err != nil {
		testContext.Fatalf("create thread request failed: %v", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusCreated {
		testContext.Fatalf("unexpected create thread status: %d", response.StatusCode)
	}

	var created struct {
		Thread struct {
			ID int64 `json:"id"`
		} `json:"thread"`
	}
	if err := json.NewDecoder(response.Body).Decode(&created); err != nil {
		testContext.Fatalf("failed to decode thread response: %v", err)
	}
	return created.Thread.ID
}
