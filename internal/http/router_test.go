package httpapi_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cratekeeper/internal/audit"
	auditstore "cratekeeper/internal/audit/store"
	"cratekeeper/internal/events"
	httpapi "cratekeeper/internal/http"
	"cratekeeper/internal/hub"
	hubmetrics "cratekeeper/internal/hub/metrics"
	"cratekeeper/internal/jwtauth"
	"cratekeeper/internal/platform/config"
	"cratekeeper/internal/platform/logger"
	"cratekeeper/internal/session"
	"cratekeeper/internal/session/revocation"
	"cratekeeper/internal/signature"
	wfhandler "cratekeeper/internal/workflow/handler"
	wfmetrics "cratekeeper/internal/workflow/metrics"
	"cratekeeper/internal/workflow/models"
	"cratekeeper/internal/workflow/service"
	"cratekeeper/internal/workflow/store"
	"cratekeeper/internal/ws"
	id "cratekeeper/pkg/domain"
	"cratekeeper/pkg/platform/tx"
)

// routerFixture assembles the full stack the way main does, on memory stores,
// so these tests cover routing, auth middleware, and handler wiring together.
type routerFixture struct {
	handler http.Handler
	tokens  *jwtauth.Service
	unitID  id.UnitID
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()

	log := logger.New()
	broadcast := hub.New(hub.Options{}, hubmetrics.Nop())
	revocations := revocation.NewMemoryList()

	workflow := service.New(service.Deps{
		Requests:  store.NewMemoryRequestStore(),
		Crates:    store.NewMemoryCrateStore(),
		SendBacks: store.NewMemorySendBackStore(),
		Runner:    tx.NewMemoryRunner(),
		Verifier:  signature.NewBcryptVerifier(signature.NewMemoryCredentialStore()),
		Audit:     audit.NewPublisher(auditstore.NewMemory(), nil, log),
		Emitter:   events.NewEmitter(id.NewUnitID()),
		Publisher: broadcast,
		Metrics:   wfmetrics.Nop(),
		Logger:    log,
	})

	tokens := jwtauth.NewService("router-test-key", "cratekeeper-test")
	validator := jwtauth.NewMiddlewareAdapter(tokens)

	handler := httpapi.New(httpapi.Deps{
		Workflow:  wfhandler.New(workflow, log),
		Sessions:  session.NewHandler(revocations, time.Hour, log),
		WS:        ws.NewServer(broadcast, validator, revocations, config.WSConfig{}, log),
		Validator: validator,
		Revoked:   revocations,
		Logger:    log,
	})

	return &routerFixture{
		handler: handler,
		tokens:  tokens,
		unitID:  id.NewUnitID(),
	}
}

func (f *routerFixture) token(t *testing.T, role id.Role) string {
	t.Helper()
	token, err := f.tokens.GenerateAccessToken(id.NewUserID(), f.unitID, role, time.Hour)
	require.NoError(t, err)
	return token
}

func (f *routerFixture) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthIsPublic(t *testing.T) {
	f := newRouterFixture(t)
	rec := f.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestAPIPathsRequireToken(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(t, http.MethodGet, "/requests/", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/requests/", "not-a-jwt", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateRequestThroughRouter(t *testing.T) {
	f := newRouterFixture(t)
	token := f.token(t, id.RoleUser)

	rec := f.do(t, http.MethodPost, "/requests/storage", token,
		`{"purpose":"annual reports","to_central":false}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created models.Request
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, id.StatusPending, created.Status)
	assert.Equal(t, f.unitID, created.UnitID)

	rec = f.do(t, http.MethodGet, "/requests/"+created.ID.String(), token, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRevokedSessionIsRejected(t *testing.T) {
	f := newRouterFixture(t)
	token := f.token(t, id.RoleUser)

	rec := f.do(t, http.MethodGet, "/requests/", token, "")
	require.Equal(t, http.StatusOK, rec.Code)

	// Logout revokes the session carried by the token.
	rec = f.do(t, http.MethodPost, "/auth/logout", token, "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/requests/", token, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestExpiredTokenIsRejected(t *testing.T) {
	f := newRouterFixture(t)
	token, err := f.tokens.GenerateAccessToken(id.NewUserID(), f.unitID, id.RoleUser, -time.Minute)
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/requests/", token, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
