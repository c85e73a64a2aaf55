package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binmap/internal/blob"
	"binmap/internal/core"
	"binmap/internal/identity"
	"binmap/internal/infra/events/wshub"
	"binmap/internal/infra/metrics"
	"binmap/pkg/domain"
)

type envelope struct {
	Result json.RawMessage `json:"result"`
	Error  *errorBody      `json:"error"`
}

type harness struct {
	t       *testing.T
	handler *Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	hub := wshub.New(nil)
	rec := metrics.NewPrometheusRecorder()
	blobs, err := blob.NewFilesystem(t.TempDir())
	require.NoError(t, err)
	svc := core.NewInMemoryService(core.WithNotifier(hub), core.WithMetrics(rec), core.WithBlobStore(blobs))
	dir := identity.NewStaticDirectory(
		identity.User{ID: "alice", Memberships: []identity.Membership{{Org: "org-1", Role: domain.RoleGeneralOfficer}}},
		identity.User{ID: "bob", Memberships: []identity.Membership{{Org: "org-1", Role: domain.RoleGeneralOfficer}}},
		identity.User{ID: "mel", Memberships: []identity.Membership{{Org: "org-1", Role: domain.RoleMember}}},
		identity.User{ID: "eve", Memberships: []identity.Membership{{Org: "org-1", Role: domain.RoleExecutiveOfficer}}},
		identity.User{ID: "oscar", Memberships: []identity.Membership{{Org: "org-2", Role: domain.RoleAdministrator}}},
	)
	return &harness{t: t, handler: &Handler{Service: svc, Directory: dir, Hub: hub, Metrics: rec.Handler()}}
}

func (h *harness) do(user, org, op string, args any) (int, envelope) {
	h.t.Helper()
	var body bytes.Buffer
	if args != nil {
		require.NoError(h.t, json.NewEncoder(&body).Encode(args))
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/rpc/"+op, &body)
	req.Header.Set(HeaderUserID, user)
	req.Header.Set(HeaderOrgID, org)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	var env envelope
	require.NoError(h.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func (h *harness) ok(user, op string, args any, out any) {
	h.t.Helper()
	status, env := h.do(user, "org-1", op, args)
	require.Equal(h.t, http.StatusOK, status, "%s: %+v", op, env.Error)
	if out != nil {
		require.NoError(h.t, json.Unmarshal(env.Result, out))
	}
}

func TestLayoutEditingFlow(t *testing.T) {
	h := newHarness(t)
	var bp domain.Blueprint
	h.ok("alice", "create_blueprint", map[string]any{"name": "Shop"}, &bp)

	status, env := h.do("alice", "org-1", "create_drawer", map[string]any{"blueprint_id": bp.ID, "width": 400, "height": 300, "grid_rows": 2, "grid_cols": 2})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, string(domain.CodeNotLocked), env.Error.Code)

	var lock core.LockResult
	h.ok("alice", "acquire_lock", map[string]any{"blueprint_id": bp.ID}, &lock)
	require.True(t, lock.Success)

	var contended core.LockResult
	h.ok("bob", "acquire_lock", map[string]any{"blueprint_id": bp.ID}, &contended)
	assert.False(t, contended.Success)
	assert.Equal(t, "alice", contended.LockedBy)

	var d domain.Drawer
	h.ok("alice", "create_drawer", map[string]any{"blueprint_id": bp.ID, "width": 400, "height": 300, "grid_rows": 2, "grid_cols": 2}, &d)

	var grid core.GridResult
	h.ok("alice", "set_grid", map[string]any{"drawer_id": d.ID, "rows": 3, "cols": 3}, &grid)
	assert.Len(t, grid.Compartments, 9)

	var released core.LockResult
	h.ok("alice", "release_lock", map[string]any{"blueprint_id": bp.ID}, &released)
	assert.NotEmpty(t, released.RevisionID)

	var count core.RevisionCount
	h.ok("mel", "count_revisions", map[string]any{"blueprint_id": bp.ID}, &count)
	assert.Equal(t, 1, count.Count)

	var latest latestRevision
	h.ok("mel", "get_latest_revision", map[string]any{"blueprint_id": bp.ID}, &latest)
	require.True(t, latest.Found)
	assert.Equal(t, released.RevisionID, latest.Revision.ID)
}

func TestErrorMapping(t *testing.T) {
	h := newHarness(t)
	var bp domain.Blueprint
	h.ok("alice", "create_blueprint", map[string]any{"name": "Shop"}, &bp)

	status, env := h.do("ghost", "org-1", "list_blueprints", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, string(domain.CodeUnauthorized), env.Error.Code)

	status, env = h.do("mel", "org-1", "create_blueprint", map[string]any{"name": "x"})
	assert.Equal(t, http.StatusForbidden, status)

	status, env = h.do("oscar", "org-2", "get_blueprint", map[string]any{"blueprint_id": bp.ID})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, string(domain.CodeNotFound), env.Error.Code)

	status, env = h.do("alice", "org-1", "create_blueprint", map[string]any{"name": " "})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, string(domain.CodeValidation), env.Error.Code)

	status, env = h.do("alice", "org-1", "create_blueprint", map[string]any{"title": "x"})
	assert.Equal(t, http.StatusUnprocessableEntity, status, "unknown fields are rejected")

	status, env = h.do("alice", "org-1", "teleport", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, env.Error.Message, "teleport")
}

func TestInventoryConflictCarriesBlockingIDs(t *testing.T) {
	h := newHarness(t)
	var bp domain.Blueprint
	h.ok("alice", "create_blueprint", map[string]any{"name": "Shop"}, &bp)
	h.ok("alice", "acquire_lock", map[string]any{"blueprint_id": bp.ID}, nil)
	var d domain.Drawer
	h.ok("alice", "create_drawer", map[string]any{"blueprint_id": bp.ID, "width": 200, "height": 100, "grid_rows": 1, "grid_cols": 1}, &d)
	var layout core.Layout
	h.ok("alice", "get_layout", map[string]any{"blueprint_id": bp.ID}, &layout)
	require.Len(t, layout.Compartments, 1)
	var part domain.Part
	h.ok("alice", "create_part", map[string]any{"sku": "BOLT", "name": "Bolt"}, &part)
	h.ok("mel", "check_in", map[string]any{"part_id": part.ID, "compartment_id": layout.Compartments[0].ID, "quantity": 3}, nil)

	status, env := h.do("alice", "org-1", "delete_drawer", map[string]any{"drawer_id": d.ID})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, string(domain.CodeInventoryConflict), env.Error.Code)
	assert.Equal(t, []string{layout.Compartments[0].ID}, env.Error.Blocking)
}

func TestPartCatalogueOperations(t *testing.T) {
	h := newHarness(t)
	var part domain.Part
	h.ok("alice", "create_part", map[string]any{"sku": "NUT", "name": "Nut"}, &part)

	var renamed domain.Part
	h.ok("alice", "update_part", map[string]any{"part_id": part.ID, "name": "Hex nut"}, &renamed)
	assert.Equal(t, "Hex nut", renamed.Name)
	assert.Equal(t, "NUT", renamed.SKU)

	status, env := h.do("alice", "org-1", "delete_part", map[string]any{"part_id": part.ID})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, string(domain.CodeForbidden), env.Error.Code)

	var res map[string]int
	h.ok("eve", "delete_part", map[string]any{"part_id": part.ID}, &res)
	assert.Equal(t, 0, res["removed"])

	var parts []domain.Part
	h.ok("mel", "list_parts", nil, &parts)
	assert.Empty(t, parts)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err       error
		status    int
		retryable bool
	}{
		{domain.Errorf(domain.CodeUnsupportedRotation, "rotated"), http.StatusUnprocessableEntity, false},
		{domain.Errorf(domain.CodeSplitTooNarrow, "narrow"), http.StatusUnprocessableEntity, false},
		{domain.Errorf(domain.CodeGridShrinkBlocked, "blocked"), http.StatusConflict, false},
		{domain.Errorf(domain.CodeCrossBlueprintNotAllowed, "cross"), http.StatusConflict, false},
		{domain.Storage(errors.New("disk"), true), http.StatusServiceUnavailable, true},
		{domain.RuleViolationError{}, http.StatusConflict, false},
		{errors.New("boom"), http.StatusInternalServerError, false},
	}
	for _, tc := range cases {
		status, _, retryable := classify(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.retryable, retryable, tc.err.Error())
	}
}

func TestBackgroundUpload(t *testing.T) {
	h := newHarness(t)
	var bp domain.Blueprint
	h.ok("alice", "create_blueprint", map[string]any{"name": "Shop"}, &bp)

	upload := func(contentType string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/rpc/set_background_image?blueprint_id="+bp.ID, strings.NewReader("\x89PNG"))
		req.Header.Set(HeaderUserID, "alice")
		req.Header.Set(HeaderOrgID, "org-1")
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		h.handler.ServeHTTP(rec, req)
		return rec
	}
	assert.Equal(t, http.StatusUnprocessableEntity, upload("text/plain").Code)
	rec := upload("image/png")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var url map[string]string
	h.ok("mel", "background_image_url", map[string]any{"blueprint_id": bp.ID}, &url)
	assert.Contains(t, url["url"], "blueprints/org-1/"+bp.ID)
}

func TestRoutes(t *testing.T) {
	h := newHarness(t)

	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/rpc/list_blueprints", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	h.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	h.ok("alice", "list_blueprints", nil, nil)
	rec = httptest.NewRecorder()
	h.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `binmap_operations_total{operation="list_blueprints",status="success"} 1`)

	assert.Contains(t, Operations(), "split_drawer")
	assert.Contains(t, Operations(), opSetBackgroundImage)
}

func TestLiveFeed(t *testing.T) {
	h := newHarness(t)
	srv := httptest.NewServer(h.handler)
	defer srv.Close()

	_, resp, err := ws.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/v1/live", nil)
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	header := http.Header{}
	header.Set(HeaderUserID, "mel")
	header.Set(HeaderOrgID, "org-1")
	conn, _, err := ws.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/v1/live", header)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return h.handler.Hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	alice := domain.CallerContext{UserID: "alice", OrgID: "org-1", Role: domain.RoleGeneralOfficer}
	bp, err := h.handler.Service.CreateBlueprint(context.Background(), alice, "Shop")
	require.NoError(t, err)
	_, err = h.handler.Service.AcquireLock(context.Background(), alice, bp.ID)
	require.NoError(t, err)

	var event domain.LayoutEvent
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, domain.EventLockAcquired, event.Type)
	assert.Equal(t, bp.ID, event.BlueprintID)
}
