package core_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"binmap/internal/core"
	"binmap/pkg/domain"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.LayoutEvent
}

func (n *recordingNotifier) Publish(_ context.Context, e domain.LayoutEvent) error {
	n.mu.Lock()
	n.events = append(n.events, e)
	n.mu.Unlock()
	return nil
}

func (n *recordingNotifier) types() []domain.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]domain.EventType, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	svc    *core.Service
	clock  *fakeClock
	events *recordingNotifier
	ctx    context.Context

	alice  domain.CallerContext
	bob    domain.CallerContext
	member domain.CallerContext
	exec   domain.CallerContext
	other  domain.CallerContext
}

func newFixture(t *testing.T, opts ...core.Option) *fixture {
	t.Helper()
	f := &fixture{
		clock:  &fakeClock{now: epoch},
		events: &recordingNotifier{},
		ctx:    context.Background(),
		alice:  domain.CallerContext{UserID: "alice", OrgID: "org-1", Role: domain.RoleGeneralOfficer},
		bob:    domain.CallerContext{UserID: "bob", OrgID: "org-1", Role: domain.RoleGeneralOfficer},
		member: domain.CallerContext{UserID: "mel", OrgID: "org-1", Role: domain.RoleMember},
		exec:   domain.CallerContext{UserID: "erin", OrgID: "org-1", Role: domain.RoleExecutiveOfficer},
		other:  domain.CallerContext{UserID: "oscar", OrgID: "org-2", Role: domain.RoleAdministrator},
	}
	base := []core.Option{core.WithClock(f.clock), core.WithNotifier(f.events)}
	f.svc = core.NewInMemoryService(append(base, opts...)...)
	return f
}

// lockedBlueprint creates a blueprint and takes its lock as alice.
func (f *fixture) lockedBlueprint(t *testing.T) domain.Blueprint {
	t.Helper()
	bp, err := f.svc.CreateBlueprint(f.ctx, f.alice, "Workshop")
	require.NoError(t, err)
	res, err := f.svc.AcquireLock(f.ctx, f.alice, bp.ID)
	require.NoError(t, err)
	require.True(t, res.Success)
	return bp
}

func (f *fixture) gridDrawer(t *testing.T, blueprintID string, width, height float64, rows, cols int) (domain.Drawer, []domain.Compartment) {
	t.Helper()
	d, err := f.svc.CreateDrawer(f.ctx, f.alice, blueprintID, core.DrawerInput{
		Width: width, Height: height, GridRows: rows, GridCols: cols,
	})
	require.NoError(t, err)
	return d, f.compartments(t, blueprintID, d.ID)
}

func (f *fixture) compartments(t *testing.T, blueprintID, drawerID string) []domain.Compartment {
	t.Helper()
	layout, err := f.svc.GetLayout(f.ctx, f.alice, blueprintID)
	require.NoError(t, err)
	var out []domain.Compartment
	for _, c := range layout.Compartments {
		if c.DrawerID == drawerID {
			out = append(out, c)
		}
	}
	return out
}

func (f *fixture) drawer(t *testing.T, blueprintID, drawerID string) domain.Drawer {
	t.Helper()
	layout, err := f.svc.GetLayout(f.ctx, f.alice, blueprintID)
	require.NoError(t, err)
	for _, d := range layout.Drawers {
		if d.ID == drawerID {
			return d
		}
	}
	t.Fatalf("drawer %s not in layout", drawerID)
	return domain.Drawer{}
}

func (f *fixture) part(t *testing.T, sku string) domain.Part {
	t.Helper()
	p, err := f.svc.CreatePart(f.ctx, f.alice, core.PartInput{SKU: sku, Name: "Part " + sku})
	require.NoError(t, err)
	return p
}

func (f *fixture) stock(t *testing.T, partID, compartmentID string, qty int) {
	t.Helper()
	_, err := f.svc.CheckIn(f.ctx, f.alice, core.StockChange{PartID: partID, CompartmentID: compartmentID, Quantity: qty})
	require.NoError(t, err)
}

func ids(comps []domain.Compartment) []string {
	out := make([]string, 0, len(comps))
	for _, c := range comps {
		out = append(out, c.ID)
	}
	return out
}

func ptr[T any](v T) *T { return &v }

func requireCode(t *testing.T, err error, code domain.Code) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, domain.CodeOf(err), "error: %v", err)
}
