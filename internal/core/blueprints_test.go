package core_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binmap/internal/blob"
	"binmap/internal/core"
	"binmap/pkg/domain"
)

func TestBlueprintLifecycle(t *testing.T) {
	f := newFixture(t)
	b, err := f.svc.CreateBlueprint(f.ctx, f.alice, "  Bench  ")
	require.NoError(t, err)
	assert.Equal(t, "Bench", b.Name)
	assert.Equal(t, "org-1", b.OrgID)
	_, err = f.svc.CreateBlueprint(f.ctx, f.alice, "Attic")
	require.NoError(t, err)
	_, err = f.svc.CreateBlueprint(f.ctx, f.other, "Elsewhere")
	require.NoError(t, err)

	list, err := f.svc.ListBlueprints(f.ctx, f.member)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Attic", list[0].Name)

	renamed, err := f.svc.RenameBlueprint(f.ctx, f.alice, b.ID, "Bench 2")
	require.NoError(t, err)
	assert.Equal(t, "Bench 2", renamed.Name)

	_, err = f.svc.RenameBlueprint(f.ctx, f.alice, b.ID, "")
	requireCode(t, err, domain.CodeValidation)
	_, err = f.svc.GetBlueprint(f.ctx, f.other, b.ID)
	requireCode(t, err, domain.CodeNotFound)
	_, err = f.svc.CreateBlueprint(f.ctx, f.member, "Nope")
	requireCode(t, err, domain.CodeForbidden)
}

func TestDeleteBlueprint(t *testing.T) {
	f := newFixture(t)
	bp := f.lockedBlueprint(t)
	_, err := f.svc.CreateRevision(f.ctx, f.alice, bp.ID, nil, nil)
	require.NoError(t, err)
	_, comps := f.gridDrawer(t, bp.ID, 400, 300, 2, 2)
	p := f.part(t, "SPRING")
	f.stock(t, p.ID, comps[0].ID, 1)

	_, err = f.svc.DeleteBlueprint(f.ctx, f.alice, bp.ID, true)
	requireCode(t, err, domain.CodeForbidden)
	_, err = f.svc.DeleteBlueprint(f.ctx, f.exec, bp.ID, true)
	requireCode(t, err, domain.CodeLockedByOther)

	_, err = f.svc.ForceReleaseLock(f.ctx, f.exec, bp.ID)
	require.NoError(t, err)
	_, err = f.svc.DeleteBlueprint(f.ctx, f.exec, bp.ID, false)
	requireCode(t, err, domain.CodeInventoryConflict)

	res, err := f.svc.DeleteBlueprint(f.ctx, f.exec, bp.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Drawers)
	assert.Equal(t, 4, res.Compartments)
	assert.Equal(t, 2, res.Revisions, "the manual revision plus the snapshot taken on force release")
	assert.Equal(t, 1, res.InventoryRemoved)

	_, err = f.svc.GetBlueprint(f.ctx, f.exec, bp.ID)
	requireCode(t, err, domain.CodeNotFound)
	assert.Contains(t, f.events.types(), domain.EventBlueprintDeleted)
}

func TestBackgroundImage(t *testing.T) {
	store, err := blob.NewFilesystem(t.TempDir())
	require.NoError(t, err)
	f := newFixture(t, core.WithBlobStore(store))
	bp, err := f.svc.CreateBlueprint(f.ctx, f.alice, "Lab")
	require.NoError(t, err)

	_, err = f.svc.BackgroundImageURL(f.ctx, f.alice, bp.ID)
	requireCode(t, err, domain.CodeNotFound)

	first, err := f.svc.SetBackgroundImage(f.ctx, f.alice, bp.ID, strings.NewReader("png-1"), "image/png")
	require.NoError(t, err)
	require.NotNil(t, first.BackgroundImageID)
	assert.True(t, strings.HasPrefix(*first.BackgroundImageID, "blueprints/org-1/"+bp.ID+"/"))

	second, err := f.svc.SetBackgroundImage(f.ctx, f.alice, bp.ID, strings.NewReader("png-2"), "image/png")
	require.NoError(t, err)
	_, err = store.Head(f.ctx, *first.BackgroundImageID)
	assert.True(t, blob.IsNotFound(err), "replaced image is removed")

	url, err := f.svc.BackgroundImageURL(f.ctx, f.member, bp.ID)
	require.NoError(t, err)
	assert.Contains(t, url, *second.BackgroundImageID)

	cleared, err := f.svc.ClearBackgroundImage(f.ctx, f.alice, bp.ID)
	require.NoError(t, err)
	assert.Nil(t, cleared.BackgroundImageID)
	list, err := store.List(f.ctx, "blueprints/")
	require.NoError(t, err)
	assert.Empty(t, list)
}

type failingDeleteStore struct {
	blob.Store
}

func (failingDeleteStore) Delete(context.Context, string) (bool, error) {
	return false, errors.New("bucket offline")
}

func TestBlobCleanupFailureIsSwallowed(t *testing.T) {
	f := newFixture(t, core.WithBlobStore(failingDeleteStore{Store: blob.NewMemory()}))
	bp, err := f.svc.CreateBlueprint(f.ctx, f.alice, "Loft")
	require.NoError(t, err)
	_, err = f.svc.SetBackgroundImage(f.ctx, f.alice, bp.ID, strings.NewReader("x"), "image/png")
	require.NoError(t, err)

	res, err := f.svc.DeleteBlueprint(f.ctx, f.exec, bp.ID, false)
	require.NoError(t, err)
	assert.Zero(t, res.Drawers)
}

func TestBackgroundImageWithoutStore(t *testing.T) {
	f := newFixture(t)
	bp, err := f.svc.CreateBlueprint(f.ctx, f.alice, "Loft")
	require.NoError(t, err)
	_, err = f.svc.SetBackgroundImage(f.ctx, f.alice, bp.ID, strings.NewReader("x"), "image/png")
	requireCode(t, err, domain.CodeStorage)
	assert.ErrorIs(t, err, core.ErrNoBlobStore)
}
