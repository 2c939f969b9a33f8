package history_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/esoteric-oracle/oracle-service/internal/core/docdb"
	apperrors "github.com/esoteric-oracle/oracle-service/internal/domain/errors"
	"github.com/esoteric-oracle/oracle-service/internal/domain/models"
	"github.com/esoteric-oracle/oracle-service/internal/services/history"
	"github.com/esoteric-oracle/oracle-service/internal/testutil/mocks"
)

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func fixtures() []*models.OracleInteraction {
	return []*models.OracleInteraction{
		{ID: "i3", UserID: "u1", Question: "Will my garden bloom?", Response: "Yes.", CreatedAt: t0.Add(3 * time.Hour)},
		{ID: "i2", UserID: "u1", Question: "Should I move abroad?", Response: "Perhaps.", CreatedAt: t0.Add(2 * time.Hour), IsFavorite: true},
		{ID: "i1", UserID: "u1", Question: "What does my GARDEN need?", Response: "Rain.", CreatedAt: t0.Add(time.Hour)},
	}
}

func ids(items []models.OracleInteraction) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}
	return out
}

func newLoadedBook(t *testing.T) (*history.Book, *mocks.MockInteractionsCollection) {
	t.Helper()
	store := &mocks.MockInteractionsCollection{}
	store.On("ListByUser", mock.Anything, &docdb.ListInteractionsOptions{
		UserID: "u1", Limit: 20, OrderBy: docdb.SortOrderDesc,
	}).Return(fixtures(), nil).Once()

	book, err := history.NewBook(store, 20)
	require.NoError(t, err)

	items, err := book.List(context.Background(), "u1", history.Filter{})
	require.NoError(t, err)
	require.Equal(t, []string{"i3", "i2", "i1"}, ids(items))
	return book, store
}

func TestNewBook_RequiresStore(t *testing.T) {
	_, err := history.NewBook(nil, 10)
	assert.Error(t, err)
}

func TestBook_ListLoadsOncePerUser(t *testing.T) {
	book, store := newLoadedBook(t)

	items, err := book.List(context.Background(), "u1", history.Filter{})
	require.NoError(t, err)
	assert.Len(t, items, 3)

	store.AssertNumberOfCalls(t, "ListByUser", 1)
}

func TestBook_ListFilters(t *testing.T) {
	book, _ := newLoadedBook(t)
	ctx := context.Background()

	items, err := book.List(ctx, "u1", history.Filter{Search: "garden"})
	require.NoError(t, err)
	assert.Equal(t, []string{"i3", "i1"}, ids(items))

	items, err = book.List(ctx, "u1", history.Filter{FavoritesOnly: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"i2"}, ids(items))

	items, err = book.List(ctx, "u1", history.Filter{Search: "garden", FavoritesOnly: true})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestBook_ListRequiresUser(t *testing.T) {
	book, err := history.NewBook(&mocks.MockInteractionsCollection{}, 0)
	require.NoError(t, err)

	_, err = book.List(context.Background(), "", history.Filter{})
	assert.True(t, errors.Is(err, apperrors.ErrUnauthenticated))
}

func TestBook_ListLoadFailure(t *testing.T) {
	store := &mocks.MockInteractionsCollection{}
	store.On("ListByUser", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused")).Once()
	store.On("ListByUser", mock.Anything, mock.Anything).Return(fixtures(), nil).Once()

	book, err := history.NewBook(store, 0)
	require.NoError(t, err)

	_, err = book.List(context.Background(), "u1", history.Filter{})
	require.Error(t, err)

	items, err := book.List(context.Background(), "u1", history.Filter{})
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestBook_RecordPrependsSavedInteraction(t *testing.T) {
	book, store := newLoadedBook(t)
	saved := &models.OracleInteraction{ID: "i4", UserID: "u1", Question: "Is today lucky?", Response: "It is.", CreatedAt: t0.Add(4 * time.Hour)}
	store.On("Create", mock.Anything, saved).Return(nil).Once()

	require.NoError(t, book.Record(context.Background(), saved))

	items, err := book.List(context.Background(), "u1", history.Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"i4", "i3", "i2", "i1"}, ids(items))
}

func TestBook_RecordFailureLeavesHistoryUntouched(t *testing.T) {
	book, store := newLoadedBook(t)
	saved := &models.OracleInteraction{ID: "i4", UserID: "u1"}
	store.On("Create", mock.Anything, saved).Return(errors.New("write conflict")).Once()

	require.Error(t, book.Record(context.Background(), saved))

	items, err := book.List(context.Background(), "u1", history.Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"i3", "i2", "i1"}, ids(items))
}

func TestBook_SetFavoriteOptimistic(t *testing.T) {
	book, store := newLoadedBook(t)
	store.On("SetFavorite", mock.Anything, "u1", "i3", true).Return(nil).Once()

	require.NoError(t, book.SetFavorite(context.Background(), "u1", "i3", true))

	items, err := book.List(context.Background(), "u1", history.Filter{FavoritesOnly: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"i3", "i2"}, ids(items))
}

func TestBook_SetFavoriteRollsBack(t *testing.T) {
	book, store := newLoadedBook(t)
	store.On("SetFavorite", mock.Anything, "u1", "i2", false).Return(errors.New("timeout")).Once()

	require.Error(t, book.SetFavorite(context.Background(), "u1", "i2", false))

	items, err := book.List(context.Background(), "u1", history.Filter{FavoritesOnly: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"i2"}, ids(items))
}

func TestBook_DeleteRollsBackToOriginalPosition(t *testing.T) {
	book, store := newLoadedBook(t)
	store.On("Delete", mock.Anything, "u1", "i2").Return(errors.New("timeout")).Once()

	require.Error(t, book.Delete(context.Background(), "u1", "i2"))

	items, err := book.List(context.Background(), "u1", history.Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"i3", "i2", "i1"}, ids(items))
	assert.True(t, items[1].IsFavorite)
}

func TestBook_Delete(t *testing.T) {
	book, store := newLoadedBook(t)
	store.On("Delete", mock.Anything, "u1", "i3").Return(nil).Once()

	require.NoError(t, book.Delete(context.Background(), "u1", "i3"))

	items, err := book.List(context.Background(), "u1", history.Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"i2", "i1"}, ids(items))
}

func TestBook_DeleteUnknownPassesThroughNotFound(t *testing.T) {
	book, store := newLoadedBook(t)
	store.On("Delete", mock.Anything, "u1", "missing").Return(apperrors.NewNotFoundError("interaction", "missing")).Once()

	err := book.Delete(context.Background(), "u1", "missing")
	assert.True(t, apperrors.IsNotFound(err))

	items, err := book.List(context.Background(), "u1", history.Filter{})
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestBook_UserChangeReloads(t *testing.T) {
	book, store := newLoadedBook(t)
	other := []*models.OracleInteraction{{ID: "x1", UserID: "u2", Question: "Who am I?"}}
	store.On("ListByUser", mock.Anything, &docdb.ListInteractionsOptions{
		UserID: "u2", Limit: 20, OrderBy: docdb.SortOrderDesc,
	}).Return(other, nil).Once()

	items, err := book.List(context.Background(), "u2", history.Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"x1"}, ids(items))
}

func TestBook_ResetForcesReload(t *testing.T) {
	book, store := newLoadedBook(t)
	store.On("ListByUser", mock.Anything, mock.Anything).Return(fixtures()[:1], nil).Once()

	book.Reset()

	items, err := book.List(context.Background(), "u1", history.Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"i3"}, ids(items))
	store.AssertNumberOfCalls(t, "ListByUser", 2)
}
