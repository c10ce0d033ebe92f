package request

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rayenfassatoui/amen-bank/internal/apperr"
	"github.com/rayenfassatoui/amen-bank/internal/audit"
	"github.com/rayenfassatoui/amen-bank/internal/ledger"
	"github.com/rayenfassatoui/amen-bank/internal/pagination"
)

type fixture struct {
	agencyID, agencyName, agencyCode, requester string
	amount                                      string
	status                                      Status
	at                                          time.Time
}

func seed(t *testing.T, repo *MemoryRepository, f fixture) FundRequest {
	t.Helper()
	amount := decimal.RequireFromString(f.amount)
	req := FundRequest{
		ID:            uuid.NewString(),
		Type:          TypeProvisionnement,
		Status:        f.status,
		TotalAmount:   amount,
		Currency:      "TND",
		AgencyID:      f.agencyID,
		AgencyName:    f.agencyName,
		AgencyCode:    f.agencyCode,
		RequesterName: f.requester,
		UserID:        "user-1",
		CreatedAt:     f.at,
		UpdatedAt:     f.at,
		Lines:         []ledger.Line{{Type: ledger.Bill, Denomination: decimal.NewFromInt(50), Quantity: 1, TotalValue: amount}},
	}
	created, err := repo.CreateWithLines(context.Background(), req, audit.NewEntry(req.ID, audit.ActionRequestCreated, nil, "created", f.at))
	require.NoError(t, err)
	return created
}

func TestMemoryRepositoryFindMany(t *testing.T) {
	repo := NewMemoryRepository(audit.NewMemoryStore())
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	seed(t, repo, fixture{"ag1", "Amen Bank - Tunis Centre", "AG001", "Ahmed Ben Salah", "5000", StatusSubmitted, base})
	seed(t, repo, fixture{"ag2", "Amen Bank - Sfax", "AG003", "Leila Gharbi", "12000", StatusValidated, base.Add(time.Hour)})
	seed(t, repo, fixture{"ag1", "Amen Bank - Tunis Centre", "AG001", "Ahmed Ben Salah", "800", StatusRejected, base.Add(2 * time.Hour)})
	ctx := context.Background()
	page := pagination.Request{Page: 1, Limit: 10}

	all, total, err := repo.FindMany(ctx, Filter{}, DefaultSort, page)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, StatusRejected, all[0].Status, "newest first")

	byStatus, total, err := repo.FindMany(ctx, Filter{Statuses: []Status{StatusSubmitted, StatusValidated}}, DefaultSort, page)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, byStatus, 2)

	bySearch, _, err := repo.FindMany(ctx, Filter{Search: "SFAX"}, DefaultSort, page)
	require.NoError(t, err)
	require.Len(t, bySearch, 1)
	assert.Equal(t, "ag2", bySearch[0].AgencyID)

	byRequester, _, err := repo.FindMany(ctx, Filter{Search: "ben salah"}, DefaultSort, page)
	require.NoError(t, err)
	assert.Len(t, byRequester, 2)

	floor := decimal.NewFromInt(1000)
	byAmount, _, err := repo.FindMany(ctx, Filter{MinAmount: &floor}, Sort{Key: SortTotalAmount}, page)
	require.NoError(t, err)
	require.Len(t, byAmount, 2)
	assert.True(t, byAmount[0].TotalAmount.Equal(decimal.NewFromInt(5000)))

	paged, total, err := repo.FindMany(ctx, Filter{}, DefaultSort, pagination.Request{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, paged, 1)
}

func TestMemoryRepositoryTransitionAppendsAudit(t *testing.T) {
	log := audit.NewMemoryStore()
	repo := NewMemoryRepository(log)
	req := seed(t, repo, fixture{"ag1", "Tunis", "AG001", "Ahmed", "5000", StatusSubmitted, time.Now().UTC()})
	ctx := context.Background()

	next, err := repo.Transition(ctx, req.ID, func(cur FundRequest) (FundRequest, audit.Entry, error) {
		cur.Status = StatusValidated
		return cur, audit.NewEntry(cur.ID, audit.ActionRequestValidated, nil, "ok", time.Now()), nil
	})
	require.NoError(t, err)
	assert.Equal(t, StatusValidated, next.Status)
	assert.Equal(t, int64(2), next.Version)
	assert.Len(t, next.Lines, 1)
	assert.Equal(t, 2, log.Len())

	boom := errors.New("precondition failed")
	_, err = repo.Transition(ctx, req.ID, func(cur FundRequest) (FundRequest, audit.Entry, error) {
		return FundRequest{}, audit.Entry{}, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, log.Len(), "failed mutation must not append")

	stored, err := repo.FindByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusValidated, stored.Status)
}

func TestMemoryRepositoryNotFound(t *testing.T) {
	repo := NewMemoryRepository(audit.NewMemoryStore())
	_, err := repo.FindByID(context.Background(), "missing")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = repo.Transition(context.Background(), "missing", func(cur FundRequest) (FundRequest, audit.Entry, error) {
		t.Fatal("mutation must not run for a missing request")
		return cur, audit.Entry{}, nil
	})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestMemoryRepositorySummarize(t *testing.T) {
	repo := NewMemoryRepository(audit.NewMemoryStore())
	now := time.Now().UTC()
	seed(t, repo, fixture{"ag1", "Tunis", "AG001", "A", "100.500", StatusSubmitted, now})
	seed(t, repo, fixture{"ag1", "Tunis", "AG001", "A", "200", StatusSubmitted, now})
	seed(t, repo, fixture{"ag2", "Sfax", "AG003", "B", "50", StatusCompleted, now})

	totals, err := repo.Summarize(context.Background(), Filter{AgencyID: "ag1"})
	require.NoError(t, err)
	require.Len(t, totals, 1)
	assert.Equal(t, 2, totals[0].Count)
	assert.Equal(t, "300.5", totals[0].Amount.String())
}

func TestParseHelpers(t *testing.T) {
	s, ok := ParseStatus("DISPATCHED")
	assert.True(t, ok)
	assert.Equal(t, StatusDispatched, s)
	_, ok = ParseStatus("LOST")
	assert.False(t, ok)

	assert.Equal(t, SortAgency, ParseSortKey("agency"))
	assert.Equal(t, SortCreatedAt, ParseSortKey("; DROP TABLE"))
	assert.True(t, TypeVersement.Valid())
	assert.False(t, Type("LOAN").Valid())
}
