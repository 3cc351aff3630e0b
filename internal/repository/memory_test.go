package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

var baseTime = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func seedCompany(t *testing.T, store *MemoryStore, username string) (*domain.Company, *domain.User) {
	t.Helper()
	company := &domain.Company{Name: "Acme " + username, CreatedAt: baseTime}
	admin := &domain.User{
		FullName:  "Admin " + username,
		Username:  username,
		Role:      domain.RoleAdmin,
		Area:      domain.AreaSupport,
		CreatedAt: baseTime,
	}
	require.NoError(t, store.Companies().RegisterWithAdmin(context.Background(), company, admin))
	return company, admin
}

func TestMemoryStore_RegisterRejectsDuplicateUsername(t *testing.T) {
	store := NewMemoryStore()
	seedCompany(t, store, "root")

	err := store.Companies().RegisterWithAdmin(context.Background(),
		&domain.Company{Name: "Other"}, &domain.User{Username: "root", Role: domain.RoleAdmin, Area: domain.AreaSupport})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(apperrors.MapError(err), "CONFLICT"))
}

func TestMemoryStore_UsersAreCompanyScoped(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	companyA, adminA := seedCompany(t, store, "a")
	companyB, _ := seedCompany(t, store, "b")

	got, err := store.Users().GetByID(ctx, companyA.ID, adminA.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", got.Username)

	_, err = store.Users().GetByID(ctx, companyB.ID, adminA.ID)
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestMemoryStore_DeleteReferencedUserConflicts(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	company, admin := seedCompany(t, store, "a")

	ticket := &domain.Ticket{
		Title: "t", Description: "d", Status: domain.TicketStatusOpen,
		CreatedByUserID: admin.ID, AssignedToArea: domain.AreaAccounting,
		CompanyID: company.ID, CreatedAt: baseTime,
	}
	require.NoError(t, store.Tickets().Create(ctx, ticket))

	err := store.Users().Delete(ctx, company.ID, admin.ID)
	assert.True(t, apperrors.IsCode(apperrors.MapError(err), "CONFLICT"))
}

func TestMemoryStore_TicketListScopeAndPaging(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	company, admin := seedCompany(t, store, "a")

	for i := 0; i < 5; i++ {
		area := domain.AreaAccounting
		if i%2 == 0 {
			area = domain.AreaSupport
		}
		require.NoError(t, store.Tickets().Create(ctx, &domain.Ticket{
			Title: "Printer", Description: "jam", Status: domain.TicketStatusOpen,
			CreatedByUserID: admin.ID, AssignedToArea: area, CompanyID: company.ID,
			CreatedAt: baseTime.Add(time.Duration(i) * time.Minute),
		}))
	}

	tickets, total, err := store.Tickets().List(ctx, TicketFilter{
		CompanyID: company.ID,
		Scope:     TicketScope{CreatorID: admin.ID},
		Limit:     2,
		Offset:    2,
	})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, tickets, 2)
	assert.True(t, tickets[0].CreatedAt.After(tickets[1].CreatedAt))

	support := domain.AreaSupport
	_, total, err = store.Tickets().List(ctx, TicketFilter{
		CompanyID:  company.ID,
		Scope:      TicketScope{CreatorID: -1, Area: &support},
		SearchTerm: "PRINT",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
}

func TestMemoryStore_StatusGuard(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	company, admin := seedCompany(t, store, "a")
	ticket := &domain.Ticket{
		Title: "t", Description: "d", Status: domain.TicketStatusOpen,
		CreatedByUserID: admin.ID, AssignedToArea: domain.AreaAccounting,
		CompanyID: company.ID, CreatedAt: baseTime,
	}
	require.NoError(t, store.Tickets().Create(ctx, ticket))

	ticket.Status = domain.TicketStatusInReview
	require.NoError(t, store.Tickets().UpdateStatus(ctx, ticket, domain.TicketStatusOpen))

	ticket.Status = domain.TicketStatusResolved
	err := store.Tickets().UpdateStatus(ctx, ticket, domain.TicketStatusOpen)
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}
