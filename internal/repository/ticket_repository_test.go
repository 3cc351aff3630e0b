package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

func TestBuildTicketWhere_CreatorOnlyScope(t *testing.T) {
	where, args := buildTicketWhere(TicketFilter{
		CompanyID: 7,
		Scope:     TicketScope{CreatorID: 3},
	})

	assert.Equal(t, "company_id=$1 AND created_by_user_id=$2", where)
	assert.Equal(t, []any{int64(7), int64(3)}, args)
}

func TestBuildTicketWhere_AllFilters(t *testing.T) {
	area := domain.AreaSupport
	status := domain.TicketStatusInReview
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	before := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)

	where, args := buildTicketWhere(TicketFilter{
		CompanyID:     1,
		Scope:         TicketScope{CreatorID: 9, Area: &area},
		Status:        &status,
		SearchTerm:    "  printer  ",
		CreatedFrom:   &from,
		CreatedBefore: &before,
	})

	assert.Equal(t,
		"company_id=$1 AND (assigned_to_area=$3 OR created_by_user_id=$2) AND status=$4"+
			" AND created_at >= $5 AND created_at < $6 AND (title ILIKE $7 OR description ILIKE $7)",
		where)
	assert.Equal(t, []any{int64(1), int64(9), area, status, from, before, "%printer%"}, args)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `100\% off\_now \\ ok`, escapeLike(`100% off_now \ ok`))
}

func TestNormalizePage(t *testing.T) {
	limit, offset := normalizePage(0, -4)
	assert.Equal(t, 9, limit)
	assert.Equal(t, 0, offset)

	limit, offset = normalizePage(20, 40)
	assert.Equal(t, 20, limit)
	assert.Equal(t, 40, offset)
}
