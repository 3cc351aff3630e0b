package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

func registration(company, username string) RegisterCompanyInput {
	return RegisterCompanyInput{
		CompanyName: company,
		FullName:    "Founder " + username,
		Username:    username,
		Password:    "correct-horse",
		Area:        string(domain.AreaSupport),
	}
}

func TestAuthService_RegisterCompany(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	session, err := f.auth.RegisterCompany(ctx, registration("Acme", "founder"))
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, session.User.Role)
	assert.NotZero(t, session.User.CompanyID)
	require.NotEmpty(t, session.Token)

	claims, err := f.auth.TokenManager().ParseToken(session.Token)
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, claims.UserID)
	assert.Equal(t, session.User.CompanyID, claims.CompanyID)
	assert.Equal(t, domain.AreaSupport, claims.Area)

	company, err := f.auth.Company(ctx, session.User.Identity())
	require.NoError(t, err)
	assert.Equal(t, "Acme", company.Name)

	ghost := session.User.Identity()
	ghost.CompanyID = 999
	_, err = f.auth.Company(ctx, ghost)
	requireCode(t, err, "UNAUTHORIZED")
}

func TestAuthService_RegisterCompanyIsAllOrNothing(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	_, err := f.auth.RegisterCompany(ctx, registration("Acme", "founder"))
	require.NoError(t, err)

	_, err = f.auth.RegisterCompany(ctx, registration("Acme", "second"))
	requireCode(t, err, "CONFLICT")
	_, err = f.auth.RegisterCompany(ctx, registration("Globex", "founder"))
	requireCode(t, err, "CONFLICT")

	// Neither failed attempt left rows behind.
	_, err = f.auth.RegisterCompany(ctx, registration("Globex", "second"))
	require.NoError(t, err)

	_, err = f.auth.RegisterCompany(ctx, RegisterCompanyInput{Username: "x", Password: "correct-horse", FullName: "X", Area: string(domain.AreaSupport)})
	requireCode(t, err, "VALIDATION_FAILED")
	_, err = f.auth.RegisterCompany(ctx, RegisterCompanyInput{CompanyName: "Initech", Username: "x", Password: "short", FullName: "X", Area: string(domain.AreaSupport)})
	requireCode(t, err, "VALIDATION_FAILED")
}

func TestAuthService_Login(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	registered, err := f.auth.RegisterCompany(ctx, registration("Acme", "founder"))
	require.NoError(t, err)

	session, err := f.auth.Login(ctx, " founder ", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, session.User.ID)

	_, err = f.auth.Login(ctx, "founder", "wrong-horse")
	requireCode(t, err, "UNAUTHORIZED")
	_, err = f.auth.Login(ctx, "nobody", "correct-horse")
	requireCode(t, err, "UNAUTHORIZED")
	_, err = f.auth.Login(ctx, "", "")
	requireCode(t, err, "VALIDATION_FAILED")
}
