package seed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/rayenfassatoui/amen-bank/internal/agency"
	"github.com/rayenfassatoui/amen-bank/internal/audit"
	"github.com/rayenfassatoui/amen-bank/internal/identity"
	"github.com/rayenfassatoui/amen-bank/internal/lifecycle"
	"github.com/rayenfassatoui/amen-bank/internal/logging"
	"github.com/rayenfassatoui/amen-bank/internal/request"
)

func TestRunIsRepeatable(t *testing.T) {
	ctx := context.Background()
	log := audit.NewMemoryStore()
	agencies := agency.NewService(agency.NewMemoryRepository())
	users := identity.NewService(identity.NewMemoryRepository(), agencies, bcrypt.MinCost)
	engine := lifecycle.NewEngine(lifecycle.Deps{
		Requests:  request.NewMemoryRepository(log),
		AuditLog:  log,
		Agencies:  agencies,
		Passwords: users,
		Logger:    logging.Discard(),
	})
	d := Deps{Agencies: agencies, Users: users, Engine: engine, Logger: logging.Discard()}

	require.NoError(t, Run(ctx, d))
	entries := log.Len()
	require.NoError(t, Run(ctx, d))
	assert.Equal(t, entries, log.Len(), "second run must not add requests")

	list, err := agencies.List(ctx, operator)
	require.NoError(t, err)
	assert.Len(t, list, 5)

	admin, err := users.Authenticate(ctx, "admin@amenbank.com.tn", AdminPassword)
	require.NoError(t, err)
	p := admin.Principal()
	sum, err := engine.Summary(ctx, &p, request.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Total)
}
