// Package seed loads the demo agencies, one user per role and a handful of
// requests spread across the lifecycle. Running it twice is harmless.
package seed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/rayenfassatoui/amen-bank/internal/agency"
	"github.com/rayenfassatoui/amen-bank/internal/authz"
	"github.com/rayenfassatoui/amen-bank/internal/identity"
	"github.com/rayenfassatoui/amen-bank/internal/ledger"
	"github.com/rayenfassatoui/amen-bank/internal/lifecycle"
	"github.com/rayenfassatoui/amen-bank/internal/request"
)

// Demo credentials.
const (
	AdminPassword = "admin123"
	UserPassword  = "password123"
)

var operator = &authz.Principal{ID: "seed", Name: "Seed", Role: authz.RoleAdministrator}

// Deps are the services the seed writes through.
type Deps struct {
	Agencies *agency.Service
	Users    *identity.Service
	Engine   *lifecycle.Engine
	Logger   *slog.Logger
}

var agencies = []agency.CreateInput{
	{Name: "Amen Bank - Tunis Centre", Code: "AG001", Address: "163 Avenue de la Liberté", City: "Tunis", Phone: "+216 71 835 500"},
	{Name: "Amen Bank - Carthage", Code: "AG002", Address: "Avenue Habib Bourguiba", City: "Carthage", Phone: "+216 71 731 200"},
	{Name: "Amen Bank - Sfax", Code: "AG003", Address: "Avenue Hedi Chaker", City: "Sfax", Phone: "+216 74 225 300"},
	{Name: "Central Cash Department", Code: "CENTRAL", Address: "163 Avenue de la Liberté", City: "Tunis", Phone: "+216 71 835 500"},
	{Name: "Tunisia Security Services", Code: "SECURITY", Address: "Rue de la Sécurité", City: "Tunis", Phone: "+216 71 845 600"},
}

type demoUser struct {
	input      identity.CreateUserInput
	agencyCode string
}

var users = []demoUser{
	{identity.CreateUserInput{Email: "admin@amenbank.com.tn", Password: AdminPassword, FirstName: "Admin", LastName: "System", Phone: "+216 71 835 500", Role: authz.RoleAdministrator}, "AG001"},
	{identity.CreateUserInput{Email: "agency@amenbank.com.tn", Password: UserPassword, FirstName: "Ahmed", LastName: "Ben Ali", Phone: "+216 71 835 501", Role: authz.RoleAgency}, "AG001"},
	{identity.CreateUserInput{Email: "cash@amenbank.com.tn", Password: UserPassword, FirstName: "Fatma", LastName: "Trabelsi", Phone: "+216 71 835 510", Role: authz.RoleCentralCash}, "CENTRAL"},
	{identity.CreateUserInput{Email: "security@tunisiasecurity.tn", Password: UserPassword, FirstName: "Mohamed", LastName: "Amari", Phone: "+216 71 845 601", Role: authz.RoleTunisiaSecurity}, "SECURITY"},
	{identity.CreateUserInput{Email: "agency.carthage@amenbank.com.tn", Password: UserPassword, FirstName: "Leila", LastName: "Kacem", Phone: "+216 71 731 201", Role: authz.RoleAgency}, "AG002"},
	{identity.CreateUserInput{Email: "agency.sfax@amenbank.com.tn", Password: UserPassword, FirstName: "Karim", LastName: "Jebali", Phone: "+216 74 225 301", Role: authz.RoleAgency}, "AG003"},
}

// Run seeds the directory, then the sample requests when none exist yet.
func Run(ctx context.Context, d Deps) error {
	codes, err := seedAgencies(ctx, d)
	if err != nil {
		return err
	}
	byEmail, err := seedUsers(ctx, d, codes)
	if err != nil {
		return err
	}
	if d.Engine == nil {
		return nil
	}
	return seedRequests(ctx, d, byEmail)
}

func seedAgencies(ctx context.Context, d Deps) (map[string]string, error) {
	existing, err := d.Agencies.List(ctx, operator)
	if err != nil {
		return nil, err
	}
	codes := make(map[string]string, len(existing))
	for _, a := range existing {
		codes[a.Code] = a.ID
	}
	for _, in := range agencies {
		if _, ok := codes[in.Code]; ok {
			continue
		}
		a, err := d.Agencies.Create(ctx, operator, in)
		if err != nil {
			return nil, fmt.Errorf("seed agency %s: %w", in.Code, err)
		}
		codes[a.Code] = a.ID
		d.Logger.Info("agency seeded", "code", a.Code)
	}
	return codes, nil
}

func seedUsers(ctx context.Context, d Deps, codes map[string]string) (map[string]authz.Principal, error) {
	existing, err := d.Users.ListUsers(ctx, operator)
	if err != nil {
		return nil, err
	}
	byEmail := make(map[string]authz.Principal, len(existing))
	for _, u := range existing {
		byEmail[u.Email] = u.Principal()
	}
	for _, du := range users {
		if _, ok := byEmail[du.input.Email]; ok {
			continue
		}
		in := du.input
		in.AgencyID = codes[du.agencyCode]
		u, err := d.Users.CreateUser(ctx, operator, in)
		if err != nil {
			return nil, fmt.Errorf("seed user %s: %w", in.Email, err)
		}
		byEmail[u.Email] = u.Principal()
		d.Logger.Info("user seeded", "email", u.Email, "role", string(u.Role))
	}
	return byEmail, nil
}

func seedRequests(ctx context.Context, d Deps, byEmail map[string]authz.Principal) error {
	admin := byEmail["admin@amenbank.com.tn"]
	existing, err := d.Engine.List(ctx, &admin, lifecycle.ListQuery{})
	if err != nil {
		return err
	}
	if existing.Pagination.Total > 0 {
		return nil
	}

	tunis := byEmail["agency@amenbank.com.tn"]
	carthage := byEmail["agency.carthage@amenbank.com.tn"]
	sfax := byEmail["agency.sfax@amenbank.com.tn"]
	cash := byEmail["cash@amenbank.com.tn"]
	security := byEmail["security@tunisiasecurity.tn"]

	bills := func(pairs ...int64) []ledger.Line {
		lines := make([]ledger.Line, 0, len(pairs)/2)
		for i := 0; i+1 < len(pairs); i += 2 {
			lines = append(lines, ledger.Line{Type: ledger.Bill, Denomination: decimal.NewFromInt(pairs[i]), Quantity: pairs[i+1]})
		}
		return lines
	}
	create := func(p authz.Principal, t request.Type, total int64, lines []ledger.Line) (request.FundRequest, error) {
		return d.Engine.Create(ctx, &p, lifecycle.CreateInput{Type: t, TotalAmount: decimal.NewFromInt(total), Lines: lines})
	}

	// Submitted.
	if _, err := create(tunis, request.TypeProvisionnement, 50000, bills(50, 600, 20, 500, 10, 1000)); err != nil {
		return err
	}

	// Validated.
	validated, err := create(carthage, request.TypeVersement, 75000, bills(50, 1000, 20, 1000, 10, 500))
	if err != nil {
		return err
	}
	if _, err := d.Engine.Validate(ctx, &cash, validated.ID); err != nil {
		return err
	}

	// Rejected.
	rejected, err := create(sfax, request.TypeProvisionnement, 10000, bills(50, 100, 20, 250))
	if err != nil {
		return err
	}
	if _, err := d.Engine.Reject(ctx, &cash, rejected.ID, lifecycle.RejectInput{Reason: "Insufficient justification for the requested amount"}); err != nil {
		return err
	}

	// Completed.
	done, err := create(tunis, request.TypeVersement, 30000, bills(50, 300, 30, 500))
	if err != nil {
		return err
	}
	if _, err := d.Engine.Validate(ctx, &cash, done.ID); err != nil {
		return err
	}
	if _, err := d.Engine.AssignTeam(ctx, &security, done.ID, lifecycle.AssignTeamInput{TeamName: "Team Alpha", DriverCIN: "12345678", TransporterCIN: "87654321"}); err != nil {
		return err
	}
	if _, err := d.Engine.Dispatch(ctx, &security, done.ID, lifecycle.DispatchInput{DispatchedBy: security.Name}); err != nil {
		return err
	}
	if _, err := d.Engine.ConfirmReceipt(ctx, &tunis, done.ID, lifecycle.ReceiptInput{
		ReceivedBy: tunis.Name, NonCompliance: request.NonComplianceNo, Password: UserPassword,
	}); err != nil {
		return err
	}

	d.Logger.Info("sample requests seeded")
	return nil
}
