package controller

import (
	"context"
	"errors"
	"strings"
	"testing"

	e "github.com/gartstein/orderdesk/internal/orders/errors"
	"github.com/gartstein/orderdesk/internal/orders/events"
	"github.com/gartstein/orderdesk/internal/orders/models"
	"github.com/gartstein/orderdesk/internal/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func acme() models.Company {
	return models.Company{
		Name:       "Acme",
		LegalID:    "12.345.678/0001-90",
		Phone:      "555-0100",
		Street:     "Main St",
		Number:     "42",
		PostalCode: "01000-000",
		City:       "Springfield",
		Region:     "SP",
	}
}

func TestCatalogService_CreateCompany(t *testing.T) {
	repo := newTestRepository(t)
	producer := &MockProducer{}
	svc := NewCatalogService(repo, producer, zaptest.NewLogger(t), testOptions()...)
	ctx := staffContext(t, repo, "maria")

	input := acme()
	input.ID = 99
	input.Name = "  Acme  "
	created, err := svc.CreateCompany(ctx, input)
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.NotEqual(t, int64(99), created.ID, "caller supplied ids are ignored")
	assert.Equal(t, "Acme", created.Name, "fields should be trimmed")
	assert.Equal(t, []events.EventType{events.CompanyCreated}, producer.Types())

	tests := []struct {
		name    string
		mutate  func(*models.Company)
		wantErr error
		field   string
	}{
		{"blank name", func(c *models.Company) { c.Name = "  " }, e.ErrInvalidInput, "name"},
		{"blank legal id", func(c *models.Company) { c.Name = "Other"; c.LegalID = "" }, e.ErrInvalidInput, "legal_id"},
		{"blank phone", func(c *models.Company) { c.Name = "Other"; c.LegalID = "2"; c.Phone = "" }, e.ErrInvalidInput, "phone"},
		{"name too long", func(c *models.Company) { c.Name = strings.Repeat("n", 201) }, e.ErrInvalidInput, "name"},
		{"legal id too long", func(c *models.Company) { c.LegalID = strings.Repeat("1", 33) }, e.ErrInvalidInput, "legal_id"},
		{"phone too long", func(c *models.Company) { c.Phone = strings.Repeat("5", 33) }, e.ErrInvalidInput, "phone"},
		{"street too long", func(c *models.Company) { c.Street = strings.Repeat("s", 201) }, e.ErrInvalidInput, "street"},
		{"number too long", func(c *models.Company) { c.Number = strings.Repeat("4", 21) }, e.ErrInvalidInput, "number"},
		{"postal code too long", func(c *models.Company) { c.PostalCode = strings.Repeat("0", 21) }, e.ErrInvalidInput, "postal_code"},
		{"city too long", func(c *models.Company) { c.City = strings.Repeat("c", 101) }, e.ErrInvalidInput, "city"},
		{"region too long", func(c *models.Company) { c.Region = strings.Repeat("r", 101) }, e.ErrInvalidInput, "region"},
		{"duplicate name", func(c *models.Company) { c.LegalID = "other" }, e.ErrDuplicate, "name"},
		{"duplicate legal id", func(c *models.Company) { c.Name = "Other" }, e.ErrDuplicate, "legal_id"},
		{"multibyte at the limit", func(c *models.Company) { c.Name = "Initech"; c.LegalID = "x"; c.City = strings.Repeat("ç", 100) }, nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := acme()
			tt.mutate(&c)
			_, err := svc.CreateCompany(ctx, c)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)

			var validation *e.ValidationError
			var conflict *e.ConflictError
			switch {
			case errors.As(err, &validation):
				assert.Equal(t, tt.field, validation.Field)
			case errors.As(err, &conflict):
				assert.Equal(t, tt.field, conflict.Field)
			default:
				t.Fatalf("unexpected error shape: %v", err)
			}
		})
	}

	companies, err := svc.ListCompanies(ctx)
	require.NoError(t, err)
	assert.Len(t, companies, 2, "rejected companies must not be stored")
}

func TestCompanyConflictNamesTheTakenKey(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	first := acme()
	require.NoError(t, repo.CreateCompany(ctx, &first))

	tests := []struct {
		name      string
		company   models.Company
		wantField string
		wantValue string
	}{
		{"legal id", models.Company{Name: "Globex", LegalID: first.LegalID, Phone: "1"}, "legal_id", first.LegalID},
		{"name", models.Company{Name: "Acme", LegalID: "other", Phone: "1"}, "name", "Acme"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.company
			storeErr := repo.CreateCompany(ctx, &c)
			require.ErrorIs(t, storeErr, e.ErrDuplicate)

			var conflict *e.ConflictError
			require.ErrorAs(t, companyConflict(storeErr, tt.company), &conflict)
			assert.Equal(t, "company", conflict.Entity)
			assert.Equal(t, tt.wantField, conflict.Field)
			assert.Equal(t, tt.wantValue, conflict.Value)
		})
	}
}

func TestCatalogService_UpdateCompany(t *testing.T) {
	repo := newTestRepository(t)
	producer := &MockProducer{}
	svc := NewCatalogService(repo, producer, zaptest.NewLogger(t), testOptions()...)
	ctx := staffContext(t, repo, "maria")

	created, err := svc.CreateCompany(ctx, acme())
	require.NoError(t, err)
	other := acme()
	other.Name, other.LegalID = "Globex", "98.765.432/0001-10"
	globex, err := svc.CreateCompany(ctx, other)
	require.NoError(t, err)

	updated, err := svc.UpdateCompany(ctx, models.CompanyUpdate{
		ID:    created.ID,
		Phone: utils.Ptr(" 555-0199 "),
		City:  utils.Ptr(""),
	})
	require.NoError(t, err)
	assert.Equal(t, "555-0199", updated.Phone)
	assert.Equal(t, "", updated.City, "optional fields can be cleared")
	assert.Equal(t, "Acme", updated.Name, "untouched fields keep their value")
	assert.Equal(t, events.CompanyUpdated, producer.Last().Type)

	renamed, err := svc.UpdateCompany(ctx, models.CompanyUpdate{ID: created.ID, Name: utils.Ptr("Acme")})
	require.NoError(t, err, "keeping its own name is not a conflict")
	assert.Equal(t, "Acme", renamed.Name)

	tests := []struct {
		name    string
		update  models.CompanyUpdate
		wantErr error
	}{
		{"invalid id", models.CompanyUpdate{ID: 0, Name: utils.Ptr("x")}, e.ErrInvalidInput},
		{"missing company", models.CompanyUpdate{ID: 404, Name: utils.Ptr("x")}, e.ErrNotFound},
		{"blank name", models.CompanyUpdate{ID: created.ID, Name: utils.Ptr(" ")}, e.ErrInvalidInput},
		{"blank phone", models.CompanyUpdate{ID: created.ID, Phone: utils.Ptr("")}, e.ErrInvalidInput},
		{"name taken", models.CompanyUpdate{ID: created.ID, Name: utils.Ptr("Globex")}, e.ErrDuplicate},
		{"legal id taken", models.CompanyUpdate{ID: created.ID, LegalID: utils.Ptr(globex.LegalID)}, e.ErrDuplicate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UpdateCompany(ctx, tt.update)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	stored, err := svc.GetCompany(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", stored.Name, "failed updates leave the row unchanged")
	assert.Equal(t, "555-0199", stored.Phone)
}

func TestCatalogService_DeleteCompany(t *testing.T) {
	repo := newTestRepository(t)
	producer := &MockProducer{}
	logger := zaptest.NewLogger(t)
	catalog := NewCatalogService(repo, producer, logger, testOptions()...)
	orders := NewOrderService(repo, producer, logger, testOptions()...)
	ctx := staffContext(t, repo, "maria")

	company, err := catalog.CreateCompany(ctx, acme())
	require.NoError(t, err)
	st, err := catalog.CreateServiceType(ctx, "Dry Cleaning")
	require.NoError(t, err)
	order, err := orders.Open(ctx, company.ID, st.ID, "Stain removal", "Red wine on a wool coat")
	require.NoError(t, err)

	err = catalog.DeleteCompany(ctx, company.ID)
	require.ErrorIs(t, err, e.ErrReferenced)
	var ref *e.ReferencedError
	require.ErrorAs(t, err, &ref)
	assert.Equal(t, int64(1), ref.Count)

	_, err = catalog.GetCompany(ctx, company.ID)
	assert.NoError(t, err, "blocked delete leaves the company in place")

	require.NoError(t, orders.Delete(ctx, order.ID))
	require.NoError(t, catalog.DeleteCompany(ctx, company.ID))
	_, err = catalog.GetCompany(ctx, company.ID)
	assert.ErrorIs(t, err, e.ErrNotFound)
	assert.Equal(t, events.CompanyDeleted, producer.Last().Type)

	assert.ErrorIs(t, catalog.DeleteCompany(ctx, company.ID), e.ErrNotFound)
}

func TestCatalogService_ServiceTypes(t *testing.T) {
	repo := newTestRepository(t)
	producer := &MockProducer{}
	logger := zaptest.NewLogger(t)
	catalog := NewCatalogService(repo, producer, logger, testOptions()...)
	orders := NewOrderService(repo, producer, logger, testOptions()...)
	ctx := staffContext(t, repo, "maria")

	laundry, err := catalog.CreateServiceType(ctx, " Laundry ")
	require.NoError(t, err)
	assert.Equal(t, "Laundry", laundry.Name)
	_, err = catalog.CreateServiceType(ctx, "Dry Cleaning")
	require.NoError(t, err)

	_, err = catalog.CreateServiceType(ctx, "Laundry")
	assert.ErrorIs(t, err, e.ErrDuplicate)
	_, err = catalog.CreateServiceType(ctx, "")
	assert.ErrorIs(t, err, e.ErrInvalidInput)

	types, err := catalog.ListServiceTypes(ctx)
	require.NoError(t, err)
	require.Len(t, types, 2)
	assert.Equal(t, "Dry Cleaning", types[0].Name)
	assert.Equal(t, "Laundry", types[1].Name)

	renamed, err := catalog.UpdateServiceType(ctx, laundry.ID, "Washing")
	require.NoError(t, err)
	assert.Equal(t, "Washing", renamed.Name)
	_, err = catalog.UpdateServiceType(ctx, laundry.ID, "Dry Cleaning")
	assert.ErrorIs(t, err, e.ErrDuplicate)
	_, err = catalog.UpdateServiceType(ctx, laundry.ID, "Washing")
	assert.NoError(t, err, "keeping its own name is not a conflict")
	_, err = catalog.UpdateServiceType(ctx, 404, "Anything")
	assert.ErrorIs(t, err, e.ErrNotFound)

	company, err := catalog.CreateCompany(ctx, acme())
	require.NoError(t, err)
	order, err := orders.Open(ctx, company.ID, laundry.ID, "Shirts", "Ten shirts")
	require.NoError(t, err)

	assert.ErrorIs(t, catalog.DeleteServiceType(ctx, laundry.ID), e.ErrReferenced)
	require.NoError(t, orders.Delete(ctx, order.ID))
	require.NoError(t, catalog.DeleteServiceType(ctx, laundry.ID))

	got, err := catalog.GetServiceType(ctx, laundry.ID)
	assert.ErrorIs(t, err, e.ErrNotFound)
	assert.Nil(t, got)
}

func TestReferencedByNormalizesStoreErrors(t *testing.T) {
	err := referencedBy(e.ErrReferenced, "company", 7)
	var ref *e.ReferencedError
	require.ErrorAs(t, err, &ref)
	assert.Equal(t, int64(7), ref.ID)

	original := &e.ReferencedError{Entity: "company", ID: 7, Count: 3}
	assert.Same(t, original, referencedBy(original, "company", 7))
	assert.Equal(t, e.ErrNotFound, referencedBy(e.ErrNotFound, "company", 7))
}

func TestCatalogReadsNeedOnlyAuthentication(t *testing.T) {
	repo := newTestRepository(t)
	svc := NewCatalogService(repo, nil, zaptest.NewLogger(t), testOptions()...)

	_, err := svc.ListCompanies(staffContext(t, repo, "maria"))
	assert.NoError(t, err)
	_, err = svc.ListServiceTypes(context.Background())
	assert.ErrorIs(t, err, e.ErrUnauthenticated)
}
