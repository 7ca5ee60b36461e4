package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"agendly/internal/types"
)

// CustomerRepository provides data access for the customers table: the end
// customers of each tenant's business. The scheduled sweeps read the
// birthday and last-visit columns to decide who gets an automated message.
type CustomerRepository struct {
	db DBTX
}

// NewCustomerRepository creates a new CustomerRepository backed by the given
// database connection (pool or transaction).
func NewCustomerRepository(db DBTX) *CustomerRepository {
	return &CustomerRepository{db: db}
}

const customerColumns = `c.id, c.tenant_id, c.name, c.phone, c.birthday,
	c.last_visit_at, c.created_at`

func scanCustomer(row pgx.Row) (*types.Customer, error) {
	var c types.Customer
	err := row.Scan(
		&c.ID,
		&c.TenantID,
		&c.Name,
		&c.Phone,
		&c.Birthday,
		&c.LastVisitAt,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Create inserts a new customer record for a tenant.
func (r *CustomerRepository) Create(ctx context.Context, customer *types.Customer) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO customers (id, tenant_id, name, phone, birthday,
		 last_visit_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))`,
		customer.ID,
		customer.TenantID,
		customer.Name,
		customer.Phone,
		customer.Birthday,
		customer.LastVisitAt,
		nilIfZeroTime(customer.CreatedAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create customer", err)
	}
	return nil
}

// GetByID retrieves a customer scoped to a tenant. The tenant filter is part
// of the query so a handler can never read across tenants by ID guessing.
func (r *CustomerRepository) GetByID(ctx context.Context, tenantID, id string) (*types.Customer, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+customerColumns+`
		 FROM customers c
		 WHERE c.id = $1 AND c.tenant_id = $2`,
		id,
		tenantID,
	)

	customer, err := scanCustomer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundCustomer, "customer not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve customer", err)
	}
	return customer, nil
}

// ListByTenant retrieves all customers for a tenant ordered by name. Used to
// expand campaign recipient lists.
func (r *CustomerRepository) ListByTenant(ctx context.Context, tenantID string) ([]*types.Customer, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+customerColumns+`
		 FROM customers c
		 WHERE c.tenant_id = $1
		 ORDER BY c.name ASC`,
		tenantID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list customers", err)
	}
	defer rows.Close()

	return collectCustomers(rows)
}

// ListBirthdaysOn retrieves a tenant's customers whose birthday falls on the
// given month and day, regardless of birth year. The birthday sweep runs
// this once per tenant per day.
func (r *CustomerRepository) ListBirthdaysOn(ctx context.Context, tenantID string, month time.Month, day int) ([]*types.Customer, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+customerColumns+`
		 FROM customers c
		 WHERE c.tenant_id = $1
		   AND c.birthday IS NOT NULL
		   AND EXTRACT(MONTH FROM c.birthday) = $2
		   AND EXTRACT(DAY FROM c.birthday) = $3
		 ORDER BY c.id ASC`,
		tenantID,
		int(month),
		day,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list birthday customers", err)
	}
	defer rows.Close()

	return collectCustomers(rows)
}

// ListReturnVisitDue retrieves a tenant's customers whose last visit is older
// than the cutoff. The return-visit sweep uses this to nudge lapsed
// customers back.
func (r *CustomerRepository) ListReturnVisitDue(ctx context.Context, tenantID string, cutoff time.Time) ([]*types.Customer, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+customerColumns+`
		 FROM customers c
		 WHERE c.tenant_id = $1
		   AND c.last_visit_at IS NOT NULL
		   AND c.last_visit_at < $2
		 ORDER BY c.last_visit_at ASC`,
		tenantID,
		cutoff,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list return-visit customers", err)
	}
	defer rows.Close()

	return collectCustomers(rows)
}

// RecordVisit stamps last_visit_at for a customer.
func (r *CustomerRepository) RecordVisit(ctx context.Context, tenantID, id string, visitedAt time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE customers SET last_visit_at = $1
		 WHERE id = $2 AND tenant_id = $3`,
		visitedAt,
		id,
		tenantID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record visit", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundCustomer, "customer not found", nil)
	}
	return nil
}

func collectCustomers(rows pgx.Rows) ([]*types.Customer, error) {
	var customers []*types.Customer
	for rows.Next() {
		customer, err := scanCustomer(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan customer row", err)
		}
		customers = append(customers, customer)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating customer rows", err)
	}
	return customers, nil
}
