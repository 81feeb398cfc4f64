package upstream

import (
	"context"
	"errors"
	"fmt"

	"principal_analytics_backend/internal/principals/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txStarter interface {
	querier
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// snapshotTxOptions pins every read of one snapshot to the same database
// state.
var snapshotTxOptions = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}

// PostgresReader reads upstream relations with one query per relation.
type PostgresReader struct {
	db txStarter
}

// NewPostgresReader creates a reader over the CRM tables.
func NewPostgresReader(pool *pgxpool.Pool) *PostgresReader {
	return &PostgresReader{db: pool}
}

// Compile-time check that PostgresReader implements Reader.
var _ Reader = (*PostgresReader)(nil)

func (r *PostgresReader) ListPrincipalIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id
		FROM organizations
		WHERE is_principal AND deleted_at IS NULL
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list principal ids: %w", err)
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan principal id: %w", err)
		}
		ids = append(ids, id)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate principal ids: %w", rows.Err())
	}
	return ids, nil
}

// Snapshot reads the principal and its four relations inside one read-only
// repeatable-read transaction, so a refresh never mixes upstream states.
// Relations are queried separately to avoid the row multiplication of a
// single multi-way join.
func (r *PostgresReader) Snapshot(ctx context.Context, principalID uuid.UUID) (domain.UpstreamSnapshot, bool, error) {
	tx, err := r.db.BeginTx(ctx, snapshotTxOptions)
	if err != nil {
		return domain.UpstreamSnapshot{}, false, fmt.Errorf("begin upstream snapshot: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	principal, err := r.principal(ctx, tx, principalID)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.UpstreamSnapshot{}, false, nil
	}
	if err != nil {
		return domain.UpstreamSnapshot{}, false, err
	}

	snapshot := domain.UpstreamSnapshot{Principal: principal}
	if snapshot.Contacts, err = r.contacts(ctx, tx, principalID); err != nil {
		return domain.UpstreamSnapshot{}, false, err
	}
	if snapshot.Interactions, err = r.interactions(ctx, tx, principalID); err != nil {
		return domain.UpstreamSnapshot{}, false, err
	}
	if snapshot.Opportunities, err = r.opportunities(ctx, tx, principalID); err != nil {
		return domain.UpstreamSnapshot{}, false, err
	}
	if snapshot.Products, err = r.products(ctx, tx, principalID); err != nil {
		return domain.UpstreamSnapshot{}, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.UpstreamSnapshot{}, false, fmt.Errorf("commit upstream snapshot: %w", err)
	}
	return snapshot, true, nil
}

func (r *PostgresReader) principal(ctx context.Context, q querier, id uuid.UUID) (domain.Principal, error) {
	query := `
		SELECT o.id, o.name, o.status, o.organization_type, o.industry, o.size,
			o.lead_score::float8, o.is_active, o.distributor_id, d.name,
			o.created_at, o.updated_at
		FROM organizations o
		LEFT JOIN organizations d ON d.id = o.distributor_id AND d.deleted_at IS NULL
		WHERE o.id = $1 AND o.is_principal AND o.deleted_at IS NULL`

	var p domain.Principal
	err := q.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Name, &p.Status, &p.Type, &p.Industry, &p.Size,
		&p.LeadScore, &p.IsActive, &p.DistributorID, &p.DistributorName,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Principal{}, err
		}
		return domain.Principal{}, fmt.Errorf("get principal: %w", err)
	}
	return p, nil
}

func (r *PostgresReader) contacts(ctx context.Context, q querier, principalID uuid.UUID) ([]domain.Contact, error) {
	rows, err := q.Query(ctx, `
		SELECT id, first_name, last_name, email, is_active, updated_at
		FROM contacts
		WHERE organization_id = $1 AND deleted_at IS NULL`, principalID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Contact, 0)
	for rows.Next() {
		var c domain.Contact
		if err := rows.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.IsActive, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		items = append(items, c)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate contacts: %w", rows.Err())
	}
	return items, nil
}

// interactions returns every interaction reachable through one of the
// principal's opportunities or contacts. UNION drops the duplicates of an
// interaction linked both ways.
func (r *PostgresReader) interactions(ctx context.Context, q querier, principalID uuid.UUID) ([]domain.Interaction, error) {
	rows, err := q.Query(ctx, `
		SELECT i.id, i.type, i.interaction_date, i.rating, i.outcome, i.follow_up_required, i.follow_up_date
		FROM interactions i
		JOIN opportunities o ON o.id = i.opportunity_id
		WHERE o.principal_id = $1 AND o.deleted_at IS NULL AND i.deleted_at IS NULL
		UNION
		SELECT i.id, i.type, i.interaction_date, i.rating, i.outcome, i.follow_up_required, i.follow_up_date
		FROM interactions i
		JOIN contacts c ON c.id = i.contact_id
		WHERE c.organization_id = $1 AND c.deleted_at IS NULL AND i.deleted_at IS NULL`, principalID)
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Interaction, 0)
	for rows.Next() {
		var it domain.Interaction
		if err := rows.Scan(
			&it.ID, &it.Type, &it.InteractionDate, &it.Rating, &it.Outcome,
			&it.FollowUpRequired, &it.FollowUpDate,
		); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		items = append(items, it)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate interactions: %w", rows.Err())
	}
	return items, nil
}

func (r *PostgresReader) opportunities(ctx context.Context, q querier, principalID uuid.UUID) ([]domain.Opportunity, error) {
	rows, err := q.Query(ctx, `
		SELECT id, stage, is_won, probability, product_id, created_at, updated_at
		FROM opportunities
		WHERE principal_id = $1 AND deleted_at IS NULL`, principalID)
	if err != nil {
		return nil, fmt.Errorf("list opportunities: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Opportunity, 0)
	for rows.Next() {
		var o domain.Opportunity
		if err := rows.Scan(&o.ID, &o.Stage, &o.IsWon, &o.Probability, &o.ProductID, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan opportunity: %w", err)
		}
		items = append(items, o)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate opportunities: %w", rows.Err())
	}
	return items, nil
}

func (r *PostgresReader) products(ctx context.Context, q querier, principalID uuid.UUID) ([]domain.ProductAssociation, error) {
	rows, err := q.Query(ctx, `
		SELECT pa.id, pa.product_id, p.category, pa.is_active
		FROM product_associations pa
		JOIN products p ON p.id = pa.product_id AND p.deleted_at IS NULL
		WHERE pa.principal_id = $1 AND pa.deleted_at IS NULL`, principalID)
	if err != nil {
		return nil, fmt.Errorf("list product associations: %w", err)
	}
	defer rows.Close()

	items := make([]domain.ProductAssociation, 0)
	for rows.Next() {
		var pa domain.ProductAssociation
		if err := rows.Scan(&pa.ID, &pa.ProductID, &pa.Category, &pa.IsActive); err != nil {
			return nil, fmt.Errorf("scan product association: %w", err)
		}
		items = append(items, pa)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate product associations: %w", rows.Err())
	}
	return items, nil
}
