package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"principal_analytics_backend/internal/principals/domain"
	"principal_analytics_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const summaryTable = "principal_activity_summaries"

// summaryColumns is the column order used by every select and the upsert.
var summaryColumns = []string{
	"principal_id", "principal_name", "principal_status", "principal_type",
	"industry", "size", "lead_score", "is_active",
	"principal_created_at", "principal_updated_at",
	"contact_count", "active_contacts", "primary_contact_name", "primary_contact_email", "last_contact_update",
	"total_interactions", "interactions_last_30_days", "interactions_last_90_days",
	"last_interaction_date", "last_interaction_type", "next_follow_up_date",
	"avg_interaction_rating", "positive_interaction_count", "follow_ups_required",
	"total_opportunities", "active_opportunities", "won_opportunities", "opportunities_last_30_days",
	"latest_opportunity_stage", "latest_opportunity_date", "avg_probability_percent",
	"product_count", "active_product_count", "product_categories", "primary_product_category",
	"distributor_id", "distributor_name",
	"last_activity_date", "activity_status", "engagement_score", "summary_generated_at",
}

// sortColumns maps sortable JSON field names to SQL order expressions. Text
// columns use the C collation so ordering matches byte order everywhere.
var sortColumns = map[string]string{
	"principal_name":             `principal_name COLLATE "C"`,
	"principal_status":           `principal_status COLLATE "C"`,
	"principal_type":             `principal_type COLLATE "C"`,
	"industry":                   `industry COLLATE "C"`,
	"size":                       `size COLLATE "C"`,
	"lead_score":                 "lead_score",
	"is_active":                  "is_active",
	"principal_created_at":       "principal_created_at",
	"principal_updated_at":       "principal_updated_at",
	"contact_count":              "contact_count",
	"active_contacts":            "active_contacts",
	"primary_contact_name":       `primary_contact_name COLLATE "C"`,
	"last_contact_update":        "last_contact_update",
	"total_interactions":         "total_interactions",
	"interactions_last_30_days":  "interactions_last_30_days",
	"interactions_last_90_days":  "interactions_last_90_days",
	"last_interaction_date":      "last_interaction_date",
	"next_follow_up_date":        "next_follow_up_date",
	"avg_interaction_rating":     "avg_interaction_rating",
	"positive_interaction_count": "positive_interaction_count",
	"follow_ups_required":        "follow_ups_required",
	"total_opportunities":        "total_opportunities",
	"active_opportunities":       "active_opportunities",
	"won_opportunities":          "won_opportunities",
	"opportunities_last_30_days": "opportunities_last_30_days",
	"latest_opportunity_stage":   `latest_opportunity_stage COLLATE "C"`,
	"latest_opportunity_date":    "latest_opportunity_date",
	"avg_probability_percent":    "avg_probability_percent",
	"product_count":              "product_count",
	"active_product_count":       "active_product_count",
	"primary_product_category":   `primary_product_category COLLATE "C"`,
	"distributor_name":           `distributor_name COLLATE "C"`,
	"last_activity_date":         "last_activity_date",
	"activity_status":            `activity_status COLLATE "C"`,
	"engagement_score":           "engagement_score",
	"summary_generated_at":       "summary_generated_at",
}

// summaryDB is the slice of *pgxpool.Pool the store uses.
type summaryDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// queryTxOptions gives the page and digest queries one shared snapshot.
var queryTxOptions = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}

// PostgresStore is the production summary store.
type PostgresStore struct {
	pool summaryDB
}

// NewPostgresStore creates a store over principal_activity_summaries.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) Get(ctx context.Context, principalID uuid.UUID) (domain.SummaryRow, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE principal_id = $1", strings.Join(summaryColumns, ", "), summaryTable)

	row, err := scanSummary(s.pool.QueryRow(ctx, query, principalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SummaryRow{}, apperr.NotFound(summaryNotFoundMessage)
		}
		return domain.SummaryRow{}, fmt.Errorf("get summary: %w", err)
	}
	return row, nil
}

// Replace is a single upsert statement, so readers see either the old or the
// new row. The WHERE clause on the conflict branch makes concurrent writers
// for the same principal resolve to the newest summary_generated_at.
func (s *PostgresStore) Replace(ctx context.Context, row domain.SummaryRow) (bool, error) {
	tag, err := s.pool.Exec(ctx, upsertSQL, summaryValues(row)...)
	if err != nil {
		return false, fmt.Errorf("replace summary: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

var upsertSQL = buildUpsertSQL()

func buildUpsertSQL() string {
	placeholders := make([]string, len(summaryColumns))
	updates := make([]string, 0, len(summaryColumns)-1)
	for i, col := range summaryColumns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		if col != "principal_id" {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
		}
	}
	return fmt.Sprintf(`
		INSERT INTO %s AS existing (%s)
		VALUES (%s)
		ON CONFLICT (principal_id) DO UPDATE SET %s
		WHERE existing.summary_generated_at < EXCLUDED.summary_generated_at`,
		summaryTable,
		strings.Join(summaryColumns, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(updates, ", "),
	)
}

func (s *PostgresStore) Delete(ctx context.Context, principalID uuid.UUID) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM "+summaryTable+" WHERE principal_id = $1", principalID); err != nil {
		return fmt.Errorf("delete summary: %w", err)
	}
	return nil
}

func (s *PostgresStore) Prune(ctx context.Context, keep []uuid.UUID) (int, error) {
	if keep == nil {
		keep = []uuid.UUID{}
	}
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM "+summaryTable+" WHERE NOT (principal_id = ANY($1::uuid[]))", keep)
	if err != nil {
		return 0, fmt.Errorf("prune summaries: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Query runs the page and digest queries in one read-only snapshot so the
// digest always describes the same filtered set as the pagination total.
func (s *PostgresStore) Query(ctx context.Context, params domain.QueryParams) (domain.Page, error) {
	p, err := params.Normalize()
	if err != nil {
		return domain.Page{}, err
	}

	where, args := buildWhere(p)

	tx, err := s.pool.BeginTx(ctx, queryTxOptions)
	if err != nil {
		return domain.Page{}, fmt.Errorf("begin summary query: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	digestQuery := fmt.Sprintf(`
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE activity_status = 'ACTIVE'),
			COALESCE(ROUND(AVG(engagement_score)::numeric, 2), 0)::float8,
			COALESCE(SUM(total_interactions), 0),
			COALESCE(SUM(total_opportunities), 0)
		FROM %s
		WHERE %s`, summaryTable, where)

	var digest domain.AnalyticsDigest
	if err := tx.QueryRow(ctx, digestQuery, args...).Scan(
		&digest.TotalCount, &digest.ActiveCount, &digest.AvgEngagementScore,
		&digest.TotalInteractions, &digest.TotalOpportunities,
	); err != nil {
		return domain.Page{}, fmt.Errorf("digest summaries: %w", err)
	}

	direction := "DESC"
	if p.SortOrder == "asc" {
		direction = "ASC"
	}
	argIdx := len(args) + 1
	args = append(args, p.Limit, (p.Page-1)*p.Limit)
	pageQuery := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE %s
		ORDER BY %s %s NULLS LAST, principal_id ASC
		LIMIT $%d OFFSET $%d`,
		strings.Join(summaryColumns, ", "), summaryTable, where,
		sortColumns[p.SortBy], direction, argIdx, argIdx+1)

	rows, err := tx.Query(ctx, pageQuery, args...)
	if err != nil {
		return domain.Page{}, fmt.Errorf("list summaries: %w", err)
	}
	data, err := collectSummaries(rows)
	if err != nil {
		return domain.Page{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Page{}, fmt.Errorf("commit summary query: %w", err)
	}

	return domain.Page{
		Data:             data,
		Pagination:       domain.NewPagination(p.Page, p.Limit, digest.TotalCount),
		AnalyticsSummary: digest,
	}, nil
}

// buildWhere turns normalized params into an ANDed WHERE clause.
func buildWhere(p domain.QueryParams) (string, []any) {
	clauses := []string{"TRUE"}
	args := make([]any, 0, 8)
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if p.Search != "" {
		ph := next("%" + escapeLike(p.Search) + "%")
		clauses = append(clauses, fmt.Sprintf("(principal_name ILIKE %s OR primary_contact_name ILIKE %s)", ph, ph))
	}
	if len(p.Statuses) > 0 {
		statuses := make([]string, len(p.Statuses))
		for i, st := range p.Statuses {
			statuses[i] = string(st)
		}
		clauses = append(clauses, fmt.Sprintf("activity_status = ANY(%s::text[])", next(statuses)))
	}
	if p.MinScore != nil {
		clauses = append(clauses, fmt.Sprintf("engagement_score >= %s", next(*p.MinScore)))
	}
	if p.MaxScore != nil {
		clauses = append(clauses, fmt.Sprintf("engagement_score <= %s", next(*p.MaxScore)))
	}
	if p.HasOpportunities != nil {
		if *p.HasOpportunities {
			clauses = append(clauses, "total_opportunities > 0")
		} else {
			clauses = append(clauses, "total_opportunities = 0")
		}
	}
	if p.DistributorID != nil {
		clauses = append(clauses, fmt.Sprintf("distributor_id = %s", next(*p.DistributorID)))
	}
	if p.ProductCategory != "" {
		clauses = append(clauses, fmt.Sprintf("product_categories @> ARRAY[%s::text]", next(p.ProductCategory)))
	}

	return strings.Join(clauses, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (s *PostgresStore) Stats(ctx context.Context, topN int) (domain.SummaryStats, error) {
	topN = domain.NormalizeTopN(topN)

	stats := domain.SummaryStats{TopPerformers: []domain.TopPerformer{}}
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE activity_status = 'ACTIVE'),
			COUNT(*) FILTER (WHERE product_count > 0),
			COUNT(*) FILTER (WHERE total_opportunities > 0),
			COALESCE(ROUND(AVG(product_count)::numeric, 2), 0)::float8,
			COALESCE(ROUND(AVG(engagement_score)::numeric, 2), 0)::float8
		FROM `+summaryTable).Scan(
		&stats.TotalPrincipals, &stats.ActivePrincipals, &stats.PrincipalsWithProducts,
		&stats.PrincipalsWithOpportunities, &stats.AverageProductsPerPrincipal, &stats.AverageEngagementScore,
	)
	if err != nil {
		return domain.SummaryStats{}, fmt.Errorf("summary stats: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT principal_id, principal_name, engagement_score, activity_status, total_opportunities, active_product_count
		FROM `+summaryTable+`
		ORDER BY engagement_score DESC, principal_id ASC
		LIMIT $1`, topN)
	if err != nil {
		return domain.SummaryStats{}, fmt.Errorf("top performers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tp domain.TopPerformer
		var status string
		if err := rows.Scan(&tp.PrincipalID, &tp.PrincipalName, &tp.EngagementScore, &status,
			&tp.TotalOpportunities, &tp.ActiveProductCount); err != nil {
			return domain.SummaryStats{}, fmt.Errorf("scan top performer: %w", err)
		}
		tp.ActivityStatus = domain.ActivityStatus(status)
		stats.TopPerformers = append(stats.TopPerformers, tp)
	}
	if rows.Err() != nil {
		return domain.SummaryStats{}, fmt.Errorf("iterate top performers: %w", rows.Err())
	}

	return stats, nil
}

func (s *PostgresStore) All(ctx context.Context) ([]domain.SummaryRow, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY principal_id",
		strings.Join(summaryColumns, ", "), summaryTable))
	if err != nil {
		return nil, fmt.Errorf("list all summaries: %w", err)
	}
	return collectSummaries(rows)
}

func collectSummaries(rows pgx.Rows) ([]domain.SummaryRow, error) {
	defer rows.Close()

	items := make([]domain.SummaryRow, 0)
	for rows.Next() {
		row, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		items = append(items, row)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate summaries: %w", rows.Err())
	}
	return items, nil
}

func scanSummary(row pgx.Row) (domain.SummaryRow, error) {
	var r domain.SummaryRow
	var status string
	err := row.Scan(
		&r.PrincipalID, &r.PrincipalName, &r.PrincipalStatus, &r.PrincipalType,
		&r.Industry, &r.Size, &r.LeadScore, &r.IsActive,
		&r.PrincipalCreatedAt, &r.PrincipalUpdatedAt,
		&r.ContactCount, &r.ActiveContacts, &r.PrimaryContactName, &r.PrimaryContactEmail, &r.LastContactUpdate,
		&r.TotalInteractions, &r.InteractionsLast30Days, &r.InteractionsLast90Days,
		&r.LastInteractionDate, &r.LastInteractionType, &r.NextFollowUpDate,
		&r.AvgInteractionRating, &r.PositiveInteractionCount, &r.FollowUpsRequired,
		&r.TotalOpportunities, &r.ActiveOpportunities, &r.WonOpportunities, &r.OpportunitiesLast30Days,
		&r.LatestOpportunityStage, &r.LatestOpportunityDate, &r.AvgProbabilityPercent,
		&r.ProductCount, &r.ActiveProductCount, &r.ProductCategories, &r.PrimaryProductCategory,
		&r.DistributorID, &r.DistributorName,
		&r.LastActivityDate, &status, &r.EngagementScore, &r.SummaryGeneratedAt,
	)
	if err != nil {
		return domain.SummaryRow{}, err
	}
	r.ActivityStatus = domain.ActivityStatus(status)
	if r.ProductCategories == nil {
		r.ProductCategories = []string{}
	}
	return r, nil
}

// summaryValues returns row's values in summaryColumns order.
func summaryValues(r domain.SummaryRow) []any {
	categories := r.ProductCategories
	if categories == nil {
		categories = []string{}
	}
	return []any{
		r.PrincipalID, r.PrincipalName, r.PrincipalStatus, r.PrincipalType,
		r.Industry, r.Size, r.LeadScore, r.IsActive,
		r.PrincipalCreatedAt, r.PrincipalUpdatedAt,
		r.ContactCount, r.ActiveContacts, r.PrimaryContactName, r.PrimaryContactEmail, r.LastContactUpdate,
		r.TotalInteractions, r.InteractionsLast30Days, r.InteractionsLast90Days,
		r.LastInteractionDate, r.LastInteractionType, r.NextFollowUpDate,
		r.AvgInteractionRating, r.PositiveInteractionCount, r.FollowUpsRequired,
		r.TotalOpportunities, r.ActiveOpportunities, r.WonOpportunities, r.OpportunitiesLast30Days,
		r.LatestOpportunityStage, r.LatestOpportunityDate, r.AvgProbabilityPercent,
		r.ProductCount, r.ActiveProductCount, categories, r.PrimaryProductCategory,
		r.DistributorID, r.DistributorName,
		r.LastActivityDate, string(r.ActivityStatus), r.EngagementScore, r.SummaryGeneratedAt,
	}
}
