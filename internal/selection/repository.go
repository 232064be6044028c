package selection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/screener/internal/contracts"
)

// ErrRunNotFound is returned when no scan run has the requested id
var ErrRunNotFound = errors.New("scan run not found")

// Repository persists scan reports
// ⭐ SSOT: Selection 데이터 저장/조회는 여기서만
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new selection repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// resultDetails is the JSONB payload of one stored result
type resultDetails struct {
	Composite  contracts.CompositeDetails `json:"composite"`
	Verdicts   []contracts.Verdict        `json:"verdicts"`
	Highlights []contracts.RuleHighlight  `json:"highlights,omitempty"`
	Metadata   contracts.ResultMetadata   `json:"metadata"`
}

// SaveReport writes the run and its ranked results in one transaction.
// A report without a RunID is assigned one.
func (r *Repository) SaveReport(ctx context.Context, report *contracts.ScanReport) error {
	if report.RunID == "" {
		report.RunID = uuid.NewString()
	} else if _, err := uuid.Parse(report.RunID); err != nil {
		return fmt.Errorf("invalid run id %q: %w", report.RunID, err)
	}

	skipReasons := report.Stats.SkipReasons
	if skipReasons == nil {
		skipReasons = map[string]int{}
	}
	skipJSON, err := json.Marshal(skipReasons)
	if err != nil {
		return fmt.Errorf("failed to marshal skip reasons: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	runQuery := `
		INSERT INTO selection.scan_runs (
			run_id, started_at, elapsed_ms, rules, min_score, max_results,
			total_symbols, processed, qualified, skipped, returned, error_verdicts, skip_reasons
		) VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	s := report.Stats
	_, err = tx.Exec(ctx, runQuery,
		report.RunID, report.StartedAt, s.Elapsed.Milliseconds(), append([]string{}, report.Rules...), report.MinScore, report.MaxResults,
		s.TotalSymbols, s.Processed, s.Qualified, s.Skipped, s.Returned, s.ErrorVerdicts, skipJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to insert scan run: %w", err)
	}

	resultQuery := `
		INSERT INTO selection.scan_results (run_id, rank, stock_code, composite_score, details)
		VALUES ($1::uuid, $2, $3, $4, $5)
	`
	for _, res := range report.Results {
		details, err := json.Marshal(resultDetails{
			Composite:  res.Composite,
			Verdicts:   res.Verdicts,
			Highlights: res.Highlights,
			Metadata:   res.Metadata,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal result %s: %w", res.Symbol, err)
		}
		if _, err := tx.Exec(ctx, resultQuery, report.RunID, res.Rank, res.Symbol, res.CompositeScore, details); err != nil {
			return fmt.Errorf("failed to insert scan result: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const runColumns = `
	r.run_id::text, r.started_at, r.elapsed_ms, r.rules, r.min_score, r.max_results,
	r.total_symbols, r.processed, r.qualified, r.skipped, r.returned, r.error_verdicts, r.skip_reasons`

// ListRuns returns the newest runs first with their top result
func (r *Repository) ListRuns(ctx context.Context, limit int) ([]contracts.ScanRunSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT ` + runColumns + `,
			COALESCE(top.stock_code, ''), COALESCE(top.composite_score, 0)
		FROM selection.scan_runs r
		LEFT JOIN LATERAL (
			SELECT stock_code, composite_score
			FROM selection.scan_results
			WHERE run_id = r.run_id
			ORDER BY rank ASC
			LIMIT 1
		) top ON TRUE
		ORDER BY r.started_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query scan runs: %w", err)
	}
	defer rows.Close()

	runs := make([]contracts.ScanRunSummary, 0)
	for rows.Next() {
		var (
			run        contracts.ScanRunSummary
			maxResults int
			elapsed    int64
			skip       []byte
		)
		err := rows.Scan(
			&run.RunID, &run.StartedAt, &elapsed, &run.Rules, &run.MinScore, &maxResults,
			&run.Stats.TotalSymbols, &run.Stats.Processed, &run.Stats.Qualified, &run.Stats.Skipped,
			&run.Stats.Returned, &run.Stats.ErrorVerdicts, &skip,
			&run.TopSymbol, &run.TopScore,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if err := fillStats(&run.Stats, elapsed, skip); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return runs, nil
}

// GetReport loads a full report by run id
func (r *Repository) GetReport(ctx context.Context, runID string) (*contracts.ScanReport, error) {
	if _, err := uuid.Parse(runID); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	report := &contracts.ScanReport{}
	var (
		elapsed int64
		skip    []byte
	)
	query := `SELECT ` + runColumns + ` FROM selection.scan_runs r WHERE r.run_id = $1::uuid`
	err := r.pool.QueryRow(ctx, query, runID).Scan(
		&report.RunID, &report.StartedAt, &elapsed, &report.Rules, &report.MinScore, &report.MaxResults,
		&report.Stats.TotalSymbols, &report.Stats.Processed, &report.Stats.Qualified, &report.Stats.Skipped,
		&report.Stats.Returned, &report.Stats.ErrorVerdicts, &skip,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scan run: %w", err)
	}
	if err := fillStats(&report.Stats, elapsed, skip); err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT rank, stock_code, composite_score, details
		FROM selection.scan_results
		WHERE run_id = $1::uuid
		ORDER BY rank ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query scan results: %w", err)
	}
	defer rows.Close()

	report.Results = make([]contracts.ScanResult, 0)
	for rows.Next() {
		var (
			res     contracts.ScanResult
			raw     []byte
			details resultDetails
		)
		if err := rows.Scan(&res.Rank, &res.Symbol, &res.CompositeScore, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if err := json.Unmarshal(raw, &details); err != nil {
			return nil, fmt.Errorf("failed to unmarshal details for %s: %w", res.Symbol, err)
		}
		res.Composite = details.Composite
		res.Verdicts = details.Verdicts
		res.Highlights = details.Highlights
		res.Metadata = details.Metadata
		report.Results = append(report.Results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return report, nil
}

// DeleteRunsBefore removes runs started before cutoff (results cascade)
func (r *Repository) DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM selection.scan_runs WHERE started_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete scan runs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func fillStats(s *contracts.ScanStats, elapsedMS int64, skipJSON []byte) error {
	s.Elapsed = time.Duration(elapsedMS) * time.Millisecond
	if s.TotalSymbols > 0 {
		s.QualificationRate = float64(s.Qualified) / float64(s.TotalSymbols)
	}
	if len(skipJSON) > 0 {
		if err := json.Unmarshal(skipJSON, &s.SkipReasons); err != nil {
			return fmt.Errorf("failed to unmarshal skip reasons: %w", err)
		}
	}
	return nil
}
