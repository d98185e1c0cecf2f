package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/untoldecay/TalentGraph/internal/storage"
	"github.com/untoldecay/TalentGraph/internal/types"
)

const filingColumns = `id, accession_no, company_name, cik, filed_at, total_amount, amount_sold,
	state, entity_type, year_founded, industry_group, total_investors, officers, source_url, ingested_at`

// InsertFiling stores a regulatory filing. Filings are deduplicated on
// accession number; re-ingesting one returns ErrDuplicate.
func (s *SQLiteStore) InsertFiling(ctx context.Context, f *types.Filing) (int64, error) {
	if f.AccessionNo == "" {
		return 0, fmt.Errorf("filing accession number is required")
	}
	if f.CompanyName == "" {
		return 0, fmt.Errorf("filing company name is required")
	}

	officers, err := json.Marshal(f.Officers)
	if err != nil {
		return 0, fmt.Errorf("failed to encode filing officers: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO filings (
			accession_no, company_name, cik, filed_at, total_amount, amount_sold,
			state, entity_type, year_founded, industry_group, total_investors,
			officers, source_url
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.AccessionNo, f.CompanyName, f.CIK, f.FiledAt,
		floatPtrArg(f.TotalAmount), floatPtrArg(f.AmountSold),
		f.State, f.EntityType, f.YearFounded, f.IndustryGroup, f.TotalInvestors,
		string(officers), f.SourceURL)
	if err != nil {
		if isUniqueConstraintError(err) {
			return 0, storage.ErrDuplicate
		}
		return 0, fmt.Errorf("failed to insert filing: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to insert filing: %w", err)
	}
	f.ID = id
	return id, nil
}

// RecentFilings returns filings filed at or after since, newest first.
func (s *SQLiteStore) RecentFilings(ctx context.Context, since time.Time, limit int) ([]*types.Filing, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+filingColumns+` FROM filings
		WHERE filed_at >= ?
		ORDER BY filed_at DESC, id DESC
		LIMIT ?`, since, limitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query filings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var filings []*types.Filing
	for rows.Next() {
		f, err := scanFiling(rows)
		if err != nil {
			return nil, err
		}
		filings = append(filings, f)
	}
	return filings, rows.Err()
}

func scanFiling(row rowScanner) (*types.Filing, error) {
	var f types.Filing
	var total, sold sql.NullFloat64
	var officers string

	err := row.Scan(
		&f.ID, &f.AccessionNo, &f.CompanyName, &f.CIK, &f.FiledAt,
		&total, &sold, &f.State, &f.EntityType, &f.YearFounded,
		&f.IndustryGroup, &f.TotalInvestors, &officers, &f.SourceURL, &f.IngestedAt,
	)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan filing: %w", err)
	}
	if total.Valid {
		f.TotalAmount = &total.Float64
	}
	if sold.Valid {
		f.AmountSold = &sold.Float64
	}
	if officers != "" && officers != "[]" {
		if err := json.Unmarshal([]byte(officers), &f.Officers); err != nil {
			return nil, fmt.Errorf("failed to decode filing officers: %w", err)
		}
	}
	return &f, nil
}
