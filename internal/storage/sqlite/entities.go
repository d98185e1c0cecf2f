package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/untoldecay/TalentGraph/internal/names"
	"github.com/untoldecay/TalentGraph/internal/storage"
	"github.com/untoldecay/TalentGraph/internal/types"
)

const entityColumns = `id, name, normalized_name, kind, attributes, mention_count, canonical_id, first_seen, last_seen`

// UpsertEntity inserts an entity or bumps the mention count of the
// existing row with the same normalized name. The stored display name
// and kind are first-writer-wins, except that an unknown kind is
// upgraded when a concrete one arrives.
func (s *SQLiteStore) UpsertEntity(ctx context.Context, name string, kind types.EntityKind, attrs map[string]string) (int64, error) {
	return upsertEntity(ctx, s.db, name, kind, attrs)
}

func (t *sqliteTx) UpsertEntity(ctx context.Context, name string, kind types.EntityKind, attrs map[string]string) (int64, error) {
	return upsertEntity(ctx, t.conn, name, kind, attrs)
}

func upsertEntity(ctx context.Context, q querier, name string, kind types.EntityKind, attrs map[string]string) (int64, error) {
	display := names.CleanDisplayName(name)
	normalized := names.Normalize(name)
	if normalized == "" {
		return 0, fmt.Errorf("entity name %q normalizes to empty", name)
	}
	if kind == "" {
		kind = types.KindUnknown
	}

	encoded, err := json.Marshal(attributesOrEmpty(attrs))
	if err != nil {
		return 0, fmt.Errorf("failed to encode entity attributes: %w", err)
	}

	row := q.QueryRowContext(ctx, `
		INSERT INTO entities (name, normalized_name, kind, attributes, mention_count, first_seen, last_seen)
		VALUES (?, ?, ?, ?, 1, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(normalized_name) DO UPDATE SET
			mention_count = mention_count + 1,
			kind = CASE WHEN kind = 'unknown' AND excluded.kind != 'unknown'
			            THEN excluded.kind ELSE kind END,
			attributes = json_patch(attributes, excluded.attributes),
			last_seen = CURRENT_TIMESTAMP
		RETURNING id`,
		display, normalized, string(kind), string(encoded))

	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to upsert entity %q: %w", name, err)
	}
	return id, nil
}

func (s *SQLiteStore) GetEntity(ctx context.Context, id int64) (*types.Entity, error) {
	return getEntity(ctx, s.db, id)
}

func (t *sqliteTx) GetEntity(ctx context.Context, id int64) (*types.Entity, error) {
	return getEntity(ctx, t.conn, id)
}

func getEntity(ctx context.Context, q querier, id int64) (*types.Entity, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE id = ?`, id)
	return scanEntity(row)
}

// FindEntity looks up an entity by exact normalized name. It does not
// consult aliases or follow canonical redirects.
func (s *SQLiteStore) FindEntity(ctx context.Context, name string) (*types.Entity, error) {
	return findEntity(ctx, s.db, name)
}

func (t *sqliteTx) FindEntity(ctx context.Context, name string) (*types.Entity, error) {
	return findEntity(ctx, t.conn, name)
}

func findEntity(ctx context.Context, q querier, name string) (*types.Entity, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE normalized_name = ?`,
		names.Normalize(name))
	return scanEntity(row)
}

// LookupEntity finds an entity by name, checking direct names first and
// the alias table second.
func (s *SQLiteStore) LookupEntity(ctx context.Context, name string) (*types.Entity, error) {
	e, err := findEntity(ctx, s.db, name)
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+prefixedEntityColumns("e")+`
		FROM entity_aliases a
		JOIN entities e ON e.id = a.entity_id
		WHERE a.normalized_alias = ?
		ORDER BY e.mention_count DESC
		LIMIT 1`, names.Normalize(name))
	return scanEntity(row)
}

func prefixedEntityColumns(alias string) string {
	cols := strings.Split(entityColumns, ", ")
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

// SearchEntities matches entities whose name or alias contains the
// pattern, case-insensitively. Results are ordered by mention count.
func (s *SQLiteStore) SearchEntities(ctx context.Context, namePattern string, limit int) ([]*types.Entity, error) {
	pattern := "%" + strings.ToLower(namePattern) + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT `+prefixedEntityColumns("e")+`
		FROM entities e
		LEFT JOIN entity_aliases a ON a.entity_id = e.id
		WHERE e.normalized_name LIKE ? OR lower(e.name) LIKE ?
		   OR a.normalized_alias LIKE ? OR lower(a.alias) LIKE ?
		ORDER BY e.mention_count DESC
		LIMIT ?`, pattern, pattern, pattern, pattern, limitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to search entities: %w", err)
	}
	return collectEntities(rows)
}

// ActiveEntities lists entities that have not been merged away.
func (s *SQLiteStore) ActiveEntities(ctx context.Context, kind types.EntityKind, limit int) ([]*types.Entity, error) {
	conds := []string{"canonical_id IS NULL"}
	args := []interface{}{}
	if kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, string(kind))
	}
	args = append(args, limitOrDefault(limit))

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entityColumns+` FROM entities
		WHERE `+strings.Join(conds, " AND ")+`
		ORDER BY mention_count DESC, id ASC
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	return collectEntities(rows)
}

func (s *SQLiteStore) GetAliases(ctx context.Context, entityID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT alias FROM entity_aliases WHERE entity_id = ? ORDER BY alias`, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to get aliases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var aliases []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, fmt.Errorf("failed to scan alias: %w", err)
		}
		aliases = append(aliases, a)
	}
	return aliases, rows.Err()
}

// AddAlias records an alternate surface form for an entity. Adding the
// same alias twice is a no-op.
func (s *SQLiteStore) AddAlias(ctx context.Context, entityID int64, alias string) error {
	return addAlias(ctx, s.db, entityID, alias)
}

func (t *sqliteTx) AddAlias(ctx context.Context, entityID int64, alias string) error {
	return addAlias(ctx, t.conn, entityID, alias)
}

func addAlias(ctx context.Context, q querier, entityID int64, alias string) error {
	normalized := names.Normalize(alias)
	if alias == "" || normalized == "" {
		return nil
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO entity_aliases (entity_id, alias, normalized_alias)
		VALUES (?, ?, ?)
		ON CONFLICT(normalized_alias, entity_id) DO NOTHING`,
		entityID, alias, normalized)
	if err != nil {
		return fmt.Errorf("failed to add alias %q: %w", alias, err)
	}
	return nil
}

// UpdateEntityKind reclassifies an entity, normally from unknown to a
// concrete kind once later evidence settles it.
func (s *SQLiteStore) UpdateEntityKind(ctx context.Context, id int64, kind types.EntityKind) error {
	return updateEntityKind(ctx, s.db, id, kind)
}

func (t *sqliteTx) UpdateEntityKind(ctx context.Context, id int64, kind types.EntityKind) error {
	return updateEntityKind(ctx, t.conn, id, kind)
}

func updateEntityKind(ctx context.Context, q querier, id int64, kind types.EntityKind) error {
	res, err := q.ExecContext(ctx,
		`UPDATE entities SET kind = ? WHERE id = ?`, string(kind), id)
	if err != nil {
		return fmt.Errorf("failed to update entity kind: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update entity kind: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// SetCanonical points id at canonicalID, flattening through any existing
// chain so stored redirects are always a single hop. Merging an entity
// into itself (directly or through the chain) is rejected with
// ErrCanonicalCycle. Rows are never deleted by a merge.
func (s *SQLiteStore) SetCanonical(ctx context.Context, id, canonicalID int64) error {
	return setCanonical(ctx, s.db, id, canonicalID)
}

func (t *sqliteTx) SetCanonical(ctx context.Context, id, canonicalID int64) error {
	return setCanonical(ctx, t.conn, id, canonicalID)
}

func setCanonical(ctx context.Context, q querier, id, canonicalID int64) error {
	target, err := resolveCanonical(ctx, q, canonicalID)
	if err != nil {
		return fmt.Errorf("failed to resolve canonical target: %w", err)
	}
	if target.ID == id {
		return storage.ErrCanonicalCycle
	}

	res, err := q.ExecContext(ctx,
		`UPDATE entities SET canonical_id = ? WHERE id = ?`, target.ID, id)
	if err != nil {
		return fmt.Errorf("failed to set canonical: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to set canonical: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}

	// Entities already pointing at id hop straight to the new root,
	// keeping every stored chain at length one.
	_, err = q.ExecContext(ctx,
		`UPDATE entities SET canonical_id = ? WHERE canonical_id = ?`, target.ID, id)
	if err != nil {
		return fmt.Errorf("failed to flatten canonical chain: %w", err)
	}
	return nil
}

// ResolveCanonical follows canonical redirects from id and returns the
// entity at the root of the chain. An entity with no redirect resolves
// to itself.
func (s *SQLiteStore) ResolveCanonical(ctx context.Context, id int64) (*types.Entity, error) {
	return resolveCanonical(ctx, s.db, id)
}

func (t *sqliteTx) ResolveCanonical(ctx context.Context, id int64) (*types.Entity, error) {
	return resolveCanonical(ctx, t.conn, id)
}

func resolveCanonical(ctx context.Context, q querier, id int64) (*types.Entity, error) {
	// Chains are flattened on write, but a bounded walk keeps reads
	// correct even if an old database carries a longer chain.
	const maxHops = 16
	seen := map[int64]bool{}
	for hops := 0; hops < maxHops; hops++ {
		if seen[id] {
			return nil, storage.ErrCanonicalCycle
		}
		seen[id] = true

		e, err := getEntity(ctx, q, id)
		if err != nil {
			return nil, err
		}
		if e.CanonicalID == nil {
			return e, nil
		}
		id = *e.CanonicalID
	}
	return nil, storage.ErrCanonicalCycle
}

// AddMentions adds n to an entity's mention count, used when a merge
// folds one entity's observations into another.
func (s *SQLiteStore) AddMentions(ctx context.Context, id int64, n int) error {
	return addMentions(ctx, s.db, id, n)
}

func (t *sqliteTx) AddMentions(ctx context.Context, id int64, n int) error {
	return addMentions(ctx, t.conn, id, n)
}

func addMentions(ctx context.Context, q querier, id int64, n int) error {
	if n <= 0 {
		return nil
	}
	_, err := q.ExecContext(ctx, `
		UPDATE entities
		SET mention_count = mention_count + ?, last_seen = CURRENT_TIMESTAMP
		WHERE id = ?`, n, id)
	if err != nil {
		return fmt.Errorf("failed to add mentions: %w", err)
	}
	return nil
}

func collectEntities(rows *sql.Rows) ([]*types.Entity, error) {
	defer func() { _ = rows.Close() }()

	var entities []*types.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

func scanEntity(row rowScanner) (*types.Entity, error) {
	var e types.Entity
	var canonical sql.NullInt64
	var attrs string

	err := row.Scan(
		&e.ID, &e.Name, &e.NormalizedName, (*string)(&e.Kind), &attrs,
		&e.MentionCount, &canonical, &e.FirstSeen, &e.LastSeen,
	)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan entity: %w", err)
	}
	if canonical.Valid {
		e.CanonicalID = &canonical.Int64
	}
	if attrs != "" && attrs != "{}" {
		if err := json.Unmarshal([]byte(attrs), &e.Attributes); err != nil {
			return nil, fmt.Errorf("failed to decode entity attributes: %w", err)
		}
	}
	return &e, nil
}

func attributesOrEmpty(attrs map[string]string) map[string]string {
	if attrs == nil {
		return map[string]string{}
	}
	return attrs
}
