package sqlite

const schema = `
-- Articles table: immutable content plus per-stage processing state.
-- Status columns are mutated only by the pipeline orchestrator.
CREATE TABLE IF NOT EXISTS articles (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    url TEXT NOT NULL UNIQUE,
    content_hash TEXT NOT NULL UNIQUE,
    title TEXT NOT NULL,
    content TEXT NOT NULL DEFAULT '',
    source TEXT NOT NULL DEFAULT '',
    published_at DATETIME,
    fetched_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    feed_priority INTEGER NOT NULL DEFAULT 3,
    classification_status TEXT NOT NULL DEFAULT 'pending'
        CHECK(classification_status IN ('pending', 'classified')),
    event_type TEXT NOT NULL DEFAULT '',
    classification_confidence REAL NOT NULL DEFAULT 0,
    is_high_signal INTEGER NOT NULL DEFAULT 0,
    matched_keywords TEXT NOT NULL DEFAULT '',
    extraction_status TEXT NOT NULL DEFAULT 'pending'
        CHECK(extraction_status IN ('pending', 'extracted', 'failed')),
    failure_reason TEXT NOT NULL DEFAULT '',
    claimed_at DATETIME,
    extracted_at DATETIME,
    -- extracted articles must record when; failed articles must record why
    CHECK (extraction_status != 'extracted' OR extracted_at IS NOT NULL),
    CHECK (extraction_status != 'failed' OR failure_reason != '')
);

CREATE INDEX IF NOT EXISTS idx_articles_classification ON articles(classification_status);
CREATE INDEX IF NOT EXISTS idx_articles_work_scan ON articles(is_high_signal, extraction_status);
CREATE INDEX IF NOT EXISTS idx_articles_published ON articles(published_at);
CREATE INDEX IF NOT EXISTS idx_articles_source ON articles(source);

-- Entities table. canonical_id is a self-reference: a non-NULL value marks
-- this row as merged into the canonical entity. Merged rows are never
-- deleted (provenance), and chains are flattened to length <= 1 at write.
CREATE TABLE IF NOT EXISTS entities (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    normalized_name TEXT NOT NULL,
    kind TEXT NOT NULL DEFAULT 'unknown'
        CHECK(kind IN ('company', 'person', 'investor', 'unknown')),
    attributes TEXT NOT NULL DEFAULT '{}',
    mention_count INTEGER NOT NULL DEFAULT 1,
    canonical_id INTEGER REFERENCES entities(id),
    first_seen DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    last_seen DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(normalized_name),
    CHECK (canonical_id IS NULL OR canonical_id != id)
);

CREATE INDEX IF NOT EXISTS idx_entities_kind ON entities(kind);
CREATE INDEX IF NOT EXISTS idx_entities_canonical ON entities(canonical_id);

-- Alias set per entity, deduplicated on the normalized form.
CREATE TABLE IF NOT EXISTS entity_aliases (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_id INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
    alias TEXT NOT NULL,
    normalized_alias TEXT NOT NULL,
    UNIQUE(normalized_alias, entity_id)
);

CREATE INDEX IF NOT EXISTS idx_aliases_entity ON entity_aliases(entity_id);
CREATE INDEX IF NOT EXISTS idx_aliases_normalized ON entity_aliases(normalized_alias);

-- Relationships table. The same fact from two different sources is two
-- rows: uniqueness is (subject, predicate, object, source_url) so that
-- provenance is preserved. Confidence aggregation happens at query time.
CREATE TABLE IF NOT EXISTS relationships (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    subject_id INTEGER NOT NULL REFERENCES entities(id),
    predicate TEXT NOT NULL,
    object_id INTEGER NOT NULL REFERENCES entities(id),
    confidence REAL NOT NULL DEFAULT 0.8 CHECK(confidence >= 0 AND confidence <= 1),
    context TEXT NOT NULL DEFAULT '',
    source_url TEXT NOT NULL DEFAULT '',
    source_kind TEXT NOT NULL DEFAULT 'news' CHECK(source_kind IN ('news', 'filing')),
    event_id INTEGER REFERENCES events(id),
    event_date DATE,
    start_date DATE,
    end_date DATE,
    is_current INTEGER NOT NULL DEFAULT 1,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(subject_id, predicate, object_id, source_url)
);

CREATE INDEX IF NOT EXISTS idx_relationships_subject ON relationships(subject_id);
CREATE INDEX IF NOT EXISTS idx_relationships_object ON relationships(object_id);
CREATE INDEX IF NOT EXISTS idx_relationships_predicate ON relationships(predicate);
CREATE INDEX IF NOT EXISTS idx_relationships_event ON relationships(event_id);
CREATE INDEX IF NOT EXISTS idx_relationships_event_date ON relationships(event_date);

-- Events table: canonicalized occurrences (one funding round, one
-- acquisition) that provenance-distinct relationships corroborate.
-- canonical_event_id mirrors the entity canonicalization pattern.
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    event_type TEXT NOT NULL,
    company_entity_id INTEGER NOT NULL REFERENCES entities(id),
    event_date DATE,
    amount REAL,
    canonical_event_id INTEGER REFERENCES events(id),
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    CHECK (canonical_event_id IS NULL OR canonical_event_id != id)
);

CREATE INDEX IF NOT EXISTS idx_events_company ON events(company_entity_id);
CREATE INDEX IF NOT EXISTS idx_events_type_date ON events(event_type, event_date);

-- Enrichment records, one per (entity, source).
CREATE TABLE IF NOT EXISTS enrichment (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_id INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
    source TEXT NOT NULL,
    summary TEXT NOT NULL DEFAULT '',
    attributes TEXT NOT NULL DEFAULT '{}',
    fetched_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(entity_id, source)
);

-- Regulatory filings (Form D shaped), the authoritative side of
-- cross-referencing. Deduplicated on accession number.
CREATE TABLE IF NOT EXISTS filings (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    accession_no TEXT NOT NULL UNIQUE,
    company_name TEXT NOT NULL,
    cik TEXT NOT NULL DEFAULT '',
    filed_at DATETIME NOT NULL,
    total_amount REAL,
    amount_sold REAL,
    state TEXT NOT NULL DEFAULT '',
    entity_type TEXT NOT NULL DEFAULT '',
    year_founded INTEGER NOT NULL DEFAULT 0,
    industry_group TEXT NOT NULL DEFAULT '',
    total_investors INTEGER NOT NULL DEFAULT 0,
    officers TEXT NOT NULL DEFAULT '[]',
    source_url TEXT NOT NULL DEFAULT '',
    ingested_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_filings_filed_at ON filings(filed_at);
CREATE INDEX IF NOT EXISTS idx_filings_company ON filings(company_name);

-- Feed registry with rolling health counters (EWMA success rate).
CREATE TABLE IF NOT EXISTS feeds (
    name TEXT PRIMARY KEY,
    url TEXT NOT NULL DEFAULT '',
    priority INTEGER NOT NULL DEFAULT 3,
    enabled INTEGER NOT NULL DEFAULT 1,
    success_rate REAL NOT NULL DEFAULT 1.0,
    avg_fetch_seconds REAL NOT NULL DEFAULT 0,
    consecutive_failures INTEGER NOT NULL DEFAULT 0,
    last_fetched_at DATETIME
);

-- Per-run pipeline statistics.
CREATE TABLE IF NOT EXISTS pipeline_runs (
    id TEXT PRIMARY KEY,
    started_at DATETIME NOT NULL,
    finished_at DATETIME,
    articles_seen INTEGER NOT NULL DEFAULT 0,
    classified INTEGER NOT NULL DEFAULT 0,
    extracted INTEGER NOT NULL DEFAULT 0,
    failed INTEGER NOT NULL DEFAULT 0,
    relationships_added INTEGER NOT NULL DEFAULT 0,
    entities_merged INTEGER NOT NULL DEFAULT 0,
    xref_matches INTEGER NOT NULL DEFAULT 0,
    notes TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON pipeline_runs(started_at);
`
