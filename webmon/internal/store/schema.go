package store

// Schema is the DDL for the changeview tables. Times are unix milliseconds.
const Schema = `
CREATE TABLE IF NOT EXISTS pages (
    id         TEXT PRIMARY KEY,
    title      TEXT NOT NULL DEFAULT '',
    url        TEXT NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pages_title ON pages(title, id);

CREATE TABLE IF NOT EXISTS versions (
    id           TEXT PRIMARY KEY,
    page_id      TEXT NOT NULL,
    captured_at  INTEGER NOT NULL,
    title        TEXT NOT NULL DEFAULT '',
    content_hash TEXT NOT NULL DEFAULT '',
    status_code  INTEGER NOT NULL DEFAULT 0,
    source       TEXT NOT NULL DEFAULT '',
    html         TEXT NOT NULL DEFAULT '',
    markdown     TEXT NOT NULL DEFAULT '',
    FOREIGN KEY (page_id) REFERENCES pages(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_versions_page ON versions(page_id, captured_at DESC, id DESC);

CREATE TABLE IF NOT EXISTS annotations (
    id           TEXT PRIMARY KEY,
    page_id      TEXT NOT NULL,
    from_id      TEXT NOT NULL,
    to_id        TEXT NOT NULL,
    author       TEXT NOT NULL DEFAULT '',
    notes        TEXT NOT NULL DEFAULT '',
    significance REAL NOT NULL DEFAULT 0,
    labels       TEXT NOT NULL DEFAULT '[]',
    created_at   INTEGER NOT NULL,
    FOREIGN KEY (page_id) REFERENCES pages(id) ON DELETE CASCADE,
    FOREIGN KEY (from_id) REFERENCES versions(id) ON DELETE CASCADE,
    FOREIGN KEY (to_id) REFERENCES versions(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_annotations_change ON annotations(page_id, from_id, to_id, created_at);
`

// ChangeQuery grows with every page or version insert. Pages and versions
// are append-only, so a row count is a sufficient change token.
const ChangeQuery = `SELECT (SELECT COUNT(*) FROM pages) + (SELECT COUNT(*) FROM versions)`
