package db

const schema = `
-- Performance and reliability settings
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA foreign_keys = ON;
PRAGMA temp_store = MEMORY;

-- One row per optimize run
CREATE TABLE IF NOT EXISTS batches (
    batch_id TEXT PRIMARY KEY,          -- uuid
    mode TEXT NOT NULL,                 -- url, upload
    created_at TIMESTAMP NOT NULL,
    item_count INTEGER NOT NULL,
    ready_count INTEGER DEFAULT 0,
    failed_count INTEGER DEFAULT 0,
    pending_count INTEGER DEFAULT 0,
    status TEXT NOT NULL,               -- ready, partial, failed, timeout, error
    error_kind TEXT,
    error_message TEXT,
    options TEXT                        -- JSON object
);

CREATE INDEX IF NOT EXISTS idx_batches_created ON batches(created_at);

-- Per-item outcome, in submission order
CREATE TABLE IF NOT EXISTS batch_items (
    batch_id TEXT NOT NULL,
    item_index INTEGER NOT NULL,
    input TEXT NOT NULL,                -- URL or local path
    display_name TEXT,
    identity TEXT,                      -- OriginalURL token
    state TEXT NOT NULL,                -- pending, ready, failed
    sp_code INTEGER,
    sp_message TEXT,
    error_kind TEXT,
    error_message TEXT,
    meta TEXT,                          -- raw JSON response item
    PRIMARY KEY (batch_id, item_index),
    FOREIGN KEY (batch_id) REFERENCES batches(batch_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_batch_items_identity ON batch_items(identity);

-- Artifacts saved by the download step
CREATE TABLE IF NOT EXISTS downloads (
    download_id INTEGER PRIMARY KEY AUTOINCREMENT,
    batch_id TEXT NOT NULL,
    item_index INTEGER NOT NULL,
    url TEXT NOT NULL,
    location TEXT NOT NULL,
    size_bytes INTEGER DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (batch_id, item_index) REFERENCES batch_items(batch_id, item_index) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_downloads_batch ON downloads(batch_id);
`
