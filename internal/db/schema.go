package db

// Schema is applied on every open. The store holds one row per named slot;
// digest is sha3-256 of value so torn or tampered rows are detected on read.
const Schema = `
CREATE TABLE IF NOT EXISTS kv_store (
    name TEXT PRIMARY KEY,
    value BLOB NOT NULL,
    digest BLOB NOT NULL,
    updated_at INTEGER NOT NULL
);
`
