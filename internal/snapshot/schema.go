package snapshot

// schema contains the SQL statements to create the snapshot database schema.
const schema = `
-- Functions table
CREATE TABLE IF NOT EXISTS functions (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL,
    is_entrypoint INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_functions_entrypoint ON functions(is_entrypoint);

-- Call edges table
CREATE TABLE IF NOT EXISTS call_edges (
    caller_id TEXT NOT NULL,
    callee_id TEXT NOT NULL,
    PRIMARY KEY (caller_id, callee_id),
    FOREIGN KEY (caller_id) REFERENCES functions(id),
    FOREIGN KEY (callee_id) REFERENCES functions(id)
);

CREATE INDEX IF NOT EXISTS idx_call_edges_callee ON call_edges(callee_id);

-- Vulnerabilities table
CREATE TABLE IF NOT EXISTS vulnerabilities (
    id               TEXT PRIMARY KEY,
    func_id          TEXT NOT NULL,
    severity         TEXT NOT NULL,
    cwe_id           TEXT,
    package_name     TEXT,
    introduced_by_ai INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (func_id) REFERENCES functions(id)
);

CREATE INDEX IF NOT EXISTS idx_vulnerabilities_func ON vulnerabilities(func_id);
CREATE INDEX IF NOT EXISTS idx_vulnerabilities_severity ON vulnerabilities(severity);

-- Computed risks, one row per vulnerability at export time
CREATE TABLE IF NOT EXISTS risks (
    vulnerability_id   TEXT PRIMARY KEY,
    func_id            TEXT NOT NULL,
    function_name      TEXT NOT NULL,
    severity           TEXT NOT NULL,
    reachable          INTEGER NOT NULL,
    score              INTEGER NOT NULL,
    base_severity      INTEGER NOT NULL,
    reachability_bonus INTEGER NOT NULL,
    package_risk       INTEGER NOT NULL,
    ai_risk            INTEGER NOT NULL,
    FOREIGN KEY (vulnerability_id) REFERENCES vulnerabilities(id)
);

CREATE INDEX IF NOT EXISTS idx_risks_score ON risks(score);

-- Metadata table for export info
CREATE TABLE IF NOT EXISTS metadata (
    key   TEXT PRIMARY KEY,
    value TEXT
);
`
