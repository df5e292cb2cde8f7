package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/recon-pipeline/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS domains (
	name         TEXT PRIMARY KEY,
	mx           TEXT,
	spf          TEXT,
	dmarc        TEXT,
	email_format TEXT
);

CREATE TABLE IF NOT EXISTS source_domains (
	name         TEXT PRIMARY KEY,
	last_checked DATETIME NOT NULL DEFAULT (datetime('now')),
	created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS targets (
	email        TEXT PRIMARY KEY,
	name         TEXT NOT NULL DEFAULT '',
	profile      TEXT,
	domain_name  TEXT NOT NULL REFERENCES domains(name),
	tenure_start DATETIME,
	status       TEXT NOT NULL DEFAULT 'pending'
);

CREATE TABLE IF NOT EXISTS source_data (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	url                TEXT UNIQUE NOT NULL,
	source_domain_name TEXT,
	discovery_method   TEXT NOT NULL,
	data               TEXT,
	status             TEXT NOT NULL DEFAULT 'pending',
	status_message     TEXT,
	last_checked       DATETIME NOT NULL DEFAULT (datetime('now')),
	created_at         DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS target_source_map (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	target_email TEXT NOT NULL REFERENCES targets(email),
	source_id    INTEGER NOT NULL REFERENCES source_data(id),
	UNIQUE(target_email, source_id)
);

CREATE TABLE IF NOT EXISTS prompts (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	name          TEXT UNIQUE NOT NULL,
	template      TEXT NOT NULL,
	system_prompt TEXT NOT NULL DEFAULT '',
	dos           TEXT NOT NULL DEFAULT '',
	donts         TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS pretexts (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	target_email TEXT NOT NULL REFERENCES targets(email),
	prompt_id    INTEGER NOT NULL REFERENCES prompts(id),
	prompt_text  TEXT NOT NULL,
	subject      TEXT NOT NULL DEFAULT '',
	body         TEXT NOT NULL DEFAULT '',
	link         TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'draft',
	created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_targets_domain ON targets(domain_name);
CREATE INDEX IF NOT EXISTS idx_targets_status ON targets(status);
CREATE INDEX IF NOT EXISTS idx_source_data_status ON source_data(status);
CREATE INDEX IF NOT EXISTS idx_map_source ON target_source_map(source_id);
CREATE INDEX IF NOT EXISTS idx_map_target ON target_source_map(target_email);
CREATE INDEX IF NOT EXISTS idx_pretexts_target ON pretexts(target_email);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Domains ---

func (s *SQLiteStore) EnsureDomain(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO domains (name) VALUES (?)`, name)
	return eris.Wrapf(err, "sqlite: ensure domain %s", name)
}

func (s *SQLiteStore) GetDomain(ctx context.Context, name string) (*model.Domain, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT name, mx, spf, dmarc, email_format FROM domains WHERE name = ?`, name)

	var d model.Domain
	err := row.Scan(&d.Name, &d.MX, &d.SPF, &d.DMARC, &d.EmailFormat)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get domain %s", name)
	}
	return &d, nil
}

func (s *SQLiteStore) ListDomains(ctx context.Context) ([]model.Domain, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, mx, spf, dmarc, email_format FROM domains ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list domains")
	}
	defer rows.Close()

	var domains []model.Domain
	for rows.Next() {
		var d model.Domain
		if err := rows.Scan(&d.Name, &d.MX, &d.SPF, &d.DMARC, &d.EmailFormat); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan domain")
		}
		domains = append(domains, d)
	}
	return domains, eris.Wrap(rows.Err(), "sqlite: list domains iterate")
}

func (s *SQLiteStore) UpdateDomainRecords(ctx context.Context, name string, records model.DNSRecords) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO domains (name, mx, spf, dmarc) VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET mx = excluded.mx, spf = excluded.spf, dmarc = excluded.dmarc`,
		name, records.MX, records.SPF, records.DMARC)
	return eris.Wrapf(err, "sqlite: update domain records %s", name)
}

func (s *SQLiteStore) UpdateDomainEmailFormat(ctx context.Context, name, format string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE domains SET email_format = ? WHERE name = ?`, format, name)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update email format %s", name)
	}
	return checkRowsAffected(res, "domain", name)
}

func (s *SQLiteStore) EnsureSourceDomain(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO source_domains (name) VALUES (?)`, name)
	return eris.Wrapf(err, "sqlite: ensure source domain %s", name)
}

// --- Targets ---

func (s *SQLiteStore) UpsertTarget(ctx context.Context, t model.Target) error {
	status := t.Status
	if status == "" {
		status = model.TargetStatusPending
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO targets (email, name, domain_name, status, tenure_start)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(email) DO UPDATE SET
			name = excluded.name,
			domain_name = excluded.domain_name,
			tenure_start = COALESCE(excluded.tenure_start, targets.tenure_start)`,
		t.Email, t.Name, t.DomainName, string(status), t.TenureStart)
	return eris.Wrapf(err, "sqlite: upsert target %s", t.Email)
}

func (s *SQLiteStore) GetTarget(ctx context.Context, email string) (*model.Target, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT email, name, profile, domain_name, tenure_start, status FROM targets WHERE email = ?`,
		email)

	var t model.Target
	err := row.Scan(&t.Email, &t.Name, &t.Profile, &t.DomainName, &t.TenureStart, &t.Status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get target %s", email)
	}
	return &t, nil
}

func (s *SQLiteStore) ListTargets(ctx context.Context, domain string) ([]model.Target, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT email, name, profile, domain_name, tenure_start, status
		 FROM targets WHERE domain_name = ? ORDER BY email`, domain)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list targets %s", domain)
	}
	defer rows.Close()

	var targets []model.Target
	for rows.Next() {
		var t model.Target
		if err := rows.Scan(&t.Email, &t.Name, &t.Profile, &t.DomainName, &t.TenureStart, &t.Status); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan target")
		}
		targets = append(targets, t)
	}
	return targets, eris.Wrap(rows.Err(), "sqlite: list targets iterate")
}

// UpdateTargetStatus validates the move against the transition table before
// writing. Re-writing the current status is a no-op, not an error, so that
// replayed jobs and the aggregator's duplicate settlements stay harmless.
func (s *SQLiteStore) UpdateTargetStatus(ctx context.Context, email string, status model.TargetStatus) error {
	t, err := s.GetTarget(ctx, email)
	if err != nil {
		return err
	}
	if t == nil {
		return eris.Errorf("target not found: %s", email)
	}
	if err := model.CheckTargetTransition(t.Status, status); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE targets SET status = ? WHERE email = ?`, string(status), email)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update target status %s", email)
	}
	return checkRowsAffected(res, "target", email)
}

func (s *SQLiteStore) UpdateTargetProfile(ctx context.Context, email, profile string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE targets SET profile = ? WHERE email = ?`, profile, email)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update target profile %s", email)
	}
	return checkRowsAffected(res, "target", email)
}

// DeleteTarget removes a target together with its map rows and pretexts in
// one transaction.
func (s *SQLiteStore) DeleteTarget(ctx context.Context, email string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin delete target")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, q := range []string{
		`DELETE FROM target_source_map WHERE target_email = ?`,
		`DELETE FROM pretexts WHERE target_email = ?`,
		`DELETE FROM targets WHERE email = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, email); err != nil {
			return eris.Wrapf(err, "sqlite: delete target %s", email)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit delete target")
}

// --- Sources ---

// InsertSource is idempotent on URL: a re-discovered source returns the
// existing row id instead of erroring or duplicating.
func (s *SQLiteStore) InsertSource(ctx context.Context, src model.SourceData) (int64, error) {
	status := src.Status
	if status == "" {
		status = model.SourceStatusPending
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO source_data (url, source_domain_name, discovery_method, data, status)
		 VALUES (?, ?, ?, ?, ?)`,
		src.URL, src.SourceDomain, src.DiscoveryMethod, src.Data, string(status))
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: insert source %s", src.URL)
	}

	if n, err := res.RowsAffected(); err == nil && n > 0 {
		id, err := res.LastInsertId()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: source insert id")
		}
		return id, nil
	}

	var id int64
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM source_data WHERE url = ?`, src.URL).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: lookup source %s", src.URL)
	}
	return id, nil
}

func (s *SQLiteStore) GetSource(ctx context.Context, id int64) (*model.SourceData, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, url, source_domain_name, discovery_method, data, status, status_message, last_checked, created_at
		 FROM source_data WHERE id = ?`, id)
	return scanSource(row)
}

func (s *SQLiteStore) ListSources(ctx context.Context) ([]model.SourceData, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, url, source_domain_name, discovery_method, data, status, status_message, last_checked, created_at
		 FROM source_data ORDER BY last_checked DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sources")
	}
	defer rows.Close()
	return collectSources(rows)
}

func (s *SQLiteStore) MarkSourceProcessing(ctx context.Context, id int64, message string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE source_data SET status = ?, status_message = ? WHERE id = ?`,
		string(model.SourceStatusProcessing), message, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark source processing %d", id)
	}
	return checkRowsAffectedID(res, "source", id)
}

func (s *SQLiteStore) MarkSourceMined(ctx context.Context, id int64, data, message string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE source_data SET status = ?, data = ?, status_message = ?, last_checked = datetime('now') WHERE id = ?`,
		string(model.SourceStatusMined), data, message, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark source mined %d", id)
	}
	return checkRowsAffectedID(res, "source", id)
}

func (s *SQLiteStore) MarkSourceFailed(ctx context.Context, id int64, message string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE source_data SET status = ?, status_message = ?, last_checked = datetime('now') WHERE id = ?`,
		string(model.SourceStatusFailed), message, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark source failed %d", id)
	}
	return checkRowsAffectedID(res, "source", id)
}

// --- Target-source map ---

func (s *SQLiteStore) LinkTargetSource(ctx context.Context, email string, sourceID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO target_source_map (target_email, source_id) VALUES (?, ?)`,
		email, sourceID)
	return eris.Wrapf(err, "sqlite: link target %s source %d", email, sourceID)
}

func (s *SQLiteStore) TargetEmailsForSource(ctx context.Context, sourceID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT target_email FROM target_source_map WHERE source_id = ?`, sourceID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: targets for source %d", sourceID)
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan target email")
		}
		emails = append(emails, email)
	}
	return emails, eris.Wrap(rows.Err(), "sqlite: targets for source iterate")
}

func (s *SQLiteStore) CountPendingSources(ctx context.Context, email string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*)
		 FROM source_data sd
		 JOIN target_source_map tsm ON sd.id = tsm.source_id
		 WHERE tsm.target_email = ? AND sd.status = ?`,
		email, string(model.SourceStatusPending)).Scan(&count)
	return count, eris.Wrapf(err, "sqlite: count pending sources %s", email)
}

func (s *SQLiteStore) MinedSources(ctx context.Context, email string) ([]model.SourceData, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sd.id, sd.url, sd.source_domain_name, sd.discovery_method, sd.data, sd.status, sd.status_message, sd.last_checked, sd.created_at
		 FROM source_data sd
		 JOIN target_source_map tsm ON sd.id = tsm.source_id
		 WHERE tsm.target_email = ? AND sd.status = ?
		 ORDER BY sd.id`,
		email, string(model.SourceStatusMined))
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: mined sources %s", email)
	}
	defer rows.Close()
	return collectSources(rows)
}

func (s *SQLiteStore) UnminedSourcesForTargets(ctx context.Context, emails []string) ([]model.SourceData, error) {
	query := `SELECT id, url, source_domain_name, discovery_method, data, status, status_message, last_checked, created_at
		 FROM source_data WHERE status != ?`
	args := []any{string(model.SourceStatusMined)}

	if len(emails) > 0 {
		placeholders := "?"
		args = append(args, emails[0])
		for _, email := range emails[1:] {
			placeholders += ",?"
			args = append(args, email)
		}
		query = `SELECT sd.id, sd.url, sd.source_domain_name, sd.discovery_method, sd.data, sd.status, sd.status_message, sd.last_checked, sd.created_at
			 FROM source_data sd
			 JOIN target_source_map tsm ON sd.id = tsm.source_id
			 WHERE sd.status != ? AND tsm.target_email IN (` + placeholders + `)
			 GROUP BY sd.id`
		args = append([]any{string(model.SourceStatusMined)}, args[1:]...)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: unmined sources")
	}
	defer rows.Close()
	return collectSources(rows)
}

// --- Prompts ---

func (s *SQLiteStore) InsertPrompt(ctx context.Context, p model.Prompt) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO prompts (name, template, system_prompt, dos, donts) VALUES (?, ?, ?, ?, ?)`,
		p.Name, p.Template, p.SystemPrompt, p.Dos, p.Donts)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: insert prompt %s", p.Name)
	}
	id, err := res.LastInsertId()
	return id, eris.Wrap(err, "sqlite: prompt insert id")
}

func (s *SQLiteStore) GetPrompt(ctx context.Context, id int64) (*model.Prompt, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, template, system_prompt, dos, donts FROM prompts WHERE id = ?`, id)
	return scanPrompt(row)
}

func (s *SQLiteStore) GetPromptByName(ctx context.Context, name string) (*model.Prompt, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, template, system_prompt, dos, donts FROM prompts WHERE name = ?`, name)
	return scanPrompt(row)
}

func (s *SQLiteStore) ListPrompts(ctx context.Context) ([]model.Prompt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, template, system_prompt, dos, donts FROM prompts ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list prompts")
	}
	defer rows.Close()

	var prompts []model.Prompt
	for rows.Next() {
		var p model.Prompt
		if err := rows.Scan(&p.ID, &p.Name, &p.Template, &p.SystemPrompt, &p.Dos, &p.Donts); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan prompt")
		}
		prompts = append(prompts, p)
	}
	return prompts, eris.Wrap(rows.Err(), "sqlite: list prompts iterate")
}

// --- Pretexts ---

func (s *SQLiteStore) InsertPretext(ctx context.Context, p model.Pretext) (int64, error) {
	status := p.Status
	if status == "" {
		status = model.PretextStatusDraft
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO pretexts (target_email, prompt_id, prompt_text, subject, body, link, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.TargetEmail, p.PromptID, p.PromptText, p.Subject, p.Body, p.Link, string(status))
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: insert pretext for %s", p.TargetEmail)
	}
	id, err := res.LastInsertId()
	return id, eris.Wrap(err, "sqlite: pretext insert id")
}

func (s *SQLiteStore) UpdatePretextStatus(ctx context.Context, id int64, status model.PretextStatus) error {
	if !model.ValidPretextStatus(status) {
		return eris.Errorf("invalid pretext status: %s", status)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE pretexts SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update pretext status %d", id)
	}
	return checkRowsAffectedID(res, "pretext", id)
}

func (s *SQLiteStore) ListPretextsForTarget(ctx context.Context, email string) ([]model.Pretext, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, target_email, prompt_id, prompt_text, subject, body, link, status, created_at
		 FROM pretexts WHERE target_email = ? ORDER BY created_at DESC`, email)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list pretexts %s", email)
	}
	defer rows.Close()
	return collectPretexts(rows)
}

func (s *SQLiteStore) ListPretextsForDomain(ctx context.Context, domain string) ([]model.Pretext, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.id, p.target_email, p.prompt_id, p.prompt_text, p.subject, p.body, p.link, p.status, p.created_at
		 FROM pretexts p
		 JOIN targets t ON p.target_email = t.email
		 WHERE t.domain_name = ? ORDER BY p.created_at DESC`, domain)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list pretexts for domain %s", domain)
	}
	defer rows.Close()
	return collectPretexts(rows)
}

// --- helpers ---

func checkRowsAffected(res sql.Result, entity, key string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, key)
	}
	return nil
}

func checkRowsAffectedID(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %d", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSource(row scannable) (*model.SourceData, error) {
	var src model.SourceData
	var lastChecked, createdAt time.Time
	err := row.Scan(&src.ID, &src.URL, &src.SourceDomain, &src.DiscoveryMethod,
		&src.Data, &src.Status, &src.StatusMessage, &lastChecked, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan source")
	}
	src.LastChecked = lastChecked
	src.CreatedAt = createdAt
	return &src, nil
}

func collectSources(rows *sql.Rows) ([]model.SourceData, error) {
	var sources []model.SourceData
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, *src)
	}
	return sources, eris.Wrap(rows.Err(), "sqlite: sources iterate")
}

func scanPrompt(row scannable) (*model.Prompt, error) {
	var p model.Prompt
	err := row.Scan(&p.ID, &p.Name, &p.Template, &p.SystemPrompt, &p.Dos, &p.Donts)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan prompt")
	}
	return &p, nil
}

func collectPretexts(rows *sql.Rows) ([]model.Pretext, error) {
	var pretexts []model.Pretext
	for rows.Next() {
		var p model.Pretext
		if err := rows.Scan(&p.ID, &p.TargetEmail, &p.PromptID, &p.PromptText,
			&p.Subject, &p.Body, &p.Link, &p.Status, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan pretext")
		}
		pretexts = append(pretexts, p)
	}
	return pretexts, eris.Wrap(rows.Err(), "sqlite: pretexts iterate")
}
