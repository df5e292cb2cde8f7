package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/recon-pipeline/internal/model"
)

// Pool abstracts the pgxpool methods the store uses, so tests can substitute
// pgxmock.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool (used by tests).
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS domains (
	name         TEXT PRIMARY KEY,
	mx           TEXT,
	spf          TEXT,
	dmarc        TEXT,
	email_format TEXT
);

CREATE TABLE IF NOT EXISTS source_domains (
	name         TEXT PRIMARY KEY,
	last_checked TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS targets (
	email        TEXT PRIMARY KEY,
	name         TEXT NOT NULL DEFAULT '',
	profile      TEXT,
	domain_name  TEXT NOT NULL REFERENCES domains(name),
	tenure_start TIMESTAMPTZ,
	status       TEXT NOT NULL DEFAULT 'pending'
);

CREATE TABLE IF NOT EXISTS source_data (
	id                 BIGSERIAL PRIMARY KEY,
	url                TEXT UNIQUE NOT NULL,
	source_domain_name TEXT,
	discovery_method   TEXT NOT NULL,
	data               TEXT,
	status             TEXT NOT NULL DEFAULT 'pending',
	status_message     TEXT,
	last_checked       TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS target_source_map (
	id           BIGSERIAL PRIMARY KEY,
	target_email TEXT NOT NULL REFERENCES targets(email),
	source_id    BIGINT NOT NULL REFERENCES source_data(id),
	UNIQUE(target_email, source_id)
);

CREATE TABLE IF NOT EXISTS prompts (
	id            BIGSERIAL PRIMARY KEY,
	name          TEXT UNIQUE NOT NULL,
	template      TEXT NOT NULL,
	system_prompt TEXT NOT NULL DEFAULT '',
	dos           TEXT NOT NULL DEFAULT '',
	donts         TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS pretexts (
	id           BIGSERIAL PRIMARY KEY,
	target_email TEXT NOT NULL REFERENCES targets(email),
	prompt_id    BIGINT NOT NULL REFERENCES prompts(id),
	prompt_text  TEXT NOT NULL,
	subject      TEXT NOT NULL DEFAULT '',
	body         TEXT NOT NULL DEFAULT '',
	link         TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'draft',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_targets_domain ON targets(domain_name);
CREATE INDEX IF NOT EXISTS idx_targets_status ON targets(status);
CREATE INDEX IF NOT EXISTS idx_source_data_status ON source_data(status);
CREATE INDEX IF NOT EXISTS idx_map_source ON target_source_map(source_id);
CREATE INDEX IF NOT EXISTS idx_map_target ON target_source_map(target_email);
CREATE INDEX IF NOT EXISTS idx_pretexts_target ON pretexts(target_email);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// --- Domains ---

func (s *PostgresStore) EnsureDomain(ctx context.Context, name string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO domains (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name)
	return eris.Wrapf(err, "postgres: ensure domain %s", name)
}

func (s *PostgresStore) GetDomain(ctx context.Context, name string) (*model.Domain, error) {
	var d model.Domain
	err := s.pool.QueryRow(ctx,
		`SELECT name, mx, spf, dmarc, email_format FROM domains WHERE name = $1`, name).
		Scan(&d.Name, &d.MX, &d.SPF, &d.DMARC, &d.EmailFormat)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get domain %s", name)
	}
	return &d, nil
}

func (s *PostgresStore) ListDomains(ctx context.Context) ([]model.Domain, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name, mx, spf, dmarc, email_format FROM domains ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list domains")
	}
	defer rows.Close()

	var domains []model.Domain
	for rows.Next() {
		var d model.Domain
		if err := rows.Scan(&d.Name, &d.MX, &d.SPF, &d.DMARC, &d.EmailFormat); err != nil {
			return nil, eris.Wrap(err, "postgres: scan domain")
		}
		domains = append(domains, d)
	}
	return domains, eris.Wrap(rows.Err(), "postgres: list domains iterate")
}

func (s *PostgresStore) UpdateDomainRecords(ctx context.Context, name string, records model.DNSRecords) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO domains (name, mx, spf, dmarc) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (name) DO UPDATE SET mx = excluded.mx, spf = excluded.spf, dmarc = excluded.dmarc`,
		name, records.MX, records.SPF, records.DMARC)
	return eris.Wrapf(err, "postgres: update domain records %s", name)
}

func (s *PostgresStore) UpdateDomainEmailFormat(ctx context.Context, name, format string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE domains SET email_format = $1 WHERE name = $2`, format, name)
	if err != nil {
		return eris.Wrapf(err, "postgres: update email format %s", name)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("domain not found: %s", name)
	}
	return nil
}

func (s *PostgresStore) EnsureSourceDomain(ctx context.Context, name string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO source_domains (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name)
	return eris.Wrapf(err, "postgres: ensure source domain %s", name)
}

// --- Targets ---

func (s *PostgresStore) UpsertTarget(ctx context.Context, t model.Target) error {
	status := t.Status
	if status == "" {
		status = model.TargetStatusPending
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO targets (email, name, domain_name, status, tenure_start)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (email) DO UPDATE SET
			name = excluded.name,
			domain_name = excluded.domain_name,
			tenure_start = COALESCE(excluded.tenure_start, targets.tenure_start)`,
		t.Email, t.Name, t.DomainName, string(status), t.TenureStart)
	return eris.Wrapf(err, "postgres: upsert target %s", t.Email)
}

func (s *PostgresStore) GetTarget(ctx context.Context, email string) (*model.Target, error) {
	var t model.Target
	err := s.pool.QueryRow(ctx,
		`SELECT email, name, profile, domain_name, tenure_start, status FROM targets WHERE email = $1`,
		email).Scan(&t.Email, &t.Name, &t.Profile, &t.DomainName, &t.TenureStart, &t.Status)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get target %s", email)
	}
	return &t, nil
}

func (s *PostgresStore) ListTargets(ctx context.Context, domain string) ([]model.Target, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT email, name, profile, domain_name, tenure_start, status
		 FROM targets WHERE domain_name = $1 ORDER BY email`, domain)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list targets %s", domain)
	}
	defer rows.Close()

	var targets []model.Target
	for rows.Next() {
		var t model.Target
		if err := rows.Scan(&t.Email, &t.Name, &t.Profile, &t.DomainName, &t.TenureStart, &t.Status); err != nil {
			return nil, eris.Wrap(err, "postgres: scan target")
		}
		targets = append(targets, t)
	}
	return targets, eris.Wrap(rows.Err(), "postgres: list targets iterate")
}

func (s *PostgresStore) UpdateTargetStatus(ctx context.Context, email string, status model.TargetStatus) error {
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

	tag, err := s.pool.Exec(ctx,
		`UPDATE targets SET status = $1 WHERE email = $2`, string(status), email)
	if err != nil {
		return eris.Wrapf(err, "postgres: update target status %s", email)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("target not found: %s", email)
	}
	return nil
}

func (s *PostgresStore) UpdateTargetProfile(ctx context.Context, email, profile string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE targets SET profile = $1 WHERE email = $2`, profile, email)
	if err != nil {
		return eris.Wrapf(err, "postgres: update target profile %s", email)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("target not found: %s", email)
	}
	return nil
}

func (s *PostgresStore) DeleteTarget(ctx context.Context, email string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin delete target")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, q := range []string{
		`DELETE FROM target_source_map WHERE target_email = $1`,
		`DELETE FROM pretexts WHERE target_email = $1`,
		`DELETE FROM targets WHERE email = $1`,
	} {
		if _, err := tx.Exec(ctx, q, email); err != nil {
			return eris.Wrapf(err, "postgres: delete target %s", email)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit delete target")
}

// --- Sources ---

func (s *PostgresStore) InsertSource(ctx context.Context, src model.SourceData) (int64, error) {
	status := src.Status
	if status == "" {
		status = model.SourceStatusPending
	}

	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO source_data (url, source_domain_name, discovery_method, data, status)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (url) DO NOTHING
		 RETURNING id`,
		src.URL, src.SourceDomain, src.DiscoveryMethod, src.Data, string(status)).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != pgx.ErrNoRows {
		return 0, eris.Wrapf(err, "postgres: insert source %s", src.URL)
	}

	// Conflict: the row already exists, fetch its id.
	err = s.pool.QueryRow(ctx,
		`SELECT id FROM source_data WHERE url = $1`, src.URL).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: lookup source %s", src.URL)
	}
	return id, nil
}

func (s *PostgresStore) GetSource(ctx context.Context, id int64) (*model.SourceData, error) {
	var src model.SourceData
	err := s.pool.QueryRow(ctx,
		`SELECT id, url, source_domain_name, discovery_method, data, status, status_message, last_checked, created_at
		 FROM source_data WHERE id = $1`, id).
		Scan(&src.ID, &src.URL, &src.SourceDomain, &src.DiscoveryMethod,
			&src.Data, &src.Status, &src.StatusMessage, &src.LastChecked, &src.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get source %d", id)
	}
	return &src, nil
}

func (s *PostgresStore) ListSources(ctx context.Context) ([]model.SourceData, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, url, source_domain_name, discovery_method, data, status, status_message, last_checked, created_at
		 FROM source_data ORDER BY last_checked DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sources")
	}
	defer rows.Close()
	return collectPgSources(rows)
}

func (s *PostgresStore) MarkSourceProcessing(ctx context.Context, id int64, message string) error {
	return s.markSource(ctx, id,
		`UPDATE source_data SET status = $1, status_message = $2 WHERE id = $3`,
		model.SourceStatusProcessing, message)
}

func (s *PostgresStore) MarkSourceMined(ctx context.Context, id int64, data, message string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE source_data SET status = $1, data = $2, status_message = $3, last_checked = now() WHERE id = $4`,
		string(model.SourceStatusMined), data, message, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark source mined %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("source not found: %d", id)
	}
	return nil
}

func (s *PostgresStore) MarkSourceFailed(ctx context.Context, id int64, message string) error {
	return s.markSource(ctx, id,
		`UPDATE source_data SET status = $1, status_message = $2, last_checked = now() WHERE id = $3`,
		model.SourceStatusFailed, message)
}

func (s *PostgresStore) markSource(ctx context.Context, id int64, query string, status model.SourceStatus, message string) error {
	tag, err := s.pool.Exec(ctx, query, string(status), message, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark source %s %d", status, id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("source not found: %d", id)
	}
	return nil
}

// --- Target-source map ---

func (s *PostgresStore) LinkTargetSource(ctx context.Context, email string, sourceID int64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO target_source_map (target_email, source_id) VALUES ($1, $2)
		 ON CONFLICT (target_email, source_id) DO NOTHING`,
		email, sourceID)
	return eris.Wrapf(err, "postgres: link target %s source %d", email, sourceID)
}

func (s *PostgresStore) TargetEmailsForSource(ctx context.Context, sourceID int64) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT target_email FROM target_source_map WHERE source_id = $1`, sourceID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: targets for source %d", sourceID)
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, eris.Wrap(err, "postgres: scan target email")
		}
		emails = append(emails, email)
	}
	return emails, eris.Wrap(rows.Err(), "postgres: targets for source iterate")
}

func (s *PostgresStore) CountPendingSources(ctx context.Context, email string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*)
		 FROM source_data sd
		 JOIN target_source_map tsm ON sd.id = tsm.source_id
		 WHERE tsm.target_email = $1 AND sd.status = $2`,
		email, string(model.SourceStatusPending)).Scan(&count)
	return count, eris.Wrapf(err, "postgres: count pending sources %s", email)
}

func (s *PostgresStore) MinedSources(ctx context.Context, email string) ([]model.SourceData, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT sd.id, sd.url, sd.source_domain_name, sd.discovery_method, sd.data, sd.status, sd.status_message, sd.last_checked, sd.created_at
		 FROM source_data sd
		 JOIN target_source_map tsm ON sd.id = tsm.source_id
		 WHERE tsm.target_email = $1 AND sd.status = $2
		 ORDER BY sd.id`,
		email, string(model.SourceStatusMined))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: mined sources %s", email)
	}
	defer rows.Close()
	return collectPgSources(rows)
}

func (s *PostgresStore) UnminedSourcesForTargets(ctx context.Context, emails []string) ([]model.SourceData, error) {
	var rows pgx.Rows
	var err error
	if len(emails) > 0 {
		rows, err = s.pool.Query(ctx,
			`SELECT sd.id, sd.url, sd.source_domain_name, sd.discovery_method, sd.data, sd.status, sd.status_message, sd.last_checked, sd.created_at
			 FROM source_data sd
			 JOIN target_source_map tsm ON sd.id = tsm.source_id
			 WHERE sd.status != $1 AND tsm.target_email = ANY($2)
			 GROUP BY sd.id`,
			string(model.SourceStatusMined), emails)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT id, url, source_domain_name, discovery_method, data, status, status_message, last_checked, created_at
			 FROM source_data WHERE status != $1`,
			string(model.SourceStatusMined))
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: unmined sources")
	}
	defer rows.Close()
	return collectPgSources(rows)
}

// --- Prompts ---

func (s *PostgresStore) InsertPrompt(ctx context.Context, p model.Prompt) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO prompts (name, template, system_prompt, dos, donts)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		p.Name, p.Template, p.SystemPrompt, p.Dos, p.Donts).Scan(&id)
	return id, eris.Wrapf(err, "postgres: insert prompt %s", p.Name)
}

func (s *PostgresStore) GetPrompt(ctx context.Context, id int64) (*model.Prompt, error) {
	return s.scanPromptRow(s.pool.QueryRow(ctx,
		`SELECT id, name, template, system_prompt, dos, donts FROM prompts WHERE id = $1`, id))
}

func (s *PostgresStore) GetPromptByName(ctx context.Context, name string) (*model.Prompt, error) {
	return s.scanPromptRow(s.pool.QueryRow(ctx,
		`SELECT id, name, template, system_prompt, dos, donts FROM prompts WHERE name = $1`, name))
}

func (s *PostgresStore) scanPromptRow(row pgx.Row) (*model.Prompt, error) {
	var p model.Prompt
	err := row.Scan(&p.ID, &p.Name, &p.Template, &p.SystemPrompt, &p.Dos, &p.Donts)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan prompt")
	}
	return &p, nil
}

func (s *PostgresStore) ListPrompts(ctx context.Context) ([]model.Prompt, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, template, system_prompt, dos, donts FROM prompts ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list prompts")
	}
	defer rows.Close()

	var prompts []model.Prompt
	for rows.Next() {
		var p model.Prompt
		if err := rows.Scan(&p.ID, &p.Name, &p.Template, &p.SystemPrompt, &p.Dos, &p.Donts); err != nil {
			return nil, eris.Wrap(err, "postgres: scan prompt")
		}
		prompts = append(prompts, p)
	}
	return prompts, eris.Wrap(rows.Err(), "postgres: list prompts iterate")
}

// --- Pretexts ---

func (s *PostgresStore) InsertPretext(ctx context.Context, p model.Pretext) (int64, error) {
	status := p.Status
	if status == "" {
		status = model.PretextStatusDraft
	}
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO pretexts (target_email, prompt_id, prompt_text, subject, body, link, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		p.TargetEmail, p.PromptID, p.PromptText, p.Subject, p.Body, p.Link, string(status)).Scan(&id)
	return id, eris.Wrapf(err, "postgres: insert pretext for %s", p.TargetEmail)
}

func (s *PostgresStore) UpdatePretextStatus(ctx context.Context, id int64, status model.PretextStatus) error {
	if !model.ValidPretextStatus(status) {
		return eris.Errorf("invalid pretext status: %s", status)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE pretexts SET status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		return eris.Wrapf(err, "postgres: update pretext status %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("pretext not found: %d", id)
	}
	return nil
}

func (s *PostgresStore) ListPretextsForTarget(ctx context.Context, email string) ([]model.Pretext, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, target_email, prompt_id, prompt_text, subject, body, link, status, created_at
		 FROM pretexts WHERE target_email = $1 ORDER BY created_at DESC`, email)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list pretexts %s", email)
	}
	defer rows.Close()
	return collectPgPretexts(rows)
}

func (s *PostgresStore) ListPretextsForDomain(ctx context.Context, domain string) ([]model.Pretext, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT p.id, p.target_email, p.prompt_id, p.prompt_text, p.subject, p.body, p.link, p.status, p.created_at
		 FROM pretexts p
		 JOIN targets t ON p.target_email = t.email
		 WHERE t.domain_name = $1 ORDER BY p.created_at DESC`, domain)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list pretexts for domain %s", domain)
	}
	defer rows.Close()
	return collectPgPretexts(rows)
}

// --- helpers ---

func collectPgSources(rows pgx.Rows) ([]model.SourceData, error) {
	var sources []model.SourceData
	for rows.Next() {
		var src model.SourceData
		if err := rows.Scan(&src.ID, &src.URL, &src.SourceDomain, &src.DiscoveryMethod,
			&src.Data, &src.Status, &src.StatusMessage, &src.LastChecked, &src.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan source")
		}
		sources = append(sources, src)
	}
	return sources, eris.Wrap(rows.Err(), "postgres: sources iterate")
}

func collectPgPretexts(rows pgx.Rows) ([]model.Pretext, error) {
	var pretexts []model.Pretext
	for rows.Next() {
		var p model.Pretext
		if err := rows.Scan(&p.ID, &p.TargetEmail, &p.PromptID, &p.PromptText,
			&p.Subject, &p.Body, &p.Link, &p.Status, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan pretext")
		}
		pretexts = append(pretexts, p)
	}
	return pretexts, eris.Wrap(rows.Err(), "postgres: pretexts iterate")
}
