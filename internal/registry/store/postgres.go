package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq" // postgres driver
	"skyreg/internal/registry"
)

// Postgres persists canonical records in PostgreSQL. Bulk replacement runs
// delete-old, write-new and the metadata update in a single transaction with
// an extended timeout so it is not constrained by interactive defaults.
type Postgres struct {
	db          *sql.DB
	bulkTimeout time.Duration
}

// NewPostgres constructs a PostgreSQL-backed registry store.
func NewPostgres(db *sql.DB, bulkTimeout time.Duration) *Postgres {
	if bulkTimeout <= 0 {
		bulkTimeout = 10 * time.Minute
	}
	return &Postgres{db: db, bulkTimeout: bulkTimeout}
}

// Migrate creates the backing tables when they do not exist yet.
func (s *Postgres) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS aircraft (
			registration     TEXT PRIMARY KEY,
			serial_number    TEXT NOT NULL DEFAULT '',
			mfr_mdl_code     TEXT NOT NULL DEFAULT '',
			eng_mfr_mdl_code TEXT NOT NULL DEFAULT '',
			year_mfr         TEXT NOT NULL DEFAULT '',
			registrant_name  TEXT NOT NULL DEFAULT '',
			street           TEXT NOT NULL DEFAULT '',
			city             TEXT NOT NULL DEFAULT '',
			state            TEXT NOT NULL DEFAULT '',
			zip_code         TEXT NOT NULL DEFAULT '',
			country          TEXT NOT NULL DEFAULT '',
			status_code      TEXT NOT NULL DEFAULT '',
			mode_s_hex       TEXT,
			cert_issue_date  TEXT NOT NULL DEFAULT '',
			expiration_date  TEXT NOT NULL DEFAULT '',
			unique_id        TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS aircraft_mode_s_hex_idx ON aircraft (mode_s_hex);
		CREATE TABLE IF NOT EXISTS sync_metadata (
			singleton     BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (singleton),
			source_url    TEXT NOT NULL,
			version       TEXT NOT NULL,
			synced_at     TIMESTAMPTZ NOT NULL,
			total_records BIGINT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("migrate registry store: %w", err)
	}
	return nil
}

const aircraftColumns = `registration, serial_number, mfr_mdl_code, eng_mfr_mdl_code,
	year_mfr, registrant_name, street, city, state, zip_code, country,
	status_code, mode_s_hex, cert_issue_date, expiration_date, unique_id`

func (s *Postgres) FindByKey(ctx context.Context, kind registry.KeyKind, value string) (*registry.Aircraft, error) {
	var column string
	switch kind {
	case registry.KeyRegistration:
		column = "registration"
	case registry.KeyModeSHex:
		column = "mode_s_hex"
	default:
		return nil, fmt.Errorf("unknown key kind %q", kind)
	}

	query := fmt.Sprintf(`SELECT %s FROM aircraft WHERE %s = $1`, aircraftColumns, column)
	row := s.db.QueryRowContext(ctx, query, strings.ToUpper(strings.TrimSpace(value)))

	var rec registry.Aircraft
	var modeS sql.NullString
	err := row.Scan(
		&rec.Registration, &rec.SerialNumber, &rec.MfrMdlCode, &rec.EngMfrMdlCode,
		&rec.YearMfr, &rec.RegistrantName, &rec.Street, &rec.City, &rec.State,
		&rec.ZipCode, &rec.Country, &rec.StatusCode, &modeS,
		&rec.CertIssueDate, &rec.ExpirationDate, &rec.UniqueID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find aircraft by %s: %w", column, err)
	}
	rec.ModeSHex = modeS.String
	return &rec, nil
}

func (s *Postgres) ReadMetadata(ctx context.Context) (*registry.SyncMetadata, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT source_url, version, synced_at, total_records
		FROM sync_metadata WHERE singleton
	`)
	var meta registry.SyncMetadata
	err := row.Scan(&meta.SourceURL, &meta.Version, &meta.SyncedAt, &meta.TotalRecords)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("read sync metadata: %w", err)
	}
	return &meta, nil
}

func (s *Postgres) Replace(ctx context.Context, fn func(ctx context.Context, tx BulkTx) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.bulkTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bulk transaction: %w", err)
	}
	if err := fn(ctx, &postgresTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bulk transaction: %w", err)
	}
	return nil
}

type postgresTx struct {
	tx *sql.Tx
}

func (t *postgresTx) DeleteAll(ctx context.Context) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM aircraft`); err != nil {
		return fmt.Errorf("delete aircraft: %w", err)
	}
	return nil
}

func (t *postgresTx) BatchUpsert(ctx context.Context, records []registry.Aircraft) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	const fields = 16
	var (
		sb   strings.Builder
		args = make([]any, 0, len(records)*fields)
	)
	sb.WriteString(`INSERT INTO aircraft (` + aircraftColumns + `) VALUES `)
	for i, rec := range records {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for j := range fields {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", i*fields+j+1)
		}
		sb.WriteString(")")

		var modeS sql.NullString
		if hex := strings.ToUpper(strings.TrimSpace(rec.ModeSHex)); hex != "" {
			modeS = sql.NullString{String: hex, Valid: true}
		}
		args = append(args,
			strings.ToUpper(strings.TrimSpace(rec.Registration)), rec.SerialNumber,
			rec.MfrMdlCode, rec.EngMfrMdlCode, rec.YearMfr, rec.RegistrantName,
			rec.Street, rec.City, rec.State, rec.ZipCode, rec.Country,
			rec.StatusCode, modeS, rec.CertIssueDate, rec.ExpirationDate, rec.UniqueID,
		)
	}
	sb.WriteString(` ON CONFLICT (registration) DO UPDATE SET
		serial_number = EXCLUDED.serial_number,
		mfr_mdl_code = EXCLUDED.mfr_mdl_code,
		eng_mfr_mdl_code = EXCLUDED.eng_mfr_mdl_code,
		year_mfr = EXCLUDED.year_mfr,
		registrant_name = EXCLUDED.registrant_name,
		street = EXCLUDED.street,
		city = EXCLUDED.city,
		state = EXCLUDED.state,
		zip_code = EXCLUDED.zip_code,
		country = EXCLUDED.country,
		status_code = EXCLUDED.status_code,
		mode_s_hex = EXCLUDED.mode_s_hex,
		cert_issue_date = EXCLUDED.cert_issue_date,
		expiration_date = EXCLUDED.expiration_date,
		unique_id = EXCLUDED.unique_id`)

	if _, err := t.tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return 0, fmt.Errorf("batch upsert %d aircraft: %w", len(records), err)
	}
	return len(records), nil
}

func (t *postgresTx) WriteMetadata(ctx context.Context, meta registry.SyncMetadata) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO sync_metadata (singleton, source_url, version, synced_at, total_records)
		VALUES (TRUE, $1, $2, $3, $4)
		ON CONFLICT (singleton) DO UPDATE SET
			source_url = EXCLUDED.source_url,
			version = EXCLUDED.version,
			synced_at = EXCLUDED.synced_at,
			total_records = EXCLUDED.total_records
	`, meta.SourceURL, meta.Version, meta.SyncedAt, meta.TotalRecords)
	if err != nil {
		return fmt.Errorf("write sync metadata: %w", err)
	}
	return nil
}
