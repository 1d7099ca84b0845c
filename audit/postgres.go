package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/osmwatch/osmwatch/changeset"
)

const auditTable = "changeset_reviews"

// Postgres records review changesets in a table, one row per
// changeset. The changeset id is the primary key, repeated inserts
// are no-ops.
type Postgres struct {
	db *sql.DB
}

func OpenPostgres(connection string) (*Postgres, error) {
	db, err := sql.Open("postgres", connection)
	if err != nil {
		return nil, errors.Wrap(err, "opening audit database")
	}
	p := &Postgres{db: db}
	if err := p.createTable(); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

func (p *Postgres) createTable() error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		logged_at timestamptz NOT NULL,
		changeset_id bigint PRIMARY KEY,
		osm_user text NOT NULL,
		total_changes integer NOT NULL,
		created integer NOT NULL,
		modified integer NOT NULL,
		deleted integer NOT NULL,
		warning_flags text NOT NULL,
		comment text NOT NULL,
		source text NOT NULL,
		created_at timestamptz NOT NULL,
		osm_link text NOT NULL,
		osmcha_link text NOT NULL,
		status text NOT NULL
	)`, auditTable)
	_, err := p.db.Exec(stmt)
	return errors.Wrap(err, "creating audit table")
}

func (p *Postgres) LogNeedsReview(ctx context.Context, cs *changeset.Changeset, source string) error {
	created, modified, deleted := rowCounts(cs)
	stmt := fmt.Sprintf(`INSERT INTO %s (
		logged_at, changeset_id, osm_user, total_changes,
		created, modified, deleted, warning_flags, comment, source,
		created_at, osm_link, osmcha_link, status
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	ON CONFLICT (changeset_id) DO NOTHING`, auditTable)

	res, err := p.db.ExecContext(ctx, stmt,
		time.Now().UTC(),
		cs.ID,
		cs.User,
		created+modified+deleted,
		created,
		modified,
		deleted,
		warningFlags(cs),
		truncate(cs.Comment, maxCommentLen),
		sourceTag(cs),
		cs.CreatedAt,
		osmLink(cs.ID),
		osmchaLink(cs.ID),
		statusPending,
	)
	if err != nil {
		return errors.Wrapf(err, "auditing changeset %d", cs.ID)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		logger.Debugf("changeset %d already audited, skipping", cs.ID)
		return nil
	}
	logger.Printf("audited changeset %d (%s)", cs.ID, source)
	return nil
}
