package sink

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/fleetwire/fleetwire/internal/command"
)

const (
	defaultMaxOpenConns = 25
	defaultMaxIdleConns = 5
	defaultConnLifetime = time.Hour
	defaultPingTimeout  = 5 * time.Second
)

// Postgres is the production Sink backed by a pgx/stdlib pool.
//
// Status updates are guarded per transition in SQL, so they are safe under
// concurrent writers: the dispatch loop moving Queued->Sent/Error and a
// device reducer moving to Received never clobber a terminal state, and
// re-applying a transition is a no-op.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres creates the pool and validates the connection.
func OpenPostgres(dsn string) (*Postgres, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sink: empty DSN")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), defaultPingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// InsertTelemetry implements Sink.
func (p *Postgres) InsertTelemetry(ctx context.Context, messageID string, body []byte) error {
	_, err := p.db.ExecContext(ctx, `
INSERT INTO telemetry (message_id, body)
VALUES ($1, $2)
ON CONFLICT (message_id) DO NOTHING`, messageID, body)
	return err
}

// InsertCommand implements Sink.
func (p *Postgres) InsertCommand(ctx context.Context, cmd command.Command) error {
	_, err := p.db.ExecContext(ctx, `
INSERT INTO commands (command_id, device_id, command_type, status, created_at)
VALUES ($1, $2, $3, $4, $5)`, cmd.ID, cmd.DeviceID, string(cmd.Type), string(cmd.Status), cmd.CreatedAt)
	return err
}

// UpdateCommandStatus implements Sink. The WHERE clause encodes the legal
// transitions into the target status; an update that matches no row (already
// applied, or illegal from the current status) is not an error.
func (p *Postgres) UpdateCommandStatus(ctx context.Context, commandID string, status command.Status) error {
	var from []string
	switch status {
	case command.StatusSent:
		from = []string{string(command.StatusQueued)}
	case command.StatusReceived:
		from = []string{string(command.StatusQueued), string(command.StatusSent)}
	case command.StatusError:
		from = []string{string(command.StatusQueued), string(command.StatusSent)}
	default:
		return nil
	}
	_, err := p.db.ExecContext(ctx, `
UPDATE commands SET status = $1 WHERE command_id = $2 AND status = ANY($3)`,
		string(status), commandID, from)
	return err
}

// DeleteCommand implements Sink.
func (p *Postgres) DeleteCommand(ctx context.Context, commandID string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM commands WHERE command_id = $1`, commandID)
	return err
}

// GetCommand implements Sink.
func (p *Postgres) GetCommand(ctx context.Context, commandID string) (command.Command, error) {
	var cmd command.Command
	var typ, status string
	err := p.db.QueryRowContext(ctx, `
SELECT command_id, device_id, command_type, status, created_at
FROM commands WHERE command_id = $1`, commandID).
		Scan(&cmd.ID, &cmd.DeviceID, &typ, &status, &cmd.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return command.Command{}, ErrCommandNotFound
	}
	if err != nil {
		return command.Command{}, err
	}
	cmd.Type = command.Type(typ)
	cmd.Status = command.Status(status)
	return cmd, nil
}

// Close implements Sink.
func (p *Postgres) Close() error { return p.db.Close() }
