package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var ErrNotFound = errors.New("no archived board")

// Archive keeps the latest stroke snapshot of each board in a sqlite file. It is write-mostly: the server never
// reads it back at start-up, the debug tool does.
type Archive struct {
	database *sql.DB
}

func Open(path string) (*Archive, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	a := &Archive{database: db}
	if err := a.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

func (a *Archive) init() error {
	if _, err := a.database.Exec(
		`CREATE TABLE IF NOT EXISTS boards (
		id text not null primary key,
		content text not null,
		saved_at integer not null
		)`,
	); err != nil {
		return fmt.Errorf("failed to create boards table: %w", err)
	}
	return nil
}

func (a *Archive) Close() error {
	return a.database.Close()
}

// Save stores content for board id and reports whether anything changed.
func (a *Archive) Save(ctx context.Context, id string, content []byte) (bool, error) {
	res, err := a.database.ExecContext(
		ctx,
		`INSERT INTO boards (id, content, saved_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET content = excluded.content, saved_at = excluded.saved_at
		WHERE boards.content != excluded.content`,
		id, string(content), time.Now().UnixNano(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to save board: %w", err)
	}
	r, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to count rows affected by save: %w", err)
	}
	return r > 0, nil
}

func (a *Archive) Latest(ctx context.Context, id string) ([]byte, time.Time, error) {
	var content string
	var savedAt int64
	if err := a.database.QueryRowContext(
		ctx, `SELECT content, saved_at FROM boards WHERE id = ?`, id,
	).Scan(&content, &savedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, time.Time{}, fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		return nil, time.Time{}, fmt.Errorf("failed to query: %w", err)
	}
	return []byte(content), time.Unix(0, savedAt), nil
}

// Run saves source() every interval until ctx is done, then saves one last time.
func (a *Archive) Run(ctx context.Context, id string, interval time.Duration, source func() []byte) {
	t := time.NewTicker(interval)
	defer t.Stop()
	backup := func(ctx context.Context) {
		if changed, err := a.Save(ctx, id, source()); err != nil {
			slog.Error("failed to back up board", "board", id, "err", err)
		} else if changed {
			slog.Info("backed up", "board", id)
		}
	}
	for {
		select {
		case <-t.C:
			backup(ctx)
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			backup(final)
			cancel()
			return
		}
	}
}
