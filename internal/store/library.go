package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"xtplay/internal/media"
)

// ToggleFavorite adds the item to the user's favorites, or removes it if
// already there. It reports whether the item is a favorite afterwards.
func (s *Store) ToggleFavorite(ctx context.Context, u User, it media.Item) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM favorites
		WHERE username = ? AND portal = ? AND type = ? AND item_id = ?`,
		u.Username, u.Portal, it.Type.String(), it.ID)
	if err != nil {
		return false, fmt.Errorf("toggling favorite: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return false, nil
	}

	args := append([]any{u.Username, u.Portal}, itemArgs(it)...)
	args = append(args, s.stamp())
	_, err = s.db.ExecContext(ctx, `INSERT INTO favorites (username, portal, `+itemColumns+`, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return false, fmt.Errorf("toggling favorite: %w", err)
	}
	return true, nil
}

// IsFavorite reports whether the item is one of the user's favorites.
func (s *Store) IsFavorite(ctx context.Context, u User, it media.Item) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM favorites
		WHERE username = ? AND portal = ? AND type = ? AND item_id = ?`,
		u.Username, u.Portal, it.Type.String(), it.ID).Scan(&n)
	return n > 0, err
}

// Favorites lists the user's favorites, newest first.
func (s *Store) Favorites(ctx context.Context, u User) ([]media.Favorite, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+itemColumns+`, added_at FROM favorites
		WHERE username = ? AND portal = ? ORDER BY added_at DESC`, u.Username, u.Portal)
	if err != nil {
		return nil, fmt.Errorf("listing favorites: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []media.Favorite
	for rows.Next() {
		var f media.Favorite
		var typ string
		if err := rows.Scan(append(scanItem(&f.Item, &typ), &f.AddedAt)...); err != nil {
			return nil, err
		}
		if err := parseType(&f.Item, typ); err != nil {
			continue
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// AddRecent records that the user opened an item. The list keeps the
// MaxRecents newest entries, one per item.
func (s *Store) AddRecent(ctx context.Context, u User, it media.Item) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	args := append([]any{u.Username, u.Portal}, itemArgs(it)...)
	args = append(args, s.stamp())
	_, err = tx.ExecContext(ctx, `INSERT INTO recents (username, portal, `+itemColumns+`, played_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(username, portal, type, item_id) DO UPDATE SET
			name = excluded.name, icon = excluded.icon, rating = excluded.rating,
			category_id = excluded.category_id, extension = excluded.extension,
			played_at = excluded.played_at`, args...)
	if err != nil {
		return fmt.Errorf("recording recent: %w", err)
	}
	if err := trim(ctx, tx, "recents", "played_at", u, MaxRecents); err != nil {
		return err
	}
	return tx.Commit()
}

// Recents lists recently opened items, newest first.
func (s *Store) Recents(ctx context.Context, u User) ([]media.Recent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+itemColumns+`, played_at FROM recents
		WHERE username = ? AND portal = ? ORDER BY played_at DESC`, u.Username, u.Portal)
	if err != nil {
		return nil, fmt.Errorf("listing recents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []media.Recent
	for rows.Next() {
		var r media.Recent
		var typ string
		if err := rows.Scan(append(scanItem(&r.Item, &typ), &r.PlayedAt)...); err != nil {
			return nil, err
		}
		if err := parseType(&r.Item, typ); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ClearRecents forgets every recently opened item of the user.
func (s *Store) ClearRecents(ctx context.Context, u User) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM recents WHERE username = ? AND portal = ?`, u.Username, u.Portal)
	return err
}

// SaveProgress records the playback position of an item. A series keeps
// one record, for the episode watched last. Live items are not tracked.
func (s *Store) SaveProgress(ctx context.Context, u User, p media.Progress) error {
	if p.Item.Type == media.Live {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	args := append([]any{u.Username, u.Portal}, itemArgs(p.Item)...)
	args = append(args, p.Season, p.Episode, p.EpisodeID, p.EpisodeTitle, p.Position, p.Duration, s.stamp())
	_, err = tx.ExecContext(ctx, `INSERT INTO progress (username, portal, `+itemColumns+`,
			season, episode, episode_id, episode_title, position, duration, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(username, portal, type, item_id) DO UPDATE SET
			name = excluded.name, icon = excluded.icon, rating = excluded.rating,
			category_id = excluded.category_id, extension = excluded.extension,
			season = excluded.season, episode = excluded.episode,
			episode_id = excluded.episode_id, episode_title = excluded.episode_title,
			position = excluded.position, duration = excluded.duration,
			updated_at = excluded.updated_at`, args...)
	if err != nil {
		return fmt.Errorf("saving progress: %w", err)
	}
	if err := trim(ctx, tx, "progress", "updated_at", u, MaxProgress); err != nil {
		return err
	}
	return tx.Commit()
}

// Progress returns the progress record of an item, or ErrNotFound.
func (s *Store) Progress(ctx context.Context, u User, it media.Item) (media.Progress, error) {
	rows, err := s.queryProgress(ctx, `WHERE username = ? AND portal = ? AND type = ? AND item_id = ?`,
		u.Username, u.Portal, it.Type.String(), it.ID)
	if err != nil {
		return media.Progress{}, err
	}
	if len(rows) == 0 {
		return media.Progress{}, ErrNotFound
	}
	return rows[0], nil
}

// ContinueWatching lists the ContinueWatchingLimit most recently updated
// progress records.
func (s *Store) ContinueWatching(ctx context.Context, u User) ([]media.Progress, error) {
	return s.queryProgress(ctx, fmt.Sprintf(`WHERE username = ? AND portal = ?
		ORDER BY updated_at DESC LIMIT %d`, ContinueWatchingLimit), u.Username, u.Portal)
}

// RemoveProgress forgets the progress of an item.
func (s *Store) RemoveProgress(ctx context.Context, u User, it media.Item) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM progress
		WHERE username = ? AND portal = ? AND type = ? AND item_id = ?`,
		u.Username, u.Portal, it.Type.String(), it.ID)
	return err
}

func (s *Store) queryProgress(ctx context.Context, where string, args ...any) ([]media.Progress, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+itemColumns+`,
		season, episode, episode_id, episode_title, position, duration, updated_at
		FROM progress `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("reading progress: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []media.Progress
	for rows.Next() {
		var p media.Progress
		var typ string
		dest := append(scanItem(&p.Item, &typ),
			&p.Season, &p.Episode, &p.EpisodeID, &p.EpisodeTitle, &p.Position, &p.Duration, &p.UpdatedAt)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		if err := parseType(&p.Item, typ); err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// trim keeps the newest limit rows of a per-user table.
func trim(ctx context.Context, ex execer, table, orderBy string, u User, limit int) error {
	q := fmt.Sprintf(`DELETE FROM %[1]s WHERE username = ? AND portal = ? AND rowid NOT IN (
		SELECT rowid FROM %[1]s WHERE username = ? AND portal = ? ORDER BY %[2]s DESC LIMIT %[3]d)`,
		table, orderBy, limit)
	if _, err := ex.ExecContext(ctx, q, u.Username, u.Portal, u.Username, u.Portal); err != nil {
		return fmt.Errorf("trimming %s: %w", table, err)
	}
	return nil
}

// FormatForDisplay creates display strings for fzf selection from progress
// records.
func FormatForDisplay(records []media.Progress) []string {
	items := make([]string, 0, len(records))
	for _, p := range records {
		display := p.Item.Name
		if p.Item.Type == media.Series && p.Season > 0 {
			display = fmt.Sprintf("%s S%02dE%02d", display, p.Season, p.Episode)
			if p.EpisodeTitle != "" {
				display += " " + p.EpisodeTitle
			}
		}
		if p.Position > 0 {
			display += fmt.Sprintf(" [%.0f%%]", p.Percent())
		}
		items = append(items, strings.TrimSpace(display))
	}
	return items
}
