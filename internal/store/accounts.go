package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"xtplay/internal/media"
)

// SaveAccount adds or updates an account. SavedAt is kept on update;
// LastUsed is always refreshed.
func (s *Store) SaveAccount(ctx context.Context, a media.Account) (media.Account, error) {
	now := s.stamp()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (username, portal, password, playlist_name, saved_at, last_used)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(username, portal) DO UPDATE SET
			password = excluded.password,
			playlist_name = excluded.playlist_name,
			last_used = excluded.last_used`,
		a.Username, a.PortalURL, a.Password, a.PlaylistName, now, now)
	if err != nil {
		return media.Account{}, fmt.Errorf("saving account: %w", err)
	}
	return s.Account(ctx, UserOf(a))
}

// Account returns one saved account.
func (s *Store) Account(ctx context.Context, u User) (media.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT username, portal, password, playlist_name, saved_at, last_used
		FROM accounts WHERE username = ? AND portal = ?`, u.Username, u.Portal)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return media.Account{}, ErrNotFound
	}
	return a, err
}

// Accounts lists saved accounts, most recently used first.
func (s *Store) Accounts(ctx context.Context) ([]media.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, portal, password, playlist_name, saved_at, last_used
		FROM accounts ORDER BY last_used DESC, saved_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []media.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// RemoveAccount deletes an account, its per-user records, and the active
// marker when it points at it.
func (s *Store) RemoveAccount(ctx context.Context, u User) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"accounts", "active_account", "favorites", "recents", "progress"} {
		q := fmt.Sprintf("DELETE FROM %s WHERE username = ? AND portal = ?", table)
		if _, err := tx.ExecContext(ctx, q, u.Username, u.Portal); err != nil {
			return fmt.Errorf("removing account: %w", err)
		}
	}
	return tx.Commit()
}

// TouchAccount marks an account as just used.
func (s *Store) TouchAccount(ctx context.Context, u User) error {
	_, err := s.db.ExecContext(ctx, `UPDATE accounts SET last_used = ? WHERE username = ? AND portal = ?`,
		s.stamp(), u.Username, u.Portal)
	return err
}

// SetActive makes a saved account the active one.
func (s *Store) SetActive(ctx context.Context, u User) error {
	if _, err := s.Account(ctx, u); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO active_account (id, username, portal) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET username = excluded.username, portal = excluded.portal`,
		u.Username, u.Portal)
	if err != nil {
		return fmt.Errorf("setting active account: %w", err)
	}
	return s.TouchAccount(ctx, u)
}

// Active returns the active account, or ErrNotFound.
func (s *Store) Active(ctx context.Context) (media.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT a.username, a.portal, a.password, a.playlist_name, a.saved_at, a.last_used
		FROM active_account x JOIN accounts a ON a.username = x.username AND a.portal = x.portal
		WHERE x.id = 1`)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return media.Account{}, ErrNotFound
	}
	return a, err
}

// ClearActive logs out without forgetting the account.
func (s *Store) ClearActive(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM active_account`)
	return err
}

func scanAccount(row scanner) (media.Account, error) {
	var a media.Account
	err := row.Scan(&a.Username, &a.PortalURL, &a.Password, &a.PlaylistName, &a.SavedAt, &a.LastUsed)
	return a, err
}
