package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shiftboard/shiftauth"
)

const refreshColumns = `family_id, lineage_id, account_id, expires_at, revoked_at, replaced_by, created_at`

func (s *Store) CreateRefreshToken(ctx context.Context, rec shiftauth.RefreshTokenRecord) error {
	return insertRefreshToken(ctx, s.db, s.dialect, rec)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRefreshToken(ctx context.Context, db execer, d dialect, rec shiftauth.RefreshTokenRecord) error {
	_, err := db.ExecContext(ctx, d.q(`INSERT INTO refresh_tokens (`+refreshColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		rec.FamilyID, rec.LineageID, rec.AccountID, d.ts(rec.ExpiresAt), d.tsPtr(rec.RevokedAt), rec.ReplacedBy, d.ts(rec.CreatedAt))
	if isUniqueViolation(err) {
		return shiftauth.ErrConflict
	}
	return err
}

func (s *Store) FindRefreshToken(ctx context.Context, familyID string) (*shiftauth.RefreshTokenRecord, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.q(`SELECT `+refreshColumns+` FROM refresh_tokens WHERE family_id = ?`), familyID)

	var (
		r                         shiftauth.RefreshTokenRecord
		expires, revoked, created dbTime
	)
	err := row.Scan(&r.FamilyID, &r.LineageID, &r.AccountID, &expires, &revoked, &r.ReplacedBy, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shiftauth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.ExpiresAt = expires.Time
	r.RevokedAt = revoked.ptr()
	r.CreatedAt = created.Time
	return &r, nil
}

// RotateRefreshToken revokes the old record only if it is still live, then
// inserts next. A lost race yields ErrStale and no new row.
func (s *Store) RotateRefreshToken(ctx context.Context, oldFamilyID string, next shiftauth.RefreshTokenRecord, at time.Time) error {
	d := s.dialect
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, d.q(`UPDATE refresh_tokens SET revoked_at = ?, replaced_by = ?
			WHERE family_id = ? AND revoked_at IS NULL`),
			d.ts(at), next.FamilyID, oldFamilyID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return shiftauth.ErrStale
		}
		return insertRefreshToken(ctx, tx, d, next)
	})
}

// RevokeRefreshToken is idempotent; only an unknown family is an error.
func (s *Store) RevokeRefreshToken(ctx context.Context, familyID string, at time.Time) error {
	d := s.dialect
	res, err := s.db.ExecContext(ctx, d.q(`UPDATE refresh_tokens SET revoked_at = ? WHERE family_id = ? AND revoked_at IS NULL`),
		d.ts(at), familyID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var one int
	err = s.db.QueryRowContext(ctx, d.q(`SELECT 1 FROM refresh_tokens WHERE family_id = ?`), familyID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return shiftauth.ErrNotFound
	}
	return err
}

func (s *Store) RevokeLineage(ctx context.Context, lineageID string, at time.Time) (int64, error) {
	d := s.dialect
	return s.execCount(ctx, d.q(`UPDATE refresh_tokens SET revoked_at = ? WHERE lineage_id = ? AND revoked_at IS NULL`),
		d.ts(at), lineageID)
}

func (s *Store) RevokeAllRefreshTokens(ctx context.Context, accountID string, at time.Time) (int64, error) {
	d := s.dialect
	return s.execCount(ctx, d.q(`UPDATE refresh_tokens SET revoked_at = ? WHERE account_id = ? AND revoked_at IS NULL`),
		d.ts(at), accountID)
}

/*
====================================
ONE-TIME TOKENS
====================================
*/

func insertOneTimeToken(ctx context.Context, db execer, d dialect, tok shiftauth.OneTimeToken) error {
	_, err := db.ExecContext(ctx, d.q(`INSERT INTO one_time_tokens
		(id, kind, account_id, token_hash, expires_at, used_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		tok.ID, string(tok.Kind), tok.AccountID, tok.TokenHash, d.ts(tok.ExpiresAt), d.tsPtr(tok.UsedAt), d.ts(tok.CreatedAt))
	if isUniqueViolation(err) {
		return shiftauth.ErrConflict
	}
	return err
}

// IssueOneTimeToken replaces every unused token of the same kind for the
// account.
func (s *Store) IssueOneTimeToken(ctx context.Context, tok shiftauth.OneTimeToken) error {
	d := s.dialect
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, d.q(`DELETE FROM one_time_tokens WHERE account_id = ? AND kind = ? AND used_at IS NULL`),
			tok.AccountID, string(tok.Kind)); err != nil {
			return err
		}
		return insertOneTimeToken(ctx, tx, d, tok)
	})
}

// ConsumeOneTimeToken marks the token used with a conditional update, so
// concurrent consumers see exactly one success. A miss is classified by a
// follow-up read.
func (s *Store) ConsumeOneTimeToken(ctx context.Context, kind shiftauth.TokenKind, tokenHash string, at time.Time) (*shiftauth.OneTimeToken, error) {
	return consumeOneTimeToken(ctx, s.db, s.dialect, kind, tokenHash, at)
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func consumeOneTimeToken(ctx context.Context, db rowQuerier, d dialect, kind shiftauth.TokenKind, tokenHash string, at time.Time) (*shiftauth.OneTimeToken, error) {
	row := db.QueryRowContext(ctx, d.q(`UPDATE one_time_tokens SET used_at = ?
		WHERE token_hash = ? AND kind = ? AND used_at IS NULL AND expires_at > ?
		RETURNING id, account_id, expires_at, created_at`),
		d.ts(at), tokenHash, string(kind), d.ts(at))

	tok := shiftauth.OneTimeToken{Kind: kind, TokenHash: tokenHash}
	var expires, created dbTime
	err := row.Scan(&tok.ID, &tok.AccountID, &expires, &created)
	if err == nil {
		used := at.UTC().Truncate(time.Microsecond)
		tok.ExpiresAt = expires.Time
		tok.CreatedAt = created.Time
		tok.UsedAt = &used
		return &tok, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	var used dbTime
	err = db.QueryRowContext(ctx, d.q(`SELECT used_at, expires_at FROM one_time_tokens WHERE token_hash = ? AND kind = ?`),
		tokenHash, string(kind)).Scan(&used, &expires)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, shiftauth.ErrNotFound
	case err != nil:
		return nil, err
	case used.Valid:
		return nil, shiftauth.ErrTokenSpent
	default:
		return nil, shiftauth.ErrTokenLapsed
	}
}

// PurgeExpired removes rows that expired, or were revoked or used, before
// the cutoff.
func (s *Store) PurgeExpired(ctx context.Context, before time.Time) (shiftauth.PurgeResult, error) {
	d := s.dialect
	var (
		out shiftauth.PurgeResult
		err error
	)
	out.RefreshTokens, err = s.execCount(ctx, d.q(`DELETE FROM refresh_tokens WHERE expires_at < ? OR revoked_at < ?`),
		d.ts(before), d.ts(before))
	if err != nil {
		return out, err
	}
	out.OneTimeTokens, err = s.execCount(ctx, d.q(`DELETE FROM one_time_tokens WHERE expires_at < ? OR used_at < ?`),
		d.ts(before), d.ts(before))
	return out, err
}

func (s *Store) execCount(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
