package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shiftboard/shiftauth"
)

const accountColumns = `id, email, password_hash, display_name, role, email_verified_at,
	failed_login_count, locked_until, last_login_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*shiftauth.Account, error) {
	var (
		a                           shiftauth.Account
		role                        string
		verified, locked, lastLogin dbTime
		created, updated            dbTime
	)
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.DisplayName, &role, &verified,
		&a.FailedLoginCount, &locked, &lastLogin, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shiftauth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.Role = shiftauth.Role(role)
	a.EmailVerifiedAt = verified.ptr()
	a.LockedUntil = locked.ptr()
	a.LastLoginAt = lastLogin.ptr()
	a.CreatedAt = created.Time
	a.UpdatedAt = updated.Time
	return &a, nil
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*shiftauth.Account, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.q(`SELECT `+accountColumns+` FROM accounts WHERE email = ?`), email)
	return scanAccount(row)
}

func (s *Store) FindByID(ctx context.Context, id string) (*shiftauth.Account, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.q(`SELECT `+accountColumns+` FROM accounts WHERE id = ?`), id)
	return scanAccount(row)
}

// CreateAccount inserts the account, its profile stub and the verification
// token in one transaction.
func (s *Store) CreateAccount(ctx context.Context, in shiftauth.NewAccount, verification shiftauth.OneTimeToken) (*shiftauth.Account, error) {
	d := s.dialect
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, d.q(`INSERT INTO accounts
			(id, email, password_hash, display_name, role, failed_login_count, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, 0, ?, ?)`),
			in.ID, in.Email, in.PasswordHash, in.DisplayName, string(in.Role), d.ts(in.CreatedAt), d.ts(in.CreatedAt))
		if err != nil {
			if isUniqueViolation(err) {
				return shiftauth.ErrConflict
			}
			return err
		}

		if in.Role == shiftauth.RoleBusinessOwner {
			_, err = tx.ExecContext(ctx, d.q(`INSERT INTO business_profiles (account_id, business_name, created_at) VALUES (?, ?, ?)`),
				in.ID, in.BusinessName, d.ts(in.CreatedAt))
		} else {
			_, err = tx.ExecContext(ctx, d.q(`INSERT INTO worker_profiles (account_id, phone, created_at) VALUES (?, ?, ?)`),
				in.ID, in.Phone, d.ts(in.CreatedAt))
		}
		if err != nil {
			return err
		}

		return insertOneTimeToken(ctx, tx, d, verification)
	})
	if err != nil {
		return nil, err
	}

	created := in.CreatedAt.UTC().Truncate(time.Microsecond)
	return &shiftauth.Account{
		ID:           in.ID,
		Email:        in.Email,
		PasswordHash: in.PasswordHash,
		DisplayName:  in.DisplayName,
		Role:         in.Role,
		CreatedAt:    created,
		UpdatedAt:    created,
	}, nil
}

// RecordLoginFailure increments the counter and sets the lock in a single
// statement.
func (s *Store) RecordLoginFailure(ctx context.Context, id string, threshold int, lockUntil time.Time) (shiftauth.LoginFailure, error) {
	d := s.dialect
	row := s.db.QueryRowContext(ctx, d.q(`UPDATE accounts SET
			failed_login_count = failed_login_count + 1,
			locked_until = CASE WHEN failed_login_count + 1 >= ? THEN ? ELSE locked_until END
		WHERE id = ?
		RETURNING failed_login_count, locked_until`),
		threshold, d.ts(lockUntil), id)

	var (
		out    shiftauth.LoginFailure
		locked dbTime
	)
	if err := row.Scan(&out.Count, &locked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return shiftauth.LoginFailure{}, shiftauth.ErrNotFound
		}
		return shiftauth.LoginFailure{}, err
	}
	out.LockedUntil = locked.ptr()
	return out, nil
}

func (s *Store) RecordLoginSuccess(ctx context.Context, id string, at time.Time) error {
	d := s.dialect
	return s.execOne(ctx, d.q(`UPDATE accounts SET failed_login_count = 0, locked_until = NULL, last_login_at = ? WHERE id = ?`),
		d.ts(at), id)
}

// MarkEmailVerified keeps the first verification time.
func (s *Store) MarkEmailVerified(ctx context.Context, id string, at time.Time) error {
	d := s.dialect
	return s.execOne(ctx, d.q(`UPDATE accounts SET email_verified_at = COALESCE(email_verified_at, ?), updated_at = ? WHERE id = ?`),
		d.ts(at), d.ts(at), id)
}

// CompletePasswordReset consumes the reset token, stores the new hash and
// revokes every refresh token of the account in one transaction.
func (s *Store) CompletePasswordReset(ctx context.Context, tokenHash, hash string, at time.Time) (string, int64, error) {
	d := s.dialect
	var (
		accountID string
		revoked   int64
	)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		tok, err := consumeOneTimeToken(ctx, tx, d, shiftauth.TokenKindPasswordReset, tokenHash, at)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, d.q(`UPDATE accounts SET password_hash = ?, failed_login_count = 0, locked_until = NULL, updated_at = ? WHERE id = ?`),
			hash, d.ts(at), tok.AccountID)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return shiftauth.ErrNotFound
		}
		res, err = tx.ExecContext(ctx, d.q(`UPDATE refresh_tokens SET revoked_at = ? WHERE account_id = ? AND revoked_at IS NULL`),
			d.ts(at), tok.AccountID)
		if err != nil {
			return err
		}
		if revoked, err = res.RowsAffected(); err != nil {
			return err
		}
		accountID = tok.AccountID
		return nil
	})
	if err != nil {
		return "", 0, err
	}
	return accountID, revoked, nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return s.execOne(ctx, s.dialect.q(`UPDATE accounts SET password_hash = ? WHERE id = ?`), hash, id)
}

// execOne runs an update that must match a row.
func (s *Store) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return shiftauth.ErrNotFound
	}
	return nil
}
