package rls

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strconv"

	"github.com/mosaicdocs/mosaic/pkg/identity"
)

// Acquire pins a connection from the pool and sets the enforcement session
// variables from the principal on ctx. Every statement against a secured
// table must run on a connection obtained here, so the row-level policies
// always see the caller's identity and required mask.
//
// The release function resets both variables to the empty string before the
// connection returns to the pool, so a later borrower can never inherit a
// previous caller's access.
func Acquire(ctx context.Context, db *sql.DB) (*sql.Conn, func(), error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to acquire connection: %w", err)
	}

	p := identity.FromContext(ctx)
	userID := ""
	mask := ""
	if p.Authenticated() {
		userID = p.UserID
		mask = strconv.Itoa(int(p.RequiredMask))
	}

	if err := setSession(ctx, conn, userID, mask); err != nil {
		conn.Close()
		return nil, nil, err
	}

	release := func() {
		// Reset with a background context: the request context may already
		// be done, and a stale identity on a pooled connection is worse
		// than a slow close.
		if err := setSession(context.Background(), conn, "", ""); err != nil {
			// Could not clear the identity: mark the connection bad so the
			// pool discards it instead of handing it to the next caller.
			conn.Raw(func(interface{}) error { return driver.ErrBadConn })
		}
		conn.Close()
	}
	return conn, release, nil
}

func setSession(ctx context.Context, conn *sql.Conn, userID, mask string) error {
	_, err := conn.ExecContext(ctx,
		"SELECT set_config($1, $2, false), set_config($3, $4, false)",
		CurrentUserSetting, userID, RequiredMaskSetting, mask)
	if err != nil {
		return fmt.Errorf("failed to set session variables: %w", err)
	}
	return nil
}
