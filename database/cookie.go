// linkedin-matrix - A Matrix-LinkedIn puppeting bridge.
// Copyright (C) 2024 Sumner Evans
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package database

import (
	"context"

	"go.mau.fi/util/dbutil"
	"maunium.net/go/mautrix/id"
)

// CookieQuery stores the LinkedIn session cookies of each bridge user.
type CookieQuery struct {
	db *dbutil.Database
}

const (
	getCookiesQuery   = `SELECT name, value FROM cookie WHERE mxid=$1`
	upsertCookieQuery = `
		INSERT INTO cookie (mxid, name, value) VALUES ($1, $2, $3)
		ON CONFLICT (mxid, name) DO UPDATE SET value=excluded.value
	`
	deleteCookiesQuery = `DELETE FROM cookie WHERE mxid=$1`
)

func (cq *CookieQuery) GetAll(ctx context.Context, mxid id.UserID) (map[string]string, error) {
	return scanNameValueRows(cq.db, ctx, getCookiesQuery, mxid)
}

// Put replaces the user's stored cookies with the given set. Cookies the
// server dropped stay deleted.
func (cq *CookieQuery) Put(ctx context.Context, mxid id.UserID, cookies map[string]string) error {
	return cq.db.DoTxn(ctx, nil, func(ctx context.Context) error {
		if _, err := cq.db.Exec(ctx, deleteCookiesQuery, mxid); err != nil {
			return err
		}
		for name, value := range cookies {
			if _, err := cq.db.Exec(ctx, upsertCookieQuery, mxid, name, value); err != nil {
				return err
			}
		}
		return nil
	})
}

func (cq *CookieQuery) DeleteAll(ctx context.Context, mxid id.UserID) error {
	_, err := cq.db.Exec(ctx, deleteCookiesQuery, mxid)
	return err
}

func scanNameValueRows(db *dbutil.Database, ctx context.Context, query string, mxid id.UserID) (map[string]string, error) {
	rows, err := db.Query(ctx, query, mxid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err = rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		result[name] = value
	}
	return result, rows.Err()
}
