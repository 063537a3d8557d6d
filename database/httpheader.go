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

// HTTPHeaderQuery stores headers captured from the user's browser session so
// requests replay them alongside the cookies.
type HTTPHeaderQuery struct {
	db *dbutil.Database
}

const (
	getHTTPHeadersQuery   = `SELECT name, value FROM http_header WHERE mxid=$1`
	upsertHTTPHeaderQuery = `
		INSERT INTO http_header (mxid, name, value) VALUES ($1, $2, $3)
		ON CONFLICT (mxid, name) DO UPDATE SET value=excluded.value
	`
	deleteHTTPHeadersQuery = `DELETE FROM http_header WHERE mxid=$1`
)

func (hq *HTTPHeaderQuery) GetAll(ctx context.Context, mxid id.UserID) (map[string]string, error) {
	return scanNameValueRows(hq.db, ctx, getHTTPHeadersQuery, mxid)
}

func (hq *HTTPHeaderQuery) Put(ctx context.Context, mxid id.UserID, headers map[string]string) error {
	return hq.db.DoTxn(ctx, nil, func(ctx context.Context) error {
		if _, err := hq.db.Exec(ctx, deleteHTTPHeadersQuery, mxid); err != nil {
			return err
		}
		for name, value := range headers {
			if _, err := hq.db.Exec(ctx, upsertHTTPHeaderQuery, mxid, name, value); err != nil {
				return err
			}
		}
		return nil
	})
}

func (hq *HTTPHeaderQuery) DeleteAll(ctx context.Context, mxid id.UserID) error {
	_, err := hq.db.Exec(ctx, deleteHTTPHeadersQuery, mxid)
	return err
}
