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
	"database/sql"

	"go.mau.fi/util/dbutil"
	"maunium.net/go/mautrix/id"

	"github.com/beeper/linkedin/pkg/linkedingo"
)

type UserQuery struct {
	*dbutil.QueryHelper[*User]
}

func newUser(qh *dbutil.QueryHelper[*User]) *User {
	return &User{qh: qh}
}

const (
	getUserBaseQuery = `
		SELECT mxid, li_member_urn, notice_room, space_mxid FROM "user"
	`
	getUserByMXIDQuery      = getUserBaseQuery + `WHERE mxid=$1`
	getUserByMemberURNQuery = getUserBaseQuery + `WHERE li_member_urn=$1`
	getAllLoggedInUsersQuery = getUserBaseQuery + `
		WHERE li_member_urn IS NOT NULL AND li_member_urn <> ''
	`
	insertUserQuery = `
		INSERT INTO "user" (mxid, li_member_urn, notice_room, space_mxid)
		VALUES ($1, $2, $3, $4)
	`
	updateUserQuery = `
		UPDATE "user" SET li_member_urn=$2, notice_room=$3, space_mxid=$4 WHERE mxid=$1
	`
)

func (uq *UserQuery) GetByMXID(ctx context.Context, mxid id.UserID) (*User, error) {
	return uq.QueryOne(ctx, getUserByMXIDQuery, mxid)
}

func (uq *UserQuery) GetByMemberURN(ctx context.Context, urn linkedingo.URN) (*User, error) {
	return uq.QueryOne(ctx, getUserByMemberURNQuery, urn)
}

func (uq *UserQuery) GetAllLoggedIn(ctx context.Context) ([]*User, error) {
	return uq.QueryMany(ctx, getAllLoggedInUsersQuery)
}

type User struct {
	qh *dbutil.QueryHelper[*User]

	MXID        id.UserID
	LIMemberURN linkedingo.URN
	NoticeRoom  id.RoomID
	SpaceRoom   id.RoomID
}

func (u *User) Scan(row dbutil.Scannable) (*User, error) {
	var memberURN, noticeRoom, spaceRoom sql.NullString
	err := row.Scan(&u.MXID, &memberURN, &noticeRoom, &spaceRoom)
	if err != nil {
		return nil, err
	}
	u.LIMemberURN = linkedingo.NewURN(memberURN.String)
	u.NoticeRoom = id.RoomID(noticeRoom.String)
	u.SpaceRoom = id.RoomID(spaceRoom.String)
	return u, nil
}

func (u *User) sqlVariables() []any {
	return []any{u.MXID, u.LIMemberURN, dbutil.StrPtr(string(u.NoticeRoom)), dbutil.StrPtr(string(u.SpaceRoom))}
}

func (u *User) Insert(ctx context.Context) error {
	return u.qh.Exec(ctx, insertUserQuery, u.sqlVariables()...)
}

func (u *User) Update(ctx context.Context) error {
	return u.qh.Exec(ctx, updateUserQuery, u.sqlVariables()...)
}
