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

type PortalQuery struct {
	*dbutil.QueryHelper[*Portal]
}

func newPortal(qh *dbutil.QueryHelper[*Portal]) *Portal {
	return &Portal{qh: qh}
}

const (
	getPortalBaseQuery = `
		SELECT li_thread_urn, li_receiver_urn, li_is_group_chat, li_other_user_urn,
		       mxid, encrypted, name, photo_id, avatar_url, topic,
		       name_set, avatar_set, topic_set, in_space
		FROM portal
	`
	getPortalByKeyQuery = getPortalBaseQuery + `
		WHERE li_thread_urn=$1 AND li_receiver_urn=$2
	`
	getPortalByMXIDQuery        = getPortalBaseQuery + `WHERE mxid=$1`
	getAllPortalsQuery          = getPortalBaseQuery
	getAllPortalsForUserQuery   = getPortalBaseQuery + `WHERE li_receiver_urn=$1`
	getAllPortalsWithMXIDQuery  = getPortalBaseQuery + `WHERE mxid IS NOT NULL`
	getOtherUserPortalsQuery    = getPortalBaseQuery + `
		WHERE li_other_user_urn=$1 AND li_is_group_chat=false
	`
	insertPortalQuery = `
		INSERT INTO portal (
			li_thread_urn, li_receiver_urn, li_is_group_chat, li_other_user_urn,
			mxid, encrypted, name, photo_id, avatar_url, topic,
			name_set, avatar_set, topic_set, in_space
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	updatePortalQuery = `
		UPDATE portal
		SET li_is_group_chat=$3, li_other_user_urn=$4, mxid=$5, encrypted=$6,
		    name=$7, photo_id=$8, avatar_url=$9, topic=$10,
		    name_set=$11, avatar_set=$12, topic_set=$13, in_space=$14
		WHERE li_thread_urn=$1 AND li_receiver_urn=$2
	`
	deletePortalQuery = `
		DELETE FROM portal WHERE li_thread_urn=$1 AND li_receiver_urn=$2
	`
)

func (pq *PortalQuery) GetByKey(ctx context.Context, key PortalKey) (*Portal, error) {
	return pq.QueryOne(ctx, getPortalByKeyQuery, key.ThreadURN, key.Receiver)
}

func (pq *PortalQuery) GetByMXID(ctx context.Context, mxid id.RoomID) (*Portal, error) {
	return pq.QueryOne(ctx, getPortalByMXIDQuery, mxid)
}

func (pq *PortalQuery) GetAll(ctx context.Context) ([]*Portal, error) {
	return pq.QueryMany(ctx, getAllPortalsQuery)
}

func (pq *PortalQuery) GetAllForUser(ctx context.Context, receiver linkedingo.URN) ([]*Portal, error) {
	return pq.QueryMany(ctx, getAllPortalsForUserQuery, receiver)
}

func (pq *PortalQuery) GetAllWithMXID(ctx context.Context) ([]*Portal, error) {
	return pq.QueryMany(ctx, getAllPortalsWithMXIDQuery)
}

// FindPrivateChatsWith returns every direct chat portal with the given member,
// across all receivers.
func (pq *PortalQuery) FindPrivateChatsWith(ctx context.Context, otherUser linkedingo.URN) ([]*Portal, error) {
	return pq.QueryMany(ctx, getOtherUserPortalsQuery, otherUser)
}

type Portal struct {
	qh *dbutil.QueryHelper[*Portal]

	PortalKey
	LIIsGroupChat  bool
	LIOtherUserURN linkedingo.URN

	MXID      id.RoomID
	Encrypted bool

	Name      string
	PhotoID   string
	AvatarURL id.ContentURI
	Topic     string
	NameSet   bool
	AvatarSet bool
	TopicSet  bool
	InSpace   bool
}

func (p *Portal) Scan(row dbutil.Scannable) (*Portal, error) {
	var mxid, name, photoID, avatarURL, topic sql.NullString
	err := row.Scan(
		&p.ThreadURN,
		&p.Receiver,
		&p.LIIsGroupChat,
		&p.LIOtherUserURN,
		&mxid,
		&p.Encrypted,
		&name,
		&photoID,
		&avatarURL,
		&topic,
		&p.NameSet,
		&p.AvatarSet,
		&p.TopicSet,
		&p.InSpace,
	)
	if err != nil {
		return nil, err
	}
	p.MXID = id.RoomID(mxid.String)
	p.Name = name.String
	p.PhotoID = photoID.String
	p.AvatarURL, _ = id.ParseContentURI(avatarURL.String)
	p.Topic = topic.String
	return p, nil
}

func (p *Portal) sqlVariables() []any {
	return []any{
		p.ThreadURN,
		p.Receiver,
		p.LIIsGroupChat,
		p.LIOtherUserURN,
		dbutil.StrPtr(p.MXID),
		p.Encrypted,
		dbutil.StrPtr(p.Name),
		dbutil.StrPtr(p.PhotoID),
		dbutil.StrPtr(p.AvatarURL.String()),
		dbutil.StrPtr(p.Topic),
		p.NameSet,
		p.AvatarSet,
		p.TopicSet,
		p.InSpace,
	}
}

func (p *Portal) Insert(ctx context.Context) error {
	return p.qh.Exec(ctx, insertPortalQuery, p.sqlVariables()...)
}

func (p *Portal) Update(ctx context.Context) error {
	return p.qh.Exec(ctx, updatePortalQuery, p.sqlVariables()...)
}

func (p *Portal) Delete(ctx context.Context) error {
	return p.qh.Exec(ctx, deletePortalQuery, p.ThreadURN, p.Receiver)
}
