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

	"github.com/beeper/linkedin/pkg/linkedingo"
)

type ReactionQuery struct {
	*dbutil.QueryHelper[*Reaction]
}

func newReaction(qh *dbutil.QueryHelper[*Reaction]) *Reaction {
	return &Reaction{qh: qh}
}

const (
	getReactionBaseQuery = `
		SELECT mxid, mx_room, li_message_urn, li_receiver_urn, li_sender_urn, emoji
		FROM reaction
	`
	getReactionByMXIDQuery = getReactionBaseQuery + `
		WHERE mxid=$1 AND mx_room=$2
	`
	getReactionByKeyQuery = getReactionBaseQuery + `
		WHERE li_message_urn=$1 AND li_receiver_urn=$2 AND li_sender_urn=$3 AND emoji=$4
	`
	insertReactionQuery = `
		INSERT INTO reaction (mxid, mx_room, li_message_urn, li_receiver_urn, li_sender_urn, emoji)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	updateReactionQuery = `
		UPDATE reaction SET mxid=$1, mx_room=$2
		WHERE li_message_urn=$3 AND li_receiver_urn=$4 AND li_sender_urn=$5 AND emoji=$6
	`
	deleteReactionQuery = `
		DELETE FROM reaction
		WHERE li_message_urn=$1 AND li_receiver_urn=$2 AND li_sender_urn=$3 AND emoji=$4
	`
	getReactionsForMessageQuery = getReactionBaseQuery + `
		WHERE li_message_urn=$1 AND li_receiver_urn=$2
	`
	deleteReactionsForMessageQuery = `
		DELETE FROM reaction
		WHERE li_message_urn=$1 AND li_receiver_urn=$2
	`
	deleteAllReactionsInRoomQuery = `
		DELETE FROM reaction WHERE mx_room=$1
	`
)

func (rq *ReactionQuery) GetByMXID(ctx context.Context, mxid id.EventID, room id.RoomID) (*Reaction, error) {
	return rq.QueryOne(ctx, getReactionByMXIDQuery, mxid, room)
}

func (rq *ReactionQuery) GetByKey(ctx context.Context, messageURN, receiver, sender linkedingo.URN, emoji string) (*Reaction, error) {
	return rq.QueryOne(ctx, getReactionByKeyQuery, messageURN, receiver, sender, emoji)
}

func (rq *ReactionQuery) GetAllForMessage(ctx context.Context, messageURN, receiver linkedingo.URN) ([]*Reaction, error) {
	return rq.QueryMany(ctx, getReactionsForMessageQuery, messageURN, receiver)
}

// DeleteAllForMessage drops every reaction row of a message, used when the
// message itself is recalled.
func (rq *ReactionQuery) DeleteAllForMessage(ctx context.Context, messageURN, receiver linkedingo.URN) error {
	return rq.Exec(ctx, deleteReactionsForMessageQuery, messageURN, receiver)
}

func (rq *ReactionQuery) DeleteAllInRoom(ctx context.Context, room id.RoomID) error {
	return rq.Exec(ctx, deleteAllReactionsInRoomQuery, room)
}

type Reaction struct {
	qh *dbutil.QueryHelper[*Reaction]

	MXID id.EventID
	Room id.RoomID

	MessageURN  linkedingo.URN
	ReceiverURN linkedingo.URN
	SenderURN   linkedingo.URN
	Emoji       string
}

func (r *Reaction) Scan(row dbutil.Scannable) (*Reaction, error) {
	return dbutil.ValueOrErr(r, row.Scan(
		&r.MXID,
		&r.Room,
		&r.MessageURN,
		&r.ReceiverURN,
		&r.SenderURN,
		&r.Emoji,
	))
}

func (r *Reaction) Insert(ctx context.Context) error {
	return r.qh.Exec(ctx, insertReactionQuery,
		r.MXID, r.Room, r.MessageURN, r.ReceiverURN, r.SenderURN, r.Emoji)
}

// Update repoints an existing reaction row at a new Matrix event, used when a
// reaction is re-bridged.
func (r *Reaction) Update(ctx context.Context) error {
	return r.qh.Exec(ctx, updateReactionQuery,
		r.MXID, r.Room, r.MessageURN, r.ReceiverURN, r.SenderURN, r.Emoji)
}

func (r *Reaction) Delete(ctx context.Context) error {
	return r.qh.Exec(ctx, deleteReactionQuery,
		r.MessageURN, r.ReceiverURN, r.SenderURN, r.Emoji)
}
