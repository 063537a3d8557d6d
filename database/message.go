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
	"time"

	"go.mau.fi/util/dbutil"
	"maunium.net/go/mautrix/id"

	"github.com/beeper/linkedin/pkg/linkedingo"
)

type MessageQuery struct {
	*dbutil.QueryHelper[*Message]
}

func newMessage(qh *dbutil.QueryHelper[*Message]) *Message {
	return &Message{qh: qh}
}

const (
	getMessageBaseQuery = `
		SELECT mxid, mx_room, li_message_urn, li_thread_urn, li_sender_urn, li_receiver_urn,
		       "index", timestamp
		FROM message
	`
	getMessagePartsByURNQuery = getMessageBaseQuery + `
		WHERE li_message_urn=$1 AND li_receiver_urn=$2 ORDER BY "index" ASC
	`
	getMessageByURNQuery = getMessageBaseQuery + `
		WHERE li_message_urn=$1 AND li_receiver_urn=$2 AND "index"=$3
	`
	getLastMessagePartByURNQuery = getMessageBaseQuery + `
		WHERE li_message_urn=$1 AND li_receiver_urn=$2 ORDER BY "index" DESC LIMIT 1
	`
	getMessageByMXIDQuery = getMessageBaseQuery + `
		WHERE mxid=$1 AND mx_room=$2
	`
	getLastMessageInThreadQuery = getMessageBaseQuery + `
		WHERE li_thread_urn=$1 AND li_receiver_urn=$2
		ORDER BY timestamp DESC, "index" DESC LIMIT 1
	`
	insertMessageQuery = `
		INSERT INTO message (mxid, mx_room, li_message_urn, li_thread_urn, li_sender_urn,
		                     li_receiver_urn, "index", timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	deleteMessageQuery = `
		DELETE FROM message WHERE li_message_urn=$1 AND li_receiver_urn=$2 AND "index"=$3
	`
	deleteAllMessagesInRoomQuery = `
		DELETE FROM message WHERE mx_room=$1
	`
)

// GetAllParts returns every Matrix event bridged from one LinkedIn message,
// ordered by part index.
func (mq *MessageQuery) GetAllParts(ctx context.Context, messageURN, receiver linkedingo.URN) ([]*Message, error) {
	return mq.QueryMany(ctx, getMessagePartsByURNQuery, messageURN, receiver)
}

func (mq *MessageQuery) GetByURN(ctx context.Context, messageURN, receiver linkedingo.URN, index int) (*Message, error) {
	return mq.QueryOne(ctx, getMessageByURNQuery, messageURN, receiver, index)
}

func (mq *MessageQuery) GetLastPartByURN(ctx context.Context, messageURN, receiver linkedingo.URN) (*Message, error) {
	return mq.QueryOne(ctx, getLastMessagePartByURNQuery, messageURN, receiver)
}

func (mq *MessageQuery) GetByMXID(ctx context.Context, mxid id.EventID, room id.RoomID) (*Message, error) {
	return mq.QueryOne(ctx, getMessageByMXIDQuery, mxid, room)
}

// GetLastInThread returns the newest bridged message in a portal, used as the
// backfill watermark.
func (mq *MessageQuery) GetLastInThread(ctx context.Context, threadURN, receiver linkedingo.URN) (*Message, error) {
	return mq.QueryOne(ctx, getLastMessageInThreadQuery, threadURN, receiver)
}

func (mq *MessageQuery) DeleteAllInRoom(ctx context.Context, room id.RoomID) error {
	return mq.Exec(ctx, deleteAllMessagesInRoomQuery, room)
}

// BulkCreate stores one row per Matrix event created from a single LinkedIn
// message, indexed in event order.
func (mq *MessageQuery) BulkCreate(
	ctx context.Context,
	messageURN, threadURN, senderURN, receiver linkedingo.URN,
	timestamp time.Time,
	room id.RoomID,
	eventIDs []id.EventID,
) error {
	if len(eventIDs) == 0 {
		return nil
	}
	return mq.GetDB().DoTxn(ctx, nil, func(ctx context.Context) error {
		for index, mxid := range eventIDs {
			msg := &Message{
				MXID:        mxid,
				Room:        room,
				MessageURN:  messageURN,
				ThreadURN:   threadURN,
				SenderURN:   senderURN,
				ReceiverURN: receiver,
				Index:       index,
				Timestamp:   timestamp,
			}
			if err := mq.Exec(ctx, insertMessageQuery, msg.sqlVariables()...); err != nil {
				return err
			}
		}
		return nil
	})
}

type Message struct {
	qh *dbutil.QueryHelper[*Message]

	MXID id.EventID
	Room id.RoomID

	MessageURN  linkedingo.URN
	ThreadURN   linkedingo.URN
	SenderURN   linkedingo.URN
	ReceiverURN linkedingo.URN
	Index       int
	Timestamp   time.Time
}

func (m *Message) Scan(row dbutil.Scannable) (*Message, error) {
	var timestamp int64
	err := row.Scan(
		&m.MXID,
		&m.Room,
		&m.MessageURN,
		&m.ThreadURN,
		&m.SenderURN,
		&m.ReceiverURN,
		&m.Index,
		&timestamp,
	)
	if err != nil {
		return nil, err
	}
	m.Timestamp = time.UnixMilli(timestamp)
	return m, nil
}

func (m *Message) sqlVariables() []any {
	return []any{
		m.MXID,
		m.Room,
		m.MessageURN,
		m.ThreadURN,
		m.SenderURN,
		m.ReceiverURN,
		m.Index,
		m.Timestamp.UnixMilli(),
	}
}

func (m *Message) Insert(ctx context.Context) error {
	return m.qh.Exec(ctx, insertMessageQuery, m.sqlVariables()...)
}

func (m *Message) Delete(ctx context.Context) error {
	return m.qh.Exec(ctx, deleteMessageQuery, m.MessageURN, m.ReceiverURN, m.Index)
}
