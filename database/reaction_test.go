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
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/util/dbutil"
	"maunium.net/go/mautrix/id"

	"github.com/beeper/linkedin/pkg/linkedingo"
)

func newTestDatabase(t *testing.T) *Database {
	rawDB, err := dbutil.NewWithDialect(":memory:", "sqlite3")
	require.NoError(t, err)
	rawDB.Log = dbutil.ZeroLogger(zerolog.Nop())
	db := New(rawDB)
	require.NoError(t, db.Upgrade(context.Background()))
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func insertTestReaction(t *testing.T, db *Database, room id.RoomID, messageURN, receiver, sender linkedingo.URN, emoji string) *Reaction {
	reaction := db.Reaction.New()
	reaction.MXID = id.EventID(fmt.Sprintf("$%s-%s-%s", messageURN.IDStr(), sender.IDStr(), emoji))
	reaction.Room = room
	reaction.MessageURN = messageURN
	reaction.ReceiverURN = receiver
	reaction.SenderURN = sender
	reaction.Emoji = emoji
	require.NoError(t, reaction.Insert(context.Background()))
	return reaction
}

func TestReactionQuery_DeleteAllForMessage(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	room := id.RoomID("!room:example.com")
	receiver := linkedingo.NewURN("urn:li:member:1")
	recalled := linkedingo.NewURN("urn:li:fsd_message:2-msg1")
	other := linkedingo.NewURN("urn:li:fsd_message:2-msg2")

	insertTestReaction(t, db, room, recalled, receiver, linkedingo.NewURN("urn:li:member:2"), "👍")
	insertTestReaction(t, db, room, recalled, receiver, linkedingo.NewURN("urn:li:member:3"), "🎉")
	insertTestReaction(t, db, room, other, receiver, linkedingo.NewURN("urn:li:member:2"), "👍")

	reactions, err := db.Reaction.GetAllForMessage(ctx, recalled, receiver)
	require.NoError(t, err)
	assert.Len(t, reactions, 2)

	require.NoError(t, db.Reaction.DeleteAllForMessage(ctx, recalled, receiver))

	reactions, err = db.Reaction.GetAllForMessage(ctx, recalled, receiver)
	require.NoError(t, err)
	assert.Empty(t, reactions)

	// Reactions to other messages stay put.
	reactions, err = db.Reaction.GetAllForMessage(ctx, other, receiver)
	require.NoError(t, err)
	assert.Len(t, reactions, 1)
}

func TestReactionQuery_DeleteAllInRoom(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	room := id.RoomID("!room:example.com")
	otherRoom := id.RoomID("!other:example.com")
	receiver := linkedingo.NewURN("urn:li:member:1")
	messageURN := linkedingo.NewURN("urn:li:fsd_message:2-msg1")

	insertTestReaction(t, db, room, messageURN, receiver, linkedingo.NewURN("urn:li:member:2"), "👍")
	insertTestReaction(t, db, otherRoom, linkedingo.NewURN("urn:li:fsd_message:3-msg1"), receiver, linkedingo.NewURN("urn:li:member:2"), "👍")

	require.NoError(t, db.Reaction.DeleteAllInRoom(ctx, room))

	reactions, err := db.Reaction.GetAllForMessage(ctx, messageURN, receiver)
	require.NoError(t, err)
	assert.Empty(t, reactions)

	remaining, err := db.Reaction.GetAllForMessage(ctx, linkedingo.NewURN("urn:li:fsd_message:3-msg1"), receiver)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}
