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

package main

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/beeper/linkedin/database"
	"github.com/beeper/linkedin/pkg/linkedingo"
)

func messageURN(i int) linkedingo.URN {
	return linkedingo.NewURN(fmt.Sprintf("urn:li:fsd_message:msg-%d", i))
}

func TestRecentlyHandledRing(t *testing.T) {
	portal := &Portal{}

	first := messageURN(0)
	assert.False(t, portal.isRecentlyHandled(first))

	portal.markHandled(first)
	assert.True(t, portal.isRecentlyHandled(first))

	// Fill the ring; the first entry gets evicted once capacity is exceeded.
	for i := 1; i <= recentlyHandledLength; i++ {
		portal.markHandled(messageURN(i))
	}
	assert.False(t, portal.isRecentlyHandled(first))
	assert.True(t, portal.isRecentlyHandled(messageURN(1)))
	assert.True(t, portal.isRecentlyHandled(messageURN(recentlyHandledLength)))
}

func TestResolveMemberURN(t *testing.T) {
	portal := &Portal{Portal: &database.Portal{
		PortalKey: database.NewPortalKey(
			linkedingo.NewURN("urn:li:fs_conversation:2-ad"),
			linkedingo.NewURN("urn:li:member:12345"),
		),
	}}

	// The sponsored-sender placeholder maps to the thread URN so each ad
	// thread gets a distinct ghost.
	resolved := portal.resolveMemberURN(linkedingo.NewURN("UNKNOWN"))
	assert.Equal(t, "2-ad", resolved.IDStr())

	member := linkedingo.NewURN("urn:li:fs_miniProfile:abc")
	assert.True(t, portal.resolveMemberURN(member).Equals(member))
}

func TestIsSponsoredConversation(t *testing.T) {
	sponsored := &linkedingo.Conversation{
		Participants: []linkedingo.Participant{{
			MessagingMember: &linkedingo.MessagingMember{
				MiniProfile: &linkedingo.MiniProfile{EntityURN: linkedingo.NewURN("UNKNOWN")},
			},
		}},
	}
	assert.True(t, isSponsoredConversation(sponsored))

	regular := &linkedingo.Conversation{
		Participants: []linkedingo.Participant{{
			MessagingMember: &linkedingo.MessagingMember{
				MiniProfile: &linkedingo.MiniProfile{EntityURN: linkedingo.NewURN("urn:li:fs_miniProfile:abc")},
			},
		}},
	}
	assert.False(t, isSponsoredConversation(regular))
	assert.False(t, isSponsoredConversation(nil))
	assert.False(t, isSponsoredConversation(&linkedingo.Conversation{}))
}

func TestPortalMapKey(t *testing.T) {
	key := database.NewPortalKey(
		linkedingo.NewURN("urn:li:fsd_conversation:2-abc=="),
		linkedingo.NewURN("urn:li:member:12345"),
	)
	mapKey := newPortalMapKey(key)
	assert.Equal(t, "2-abc==", mapKey.ThreadID)
	assert.Equal(t, "12345", mapKey.ReceiverID)

	// Equal portal keys must produce equal map keys even when the URN
	// prefixes differ.
	other := database.NewPortalKey(
		linkedingo.NewURN("urn:li:msg_conversation:2-abc=="),
		linkedingo.NewURN("urn:li:fs_miniProfile:12345"),
	)
	assert.Equal(t, mapKey, newPortalMapKey(other))
}
