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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"maunium.net/go/mautrix/id"

	"github.com/beeper/linkedin/database"
	"github.com/beeper/linkedin/pkg/linkedingo"
)

func TestFormatEmote(t *testing.T) {
	senderURN := linkedingo.NewURN("urn:li:member:12345")
	body := linkedingo.AttributedBody{Text: "waves at everyone"}

	emote := formatEmote("Jane Doe", senderURN, body)

	assert.Equal(t, "* Jane Doe waves at everyone", emote.Text)
	require.Len(t, emote.Attributes, 1)
	assert.Equal(t, 2, emote.Attributes[0].Start)
	assert.Equal(t, len([]rune("Jane Doe")), emote.Attributes[0].Length)
	assert.Equal(t, "12345", emote.Attributes[0].MentionURN().IDStr())
}

func TestFormatEmote_ShiftsExistingMentions(t *testing.T) {
	senderURN := linkedingo.NewURN("urn:li:member:1")
	mentionedURN := linkedingo.NewURN("urn:li:member:2")
	body := linkedingo.AttributedBody{
		Text: "pokes Bob",
		Attributes: []linkedingo.Attribute{
			linkedingo.NewMentionAttribute(6, 3, mentionedURN),
		},
	}

	emote := formatEmote("Alice", senderURN, body)

	require.Len(t, emote.Attributes, 2)
	shifted := emote.Attributes[1]
	// "* Alice " is 8 runes, so the Bob mention moves from 6 to 14.
	assert.Equal(t, 14, shifted.Start)
	assert.Equal(t, 3, shifted.Length)
	assert.Equal(t, "Bob", string([]rune(emote.Text)[shifted.Start:shifted.Start+shifted.Length]))
}

func TestParseEmote_RoundTrip(t *testing.T) {
	senderURN := linkedingo.NewURN("urn:li:member:1")
	mentionedURN := linkedingo.NewURN("urn:li:member:2")
	body := linkedingo.AttributedBody{
		Text: "pokes Bob",
		Attributes: []linkedingo.Attribute{
			linkedingo.NewMentionAttribute(6, 3, mentionedURN),
		},
	}

	emote := formatEmote("Alice", senderURN, body)
	parsed, ok := parseEmote(emote)

	require.True(t, ok)
	assert.Equal(t, body.Text, parsed.Text)
	require.Len(t, parsed.Attributes, 1)
	assert.Equal(t, 6, parsed.Attributes[0].Start)
	assert.Equal(t, 3, parsed.Attributes[0].Length)
	assert.Equal(t, "2", parsed.Attributes[0].MentionURN().IDStr())
}

func TestParseEmote_PlainMessage(t *testing.T) {
	body := linkedingo.AttributedBody{Text: "hello there"}
	parsed, ok := parseEmote(body)
	assert.False(t, ok)
	assert.Equal(t, body, parsed)
}

func TestParseEmote_AsteriskWithoutMention(t *testing.T) {
	// A message that merely starts with "* " is not an emote.
	body := linkedingo.AttributedBody{Text: "* bullet point"}
	parsed, ok := parseEmote(body)
	assert.False(t, ok)
	assert.Equal(t, body.Text, parsed.Text)
}

// newTestBridgeWithUser pre-seeds the user cache so mention resolution never
// touches the database.
func newTestBridgeWithUser(urn linkedingo.URN, mxid id.UserID) *LinkedInBridge {
	return &LinkedInBridge{
		usersByMemberURN: map[string]*User{
			urn.IDStr(): {User: &database.User{MXID: mxid, LIMemberURN: urn}},
		},
	}
}

func TestLinkedInToMatrix_NewlinesAndMentionPrefix(t *testing.T) {
	memberURN := linkedingo.NewURN("urn:li:member:42")
	br := newTestBridgeWithUser(memberURN, "@alice:example.com")

	body := linkedingo.AttributedBody{
		Text: "hello\nAlice Smith\nbye",
		Attributes: []linkedingo.Attribute{
			linkedingo.NewMentionAttribute(6, 11, memberURN),
		},
	}

	content := br.linkedInToMatrix(body)

	// The plain body keeps raw newlines and the verbatim name.
	assert.Equal(t, body.Text, content.Body)
	assert.Equal(t,
		`hello<br/><a href="https://matrix.to/#/@alice:example.com">@Alice Smith</a><br/>bye`,
		content.FormattedBody)
}

func TestLinkedInToMatrix_MentionAlreadyPrefixed(t *testing.T) {
	memberURN := linkedingo.NewURN("urn:li:member:42")
	br := newTestBridgeWithUser(memberURN, "@bob:example.com")

	body := linkedingo.AttributedBody{
		Text: "hi @Bob",
		Attributes: []linkedingo.Attribute{
			linkedingo.NewMentionAttribute(3, 4, memberURN),
		},
	}

	content := br.linkedInToMatrix(body)
	assert.Equal(t,
		`hi <a href="https://matrix.to/#/@bob:example.com">@Bob</a>`,
		content.FormattedBody)
}

func TestExtractMentions_NoPills(t *testing.T) {
	br := &LinkedInBridge{}
	body := br.extractMentions("just a normal message")
	assert.Equal(t, "just a normal message", body.Text)
	assert.Empty(t, body.Attributes)
}
