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
	"context"
	"fmt"
	"html"
	"sort"
	"strings"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/format"
	"maunium.net/go/mautrix/id"

	"github.com/beeper/linkedin/pkg/linkedingo"
)

// Mentions are tracked through the HTML parser with sentinel runes so the
// attribute offsets can be computed on the final plain text.
const (
	mentionStart = '\x01'
	mentionSep   = '\x1f'
	mentionEnd   = '\x02'
)

const mentionURNPrefix = "urn:li:fs_miniProfile"

var matrixHTMLParser = &format.HTMLParser{
	TabsToSpaces: 4,
	Newline:      "\n",
	PillConverter: func(displayname, mxid, eventID string, ctx format.Context) string {
		if len(mxid) == 0 || mxid[0] != '@' {
			return displayname
		}
		return fmt.Sprintf("%c%s%c%s%c", mentionStart, mxid, mentionSep, displayname, mentionEnd)
	},
}

// matrixToLinkedIn renders a Matrix message as LinkedIn attributed text.
// Attribute offsets and lengths are measured in unicode code points, matching
// what the messaging API produces.
func (br *LinkedInBridge) matrixToLinkedIn(ctx context.Context, content *event.MessageEventContent) linkedingo.AttributedBody {
	text := content.Body
	if content.Format == event.FormatHTML && content.FormattedBody != "" {
		text = matrixHTMLParser.Parse(content.FormattedBody, format.NewContext(ctx))
	}
	return br.extractMentions(text)
}

func (br *LinkedInBridge) extractMentions(text string) linkedingo.AttributedBody {
	var body strings.Builder
	var attributes []linkedingo.Attribute
	runes := []rune(text)
	offset := 0
	for i := 0; i < len(runes); i++ {
		if runes[i] != mentionStart {
			body.WriteRune(runes[i])
			offset++
			continue
		}
		sep, end := -1, -1
		for j := i + 1; j < len(runes); j++ {
			if runes[j] == mentionSep && sep == -1 {
				sep = j
			} else if runes[j] == mentionEnd {
				end = j
				break
			}
		}
		if sep == -1 || end == -1 {
			body.WriteRune(runes[i])
			offset++
			continue
		}
		mxid := id.UserID(string(runes[i+1 : sep]))
		displayname := runes[sep+1 : end]
		if urn := br.resolveMentionedURN(mxid); !urn.IsEmpty() {
			attributes = append(attributes, linkedingo.NewMentionAttribute(
				offset, len(displayname), urn.WithPrefix(mentionURNPrefix),
			))
		}
		body.WriteString(string(displayname))
		offset += len(displayname)
		i = end
	}
	return linkedingo.AttributedBody{Text: body.String(), Attributes: attributes}
}

func (br *LinkedInBridge) resolveMentionedURN(userID id.UserID) linkedingo.URN {
	if user := br.GetUserByMXIDIfExists(userID); user != nil && !user.LIMemberURN.IsEmpty() {
		return user.LIMemberURN
	}
	if urn, ok := br.ParsePuppetMXID(userID); ok {
		return urn
	}
	return linkedingo.URN{}
}

// linkedInToMatrix converts LinkedIn attributed text to a Matrix message,
// turning mention attributes into matrix.to pills.
func (br *LinkedInBridge) linkedInToMatrix(body linkedingo.AttributedBody) *event.MessageEventContent {
	content := &event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    body.Text,
	}

	mentions := make([]linkedingo.Attribute, 0, len(body.Attributes))
	for _, attr := range body.Attributes {
		if !attr.MentionURN().IsEmpty() {
			mentions = append(mentions, attr)
		}
	}
	if len(mentions) == 0 {
		return content
	}
	sort.Slice(mentions, func(i, j int) bool {
		return mentions[i].Start < mentions[j].Start
	})

	var builder strings.Builder
	runes := []rune(body.Text)
	prev := 0
	for _, attr := range mentions {
		if attr.Start < prev || attr.Start+attr.Length > len(runes) {
			continue
		}
		builder.WriteString(escapeHTMLSegment(string(runes[prev:attr.Start])))
		name := string(runes[attr.Start : attr.Start+attr.Length])
		mxid := br.mentionedURNToMXID(attr.MentionURN())
		if mxid == "" {
			builder.WriteString(escapeHTMLSegment(name))
		} else {
			if !strings.HasPrefix(name, "@") {
				name = "@" + name
			}
			builder.WriteString(fmt.Sprintf(
				`<a href="https://matrix.to/#/%s">%s</a>`,
				mxid, html.EscapeString(name),
			))
		}
		prev = attr.Start + attr.Length
	}
	builder.WriteString(escapeHTMLSegment(string(runes[prev:])))

	content.Format = event.FormatHTML
	content.FormattedBody = builder.String()
	return content
}

// escapeHTMLSegment escapes a plain-text segment for the formatted body,
// rendering newlines as line breaks.
func escapeHTMLSegment(s string) string {
	return strings.ReplaceAll(html.EscapeString(s), "\n", "<br/>")
}

// mentionedURNToMXID maps a mentioned member to a Matrix user, preferring a
// real bridge user over the ghost.
func (br *LinkedInBridge) mentionedURNToMXID(urn linkedingo.URN) id.UserID {
	if user := br.GetUserByMemberURN(urn); user != nil {
		return user.MXID
	}
	if puppet := br.GetPuppetByURN(urn); puppet != nil {
		return puppet.MXID
	}
	return ""
}

// emotePrefixLen is where the sender's name starts in an emote message body
// ("* Name did the thing").
const emotePrefixLen = 2

// formatEmote renders an m.emote as LinkedIn text, with the sender's name
// mentioned so other clients highlight it.
func formatEmote(senderName string, senderURN linkedingo.URN, body linkedingo.AttributedBody) linkedingo.AttributedBody {
	prefix := fmt.Sprintf("* %s ", senderName)
	shift := len([]rune(prefix))
	attributes := make([]linkedingo.Attribute, 0, len(body.Attributes)+1)
	attributes = append(attributes, linkedingo.NewMentionAttribute(
		emotePrefixLen, len([]rune(senderName)), senderURN.WithPrefix(mentionURNPrefix),
	))
	for _, attr := range body.Attributes {
		attr.Start += shift
		attributes = append(attributes, attr)
	}
	return linkedingo.AttributedBody{Text: prefix + body.Text, Attributes: attributes}
}

// parseEmote detects the emote encoding produced by formatEmote and returns
// the inner body. The sender mention at offset 2 identifies the name length.
func parseEmote(body linkedingo.AttributedBody) (linkedingo.AttributedBody, bool) {
	if !strings.HasPrefix(body.Text, "* ") {
		return body, false
	}
	for _, attr := range body.Attributes {
		if attr.Start != emotePrefixLen || attr.MentionURN().IsEmpty() {
			continue
		}
		runes := []rune(body.Text)
		shift := emotePrefixLen + attr.Length + 1
		if shift > len(runes) {
			continue
		}
		attributes := make([]linkedingo.Attribute, 0, len(body.Attributes))
		for _, other := range body.Attributes {
			if other == attr {
				continue
			}
			other.Start -= shift
			if other.Start >= 0 {
				attributes = append(attributes, other)
			}
		}
		return linkedingo.AttributedBody{Text: string(runes[shift:]), Attributes: attributes}, true
	}
	return body, false
}
