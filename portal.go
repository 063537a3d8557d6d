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
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.mau.fi/util/variationselector"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/appservice"
	"maunium.net/go/mautrix/bridge"
	"maunium.net/go/mautrix/bridge/bridgeconfig"
	"maunium.net/go/mautrix/bridge/status"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/beeper/linkedin/database"
	"github.com/beeper/linkedin/pkg/linkedingo"
)

type portalMatrixMessage struct {
	evt  *event.Event
	user *User
}

type portalLinkedInEvent struct {
	user         *User
	evt          *linkedingo.RealTimeEvent
	conversation *linkedingo.Conversation
}

type Portal struct {
	*database.Portal

	bridge *LinkedInBridge
	zlog   zerolog.Logger

	roomCreateLock sync.Mutex
	encryptLock    sync.Mutex
	backfillLock   sync.Mutex

	matrixMessages chan portalMatrixMessage
	linkedinEvents chan portalLinkedInEvent

	recentlyHandled      [recentlyHandledLength]string
	recentlyHandledLock  sync.Mutex
	recentlyHandledIndex uint8

	currentlyTyping     []id.UserID
	currentlyTypingLock sync.Mutex
}

// recentlyHandledLength is how many message URNs are remembered to deduplicate
// realtime events against backfill and local echo.
const recentlyHandledLength = 100

var (
	_ bridge.Portal                    = (*Portal)(nil)
	_ bridge.ReadReceiptHandlingPortal = (*Portal)(nil)
	_ bridge.TypingPortal              = (*Portal)(nil)
	_ bridge.MembershipHandlingPortal  = (*Portal)(nil)
)

func (br *LinkedInBridge) loadPortal(ctx context.Context, dbPortal *database.Portal, key *database.PortalKey) *Portal {
	if dbPortal == nil {
		if key == nil {
			return nil
		}
		dbPortal = br.DB.Portal.New()
		dbPortal.PortalKey = *key
		err := dbPortal.Insert(ctx)
		if err != nil {
			br.ZLog.Err(err).Str("thread_urn", key.ThreadURN.IDStr()).Msg("Failed to insert new portal")
			return nil
		}
	}

	portal := br.newPortal(dbPortal)
	br.portalsByKey[newPortalMapKey(portal.PortalKey)] = portal
	if portal.MXID != "" {
		br.portalsByMXID[portal.MXID] = portal
	}
	return portal
}

func (br *LinkedInBridge) newPortal(dbPortal *database.Portal) *Portal {
	portal := &Portal{
		Portal: dbPortal,
		bridge: br,
		zlog: br.ZLog.With().
			Str("thread_urn", dbPortal.ThreadURN.IDStr()).
			Str("receiver", dbPortal.Receiver.IDStr()).
			Logger(),

		matrixMessages: make(chan portalMatrixMessage, br.Config.Bridge.PortalMessageBuffer),
		linkedinEvents: make(chan portalLinkedInEvent, br.Config.Bridge.PortalMessageBuffer),
	}
	go portal.messageLoop()
	return portal
}

func (br *LinkedInBridge) GetPortalByMXID(mxid id.RoomID) *Portal {
	br.portalsLock.Lock()
	defer br.portalsLock.Unlock()

	portal, ok := br.portalsByMXID[mxid]
	if !ok {
		ctx := context.TODO()
		dbPortal, err := br.DB.Portal.GetByMXID(ctx, mxid)
		if err != nil {
			br.ZLog.Err(err).Str("room_id", mxid.String()).Msg("Failed to get portal from database")
			return nil
		}
		return br.loadPortal(ctx, dbPortal, nil)
	}
	return portal
}

func (br *LinkedInBridge) GetPortalByThreadURN(key database.PortalKey) *Portal {
	br.portalsLock.Lock()
	defer br.portalsLock.Unlock()

	portal, ok := br.portalsByKey[newPortalMapKey(key)]
	if !ok {
		ctx := context.TODO()
		dbPortal, err := br.DB.Portal.GetByKey(ctx, key)
		if err != nil {
			br.ZLog.Err(err).Str("thread_urn", key.ThreadURN.IDStr()).Msg("Failed to get portal from database")
			return nil
		}
		return br.loadPortal(ctx, dbPortal, &key)
	}
	return portal
}

func (br *LinkedInBridge) GetAllPortalsForUser(receiver linkedingo.URN) []*Portal {
	return br.dbPortalsToPortals(br.DB.Portal.GetAllForUser(context.TODO(), receiver))
}

func (br *LinkedInBridge) GetAllPortalsWithMXID() []*Portal {
	return br.dbPortalsToPortals(br.DB.Portal.GetAllWithMXID(context.TODO()))
}

func (br *LinkedInBridge) FindPrivateChatPortalsWith(ctx context.Context, otherUser linkedingo.URN) []*Portal {
	return br.dbPortalsToPortals(br.DB.Portal.FindPrivateChatsWith(ctx, otherUser))
}

func (br *LinkedInBridge) dbPortalsToPortals(dbPortals []*database.Portal, err error) []*Portal {
	if err != nil {
		br.ZLog.Err(err).Msg("Failed to load portals")
		return nil
	}
	br.portalsLock.Lock()
	defer br.portalsLock.Unlock()

	output := make([]*Portal, 0, len(dbPortals))
	ctx := context.TODO()
	for _, dbPortal := range dbPortals {
		if dbPortal == nil {
			continue
		}
		portal, ok := br.portalsByKey[newPortalMapKey(dbPortal.PortalKey)]
		if !ok {
			portal = br.loadPortal(ctx, dbPortal, nil)
		}
		output = append(output, portal)
	}
	return output
}

func (portal *Portal) IsPrivateChat() bool {
	return !portal.LIIsGroupChat
}

func (portal *Portal) IsEncrypted() bool {
	return portal.Encrypted
}

func (portal *Portal) MarkEncrypted() {
	portal.Encrypted = true
	err := portal.Update(context.TODO())
	if err != nil {
		portal.zlog.Err(err).Msg("Failed to mark portal as encrypted")
	}
}

func (portal *Portal) MainIntent() *appservice.IntentAPI {
	if portal.IsPrivateChat() && !portal.LIOtherUserURN.IsEmpty() {
		return portal.bridge.GetPuppetByURN(portal.LIOtherUserURN).DefaultIntent()
	}
	return portal.bridge.Bot
}

func (portal *Portal) ReceiveMatrixEvent(user bridge.User, evt *event.Event) {
	if user.GetPermissionLevel() >= bridgeconfig.PermissionLevelUser {
		portal.matrixMessages <- portalMatrixMessage{user: user.(*User), evt: evt}
	}
}

func (portal *Portal) queueLinkedInEvent(evt portalLinkedInEvent) {
	portal.linkedinEvents <- evt
}

func (portal *Portal) messageLoop() {
	for {
		select {
		case msg := <-portal.matrixMessages:
			portal.handleMatrixMessages(msg)
		case evt := <-portal.linkedinEvents:
			portal.handleLinkedInEvents(evt)
		}
	}
}

func (portal *Portal) markHandled(messageURN linkedingo.URN) {
	portal.recentlyHandledLock.Lock()
	defer portal.recentlyHandledLock.Unlock()
	portal.recentlyHandled[portal.recentlyHandledIndex] = messageURN.IDStr()
	portal.recentlyHandledIndex = (portal.recentlyHandledIndex + 1) % recentlyHandledLength
}

func (portal *Portal) isRecentlyHandled(messageURN linkedingo.URN) bool {
	portal.recentlyHandledLock.Lock()
	defer portal.recentlyHandledLock.Unlock()
	idStr := messageURN.IDStr()
	for _, handled := range portal.recentlyHandled {
		if handled == idStr {
			return true
		}
	}
	return false
}

// LinkedIn event handling

func (portal *Portal) handleLinkedInEvents(wrapped portalLinkedInEvent) {
	ctx := portal.zlog.WithContext(context.TODO())
	evt := wrapped.evt
	switch {
	case evt.Event != nil:
		portal.handleLinkedInMessage(ctx, wrapped.user, evt.Event, false)
	case evt.ReactionAdded != nil:
		portal.handleLinkedInReaction(ctx, wrapped.user, evt)
	case evt.SeenReceipt != nil:
		portal.handleLinkedInSeenReceipt(ctx, wrapped.user, evt)
	case wrapped.conversation != nil:
		portal.UpdateInfo(ctx, wrapped.user, wrapped.conversation)
	case !evt.FromEntity.IsEmpty():
		portal.handleLinkedInTyping(ctx, evt)
	}
}

// typingTimeout is how long a bridged typing notification stays active when
// no further indicator arrives.
const typingTimeout = 15 * time.Second

func (portal *Portal) handleLinkedInTyping(ctx context.Context, evt *linkedingo.RealTimeEvent) {
	if portal.MXID == "" {
		return
	}
	puppet := portal.bridge.GetPuppetByURN(evt.FromEntity)
	if puppet == nil {
		return
	}
	_, err := puppet.IntentFor(portal).UserTyping(ctx, portal.MXID, true, typingTimeout)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("Failed to bridge typing notification")
	}
}

func (portal *Portal) handleLinkedInMessage(ctx context.Context, source *User, evt *linkedingo.ConversationEvent, isBackfill bool) {
	_, messageURN, err := evt.EntityURN.ThreadAndMessage()
	if err != nil {
		portal.zlog.Warn().Err(err).Str("entity_urn", evt.EntityURN.String()).Msg("Failed to parse message URN")
		return
	}
	log := portal.zlog.With().Str("message_urn", messageURN.IDStr()).Logger()
	ctx = log.WithContext(ctx)

	msg := evt.MessageEvent()
	if msg == nil {
		log.Debug().Str("subtype", evt.Subtype).Msg("Ignoring event with no message content")
		return
	}

	if !msg.RecalledAt.IsZero() {
		portal.handleLinkedInMessageDelete(ctx, messageURN)
		return
	}

	existing, err := portal.bridge.DB.Message.GetAllParts(ctx, messageURN, portal.Receiver)
	if err != nil {
		log.Err(err).Msg("Failed to check for existing message")
		return
	}
	if !msg.LastEditedAt.IsZero() && len(existing) > 0 {
		portal.handleLinkedInMessageEdit(ctx, source, evt, messageURN, existing)
		return
	}
	if len(existing) > 0 || portal.isRecentlyHandled(messageURN) {
		log.Debug().Msg("Ignoring duplicate message")
		return
	}
	portal.markHandled(messageURN)

	if portal.MXID == "" {
		log.Debug().Msg("Creating Matrix room from incoming message")
		if err = portal.CreateMatrixRoom(ctx, source, nil); err != nil {
			log.Err(err).Msg("Failed to create portal room")
			return
		}
	}

	senderURN := portal.resolveMemberURN(evt.From.MemberURN())
	puppet := portal.bridge.GetPuppetByURN(senderURN)
	if puppet == nil {
		log.Warn().Str("sender", senderURN.IDStr()).Msg("Dropping message with unknown sender")
		return
	}
	puppet.UpdateInfoIfNecessary(ctx, source, evt.Sender())
	intent := puppet.IntentFor(portal)

	if msg.CustomContent != nil && msg.CustomContent.ConversationNameUpdate != nil {
		portal.handleLinkedInNameChange(ctx, intent, msg.CustomContent.ConversationNameUpdate.NewName)
		return
	}
	if msg.CustomContent != nil && msg.CustomContent.SpInmailContent != nil && portal.IsPrivateChat() {
		portal.makeReadOnly(ctx)
	}

	parts := portal.convertLinkedInMessage(ctx, source, intent, msg)
	if len(parts) == 0 {
		log.Debug().Msg("Message converted to no parts, skipping")
		return
	}

	ts := evt.CreatedAt.UnixMilli()
	eventIDs := make([]id.EventID, 0, len(parts))
	for _, part := range parts {
		if isBackfill && portal.bridge.Config.Bridge.Backfill.DisableNotifications {
			if part.extra == nil {
				part.extra = map[string]interface{}{}
			}
			part.extra["com.beeper.dont_notify"] = true
		}
		resp, err := portal.sendMatrixMessage(ctx, intent, event.EventMessage, part.content, part.extra, ts)
		if err != nil {
			log.Err(err).Msg("Failed to send message part to Matrix")
			continue
		}
		eventIDs = append(eventIDs, resp.EventID)
	}
	if len(eventIDs) == 0 {
		return
	}

	err = portal.bridge.DB.Message.BulkCreate(
		ctx, messageURN, portal.ThreadURN, senderURN, portal.Receiver,
		evt.CreatedAt.Time, portal.MXID, eventIDs,
	)
	if err != nil {
		log.Err(err).Msg("Failed to save message to database")
	}
	portal.sendDeliveryReceipt(ctx, eventIDs[len(eventIDs)-1])
}

// handleLinkedInMessageEdit applies an edit by replacing overlapping parts,
// sending any extra new parts, and redacting parts that no longer exist.
func (portal *Portal) handleLinkedInMessageEdit(ctx context.Context, source *User, evt *linkedingo.ConversationEvent, messageURN linkedingo.URN, existing []*database.Message) {
	log := zerolog.Ctx(ctx)
	senderURN := portal.resolveMemberURN(evt.From.MemberURN())
	puppet := portal.bridge.GetPuppetByURN(senderURN)
	if puppet == nil {
		return
	}
	intent := puppet.IntentFor(portal)

	parts := portal.convertLinkedInMessage(ctx, source, intent, evt.MessageEvent())
	ts := evt.MessageEvent().LastEditedAt.UnixMilli()
	for i := 0; i < len(parts) || i < len(existing); i++ {
		switch {
		case i < len(parts) && i < len(existing):
			part := parts[i]
			part.content.SetEdit(existing[i].MXID)
			_, err := portal.sendMatrixMessage(ctx, intent, event.EventMessage, part.content, part.extra, ts)
			if err != nil {
				log.Err(err).Int("part", i).Msg("Failed to send edit to Matrix")
			}
		case i < len(parts):
			part := parts[i]
			resp, err := portal.sendMatrixMessage(ctx, intent, event.EventMessage, part.content, part.extra, ts)
			if err != nil {
				log.Err(err).Int("part", i).Msg("Failed to send new edit part to Matrix")
				continue
			}
			dbMsg := portal.bridge.DB.Message.New()
			dbMsg.MXID = resp.EventID
			dbMsg.Room = portal.MXID
			dbMsg.MessageURN = messageURN
			dbMsg.ThreadURN = portal.ThreadURN
			dbMsg.SenderURN = senderURN
			dbMsg.ReceiverURN = portal.Receiver
			dbMsg.Index = i
			dbMsg.Timestamp = evt.CreatedAt.Time
			if err = dbMsg.Insert(ctx); err != nil {
				log.Err(err).Msg("Failed to save edit part to database")
			}
		default:
			_, err := intent.RedactEvent(ctx, portal.MXID, existing[i].MXID)
			if err != nil {
				log.Err(err).Int("part", i).Msg("Failed to redact removed edit part")
			}
			if err = existing[i].Delete(ctx); err != nil {
				log.Err(err).Msg("Failed to delete removed edit part from database")
			}
		}
	}
}

func (portal *Portal) handleLinkedInMessageDelete(ctx context.Context, messageURN linkedingo.URN) {
	log := zerolog.Ctx(ctx)
	existing, err := portal.bridge.DB.Message.GetAllParts(ctx, messageURN, portal.Receiver)
	if err != nil {
		log.Err(err).Msg("Failed to get message parts to delete")
		return
	}
	intent := portal.MainIntent()
	for _, part := range existing {
		if _, err = intent.RedactEvent(ctx, portal.MXID, part.MXID); err != nil {
			log.Err(err).Str("event_id", part.MXID.String()).Msg("Failed to redact recalled message")
		}
		if err = part.Delete(ctx); err != nil {
			log.Err(err).Msg("Failed to delete recalled message from database")
		}
	}

	// Reactions to the recalled message go with it.
	reactions, err := portal.bridge.DB.Reaction.GetAllForMessage(ctx, messageURN, portal.Receiver)
	if err != nil {
		log.Err(err).Msg("Failed to get reactions of recalled message")
		return
	}
	for _, reaction := range reactions {
		if _, err = intent.RedactEvent(ctx, portal.MXID, reaction.MXID); err != nil {
			log.Err(err).Str("event_id", reaction.MXID.String()).Msg("Failed to redact reaction to recalled message")
		}
	}
	if err = portal.bridge.DB.Reaction.DeleteAllForMessage(ctx, messageURN, portal.Receiver); err != nil {
		log.Err(err).Msg("Failed to delete reactions of recalled message from database")
	}
}

func (portal *Portal) handleLinkedInNameChange(ctx context.Context, intent *appservice.IntentAPI, newName string) {
	if portal.MXID == "" {
		return
	}
	_, err := intent.SetRoomName(ctx, portal.MXID, newName)
	if errors.Is(err, mautrix.MForbidden) {
		_, err = portal.MainIntent().SetRoomName(ctx, portal.MXID, newName)
	}
	if err != nil {
		zerolog.Ctx(ctx).Err(err).Msg("Failed to update room name")
		return
	}
	portal.Name = newName
	portal.NameSet = true
	if err = portal.Update(ctx); err != nil {
		zerolog.Ctx(ctx).Err(err).Msg("Failed to save name change")
	}
}

// sponsoredMemberID is the placeholder LinkedIn uses instead of a real member
// URN for the sender of sponsored InMail.
const sponsoredMemberID = "UNKNOWN"

// resolveMemberURN substitutes the thread URN for the sponsored-sender
// placeholder so each ad thread gets its own ghost.
func (portal *Portal) resolveMemberURN(memberURN linkedingo.URN) linkedingo.URN {
	if memberURN.IDStr() == sponsoredMemberID {
		return portal.ThreadURN
	}
	return memberURN
}

// isSponsoredConversation tells whether a conversation is a sponsored InMail
// thread, which doesn't accept replies.
func isSponsoredConversation(conv *linkedingo.Conversation) bool {
	return conv != nil && len(conv.Participants) > 0 &&
		conv.Participants[0].MemberURN().IDStr() == sponsoredMemberID
}

// makeReadOnly raises events_default so the user can't reply. Sponsored
// message threads don't accept replies.
func (portal *Portal) makeReadOnly(ctx context.Context) {
	levels, err := portal.MainIntent().PowerLevels(ctx, portal.MXID)
	if err != nil {
		portal.zlog.Err(err).Msg("Failed to get power levels")
		return
	}
	if levels.EventsDefault >= 50 {
		return
	}
	levels.EventsDefault = 50
	if _, err = portal.MainIntent().SetPowerLevels(ctx, portal.MXID, levels); err != nil {
		portal.zlog.Err(err).Msg("Failed to make portal read-only")
	}
}

func (portal *Portal) handleLinkedInReaction(ctx context.Context, source *User, evt *linkedingo.RealTimeEvent) {
	log := zerolog.Ctx(ctx)
	_, messageURN, err := evt.EventURN.ThreadAndMessage()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to parse reaction event URN")
		return
	}
	emoji := evt.ReactionSummary.Emoji
	actorURN := evt.ActorMiniProfileURN
	if actorURN.IsEmpty() {
		actorURN = portal.resolveReactionActor(ctx, source, messageURN, emoji)
		if actorURN.IsEmpty() {
			log.Warn().Msg("Could not resolve reaction actor")
			return
		}
	}
	puppet := portal.bridge.GetPuppetByURN(actorURN)
	if puppet == nil {
		return
	}
	intent := puppet.IntentFor(portal)

	existing, err := portal.bridge.DB.Reaction.GetByKey(ctx, messageURN, portal.Receiver, actorURN, emoji)
	if err != nil {
		log.Err(err).Msg("Failed to check for existing reaction")
		return
	}

	if *evt.ReactionAdded {
		if existing != nil {
			return
		}
		target, err := portal.bridge.DB.Message.GetLastPartByURN(ctx, messageURN, portal.Receiver)
		if err != nil || target == nil {
			log.Warn().AnErr("error", err).Msg("Dropping reaction to unknown message")
			return
		}
		resp, err := intent.SendMessageEvent(ctx, portal.MXID, event.EventReaction, &event.ReactionEventContent{
			RelatesTo: event.RelatesTo{
				Type:    event.RelAnnotation,
				EventID: target.MXID,
				Key:     variationselector.Add(emoji),
			},
		})
		if err != nil {
			log.Err(err).Msg("Failed to send reaction to Matrix")
			return
		}
		dbReaction := portal.bridge.DB.Reaction.New()
		dbReaction.MXID = resp.EventID
		dbReaction.Room = portal.MXID
		dbReaction.MessageURN = messageURN
		dbReaction.ReceiverURN = portal.Receiver
		dbReaction.SenderURN = actorURN
		dbReaction.Emoji = emoji
		if err = dbReaction.Insert(ctx); err != nil {
			log.Err(err).Msg("Failed to save reaction to database")
		}
	} else {
		if existing == nil {
			return
		}
		if _, err = intent.RedactEvent(ctx, portal.MXID, existing.MXID); err != nil {
			log.Err(err).Msg("Failed to redact removed reaction")
		}
		if err = existing.Delete(ctx); err != nil {
			log.Err(err).Msg("Failed to delete reaction from database")
		}
	}
}

// resolveReactionActor figures out who reacted when the realtime event doesn't
// say, by finding a server-side reactor we don't have a row for yet.
func (portal *Portal) resolveReactionActor(ctx context.Context, source *User, messageURN linkedingo.URN, emoji string) linkedingo.URN {
	resp, err := source.Client.GetReactors(ctx, messageURN, emoji)
	if err != nil {
		zerolog.Ctx(ctx).Err(err).Msg("Failed to get reactors")
		return linkedingo.URN{}
	}
	for _, reactor := range resp.Elements {
		urn := reactor.ReactorURN
		if urn.IsEmpty() && reactor.Reactor != nil {
			urn = reactor.Reactor.EntityURN
		}
		if urn.IsEmpty() {
			continue
		}
		existing, err := portal.bridge.DB.Reaction.GetByKey(ctx, messageURN, portal.Receiver, urn, emoji)
		if err == nil && existing == nil {
			return urn
		}
	}
	return linkedingo.URN{}
}

func (portal *Portal) handleLinkedInSeenReceipt(ctx context.Context, source *User, evt *linkedingo.RealTimeEvent) {
	log := zerolog.Ctx(ctx)
	puppet := portal.bridge.GetPuppetByURN(evt.FromEntity)
	if puppet == nil || portal.MXID == "" {
		return
	}
	_, messageURN, err := evt.SeenReceipt.EventURN.ThreadAndMessage()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to parse seen receipt URN")
		return
	}
	msg, err := portal.bridge.DB.Message.GetLastPartByURN(ctx, messageURN, portal.Receiver)
	if err != nil || msg == nil {
		return
	}
	if err = puppet.IntentFor(portal).MarkRead(ctx, portal.MXID, msg.MXID); err != nil {
		log.Warn().Err(err).Msg("Failed to bridge seen receipt")
	}
}

// Portal metadata sync

// SyncWithConversation updates portal info from a conversation list entry and
// creates the Matrix room if it doesn't exist yet.
func (portal *Portal) SyncWithConversation(ctx context.Context, source *User, conv *linkedingo.Conversation) {
	if portal.MXID == "" {
		err := portal.CreateMatrixRoom(ctx, source, conv)
		if err != nil {
			portal.zlog.Err(err).Msg("Failed to create portal room during sync")
		}
		return
	}
	portal.UpdateInfo(ctx, source, conv)
	portal.ensureUserInvited(ctx, source)
	if !portal.InSpace {
		source.addPortalToSpace(ctx, portal)
		if err := portal.Update(ctx); err != nil {
			portal.zlog.Err(err).Msg("Failed to save portal after space update")
		}
	}
	go portal.backfillMissed(source, conv)
}

func (portal *Portal) UpdateInfo(ctx context.Context, source *User, conv *linkedingo.Conversation) bool {
	changed := false

	if portal.LIIsGroupChat != conv.GroupChat {
		portal.LIIsGroupChat = conv.GroupChat
		changed = true
	}

	var otherMember *linkedingo.MiniProfile
	for i := range conv.Participants {
		participant := &conv.Participants[i]
		memberURN := portal.resolveMemberURN(participant.MemberURN())
		if memberURN.IsEmpty() || memberURN.Equals(source.LIMemberURN) {
			continue
		}
		var profile *linkedingo.MiniProfile
		if participant.MessagingMember != nil {
			profile = participant.MessagingMember.MiniProfile
		}
		if puppet := portal.bridge.GetPuppetByURN(memberURN); puppet != nil {
			puppet.UpdateInfoIfNecessary(ctx, source, profile)
			if portal.MXID != "" {
				if err := puppet.IntentFor(portal).EnsureJoined(ctx, portal.MXID); err != nil {
					portal.zlog.Warn().Err(err).
						Str("member", memberURN.IDStr()).
						Msg("Failed to ensure ghost is joined")
				}
			}
		}
		if otherMember == nil {
			otherMember = profile
			if portal.IsPrivateChat() && !portal.LIOtherUserURN.Equals(memberURN) {
				portal.LIOtherUserURN = memberURN
				changed = true
			}
		}
	}

	changed = portal.updateName(ctx, portal.expectedName(conv, otherMember)) || changed
	changed = portal.updateTopic(ctx, portal.expectedTopic(otherMember)) || changed
	if portal.IsPrivateChat() && !portal.LIOtherUserURN.IsEmpty() {
		if puppet := portal.bridge.GetPuppetByURN(portal.LIOtherUserURN); puppet != nil {
			changed = portal.updateAvatarFromPuppet(ctx, puppet) || changed
		}
	}

	source.updateChatMute(ctx, portal, conv.Muted)

	if changed {
		portal.UpdateBridgeInfo(ctx)
		if err := portal.Update(ctx); err != nil {
			portal.zlog.Err(err).Msg("Failed to save portal info")
		}
	}
	return changed
}

func (portal *Portal) expectedName(conv *linkedingo.Conversation, otherMember *linkedingo.MiniProfile) string {
	if conv.Name != "" {
		return conv.Name
	}
	if portal.IsPrivateChat() {
		if !portal.shouldSetDMMeta() {
			return ""
		}
		if otherMember != nil {
			return portal.bridge.Config.Bridge.FormatDisplayname(otherMember)
		}
		return portal.Name
	}
	// Unnamed group chats get a member-list name like the official clients.
	var names []string
	for i := range conv.Participants {
		member := conv.Participants[i].MessagingMember
		if member != nil && member.MiniProfile != nil && member.MiniProfile.FirstName != "" {
			names = append(names, member.MiniProfile.FirstName)
		}
	}
	if len(names) == 0 {
		return portal.Name
	}
	return joinNames(names)
}

func joinNames(names []string) string {
	switch len(names) {
	case 1:
		return names[0]
	case 2:
		return fmt.Sprintf("%s and %s", names[0], names[1])
	default:
		return fmt.Sprintf("%s and %d others", names[0], len(names)-1)
	}
}

func (portal *Portal) expectedTopic(otherMember *linkedingo.MiniProfile) string {
	if !portal.IsPrivateChat() || !portal.bridge.Config.Bridge.SetTopicOnDMs || otherMember == nil {
		return portal.Topic
	}
	return otherMember.Occupation
}

func (portal *Portal) shouldSetDMMeta() bool {
	return !portal.IsPrivateChat() ||
		portal.bridge.Config.Bridge.PrivateChatPortalMeta ||
		portal.bridge.Config.Bridge.Encryption.Default
}

func (portal *Portal) updateName(ctx context.Context, newName string) bool {
	if newName == "" || (portal.Name == newName && portal.NameSet) {
		return false
	}
	portal.Name = newName
	portal.NameSet = false
	if portal.MXID != "" {
		_, err := portal.MainIntent().SetRoomName(ctx, portal.MXID, newName)
		if err != nil {
			portal.zlog.Err(err).Msg("Failed to set room name")
		} else {
			portal.NameSet = true
		}
	}
	return true
}

func (portal *Portal) updateTopic(ctx context.Context, newTopic string) bool {
	if portal.Topic == newTopic && portal.TopicSet {
		return false
	}
	portal.Topic = newTopic
	portal.TopicSet = false
	if portal.MXID != "" {
		_, err := portal.MainIntent().SetRoomTopic(ctx, portal.MXID, newTopic)
		if err != nil {
			portal.zlog.Err(err).Msg("Failed to set room topic")
		} else {
			portal.TopicSet = true
		}
	}
	return true
}

func (portal *Portal) updateAvatarFromPuppet(ctx context.Context, puppet *Puppet) bool {
	if !portal.shouldSetDMMeta() {
		return false
	}
	if portal.PhotoID == puppet.PhotoID && portal.AvatarSet {
		return false
	}
	portal.PhotoID = puppet.PhotoID
	portal.AvatarURL = puppet.PhotoMXC
	portal.AvatarSet = false
	if portal.MXID != "" {
		_, err := portal.MainIntent().SetRoomAvatar(ctx, portal.MXID, portal.AvatarURL)
		if err != nil {
			portal.zlog.Err(err).Msg("Failed to set room avatar")
		} else {
			portal.AvatarSet = true
		}
	}
	return true
}

func (portal *Portal) UpdateNameFromPuppet(ctx context.Context, puppet *Puppet) {
	if portal.shouldSetDMMeta() && portal.updateName(ctx, puppet.Name) {
		if err := portal.Update(ctx); err != nil {
			portal.zlog.Err(err).Msg("Failed to save portal after name update")
		}
	}
}

func (portal *Portal) UpdateAvatarFromPuppet(ctx context.Context, puppet *Puppet) {
	if portal.updateAvatarFromPuppet(ctx, puppet) {
		if err := portal.Update(ctx); err != nil {
			portal.zlog.Err(err).Msg("Failed to save portal after avatar update")
		}
	}
}

// Room creation

func (portal *Portal) getBridgeInfoStateKey() string {
	return fmt.Sprintf("com.github.linkedin://linkedin/%s", portal.ThreadURN.IDStr())
}

func (portal *Portal) getBridgeInfo() (string, event.BridgeEventContent) {
	return portal.getBridgeInfoStateKey(), event.BridgeEventContent{
		BridgeBot: portal.bridge.Bot.UserID,
		Creator:   portal.MainIntent().UserID,
		Protocol: event.BridgeInfoSection{
			ID:          "linkedin",
			DisplayName: "LinkedIn",
			AvatarURL:   portal.bridge.Config.AppService.Bot.ParsedAvatar.CUString(),
			ExternalURL: "https://www.linkedin.com/messaging/",
		},
		Channel: event.BridgeInfoSection{
			ID:          portal.ThreadURN.IDStr(),
			DisplayName: portal.Name,
		},
	}
}

func (portal *Portal) UpdateBridgeInfo(ctx context.Context) {
	if portal.MXID == "" {
		return
	}
	stateKey, content := portal.getBridgeInfo()
	_, err := portal.MainIntent().SendStateEvent(ctx, portal.MXID, event.StateBridge, stateKey, content)
	if err != nil {
		portal.zlog.Warn().Err(err).Msg("Failed to update m.bridge info")
	}
	// TODO remove this once https://github.com/matrix-org/matrix-doc/pull/2346 is in spec
	_, err = portal.MainIntent().SendStateEvent(ctx, portal.MXID, event.StateHalfShotBridge, stateKey, content)
	if err != nil {
		portal.zlog.Warn().Err(err).Msg("Failed to update uk.half-shot.bridge info")
	}
}

func (portal *Portal) CreateMatrixRoom(ctx context.Context, source *User, conv *linkedingo.Conversation) error {
	portal.roomCreateLock.Lock()
	defer portal.roomCreateLock.Unlock()
	if portal.MXID != "" {
		return nil
	}

	if conv == nil {
		// Realtime events don't carry conversation metadata, so find the
		// conversation in the inbox to fill in participants and settings.
		found := false
		err := source.Client.GetAllConversations(ctx, func(c *linkedingo.Conversation) (bool, error) {
			if c.EntityURN.Equals(portal.ThreadURN) {
				conv = c
				found = true
				return false, nil
			}
			return true, nil
		})
		if err != nil {
			return fmt.Errorf("failed to fetch conversation info: %w", err)
		} else if !found {
			return fmt.Errorf("conversation %s not found in inbox", portal.ThreadURN.IDStr())
		}
	}

	portal.UpdateInfo(ctx, source, conv)

	intent := portal.MainIntent()
	if err := intent.EnsureRegistered(ctx); err != nil {
		return err
	}

	bridgeInfoStateKey, bridgeInfo := portal.getBridgeInfo()
	initialState := []*event.Event{{
		Type:     event.StateBridge,
		Content:  event.Content{Parsed: bridgeInfo},
		StateKey: &bridgeInfoStateKey,
	}, {
		// TODO remove this once https://github.com/matrix-org/matrix-doc/pull/2346 is in spec
		Type:     event.StateHalfShotBridge,
		Content:  event.Content{Parsed: bridgeInfo},
		StateKey: &bridgeInfoStateKey,
	}}

	if !portal.AvatarURL.IsEmpty() {
		initialState = append(initialState, &event.Event{
			Type: event.StateRoomAvatar,
			Content: event.Content{Parsed: &event.RoomAvatarEventContent{
				URL: portal.AvatarURL.CUString(),
			}},
		})
	}

	creationContent := make(map[string]interface{})
	if !portal.bridge.Config.Bridge.FederateRooms {
		creationContent["m.federate"] = false
	}

	invite := []id.UserID{}
	if portal.bridge.Config.Bridge.Encryption.Default {
		initialState = append(initialState, &event.Event{
			Type:    event.StateEncryption,
			Content: event.Content{Parsed: portal.getEncryptionEventContent()},
		})
		portal.Encrypted = true
		if portal.IsPrivateChat() {
			invite = append(invite, portal.bridge.Bot.UserID)
		}
	}

	var roomName, roomTopic string
	if portal.shouldSetDMMeta() {
		roomName = portal.Name
	}
	if portal.IsPrivateChat() {
		roomTopic = portal.Topic
	}

	var plOverride *event.PowerLevelsEventContent
	if portal.IsPrivateChat() && isSponsoredConversation(conv) {
		plOverride = &event.PowerLevelsEventContent{EventsDefault: 50}
	}

	resp, err := intent.CreateRoom(ctx, &mautrix.ReqCreateRoom{
		Visibility:         "private",
		Name:               roomName,
		Topic:              roomTopic,
		Invite:             invite,
		Preset:             "private_chat",
		IsDirect:           portal.IsPrivateChat(),
		InitialState:       initialState,
		CreationContent:    creationContent,
		PowerLevelOverride: plOverride,
	})
	if err != nil {
		return err
	}
	portal.MXID = resp.RoomID
	portal.NameSet = roomName != ""
	portal.TopicSet = roomTopic != ""
	portal.AvatarSet = !portal.AvatarURL.IsEmpty()
	portal.bridge.portalsLock.Lock()
	portal.bridge.portalsByMXID[portal.MXID] = portal
	portal.bridge.portalsLock.Unlock()
	if err = portal.Update(ctx); err != nil {
		portal.zlog.Err(err).Msg("Failed to save portal after room creation")
	}
	portal.zlog.Info().Str("room_id", portal.MXID.String()).Msg("Created portal room")

	if portal.Encrypted && portal.IsPrivateChat() {
		err = portal.bridge.Bot.EnsureJoined(ctx, portal.MXID, appservice.EnsureJoinedParams{BotOverride: portal.MainIntent().Client})
		if err != nil {
			portal.zlog.Err(err).Msg("Failed to ensure bridge bot is joined to encrypted private chat")
		}
	}

	portal.ensureUserInvited(ctx, source)
	for i := range conv.Participants {
		memberURN := portal.resolveMemberURN(conv.Participants[i].MemberURN())
		if memberURN.IsEmpty() || memberURN.Equals(source.LIMemberURN) {
			continue
		}
		if puppet := portal.bridge.GetPuppetByURN(memberURN); puppet != nil {
			if err = puppet.IntentFor(portal).EnsureJoined(ctx, portal.MXID); err != nil {
				portal.zlog.Warn().Err(err).Str("member", memberURN.IDStr()).Msg("Failed to join ghost to new room")
			}
		}
	}

	source.addPortalToSpace(ctx, portal)
	if err = portal.Update(ctx); err != nil {
		portal.zlog.Err(err).Msg("Failed to save portal after space update")
	}

	if portal.IsPrivateChat() && portal.bridge.Config.Bridge.SyncDirectChatList {
		source.updateDirectChats(ctx, portal.getDirectChats())
	}

	go portal.backfillInitial(source, conv)
	return nil
}

func (portal *Portal) getEncryptionEventContent() *event.EncryptionEventContent {
	content := &event.EncryptionEventContent{Algorithm: id.AlgorithmMegolmV1}
	if rot := portal.bridge.Config.Bridge.Encryption.Rotation; rot.EnableCustom {
		content.RotationPeriodMillis = rot.Milliseconds
		content.RotationPeriodMessages = rot.Messages
	}
	return content
}

func (portal *Portal) ensureUserInvited(ctx context.Context, user *User) bool {
	return user.ensureInvited(ctx, portal.MainIntent(), portal.MXID, portal.IsPrivateChat())
}

func (portal *Portal) getDirectChats() map[id.UserID][]id.RoomID {
	if portal.LIOtherUserURN.IsEmpty() {
		return nil
	}
	puppet := portal.bridge.GetPuppetByURN(portal.LIOtherUserURN)
	if puppet == nil {
		return nil
	}
	return map[id.UserID][]id.RoomID{puppet.MXID: {portal.MXID}}
}

// Matrix event handling

func (portal *Portal) handleMatrixMessages(msg portalMatrixMessage) {
	ctx := portal.zlog.With().
		Str("event_id", msg.evt.ID.String()).
		Str("sender", msg.user.MXID.String()).
		Logger().WithContext(context.TODO())
	switch msg.evt.Type {
	case event.EventMessage, event.EventSticker:
		portal.handleMatrixMessage(ctx, msg.user, msg.evt)
	case event.EventRedaction:
		portal.handleMatrixRedaction(ctx, msg.user, msg.evt)
	case event.EventReaction:
		portal.handleMatrixReaction(ctx, msg.user, msg.evt)
	default:
		portal.zlog.Debug().Str("event_type", msg.evt.Type.Type).Msg("Unhandled Matrix event type")
	}
}

func (portal *Portal) handleMatrixMessage(ctx context.Context, sender *User, evt *event.Event) {
	log := zerolog.Ctx(ctx)
	if !sender.IsLoggedIn() {
		portal.sendMessageStatusCheckpointFailed(ctx, evt, ErrNotLoggedIn)
		return
	}
	content, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok {
		portal.sendMessageStatusCheckpointFailed(ctx, evt, errors.New("unexpected parsed content type"))
		return
	}
	if content.RelatesTo != nil && content.RelatesTo.Type == event.RelReplace {
		portal.sendMessageStatusCheckpointFailed(ctx, evt, errors.New("editing messages is not supported"))
		return
	}

	create, err := portal.convertMatrixMessage(ctx, sender, content, evt)
	if err != nil {
		portal.sendMessageStatusCheckpointFailed(ctx, evt, err)
		return
	}

	resp, err := sender.Client.SendMessage(ctx, portal.ThreadURN, create)
	if err != nil {
		portal.sendMessageStatusCheckpointFailed(ctx, evt, err)
		return
	} else if resp.Value == nil || resp.Value.EventURN.IsEmpty() {
		portal.sendMessageStatusCheckpointFailed(ctx, evt, errors.New("message create response contained no event URN"))
		return
	}
	_, messageURN, err := resp.Value.EventURN.ThreadAndMessage()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to parse URN of sent message")
		messageURN = resp.Value.EventURN
	}
	portal.markHandled(messageURN)

	dbMsg := portal.bridge.DB.Message.New()
	dbMsg.MXID = evt.ID
	dbMsg.Room = portal.MXID
	dbMsg.MessageURN = messageURN
	dbMsg.ThreadURN = portal.ThreadURN
	dbMsg.SenderURN = sender.LIMemberURN
	dbMsg.ReceiverURN = portal.Receiver
	dbMsg.Timestamp = resp.Value.CreatedAt.Time
	if err = dbMsg.Insert(ctx); err != nil {
		log.Err(err).Msg("Failed to save sent message to database")
	}
	portal.sendMessageStatusCheckpointSuccess(ctx, evt)
}

func (portal *Portal) handleMatrixRedaction(ctx context.Context, sender *User, evt *event.Event) {
	log := zerolog.Ctx(ctx)
	if !sender.IsLoggedIn() {
		portal.sendMessageStatusCheckpointFailed(ctx, evt, ErrNotLoggedIn)
		return
	}

	msg, err := portal.bridge.DB.Message.GetByMXID(ctx, evt.Redacts, portal.MXID)
	if err != nil {
		log.Err(err).Msg("Failed to look up redaction target message")
	}
	if msg != nil {
		if err = sender.Client.DeleteMessage(ctx, portal.ThreadURN, msg.MessageURN); err != nil {
			portal.sendMessageStatusCheckpointFailed(ctx, evt, err)
			return
		}
		parts, _ := portal.bridge.DB.Message.GetAllParts(ctx, msg.MessageURN, portal.Receiver)
		for _, part := range parts {
			if err = part.Delete(ctx); err != nil {
				log.Err(err).Msg("Failed to delete recalled message part from database")
			}
		}
		portal.sendMessageStatusCheckpointSuccess(ctx, evt)
		return
	}

	reaction, err := portal.bridge.DB.Reaction.GetByMXID(ctx, evt.Redacts, portal.MXID)
	if err != nil {
		log.Err(err).Msg("Failed to look up redaction target reaction")
	}
	if reaction != nil {
		err = sender.Client.RemoveEmojiReaction(ctx, portal.ThreadURN, reaction.MessageURN, reaction.Emoji)
		if err != nil {
			portal.sendMessageStatusCheckpointFailed(ctx, evt, err)
			return
		}
		if err = reaction.Delete(ctx); err != nil {
			log.Err(err).Msg("Failed to delete reaction from database")
		}
		portal.sendMessageStatusCheckpointSuccess(ctx, evt)
		return
	}

	portal.sendMessageStatusCheckpointFailed(ctx, evt, errors.New("redaction target not found"))
}

func (portal *Portal) handleMatrixReaction(ctx context.Context, sender *User, evt *event.Event) {
	log := zerolog.Ctx(ctx)
	if !sender.IsLoggedIn() {
		portal.sendMessageStatusCheckpointFailed(ctx, evt, ErrNotLoggedIn)
		return
	}
	content, ok := evt.Content.Parsed.(*event.ReactionEventContent)
	if !ok {
		portal.sendMessageStatusCheckpointFailed(ctx, evt, errors.New("unexpected parsed content type"))
		return
	}

	msg, err := portal.bridge.DB.Message.GetByMXID(ctx, content.RelatesTo.EventID, portal.MXID)
	if err != nil || msg == nil {
		portal.sendMessageStatusCheckpointFailed(ctx, evt, errors.New("reaction target message not found"))
		return
	}
	emoji := variationselector.Remove(content.RelatesTo.Key)

	existing, err := portal.bridge.DB.Reaction.GetByKey(ctx, msg.MessageURN, portal.Receiver, sender.LIMemberURN, emoji)
	if err != nil {
		log.Err(err).Msg("Failed to check for existing reaction")
	}

	if err = sender.Client.AddEmojiReaction(ctx, portal.ThreadURN, msg.MessageURN, emoji); err != nil {
		portal.sendMessageStatusCheckpointFailed(ctx, evt, err)
		return
	}

	if existing != nil {
		// Re-reacting with the same emoji: repoint the row and redact the old
		// annotation.
		if _, err = portal.MainIntent().RedactEvent(ctx, portal.MXID, existing.MXID); err != nil {
			log.Warn().Err(err).Msg("Failed to redact duplicate reaction")
		}
		existing.MXID = evt.ID
		existing.Room = portal.MXID
		if err = existing.Update(ctx); err != nil {
			log.Err(err).Msg("Failed to update reaction in database")
		}
	} else {
		dbReaction := portal.bridge.DB.Reaction.New()
		dbReaction.MXID = evt.ID
		dbReaction.Room = portal.MXID
		dbReaction.MessageURN = msg.MessageURN
		dbReaction.ReceiverURN = portal.Receiver
		dbReaction.SenderURN = sender.LIMemberURN
		dbReaction.Emoji = emoji
		if err = dbReaction.Insert(ctx); err != nil {
			log.Err(err).Msg("Failed to save reaction to database")
		}
	}
	portal.sendMessageStatusCheckpointSuccess(ctx, evt)
}

func (portal *Portal) HandleMatrixReadReceipt(brUser bridge.User, eventID id.EventID, receipt event.ReadReceipt) {
	user := brUser.(*User)
	if !user.IsLoggedIn() {
		return
	}
	ctx := portal.zlog.WithContext(context.TODO())
	if err := user.Client.MarkConversationRead(ctx, portal.ThreadURN); err != nil {
		portal.zlog.Warn().Err(err).Msg("Failed to bridge read receipt")
	}
}

func (portal *Portal) HandleMatrixTyping(newTyping []id.UserID) {
	portal.currentlyTypingLock.Lock()
	defer portal.currentlyTypingLock.Unlock()
	ctx := portal.zlog.WithContext(context.TODO())
	for _, userID := range newTyping {
		if isUserTyping(portal.currentlyTyping, userID) {
			continue
		}
		user := portal.bridge.GetUserByMXIDIfExists(userID)
		if user == nil || !user.IsLoggedIn() {
			continue
		}
		if err := user.Client.SetTyping(ctx, portal.ThreadURN); err != nil {
			portal.zlog.Warn().Err(err).Msg("Failed to bridge typing notification")
		}
	}
	portal.currentlyTyping = newTyping
}

func isUserTyping(typing []id.UserID, userID id.UserID) bool {
	for _, existing := range typing {
		if existing == userID {
			return true
		}
	}
	return false
}

func (portal *Portal) HandleMatrixLeave(brSender bridge.User, _ *event.Event) {
	sender := brSender.(*User)
	if portal.IsPrivateChat() && sender.LIMemberURN.Equals(portal.Receiver) {
		portal.zlog.Info().Msg("User left private chat portal, cleaning up and deleting")
		ctx := portal.zlog.WithContext(context.TODO())
		portal.Cleanup(ctx, false)
		portal.RemoveMXID(ctx)
	}
}

func (portal *Portal) HandleMatrixInvite(_ bridge.User, _ bridge.Ghost, _ *event.Event) {
	// LinkedIn has no API for adding conversation participants.
}

func (portal *Portal) HandleMatrixKick(_ bridge.User, _ bridge.Ghost, _ *event.Event) {
	// Same as invites, participants can't be managed from the bridge.
}

// Message sending helpers

func (portal *Portal) encrypt(ctx context.Context, intent *appservice.IntentAPI, content *event.Content, eventType event.Type) (event.Type, error) {
	if !portal.Encrypted || portal.bridge.Crypto == nil {
		return eventType, nil
	}
	intent.AddDoublePuppetValue(content)
	portal.encryptLock.Lock()
	defer portal.encryptLock.Unlock()
	err := portal.bridge.Crypto.Encrypt(ctx, portal.MXID, eventType, content)
	if err != nil {
		return eventType, fmt.Errorf("failed to encrypt event: %w", err)
	}
	return event.EventEncrypted, nil
}

func (portal *Portal) sendMatrixMessage(ctx context.Context, intent *appservice.IntentAPI, eventType event.Type, content *event.MessageEventContent, extraContent map[string]interface{}, timestamp int64) (*mautrix.RespSendEvent, error) {
	wrappedContent := event.Content{Parsed: content, Raw: extraContent}
	eventType, err := portal.encrypt(ctx, intent, &wrappedContent, eventType)
	if err != nil {
		return nil, err
	}
	if eventType == event.EventEncrypted {
		// Clear other custom keys if the event was encrypted, but keep the
		// double puppet identifier.
		if intent.IsCustomPuppet {
			wrappedContent.Raw = map[string]interface{}{appservice.DoublePuppetKey: intent.IsCustomPuppet}
		} else {
			wrappedContent.Raw = nil
		}
	}
	if timestamp == 0 {
		return intent.SendMessageEvent(ctx, portal.MXID, eventType, &wrappedContent)
	}
	return intent.SendMassagedMessageEvent(ctx, portal.MXID, eventType, &wrappedContent, timestamp)
}

func (portal *Portal) sendDeliveryReceipt(ctx context.Context, eventID id.EventID) {
	if !portal.bridge.Config.Bridge.DeliveryReceipts {
		return
	}
	err := portal.bridge.Bot.SendReceipt(ctx, portal.MXID, eventID, event.ReceiptTypeRead, nil)
	if err != nil {
		portal.zlog.Warn().Err(err).Str("event_id", eventID.String()).Msg("Failed to send delivery receipt")
	}
}

func (portal *Portal) sendMessageStatusCheckpointSuccess(ctx context.Context, evt *event.Event) {
	portal.sendDeliveryReceipt(ctx, evt.ID)
	portal.bridge.SendMessageSuccessCheckpoint(evt, status.MsgStepRemote, 0)
	portal.sendStatusEvent(ctx, evt.ID, nil)
}

func (portal *Portal) sendMessageStatusCheckpointFailed(ctx context.Context, evt *event.Event, err error) {
	portal.zlog.Err(err).Str("event_id", evt.ID.String()).Msg("Failed to handle Matrix event")
	portal.bridge.SendMessageErrorCheckpoint(evt, status.MsgStepRemote, err, true, 0)
	portal.sendStatusEvent(ctx, evt.ID, err)
	if portal.bridge.Config.Bridge.MessageErrorNotices {
		_, noticeErr := portal.MainIntent().SendNotice(ctx, portal.MXID, fmt.Sprintf("⚠ Your message was not bridged: %v", err))
		if noticeErr != nil {
			portal.zlog.Warn().Err(noticeErr).Msg("Failed to send error notice")
		}
	}
}

func (portal *Portal) sendStatusEvent(ctx context.Context, evtID id.EventID, err error) {
	if !portal.bridge.Config.Bridge.MessageStatusEvents {
		return
	}
	content := event.BeeperMessageStatusEventContent{
		Network: portal.getBridgeInfoStateKey(),
		RelatesTo: event.RelatesTo{
			Type:    event.RelReference,
			EventID: evtID,
		},
	}
	if err == nil {
		content.Status = event.MessageStatusSuccess
	} else {
		content.Status = event.MessageStatusRetriable
		content.Reason = event.MessageStatusGenericError
		content.Error = err.Error()
	}
	_, sendErr := portal.bridge.Bot.SendMessageEvent(ctx, portal.MXID, event.BeeperMessageStatus, &content)
	if sendErr != nil {
		portal.zlog.Warn().Err(sendErr).Msg("Failed to send message status event")
	}
}

// Cleanup

// RemoveMXID detaches the portal from its Matrix room without deleting the
// portal row, so the conversation can be bridged again later.
func (portal *Portal) RemoveMXID(ctx context.Context) {
	portal.bridge.portalsLock.Lock()
	if portal.MXID != "" {
		delete(portal.bridge.portalsByMXID, portal.MXID)
	}
	portal.bridge.portalsLock.Unlock()

	if err := portal.bridge.DB.Message.DeleteAllInRoom(ctx, portal.MXID); err != nil {
		portal.zlog.Err(err).Msg("Failed to delete messages from database")
	}
	if err := portal.bridge.DB.Reaction.DeleteAllInRoom(ctx, portal.MXID); err != nil {
		portal.zlog.Err(err).Msg("Failed to delete reactions from database")
	}
	portal.MXID = ""
	portal.NameSet = false
	portal.AvatarSet = false
	portal.TopicSet = false
	portal.InSpace = false
	portal.Encrypted = false
	if err := portal.Update(ctx); err != nil {
		portal.zlog.Err(err).Msg("Failed to save portal after removing mxid")
	}
}

// Delete removes the portal from the database and caches entirely.
func (portal *Portal) Delete(ctx context.Context) {
	portal.bridge.portalsLock.Lock()
	delete(portal.bridge.portalsByKey, newPortalMapKey(portal.PortalKey))
	if portal.MXID != "" {
		delete(portal.bridge.portalsByMXID, portal.MXID)
	}
	portal.bridge.portalsLock.Unlock()

	if err := portal.bridge.DB.Message.DeleteAllInRoom(ctx, portal.MXID); err != nil {
		portal.zlog.Err(err).Msg("Failed to delete messages from database")
	}
	if err := portal.bridge.DB.Reaction.DeleteAllInRoom(ctx, portal.MXID); err != nil {
		portal.zlog.Err(err).Msg("Failed to delete reactions from database")
	}
	if err := portal.Portal.Delete(ctx); err != nil {
		portal.zlog.Err(err).Msg("Failed to delete portal from database")
	}
}

func (portal *Portal) Cleanup(ctx context.Context, puppetsOnly bool) {
	if portal.MXID == "" {
		return
	}
	intent := portal.MainIntent()
	members, err := intent.JoinedMembers(ctx, portal.MXID)
	if err != nil {
		portal.zlog.Err(err).Msg("Failed to get portal members for cleanup")
		return
	}
	for member := range members.Joined {
		if member == intent.UserID {
			continue
		}
		puppet := portal.bridge.GetPuppetByMXID(member)
		if puppet != nil {
			_, err = puppet.DefaultIntent().LeaveRoom(ctx, portal.MXID)
			if err != nil {
				portal.zlog.Err(err).Str("user_id", member.String()).Msg("Failed to leave ghost from portal")
			}
		} else if !puppetsOnly {
			_, err = intent.KickUser(ctx, portal.MXID, &mautrix.ReqKickUser{UserID: member, Reason: "Deleting portal"})
			if err != nil {
				portal.zlog.Err(err).Str("user_id", member.String()).Msg("Failed to kick user from portal")
			}
		}
	}
	_, err = intent.LeaveRoom(ctx, portal.MXID)
	if err != nil {
		portal.zlog.Err(err).Msg("Failed to leave portal room during cleanup")
	}
}
