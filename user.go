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
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/appservice"
	"maunium.net/go/mautrix/bridge"
	"maunium.net/go/mautrix/bridge/bridgeconfig"
	"maunium.net/go/mautrix/bridge/status"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
	"maunium.net/go/mautrix/pushrules"

	"github.com/beeper/linkedin/database"
	"github.com/beeper/linkedin/pkg/linkedingo"
)

var (
	ErrNotConnected = errors.New("not connected")
	ErrNotLoggedIn  = errors.New("not logged in")
)

type User struct {
	*database.User

	bridge *LinkedInBridge
	zlog   zerolog.Logger

	Client *linkedingo.Client

	PermissionLevel bridgeconfig.PermissionLevel

	BridgeState *bridge.BridgeStateQueue

	connLock   sync.Mutex
	stopListen context.CancelFunc

	// Consecutive fast listener failures. Reset after a stable connection.
	listenFailures int

	syncLock   sync.Mutex
	nextSyncAt time.Time

	connectedStateLock sync.Mutex
	lastConnectedState time.Time

	spaceCreateLock sync.Mutex
}

// Re-announcing the connected state this often keeps the status endpoint
// fresh without spamming it on every realtime reconnect.
const connectedStateInterval = 12 * time.Hour

// Conversation list syncs triggered in quick succession (login + first
// realtime event) are collapsed into one.
const syncThrottle = 10 * time.Second

var (
	_ bridge.User              = (*User)(nil)
	_ status.BridgeStateFiller = (*User)(nil)
)

func (user *User) GetPermissionLevel() bridgeconfig.PermissionLevel {
	return user.PermissionLevel
}

func (user *User) GetManagementRoomID() id.RoomID {
	return user.NoticeRoom
}

func (user *User) GetMXID() id.UserID {
	return user.MXID
}

func (user *User) GetCommandState() map[string]interface{} {
	return nil
}

func (user *User) GetIDoublePuppet() bridge.DoublePuppet {
	p := user.bridge.GetPuppetByCustomMXID(user.MXID)
	if p == nil || p.CustomIntent() == nil {
		return nil
	}
	return p
}

func (user *User) GetIGhost() bridge.Ghost {
	if user.LIMemberURN.IsEmpty() {
		return nil
	}
	p := user.bridge.GetPuppetByURN(user.LIMemberURN)
	if p == nil {
		return nil
	}
	return p
}

func (user *User) GetRemoteID() string {
	return user.LIMemberURN.IDStr()
}

func (user *User) GetRemoteName() string {
	return ""
}

func (br *LinkedInBridge) loadUser(ctx context.Context, dbUser *database.User, mxid *id.UserID) *User {
	if dbUser == nil {
		if mxid == nil {
			return nil
		}
		dbUser = br.DB.User.New()
		dbUser.MXID = *mxid
		err := dbUser.Insert(ctx)
		if err != nil {
			br.ZLog.Err(err).Str("user_id", mxid.String()).Msg("Failed to insert new user")
			return nil
		}
	}

	user := br.NewUser(dbUser)
	br.usersByMXID[user.MXID] = user
	if !user.LIMemberURN.IsEmpty() {
		br.usersByMemberURN[user.LIMemberURN.IDStr()] = user
	}
	if user.NoticeRoom != "" {
		br.managementRoomsLock.Lock()
		br.managementRooms[user.NoticeRoom] = user
		br.managementRoomsLock.Unlock()
	}
	return user
}

func (br *LinkedInBridge) NewUser(dbUser *database.User) *User {
	user := &User{
		User:   dbUser,
		bridge: br,
		zlog:   br.ZLog.With().Str("user_id", dbUser.MXID.String()).Logger(),
	}
	user.PermissionLevel = br.Config.Bridge.Permissions.Get(user.MXID)
	user.BridgeState = br.NewBridgeStateQueue(user)
	return user
}

func (br *LinkedInBridge) getUserByMXID(userID id.UserID, onlyIfExists bool) *User {
	if userID == br.Bot.UserID || br.IsGhost(userID) {
		return nil
	}

	br.usersLock.Lock()
	defer br.usersLock.Unlock()

	user, ok := br.usersByMXID[userID]
	if !ok {
		ctx := context.TODO()
		dbUser, err := br.DB.User.GetByMXID(ctx, userID)
		if err != nil {
			br.ZLog.Err(err).Str("user_id", userID.String()).Msg("Failed to get user from database")
			return nil
		}
		mxidPtr := &userID
		if onlyIfExists {
			mxidPtr = nil
		}
		return br.loadUser(ctx, dbUser, mxidPtr)
	}
	return user
}

func (br *LinkedInBridge) GetUserByMXID(userID id.UserID) *User {
	return br.getUserByMXID(userID, false)
}

func (br *LinkedInBridge) GetUserByMXIDIfExists(userID id.UserID) *User {
	return br.getUserByMXID(userID, true)
}

func (br *LinkedInBridge) GetUserByMemberURN(urn linkedingo.URN) *User {
	if urn.IsEmpty() {
		return nil
	}

	br.usersLock.Lock()
	defer br.usersLock.Unlock()

	user, ok := br.usersByMemberURN[urn.IDStr()]
	if !ok {
		ctx := context.TODO()
		dbUser, err := br.DB.User.GetByMemberURN(ctx, urn)
		if err != nil {
			br.ZLog.Err(err).Str("li_member_urn", urn.IDStr()).Msg("Failed to get user from database")
			return nil
		}
		return br.loadUser(ctx, dbUser, nil)
	}
	return user
}

func (br *LinkedInBridge) getAllUsers() []*User {
	br.usersLock.Lock()
	defer br.usersLock.Unlock()

	ctx := context.TODO()
	dbUsers, err := br.DB.User.GetAllLoggedIn(ctx)
	if err != nil {
		br.ZLog.Err(err).Msg("Failed to get all logged in users")
		return nil
	}
	users := make([]*User, len(dbUsers))
	for idx, dbUser := range dbUsers {
		user, ok := br.usersByMXID[dbUser.MXID]
		if !ok {
			user = br.loadUser(ctx, dbUser, nil)
		}
		users[idx] = user
	}
	return users
}

func (br *LinkedInBridge) startUsers() {
	br.ZLog.Debug().Msg("Starting users")
	users := br.getAllUsers()
	for _, user := range users {
		go user.Connect()
	}
	if len(users) == 0 {
		br.SendGlobalBridgeState(status.BridgeState{StateEvent: status.StateUnconfigured}.Fill(nil))
	}

	br.ZLog.Debug().Msg("Starting custom puppets")
	for _, customPuppet := range br.GetAllPuppetsWithCustomMXID() {
		go func(puppet *Puppet) {
			br.ZLog.Debug().Str("custom_mxid", puppet.CustomMXID.String()).Msg("Starting custom puppet")
			if err := puppet.StartCustomMXID(true); err != nil {
				puppet.zlog.Err(err).Msg("Failed to start custom puppet")
			}
		}(customPuppet)
	}
}

func (user *User) SetManagementRoom(roomID id.RoomID) {
	user.bridge.managementRoomsLock.Lock()
	defer user.bridge.managementRoomsLock.Unlock()

	existing, ok := user.bridge.managementRooms[roomID]
	if ok {
		existing.NoticeRoom = ""
		err := existing.Update(context.TODO())
		if err != nil {
			existing.zlog.Err(err).Msg("Failed to clear old management room")
		}
	}

	user.NoticeRoom = roomID
	user.bridge.managementRooms[roomID] = user
	err := user.Update(context.TODO())
	if err != nil {
		user.zlog.Err(err).Msg("Failed to save management room")
	}
}

func (user *User) IsLoggedIn() bool {
	return user.Client != nil && user.Client.HasAuthCookies()
}

// Login authenticates with browser session cookies (and optionally the other
// headers captured alongside them), verifies them against the profile
// endpoint, and starts the realtime connection.
func (user *User) Login(ctx context.Context, cookies *linkedingo.Cookies, headers map[string]string) error {
	user.connLock.Lock()
	defer user.connLock.Unlock()

	if !cookies.HasAuthCookies() {
		return fmt.Errorf("missing li_at or JSESSIONID cookie")
	}

	client := linkedingo.NewClient(user.zlog.With().Str("component", "linkedin").Logger(), cookies, headers)
	profile, err := client.GetUserProfile(ctx)
	if err != nil {
		return fmt.Errorf("failed to get own profile: %w", err)
	} else if profile.MiniProfile == nil {
		return fmt.Errorf("profile response contained no mini profile")
	}

	user.unlockedDisconnect()
	user.Client = client
	user.LIMemberURN = profile.MiniProfile.EntityURN
	user.bridge.usersLock.Lock()
	user.bridge.usersByMemberURN[user.LIMemberURN.IDStr()] = user
	user.bridge.usersLock.Unlock()

	err = user.bridge.DB.Cookie.Put(ctx, user.MXID, cookies.Map())
	if err != nil {
		user.zlog.Err(err).Msg("Failed to save cookies")
	}
	err = user.bridge.DB.HTTPHeader.Put(ctx, user.MXID, headers)
	if err != nil {
		user.zlog.Err(err).Msg("Failed to save headers")
	}
	err = user.Update(ctx)
	if err != nil {
		user.zlog.Err(err).Msg("Failed to save user")
	}

	user.unlockedStartListen()
	go user.tryAutomaticDoublePuppeting()
	go user.SyncConversations(context.TODO())
	user.bridge.trackAnalytics(user, "$login_success", nil)
	return nil
}

// loadSession rebuilds the client from stored cookies. Returns false if there
// is no usable session.
func (user *User) loadSession(ctx context.Context) bool {
	if user.Client != nil {
		return true
	}
	cookieMap, err := user.bridge.DB.Cookie.GetAll(ctx, user.MXID)
	if err != nil {
		user.zlog.Err(err).Msg("Failed to load cookies")
		return false
	}
	headers, err := user.bridge.DB.HTTPHeader.GetAll(ctx, user.MXID)
	if err != nil {
		user.zlog.Err(err).Msg("Failed to load headers")
		return false
	}
	cookies := linkedingo.NewCookiesFromMap(cookieMap)
	if !cookies.HasAuthCookies() {
		return false
	}
	user.Client = linkedingo.NewClient(user.zlog.With().Str("component", "linkedin").Logger(), cookies, headers)
	return true
}

func (user *User) Connect() {
	user.connLock.Lock()
	defer user.connLock.Unlock()

	ctx := user.zlog.WithContext(context.TODO())
	if !user.loadSession(ctx) {
		user.BridgeState.Send(status.BridgeState{StateEvent: status.StateLoggedOut})
		return
	}
	user.BridgeState.Send(status.BridgeState{StateEvent: status.StateConnecting})

	// The profile endpoint doubles as the session liveness check. Transient
	// errors get an exponential backoff before giving up.
	backoff := 1 * time.Second
	for {
		_, err := user.Client.GetUserProfile(ctx)
		if err == nil {
			break
		}
		if linkedingo.IsAuthError(err) {
			user.zlog.Warn().Err(err).Msg("Invalid credentials while connecting")
			user.invalidateSession(ctx)
			return
		}
		if backoff > 64*time.Second {
			user.zlog.Err(err).Msg("Repeatedly failed to fetch own profile, giving up")
			user.BridgeState.Send(status.BridgeState{
				StateEvent: status.StateUnknownError,
				Error:      "li-connect-error",
				Message:    err.Error(),
			})
			return
		}
		user.zlog.Warn().Err(err).Dur("retry_in", backoff).Msg("Failed to fetch own profile, retrying")
		time.Sleep(backoff)
		backoff *= 2
	}

	user.unlockedStartListen()
	go user.tryAutomaticDoublePuppeting()
	go user.SyncConversations(context.TODO())
}

func (user *User) unlockedStartListen() {
	if user.stopListen != nil {
		user.stopListen()
	}
	ctx, cancel := context.WithCancel(context.Background())
	user.stopListen = cancel

	user.Client.AddEventListener(linkedingo.RealtimeEventMessage, user.handleRealtimeMessage)
	user.Client.AddEventListener(linkedingo.RealtimeEventReactionAdded, user.handleRealtimeReaction)
	user.Client.AddEventListener(linkedingo.RealtimeEventAction, user.handleRealtimeAction)
	user.Client.AddEventListener(linkedingo.RealtimeEventFromEntity, user.handleRealtimeFromEntity)
	user.Client.AddTimeoutListener(user.handleStreamTimeout)

	go user.listenLoop(ctx)
}

const maxListenFailures = 5

func (user *User) listenLoop(ctx context.Context) {
	log := user.zlog.With().Str("component", "listen_loop").Logger()
	for {
		start := time.Now()
		user.markConnected()
		err := user.Client.Listen(log.WithContext(ctx), user.LIMemberURN.WithPrefix(mentionURNPrefix))
		if ctx.Err() != nil {
			return
		}
		if linkedingo.IsAuthError(err) {
			log.Warn().Err(err).Msg("Got auth error from event stream")
			user.invalidateSession(context.TODO())
			return
		}
		if time.Since(start) > time.Minute {
			user.listenFailures = 0
		}
		user.listenFailures++
		if user.listenFailures >= maxListenFailures {
			log.Err(err).Msg("Event stream keeps failing, giving up")
			user.BridgeState.Send(status.BridgeState{
				StateEvent: status.StateUnknownError,
				Error:      "li-stream-error",
				Message:    err.Error(),
			})
			user.sendBridgeNotice(context.TODO(), "Failed to stay connected to LinkedIn, use `reconnect` to try again.")
			return
		}
		log.Warn().Err(err).Int("failures", user.listenFailures).Msg("Event stream failed, reconnecting")
		user.BridgeState.Send(status.BridgeState{StateEvent: status.StateTransientDisconnect})
		time.Sleep(time.Duration(user.listenFailures) * 2 * time.Second)
	}
}

func (user *User) markConnected() {
	user.connectedStateLock.Lock()
	defer user.connectedStateLock.Unlock()
	if time.Since(user.lastConnectedState) > connectedStateInterval {
		user.lastConnectedState = time.Now()
		user.BridgeState.Send(status.BridgeState{StateEvent: status.StateConnected})
	}
}

func (user *User) handleStreamTimeout(ctx context.Context, err error) {
	user.BridgeState.Send(status.BridgeState{StateEvent: status.StateTransientDisconnect})
	if user.bridge.Config.Bridge.TemporaryDisconnectNotices {
		user.sendBridgeNotice(ctx, "Disconnected from LinkedIn, reconnecting...")
	}
}

// invalidateSession handles the server rejecting our cookies: the session is
// torn down, but login data stays so the user can see what happened.
func (user *User) invalidateSession(ctx context.Context) {
	user.BridgeState.Send(status.BridgeState{StateEvent: status.StateBadCredentials, Error: "li-invalid-auth"})
	user.sendBridgeNotice(ctx, "Your LinkedIn session expired. Use `login` to log in again.")
	user.bridge.trackAnalytics(user, "$logged_out", nil)
	user.unlockedDisconnect()
}

func (user *User) unlockedDisconnect() {
	if user.stopListen != nil {
		user.stopListen()
		user.stopListen = nil
	}
	user.Client = nil
	user.listenFailures = 0
}

func (user *User) Disconnect() {
	user.connLock.Lock()
	defer user.connLock.Unlock()
	user.unlockedDisconnect()
}

// Logout logs out of LinkedIn server-side and wipes the stored session.
func (user *User) Logout(ctx context.Context) {
	user.connLock.Lock()
	defer user.connLock.Unlock()

	if user.Client != nil {
		err := user.Client.Logout(ctx)
		if err != nil {
			user.zlog.Warn().Err(err).Msg("Failed to log out of LinkedIn")
		}
	}
	user.unlockedDisconnect()

	if err := user.bridge.DB.Cookie.DeleteAll(ctx, user.MXID); err != nil {
		user.zlog.Err(err).Msg("Failed to delete cookies")
	}
	if err := user.bridge.DB.HTTPHeader.DeleteAll(ctx, user.MXID); err != nil {
		user.zlog.Err(err).Msg("Failed to delete headers")
	}

	puppet := user.bridge.GetPuppetByURN(user.LIMemberURN)
	if puppet != nil && puppet.CustomMXID != "" {
		puppet.ClearCustomMXID()
	}

	user.bridge.usersLock.Lock()
	delete(user.bridge.usersByMemberURN, user.LIMemberURN.IDStr())
	user.bridge.usersLock.Unlock()
	user.LIMemberURN = linkedingo.URN{}
	if err := user.Update(ctx); err != nil {
		user.zlog.Err(err).Msg("Failed to save user after logout")
	}
	user.BridgeState.Send(status.BridgeState{StateEvent: status.StateLoggedOut})
}

func (user *User) tryAutomaticDoublePuppeting() {
	if !user.bridge.Config.CanAutoDoublePuppet(user.MXID) {
		return
	}
	user.zlog.Debug().Msg("Checking if double puppeting needs to be enabled")
	puppet := user.bridge.GetPuppetByURN(user.LIMemberURN)
	if puppet == nil || puppet.CustomMXID != "" {
		return
	}
	accessToken, err := puppet.loginWithSharedSecret(user.MXID)
	if err != nil {
		user.zlog.Warn().Err(err).Msg("Failed to login with shared secret")
		return
	}
	err = puppet.SwitchCustomMXID(accessToken, user.MXID)
	if err != nil {
		puppet.zlog.Warn().Err(err).Msg("Failed to switch to auto-logined custom puppet")
		return
	}
	user.zlog.Info().Msg("Successfully automatically enabled custom puppet")
}

// SyncConversations pulls the most recently active conversations and creates
// or updates their portals. Calls within the throttle window are dropped.
func (user *User) SyncConversations(ctx context.Context) {
	user.syncLock.Lock()
	defer user.syncLock.Unlock()
	if time.Now().Before(user.nextSyncAt) {
		user.zlog.Debug().Msg("Skipping conversation sync, last one was too recent")
		return
	}
	user.nextSyncAt = time.Now().Add(syncThrottle)

	limit := user.bridge.Config.Bridge.InitialConversationSync
	if limit == 0 || user.Client == nil {
		return
	}
	ctx = user.zlog.WithContext(ctx)

	synced := 0
	err := user.Client.GetAllConversations(ctx, func(conv *linkedingo.Conversation) (bool, error) {
		portal := user.GetPortalByThreadURN(conv.EntityURN)
		portal.SyncWithConversation(ctx, user, conv)
		synced++
		return synced < limit, nil
	})
	if err != nil {
		user.zlog.Err(err).Msg("Failed to sync conversations")
		if linkedingo.IsAuthError(err) {
			user.invalidateSession(ctx)
		}
		return
	}
	user.zlog.Info().Int("count", synced).Msg("Synced conversations")
}

func (user *User) GetPortalByThreadURN(threadURN linkedingo.URN) *Portal {
	return user.bridge.GetPortalByThreadURN(database.NewPortalKey(threadURN, user.LIMemberURN))
}

func (user *User) handleRealtimeMessage(ctx context.Context, evt *linkedingo.RealTimeEvent) {
	if evt.Event == nil {
		return
	}
	threadURN, _, err := evt.Event.EntityURN.ThreadAndMessage()
	if err != nil {
		user.zlog.Warn().Err(err).Msg("Failed to parse event URN from realtime message")
		return
	}
	user.GetPortalByThreadURN(threadURN).queueLinkedInEvent(portalLinkedInEvent{user: user, evt: evt})
}

func (user *User) handleRealtimeReaction(ctx context.Context, evt *linkedingo.RealTimeEvent) {
	if evt.ReactionAdded == nil || evt.ReactionSummary == nil {
		return
	}
	threadURN, _, err := evt.EventURN.ThreadAndMessage()
	if err != nil {
		user.zlog.Warn().Err(err).Msg("Failed to parse event URN from realtime reaction")
		return
	}
	user.GetPortalByThreadURN(threadURN).queueLinkedInEvent(portalLinkedInEvent{user: user, evt: evt})
}

func (user *User) handleRealtimeAction(ctx context.Context, evt *linkedingo.RealTimeEvent) {
	conv, threadURN, err := evt.DecodeConversation()
	if err != nil {
		user.zlog.Warn().Err(err).Msg("Failed to decode conversation from realtime action")
		return
	} else if threadURN.IsEmpty() {
		return
	}
	portal := user.GetPortalByThreadURN(threadURN)
	portal.queueLinkedInEvent(portalLinkedInEvent{user: user, evt: evt, conversation: conv})
}

// handleRealtimeFromEntity dispatches fromEntity-keyed events, which are
// either seen receipts or typing indicators depending on the payload.
func (user *User) handleRealtimeFromEntity(ctx context.Context, evt *linkedingo.RealTimeEvent) {
	if evt.SeenReceipt != nil {
		threadURN, _, err := evt.SeenReceipt.EventURN.ThreadAndMessage()
		if err != nil {
			user.zlog.Warn().Err(err).Msg("Failed to parse event URN from seen receipt")
			return
		}
		user.GetPortalByThreadURN(threadURN).queueLinkedInEvent(portalLinkedInEvent{user: user, evt: evt})
		return
	}
	if evt.FromEntity.IsEmpty() {
		return
	}
	_, threadURN, err := evt.DecodeConversation()
	if err != nil {
		user.zlog.Warn().Err(err).Msg("Failed to decode conversation from typing indicator")
		return
	} else if threadURN.IsEmpty() {
		return
	}
	user.GetPortalByThreadURN(threadURN).queueLinkedInEvent(portalLinkedInEvent{user: user, evt: evt})
}

// handleReceiptEvent bridges the double puppet's read receipts to LinkedIn.
func (user *User) handleReceiptEvent(ctx context.Context, portal *Portal, evt *event.Event) {
	if portal == nil || !user.IsLoggedIn() {
		return
	}
	for _, receipts := range *evt.Content.AsReceipt() {
		if _, ok := receipts[event.ReceiptTypeRead][user.MXID]; ok {
			err := user.Client.MarkConversationRead(ctx, portal.ThreadURN)
			if err != nil {
				user.zlog.Warn().Err(err).Str("portal", portal.ThreadURN.IDStr()).
					Msg("Failed to bridge read receipt")
			}
			return
		}
	}
}

// handleTypingEvent bridges the double puppet's typing notifications.
func (user *User) handleTypingEvent(ctx context.Context, portal *Portal, evt *event.Event) {
	if portal == nil || !user.IsLoggedIn() {
		return
	}
	for _, userID := range evt.Content.AsTyping().UserIDs {
		if userID == user.MXID {
			err := user.Client.SetTyping(ctx, portal.ThreadURN)
			if err != nil {
				user.zlog.Warn().Err(err).Str("portal", portal.ThreadURN.IDStr()).
					Msg("Failed to bridge typing notification")
			}
			return
		}
	}
}

func (user *User) sendBridgeNotice(ctx context.Context, message string) {
	if user.NoticeRoom == "" {
		return
	}
	_, err := user.bridge.Bot.SendNotice(ctx, user.NoticeRoom, message)
	if err != nil {
		user.zlog.Warn().Err(err).Msg("Failed to send bridge notice")
	}
}

// GetSpaceRoom returns the user's personal filtering space, creating it on
// first use.
func (user *User) GetSpaceRoom(ctx context.Context) id.RoomID {
	if !user.bridge.Config.Bridge.PersonalFilteringSpaces {
		return ""
	}
	user.spaceCreateLock.Lock()
	defer user.spaceCreateLock.Unlock()
	if user.SpaceRoom != "" {
		return user.SpaceRoom
	}

	resp, err := user.bridge.Bot.CreateRoom(ctx, &mautrix.ReqCreateRoom{
		Visibility: "private",
		Name:       "LinkedIn",
		Topic:      "Your LinkedIn bridged chats",
		InitialState: []*event.Event{{
			Type: event.StateRoomAvatar,
			Content: event.Content{Parsed: &event.RoomAvatarEventContent{
				URL: user.bridge.Config.AppService.Bot.ParsedAvatar.CUString(),
			}},
		}},
		CreationContent: map[string]interface{}{
			"type": event.RoomTypeSpace,
		},
		PowerLevelOverride: &event.PowerLevelsEventContent{
			Users: map[id.UserID]int{
				user.bridge.Bot.UserID: 9001,
				user.MXID:              50,
			},
		},
	})
	if err != nil {
		user.zlog.Err(err).Msg("Failed to auto-create space room")
		return ""
	}
	user.SpaceRoom = resp.RoomID
	if err = user.Update(ctx); err != nil {
		user.zlog.Err(err).Msg("Failed to save space room")
	}
	user.ensureInvited(ctx, user.bridge.Bot, user.SpaceRoom, false)
	return user.SpaceRoom
}

func (user *User) addPortalToSpace(ctx context.Context, portal *Portal) {
	spaceRoom := user.GetSpaceRoom(ctx)
	if spaceRoom == "" || portal.MXID == "" || portal.InSpace {
		return
	}
	_, err := user.bridge.Bot.SendStateEvent(ctx, spaceRoom, event.StateSpaceChild, portal.MXID.String(), &event.SpaceChildEventContent{
		Via: []string{user.bridge.Config.Homeserver.Domain},
	})
	if err != nil {
		user.zlog.Err(err).Str("room_id", portal.MXID.String()).Msg("Failed to add portal to space")
	} else {
		portal.InSpace = true
	}
}

func (user *User) ensureInvited(ctx context.Context, intent *appservice.IntentAPI, roomID id.RoomID, isDirect bool) bool {
	if user.bridge.StateStore.IsMembership(ctx, roomID, user.MXID, event.MembershipJoin) {
		return true
	}
	extraContent := make(map[string]interface{})
	if isDirect {
		extraContent["is_direct"] = true
	}
	customPuppet := user.bridge.GetPuppetByCustomMXID(user.MXID)
	if customPuppet != nil && customPuppet.CustomIntent() != nil {
		extraContent["fi.mau.will_auto_accept"] = true
	}
	_, err := intent.InviteUser(ctx, roomID, &mautrix.ReqInviteUser{UserID: user.MXID}, extraContent)
	var httpErr mautrix.HTTPError
	if err != nil && errors.As(err, &httpErr) && httpErr.RespError != nil && httpErr.RespError.Err == "is already in the room" {
		user.bridge.StateStore.SetMembership(ctx, roomID, user.MXID, event.MembershipJoin)
		return true
	} else if err != nil {
		user.zlog.Warn().Err(err).Str("room_id", roomID.String()).Msg("Failed to invite user to room")
		return false
	}

	if customPuppet != nil && customPuppet.CustomIntent() != nil {
		err = customPuppet.CustomIntent().EnsureJoined(ctx, roomID, appservice.EnsureJoinedParams{IgnoreCache: true})
		if err != nil {
			user.zlog.Warn().Err(err).Str("room_id", roomID.String()).Msg("Failed to auto-join room")
			return false
		}
		return true
	}
	return false
}

// updateDirectChats merges the given chats into the m.direct account data of
// the double puppet. With nil chats, the whole list is rebuilt.
func (user *User) updateDirectChats(ctx context.Context, chats map[id.UserID][]id.RoomID) {
	if !user.bridge.Config.Bridge.SyncDirectChatList {
		return
	}
	puppet := user.bridge.GetPuppetByCustomMXID(user.MXID)
	if puppet == nil || puppet.CustomIntent() == nil {
		return
	}
	intent := puppet.CustomIntent()
	if chats == nil {
		chats = user.getDirectChats()
	}
	user.zlog.Debug().Msg("Updating m.direct list on homeserver")
	existingChats := make(map[id.UserID][]id.RoomID)
	err := intent.GetAccountData(ctx, event.AccountDataDirectChats.Type, &existingChats)
	if err != nil {
		user.zlog.Warn().Err(err).Msg("Failed to get m.direct account data")
		return
	}
	for userID, rooms := range existingChats {
		if _, ok := user.bridge.ParsePuppetMXID(userID); !ok {
			// This is not a ghost user, include it in the new list
			chats[userID] = rooms
		}
	}
	err = intent.SetAccountData(ctx, event.AccountDataDirectChats.Type, &chats)
	if err != nil {
		user.zlog.Warn().Err(err).Msg("Failed to update m.direct account data")
	}
}

func (user *User) getDirectChats() map[id.UserID][]id.RoomID {
	chats := make(map[id.UserID][]id.RoomID)
	for _, portal := range user.bridge.GetAllPortalsForUser(user.LIMemberURN) {
		if portal.IsPrivateChat() && portal.MXID != "" && !portal.LIOtherUserURN.IsEmpty() {
			puppetMXID := user.bridge.FormatPuppetMXID(portal.LIOtherUserURN)
			chats[puppetMXID] = append(chats[puppetMXID], portal.MXID)
		}
	}
	return chats
}

// updateChatMute syncs a LinkedIn-side mute to a Matrix push rule on the
// double puppet.
func (user *User) updateChatMute(ctx context.Context, portal *Portal, muted bool) {
	if !user.bridge.Config.Bridge.MuteBridging || portal.MXID == "" {
		return
	}
	puppet := user.bridge.GetPuppetByCustomMXID(user.MXID)
	if puppet == nil || puppet.CustomIntent() == nil {
		return
	}
	intent := puppet.CustomIntent()
	var err error
	if muted {
		err = intent.PutPushRule(ctx, "global", pushrules.RoomRule, string(portal.MXID), &mautrix.ReqPutPushRule{
			Actions: []pushrules.PushActionType{pushrules.ActionDontNotify},
		})
	} else {
		err = intent.DeletePushRule(ctx, "global", pushrules.RoomRule, string(portal.MXID))
		// The rule not existing is fine.
		if errors.Is(err, mautrix.MNotFound) {
			err = nil
		}
	}
	if err != nil {
		user.zlog.Warn().Err(err).Str("room_id", portal.MXID.String()).Msg("Failed to update mute status")
	}
}
