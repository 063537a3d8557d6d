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
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/appservice"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

var (
	ErrNoCustomMXID    = errors.New("no custom mxid set")
	ErrMismatchingMXID = errors.New("whoami result does not match custom mxid")
)

func (br *LinkedInBridge) newDoublePuppetClient(mxid id.UserID, accessToken string) (*mautrix.Client, error) {
	_, homeserver, err := mxid.Parse()
	if err != nil {
		return nil, err
	}

	homeserverURL, found := br.Config.Bridge.DoublePuppetConfig.ServerMap[homeserver]
	if !found {
		if homeserver == br.AS.HomeserverDomain {
			homeserverURL = ""
		} else if br.Config.Bridge.DoublePuppetConfig.AllowDiscovery {
			resp, err := mautrix.DiscoverClientAPI(context.TODO(), homeserver)
			if err != nil {
				return nil, err
			}
			homeserverURL = resp.Homeserver.BaseURL
			br.ZLog.Debug().
				Str("homeserver", homeserver).
				Str("url", homeserverURL).
				Str("user_id", mxid.String()).
				Msg("Discovered homeserver URL to enable double puppeting")
		} else {
			return nil, errors.New("double puppeting from other homeservers is not allowed")
		}
	}

	return br.AS.NewExternalMautrixClient(mxid, accessToken, homeserverURL)
}

func (puppet *Puppet) newCustomIntent() (*appservice.IntentAPI, error) {
	if puppet.CustomMXID == "" {
		return nil, ErrNoCustomMXID
	}

	client, err := puppet.bridge.newDoublePuppetClient(puppet.CustomMXID, puppet.AccessToken)
	if err != nil {
		return nil, err
	}
	client.Syncer = puppet
	client.Store = puppet

	ia := puppet.bridge.AS.NewIntentAPI("custom")
	ia.Client = client
	ia.Localpart, _, _ = puppet.CustomMXID.Parse()
	ia.UserID = puppet.CustomMXID
	ia.IsCustomPuppet = true
	return ia, nil
}

func (puppet *Puppet) clearCustomMXID() {
	save := puppet.CustomMXID != "" || puppet.AccessToken != ""
	puppet.bridge.puppetsLock.Lock()
	if puppet.CustomMXID != "" && puppet.bridge.puppetsByCustomMXID[puppet.CustomMXID] == puppet {
		delete(puppet.bridge.puppetsByCustomMXID, puppet.CustomMXID)
	}
	puppet.bridge.puppetsLock.Unlock()
	puppet.CustomMXID = ""
	puppet.AccessToken = ""
	puppet.customIntent = nil
	puppet.customUser = nil
	if save {
		err := puppet.Update(context.TODO())
		if err != nil {
			puppet.zlog.Err(err).Msg("Failed to clear custom MXID")
		}
	}
}

func (puppet *Puppet) StartCustomMXID(reloginOnFail bool) error {
	newIntent, err := puppet.newCustomIntent()
	if err != nil {
		puppet.clearCustomMXID()
		return err
	}

	resp, err := newIntent.Whoami(context.TODO())
	if err != nil {
		if !reloginOnFail || (errors.Is(err, mautrix.MUnknownToken) && !puppet.tryRelogin(err, "initializing double puppeting")) {
			puppet.clearCustomMXID()
			return err
		}

		newIntent.AccessToken = puppet.AccessToken
	} else if resp.UserID != puppet.CustomMXID {
		puppet.clearCustomMXID()
		return ErrMismatchingMXID
	}

	puppet.customIntent = newIntent
	puppet.customUser = puppet.bridge.GetUserByMXID(puppet.CustomMXID)
	puppet.startSyncing()
	return nil
}

func (puppet *Puppet) startSyncing() {
	if !puppet.bridge.Config.Bridge.SyncDirectChatList {
		return
	}

	go func() {
		puppet.zlog.Debug().Msg("Starting syncing...")
		puppet.customIntent.SyncPresence = event.PresenceOffline
		err := puppet.customIntent.Sync()
		if err != nil {
			puppet.zlog.Err(err).Msg("Fatal error syncing")
		}
	}()
}

func (puppet *Puppet) stopSyncing() {
	if !puppet.bridge.Config.Bridge.SyncDirectChatList {
		return
	}

	puppet.customIntent.StopSync()
}

func (puppet *Puppet) SwitchCustomMXID(accessToken string, mxid id.UserID) error {
	prevCustomMXID := puppet.CustomMXID
	if puppet.customIntent != nil {
		puppet.stopSyncing()
	}

	puppet.CustomMXID = mxid
	puppet.AccessToken = accessToken

	err := puppet.StartCustomMXID(false)
	if err != nil {
		return err
	}

	if prevCustomMXID != "" {
		puppet.bridge.puppetsLock.Lock()
		delete(puppet.bridge.puppetsByCustomMXID, prevCustomMXID)
		puppet.bridge.puppetsLock.Unlock()
	}
	if puppet.CustomMXID != "" {
		puppet.bridge.puppetsLock.Lock()
		puppet.bridge.puppetsByCustomMXID[puppet.CustomMXID] = puppet
		puppet.bridge.puppetsLock.Unlock()
	}
	err = puppet.Update(context.TODO())
	if err != nil {
		puppet.zlog.Err(err).Msg("Failed to save custom MXID")
	}
	return nil
}

func (puppet *Puppet) ClearCustomMXID() {
	if puppet.customIntent != nil {
		puppet.stopSyncing()
	}
	puppet.clearCustomMXID()
}

func (puppet *Puppet) tryRelogin(cause error, action string) bool {
	if !puppet.bridge.Config.CanAutoDoublePuppet(puppet.CustomMXID) {
		return false
	}
	puppet.zlog.Debug().
		AnErr("cause_error", cause).
		Str("while_action", action).
		Msg("Trying to relogin")
	accessToken, err := puppet.loginWithSharedSecret(puppet.CustomMXID)
	if err != nil {
		puppet.zlog.Err(err).Msg("Failed to relogin")
		return false
	}
	puppet.zlog.Info().Msg("Successfully relogined")
	puppet.AccessToken = accessToken
	err = puppet.Update(context.TODO())
	if err != nil {
		puppet.zlog.Err(err).Msg("Failed to save access token after relogin")
	}
	return true
}

func (puppet *Puppet) loginWithSharedSecret(mxid id.UserID) (string, error) {
	_, homeserver, _ := mxid.Parse()
	puppet.zlog.Debug().Str("user_id", mxid.String()).Msg("Logging in with shared secret")
	loginSecret := puppet.bridge.Config.Bridge.DoublePuppetConfig.SharedSecretMap[homeserver]
	client, err := puppet.bridge.newDoublePuppetClient(mxid, "")
	if err != nil {
		return "", err
	}
	req := mautrix.ReqLogin{
		Identifier:               mautrix.UserIdentifier{Type: mautrix.IdentifierTypeUser, User: string(mxid)},
		DeviceID:                 "LinkedIn Bridge",
		InitialDeviceDisplayName: "LinkedIn Bridge",
	}
	if loginSecret == "appservice" {
		client.AccessToken = puppet.bridge.AS.Registration.AppToken
		req.Type = mautrix.AuthTypeAppservice
	} else {
		mac := hmac.New(sha512.New, []byte(loginSecret))
		mac.Write([]byte(mxid))
		req.Password = hex.EncodeToString(mac.Sum(nil))
		req.Type = mautrix.AuthTypePassword
	}
	resp, err := client.Login(context.TODO(), &req)
	if err != nil {
		return "", err
	}
	return resp.AccessToken, nil
}

var _ mautrix.Syncer = (*Puppet)(nil)

func (puppet *Puppet) GetFilterJSON(_ id.UserID) *mautrix.Filter {
	everything := []event.Type{{Type: "*"}}
	return &mautrix.Filter{
		Presence: mautrix.FilterPart{
			Senders: []id.UserID{puppet.CustomMXID},
			Types:   []event.Type{event.EphemeralEventPresence},
		},
		AccountData: mautrix.FilterPart{NotTypes: everything},
		Room: mautrix.RoomFilter{
			Ephemeral:    mautrix.FilterPart{NotTypes: everything},
			IncludeLeave: false,
			AccountData:  mautrix.FilterPart{NotTypes: everything},
			State:        mautrix.FilterPart{NotTypes: everything},
			Timeline:     mautrix.FilterPart{NotTypes: everything},
		},
	}
}

func (puppet *Puppet) OnFailedSync(_ *mautrix.RespSync, err error) (time.Duration, error) {
	puppet.zlog.Err(err).Msg("Sync error")
	if errors.Is(err, mautrix.MUnknownToken) {
		if !puppet.tryRelogin(err, "syncing") {
			return 0, err
		}
		puppet.customIntent.AccessToken = puppet.AccessToken
		return 0, nil
	}
	return 10 * time.Second, nil
}

func (puppet *Puppet) ProcessResponse(ctx context.Context, resp *mautrix.RespSync, _ string) error {
	if puppet.customUser == nil || !puppet.customUser.IsLoggedIn() {
		return nil
	}

	for roomID, events := range resp.Rooms.Join {
		for _, evt := range events.Ephemeral.Events {
			evt.RoomID = roomID
			err := evt.Content.ParseRaw(evt.Type)
			if err != nil {
				continue
			}
			switch evt.Type {
			case event.EphemeralEventReceipt:
				go puppet.customUser.handleReceiptEvent(ctx, puppet.bridge.GetPortalByMXID(roomID), evt)
			case event.EphemeralEventTyping:
				go puppet.customUser.handleTypingEvent(ctx, puppet.bridge.GetPortalByMXID(roomID), evt)
			}
		}
	}

	return nil
}

var _ mautrix.SyncStore = (*Puppet)(nil)

func (puppet *Puppet) SaveFilterID(_ context.Context, _ id.UserID, _ string) error { return nil }

func (puppet *Puppet) SaveNextBatch(ctx context.Context, _ id.UserID, nbt string) error {
	puppet.NextBatch = nbt
	return puppet.Update(ctx)
}

func (puppet *Puppet) LoadFilterID(_ context.Context, _ id.UserID) (string, error) { return "", nil }

func (puppet *Puppet) LoadNextBatch(_ context.Context, _ id.UserID) (string, error) {
	return puppet.NextBatch, nil
}
