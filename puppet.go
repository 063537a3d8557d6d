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
	"regexp"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/appservice"
	"maunium.net/go/mautrix/bridge"
	"maunium.net/go/mautrix/id"

	"github.com/beeper/linkedin/database"
	"github.com/beeper/linkedin/pkg/linkedingo"
)

type Puppet struct {
	*database.Puppet

	bridge *LinkedInBridge
	zlog   zerolog.Logger

	MXID id.UserID

	customIntent *appservice.IntentAPI
	customUser   *User

	syncLock sync.Mutex
	lastSync time.Time
}

var _ bridge.Ghost = (*Puppet)(nil)
var _ bridge.GhostWithProfile = (*Puppet)(nil)

func (puppet *Puppet) GetMXID() id.UserID {
	return puppet.MXID
}

func (puppet *Puppet) GetDisplayname() string {
	return puppet.Name
}

func (puppet *Puppet) GetAvatarURL() id.ContentURI {
	return puppet.PhotoMXC
}

func (br *LinkedInBridge) loadPuppet(ctx context.Context, dbPuppet *database.Puppet, urn *linkedingo.URN) *Puppet {
	if dbPuppet == nil {
		if urn == nil {
			return nil
		}
		dbPuppet = br.DB.Puppet.New()
		dbPuppet.LIMemberURN = *urn
		err := dbPuppet.Insert(ctx)
		if err != nil {
			br.ZLog.Err(err).Str("li_member_urn", urn.IDStr()).Msg("Failed to insert new puppet")
			return nil
		}
	}

	puppet := br.newPuppet(dbPuppet)
	br.puppets[puppet.LIMemberURN.IDStr()] = puppet
	if puppet.CustomMXID != "" {
		br.puppetsByCustomMXID[puppet.CustomMXID] = puppet
	}
	return puppet
}

func (br *LinkedInBridge) newPuppet(dbPuppet *database.Puppet) *Puppet {
	log := br.ZLog.With().Str("li_member_urn", dbPuppet.LIMemberURN.IDStr()).Logger()
	return &Puppet{
		Puppet: dbPuppet,
		bridge: br,
		zlog:   log,
		MXID:   br.FormatPuppetMXID(dbPuppet.LIMemberURN),
	}
}

func (br *LinkedInBridge) FormatPuppetMXID(urn linkedingo.URN) id.UserID {
	return id.NewUserID(
		br.Config.Bridge.FormatUsername(urn.IDStr()),
		br.Config.Homeserver.Domain,
	)
}

var userIDRegex *regexp.Regexp

func (br *LinkedInBridge) ParsePuppetMXID(mxid id.UserID) (linkedingo.URN, bool) {
	if userIDRegex == nil {
		userIDRegex = br.Config.MakeUserIDRegex("([^/]+)")
	}

	match := userIDRegex.FindStringSubmatch(string(mxid))
	if len(match) == 2 {
		return linkedingo.NewURN(match[1]), true
	}

	return linkedingo.URN{}, false
}

func (br *LinkedInBridge) GetPuppetByMXID(mxid id.UserID) *Puppet {
	urn, ok := br.ParsePuppetMXID(mxid)
	if !ok {
		return nil
	}

	return br.GetPuppetByURN(urn)
}

func (br *LinkedInBridge) GetPuppetByURN(urn linkedingo.URN) *Puppet {
	if urn.IsEmpty() {
		return nil
	}
	br.puppetsLock.Lock()
	defer br.puppetsLock.Unlock()

	puppet, ok := br.puppets[urn.IDStr()]
	if !ok {
		ctx := context.TODO()
		dbPuppet, err := br.DB.Puppet.Get(ctx, urn)
		if err != nil {
			br.ZLog.Err(err).Str("li_member_urn", urn.IDStr()).Msg("Failed to get puppet from database")
			return nil
		}
		return br.loadPuppet(ctx, dbPuppet, &urn)
	}

	return puppet
}

func (br *LinkedInBridge) GetPuppetByCustomMXID(mxid id.UserID) *Puppet {
	br.puppetsLock.Lock()
	defer br.puppetsLock.Unlock()

	puppet, ok := br.puppetsByCustomMXID[mxid]
	if !ok {
		ctx := context.TODO()
		dbPuppet, err := br.DB.Puppet.GetByCustomMXID(ctx, mxid)
		if err != nil {
			br.ZLog.Err(err).Str("custom_mxid", mxid.String()).Msg("Failed to get puppet from database")
			return nil
		}
		return br.loadPuppet(ctx, dbPuppet, nil)
	}

	return puppet
}

func (br *LinkedInBridge) GetAllPuppetsWithCustomMXID() []*Puppet {
	return br.dbPuppetsToPuppets(br.DB.Puppet.GetAllWithCustomMXID(context.TODO()))
}

func (br *LinkedInBridge) dbPuppetsToPuppets(dbPuppets []*database.Puppet, err error) []*Puppet {
	if err != nil {
		br.ZLog.Err(err).Msg("Failed to load puppets")
		return nil
	}
	br.puppetsLock.Lock()
	defer br.puppetsLock.Unlock()

	output := make([]*Puppet, len(dbPuppets))
	ctx := context.TODO()
	for i, dbPuppet := range dbPuppets {
		puppet, ok := br.puppets[dbPuppet.LIMemberURN.IDStr()]
		if ok {
			output[i] = puppet
		} else {
			output[i] = br.loadPuppet(ctx, dbPuppet, nil)
		}
	}

	return output
}

func (puppet *Puppet) DefaultIntent() *appservice.IntentAPI {
	return puppet.bridge.AS.Intent(puppet.MXID)
}

func (puppet *Puppet) CustomIntent() *appservice.IntentAPI {
	return puppet.customIntent
}

func (puppet *Puppet) IntentFor(portal *Portal) *appservice.IntentAPI {
	if puppet.customIntent == nil {
		return puppet.DefaultIntent()
	}
	return puppet.customIntent
}

const minPuppetSyncInterval = 4 * time.Hour

func (puppet *Puppet) UpdateInfoIfNecessary(ctx context.Context, source *User, info *linkedingo.MiniProfile) {
	puppet.syncLock.Lock()
	defer puppet.syncLock.Unlock()
	if puppet.Name != "" && time.Since(puppet.lastSync) < minPuppetSyncInterval {
		return
	}
	puppet.unlockedUpdateInfo(ctx, source, info)
}

func (puppet *Puppet) UpdateInfo(ctx context.Context, source *User, info *linkedingo.MiniProfile) {
	puppet.syncLock.Lock()
	defer puppet.syncLock.Unlock()
	puppet.unlockedUpdateInfo(ctx, source, info)
}

func (puppet *Puppet) unlockedUpdateInfo(ctx context.Context, source *User, info *linkedingo.MiniProfile) {
	puppet.lastSync = time.Now()

	err := puppet.DefaultIntent().EnsureRegistered(ctx)
	if err != nil {
		puppet.zlog.Err(err).Msg("Failed to ensure registered")
	}

	if info == nil {
		// Member profiles only come in with conversation data, there's no
		// endpoint to look up an arbitrary member.
		return
	}

	changed := false
	newName := puppet.bridge.Config.Bridge.FormatDisplayname(info)
	changed = puppet.UpdateName(ctx, newName) || changed
	changed = puppet.UpdateAvatar(ctx, source, info.Picture) || changed
	changed = puppet.UpdateContactInfo(ctx) || changed

	if changed {
		err = puppet.Update(ctx)
		if err != nil {
			puppet.zlog.Err(err).Msg("Failed to save info to database")
		}
	}
}

func (puppet *Puppet) UpdateName(ctx context.Context, newName string) bool {
	if puppet.Name == newName && puppet.NameSet {
		return false
	}
	puppet.zlog.Debug().Str("old_name", puppet.Name).Str("new_name", newName).Msg("Updating displayname")
	puppet.Name = newName
	puppet.NameSet = false
	err := puppet.DefaultIntent().SetDisplayName(ctx, newName)
	if err != nil {
		puppet.zlog.Err(err).Msg("Failed to update displayname")
	} else {
		go puppet.updatePortalMeta(ctx, func(portal *Portal) {
			portal.UpdateNameFromPuppet(ctx, puppet)
		})
		puppet.NameSet = true
	}
	return true
}

func (puppet *Puppet) updatePortalMeta(ctx context.Context, meta func(portal *Portal)) {
	for _, portal := range puppet.bridge.FindPrivateChatPortalsWith(ctx, puppet.LIMemberURN) {
		// Get room create lock to prevent races between receiving profile info
		// and room creation.
		portal.roomCreateLock.Lock()
		meta(portal)
		portal.roomCreateLock.Unlock()
	}
}

var photoIDRegex = regexp.MustCompile(`https://.*?/image/(.*?)/(profile|spinmail)-`)

// photoIDFromPicture extracts the content id of a profile picture URL. The
// CDN host and URL parameters rotate, so only this segment identifies the
// image.
func photoIDFromPicture(picture *linkedingo.Picture) string {
	if picture == nil || picture.VectorImage == nil {
		return ""
	}
	vi := picture.VectorImage
	if match := photoIDRegex.FindStringSubmatch(vi.RootURL); match != nil {
		return match[1]
	}
	// InMail pictures have no root URL; the artifact path carries the full
	// URL instead.
	if len(vi.Artifacts) > 0 {
		if match := photoIDRegex.FindStringSubmatch(vi.Artifacts[0].FileIdentifyingURLPathSegment); match != nil {
			return match[1]
		}
	}
	return ""
}

func (puppet *Puppet) UpdateAvatar(ctx context.Context, source *User, picture *linkedingo.Picture) bool {
	photoID := photoIDFromPicture(picture)
	if puppet.PhotoID == photoID && puppet.AvatarSet {
		return false
	}
	avatarChanged := photoID != puppet.PhotoID
	puppet.PhotoID = photoID
	puppet.AvatarSet = false

	if puppet.PhotoID != "" && (puppet.PhotoMXC.IsEmpty() || avatarChanged) {
		data, err := source.Client.DownloadProfilePicture(ctx, picture)
		if err != nil {
			puppet.zlog.Err(err).Msg("Failed to download new avatar")
			return true
		}
		resp, err := puppet.DefaultIntent().UploadBytes(ctx, data, "image/jpeg")
		if err != nil {
			puppet.zlog.Err(err).Msg("Failed to reupload new avatar")
			return true
		}
		puppet.PhotoMXC = resp.ContentURI
	} else if puppet.PhotoID == "" {
		puppet.PhotoMXC = id.ContentURI{}
	}

	err := puppet.DefaultIntent().SetAvatarURL(ctx, puppet.PhotoMXC)
	if err != nil {
		puppet.zlog.Err(err).Msg("Failed to update avatar")
	} else {
		go puppet.updatePortalMeta(ctx, func(portal *Portal) {
			portal.UpdateAvatarFromPuppet(ctx, puppet)
		})
		puppet.AvatarSet = true
	}
	return true
}

func (puppet *Puppet) UpdateContactInfo(ctx context.Context) bool {
	if !puppet.bridge.SpecVersions.Supports(mautrix.BeeperFeatureArbitraryProfileMeta) || puppet.ContactInfoSet {
		return false
	}
	err := puppet.DefaultIntent().BeeperUpdateProfile(ctx, map[string]any{
		"com.beeper.bridge.remote_id": puppet.LIMemberURN.IDStr(),
		"com.beeper.bridge.service":   puppet.bridge.BeeperServiceName,
		"com.beeper.bridge.network":   puppet.bridge.BeeperNetworkName,
	})
	if err != nil {
		puppet.zlog.Err(err).Msg("Failed to store custom contact info in profile")
		return false
	}
	puppet.ContactInfoSet = true
	return true
}
