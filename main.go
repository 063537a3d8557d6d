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
	_ "embed"
	"sync"

	"go.mau.fi/util/configupgrade"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/bridge"
	"maunium.net/go/mautrix/bridge/commands"
	"maunium.net/go/mautrix/id"

	"github.com/beeper/linkedin/config"
	"github.com/beeper/linkedin/database"
)

// Information to find out exactly which commit the bridge was built from.
// These are filled at build time with the -X linker flag.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

//go:embed example-config.yaml
var ExampleConfig string

type LinkedInBridge struct {
	bridge.Bridge

	Config *config.Config
	DB     *database.Database

	provisioning *ProvisioningAPI

	usersByMXID      map[id.UserID]*User
	usersByMemberURN map[string]*User
	usersLock        sync.Mutex

	managementRooms     map[id.RoomID]*User
	managementRoomsLock sync.Mutex

	portalsByMXID map[id.RoomID]*Portal
	portalsByKey  map[portalMapKey]*Portal
	portalsLock   sync.Mutex

	puppets             map[string]*Puppet
	puppetsByCustomMXID map[id.UserID]*Puppet
	puppetsLock         sync.Mutex
}

// portalMapKey is the comparable form of database.PortalKey for cache maps.
type portalMapKey struct {
	ThreadID   string
	ReceiverID string
}

func newPortalMapKey(key database.PortalKey) portalMapKey {
	return portalMapKey{
		ThreadID:   key.ThreadURN.IDStr(),
		ReceiverID: key.Receiver.IDStr(),
	}
}

func (br *LinkedInBridge) GetExampleConfig() string {
	return ExampleConfig
}

func (br *LinkedInBridge) GetConfigPtr() interface{} {
	br.Config = &config.Config{
		BaseConfig: &br.Bridge.Config,
	}
	br.Config.BaseConfig.Bridge = &br.Config.Bridge
	return br.Config
}

func (br *LinkedInBridge) Init() {
	br.CommandProcessor = commands.NewProcessor(&br.Bridge)
	br.RegisterCommands()

	br.DB = database.New(br.Bridge.DB)
}

func (br *LinkedInBridge) Start() {
	if br.Config.Bridge.Provisioning.SharedSecret != "disable" {
		br.provisioning = newProvisioningAPI(br)
	}

	go br.startUsers()
}

func (br *LinkedInBridge) Stop() {
	br.usersLock.Lock()
	defer br.usersLock.Unlock()
	for _, user := range br.usersByMXID {
		br.ZLog.Debug().Str("user_id", user.MXID.String()).Msg("Disconnecting user")
		user.Disconnect()
	}
}

func (br *LinkedInBridge) GetIPortal(mxid id.RoomID) bridge.Portal {
	p := br.GetPortalByMXID(mxid)
	if p == nil {
		return nil
	}
	return p
}

func (br *LinkedInBridge) GetAllIPortals() []bridge.Portal {
	portals := br.GetAllPortalsWithMXID()
	iportals := make([]bridge.Portal, len(portals))
	for i, portal := range portals {
		iportals[i] = portal
	}
	return iportals
}

func (br *LinkedInBridge) GetIUser(mxid id.UserID, create bool) bridge.User {
	p := br.getUserByMXID(mxid, !create)
	if p == nil {
		return nil
	}
	return p
}

func (br *LinkedInBridge) IsGhost(mxid id.UserID) bool {
	_, isGhost := br.ParsePuppetMXID(mxid)
	return isGhost
}

func (br *LinkedInBridge) GetIGhost(mxid id.UserID) bridge.Ghost {
	p := br.GetPuppetByMXID(mxid)
	if p == nil {
		return nil
	}
	return p
}

func (br *LinkedInBridge) CreatePrivatePortal(roomID id.RoomID, brUser bridge.User, brGhost bridge.Ghost) {
	// LinkedIn can't start chats with arbitrary members, so invites to ghosts
	// are rejected.
	user := brUser.(*User)
	ghost := brGhost.(*Puppet)
	_, _ = ghost.DefaultIntent().LeaveRoom(context.TODO(), roomID, &mautrix.ReqLeave{
		Reason: "LinkedIn conversations can only be started from the LinkedIn side",
	})
	br.ZLog.Debug().
		Str("user_id", user.MXID.String()).
		Str("room_id", roomID.String()).
		Msg("Rejected private chat invite to ghost")
}

func main() {
	br := &LinkedInBridge{
		usersByMXID:      make(map[id.UserID]*User),
		usersByMemberURN: make(map[string]*User),

		managementRooms: make(map[id.RoomID]*User),

		portalsByMXID: make(map[id.RoomID]*Portal),
		portalsByKey:  make(map[portalMapKey]*Portal),

		puppets:             make(map[string]*Puppet),
		puppetsByCustomMXID: make(map[id.UserID]*Puppet),
	}
	br.Bridge = bridge.Bridge{
		Name:              "linkedin-matrix",
		URL:               "https://github.com/beeper/linkedin",
		Description:       "A Matrix-LinkedIn puppeting bridge.",
		Version:           "0.6.0",
		ProtocolName:      "LinkedIn",
		BeeperServiceName: "linkedin",
		BeeperNetworkName: "linkedin",

		CryptoPickleKey: "github.com/beeper/linkedin",

		ConfigUpgrader: &configupgrade.StructUpgrader{
			SimpleUpgrader: configupgrade.SimpleUpgrader(config.DoUpgrade),
			Blocks:         config.SpacedBlocks,
			Base:           ExampleConfig,
		},

		Child: br,
	}
	br.InitVersion(Tag, Commit, BuildTime)

	br.Main()
}
