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
	"strings"

	"maunium.net/go/mautrix/bridge/bridgeconfig"
	"maunium.net/go/mautrix/bridge/commands"

	"github.com/beeper/linkedin/pkg/linkedingo"
)

var HelpSectionConnectionManagement = commands.HelpSection{Name: "Connection management", Order: 11}

var HelpSectionPortalManagement = commands.HelpSection{Name: "Portal management", Order: 20}

type WrappedCommandEvent struct {
	*commands.Event
	Bridge *LinkedInBridge
	User   *User
	Portal *Portal
}

func (br *LinkedInBridge) RegisterCommands() {
	proc := br.CommandProcessor.(*commands.Processor)
	proc.AddHandlers(
		cmdLogin,
		cmdLogout,
		cmdPing,
		cmdReconnect,
		cmdDisconnect,
		cmdSync,
		cmdSyncSpace,
		cmdSetNoticeRoom,
		cmdDeletePortal,
		cmdDeleteAllPortals,
		cmdLoginMatrix,
		cmdPingMatrix,
		cmdLogoutMatrix,
	)
}

func wrapCommand(handler func(*WrappedCommandEvent)) func(*commands.Event) {
	return func(ce *commands.Event) {
		user := ce.User.(*User)
		var portal *Portal
		if ce.Portal != nil {
			portal = ce.Portal.(*Portal)
		}
		br := ce.Bridge.Child.(*LinkedInBridge)
		handler(&WrappedCommandEvent{ce, br, user, portal})
	}
}

var cmdLogin = &commands.FullHandler{
	Func: wrapCommand(fnLogin),
	Name: "login",
	Help: commands.HelpMeta{
		Section:     commands.HelpSectionAuth,
		Description: "Link the bridge to your LinkedIn account.",
		Args:        "<cookie header>",
	},
}

func fnLogin(ce *WrappedCommandEvent) {
	if ce.User.IsLoggedIn() {
		ce.Reply("You're already logged in")
		return
	}
	if len(ce.Args) == 0 {
		ce.Reply("**Usage**: `$cmdprefix login <cookie header>`\n\n" +
			"Copy the `Cookie` request header of a logged-in linkedin.com browser " +
			"session (it must contain at least `li_at` and `JSESSIONID`) and paste " +
			"it after the command.")
		return
	}

	cookies := linkedingo.NewCookiesFromString(ce.RawArgs)
	if !cookies.HasAuthCookies() {
		ce.Reply("Couldn't find the `li_at` and `JSESSIONID` cookies in that header")
		return
	}
	ce.Redact()

	err := ce.User.Login(ce.Ctx, cookies, nil)
	if err != nil {
		ce.Reply("Failed to log in: %v", err)
		return
	}
	ce.Reply("Successfully logged in as %s", ce.User.LIMemberURN.IDStr())
}

var cmdLogout = &commands.FullHandler{
	Func: wrapCommand(fnLogout),
	Name: "logout",
	Help: commands.HelpMeta{
		Section:     commands.HelpSectionAuth,
		Description: "Unlink the bridge from your LinkedIn account.",
	},
	RequiresLogin: true,
}

func fnLogout(ce *WrappedCommandEvent) {
	ce.User.Logout(ce.Ctx)
	ce.Reply("Logged out successfully")
}

var cmdPing = &commands.FullHandler{
	Func:    wrapCommand(fnPing),
	Name:    "ping",
	Aliases: []string{"whoami"},
	Help: commands.HelpMeta{
		Section:     commands.HelpSectionAuth,
		Description: "Check which LinkedIn account you're logged in as.",
	},
}

func fnPing(ce *WrappedCommandEvent) {
	if !ce.User.IsLoggedIn() {
		ce.Reply("You're not logged in")
		return
	}
	resp, err := ce.User.Client.GetUserProfile(ce.Ctx)
	if err != nil {
		ce.Reply("Failed to fetch profile: %v", err)
		return
	}
	name := strings.TrimSpace(fmt.Sprintf("%s %s", resp.MiniProfile.FirstName, resp.MiniProfile.LastName))
	ce.Reply("You're logged in as %s (`%s`)", name, ce.User.LIMemberURN.IDStr())
}

var cmdReconnect = &commands.FullHandler{
	Func:    wrapCommand(fnReconnect),
	Name:    "reconnect",
	Aliases: []string{"connect"},
	Help: commands.HelpMeta{
		Section:     HelpSectionConnectionManagement,
		Description: "Reconnect to the LinkedIn realtime event stream.",
	},
}

func fnReconnect(ce *WrappedCommandEvent) {
	ce.User.Disconnect()
	go ce.User.Connect()
	ce.Reply("Restarted connection to LinkedIn")
}

var cmdDisconnect = &commands.FullHandler{
	Func: wrapCommand(fnDisconnect),
	Name: "disconnect",
	Help: commands.HelpMeta{
		Section:     HelpSectionConnectionManagement,
		Description: "Disconnect from the LinkedIn realtime event stream without logging out.",
	},
	RequiresLogin: true,
}

func fnDisconnect(ce *WrappedCommandEvent) {
	ce.User.Disconnect()
	ce.Reply("Disconnected from LinkedIn")
}

var cmdSync = &commands.FullHandler{
	Func: wrapCommand(fnSync),
	Name: "sync",
	Help: commands.HelpMeta{
		Section:     commands.HelpSectionGeneral,
		Description: "Synchronize your conversation list from LinkedIn.",
	},
	RequiresLogin: true,
}

func fnSync(ce *WrappedCommandEvent) {
	ce.User.SyncConversations(ce.Ctx)
	ce.Reply("Synchronized conversations")
}

var cmdSyncSpace = &commands.FullHandler{
	Func: wrapCommand(fnSyncSpace),
	Name: "sync-space",
	Help: commands.HelpMeta{
		Section:     commands.HelpSectionGeneral,
		Description: "Add all of your portal rooms to your personal filtering space.",
	},
	RequiresLogin: true,
}

func fnSyncSpace(ce *WrappedCommandEvent) {
	if !ce.Bridge.Config.Bridge.PersonalFilteringSpaces {
		ce.Reply("Personal filtering spaces are not enabled on this instance of the bridge")
		return
	}
	count := 0
	for _, portal := range ce.Bridge.GetAllPortalsForUser(ce.User.LIMemberURN) {
		if portal.MXID == "" || portal.InSpace {
			continue
		}
		ce.User.addPortalToSpace(ce.Ctx, portal)
		if portal.InSpace {
			if err := portal.Update(ce.Ctx); err != nil {
				ce.ZLog.Err(err).Msg("Failed to save portal after space sync")
			}
			count++
		}
	}
	ce.Reply("Added %d portals to your personal filtering space", count)
}

var cmdSetNoticeRoom = &commands.FullHandler{
	Func:    wrapCommand(fnSetNoticeRoom),
	Name:    "set-notice-room",
	Aliases: []string{"set-management-room"},
	Help: commands.HelpMeta{
		Section:     commands.HelpSectionGeneral,
		Description: "Mark this room as your bridge notice room.",
	},
}

func fnSetNoticeRoom(ce *WrappedCommandEvent) {
	ce.User.SetManagementRoom(ce.RoomID)
	ce.Reply("This room has been registered as your bridge notice room")
}

var cmdDeletePortal = &commands.FullHandler{
	Func: wrapCommand(fnDeletePortal),
	Name: "delete-portal",
	Help: commands.HelpMeta{
		Section:     HelpSectionPortalManagement,
		Description: "Delete the current portal room.",
	},
	RequiresPortal: true,
}

func fnDeletePortal(ce *WrappedCommandEvent) {
	if ce.User.PermissionLevel < bridgeconfig.PermissionLevelAdmin && !ce.Portal.Receiver.Equals(ce.User.LIMemberURN) {
		ce.Reply("Only the bridge admin or the portal owner can delete this portal")
		return
	}
	ce.Portal.Cleanup(ce.Ctx, false)
	ce.Portal.Delete(ce.Ctx)
	ce.Bridge.ZLog.Info().
		Str("room_id", ce.RoomID.String()).
		Str("user_id", ce.User.MXID.String()).
		Msg("Deleted portal at user's request")
}

var cmdDeleteAllPortals = &commands.FullHandler{
	Func: wrapCommand(fnDeleteAllPortals),
	Name: "delete-all-portals",
	Help: commands.HelpMeta{
		Section:     HelpSectionPortalManagement,
		Description: "Delete all your portal rooms.",
	},
	RequiresLogin: true,
}

func fnDeleteAllPortals(ce *WrappedCommandEvent) {
	var portals []*Portal
	if ce.User.PermissionLevel >= bridgeconfig.PermissionLevelAdmin {
		portals = ce.Bridge.GetAllPortalsWithMXID()
	} else {
		portals = ce.Bridge.GetAllPortalsForUser(ce.User.LIMemberURN)
	}
	if len(portals) == 0 {
		ce.Reply("You don't have any portals")
		return
	}
	ce.Reply("Deleting %d portals", len(portals))
	for _, portal := range portals {
		portal.Cleanup(ce.Ctx, false)
		portal.Delete(ce.Ctx)
	}
	ce.Reply("Finished deleting portals")
}

var cmdLoginMatrix = &commands.FullHandler{
	Func: wrapCommand(fnLoginMatrix),
	Name: "login-matrix",
	Help: commands.HelpMeta{
		Section:     commands.HelpSectionAuth,
		Description: "Enable double puppeting with a Matrix access token.",
		Args:        "<access token>",
	},
	RequiresLogin: true,
}

func fnLoginMatrix(ce *WrappedCommandEvent) {
	if len(ce.Args) != 1 {
		ce.Reply("**Usage**: `$cmdprefix login-matrix <access token>`")
		return
	}
	puppet := ce.Bridge.GetPuppetByURN(ce.User.LIMemberURN)
	if puppet == nil {
		ce.Reply("Couldn't find your LinkedIn ghost")
		return
	}
	err := puppet.SwitchCustomMXID(ce.Args[0], ce.User.MXID)
	if err != nil {
		ce.Reply("Failed to enable double puppeting: %v", err)
		return
	}
	ce.Reply("Successfully enabled double puppeting")
}

var cmdPingMatrix = &commands.FullHandler{
	Func: wrapCommand(fnPingMatrix),
	Name: "ping-matrix",
	Help: commands.HelpMeta{
		Section:     commands.HelpSectionAuth,
		Description: "Check the status of your double puppet.",
	},
	RequiresLogin: true,
}

func fnPingMatrix(ce *WrappedCommandEvent) {
	puppet := ce.Bridge.GetPuppetByCustomMXID(ce.User.MXID)
	if puppet == nil || puppet.CustomIntent() == nil {
		ce.Reply("You don't have double puppeting enabled")
		return
	}
	resp, err := puppet.CustomIntent().Whoami(ce.Ctx)
	if err != nil {
		ce.Reply("Failed to validate Matrix access token: %v", err)
		return
	}
	ce.Reply("Your double puppet is working as %s", resp.UserID)
}

var cmdLogoutMatrix = &commands.FullHandler{
	Func: wrapCommand(fnLogoutMatrix),
	Name: "logout-matrix",
	Help: commands.HelpMeta{
		Section:     commands.HelpSectionAuth,
		Description: "Disable double puppeting.",
	},
	RequiresLogin: true,
}

func fnLogoutMatrix(ce *WrappedCommandEvent) {
	puppet := ce.Bridge.GetPuppetByCustomMXID(ce.User.MXID)
	if puppet == nil || puppet.CustomIntent() == nil {
		ce.Reply("You don't have double puppeting enabled")
		return
	}
	puppet.ClearCustomMXID()
	ce.Reply("Successfully disabled double puppeting")
}
