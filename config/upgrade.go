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

package config

import (
	"go.mau.fi/util/configupgrade"
	"go.mau.fi/util/random"
	"maunium.net/go/mautrix/bridge/bridgeconfig"
)

func DoUpgrade(helper configupgrade.Helper) {
	bridgeconfig.Upgrader.DoUpgrade(helper)

	helper.Copy(configupgrade.Str|configupgrade.Null, "analytics", "token")
	helper.Copy(configupgrade.Str|configupgrade.Null, "analytics", "url")
	helper.Copy(configupgrade.Str|configupgrade.Null, "analytics", "user_id")

	helper.Copy(configupgrade.Str, "bridge", "username_template")
	helper.Copy(configupgrade.Str, "bridge", "displayname_template")
	helper.Copy(configupgrade.Bool, "bridge", "private_chat_portal_meta")
	helper.Copy(configupgrade.Bool, "bridge", "set_topic_on_dms")
	helper.Copy(configupgrade.Str, "bridge", "command_prefix")
	helper.Copy(configupgrade.Bool, "bridge", "personal_filtering_spaces")
	helper.Copy(configupgrade.Int, "bridge", "initial_conversation_sync")
	helper.Copy(configupgrade.Bool, "bridge", "delivery_receipts")
	helper.Copy(configupgrade.Bool, "bridge", "message_status_events")
	helper.Copy(configupgrade.Bool, "bridge", "message_error_notices")
	helper.Copy(configupgrade.Bool, "bridge", "resend_bridge_info")
	helper.Copy(configupgrade.Bool, "bridge", "mute_bridging")
	helper.Copy(configupgrade.Bool, "bridge", "temporary_disconnect_notices")
	helper.Copy(configupgrade.Bool, "bridge", "sync_direct_chat_list")
	helper.Copy(configupgrade.Bool, "bridge", "federate_rooms")
	helper.Copy(configupgrade.Str, "bridge", "management_room_text", "welcome")
	helper.Copy(configupgrade.Str, "bridge", "management_room_text", "welcome_connected")
	helper.Copy(configupgrade.Str, "bridge", "management_room_text", "welcome_unconnected")
	helper.Copy(configupgrade.Str|configupgrade.Null, "bridge", "management_room_text", "additional_help")
	helper.Copy(configupgrade.Int, "bridge", "portal_message_buffer")
	helper.Copy(configupgrade.Map, "bridge", "double_puppet_server_map")
	helper.Copy(configupgrade.Bool, "bridge", "double_puppet_allow_discovery")
	helper.Copy(configupgrade.Map, "bridge", "login_shared_secret_map")
	helper.Copy(configupgrade.Bool, "bridge", "encryption", "allow")
	helper.Copy(configupgrade.Bool, "bridge", "encryption", "default")
	helper.Copy(configupgrade.Bool, "bridge", "encryption", "require")
	helper.Copy(configupgrade.Bool, "bridge", "encryption", "appservice")
	helper.Copy(configupgrade.Bool, "bridge", "encryption", "plaintext_mentions")
	helper.Copy(configupgrade.Bool, "bridge", "encryption", "delete_keys", "delete_outbound_on_ack")
	helper.Copy(configupgrade.Bool, "bridge", "encryption", "delete_keys", "dont_store_outbound")
	helper.Copy(configupgrade.Bool, "bridge", "encryption", "delete_keys", "ratchet_on_decrypt")
	helper.Copy(configupgrade.Bool, "bridge", "encryption", "delete_keys", "delete_fully_used_on_decrypt")
	helper.Copy(configupgrade.Bool, "bridge", "encryption", "delete_keys", "delete_prev_on_new_session")
	helper.Copy(configupgrade.Bool, "bridge", "encryption", "delete_keys", "delete_on_device_delete")
	helper.Copy(configupgrade.Bool, "bridge", "encryption", "delete_keys", "periodically_delete_expired")
	helper.Copy(configupgrade.Bool, "bridge", "encryption", "delete_keys", "delete_outdated_inbound")
	helper.Copy(configupgrade.Str, "bridge", "encryption", "verification_levels", "receive")
	helper.Copy(configupgrade.Str, "bridge", "encryption", "verification_levels", "send")
	helper.Copy(configupgrade.Str, "bridge", "encryption", "verification_levels", "share")
	helper.Copy(configupgrade.Bool, "bridge", "encryption", "rotation", "enable_custom")
	helper.Copy(configupgrade.Int, "bridge", "encryption", "rotation", "milliseconds")
	helper.Copy(configupgrade.Int, "bridge", "encryption", "rotation", "messages")
	helper.Copy(configupgrade.Bool, "bridge", "encryption", "rotation", "disable_device_change_key_rotation")
	helper.Copy(configupgrade.Str, "bridge", "provisioning", "prefix")
	if secret, ok := helper.Get(configupgrade.Str, "bridge", "provisioning", "shared_secret"); !ok || secret == "generate" {
		sharedSecret := random.String(64)
		helper.Set(configupgrade.Str, sharedSecret, "bridge", "provisioning", "shared_secret")
	} else {
		helper.Copy(configupgrade.Str, "bridge", "provisioning", "shared_secret")
	}
	helper.Copy(configupgrade.Map, "bridge", "permissions")
	helper.Copy(configupgrade.Bool, "bridge", "backfill", "invite_own_puppet")
	helper.Copy(configupgrade.Int, "bridge", "backfill", "initial_limit")
	helper.Copy(configupgrade.Int, "bridge", "backfill", "missed_limit")
	helper.Copy(configupgrade.Bool, "bridge", "backfill", "disable_notifications")
	helper.Copy(configupgrade.Int, "bridge", "backfill", "unread_hours_threshold")
}

var SpacedBlocks = [][]string{
	{"homeserver"},
	{"appservice"},
	{"appservice", "hostname"},
	{"appservice", "database"},
	{"appservice", "id"},
	{"appservice", "as_token"},
	{"analytics"},
	{"bridge"},
	{"bridge", "command_prefix"},
	{"bridge", "management_room_text"},
	{"bridge", "encryption"},
	{"bridge", "provisioning"},
	{"bridge", "permissions"},
	{"bridge", "backfill"},
	{"logging"},
}
