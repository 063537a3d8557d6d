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
	"errors"
	"fmt"
	"strings"
	"text/template"

	"maunium.net/go/mautrix/bridge/bridgeconfig"

	"github.com/beeper/linkedin/pkg/linkedingo"
)

type BridgeConfig struct {
	UsernameTemplate    string `yaml:"username_template"`
	DisplaynameTemplate string `yaml:"displayname_template"`

	PrivateChatPortalMeta bool `yaml:"private_chat_portal_meta"`
	SetTopicOnDMs         bool `yaml:"set_topic_on_dms"`

	CommandPrefix string `yaml:"command_prefix"`

	PersonalFilteringSpaces bool `yaml:"personal_filtering_spaces"`

	// InitialConversationSync is the number of conversations to sync when a
	// user first connects.
	InitialConversationSync int `yaml:"initial_conversation_sync"`

	DeliveryReceipts    bool `yaml:"delivery_receipts"`
	MessageStatusEvents bool `yaml:"message_status_events"`
	MessageErrorNotices bool `yaml:"message_error_notices"`
	ResendBridgeInfo    bool `yaml:"resend_bridge_info"`

	// MuteBridging mirrors LinkedIn-side conversation mutes to Matrix push
	// rules on the double puppet.
	MuteBridging bool `yaml:"mute_bridging"`

	TemporaryDisconnectNotices bool `yaml:"temporary_disconnect_notices"`

	SyncDirectChatList bool `yaml:"sync_direct_chat_list"`
	FederateRooms      bool `yaml:"federate_rooms"`

	ManagementRoomText bridgeconfig.ManagementRoomTexts `yaml:"management_room_text"`

	PortalMessageBuffer int `yaml:"portal_message_buffer"`

	DoublePuppetConfig bridgeconfig.DoublePuppetConfig `yaml:",inline"`

	Encryption bridgeconfig.EncryptionConfig `yaml:"encryption"`

	Provisioning struct {
		Prefix       string `yaml:"prefix"`
		SharedSecret string `yaml:"shared_secret"`
	} `yaml:"provisioning"`

	Permissions bridgeconfig.PermissionConfig `yaml:"permissions"`

	Backfill BackfillConfig `yaml:"backfill"`

	usernameTemplate    *template.Template `yaml:"-"`
	displaynameTemplate *template.Template `yaml:"-"`
}

type BackfillConfig struct {
	InviteOwnPuppet bool `yaml:"invite_own_puppet"`

	InitialLimit int `yaml:"initial_limit"`
	MissedLimit  int `yaml:"missed_limit"`

	DisableNotifications bool `yaml:"disable_notifications"`
	UnreadHoursThreshold int  `yaml:"unread_hours_threshold"`
}

type umBridgeConfig BridgeConfig

func (bc *BridgeConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	err := unmarshal((*umBridgeConfig)(bc))
	if err != nil {
		return err
	}

	bc.usernameTemplate, err = template.New("username").Parse(bc.UsernameTemplate)
	if err != nil {
		return err
	} else if !strings.Contains(bc.FormatUsername("1234567890"), "1234567890") {
		return fmt.Errorf("username template is missing user ID placeholder")
	}

	bc.displaynameTemplate, err = template.New("displayname").Parse(bc.DisplaynameTemplate)
	if err != nil {
		return err
	}

	return nil
}

var _ bridgeconfig.BridgeConfig = (*BridgeConfig)(nil)

func (bc *BridgeConfig) GetEncryptionConfig() bridgeconfig.EncryptionConfig {
	return bc.Encryption
}

func (bc *BridgeConfig) GetCommandPrefix() string {
	return bc.CommandPrefix
}

func (bc *BridgeConfig) GetManagementRoomTexts() bridgeconfig.ManagementRoomTexts {
	return bc.ManagementRoomText
}

func (bc *BridgeConfig) GetDoublePuppetConfig() bridgeconfig.DoublePuppetConfig {
	return bc.DoublePuppetConfig
}

func (bc *BridgeConfig) FormatUsername(memberID string) string {
	var buffer strings.Builder
	_ = bc.usernameTemplate.Execute(&buffer, memberID)
	return buffer.String()
}

// DisplaynameParams is the data passed to the displayname template.
type DisplaynameParams struct {
	FirstName  string
	LastName   string
	Occupation string
}

func (p DisplaynameParams) Displayname() string {
	return strings.TrimSpace(fmt.Sprintf("%s %s", p.FirstName, p.LastName))
}

func (bc *BridgeConfig) FormatDisplayname(profile *linkedingo.MiniProfile) string {
	var params DisplaynameParams
	if profile != nil {
		params = DisplaynameParams{
			FirstName:  profile.FirstName,
			LastName:   profile.LastName,
			Occupation: profile.Occupation,
		}
	}
	var buffer strings.Builder
	_ = bc.displaynameTemplate.Execute(&buffer, params)
	return buffer.String()
}

func (bc *BridgeConfig) GetResendBridgeInfo() bool {
	return bc.ResendBridgeInfo
}

func (bc *BridgeConfig) EnableMessageStatusEvents() bool {
	return bc.MessageStatusEvents
}

func (bc *BridgeConfig) EnableMessageErrorNotices() bool {
	return bc.MessageErrorNotices
}

func boolToInt(val bool) int {
	if val {
		return 1
	}
	return 0
}

func (bc *BridgeConfig) Validate() error {
	_, hasWildcard := bc.Permissions["*"]
	_, hasExampleDomain := bc.Permissions["example.com"]
	_, hasExampleUser := bc.Permissions["@admin:example.com"]
	exampleLen := boolToInt(hasWildcard) + boolToInt(hasExampleUser) + boolToInt(hasExampleDomain)
	if len(bc.Permissions) <= exampleLen {
		return errors.New("bridge.permissions not configured")
	}
	return nil
}
