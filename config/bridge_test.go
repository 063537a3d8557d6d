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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/beeper/linkedin/pkg/linkedingo"
)

func parseBridgeConfig(t *testing.T, raw string) *BridgeConfig {
	t.Helper()
	var bc BridgeConfig
	require.NoError(t, yaml.Unmarshal([]byte(raw), &bc))
	return &bc
}

func TestBridgeConfig_FormatUsername(t *testing.T) {
	bc := parseBridgeConfig(t, `
username_template: linkedin_{{.}}
displayname_template: "{{.Displayname}} (LinkedIn)"
`)
	assert.Equal(t, "linkedin_abc123", bc.FormatUsername("abc123"))
}

func TestBridgeConfig_UsernameTemplateWithoutPlaceholder(t *testing.T) {
	var bc BridgeConfig
	err := yaml.Unmarshal([]byte(`
username_template: linkedin_static
displayname_template: "{{.Displayname}}"
`), &bc)
	assert.ErrorContains(t, err, "username template")
}

func TestBridgeConfig_FormatDisplayname(t *testing.T) {
	bc := parseBridgeConfig(t, `
username_template: linkedin_{{.}}
displayname_template: "{{.Displayname}} (LinkedIn)"
`)
	profile := &linkedingo.MiniProfile{
		FirstName:  "Jane",
		LastName:   "Doe",
		Occupation: "Software Engineer",
	}
	assert.Equal(t, "Jane Doe (LinkedIn)", bc.FormatDisplayname(profile))

	lastNameOnly := &linkedingo.MiniProfile{LastName: "Doe"}
	assert.Equal(t, "Doe (LinkedIn)", bc.FormatDisplayname(lastNameOnly))

	assert.Equal(t, " (LinkedIn)", bc.FormatDisplayname(nil))
}

func TestBridgeConfig_DisplaynameTemplateWithOccupation(t *testing.T) {
	bc := parseBridgeConfig(t, `
username_template: linkedin_{{.}}
displayname_template: "{{.FirstName}} {{.LastName}} - {{.Occupation}}"
`)
	profile := &linkedingo.MiniProfile{
		FirstName:  "Jane",
		LastName:   "Doe",
		Occupation: "Software Engineer",
	}
	assert.Equal(t, "Jane Doe - Software Engineer", bc.FormatDisplayname(profile))
}
