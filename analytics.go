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
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

func (br *LinkedInBridge) trackAnalyticsSync(user *User, event string, properties map[string]any) error {
	if properties == nil {
		properties = map[string]any{}
	}
	properties["bridge"] = "linkedin"
	userID := string(user.MXID)
	if br.Config.Analytics.UserID != "" {
		userID = br.Config.Analytics.UserID
	}
	var buf bytes.Buffer
	err := json.NewEncoder(&buf).Encode(map[string]any{
		"userId":     userID,
		"event":      event,
		"properties": properties,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, br.Config.Analytics.URL, &buf)
	if err != nil {
		return err
	}
	req.SetBasicAuth(br.Config.Analytics.Token, "")
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (br *LinkedInBridge) analyticsEnabled() bool {
	return br.Config.Analytics.Token != "" && br.Config.Analytics.URL != ""
}

// trackAnalytics sends an event to the Segment-compatible analytics endpoint,
// if one is configured. Fire and forget.
func (br *LinkedInBridge) trackAnalytics(user *User, event string, properties map[string]any) {
	if !br.analyticsEnabled() {
		return
	}
	go func() {
		err := br.trackAnalyticsSync(user, event, properties)
		if err != nil {
			br.ZLog.Warn().Err(err).Str("event", event).Msg("Failed to send analytics event")
		} else {
			br.ZLog.Debug().Str("event", event).Msg("Sent analytics event")
		}
	}()
}
