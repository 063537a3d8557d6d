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
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/id"

	"github.com/beeper/linkedin/pkg/linkedingo"
)

type ProvisioningAPI struct {
	bridge *LinkedInBridge
	zlog   zerolog.Logger
}

func newProvisioningAPI(br *LinkedInBridge) *ProvisioningAPI {
	p := &ProvisioningAPI{
		bridge: br,
		zlog:   br.ZLog.With().Str("component", "provisioning").Logger(),
	}

	prefix := br.Config.Bridge.Provisioning.Prefix
	p.zlog.Debug().Str("prefix", prefix).Msg("Enabling provisioning API")

	r := br.AS.Router.PathPrefix(prefix).Subrouter()
	r.Use(p.authMiddleware)

	r.HandleFunc("/v1/ping", p.ping).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/v1/whoami", p.ping).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/v1/login", p.login).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/v1/logout", p.logout).Methods(http.MethodPost, http.MethodOptions)

	return p
}

func jsonResponse(w http.ResponseWriter, status int, response interface{}) {
	w.Header().Add("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response)
}

type Error struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	ErrCode string `json:"errcode"`
}

type userContextKey struct{}

func (p *ProvisioningAPI) authMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		auth := r.Header.Get("Authorization")
		if strings.HasPrefix(auth, "Bearer ") {
			auth = auth[len("Bearer "):]
		}
		if auth != p.bridge.Config.Bridge.Provisioning.SharedSecret {
			jsonResponse(w, http.StatusForbidden, Error{
				Error:   "Invalid auth token",
				ErrCode: "M_FORBIDDEN",
			})
			return
		}

		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			jsonResponse(w, http.StatusBadRequest, Error{
				Error:   "Missing user_id query parameter",
				ErrCode: "M_MISSING_PARAM",
			})
			return
		}
		user := p.bridge.GetUserByMXID(id.UserID(userID))

		start := time.Now()
		h.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userContextKey{}, user)))
		p.zlog.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("user_id", user.MXID.String()).
			Dur("duration", time.Since(start)).
			Msg("Handled provisioning request")
	})
}

type WhoamiResponse struct {
	Permissions int    `json:"permissions"`
	MXID        string `json:"mxid"`
	LinkedIn    *WhoamiResponseLinkedIn `json:"linkedin,omitempty"`
}

type WhoamiResponseLinkedIn struct {
	MemberURN string `json:"member_urn"`
	Connected bool   `json:"connected"`
}

func (p *ProvisioningAPI) ping(w http.ResponseWriter, r *http.Request) {
	user := r.Context().Value(userContextKey{}).(*User)
	resp := WhoamiResponse{
		Permissions: int(user.PermissionLevel),
		MXID:        user.MXID.String(),
	}
	if !user.LIMemberURN.IsEmpty() {
		resp.LinkedIn = &WhoamiResponseLinkedIn{
			MemberURN: user.LIMemberURN.IDStr(),
			Connected: user.IsLoggedIn(),
		}
	}
	jsonResponse(w, http.StatusOK, resp)
}

type LoginRequest struct {
	LiAt       string            `json:"li_at"`
	JSESSIONID string            `json:"jsessionid"`

	// Alternatively, the raw Cookie request header value captured from a
	// logged-in browser session.
	CookieHeader string `json:"cookie_header"`

	// Extra request headers to replay, such as user-agent and x-li-track.
	Headers map[string]string `json:"headers"`
}

func (p *ProvisioningAPI) login(w http.ResponseWriter, r *http.Request) {
	user := r.Context().Value(userContextKey{}).(*User)

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonResponse(w, http.StatusBadRequest, Error{
			Error:   "Failed to parse request body",
			ErrCode: "M_BAD_JSON",
		})
		return
	}

	var cookies *linkedingo.Cookies
	if req.CookieHeader != "" {
		cookies = linkedingo.NewCookiesFromString(req.CookieHeader)
	} else {
		cookies = linkedingo.NewCookiesFromMap(map[string]string{
			linkedingo.CookieLiAt:       req.LiAt,
			linkedingo.CookieJSESSIONID: req.JSESSIONID,
		})
	}
	if !cookies.HasAuthCookies() {
		jsonResponse(w, http.StatusBadRequest, Error{
			Error:   "Missing li_at or JSESSIONID cookie",
			ErrCode: "M_MISSING_PARAM",
		})
		return
	}

	if err := user.Login(r.Context(), cookies, req.Headers); err != nil {
		p.zlog.Err(err).Str("user_id", user.MXID.String()).Msg("Failed to log in user")
		jsonResponse(w, http.StatusUnauthorized, Error{
			Error:   "Failed to verify LinkedIn credentials",
			ErrCode: "M_FORBIDDEN",
		})
		return
	}

	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"member_urn": user.LIMemberURN.IDStr(),
	})
}

func (p *ProvisioningAPI) logout(w http.ResponseWriter, r *http.Request) {
	user := r.Context().Value(userContextKey{}).(*User)

	if !user.IsLoggedIn() {
		jsonResponse(w, http.StatusOK, Error{
			Error:   "You're not logged in",
			ErrCode: "not logged in",
		})
		return
	}

	user.Logout(r.Context())
	jsonResponse(w, http.StatusOK, map[string]interface{}{"success": true})
}
