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

package database

import (
	"context"
	"database/sql"
	"net/url"

	"go.mau.fi/util/dbutil"
	"maunium.net/go/mautrix/id"

	"github.com/beeper/linkedin/pkg/linkedingo"
)

type PuppetQuery struct {
	*dbutil.QueryHelper[*Puppet]
}

func newPuppet(qh *dbutil.QueryHelper[*Puppet]) *Puppet {
	return &Puppet{qh: qh}
}

const (
	getPuppetBaseQuery = `
		SELECT li_member_urn, name, photo_id, photo_mxc,
		       name_set, avatar_set, contact_info_set, is_registered,
		       custom_mxid, access_token, next_batch, base_url
		FROM puppet
	`
	getPuppetByURNQuery        = getPuppetBaseQuery + `WHERE li_member_urn=$1`
	getPuppetByNameQuery       = getPuppetBaseQuery + `WHERE name=$1`
	getPuppetByCustomMXIDQuery = getPuppetBaseQuery + `WHERE custom_mxid=$1`
	getAllPuppetsWithCustomMXIDQuery = getPuppetBaseQuery + `
		WHERE custom_mxid IS NOT NULL AND custom_mxid <> ''
	`
	insertPuppetQuery = `
		INSERT INTO puppet (
			li_member_urn, name, photo_id, photo_mxc,
			name_set, avatar_set, contact_info_set, is_registered,
			custom_mxid, access_token, next_batch, base_url
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	updatePuppetQuery = `
		UPDATE puppet
		SET name=$2, photo_id=$3, photo_mxc=$4,
		    name_set=$5, avatar_set=$6, contact_info_set=$7, is_registered=$8,
		    custom_mxid=$9, access_token=$10, next_batch=$11, base_url=$12
		WHERE li_member_urn=$1
	`
)

func (pq *PuppetQuery) Get(ctx context.Context, urn linkedingo.URN) (*Puppet, error) {
	return pq.QueryOne(ctx, getPuppetByURNQuery, urn)
}

func (pq *PuppetQuery) GetByName(ctx context.Context, name string) (*Puppet, error) {
	return pq.QueryOne(ctx, getPuppetByNameQuery, name)
}

func (pq *PuppetQuery) GetByCustomMXID(ctx context.Context, mxid id.UserID) (*Puppet, error) {
	return pq.QueryOne(ctx, getPuppetByCustomMXIDQuery, mxid)
}

func (pq *PuppetQuery) GetAllWithCustomMXID(ctx context.Context) ([]*Puppet, error) {
	return pq.QueryMany(ctx, getAllPuppetsWithCustomMXIDQuery)
}

type Puppet struct {
	qh *dbutil.QueryHelper[*Puppet]

	LIMemberURN linkedingo.URN
	Name        string
	PhotoID     string
	PhotoMXC    id.ContentURI

	NameSet        bool
	AvatarSet      bool
	ContactInfoSet bool
	IsRegistered   bool

	CustomMXID  id.UserID
	AccessToken string
	NextBatch   string
	BaseURL     *url.URL
}

func (p *Puppet) Scan(row dbutil.Scannable) (*Puppet, error) {
	var name, photoID, photoMXC, customMXID, accessToken, nextBatch, baseURL sql.NullString
	err := row.Scan(
		&p.LIMemberURN,
		&name,
		&photoID,
		&photoMXC,
		&p.NameSet,
		&p.AvatarSet,
		&p.ContactInfoSet,
		&p.IsRegistered,
		&customMXID,
		&accessToken,
		&nextBatch,
		&baseURL,
	)
	if err != nil {
		return nil, err
	}
	p.Name = name.String
	p.PhotoID = photoID.String
	p.PhotoMXC, _ = id.ParseContentURI(photoMXC.String)
	p.CustomMXID = id.UserID(customMXID.String)
	p.AccessToken = accessToken.String
	p.NextBatch = nextBatch.String
	if baseURL.Valid {
		p.BaseURL, _ = url.Parse(baseURL.String)
	}
	return p, nil
}

func (p *Puppet) sqlVariables() []any {
	var baseURL *string
	if p.BaseURL != nil {
		baseURL = dbutil.StrPtr(p.BaseURL.String())
	}
	return []any{
		p.LIMemberURN,
		dbutil.StrPtr(p.Name),
		dbutil.StrPtr(p.PhotoID),
		dbutil.StrPtr(p.PhotoMXC.String()),
		p.NameSet,
		p.AvatarSet,
		p.ContactInfoSet,
		p.IsRegistered,
		dbutil.StrPtr(p.CustomMXID),
		dbutil.StrPtr(p.AccessToken),
		dbutil.StrPtr(p.NextBatch),
		baseURL,
	}
}

func (p *Puppet) Insert(ctx context.Context) error {
	return p.qh.Exec(ctx, insertPuppetQuery, p.sqlVariables()...)
}

func (p *Puppet) Update(ctx context.Context) error {
	return p.qh.Exec(ctx, updatePuppetQuery, p.sqlVariables()...)
}
