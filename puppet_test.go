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
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/beeper/linkedin/pkg/linkedingo"
)

func TestPhotoIDFromPicture(t *testing.T) {
	picture := &linkedingo.Picture{VectorImage: &linkedingo.VectorImage{
		RootURL: "https://media.licdn.com/dms/image/C4D03AQExampleId123/profile-displayphoto-shrink_",
		Artifacts: []linkedingo.Artifact{
			{Width: 100, FileIdentifyingURLPathSegment: "100_100/0?e=1&v=beta&t=x"},
		},
	}}
	assert.Equal(t, "C4D03AQExampleId123", photoIDFromPicture(picture))

	// The id must stay stable when the CDN host rotates.
	rotated := &linkedingo.Picture{VectorImage: &linkedingo.VectorImage{
		RootURL: "https://media-exp2.licdn.com/dms/image/C4D03AQExampleId123/profile-displayphoto-shrink_",
	}}
	assert.Equal(t, photoIDFromPicture(picture), photoIDFromPicture(rotated))
}

func TestPhotoIDFromPicture_InMailArtifact(t *testing.T) {
	// InMail pictures have no root URL, only a full URL in the artifact path.
	picture := &linkedingo.Picture{VectorImage: &linkedingo.VectorImage{
		Artifacts: []linkedingo.Artifact{
			{FileIdentifyingURLPathSegment: "https://media.licdn.com/dms/image/SpInmailId456/spinmail-banner_"},
		},
	}}
	assert.Equal(t, "SpInmailId456", photoIDFromPicture(picture))
}

func TestPhotoIDFromPicture_Empty(t *testing.T) {
	assert.Empty(t, photoIDFromPicture(nil))
	assert.Empty(t, photoIDFromPicture(&linkedingo.Picture{}))
	assert.Empty(t, photoIDFromPicture(&linkedingo.Picture{VectorImage: &linkedingo.VectorImage{
		RootURL: "https://example.com/not-a-profile-image",
	}}))
}
