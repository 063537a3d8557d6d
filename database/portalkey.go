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
	"fmt"

	"github.com/beeper/linkedin/pkg/linkedingo"
)

// PortalKey identifies a portal: the LinkedIn conversation plus the bridge
// user whose view of the conversation it is.
type PortalKey struct {
	ThreadURN linkedingo.URN
	Receiver  linkedingo.URN
}

func NewPortalKey(threadURN, receiver linkedingo.URN) PortalKey {
	return PortalKey{
		ThreadURN: threadURN,
		Receiver:  receiver,
	}
}

func (pk PortalKey) String() string {
	return fmt.Sprintf("%s/%s", pk.ThreadURN.IDStr(), pk.Receiver.IDStr())
}
