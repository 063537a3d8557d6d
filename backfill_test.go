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
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/util/dbutil"
	"go.mau.fi/util/jsontime"
	"maunium.net/go/mautrix/id"

	"github.com/beeper/linkedin/config"
	"github.com/beeper/linkedin/database"
	"github.com/beeper/linkedin/pkg/linkedingo"
)

func eventAt(ts time.Time) linkedingo.ConversationEvent {
	return linkedingo.ConversationEvent{CreatedAt: jsontime.UnixMilli{Time: ts}}
}

func TestSortEventsChronologically(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	events := []linkedingo.ConversationEvent{
		eventAt(base.Add(3 * time.Minute)),
		eventAt(base),
		eventAt(base.Add(5 * time.Minute)),
		eventAt(base.Add(1 * time.Minute)),
	}

	sortEventsChronologically(events)

	for i := 1; i < len(events); i++ {
		assert.False(t, events[i].CreatedAt.Time.Before(events[i-1].CreatedAt.Time),
			"event %d is older than event %d", i, i-1)
	}
	assert.Equal(t, base, events[0].CreatedAt.Time)
	assert.Equal(t, base.Add(5*time.Minute), events[len(events)-1].CreatedAt.Time)
}

func TestOldestEventTime(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	events := []linkedingo.ConversationEvent{
		eventAt(base.Add(2 * time.Hour)),
		eventAt(base),
		{}, // zero timestamps are skipped
		eventAt(base.Add(time.Hour)),
	}
	assert.Equal(t, base, oldestEventTime(events))
	assert.True(t, oldestEventTime(nil).IsZero())
}

// pagedHistory serves a fixed event history in pages, newest first, the way
// the conversation events endpoint does.
func pagedHistory(history []linkedingo.ConversationEvent, pageSize int) backfillEventsFetcher {
	return func(ctx context.Context, createdBefore time.Time) ([]linkedingo.ConversationEvent, error) {
		var page []linkedingo.ConversationEvent
		for i := len(history) - 1; i >= 0 && len(page) < pageSize; i-- {
			if history[i].CreatedAt.Time.Before(createdBefore) {
				page = append(page, history[i])
			}
		}
		return page, nil
	}
}

func TestCollectBackfillEvents_LimitTrimsToNewest(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	var history []linkedingo.ConversationEvent
	for i := 0; i < 10; i++ {
		history = append(history, eventAt(base.Add(time.Duration(i)*time.Minute)))
	}

	events, err := collectBackfillEvents(context.Background(), pagedHistory(history, 3), nil, 4, time.Time{})
	require.NoError(t, err)
	require.Len(t, events, 4)
	assert.Equal(t, base.Add(6*time.Minute), events[0].CreatedAt.Time)
	assert.Equal(t, base.Add(9*time.Minute), events[3].CreatedAt.Time)
}

func TestCollectBackfillEvents_NegativeLimitIsUnbounded(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	var history []linkedingo.ConversationEvent
	for i := 0; i < 25; i++ {
		history = append(history, eventAt(base.Add(time.Duration(i)*time.Minute)))
	}

	events, err := collectBackfillEvents(context.Background(), pagedHistory(history, 7), nil, -1, time.Time{})
	require.NoError(t, err)
	require.Len(t, events, len(history))
	assert.Equal(t, base, events[0].CreatedAt.Time)
	assert.Equal(t, base.Add(24*time.Minute), events[len(events)-1].CreatedAt.Time)
}

func TestCollectBackfillEvents_WatermarkStopsPaging(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	var history []linkedingo.ConversationEvent
	for i := 0; i < 10; i++ {
		history = append(history, eventAt(base.Add(time.Duration(i)*time.Minute)))
	}

	// Everything at or before the watermark stays out, even with no limit.
	watermark := base.Add(5 * time.Minute)
	events, err := collectBackfillEvents(context.Background(), pagedHistory(history, 3), nil, -1, watermark)
	require.NoError(t, err)
	require.Len(t, events, 4)
	assert.Equal(t, base.Add(6*time.Minute), events[0].CreatedAt.Time)
}

func TestCollectBackfillEvents_FetchError(t *testing.T) {
	fetch := func(ctx context.Context, createdBefore time.Time) ([]linkedingo.ConversationEvent, error) {
		return nil, errors.New("rate limited")
	}
	_, err := collectBackfillEvents(context.Background(), fetch, nil, 10, time.Time{})
	assert.Error(t, err)
}

func newTestPortal(unreadHoursThreshold int) *Portal {
	cfg := &config.Config{}
	cfg.Bridge.Backfill.UnreadHoursThreshold = unreadHoursThreshold
	return &Portal{bridge: &LinkedInBridge{Config: cfg}}
}

func TestShouldMarkRead(t *testing.T) {
	portal := newTestPortal(72)
	boolPtr := func(v bool) *bool { return &v }

	readConv := &linkedingo.Conversation{Read: boolPtr(true)}
	assert.True(t, portal.shouldMarkRead(readConv))

	unreadRecent := &linkedingo.Conversation{
		Read:           boolPtr(false),
		UnreadCount:    3,
		LastActivityAt: jsontime.UnixMilli{Time: time.Now().Add(-time.Hour)},
	}
	assert.False(t, portal.shouldMarkRead(unreadRecent))

	unreadStale := &linkedingo.Conversation{
		Read:           boolPtr(false),
		UnreadCount:    3,
		LastActivityAt: jsontime.UnixMilli{Time: time.Now().Add(-100 * time.Hour)},
	}
	assert.True(t, portal.shouldMarkRead(unreadStale))

	noReadField := &linkedingo.Conversation{UnreadCount: 0}
	assert.True(t, portal.shouldMarkRead(noReadField))
}

func newMissedBackfillPortal(t *testing.T, missedLimit int) *Portal {
	rawDB, err := dbutil.NewWithDialect(":memory:", "sqlite3")
	require.NoError(t, err)
	rawDB.Log = dbutil.ZeroLogger(zerolog.Nop())
	db := database.New(rawDB)
	require.NoError(t, db.Upgrade(context.Background()))
	t.Cleanup(func() {
		_ = db.Close()
	})

	cfg := &config.Config{}
	cfg.Bridge.Backfill.MissedLimit = missedLimit
	portal := &Portal{
		Portal: db.Portal.New(),
		bridge: &LinkedInBridge{Config: cfg, DB: db},
		zlog:   zerolog.Nop(),
	}
	portal.PortalKey = database.NewPortalKey(
		linkedingo.NewURN("urn:li:fs_conversation:2-abc"),
		linkedingo.NewURN("urn:li:member:1"),
	)
	portal.MXID = id.RoomID("!room:example.com")
	return portal
}

func TestBackfillMissed_NothingBridgedYet(t *testing.T) {
	portal := newMissedBackfillPortal(t, 50)
	conv := &linkedingo.Conversation{
		LastActivityAt: jsontime.UnixMilli{Time: time.Now()},
	}
	// A room with no bridged messages has no gap to fill, so this must
	// return before touching the network (the source is nil here).
	portal.backfillMissed(nil, conv)
}

func TestShouldMarkRead_ThresholdDisabled(t *testing.T) {
	portal := newTestPortal(0)
	boolPtr := func(v bool) *bool { return &v }
	unreadStale := &linkedingo.Conversation{
		Read:           boolPtr(false),
		UnreadCount:    1,
		LastActivityAt: jsontime.UnixMilli{Time: time.Now().Add(-1000 * time.Hour)},
	}
	assert.False(t, portal.shouldMarkRead(unreadStale))
}
