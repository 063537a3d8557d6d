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
	"time"

	"github.com/beeper/linkedin/pkg/linkedingo"
)

// backfillInitial fills a freshly created portal with the most recent
// messages of the conversation. A negative limit means no limit; zero
// disables backfill.
func (portal *Portal) backfillInitial(source *User, conv *linkedingo.Conversation) {
	limit := portal.bridge.Config.Bridge.Backfill.InitialLimit
	if limit == 0 {
		return
	}
	ctx := portal.zlog.With().Str("action", "initial backfill").Logger().WithContext(context.TODO())
	portal.backfill(ctx, source, conv, limit, time.Time{})
}

// backfillMissed bridges messages that arrived while the bridge was offline.
func (portal *Portal) backfillMissed(source *User, conv *linkedingo.Conversation) {
	limit := portal.bridge.Config.Bridge.Backfill.MissedLimit
	if limit == 0 || portal.MXID == "" {
		return
	}
	ctx := portal.zlog.With().Str("action", "missed backfill").Logger().WithContext(context.TODO())

	lastMessage, err := portal.bridge.DB.Message.GetLastInThread(ctx, portal.ThreadURN, portal.Receiver)
	if err != nil {
		portal.zlog.Err(err).Msg("Failed to get last bridged message")
		return
	}
	if lastMessage == nil {
		// Nothing was ever bridged here, so there is no gap to fill. Paging
		// with no watermark would re-fetch the whole history.
		return
	}
	watermark := lastMessage.Timestamp
	if !conv.LastActivityAt.IsZero() && !conv.LastActivityAt.Time.After(watermark) {
		return
	}
	portal.backfill(ctx, source, conv, limit, watermark)
}

// backfill pages the conversation history backwards, collects events newer
// than the watermark up to the limit, and bridges them in chronological
// order. A negative limit collects everything down to the watermark. If the
// conversation is read (or old enough to be treated as read), the user's
// double puppet marks the room as read afterwards.
func (portal *Portal) backfill(ctx context.Context, source *User, conv *linkedingo.Conversation, limit int, watermark time.Time) {
	portal.backfillLock.Lock()
	defer portal.backfillLock.Unlock()

	events, err := collectBackfillEvents(ctx, func(ctx context.Context, createdBefore time.Time) ([]linkedingo.ConversationEvent, error) {
		resp, err := source.Client.GetConversationEvents(ctx, portal.ThreadURN, createdBefore)
		if err != nil {
			return nil, err
		}
		return resp.Elements, nil
	}, conv.Events, limit, watermark)
	if err != nil {
		portal.zlog.Err(err).Msg("Failed to fetch conversation events for backfill")
		return
	}
	if len(events) == 0 {
		return
	}

	portal.zlog.Info().Int("count", len(events)).Msg("Backfilling messages")
	for i := range events {
		portal.handleLinkedInMessage(ctx, source, &events[i], true)
	}

	if portal.shouldMarkRead(conv) {
		portal.markReadAfterBackfill(ctx, source)
	}
}

type backfillEventsFetcher func(ctx context.Context, createdBefore time.Time) ([]linkedingo.ConversationEvent, error)

// collectBackfillEvents pages history backwards with fetch until the limit is
// reached (negative means unlimited), the watermark is hit, or the pages run
// out, then returns the newest events in chronological order.
func collectBackfillEvents(ctx context.Context, fetch backfillEventsFetcher, seed []linkedingo.ConversationEvent, limit int, watermark time.Time) ([]linkedingo.ConversationEvent, error) {
	var events []linkedingo.ConversationEvent
	createdBefore := time.Now()
	if len(seed) > 0 {
		// The conversation list entry already carries the newest events,
		// start from those before hitting the events endpoint.
		events = append(events, seed...)
		if oldest := oldestEventTime(seed); !oldest.IsZero() {
			createdBefore = oldest
		}
	}

	for limit < 0 || len(events) < limit {
		page, err := fetch(ctx, createdBefore)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		reachedWatermark := false
		for i := range page {
			evt := page[i]
			if !watermark.IsZero() && !evt.CreatedAt.Time.After(watermark) {
				reachedWatermark = true
				continue
			}
			events = append(events, evt)
		}
		if reachedWatermark {
			break
		}
		oldest := oldestEventTime(page)
		if oldest.IsZero() || !oldest.Before(createdBefore) {
			break
		}
		createdBefore = oldest
	}

	// Oldest first, trimmed to the newest `limit` events.
	sortEventsChronologically(events)
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}

func oldestEventTime(events []linkedingo.ConversationEvent) time.Time {
	var oldest time.Time
	for i := range events {
		ts := events[i].CreatedAt.Time
		if ts.IsZero() {
			continue
		}
		if oldest.IsZero() || ts.Before(oldest) {
			oldest = ts
		}
	}
	return oldest
}

func sortEventsChronologically(events []linkedingo.ConversationEvent) {
	for i := 1; i < len(events); i++ {
		for j := i; j > 0 && events[j].CreatedAt.Time.Before(events[j-1].CreatedAt.Time); j-- {
			events[j], events[j-1] = events[j-1], events[j]
		}
	}
}

// shouldMarkRead reports whether backfilled history should come in already
// read: either LinkedIn says the conversation is read, or its last activity
// is older than the configured threshold.
func (portal *Portal) shouldMarkRead(conv *linkedingo.Conversation) bool {
	if conv.Read != nil && *conv.Read {
		return true
	}
	if conv.UnreadCount == 0 && conv.Read == nil {
		return true
	}
	threshold := portal.bridge.Config.Bridge.Backfill.UnreadHoursThreshold
	if threshold <= 0 || conv.LastActivityAt.IsZero() {
		return false
	}
	return time.Since(conv.LastActivityAt.Time) > time.Duration(threshold)*time.Hour
}

func (portal *Portal) markReadAfterBackfill(ctx context.Context, source *User) {
	puppet := portal.bridge.GetPuppetByCustomMXID(source.MXID)
	if puppet == nil || puppet.CustomIntent() == nil {
		return
	}
	lastMessage, err := portal.bridge.DB.Message.GetLastInThread(ctx, portal.ThreadURN, portal.Receiver)
	if err != nil || lastMessage == nil {
		return
	}
	if err = puppet.CustomIntent().MarkRead(ctx, portal.MXID, lastMessage.MXID); err != nil {
		portal.zlog.Warn().Err(err).Msg("Failed to mark backfilled messages as read")
	}
}
