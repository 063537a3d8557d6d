package linkedingo

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ConversationsPageSize is the fixed page size of the conversation list
// endpoint; a shorter page means the end of the list.
const ConversationsPageSize = 20

// GetConversations fetches one page of the user's conversations, most
// recently active first. lastActivityBefore is exclusive.
func (c *Client) GetConversations(ctx context.Context, lastActivityBefore time.Time) (*ConversationsResponse, error) {
	if lastActivityBefore.IsZero() {
		lastActivityBefore = time.Now()
	}
	return request[ConversationsResponse](ctx, c, http.MethodGet, apiBaseURL+"/messaging/conversations", &reqOptions{
		query: url.Values{
			"keyVersion": {"LEGACY_INBOX"},
			// The parameter is called createdBefore even though it filters
			// on last activity.
			"createdBefore": {strconv.FormatInt(lastActivityBefore.UnixMilli(), 10)},
		},
	})
}

// GetAllConversations iterates every conversation, paging by the last
// element's activity timestamp, until fn returns false or an error.
func (c *Client) GetAllConversations(ctx context.Context, fn func(conv *Conversation) (bool, error)) error {
	lastActivityBefore := time.Now()
	for {
		resp, err := c.GetConversations(ctx, lastActivityBefore)
		if err != nil {
			return err
		}
		for i := range resp.Elements {
			cont, err := fn(&resp.Elements[i])
			if err != nil {
				return err
			} else if !cont {
				return nil
			}
		}
		if len(resp.Elements) < ConversationsPageSize {
			return nil
		}
		last := resp.Elements[len(resp.Elements)-1].LastActivityAt
		if last.IsZero() {
			return nil
		}
		lastActivityBefore = last.Time
	}
}

// GetConversationEvents fetches one page of a conversation's events created
// before the given time, newest first.
func (c *Client) GetConversationEvents(ctx context.Context, threadURN URN, createdBefore time.Time) (*ConversationEventsResponse, error) {
	if len(threadURN.IDParts()) != 1 {
		return nil, fmt.Errorf("invalid conversation URN %s", threadURN)
	}
	if createdBefore.IsZero() {
		createdBefore = time.Now()
	}
	reqURL := fmt.Sprintf("%s/messaging/conversations/%s/events", apiBaseURL, threadURN.ID())
	return request[ConversationEventsResponse](ctx, c, http.MethodGet, reqURL, &reqOptions{
		query: url.Values{
			"createdBefore": {strconv.FormatInt(createdBefore.UnixMilli(), 10)},
		},
	})
}

func (c *Client) MarkConversationRead(ctx context.Context, threadURN URN) error {
	reqURL := fmt.Sprintf("%s/messaging/conversations/%s", apiBaseURL, threadURN.LastPart())
	_, _, err := c.rawRequest(ctx, http.MethodPost, reqURL, &reqOptions{
		jsonBody: map[string]any{
			"patch": map[string]any{
				"$set": map[string]any{"read": true},
			},
		},
	})
	return err
}

const messageCreateKey = "com.linkedin.voyager.messaging.create.MessageCreate"

// SendMessage posts a message to an existing conversation and returns the
// created event's URN.
func (c *Client) SendMessage(ctx context.Context, threadURN URN, create *MessageCreate) (*SendMessageResponse, error) {
	reqURL := fmt.Sprintf("%s/messaging/conversations/%s/events", apiBaseURL, threadURN.ID())
	return request[SendMessageResponse](ctx, c, http.MethodPost, reqURL, &reqOptions{
		query: url.Values{"action": {"create"}},
		jsonBody: map[string]any{
			"eventCreate": map[string]any{
				"value": map[string]any{messageCreateKey: create},
			},
		},
	})
}

// DeleteMessage recalls a sent message.
func (c *Client) DeleteMessage(ctx context.Context, threadURN, messageURN URN) error {
	return c.postMessageAction(ctx, threadURN, messageURN, "recall", nil)
}

func (c *Client) AddEmojiReaction(ctx context.Context, threadURN, messageURN URN, emoji string) error {
	return c.postMessageAction(ctx, threadURN, messageURN, "reactWithEmoji", map[string]any{"emoji": emoji})
}

func (c *Client) RemoveEmojiReaction(ctx context.Context, threadURN, messageURN URN, emoji string) error {
	return c.postMessageAction(ctx, threadURN, messageURN, "unreactWithEmoji", map[string]any{"emoji": emoji})
}

func (c *Client) postMessageAction(ctx context.Context, threadURN, messageURN URN, action string, body map[string]any) error {
	reqURL := fmt.Sprintf("%s/messaging/conversations/%s/events/%s", apiBaseURL, threadURN.ID(), messageURN.LastPart())
	_, _, err := c.rawRequest(ctx, http.MethodPost, reqURL, &reqOptions{
		query:    url.Values{"action": {action}},
		jsonBody: body,
	})
	return err
}

// GetReactors lists who reacted to a message with a given emoji.
func (c *Client) GetReactors(ctx context.Context, messageURN URN, emoji string) (*ReactorsResponse, error) {
	return request[ReactorsResponse](ctx, c, http.MethodGet, apiBaseURL+"/voyagerMessagingDashReactors", &reqOptions{
		query: url.Values{
			"decorationId": {"com.linkedin.voyager.dash.deco.messaging.FullReactor-8"},
			"emoji":        {emoji},
			"messageUrn":   {fmt.Sprintf("urn:li:fsd_message:%s", messageURN.LastPart())},
			"q":            {"messageAndEmoji"},
		},
	})
}

func (c *Client) SetTyping(ctx context.Context, threadURN URN) error {
	_, _, err := c.rawRequest(ctx, http.MethodPost, apiBaseURL+"/messaging/conversations", &reqOptions{
		query:    url.Values{"action": {"typing"}},
		jsonBody: map[string]any{"conversationId": threadURN.ID()},
	})
	return err
}
