package linkedingo

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newPathRecordingClient(paths *[]string) *Client {
	c := NewClient(zerolog.Nop(), nil, nil)
	c.http.Transport = roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		*paths = append(*paths, req.URL.Path)
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{},
			Body:       io.NopCloser(strings.NewReader("{}")),
			Request:    req,
		}, nil
	})
	return c
}

func TestMessageActionPath(t *testing.T) {
	var scanned URN
	require.NoError(t, scanned.Scan("2-abc"))

	threads := map[string]URN{
		"scanned":  scanned,
		"prefixed": NewURN("urn:li:fs_conversation:2-abc"),
	}
	messageURN := NewEventURN("2-abc", "2-msg1")
	for name, thread := range threads {
		t.Run(name, func(t *testing.T) {
			var paths []string
			c := newPathRecordingClient(&paths)
			ctx := context.Background()
			require.NoError(t, c.DeleteMessage(ctx, thread, messageURN))
			require.NoError(t, c.AddEmojiReaction(ctx, thread, messageURN, "🎉"))
			require.NoError(t, c.RemoveEmojiReaction(ctx, thread, messageURN, "🎉"))
			require.Len(t, paths, 3)
			for _, path := range paths {
				assert.Equal(t, "/voyager/api/messaging/conversations/2-abc/events/2-msg1", path)
			}
		})
	}
}

func TestSendMessagePath(t *testing.T) {
	var paths []string
	c := newPathRecordingClient(&paths)
	_, err := c.SendMessage(context.Background(), NewURN("urn:li:fs_conversation:2-abc"), &MessageCreate{})
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, "/voyager/api/messaging/conversations/2-abc/events", paths[0])
}
