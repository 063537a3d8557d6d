package linkedingo_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beeper/linkedin/pkg/linkedingo"
)

func TestURN_Equals_IgnoresPrefix(t *testing.T) {
	assert.True(t, linkedingo.NewURN("urn:a:1").Equals(linkedingo.NewURN("urn:b:1")))
	assert.True(t, linkedingo.NewURN("urn:a:(1,2)").Equals(linkedingo.NewURN("urn:b:(1,2)")))
	assert.False(t, linkedingo.NewURN("urn:a:1").Equals(linkedingo.NewURN("urn:a:2")))
	assert.False(t, linkedingo.NewURN("urn:a:(1,2)").Equals(linkedingo.NewURN("urn:a:1")))
}

func TestURN_String_RoundTrip(t *testing.T) {
	for _, s := range []string{
		"urn:li:fs_miniProfile:AbC-123",
		"urn:li:fs_event:(2-abc,3-def)",
		"urn:li:fs_conversation:2-YmMxOTg3",
	} {
		assert.Equal(t, s, linkedingo.NewURN(s).String())
	}
}

func TestURN_Parts(t *testing.T) {
	u := linkedingo.NewURN("urn:li:fs_event:(2-abc,3-def)")
	assert.Equal(t, "2-abc,3-def", u.IDStr())
	assert.Equal(t, "3-def", u.LastPart())

	thread, message, err := u.ThreadAndMessage()
	require.NoError(t, err)
	assert.Equal(t, "2-abc", thread.ID())
	assert.Equal(t, "3-def", message.ID())

	_, _, err = linkedingo.NewURN("urn:li:fs_conversation:2-abc").ThreadAndMessage()
	assert.Error(t, err)
}

func TestURN_WithPrefix(t *testing.T) {
	u := linkedingo.NewURN("urn:li:member:42").WithPrefix("urn", "li", "fs_miniProfile")
	assert.Equal(t, "urn:li:fs_miniProfile:42", u.String())
}

func TestURN_JSON(t *testing.T) {
	var u linkedingo.URN
	require.NoError(t, json.Unmarshal([]byte(`"urn:li:fs_event:(a,b)"`), &u))
	assert.Equal(t, "a,b", u.IDStr())

	data, err := json.Marshal(u)
	require.NoError(t, err)
	assert.Equal(t, `"urn:li:fs_event:(a,b)"`, string(data))

	var empty linkedingo.URN
	data, err = json.Marshal(empty)
	require.NoError(t, err)
	assert.Equal(t, `""`, string(data))
	assert.True(t, empty.IsEmpty())
}
