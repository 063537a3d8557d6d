package linkedingo

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// URN is a LinkedIn uniform resource name, e.g. urn:li:fs_miniProfile:AbC123
// or urn:li:fs_event:(2-abc,3-def) for multi-part identifiers.
//
// Two URNs are equal if their id parts are equal; the prefix is decorative.
type URN struct {
	prefix  string
	idParts []string
}

func NewURN(s string) URN {
	if s == "" {
		return URN{}
	}
	parts := strings.Split(s, ":")
	return URN{
		prefix:  strings.Join(parts[:len(parts)-1], ":"),
		idParts: strings.Split(strings.Trim(parts[len(parts)-1], "()"), ","),
	}
}

func (u URN) IsEmpty() bool {
	return len(u.idParts) == 0
}

func (u URN) Prefix() string {
	return u.prefix
}

// ID returns the sole id part. It panics if the URN has a multi-part tail,
// which mirrors how such URNs are rejected upstream.
func (u URN) ID() string {
	if len(u.idParts) != 1 {
		panic(fmt.Sprintf("linkedingo: ID() called on multi-part URN %q", u.String()))
	}
	return u.idParts[0]
}

// LastPart returns the final id part (the message id of an event URN).
func (u URN) LastPart() string {
	if len(u.idParts) == 0 {
		return ""
	}
	return u.idParts[len(u.idParts)-1]
}

func (u URN) IDParts() []string {
	return u.idParts
}

// IDStr joins the id parts with commas. It is the canonical equality/map key.
func (u URN) IDStr() string {
	return strings.Join(u.idParts, ",")
}

func (u URN) String() string {
	if u.IsEmpty() {
		return ""
	}
	if len(u.idParts) == 1 {
		return fmt.Sprintf("%s:%s", u.prefix, u.idParts[0])
	}
	return fmt.Sprintf("%s:(%s)", u.prefix, u.IDStr())
}

func (u URN) Equals(other URN) bool {
	if len(u.idParts) != len(other.idParts) {
		return false
	}
	for i, part := range u.idParts {
		if other.idParts[i] != part {
			return false
		}
	}
	return true
}

// WithPrefix returns a copy of the URN with the given prefix (joined with
// colons), keeping the id parts.
func (u URN) WithPrefix(prefix ...string) URN {
	return URN{
		prefix:  strings.Join(prefix, ":"),
		idParts: u.idParts,
	}
}

// NewEventURN builds the canonical urn:li:fs_event:(thread,message) form.
func NewEventURN(threadID, messageID string) URN {
	return URN{
		prefix:  "urn:li:fs_event",
		idParts: []string{threadID, messageID},
	}
}

// ThreadAndMessage splits an event URN tail into its thread and message URNs.
func (u URN) ThreadAndMessage() (thread, message URN, err error) {
	if len(u.idParts) != 2 {
		return thread, message, fmt.Errorf("%q is not a two-part event URN", u.String())
	}
	return NewURN(u.idParts[0]), NewURN(u.idParts[1]), nil
}

func (u URN) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

func (u *URN) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*u = NewURN(s)
	return nil
}

var _ driver.Valuer = URN{}

// Value stores only the id parts. The prefix varies by endpoint and carries no
// identity, so the database keys on the bare id.
func (u URN) Value() (driver.Value, error) {
	if u.IsEmpty() {
		return nil, nil
	}
	return u.IDStr(), nil
}

func (u *URN) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*u = URN{}
	case string:
		*u = NewURN(v)
	case []byte:
		*u = NewURN(string(v))
	default:
		return fmt.Errorf("invalid type %T for URN.Scan", src)
	}
	return nil
}
