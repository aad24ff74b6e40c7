package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Message represents a single chat message as authored by the backend.
// Once rendered it is immutable except for Body (editable by the sender)
// and the reaction state.
type Message struct {
	// ID is assigned by the backend and increases monotonically per thread
	ID ID `json:"message_id"`

	// ThreadID is the thread this message belongs to
	ThreadID ID `json:"thread_id"`

	// SenderID is the author's user ID
	SenderID ID `json:"sender_id"`

	// Body is the plain message text
	Body string `json:"body"`

	// CreatedAt is the backend clock at creation time
	CreatedAt Timestamp `json:"created_at"`

	// ReplyTo is the message this one replies to (0 when not a reply)
	ReplyTo ID `json:"reply_to_message_id,omitempty"`

	// Reactions holds the per-emoji counts in the order the backend sent them
	Reactions Reactions `json:"reactions,omitempty"`

	// UserReaction is the requesting user's own reaction, if any
	UserReaction string `json:"user_reaction,omitempty"`
}

// DecodeMessage decodes one message payload from any transport. Fields of
// the wrong JSON type fall back to their zero value instead of failing the
// whole message; a payload that is not an object yields the zero Message.
func DecodeMessage(data []byte) Message {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Message{}
	}

	var m Message
	_ = json.Unmarshal(fields["message_id"], &m.ID)
	_ = json.Unmarshal(fields["thread_id"], &m.ThreadID)
	_ = json.Unmarshal(fields["sender_id"], &m.SenderID)
	_ = json.Unmarshal(fields["created_at"], &m.CreatedAt)
	_ = json.Unmarshal(fields["reply_to_message_id"], &m.ReplyTo)
	_ = json.Unmarshal(fields["reactions"], &m.Reactions)
	m.Body = lenientString(fields["body"])
	m.UserReaction = lenientString(fields["user_reaction"])
	return m
}

// UnmarshalJSON implements json.Unmarshaler with DecodeMessage's rules.
func (m *Message) UnmarshalJSON(data []byte) error {
	*m = DecodeMessage(data)
	return nil
}

// lenientString returns raw as a string when it is a JSON string and ""
// otherwise.
func lenientString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// PollResponse is the response body of the poll endpoint.
type PollResponse struct {
	Messages []Message `json:"messages"`
}

// SendMessageRequest is the request body for sending a message
type SendMessageRequest struct {
	Body    string `json:"body"`
	ReplyTo ID     `json:"reply_to_message_id,omitempty"`
}

// SendMessageResponse wraps the authoritative copy of a sent message.
type SendMessageResponse struct {
	Message *Message `json:"message"`
}

// ID is an integer identifier that tolerates the loose encodings seen on the
// wire: numbers, numeric strings and null. Anything else decodes as 0.
type ID int64

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(data []byte) error {
	*id = ParseID(string(bytes.Trim(bytes.TrimSpace(data), `"`)))
	return nil
}

// String returns the decimal form of the ID.
func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseID parses a decimal identifier, returning 0 for anything unparseable.
func ParseID(s string) ID {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ID(n)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return ID(int64(f))
	}
	return 0
}

// Timestamp wraps time.Time with lenient JSON decoding: ISO-8601 with or
// without a zone, "YYYY-MM-DD HH:MM:SS", or epoch seconds/milliseconds.
// Zone-less values are taken as UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02",
}

// epochMillisThreshold separates epoch seconds from epoch milliseconds.
const epochMillisThreshold = 1e11

// NewTimestamp wraps t.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

// ParseTimestamp parses any of the accepted encodings. The zero Timestamp is
// returned when s cannot be interpreted.
func ParseTimestamp(s string) Timestamp {
	s = strings.TrimSpace(s)
	if s == "" {
		return Timestamp{}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromEpoch(f)
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp{Time: t}
		}
	}
	return Timestamp{}
}

func fromEpoch(f float64) Timestamp {
	if f <= 0 || math.IsInf(f, 0) || math.IsNaN(f) {
		return Timestamp{}
	}
	if f > epochMillisThreshold {
		return Timestamp{Time: time.UnixMilli(int64(f)).UTC()}
	}
	sec, frac := math.Modf(f)
	return Timestamp{Time: time.Unix(int64(sec), int64(frac*1e9)).UTC()}
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	*t = ParseTimestamp(string(bytes.Trim(bytes.TrimSpace(data), `"`)))
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// Reaction is the count for one emoji on a message.
type Reaction struct {
	Emoji string
	Count int
}

// Reactions is an emoji -> count mapping that keeps the order the backend
// encoded it in.
type Reactions []Reaction

// Top returns the highest count, or 0 when there are no reactions.
func (rs Reactions) Top() int {
	top := 0
	for _, r := range rs {
		if r.Count > top {
			top = r.Count
		}
	}
	return top
}

// Count returns the count recorded for emoji.
func (rs Reactions) Count(emoji string) int {
	for _, r := range rs {
		if r.Emoji == emoji {
			return r.Count
		}
	}
	return 0
}

// UnmarshalJSON decodes a JSON object, preserving key order. Counts that are
// not numeric decode as 0; a non-object value decodes as no reactions.
func (rs *Reactions) UnmarshalJSON(data []byte) error {
	*rs = nil
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil
	}

	var out Reactions
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("reactions: %w", err)
		}
		key, _ := keyTok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("reactions: %w", err)
		}
		out = append(out, Reaction{Emoji: key, Count: int(ParseID(string(bytes.Trim(raw, `"`))))})
	}
	*rs = out
	return nil
}

// MarshalJSON encodes the reactions as a JSON object in order.
func (rs Reactions) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, r := range rs {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(r.Emoji)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(strconv.Itoa(r.Count))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
