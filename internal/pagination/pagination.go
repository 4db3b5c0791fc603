package pagination

import (
	"encoding/base64"
	"errors"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultLimit applies when the limit parameter is missing or not numeric.
	DefaultLimit = 100
	// MinLimit is the smallest page size served.
	MinLimit = 1
	// MaxLimit is the largest page size served.
	MaxLimit = 500

	queryLimit  = "limit"
	queryCursor = "cursor"
	queryOffset = "offset"

	cursorKeySeparator = "."
)

// Mode selects the windowing strategy for a list request.
type Mode int

const (
	// ModeCursor windows by an ordering key taken from the last returned row.
	ModeCursor Mode = iota
	// ModeOffset windows by row offset. hasMore is inferred from a full page and
	// reports a false positive when exactly limit rows remain.
	ModeOffset
)

// Cursor identifies the last row of a previous page.
// Millis is the row's creation time; Key optionally carries the remaining
// ordering columns so that rows sharing a millisecond are not skipped.
type Cursor struct {
	Millis int64
	Key    string
}

// HasKey reports whether the cursor carries a tie-break key.
func (c Cursor) HasKey() bool {
	return c.Key != ""
}

// String encodes the cursor for a response.
func (c Cursor) String() string {
	encoded := strconv.FormatInt(c.Millis, 10)
	if c.Key == "" {
		return encoded
	}
	return encoded + cursorKeySeparator + base64.RawURLEncoding.EncodeToString([]byte(c.Key))
}

// Request captures the normalized pagination parameters of a list call.
type Request struct {
	Mode   Mode
	Limit  int
	Offset int
	Cursor *Cursor
}

// ParseRequest normalizes list query parameters. It never fails: unusable
// values fall back to their defaults.
func ParseRequest(values url.Values) Request {
	request := Request{
		Mode:  ModeCursor,
		Limit: ParseLimit(values.Get(queryLimit)),
	}

	if cursor, ok := ParseCursor(values.Get(queryCursor)); ok {
		request.Cursor = &cursor
		return request
	}

	if _, present := values[queryOffset]; present && strings.TrimSpace(values.Get(queryCursor)) == "" {
		request.Mode = ModeOffset
		request.Offset = ParseOffset(values.Get(queryOffset))
	}
	return request
}

// ParseLimit clamps the raw limit into [MinLimit, MaxLimit].
func ParseLimit(raw string) int {
	trimmed := strings.TrimSpace(raw)
	value, err := strconv.Atoi(trimmed)
	if err != nil {
		// Out of range integers still clamp by sign.
		if errors.Is(err, strconv.ErrRange) {
			if strings.HasPrefix(trimmed, "-") {
				return MinLimit
			}
			return MaxLimit
		}
		return DefaultLimit
	}
	return ClampLimit(value)
}

// ClampLimit bounds a numeric limit into [MinLimit, MaxLimit].
func ClampLimit(value int) int {
	if value < MinLimit {
		return MinLimit
	}
	if value > MaxLimit {
		return MaxLimit
	}
	return value
}

// ParseOffset returns a non-negative offset, defaulting to zero.
func ParseOffset(raw string) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value < 0 {
		return 0
	}
	return value
}

// ParseCursor decodes a cursor. Anything that is not a positive millisecond
// value (optionally followed by a well-formed key) reports ok=false.
func ParseCursor(raw string) (Cursor, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Cursor{}, false
	}

	millisPart, keyPart, hasKey := strings.Cut(trimmed, cursorKeySeparator)
	millis, err := strconv.ParseInt(millisPart, 10, 64)
	if err != nil || millis <= 0 {
		return Cursor{}, false
	}
	if !hasKey {
		return Cursor{Millis: millis}, true
	}

	key, err := base64.RawURLEncoding.DecodeString(keyPart)
	if err != nil || len(key) == 0 {
		return Cursor{}, false
	}
	return Cursor{Millis: millis, Key: string(key)}, true
}

// FetchSize is the number of rows to request from the store for a window.
func (r Request) FetchSize() int {
	if r.Mode == ModeOffset {
		return r.Limit
	}
	return r.Limit + 1
}

// Page is a trimmed window of rows.
type Page[T any] struct {
	Items   []T
	HasMore bool
}

// Window trims rows fetched with FetchSize into the page returned to the caller.
func Window[T any](request Request, rows []T) Page[T] {
	if rows == nil {
		rows = []T{}
	}
	if request.Mode == ModeOffset {
		return Page[T]{Items: rows, HasMore: len(rows) == request.Limit}
	}
	if len(rows) > request.Limit {
		return Page[T]{Items: rows[:request.Limit], HasMore: true}
	}
	return Page[T]{Items: rows, HasMore: false}
}
