// Package rtdb is a small realtime store: clients write children under a
// path and every subscriber of that path receives a child_added event for
// each existing and future child. It backs the push channel of a thread view.
package rtdb

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Op identifies a frame type.
type Op string

const (
	OpAuth       Op = "auth"
	OpSubscribe  Op = "sub"
	OpSet        Op = "set"
	OpAck        Op = "ack"
	OpChildAdded Op = "child_added"
	OpError      Op = "error"
)

// Frame is the single JSON envelope used in both directions.
type Frame struct {
	Op    Op              `json:"op"`
	Ref   uint64          `json:"ref,omitempty"`
	Path  string          `json:"path,omitempty"`
	Key   string          `json:"key,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	UID   string          `json:"uid,omitempty"`
	Token string          `json:"token,omitempty"`
	Error string          `json:"error,omitempty"`
}

const permissionDenied = "permission denied"

var (
	// ErrPermissionDenied is returned when the store rejects credentials or
	// an unauthenticated request.
	ErrPermissionDenied = errors.New(permissionDenied)

	// ErrClosed is returned for calls on a closed connection.
	ErrClosed = errors.New("rtdb: connection closed")
)

func frameError(f Frame) error {
	if f.Error == permissionDenied {
		return ErrPermissionDenied
	}
	return fmt.Errorf("rtdb: %s", f.Error)
}

// CleanPath normalizes a slash separated path. It reports false for empty
// paths and paths with empty or dot segments.
func CleanPath(p string) (string, bool) {
	p = strings.Trim(p, "/")
	if p == "" {
		return "", false
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", false
		}
	}
	return p, true
}
