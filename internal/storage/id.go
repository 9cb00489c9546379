package storage

import (
	"strings"

	"github.com/google/uuid"
)

const (
	// ShortLen is the short display length used in CLI output.
	ShortLen = 8
	// MinPrefixLen is the minimum prefix length considered for ID matching.
	MinPrefixLen = 4
)

// NewThreadID generates an identifier for a new thread.
func NewThreadID() string {
	return uuid.NewString()
}

// NewMessageID generates an identifier for a stored message.
func NewMessageID() string {
	return "msg_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ShortID truncates id for display.
func ShortID(id string) string {
	if len(id) > ShortLen {
		return id[:ShortLen]
	}
	return id
}
