package connection

import (
	"fmt"
	"sync/atomic"
	"time"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// ID_LENGTH is short enough to keep log lines readable.
const ID_LENGTH = 10

var fallback atomic.Uint64

// GenerateID returns an id for correlating the log lines of one connection.
func GenerateID() string {
	id, err := nanoid.New(ID_LENGTH)
	if err != nil {
		return fmt.Sprintf("%x-%d", time.Now().UnixNano(), fallback.Add(1))
	}

	return id
}
