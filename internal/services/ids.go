package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// generateID combines a millisecond timestamp with a random suffix so records
// created in the same millisecond never collide.
func generateID(prefix string, now time.Time) string {
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("%s%d_%s", prefix, now.UnixMilli(), suffix)
}
