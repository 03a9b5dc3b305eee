package model

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewElementID 요소 ID 생성: <kind>_<unix ms>_<random>
// The random part keeps ids unique for elements created in the same millisecond.
func NewElementID(kind ElementKind, now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return kind.String() + "_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + random
}

// NewMutationID returns a client correlation id for one write.
func NewMutationID() string {
	return uuid.NewString()
}
