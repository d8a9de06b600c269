package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func AnalysisKey(id uuid.UUID) string {
	return fmt.Sprintf("analysis:%s", id)
}

func RateLimitKey(caller string) string {
	return fmt.Sprintf("ratelimit:%s", caller)
}
