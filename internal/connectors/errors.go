package connectors

import (
	"fmt"
	"time"
)

// ThrottleError сигнализирует, что upstream просит прийти позже
// (429/503 с заголовком Retry-After). Потребляется стартовой пробой
// соединения — в request path повторов нет.
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}
