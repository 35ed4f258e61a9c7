package errx

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/redis/go-redis/v9"
)

// RedisTimeoutMessage describes a checkpoint call that ran out of time.
const RedisTimeoutMessage = "redis operation timed out"

// WrapRedis maps checkpoint store errors to AppError. A missing key is 404,
// deadlines and network timeouts are 504, everything else is 502.
func WrapRedis(err error) error {
	if err == nil {
		return nil
	}

	var netErr net.Error
	switch {
	case errors.Is(err, redis.Nil):
		return New(err, http.StatusNotFound, RedisNotFoundMessage)
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return New(err, http.StatusGatewayTimeout, RedisTimeoutMessage)
	}
	return New(err, http.StatusBadGateway, RedisErrorMessage)
}
