package chat

import (
	"log/slog"
	"time"

	"github.com/Tyrowin/roomchat/internal/metrics"
)

// Defaults applied to zero-valued Options fields.
const (
	DefaultHistoryLimit = 50
	DefaultGracePeriod  = 5 * time.Minute
)

// Options configures a Registry, the Rooms it creates and the Router built on
// top of it.
type Options struct {
	// HistoryLimit bounds the number of messages retained per room.
	HistoryLimit int
	// GracePeriod is how long a room must stay empty before it is deleted.
	GracePeriod time.Duration
	// TrustClientIdentity lets client supplied sender and timestamp fields
	// override the values assigned by the server.
	TrustClientIdentity bool

	Logger  *slog.Logger
	Metrics *metrics.Metrics
	// Clock returns the current time; time.Now when nil.
	Clock func() time.Time
}

func (o Options) withDefaults() Options {
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = DefaultHistoryLimit
	}
	if o.GracePeriod <= 0 {
		o.GracePeriod = DefaultGracePeriod
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}
