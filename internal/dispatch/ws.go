package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"layanan/internal/worker"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WSListener receives dispatch signals for one mitra over a websocket and
// reconnects with backoff until its context ends.
type WSListener struct {
	baseURL string
	token   string
	dialer  *websocket.Dialer
	retry   worker.RetryPolicy
	logger  *zerolog.Logger
}

func NewWSListener(baseURL, token string, logger *zerolog.Logger) *WSListener {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &WSListener{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		retry:   worker.RetryPolicy{InitialDelay: time.Second, MaxDelay: time.Minute, BackoffFactor: 2},
		logger:  logger,
	}
}

// Listen blocks, handing every signal to handle, until ctx is done.
func (l *WSListener) Listen(ctx context.Context, mitraID int64, handle func(Signal)) error {
	endpoint := fmt.Sprintf("%s/mitras/%d/dispatch", l.baseURL, mitraID)
	attempt := 0
	for {
		connected, err := l.session(ctx, endpoint, handle)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			attempt = 0
		}
		attempt++
		delay := l.retry.NextDelay(attempt)
		l.logger.Warn().Err(err).Int64("mitra_id", mitraID).Dur("retry_in", delay).Msg("dispatch socket closed")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// session runs one connection and reports whether the dial succeeded.
func (l *WSListener) session(ctx context.Context, endpoint string, handle func(Signal)) (bool, error) {
	header := http.Header{}
	header.Set("X-Request-ID", uuid.NewString())
	if l.token != "" {
		header.Set("Authorization", "Bearer "+l.token)
	}
	conn, _, err := l.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		var sig Signal
		if err := conn.ReadJSON(&sig); err != nil {
			return true, err
		}
		if sig.ReceivedAt.IsZero() {
			sig.ReceivedAt = time.Now()
		}
		handle(sig)
	}
}
