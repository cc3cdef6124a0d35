// Package push delivers best-effort mobile notifications.
package push

import (
	"context"
	"errors"
	"regexp"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

type Notification struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Sender delivers a notification to a single device token.
type Sender interface {
	Send(ctx context.Context, token string, n Notification) error
}

var errAborted = errors.New("push sender aborted")

var tokenPattern = regexp.MustCompile(`^(ExponentPushToken|ExpoPushToken)\[[^\]]+\]$`)

// ValidToken reports whether token has the push service token format.
func ValidToken(token string) bool {
	return tokenPattern.MatchString(token)
}

type Dispatcher struct {
	sender Sender
	log    *zap.Logger
}

func NewDispatcher(sender Sender, log *zap.Logger) *Dispatcher {
	return &Dispatcher{sender: sender, log: log}
}

// Send pushes n to every well-formed token in parallel and waits for all of
// them. Malformed tokens are skipped and per-token failures are only logged,
// so it returns the number of tokens that were delivered.
func (d *Dispatcher) Send(ctx context.Context, n Notification, tokens ...string) int {
	valid := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if ValidToken(token) {
			valid = append(valid, token)
		} else if token != "" {
			d.log.Debug("push token skipped", zap.String("token", token))
		}
	}
	if len(valid) == 0 {
		return 0
	}

	results := make([]error, len(valid))
	for i := range results {
		results[i] = errAborted
	}
	var wg conc.WaitGroup
	for i, token := range valid {
		wg.Go(func() {
			results[i] = d.sender.Send(ctx, token, n)
		})
	}
	if r := wg.WaitAndRecover(); r != nil {
		d.log.Error("push sender panicked", zap.Any("panic", r.Value))
	}

	delivered := 0
	for i, err := range results {
		if err != nil {
			d.log.Warn("push failed", zap.String("token", valid[i]), zap.Error(err))
			continue
		}
		delivered++
	}
	return delivered
}
