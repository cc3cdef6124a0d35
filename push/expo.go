package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"messenger-core/config"
)

type expoMessage struct {
	To    string            `json:"to"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
	Sound string            `json:"sound"`
}

type expoTicket struct {
	Data struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"data"`
}

// Expo posts notifications to the Expo push API behind a circuit breaker, so an
// unreachable push service fails fast instead of piling up timeouts.
type Expo struct {
	url         string
	accessToken string
	timeout     time.Duration
	cb          *gobreaker.CircuitBreaker
}

var _ Sender = (*Expo)(nil)

func NewExpo(s config.PushSettings, log *zap.Logger) *Expo {
	st := gobreaker.Settings{
		Name:        "push",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Info("circuit breaker state", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}
	return &Expo{
		url:         s.APIURL,
		accessToken: s.AccessToken,
		timeout:     s.Timeout,
		cb:          gobreaker.NewCircuitBreaker(st),
	}
}

func (e *Expo) Send(ctx context.Context, token string, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := e.cb.Execute(func() (interface{}, error) {
		return nil, e.post(ctx, token, n)
	})
	return err
}

// timeoutFor bounds the request by the configured timeout and by what is left
// of ctx.
func (e *Expo) timeoutFor(ctx context.Context) (time.Duration, error) {
	timeout := e.timeout
	if deadline, ok := ctx.Deadline(); ok {
		left := time.Until(deadline)
		if left <= 0 {
			return 0, context.DeadlineExceeded
		}
		if timeout <= 0 || left < timeout {
			timeout = left
		}
	}
	return timeout, nil
}

func (e *Expo) post(ctx context.Context, token string, n Notification) error {
	timeout, err := e.timeoutFor(ctx)
	if err != nil {
		return err
	}

	agent := fiber.Post(e.url)
	agent.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
	if e.accessToken != "" {
		agent.Set(fiber.HeaderAuthorization, "Bearer "+e.accessToken)
	}
	agent.Timeout(timeout)
	agent.JSON(expoMessage{To: token, Title: n.Title, Body: n.Body, Data: n.Data, Sound: "default"})

	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if code < 200 || code >= 300 {
		return fmt.Errorf("push api returned %d", code)
	}

	var ticket expoTicket
	if err := json.Unmarshal(body, &ticket); err != nil {
		return fmt.Errorf("decode push ticket: %w", err)
	}
	if ticket.Data.Status == "error" {
		return fmt.Errorf("push rejected: %s", ticket.Data.Message)
	}
	return nil
}
