package meetingbot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"meeting-bot/internal/domain/bot"
	"meeting-bot/internal/pkg/jwt"
	"meeting-bot/internal/pkg/retry"
)

type TokenIssuer interface {
	Issue(subject, scope, jobID string, ttl time.Duration) (string, error)
}

type callbackError struct {
	code int
	body string
}

func (e *callbackError) Error() string {
	return fmt.Sprintf("callback failed: status=%d body=%s", e.code, e.body)
}

func (e *callbackError) HTTPStatus() int { return e.code }

// deliveryTimeout covers every attempt of one callback under the Critical retry profile.
const deliveryTimeout = 2 * time.Minute

// CallbackNotifier POSTs the final job snapshot to the job's callbackUrl once it reaches a terminal state.
// Each delivery runs in its own goroutine, so an unreachable receiver delays only its own job.
type CallbackNotifier struct {
	client  *http.Client
	tokens  TokenIssuer
	subject string
	ttl     time.Duration
	policy  retry.Policy
	logger  *log.Logger

	inflight sync.WaitGroup
}

// NewCallbackNotifier signs callbacks with tokens when it is non-nil.
func NewCallbackNotifier(tokens TokenIssuer, subject string, ttl time.Duration, logger *log.Logger) *CallbackNotifier {
	return &CallbackNotifier{
		client:  &http.Client{Timeout: 10 * time.Second},
		tokens:  tokens,
		subject: subject,
		ttl:     ttl,
		policy:  retry.Critical(),
		logger:  logger,
	}
}

type callbackPayload struct {
	Event string  `json:"event"`
	Job   bot.Job `json:"job"`
}

func (n *CallbackNotifier) JobUpdated(ctx context.Context, job bot.Job) {
	if n == nil || !job.Status.Terminal() || strings.TrimSpace(job.CallbackURL) == "" {
		return
	}
	n.inflight.Add(1)
	go func() {
		defer n.inflight.Done()
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
		defer cancel()
		n.deliver(dctx, job)
	}()
}

// Drain waits for callbacks already handed to JobUpdated.
func (n *CallbackNotifier) Drain(ctx context.Context) error {
	if n == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		n.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *CallbackNotifier) deliver(ctx context.Context, job bot.Job) {
	body, err := json.Marshal(callbackPayload{Event: "job." + string(job.Status), Job: job})
	if err != nil {
		return
	}

	var token string
	if n.tokens != nil {
		token, err = n.tokens.Issue(n.subject, jwt.ScopeCallback, job.ID, n.ttl)
		if err != nil {
			n.logf("[Callback] job_id=%s status=unsigned err=%v", job.ID, err)
			token = ""
		}
	}

	err = retry.Run(ctx, n.policy, func(ctx context.Context) error {
		return n.post(ctx, job.CallbackURL, token, body)
	})
	if err != nil {
		n.logf("[Callback] job_id=%s url=%s status=error err=%v", job.ID, job.CallbackURL, err)
		return
	}
	n.logf("[Callback] job_id=%s status=sent job_status=%s", job.ID, job.Status)
}

func (n *CallbackNotifier) post(ctx context.Context, endpoint, token string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &callbackError{code: resp.StatusCode, body: strings.TrimSpace(string(rb))}
	}
	return nil
}

func (n *CallbackNotifier) logf(format string, args ...any) {
	if n.logger != nil {
		n.logger.Printf(format, args...)
	}
}

var (
	_ Notifier = (*CallbackNotifier)(nil)
	_ drainer  = (*CallbackNotifier)(nil)
)
