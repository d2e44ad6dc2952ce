package worker

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"concierge/internal/domain"
	"concierge/internal/observability"
	"concierge/internal/providers/twilio"
)

type WhatsAppSender interface {
	SendWhatsApp(ctx context.Context, req twilio.SendRequest) (twilio.SendResponse, int, []byte, error)
}

// Dispatcher sends replies through Twilio behind a per-pod rate limiter and a
// circuit breaker. Errors come back classified: a *domain.DispatchError with
// Retryable decides whether the job is redelivered.
type Dispatcher struct {
	Sender  WhatsAppSender
	Limiter *rate.Limiter
	Breaker *gobreaker.CircuitBreaker
}

type sendResult struct {
	resp       twilio.SendResponse
	httpStatus int
}

// Send delivers one message, retrying transient failures in-process before
// handing the decision back to the queue.
func (d *Dispatcher) Send(ctx context.Context, from, to, body string) error {
	var lastErr error
	start := time.Now()

	for attempt := 0; attempt < 3; attempt++ {
		if d.Limiter != nil {
			waitCtx, cancelWait := context.WithTimeout(ctx, 2*time.Second)
			err := d.Limiter.Wait(waitCtx)
			cancelWait()
			if err != nil {
				observability.DispatchSend.WithLabelValues("rate_limited_local", "0").Inc()
				time.Sleep(200 * time.Millisecond)
				continue
			}
		}

		resAny, err := d.executeWithBreaker(ctx, from, to, body)

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			observability.DispatchSend.WithLabelValues("cb_open", "0").Inc()
			// transient provider protection, never a terminal job failure
			return &domain.DispatchError{Err: err, Retryable: true}
		}

		if err == nil {
			r := resAny.(sendResult)
			observability.DispatchSend.WithLabelValues("ok", strconv.Itoa(r.httpStatus)).Inc()
			observability.DispatchLatency.Observe(time.Since(start).Seconds())
			return nil
		}

		lastErr = err
		httpStatus := 0
		var de *domain.DispatchError
		if errors.As(err, &de) {
			httpStatus = de.Status
		}
		observability.DispatchSend.WithLabelValues("error", strconv.Itoa(httpStatus)).Inc()

		if !twilio.ShouldRetry(errors.Unwrap(err), httpStatus) {
			return &domain.DispatchError{Err: err, Status: httpStatus, Retryable: false}
		}
		time.Sleep(twilio.Backoff(attempt))
	}

	return &domain.DispatchError{Err: lastErr, Retryable: true}
}

func (d *Dispatcher) executeWithBreaker(ctx context.Context, from, to, body string) (any, error) {
	call := func() (any, error) {
		reqCtx, cancel := context.WithTimeout(ctx, 8*time.Second)
		defer cancel()

		resp, httpStatus, _, callErr := d.Sender.SendWhatsApp(reqCtx, twilio.SendRequest{
			From: from,
			To:   to,
			Body: body,
		})
		if callErr != nil {
			return nil, &domain.DispatchError{Err: callErr, Status: httpStatus, Retryable: true}
		}
		return sendResult{resp: resp, httpStatus: httpStatus}, nil
	}

	if d.Breaker == nil {
		return call()
	}
	return d.Breaker.Execute(call)
}
