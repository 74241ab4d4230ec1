// Package forms holds the per-user form instances behind the edit and upload
// views and the controller that submits them.
package forms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Bradawan/sqtracker/internal/backend"
)

type NotificationKind string

const (
	NotifySuccess NotificationKind = "success"
	NotifyError   NotificationKind = "error"
)

type Notification struct {
	Kind    NotificationKind `json:"kind"`
	Message string           `json:"message"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

type Navigator interface {
	Navigate(path string)
}

// ErrBusy is returned when a submission is already in flight for the form.
var ErrBusy = errors.New("submission already in progress")

// Submission describes one network submission and how to report it.
type Submission struct {
	Send           func(ctx context.Context) (backend.Response, error)
	SuccessMessage string
	FailurePrefix  string
	Destination    func(identifier string) string
}

type OutcomeKind int

const (
	OutcomeSucceeded OutcomeKind = iota + 1
	OutcomeFailed
)

// Outcome is the single terminal result of a submission.
type Outcome struct {
	Kind       OutcomeKind
	Identifier string
	Reason     string
	Location   string
}

func (o Outcome) Succeeded() bool {
	return o.Kind == OutcomeSucceeded
}

// Controller runs at most one submission at a time.
type Controller struct {
	busy   atomic.Bool
	logger *zap.Logger
}

func NewController(logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{logger: logger}
}

func (c *Controller) Busy() bool {
	return c.busy.Load()
}

// Submit dispatches sub and emits exactly one notification. A call made while
// another is in flight returns ErrBusy without sending anything.
func (c *Controller) Submit(ctx context.Context, sub Submission, notifier Notifier, navigator Navigator) (Outcome, error) {
	if !c.busy.CompareAndSwap(false, true) {
		return Outcome{}, ErrBusy
	}
	defer c.busy.Store(false)

	if notifier == nil {
		notifier = logNotifier{logger: c.logger}
	}

	outcome := c.dispatch(ctx, sub)
	if outcome.Succeeded() {
		notifier.Notify(ctx, Notification{Kind: NotifySuccess, Message: sub.SuccessMessage})
		if navigator != nil {
			navigator.Navigate(outcome.Location)
		}
		return outcome, nil
	}
	notifier.Notify(ctx, Notification{Kind: NotifyError, Message: fmt.Sprintf("%s: %s", sub.FailurePrefix, outcome.Reason)})
	return outcome, nil
}

// logNotifier stands in when the caller has nowhere to show notifications.
type logNotifier struct {
	logger *zap.Logger
}

func (n logNotifier) Notify(_ context.Context, notification Notification) {
	n.logger.Info("notification", zap.String("kind", string(notification.Kind)), zap.String("message", notification.Message))
}

func (c *Controller) dispatch(ctx context.Context, sub Submission) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("submission panicked", zap.Any("panic", r))
			outcome = Outcome{Kind: OutcomeFailed, Reason: "unexpected error"}
		}
	}()

	resp, err := sub.Send(ctx)
	if err != nil {
		c.logger.Error("submission transport failure", zap.Error(err))
		return Outcome{Kind: OutcomeFailed, Reason: err.Error()}
	}
	if !resp.OK() {
		reason := strings.TrimSpace(resp.Body)
		if reason == "" {
			reason = fmt.Sprintf("request failed with status %d", resp.Status)
		}
		return Outcome{Kind: OutcomeFailed, Reason: reason}
	}

	identifier := strings.TrimSpace(resp.Body)
	return Outcome{
		Kind:       OutcomeSucceeded,
		Identifier: identifier,
		Location:   sub.Destination(identifier),
	}
}
