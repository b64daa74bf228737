package automation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-notify/core"
	"github.com/trezcool/masomo-notify/core/notification"
	"github.com/trezcool/masomo-notify/core/user"
)

type (
	// Pusher delivers freshly created notifications to connected recipients, best-effort.
	Pusher interface {
		PushAll(notifs []notification.Notification) int
	}

	EngineDeps struct {
		Rules           *RuleService
		Notifications   *notification.Service
		Directory       user.Directory
		Pusher          Pusher
		MailSvc         core.EmailService // optional
		Logger          core.Logger
		FrontendBaseURL string
		EventTimeout    time.Duration
	}

	// Engine turns domain events into notifications according to the automation rules.
	Engine struct {
		deps     EngineDeps
		resolver *Resolver
		inflight sync.WaitGroup
	}

	RuleOutcome struct {
		RuleID     string
		RuleName   string
		Matched    bool // conditions satisfied
		Recipients int
		Created    int
		Pushed     int
		Err        error
	}

	Report struct {
		Event    string
		Outcomes []RuleOutcome
	}
)

func NewEngine(deps EngineDeps) *Engine {
	if deps.EventTimeout <= 0 {
		deps.EventTimeout = 30 * time.Second
	}
	return &Engine{
		deps:     deps,
		resolver: NewResolver(deps.Directory),
	}
}

// Created sums the notifications created across all rules.
func (r Report) Created() int {
	var n int
	for _, o := range r.Outcomes {
		n += o.Created
	}
	return n
}

// ProcessEvent runs the event through the engine. Failures are logged, never returned.
func (e *Engine) ProcessEvent(ctx context.Context, ev Event) {
	report := e.Process(ctx, ev)
	if len(report.Outcomes) > 0 {
		e.deps.Logger.Info(fmt.Sprintf("event %q processed : %d rule(s), %d notification(s)",
			report.Event, len(report.Outcomes), report.Created()))
	}
}

// Dispatch processes ev in the background, detached from the caller's lifetime.
func (e *Engine) Dispatch(ev Event) {
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.deps.EventTimeout)
		defer cancel()
		e.ProcessEvent(ctx, ev)
	}()
}

// Wait blocks until every dispatched event is processed.
func (e *Engine) Wait() {
	e.inflight.Wait()
}

// Process runs every enabled rule matching the event name. One rule failing does not stop the others.
func (e *Engine) Process(ctx context.Context, ev Event) Report {
	report := Report{Event: ev.Name()}

	rules, err := e.deps.Rules.EnabledFor(ctx, ev.Name())
	if err != nil {
		e.deps.Logger.Error(fmt.Sprintf("loading rules for event %q: %v", ev.Name(), err), err)
		return report
	}
	if len(rules) == 0 {
		return report
	}

	payload := ev.Fields()
	for _, rule := range rules {
		out := e.runRule(ctx, rule, ev, payload)
		if out.Err != nil {
			e.deps.Logger.Error(
				fmt.Sprintf("automation rule %q (%s) failed on event %q: %v", rule.Name, rule.ID, ev.Name(), out.Err),
				out.Err,
				map[string]interface{}{"rule_id": rule.ID, "event": ev.Name()},
			)
		}
		report.Outcomes = append(report.Outcomes, out)
	}
	return report
}

func (e *Engine) runRule(ctx context.Context, rule Rule, ev Event, payload Payload) (out RuleOutcome) {
	out = RuleOutcome{RuleID: rule.ID, RuleName: rule.Name}
	defer func() {
		if rec := recover(); rec != nil {
			out.Err = fmt.Errorf("panic: %v", rec)
		}
	}()

	if !rule.Conditions.Match(payload) {
		return out
	}
	out.Matched = true

	recipients, err := e.resolver.Resolve(ctx, rule.Recipients, ev)
	if err != nil {
		out.Err = err
		return out
	}
	out.Recipients = len(recipients)
	if len(recipients) == 0 {
		return out
	}

	nn := rule.Template.Render(payload, e.deps.Notifications.Now())
	notifs, err := e.deps.Notifications.CreateBulk(ctx, nn, recipients)
	if err != nil {
		out.Err = errors.Wrap(err, "creating notifications")
		return out
	}
	out.Created = len(notifs)

	if e.deps.Pusher != nil {
		out.Pushed = e.deps.Pusher.PushAll(notifs)
	}
	if rule.Template.SendEmail && e.deps.MailSvc != nil {
		e.sendEmails(ctx, notifs)
	}
	return out
}

func (e *Engine) sendEmails(ctx context.Context, notifs []notification.Notification) {
	msgs := make([]*core.EmailMessage, 0, len(notifs))
	for _, n := range notifs {
		usr, err := e.deps.Directory.FindByID(ctx, n.Recipient)
		if err != nil {
			if errors.Cause(err) != user.ErrNotFound {
				e.deps.Logger.Warn(fmt.Sprintf("looking up email recipient %s: %v", n.Recipient, err), err)
			}
			continue
		}
		if msg := notification.EmailMessage(n, usr, e.deps.FrontendBaseURL); msg != nil {
			msgs = append(msgs, msg)
		}
	}
	if len(msgs) > 0 {
		e.deps.MailSvc.SendMessages(msgs...)
	}
}
