package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/jdtheefirst/creator-hq-sub000/services/booking-service/internal/calendar"
	"github.com/jdtheefirst/creator-hq-sub000/services/booking-service/internal/email"
	"github.com/jdtheefirst/creator-hq-sub000/services/booking-service/internal/events"
	"github.com/jdtheefirst/creator-hq-sub000/services/booking-service/internal/model"
)

const (
	TaskClientConfirmation = "email.client_confirmation"
	TaskCreatorNotice      = "email.creator_notification"
	TaskPaymentRequest     = "email.payment_request"
	TaskClientReschedule   = "email.client_reschedule"
	TaskClientCancellation = "email.client_cancellation"
	TaskCalendarSync       = "calendar.sync"
	TaskPublish            = "events.publish"
)

// errSkipped marks a task that had nothing to do.
var errSkipped = errors.New("skipped")

// Notice is one persisted lifecycle change to fan out.
type Notice struct {
	Kind        events.Kind
	Booking     model.Booking
	Creator     model.Creator
	PaymentLink string
	Note        string
}

// Report lists what each task did. Dispatch failures live here and nowhere else.
type Report struct {
	Kind      events.Kind
	Succeeded []string
	Skipped   []string
	Failed    map[string]error
}

// CredentialSource looks up a creator's calendar credential; model.ErrNotFound means none.
type CredentialSource interface {
	GetCalendarCredential(ctx context.Context, creatorID string) (model.CalendarCredential, error)
}

type Config struct {
	TaskTimeout    time.Duration
	MaxConcurrency int
}

type Dispatcher struct {
	mailer      email.Sender
	templates   *email.Templates
	calendar    calendar.Provider
	credentials CredentialSource
	publisher   events.Publisher
	logger      *zap.Logger
	cfg         Config
	now         func() time.Time
}

func New(mailer email.Sender, templates *email.Templates, cal calendar.Provider, creds CredentialSource, pub events.Publisher, logger *zap.Logger, cfg Config) *Dispatcher {
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 5 * time.Second
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 8
	}
	if cal == nil {
		cal = calendar.NoopProvider{}
	}
	if pub == nil {
		pub = events.NoopPublisher{}
	}
	return &Dispatcher{
		mailer:      mailer,
		templates:   templates,
		calendar:    cal,
		credentials: creds,
		publisher:   pub,
		logger:      logger.With(zap.String("component", "dispatch")),
		cfg:         cfg,
		now:         time.Now,
	}
}

type task struct {
	name string
	run  func(ctx context.Context) error
}

type result struct {
	name string
	err  error
}

// Notify runs every side effect for n concurrently and waits for all of them.
// It never fails; failures are logged and reported.
func (d *Dispatcher) Notify(ctx context.Context, n Notice) Report {
	// side effects outlive a cancelled request
	ctx = context.WithoutCancel(ctx)
	tasks := d.plan(n)

	p := pool.NewWithResults[result]().WithMaxGoroutines(d.cfg.MaxConcurrency)
	for _, t := range tasks {
		p.Go(func() result {
			return result{name: t.name, err: d.runTask(ctx, n, t)}
		})
	}

	rep := Report{Kind: n.Kind, Failed: map[string]error{}}
	for _, r := range p.Wait() {
		switch {
		case r.err == nil:
			rep.Succeeded = append(rep.Succeeded, r.name)
		case errors.Is(r.err, errSkipped):
			rep.Skipped = append(rep.Skipped, r.name)
		default:
			rep.Failed[r.name] = r.err
		}
	}
	sort.Strings(rep.Succeeded)
	sort.Strings(rep.Skipped)
	return rep
}

func (d *Dispatcher) runTask(ctx context.Context, n Notice, t task) (err error) {
	ctx, span := otel.Tracer("booking-service/dispatch").Start(ctx, "dispatch."+t.name)
	span.SetAttributes(
		attribute.String("booking.id", n.Booking.ID),
		attribute.String("booking.event", string(n.Kind)),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, d.cfg.TaskTimeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
		fields := []zap.Field{
			zap.String("booking_id", n.Booking.ID),
			zap.String("event", string(n.Kind)),
			zap.String("task", t.name),
		}
		switch {
		case err == nil:
			d.logger.Debug("dispatch task done", fields...)
		case errors.Is(err, errSkipped):
			d.logger.Debug("dispatch task skipped", append(fields, zap.Error(err))...)
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			d.logger.Warn("dispatch task failed", append(fields, zap.Error(err))...)
		}
	}()
	return t.run(ctx)
}

func (d *Dispatcher) plan(n Notice) []task {
	var out []task
	add := func(name string, run func(ctx context.Context) error) {
		out = append(out, task{name: name, run: run})
	}
	b := n.Booking

	switch n.Kind {
	case events.KindRequested:
		add(TaskCreatorNotice, d.mailCreator(n, email.TemplateCreatorRequest))
	case events.KindConfirmed, events.KindPaid:
		add(TaskClientConfirmation, d.mailClient(n, email.TemplateClientConfirmed))
		add(TaskCreatorNotice, d.mailCreator(n, email.TemplateCreatorConfirm))
		add(TaskCalendarSync, d.syncCalendar(n))
	case events.KindPaymentRequested:
		add(TaskPaymentRequest, d.mailClient(n, email.TemplatePaymentRequest))
	case events.KindRescheduled:
		add(TaskClientReschedule, d.mailClient(n, email.TemplateRescheduled))
		if b.Status == model.StatusConfirmed {
			add(TaskCalendarSync, d.syncCalendar(n))
		}
	case events.KindMeetingLinkSet:
		if b.Status == model.StatusConfirmed {
			add(TaskCalendarSync, d.syncCalendar(n))
		}
	case events.KindCancelled, events.KindRefunded:
		add(TaskClientCancellation, d.mailClient(n, email.TemplateCancelled))
	}
	add(TaskPublish, func(ctx context.Context) error {
		return d.publisher.Publish(ctx, events.NewLifecycleEvent(n.Kind, b, d.now()))
	})
	return out
}

func (d *Dispatcher) mailClient(n Notice, tpl email.Template) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return d.send(ctx, n.Booking.ClientEmail, tpl, n)
	}
}

func (d *Dispatcher) mailCreator(n Notice, tpl email.Template) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return d.send(ctx, n.Creator.Email, tpl, n)
	}
}

func (d *Dispatcher) send(ctx context.Context, to string, tpl email.Template, n Notice) error {
	if to == "" {
		return fmt.Errorf("%w: no recipient address", errSkipped)
	}
	msg, err := d.templates.Render(tpl, view(n))
	if err != nil {
		return err
	}
	return d.mailer.Send(ctx, to, msg.Subject, msg.HTML)
}

func (d *Dispatcher) syncCalendar(n Notice) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if d.credentials == nil {
			return fmt.Errorf("%w: calendar not configured", errSkipped)
		}
		cred, err := d.credentials.GetCalendarCredential(ctx, n.Booking.CreatorID)
		if errors.Is(err, model.ErrNotFound) {
			return fmt.Errorf("%w: creator has no calendar credential", errSkipped)
		}
		if err != nil {
			return fmt.Errorf("load calendar credential: %w", err)
		}
		b := n.Booking
		return d.calendar.UpsertEvent(ctx, cred, calendar.Event{
			BookingID:   b.ID,
			Summary:     fmt.Sprintf("%s with %s", b.ServiceType, b.ClientName),
			Description: b.Notes,
			Start:       b.BookingDate,
			End:         b.End(),
			Attendees:   []string{b.ClientEmail},
			MeetingLink: b.MeetingLink,
			Timezone:    n.Creator.Timezone,
		})
	}
}

func view(n Notice) email.View {
	b := n.Booking
	return email.View{
		CreatorName:  n.Creator.DisplayName,
		ClientName:   b.ClientName,
		ServiceType:  string(b.ServiceType),
		Start:        b.BookingDate,
		Timezone:     n.Creator.Timezone,
		Duration:     b.DurationMinutes,
		Price:        b.Price.StringFixed(2),
		Currency:     b.Currency,
		PaymentLink:  n.PaymentLink,
		MeetingLink:  b.MeetingLink,
		Note:         n.Note,
		CancelReason: b.CancelReason,
		BookingID:    b.ID,
	}
}
