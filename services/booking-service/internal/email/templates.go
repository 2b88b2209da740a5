package email

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

// Message is a rendered email.
type Message struct {
	Subject string
	HTML    string
}

// View is the data every template renders from.
type View struct {
	CreatorName  string
	ClientName   string
	ServiceType  string
	Start        time.Time
	Timezone     string
	Duration     int
	Price        string
	Currency     string
	PaymentLink  string
	MeetingLink  string
	Note         string
	CancelReason string
	BookingID    string
}

func (v View) When() string {
	loc, err := time.LoadLocation(v.Timezone)
	if err != nil || v.Timezone == "" {
		loc = time.UTC
	}
	return v.Start.In(loc).Format("Mon, 02 Jan 2006 15:04 MST")
}

type Template string

const (
	TemplateCreatorRequest  Template = "creator_request"
	TemplateClientConfirmed Template = "client_confirmed"
	TemplateCreatorConfirm  Template = "creator_confirmed"
	TemplatePaymentRequest  Template = "payment_request"
	TemplateRescheduled     Template = "rescheduled"
	TemplateCancelled       Template = "cancelled"
)

type tmpl struct {
	subject string
	body    *template.Template
}

// Templates renders the transactional emails the booking flow sends.
type Templates struct {
	set map[Template]tmpl
}

const layout = `<!doctype html><html><body style="font-family:sans-serif">{{template "content" .}}<p style="color:#888;font-size:12px">Booking {{.BookingID}}</p></body></html>`

var sources = map[Template][2]string{
	TemplateCreatorRequest: {
		"New booking request from %s",
		`<p>{{.ClientName}} requested a {{.ServiceType}} session on {{.When}} ({{.Duration}} min).</p><p>Quoted price: {{.Price}} {{.Currency}}</p>{{if .Note}}<p>Notes: {{.Note}}</p>{{end}}`,
	},
	TemplateClientConfirmed: {
		"Your session with %s is confirmed",
		`<p>Hi {{.ClientName}},</p><p>Your {{.ServiceType}} session with {{.CreatorName}} on {{.When}} is confirmed.</p>{{if .MeetingLink}}<p><a href="{{.MeetingLink}}">Join meeting</a></p>{{end}}`,
	},
	TemplateCreatorConfirm: {
		"Booking confirmed: %s",
		`<p>Your {{.ServiceType}} session with {{.ClientName}} on {{.When}} is confirmed.</p>`,
	},
	TemplatePaymentRequest: {
		"Payment request from %s",
		`<p>Hi {{.ClientName}},</p><p>Please complete payment of {{.Price}} {{.Currency}} for your {{.ServiceType}} session on {{.When}}.</p><p><a href="{{.PaymentLink}}">Pay now</a></p>{{if .Note}}<p>{{.Note}}</p>{{end}}`,
	},
	TemplateRescheduled: {
		"Your session with %s was rescheduled",
		`<p>Hi {{.ClientName}},</p><p>Your {{.ServiceType}} session is now on {{.When}} ({{.Duration}} min).</p>`,
	},
	TemplateCancelled: {
		"Your session with %s was cancelled",
		`<p>Hi {{.ClientName}},</p><p>Your {{.ServiceType}} session on {{.When}} was cancelled.</p>{{if .CancelReason}}<p>Reason: {{.CancelReason}}</p>{{end}}`,
	},
}

func NewTemplates() (*Templates, error) {
	t := &Templates{set: make(map[Template]tmpl, len(sources))}
	for name, src := range sources {
		root, err := template.New(string(name)).Parse(layout)
		if err != nil {
			return nil, fmt.Errorf("email: parse layout: %w", err)
		}
		if _, err := root.New("content").Parse(src[1]); err != nil {
			return nil, fmt.Errorf("email: parse %s: %w", name, err)
		}
		t.set[name] = tmpl{subject: src[0], body: root}
	}
	return t, nil
}

// Render builds the message. Subjects name the counterpart: the client for creator
// mail, the creator for client mail.
func (t *Templates) Render(name Template, v View) (Message, error) {
	tp, ok := t.set[name]
	if !ok {
		return Message{}, fmt.Errorf("email: unknown template %q", name)
	}
	var buf bytes.Buffer
	if err := tp.body.Execute(&buf, v); err != nil {
		return Message{}, fmt.Errorf("email: render %s: %w", name, err)
	}
	who := v.CreatorName
	if name == TemplateCreatorRequest || name == TemplateCreatorConfirm {
		who = v.ClientName
	}
	return Message{Subject: fmt.Sprintf(tp.subject, who), HTML: buf.String()}, nil
}
