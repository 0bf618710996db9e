package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

const snippetLimit = 280

// Message is a rendered email.
type Message struct {
	Subject string
	HTML    string
}

type Renderer struct {
	siteURL string
	tmpl    *template.Template
}

func NewRenderer(siteURL string) *Renderer {
	return &Renderer{
		siteURL: strings.TrimRight(siteURL, "/"),
		tmpl:    template.Must(template.New("notify").Parse(emailTemplates)),
	}
}

type rideView struct {
	RecipientName string
	RideName      string
	When          string
	Location      string
	HostName      string
	Notes         string
	DistanceMiles string
	RideURL       string
	SettingsURL   string
}

type rideMessageView struct {
	rideView
	SenderName  string
	Snippet     string
	UnreadCount int
}

type directMessageView struct {
	RecipientName string
	SenderName    string
	Snippet       string
	ProfileURL    string
	ThreadURL     string
	SettingsURL   string
}

func (r *Renderer) LocalRide(rcpt Recipient, ride RideDetails, distanceMiles float64) (Message, error) {
	view := r.rideView(rcpt, ride.ID, ride.Name, ride.Date, ride.Location, ride.HostName, "")
	view.DistanceMiles = fmt.Sprintf("%.1f", distanceMiles)
	return r.render("local_ride", "New ride near you: "+ride.Name, view)
}

func (r *Renderer) RideCancelled(rcpt Recipient, ride RideSnapshot) (Message, error) {
	view := r.rideView(rcpt, "", ride.Name, ride.Date, ride.Location, ride.HostName, ride.Notes)
	return r.render("ride_cancelled", "Ride cancelled: "+ride.Name, view)
}

func (r *Renderer) RidePostponed(rcpt Recipient, ride RideSnapshot) (Message, error) {
	view := r.rideView(rcpt, ride.ID, ride.Name, ride.Date, ride.Location, ride.HostName, ride.Notes)
	return r.render("ride_postponed", "Ride postponed: "+ride.Name, view)
}

// RideMessage renders with the recipient's unread count as of send time.
func (r *Renderer) RideMessage(rcpt Recipient, ev RideMessage, unread int) (Message, error) {
	if unread < 1 {
		unread = 1
	}
	view := rideMessageView{
		rideView:    r.rideView(rcpt, ev.RideID, ev.RideName, ev.RideDate, ev.Location, "", ""),
		SenderName:  ev.SenderName,
		Snippet:     truncate(ev.Snippet),
		UnreadCount: unread,
	}
	noun := "message"
	if unread > 1 {
		noun = "messages"
	}
	return r.render("ride_message", fmt.Sprintf("%d new %s in %s", unread, noun, ev.RideName), view)
}

func (r *Renderer) DirectMessage(rcpt Recipient, ev DirectMessage) (Message, error) {
	profile := ev.ProfileURL
	if profile == "" {
		profile = r.link("riders", ev.SenderID)
	}
	view := directMessageView{
		RecipientName: rcpt.Name,
		SenderName:    ev.SenderName,
		Snippet:       truncate(ev.Snippet),
		ProfileURL:    profile,
		ThreadURL:     r.link("messages", ev.SenderID),
		SettingsURL:   r.link("settings", "notifications"),
	}
	return r.render("direct_message", "New message from "+ev.SenderName, view)
}

func (r *Renderer) rideView(rcpt Recipient, rideID, name string, when time.Time, location, host, notes string) rideView {
	view := rideView{
		RecipientName: rcpt.Name,
		RideName:      name,
		Location:      location,
		HostName:      host,
		Notes:         notes,
		SettingsURL:   r.link("settings", "notifications"),
	}
	if !when.IsZero() {
		view.When = when.UTC().Format("Mon Jan 2, 2006 at 15:04 MST")
	}
	if rideID != "" {
		view.RideURL = r.link("rides", rideID)
	}
	return view
}

func (r *Renderer) link(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return r.siteURL + "/" + strings.Join(escaped, "/")
}

func (r *Renderer) render(name, subject string, data any) (Message, error) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return Message{}, fmt.Errorf("render %s: %w", name, err)
	}
	return Message{Subject: subject, HTML: buf.String()}, nil
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= snippetLimit {
		return s
	}
	runes := []rune(s)
	return string(runes[:snippetLimit]) + "…"
}

const emailTemplates = `
{{define "greeting"}}<p>Hi{{if .RecipientName}} {{.RecipientName}}{{end}},</p>{{end}}
{{define "footer"}}<p style="color:#777;font-size:12px">You can change which emails you get in your <a href="{{.SettingsURL}}">notification settings</a>.</p>{{end}}

{{define "local_ride"}}{{template "greeting" .}}
<p>A new ride was posted about {{.DistanceMiles}} miles from you.</p>
<p><strong>{{.RideName}}</strong><br>{{.When}}{{if .Location}}<br>{{.Location}}{{end}}{{if .HostName}}<br>Hosted by {{.HostName}}{{end}}</p>
<p><a href="{{.RideURL}}">View ride</a></p>
{{template "footer" .}}{{end}}

{{define "ride_cancelled"}}{{template "greeting" .}}
<p><strong>{{.RideName}}</strong> on {{.When}} has been cancelled{{if .HostName}} by {{.HostName}}{{end}}.</p>
{{if .Notes}}<p>{{.Notes}}</p>{{end}}
{{template "footer" .}}{{end}}

{{define "ride_postponed"}}{{template "greeting" .}}
<p><strong>{{.RideName}}</strong> on {{.When}} has been postponed{{if .HostName}} by {{.HostName}}{{end}}.</p>
{{if .Notes}}<p>{{.Notes}}</p>{{end}}
<p><a href="{{.RideURL}}">View ride</a></p>
{{template "footer" .}}{{end}}

{{define "ride_message"}}{{template "greeting" .}}
<p>You have {{.UnreadCount}} unread {{if eq .UnreadCount 1}}message{{else}}messages{{end}} in <strong>{{.RideName}}</strong>{{if .When}} ({{.When}}){{end}}.</p>
<blockquote>{{.SenderName}}: {{.Snippet}}</blockquote>
<p><a href="{{.RideURL}}">Open the ride chat</a></p>
{{template "footer" .}}{{end}}

{{define "direct_message"}}{{template "greeting" .}}
<p><a href="{{.ProfileURL}}">{{.SenderName}}</a> sent you a message:</p>
<blockquote>{{.Snippet}}</blockquote>
<p><a href="{{.ThreadURL}}">Reply</a></p>
{{template "footer" .}}{{end}}
`
