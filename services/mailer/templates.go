package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	texttmpl "text/template"
)

// Template names
const (
	TemplateAssignment        = "assignment"
	TemplateScheduleChange    = "schedule_change"
	TemplateReminder          = "reminder"
	TemplateCancellation      = "cancellation"
	TemplateAvailabilityAdded = "availability_added"
	TemplateAccountApproved   = "account_approved"
)

// DefenseData feeds the panelist-facing defense templates.
type DefenseData struct {
	PanelistName string
	Role         string
	GroupTitle   string
	LeaderName   string
	Date         string
	StartTime    string
	EndTime      string
	Room         string
	DefenseType  string
}

// AvailabilityData feeds availability_added.
type AvailabilityData struct {
	AdminName    string
	PanelistName string
	DayOfWeek    string
	StartTime    string
	EndTime      string
}

// AccountData feeds account_approved.
type AccountData struct {
	Name     string
	Username string
}

const layout = `{{define "layout"}}<!DOCTYPE html>
<html><body style="font-family:Arial,sans-serif;color:#1f2937">
<div style="max-width:600px;margin:0 auto;padding:24px">
<h2 style="color:#1e3a8a">{{template "heading" .}}</h2>
{{template "content" .}}
<p style="margin-top:32px;font-size:12px;color:#6b7280">This is an automated message from the Thesis Defense Scheduler.</p>
</div></body></html>{{end}}`

const defenseTable = `{{define "details"}}<table style="border-collapse:collapse">
<tr><td><b>Thesis</b></td><td>{{.GroupTitle}}</td></tr>
<tr><td><b>Leader</b></td><td>{{.LeaderName}}</td></tr>
<tr><td><b>Date</b></td><td>{{.Date}}</td></tr>
<tr><td><b>Time</b></td><td>{{.StartTime}} - {{.EndTime}}</td></tr>
<tr><td><b>Room</b></td><td>{{if .Room}}{{.Room}}{{else}}To be announced{{end}}</td></tr>
<tr><td><b>Type</b></td><td>{{.DefenseType}}</td></tr>
{{if .Role}}<tr><td><b>Your role</b></td><td>{{.Role}}</td></tr>{{end}}
</table>{{end}}`

type templateDef struct {
	subject string
	body    string
}

var templates = map[string]templateDef{
	TemplateAssignment: {
		subject: "Panel assignment: {{.GroupTitle}}",
		body: `{{define "heading"}}New panel assignment{{end}}{{define "content"}}<p>Dear {{.PanelistName}},</p>
<p>You have been assigned as <b>{{.Role}}</b> for the following thesis defense.</p>{{template "details" .}}{{end}}`,
	},
	TemplateScheduleChange: {
		subject: "Schedule updated: {{.GroupTitle}}",
		body: `{{define "heading"}}Defense schedule updated{{end}}{{define "content"}}<p>Dear {{.PanelistName}},</p>
<p>The defense you are assigned to has been rescheduled. The current details are below.</p>{{template "details" .}}{{end}}`,
	},
	TemplateReminder: {
		subject: "Reminder: defense on {{.Date}}",
		body: `{{define "heading"}}Defense reminder{{end}}{{define "content"}}<p>Dear {{.PanelistName}},</p>
<p>This is a reminder of your upcoming thesis defense.</p>{{template "details" .}}{{end}}`,
	},
	TemplateCancellation: {
		subject: "Defense cancelled: {{.GroupTitle}}",
		body: `{{define "heading"}}Defense cancelled{{end}}{{define "content"}}<p>Dear {{.PanelistName}},</p>
<p>The following defense has been cancelled. No action is needed.</p>{{template "details" .}}{{end}}`,
	},
	TemplateAvailabilityAdded: {
		subject: "{{.PanelistName}} added availability",
		body: `{{define "heading"}}Availability added{{end}}{{define "content"}}<p>Hello {{.AdminName}},</p>
<p>{{.PanelistName}} is now available on <b>{{.DayOfWeek}}</b> from {{.StartTime}} to {{.EndTime}}.</p>{{end}}`,
	},
	TemplateAccountApproved: {
		subject: "Your panelist account has been approved",
		body: `{{define "heading"}}Welcome aboard{{end}}{{define "content"}}<p>Dear {{.Name}},</p>
<p>Your registration has been approved. Sign in with the username <b>{{.Username}}</b> and the password you registered with.</p>{{end}}`,
	},
}

type compiled struct {
	subject *texttmpl.Template
	body    *template.Template
}

var registry = mustCompile()

func mustCompile() map[string]compiled {
	out := make(map[string]compiled, len(templates))
	for name, s := range templates {
		subj := texttmpl.Must(texttmpl.New(name + "_subject").Option("missingkey=error").Parse(s.subject))
		body := template.Must(template.New(name).Option("missingkey=error").Parse(layout))
		template.Must(body.Parse(defenseTable))
		template.Must(body.Parse(s.body))
		out[name] = compiled{subject: subj, body: body}
	}
	return out
}

// Render produces the subject line and HTML body of a named template.
func Render(name string, data interface{}) (string, string, error) {
	c, ok := registry[name]
	if !ok {
		return "", "", fmt.Errorf("unknown email template %q", name)
	}
	var subj, body bytes.Buffer
	if err := c.subject.Execute(&subj, data); err != nil {
		return "", "", fmt.Errorf("render %s subject: %w", name, err)
	}
	if err := c.body.ExecuteTemplate(&body, "layout", data); err != nil {
		return "", "", fmt.Errorf("render %s body: %w", name, err)
	}
	return subj.String(), body.String(), nil
}
