package mail

import (
	"bytes"
	"fmt"
	"html/template"

	"attendancehub/pkg/types"
)

const layout = `<!DOCTYPE html>
<html>
<head><title>Automated Biometric Based Attendance System</title></head>
<body>{{template "body" .}}</body>
</html>`

var (
	enrollmentTmpl = parse("enrollment", `{{define "body"}}
<h1 style="color: #181a40; font-size: 24px;">Hello, {{.Name}}.</h1>
<p style="color: #666; font-size: 16px;">You have been successfully enrolled for <strong>{{.CourseCode}}</strong>.</p>
<p style="color: #666; font-size: 16px;">Your fingerprint is now registered on the attendance device.</p>
{{end}}`)

	alertTmpl = parse("alert", `{{define "body"}}
<h1 style="color: #181a40; font-size: 24px;">Hello, {{.Name}}.</h1>
<p style="color: #666; font-size: 16px;">You have missed {{printf "%.2f" .MissedPercentage}}% of the classes for <strong>{{.CourseCode}}</strong>.</p>
<p style="color: #666; font-size: 16px;">Please make sure to attend the remaining classes.</p>
{{end}}`)

	reportTmpl = parse("report", `{{define "body"}}
<h1 style="color: #181a40; font-size: 24px;">Hello, {{.Recipient}}.</h1>
<p style="color: #666; font-size: 16px;">The following students have missed more than half of the classes for <strong>{{.CourseCode}}</strong>:</p>
<table style="border-collapse: collapse;">
<tr><th>Name</th><th>Matric No.</th><th>Missed</th></tr>
{{range .Rows}}<tr><td>{{.Name}}</td><td>{{.MatricNo}}</td><td>{{printf "%.2f" .MissedPercentage}}%</td></tr>
{{end}}</table>
{{end}}`)
)

func parse(name, body string) *template.Template {
	return template.Must(template.Must(template.New(name).Parse(layout)).Parse(body))
}

func render(t *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering %s email: %w", t.Name(), err)
	}
	return buf.String(), nil
}

// ReportRow is one flagged student in an attendance report.
type ReportRow struct {
	Name             string
	MatricNo         string
	MissedPercentage float64
}

// EnrollmentSuccessful tells a student their fingerprint was registered.
func EnrollmentSuccessful(student *types.Student, courseCode string) (*Message, error) {
	html, err := render(enrollmentTmpl, map[string]string{
		"Name":       student.Name,
		"CourseCode": courseCode,
	})
	if err != nil {
		return nil, err
	}
	return &Message{To: []string{student.Email}, Subject: "Successful Enrollment", HTML: html}, nil
}

// AttendanceAlert warns a student who missed more than half the classes.
func AttendanceAlert(student *types.Student, courseCode string, missedPercentage float64) (*Message, error) {
	html, err := render(alertTmpl, map[string]interface{}{
		"Name":             student.Name,
		"CourseCode":       courseCode,
		"MissedPercentage": missedPercentage,
	})
	if err != nil {
		return nil, err
	}
	return &Message{
		To:      []string{student.Email},
		Subject: "Attendance Alert for " + courseCode,
		HTML:    html,
	}, nil
}

// AttendanceReport lists the flagged students of a course for a lecturer or
// level adviser.
func AttendanceReport(email, recipient, courseCode string, rows []ReportRow) (*Message, error) {
	html, err := render(reportTmpl, map[string]interface{}{
		"Recipient":  recipient,
		"CourseCode": courseCode,
		"Rows":       rows,
	})
	if err != nil {
		return nil, err
	}
	return &Message{
		To:      []string{email},
		Subject: "Attendance Report for " + courseCode,
		HTML:    html,
	}, nil
}
