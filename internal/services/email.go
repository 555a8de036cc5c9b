package services

import (
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/simplyinspect/permwatch/internal/domain/change"
)

// maxListedChanges caps how many changes an email enumerates; the rest
// are summarized by count.
const maxListedChanges = 10

type emailData struct {
	SiteID     string
	Records    []*change.Record
	Extra      int
	Total      int
	PeriodName string
	Generated  string
}

var changeTextTmpl = texttemplate.Must(texttemplate.New("change_text").Parse(
	`Permission changes detected on site {{.SiteID}}.

{{.Total}} change(s) found:

{{range .Records}}- [{{.ChangeType}}] {{.ResourceName}}{{if not .ResourceName}}{{.ResourceID}}{{end}} / {{.PrincipalName}}{{if not .PrincipalName}}{{.PrincipalID}}{{end}}{{if .PreviousLevel}} ({{.PreviousLevel}}{{if .CurrentLevel}} -> {{.CurrentLevel}}{{end}}){{else if .CurrentLevel}} ({{.CurrentLevel}}){{end}}
{{end}}{{if gt .Extra 0}}...and {{.Extra}} more change(s).
{{end}}
Generated at {{.Generated}}.
`))

var changeHTMLTmpl = htmltemplate.Must(htmltemplate.New("change_html").Parse(
	`<html><body>
<h2>Permission changes detected</h2>
<p>Site <strong>{{.SiteID}}</strong>: {{.Total}} change(s) found.</p>
<table border="1" cellpadding="4" cellspacing="0">
<tr><th>Type</th><th>Resource</th><th>Principal</th><th>Previous</th><th>Current</th></tr>
{{range .Records}}<tr>
<td>{{.ChangeType}}</td>
<td>{{if .ResourceName}}{{.ResourceName}}{{else}}{{.ResourceID}}{{end}}</td>
<td>{{if .PrincipalName}}{{.PrincipalName}}{{else}}{{.PrincipalID}}{{end}}</td>
<td>{{.PreviousLevel}}</td>
<td>{{.CurrentLevel}}</td>
</tr>
{{end}}</table>
{{if gt .Extra 0}}<p>...and {{.Extra}} more change(s).</p>{{end}}
<p><small>Generated at {{.Generated}}.</small></p>
</body></html>`))

var digestTextTmpl = texttemplate.Must(texttemplate.New("digest_text").Parse(
	`{{.PeriodName}} permission change summary.

{{.Total}} unreviewed change(s) across your sites:

{{range .Records}}- [{{.ChangeType}}] site {{.SiteID}}: {{.ResourceName}}{{if not .ResourceName}}{{.ResourceID}}{{end}} / {{.PrincipalName}}{{if not .PrincipalName}}{{.PrincipalID}}{{end}}
{{end}}{{if gt .Extra 0}}...and {{.Extra}} more change(s).
{{end}}
Generated at {{.Generated}}.
`))

// renderChangeEmail produces the subject plus text and HTML bodies for
// an immediate change notification.
func renderChangeEmail(siteID string, records []*change.Record) (subject, body, htmlBody string, err error) {
	data := truncateEmailData(siteID, records)
	data.Generated = time.Now().UTC().Format(time.RFC3339)

	subject = fmt.Sprintf("Permission changes detected on %s (%d change(s))", siteID, data.Total)

	var text, html strings.Builder
	if err = changeTextTmpl.Execute(&text, data); err != nil {
		return "", "", "", err
	}
	if err = changeHTMLTmpl.Execute(&html, data); err != nil {
		return "", "", "", err
	}

	return subject, text.String(), html.String(), nil
}

// renderDigestEmail produces the subject and text body for a daily or
// weekly summary.
func renderDigestEmail(periodName string, records []*change.Record) (subject, body string, err error) {
	data := truncateEmailData("", records)
	data.PeriodName = periodName
	data.Generated = time.Now().UTC().Format(time.RFC3339)

	subject = fmt.Sprintf("%s permission change summary (%d change(s))", periodName, data.Total)

	var text strings.Builder
	if err = digestTextTmpl.Execute(&text, data); err != nil {
		return "", "", err
	}

	return subject, text.String(), nil
}

func truncateEmailData(siteID string, records []*change.Record) emailData {
	data := emailData{
		SiteID:  siteID,
		Records: records,
		Total:   len(records),
	}
	if len(records) > maxListedChanges {
		data.Records = records[:maxListedChanges]
		data.Extra = len(records) - maxListedChanges
	}
	return data
}
