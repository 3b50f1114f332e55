package export

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

var statementTemplate = template.Must(template.New("statement").Funcs(template.FuncMap{
	"formatDate": func(t time.Time) string {
		return t.Format("Jan 2, 2006")
	},
	"formatValue": func(v float64) string {
		return fmt.Sprintf("%.2f", v)
	},
}).Parse(statementTemplateHTML))

// TemplateData holds data for statement rendering
type TemplateData struct {
	Title         string
	GeneratedAt   time.Time
	Entries       []TemplateEntry
	TotalReceived float64
	TotalPaid     float64
	Balance       float64
}

// TemplateEntry holds one statement line
type TemplateEntry struct {
	Description string
	Date        time.Time
	Type        string
	Value       float64
}

// RenderStatementHTML renders the statement template with provided data
func RenderStatementHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := statementTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const statementTemplateHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    table { width: 100%; border-collapse: collapse; }
    th, td { text-align: left; padding: 0.5rem; border-bottom: 1px solid #ddd; }
    td.value, th.value { text-align: right; }
    tr.paid td.value { color: #b00020; }
    tr.received td.value { color: #1b5e20; }
    .totals { margin-top: 2rem; width: 40%; margin-left: auto; }
    .totals td { border: none; padding: 0.25rem 0.5rem; }
    .totals .balance td { border-top: 2px solid #333; font-weight: bold; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">Statement generated {{formatDate .GeneratedAt}}</div>
  <table>
    <thead>
      <tr><th>Date</th><th>Description</th><th>Type</th><th class="value">Value</th></tr>
    </thead>
    <tbody>
      {{range .Entries}}
      <tr class="{{.Type}}">
        <td>{{formatDate .Date}}</td>
        <td>{{.Description}}</td>
        <td>{{.Type}}</td>
        <td class="value">{{formatValue .Value}}</td>
      </tr>
      {{end}}
    </tbody>
  </table>
  <table class="totals">
    <tr><td>Received</td><td class="value">{{formatValue .TotalReceived}}</td></tr>
    <tr><td>Paid</td><td class="value">{{formatValue .TotalPaid}}</td></tr>
    <tr class="balance"><td>Balance</td><td class="value">{{formatValue .Balance}}</td></tr>
  </table>
</body>
</html>`
