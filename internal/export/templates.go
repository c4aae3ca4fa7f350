package export

import (
	"bytes"
	"html/template"
	"strings"
	"time"
)

var tripTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
	}
	tripTemplate = template.Must(template.New("trip").Funcs(funcMap).Parse(tripTemplateHTML))
}

// TemplateData holds data for trip template rendering
type TemplateData struct {
	Name         string
	Destination  string
	Dates        string
	OwnerName    string
	GeneratedAt  time.Time
	Participants []ParticipantInfo
	Checklists   []ChecklistInfo
}

// RenderTripHTML renders the trip template with provided data
func RenderTripHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := tripTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const tripTemplateHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Name}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    h2 { margin-top: 2rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .checklist { margin: 1rem 0; padding: 1rem; background: #f5f5f5; border-left: 3px solid #333; }
    .checklist h3 { margin: 0 0 0.5rem 0; }
    .checklist .type { color: #888; font-size: 0.8em; text-transform: uppercase; }
    ul.items { list-style: none; padding-left: 0; }
    ul.items li { padding: 0.15rem 0; }
    .done { text-decoration: line-through; color: #999; }
    table.people { border-collapse: collapse; width: 100%; }
    table.people td, table.people th { border: 1px solid #ddd; padding: 0.4rem; text-align: left; }
  </style>
</head>
<body>
  <h1>{{.Name}}</h1>
  <div class="meta">
    {{if .Destination}}{{.Destination}}{{end}}
    {{if .Dates}} | {{.Dates}}{{end}}
    | Organized by {{.OwnerName}}
    | Exported {{formatDate .GeneratedAt "Jan 2, 2006"}}
  </div>
  {{if .Participants}}
  <h2>Travelers</h2>
  <table class="people">
    <tr><th>Name</th><th>Email</th><th>Status</th></tr>
    {{range .Participants}}<tr><td>{{.DisplayName}}</td><td>{{.Email}}</td><td>{{lower .Status}}</td></tr>
    {{end}}
  </table>
  {{end}}
  {{if .Checklists}}
  <h2>Checklists</h2>
  {{range .Checklists}}
  <div class="checklist">
    <h3>{{.Name}} <span class="type">{{.Type}}</span></h3>
    <ul class="items">
      {{range .Items}}<li{{if .IsChecked}} class="done"{{end}}>{{if .IsChecked}}&#9745;{{else}}&#9744;{{end}} {{.Content}}</li>
      {{end}}
    </ul>
  </div>
  {{end}}
  {{end}}
</body>
</html>`
