package report

import (
	"io"
	"text/template"
	"time"

	"github.com/rusq/sweepmychat/internal/sweep"
)

var mdTmpl = template.Must(template.New("summary").Parse(`# Sweep run summary

Generated: {{ .Now }}

| Metric | Count |
|---|---|
| Candidates | {{ .S.Total }} |
| Deleted | {{ .S.Deleted }} |
| Skipped | {{ .S.Skipped }} |
| Failed | {{ .S.Failed }} |
| Cancelled | {{ .S.Cancelled }} |
| Retries | {{ .S.Retries }} |
{{ if .S.Chats }}
## Per chat

| Chat | Candidates | Deleted | Skipped | Failed |
|---|---|---|---|---|
{{- range .S.Chats }}
| {{ if .Title }}{{ .Title }}{{ else }}Chat_{{ .ChatID }}{{ end }} | {{ .Candidates }} | {{ .Deleted }} | {{ .Skipped }} | {{ .Failed }} |
{{- end }}
{{ end }}
{{- if .S.Errors }}
## Errors
{{ range .S.Errors }}
- {{ .ChatTitle }} (msg {{ .MessageID }}): {{ .Err }}
{{- end }}
{{ end -}}
`))

// Markdown renders the run summary as a Markdown document.
func Markdown(w io.Writer, s *sweep.Summary) error {
	return mdTmpl.Execute(w, struct {
		Now string
		S   *sweep.Summary
	}{
		Now: time.Now().Format(time.RFC1123),
		S:   s,
	})
}
