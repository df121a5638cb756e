package cli

const documentTemplate = `
=== Document {{.ID}} ===

Status:        {{.Status}}
{{- if not .LastDelivery.IsZero }}
Last delivery: {{.LastDelivery.UTC.Format "2006-01-02T15:04:05Z07:00"}}
{{- end}}

Fields:
{{- range .Fields}}
  {{printf "%-14s" .Name}} {{.Value}}
{{- end}}
`

const conflictTemplate = `
=== Conflict in {{.ID}} ===
{{range .Rows}}
  {{printf "%-14s" .Name}} local: {{printf "%-20s" .Local}} remote: {{.Remote}}
{{- end}}

Run 'docsync resolve {{.ID}} key=value...' to keep the chosen values.
`
