// Package prompt renders the follow-up prompts the engine sends on behalf of
// an agent: verification retries, answers, wakeups and failure notices.
package prompt

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/hupe1980/agenttree/core"
)

var funcs = template.FuncMap{
	"default": func(defaultVal any, val any) any {
		if val == nil || val == "" {
			return defaultVal
		}
		return val
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"indent": func(prefix, s string) string {
		lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
		for i, l := range lines {
			lines[i] = prefix + l
		}
		return strings.Join(lines, "\n")
	},
	"output": func(c core.Commitment) string {
		return c.Latest().Output
	},
}

// Render executes text as a text/template against data.
func Render(text string, data any) (string, error) {
	if !strings.Contains(text, "{{") { // fast path: no template markers
		return text, nil
	}

	tmpl, err := template.New("prompt").Funcs(funcs).Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse prompt template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt template: %w", err)
	}

	return buf.String(), nil
}

// must renders the built-in templates, which are known to parse.
func must(text string, data any) string {
	out, err := Render(text, data)
	if err != nil {
		panic(err)
	}
	return out
}

const retryTemplate = `Verification failed for {{len .Failed}} of your commitments. Address them and signal completion again.
{{range .Failed}}
- {{.Description}} ({{.Assertion}})
{{- with output .}}
{{indent "    " .}}
{{- end}}
{{end}}`

// Retry tells an agent which commitments failed verification.
func Retry(failed []core.Commitment) string {
	return must(retryTemplate, map[string]any{"Failed": failed})
}

const answerTemplate = `Answer from {{.Handler}} to your question "{{.Question}}":
{{.Answer}}`

// Answer relays the answer to an escalated question.
func Answer(question, handler, answer string) string {
	if handler == core.OperatorHandlerID {
		handler = "the operator"
	}
	return must(answerTemplate, map[string]any{"Question": question, "Handler": handler, "Answer": answer})
}

const failureTemplate = `Agent {{.Name}} failed after {{.Event}}: {{default "no reason given" .Reason}}`

// Failure describes a failed agent for a failure escalation.
func Failure(name string, ev core.Event, reason string) string {
	return must(failureTemplate, map[string]any{"Name": name, "Event": string(ev), "Reason": reason})
}
