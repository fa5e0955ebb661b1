package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/agenttree/core"
)

// ErrMalformedDirective is returned when a directive line cannot be parsed.
var ErrMalformedDirective = errors.New("malformed directive")

// DirectivePrefix starts every directive line.
const DirectivePrefix = "::"

// ParseReply extracts directives from model text. Directive lines are:
//
//	::complete
//	::ask <classification> <question>
//	::fail <reason>
//	::commit <runner>:<expr> | <description>
//
// Everything else is reply text. The first of complete, ask and fail wins;
// commit lines accumulate. Unknown directives are kept as text.
func ParseReply(text string) (core.Reply, error) {
	var (
		reply core.Reply
		body  []string
	)

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, DirectivePrefix) {
			body = append(body, line)
			continue
		}

		name, rest, _ := strings.Cut(strings.TrimPrefix(trimmed, DirectivePrefix), " ")
		rest = strings.TrimSpace(rest)

		switch strings.ToLower(name) {
		case "complete":
			setDirective(&reply, core.DirectiveComplete)
		case "fail":
			if setDirective(&reply, core.DirectiveFail) {
				reply.Reason = rest
			}
		case "ask":
			if rest == "" {
				return core.Reply{}, fmt.Errorf("%w: ask without question", ErrMalformedDirective)
			}
			if setDirective(&reply, core.DirectiveAsk) {
				reply.Classification, reply.Question = parseQuestion(rest)
			}
		case "commit":
			spec, err := parseCommit(rest)
			if err != nil {
				return core.Reply{}, err
			}
			reply.Commitments = append(reply.Commitments, spec)
		default:
			body = append(body, line)
		}
	}

	reply.Text = strings.TrimSpace(strings.Join(body, "\n"))
	return reply, nil
}

func setDirective(r *core.Reply, d core.Directive) bool {
	if r.Directive != core.DirectiveContinue {
		return false
	}
	r.Directive = d
	return true
}

func parseQuestion(s string) (core.Classification, string) {
	first, rest, ok := strings.Cut(s, " ")
	if c, err := core.ParseClassification(first); err == nil && ok && strings.TrimSpace(rest) != "" {
		return c, strings.TrimSpace(rest)
	}
	return core.ClassificationRoutine, s
}

func parseCommit(s string) (core.CommitmentSpec, error) {
	assertion, desc, _ := strings.Cut(s, "|")
	runner, expr, ok := strings.Cut(strings.TrimSpace(assertion), ":")
	runner, expr = strings.TrimSpace(runner), strings.TrimSpace(expr)
	if !ok || runner == "" || expr == "" {
		return core.CommitmentSpec{}, fmt.Errorf("%w: commit %q, want <runner>:<expr> | <description>", ErrMalformedDirective, s)
	}

	desc = strings.TrimSpace(desc)
	if desc == "" {
		desc = expr
	}

	return core.CommitmentSpec{
		Description: desc,
		Assertion:   core.Assertion{Runner: runner, Expr: expr},
	}, nil
}

// Instructions describes the directive protocol to a model.
const Instructions = `You are an agent in a supervision tree. End your reply with at most one of:
::complete                      when your task is finished
::ask <quick|deep|urgent|routine> <question>   when you need an answer from your supervisor
::fail <reason>                 when you cannot finish the task
Declare checkable promises with one line each:
::commit <runner>:<expr> | <description>
Without a directive your turn ends and you wait for the next message.`
