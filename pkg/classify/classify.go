// Package classify turns raw execution errors into structured reports with
// a kind, a one-line description, full detail content, and, where known, a
// suggested remediation. Classification is an ordered first-match rule table
// over the error's message text.
package classify

import (
	"errors"
	"fmt"
	"regexp"
)

// Report kinds, in the order the built-in rules test for them.
const (
	KindMissingDependency = "MissingDependency"
	KindPortConflict      = "PortConflict"
	KindPermissionDenied  = "PermissionDenied"
	KindSyntaxError       = "SyntaxError"
	KindCommandError      = "CommandError"
	KindGeneric           = "Error"
)

// Report is the structured classification of an error. It is display-ready
// and never persisted.
type Report struct {
	// Kind is the classification kind.
	Kind string `json:"kind"`

	// Description is a one-line human-readable description.
	Description string `json:"description"`

	// Content is the full detail text for display.
	Content string `json:"content"`

	// Solution is a suggested remediation, if one is known.
	Solution string `json:"solution,omitempty"`
}

// OutputCarrier is implemented by structured command errors that carry a
// short header and the full captured output of a failed command. Errors
// implementing it are classified as CommandError when no message rule
// matches first.
type OutputCarrier interface {
	error
	Header() string
	CapturedOutput() string
}

// Matcher decides whether a rule applies to an error message and extracts
// any capture groups for the rule's builder.
type Matcher interface {
	// Match returns the capture groups (index 0 is the full match) and
	// whether the message matched.
	Match(message string) ([]string, bool)
}

// RegexpMatcher implements Matcher with a compiled regular expression.
type RegexpMatcher struct {
	re *regexp.Regexp
}

// Pattern compiles a regular expression into a matcher. It panics on an
// invalid pattern, so it is intended for package-level rule tables.
func Pattern(expr string) *RegexpMatcher {
	return &RegexpMatcher{re: regexp.MustCompile(expr)}
}

// Match applies the expression to the message.
func (m *RegexpMatcher) Match(message string) ([]string, bool) {
	groups := m.re.FindStringSubmatch(message)
	if groups == nil {
		return nil, false
	}
	return groups, true
}

// Rule pairs a matcher with a report builder receiving the matcher's capture
// groups and the original error.
type Rule struct {
	Matcher Matcher
	Build   func(captures []string, err error) Report
}

// Classifier is an ordered, first-match rule table. It never fails: if no
// rule matches, a generic report carrying the raw message is returned.
type Classifier struct {
	rules []Rule
}

// builtinRules are examined in priority order before any custom rules'
// fallback behavior.
var builtinRules = []Rule{
	{
		Matcher: Pattern(`[Cc]annot find (?:module|package) '([^']+)'`),
		Build: func(captures []string, err error) Report {
			module := captures[1]
			return Report{
				Kind:        KindMissingDependency,
				Description: fmt.Sprintf("The module %q could not be found.", module),
				Content:     err.Error(),
				Solution:    fmt.Sprintf("Install the missing dependency, for example: npm install %s", module),
			}
		},
	},
	{
		Matcher: Pattern(`(?i)(?:EADDRINUSE|address already in use)(?:.*?:(\d+))?`),
		Build: func(captures []string, err error) Report {
			desc := "The requested address is already in use."
			if captures[1] != "" {
				desc = fmt.Sprintf("Port %s is already in use.", captures[1])
			}
			return Report{
				Kind:        KindPortConflict,
				Description: desc,
				Content:     err.Error(),
				Solution:    "Change the port the server listens on, or stop whatever is already bound to it.",
			}
		},
	},
	{
		Matcher: Pattern(`(?i)(?:EACCES|permission denied)`),
		Build: func(_ []string, err error) Report {
			return Report{
				Kind:        KindPermissionDenied,
				Description: "Permission was denied while accessing a file or directory.",
				Content:     err.Error(),
				Solution:    "Check the permissions of the affected file or directory.",
			}
		},
	},
	{
		Matcher: Pattern(`(?i)syntax\s?error`),
		Build: func(_ []string, err error) Report {
			return Report{
				Kind:        KindSyntaxError,
				Description: "A syntax error was reported while evaluating code.",
				Content:     err.Error(),
				Solution:    "Review the most recently changed code for malformed syntax.",
			}
		},
	},
}

// New creates a classifier with the built-in rules followed by any extra
// rules. Extra rules are tested after the built-ins but before the
// CommandError and generic fallbacks.
func New(extra ...Rule) *Classifier {
	rules := make([]Rule, 0, len(builtinRules)+len(extra))
	rules = append(rules, builtinRules...)
	rules = append(rules, extra...)
	return &Classifier{rules: rules}
}

// Classify produces a best-effort report for err. It never returns an error
// itself.
func (c *Classifier) Classify(err error) Report {
	if err == nil {
		return Report{Kind: KindGeneric, Description: "unknown error"}
	}

	message := err.Error()

	// Structured command errors are matched against their full captured
	// output, where the interesting text usually lives.
	var carrier OutputCarrier
	hasOutput := errors.As(err, &carrier)

	text := message
	if hasOutput {
		text = message + "\n" + carrier.CapturedOutput()
	}

	for _, rule := range c.rules {
		if captures, ok := rule.Matcher.Match(text); ok {
			return rule.Build(captures, err)
		}
	}

	if hasOutput {
		return Report{
			Kind:        KindCommandError,
			Description: carrier.Header(),
			Content:     carrier.CapturedOutput(),
		}
	}

	return Report{
		Kind:        KindGeneric,
		Description: message,
		Content:     fmt.Sprintf("%+v", err),
	}
}
