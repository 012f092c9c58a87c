package main

import (
	"fmt"
	"regexp"
	"strings"
)

// Step types of a script.
const (
	StepExec   = "exec"
	StepExpect = "expect"
	StepSync   = "sync"
)

type Step struct {
	Type  string
	Value string
	Line  int
}

// Expect matching types
const (
	MatchCaseInsensitive = iota // single quotes 'text'
	MatchCaseSensitive          // double quotes "text"
	MatchRegex                  // forward slashes /regex/
)

type ExpectPattern struct {
	Pattern   string
	MatchType int
	Regex     *regexp.Regexp
}

// parseScript splits the script into steps. Blank lines and lines starting
// with # are skipped.
func parseScript(scriptText string) ([]Step, error) {
	var steps []Step
	lines := strings.Split(strings.TrimSpace(scriptText), "\n")

	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		word, rest, _ := strings.Cut(line, " ")
		switch word {
		case StepExec:
			steps = append(steps, Step{Type: StepExec, Value: rest, Line: i + 1})
		case StepExpect:
			if _, err := parseExpectPattern(rest); err != nil {
				return nil, fmt.Errorf("line %d: invalid expect pattern %q: %w", i+1, rest, err)
			}
			steps = append(steps, Step{Type: StepExpect, Value: rest, Line: i + 1})
		case StepSync:
			if rest == "" {
				return nil, fmt.Errorf("line %d: sync needs a marker", i+1)
			}
			steps = append(steps, Step{Type: StepSync, Value: unquote(rest), Line: i + 1})
		default:
			return nil, fmt.Errorf("invalid command on line %d: %s", i+1, line)
		}
	}

	return steps, nil
}

// unquote strips double quotes and resolves \r, \n and \t, so a marker can
// carry control characters and trailing blanks: sync "disabled\r\n>> ".
func unquote(value string) string {
	if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
		value = value[1 : len(value)-1]
	}
	return strings.NewReplacer(`\r`, "\r", `\n`, "\n", `\t`, "\t").Replace(value)
}

func parseExpectPattern(pattern string) (*ExpectPattern, error) {
	if len(pattern) < 2 {
		return nil, fmt.Errorf("pattern too short")
	}

	first := pattern[0]
	last := pattern[len(pattern)-1]
	content := pattern[1 : len(pattern)-1]

	ep := &ExpectPattern{Pattern: content}

	switch {
	case first == '\'' && last == '\'':
		// Single quotes: case-insensitive anywhere in the reply
		ep.MatchType = MatchCaseInsensitive
	case first == '"' && last == '"':
		// Double quotes: case-sensitive line start
		ep.MatchType = MatchCaseSensitive
	case first == '/' && last == '/':
		regex, err := regexp.Compile(content)
		if err != nil {
			return nil, fmt.Errorf("invalid regex: %w", err)
		}
		ep.MatchType = MatchRegex
		ep.Regex = regex
	default:
		return nil, fmt.Errorf("invalid pattern format")
	}

	return ep, nil
}

// Match reports whether reply satisfies the pattern.
func (ep *ExpectPattern) Match(reply string) bool {
	if ep.MatchType == MatchCaseInsensitive {
		return strings.Contains(strings.ToLower(reply), strings.ToLower(ep.Pattern))
	}
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimRight(line, "\r")
		switch ep.MatchType {
		case MatchCaseSensitive:
			if strings.HasPrefix(strings.TrimSpace(line), ep.Pattern) {
				return true
			}
		case MatchRegex:
			if ep.Regex.MatchString(line) {
				return true
			}
		}
	}
	return false
}
