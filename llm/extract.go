/*
extract.go - Pulling JSON out of a chatty model response

PURPOSE:
  Even with JSON mode requested, a model response occasionally arrives
  wrapped in markdown fences or surrounded by prose. ExtractJSON makes
  one repair attempt: prefer a ```json fenced block, otherwise take the
  first balanced object or array in the text.
*/
package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var fencePattern = regexp.MustCompile("(?s)```(\\w*)\\s*\\n(.+?)\\n```")

// ExtractJSON returns the first valid JSON value embedded in the
// response, or an error when none is found.
func ExtractJSON(response string) (string, error) {
	for _, m := range fencePattern.FindAllStringSubmatch(response, -1) {
		lang, body := strings.ToLower(m[1]), strings.TrimSpace(m[2])
		if lang != "" && lang != "json" {
			continue
		}
		if json.Valid([]byte(body)) {
			return body, nil
		}
	}

	if s, ok := firstBalanced(response); ok {
		return s, nil
	}
	return "", fmt.Errorf("no valid JSON found in response")
}

// firstBalanced scans for the first '{' or '[' and returns the
// bracket-balanced span starting there, string-aware.
func firstBalanced(s string) (string, bool) {
	start := -1
	for i := 0; i < len(s); i++ {
		if s[i] == '{' || s[i] == '[' {
			start = i
			break
		}
	}
	if start < 0 {
		return "", false
	}

	opener, closer := s[start], byte('}')
	if opener == '[' {
		closer = ']'
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == opener:
			depth++
		case c == closer:
			depth--
			if depth == 0 {
				candidate := s[start : i+1]
				if json.Valid([]byte(candidate)) {
					return candidate, true
				}
				return "", false
			}
		}
	}
	return "", false
}
