// internal/pipeline/transform.go
package pipeline

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/valpere/MediaScrapexter/internal/config"
)

var (
	spaceRun   = regexp.MustCompile(`\s+`)
	htmlTag    = regexp.MustCompile(`<[^>]*>`)
	numberLike = regexp.MustCompile(`-?\d+(?:[.,]\d+)*`)
)

type transformStep func(string) (interface{}, error)

// FieldTransformer post-processes selector values. Rules are compiled once
// and applied per field in the order given.
type FieldTransformer struct {
	steps map[string][]transformStep
}

// NewFieldTransformer compiles rules keyed by field name.
func NewFieldTransformer(rules map[string][]config.TransformRule) (*FieldTransformer, error) {
	ft := &FieldTransformer{steps: make(map[string][]transformStep, len(rules))}
	for field, list := range rules {
		for i, rule := range list {
			step, err := compileRule(rule)
			if err != nil {
				return nil, fmt.Errorf("transform %s[%d]: %w", field, i, err)
			}
			ft.steps[field] = append(ft.steps[field], step)
		}
	}
	return ft, nil
}

func compileRule(rule config.TransformRule) (transformStep, error) {
	switch rule.Type {
	case "trim":
		return stringStep(strings.TrimSpace), nil
	case "normalize_spaces":
		return stringStep(func(s string) string {
			return spaceRun.ReplaceAllString(strings.TrimSpace(s), " ")
		}), nil
	case "lowercase":
		return stringStep(strings.ToLower), nil
	case "uppercase":
		return stringStep(strings.ToUpper), nil
	case "remove_html":
		return stringStep(func(s string) string {
			return strings.TrimSpace(htmlTag.ReplaceAllString(s, ""))
		}), nil
	case "regex":
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid regex pattern: %w", err)
		}
		return stringStep(func(s string) string {
			return re.ReplaceAllString(s, rule.Replacement)
		}), nil
	case "extract_numbers":
		return stringStep(func(s string) string {
			return strings.Join(numberLike.FindAllString(s, -1), " ")
		}), nil
	case "parse_int":
		return func(s string) (interface{}, error) {
			n, err := strconv.Atoi(cleanNumber(s))
			if err != nil {
				return nil, fmt.Errorf("parse_int %q: %w", s, err)
			}
			return n, nil
		}, nil
	case "parse_float":
		return func(s string) (interface{}, error) {
			f, err := strconv.ParseFloat(cleanNumber(s), 64)
			if err != nil {
				return nil, fmt.Errorf("parse_float %q: %w", s, err)
			}
			return f, nil
		}, nil
	}
	return nil, fmt.Errorf("unknown transform type %q", rule.Type)
}

func stringStep(fn func(string) string) transformStep {
	return func(s string) (interface{}, error) { return fn(s), nil }
}

// cleanNumber drops currency symbols and thousands separators.
func cleanNumber(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-', r == ',':
			return r
		}
		return -1
	}, s)
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") && len(s)-strings.LastIndex(s, ",") == 3 {
		// "12,50" is a decimal comma
		return strings.Replace(s, ",", ".", 1)
	}
	return strings.ReplaceAll(s, ",", "")
}

// Apply rewrites fields in place. A value that fails a step is kept as it was
// and the failure is returned alongside the other failures.
func (ft *FieldTransformer) Apply(fields map[string]interface{}) error {
	if ft == nil || len(ft.steps) == 0 {
		return nil
	}
	var failures []string
	for name, steps := range ft.steps {
		value, ok := fields[name]
		if !ok || value == nil {
			continue
		}
		switch v := value.(type) {
		case string:
			out, err := runSteps(steps, v)
			if err != nil {
				failures = append(failures, fmt.Sprintf("%s: %v", name, err))
				continue
			}
			fields[name] = out
		case []string:
			out := make([]interface{}, 0, len(v))
			var failed error
			for _, item := range v {
				r, err := runSteps(steps, item)
				if err != nil {
					failed = err
					break
				}
				out = append(out, r)
			}
			if failed != nil {
				failures = append(failures, fmt.Sprintf("%s: %v", name, failed))
				continue
			}
			fields[name] = out
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("field transforms failed: %s", strings.Join(failures, "; "))
	}
	return nil
}

func runSteps(steps []transformStep, input string) (interface{}, error) {
	var current interface{} = input
	for _, step := range steps {
		s, ok := current.(string)
		if !ok {
			s = fmt.Sprint(current)
		}
		out, err := step(s)
		if err != nil {
			return nil, err
		}
		current = out
	}
	return current, nil
}
