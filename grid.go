package taskstatus

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"text/template"
)

// NewWatchGrid creates one named [Poller] per combination of dimension
// values, using cartesian product expansion of a page URL template.
//
// The URL template uses Go's text/template syntax. Dimension values are
// path-escaped before interpolation. Missing template keys cause an error.
// opts are applied to every poller; a shared [WithTarget] target receives
// every watch's content.
//
// Each watch name has the format "Base Name (val1/val2)", with values
// ordered by sorted dimension key.
//
// Example:
//
//	watches, err := taskstatus.NewWatchGrid("Lab",
//	    "https://lms.example.com/courses/{{.course}}/tasks/{{.task}}",
//	    map[string][]string{
//	        "course": {"go-101"},
//	        "task":   {"1", "2", "3"},
//	    },
//	)
//	// Returns 3 watches, usable with WithWatches(watches...)
func NewWatchGrid(baseName, urlTemplate string, dims map[string][]string, opts ...Option) ([]Watch, error) {
	if strings.TrimSpace(baseName) == "" {
		return nil, errors.New("base name cannot be empty")
	}
	if urlTemplate == "" {
		return nil, errors.New("URL template required")
	}
	if err := validateDimensions(dims); err != nil {
		return nil, err
	}

	// missingkey=error for fail-fast behaviour
	tmpl, err := template.New("url").Option("missingkey=error").Parse(urlTemplate)
	if err != nil {
		return nil, fmt.Errorf("invalid URL template: %w", err)
	}

	combinations := cartesianProduct(dims)
	watches := make([]Watch, 0, len(combinations))
	for _, combo := range combinations {
		pageURL, err := executeTemplate(tmpl, pathEscapeMap(combo))
		if err != nil {
			return nil, fmt.Errorf("template execution failed: %w", err)
		}

		name := formatWatchName(baseName, combo)
		p, err := New(pageURL, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create watch '%s': %w", name, err)
		}
		watches = append(watches, Watch{Name: name, Poller: p})
	}

	return watches, nil
}

func validateDimensions(dims map[string][]string) error {
	if len(dims) == 0 {
		return errors.New("at least one dimension required")
	}
	for k, vals := range dims {
		if len(vals) == 0 {
			return fmt.Errorf("dimension '%s' has no values", k)
		}
		for i, v := range vals {
			if v == "" {
				return fmt.Errorf("dimension '%s' contains empty value at index %d", k, i)
			}
		}
	}
	return nil
}

// cartesianProduct generates all combinations of dimension values.
// Keys are sorted alphabetically for deterministic output.
// Values maintain their original slice order.
//
// Example:
//
//	Input:  {"x": ["a","b"], "y": ["1","2"]}
//	Output: [{"x":"a","y":"1"}, {"x":"a","y":"2"}, {"x":"b","y":"1"}, {"x":"b","y":"2"}]
func cartesianProduct(dims map[string][]string) []map[string]string {
	if len(dims) == 0 {
		return nil
	}

	keys := sortedKeys(dims)
	for _, k := range keys {
		if len(dims[k]) == 0 {
			return nil
		}
	}

	total := 1
	for _, k := range keys {
		total *= len(dims[k])
	}
	result := make([]map[string]string, 0, total)

	indices := make([]int, len(keys))
	for {
		combo := make(map[string]string, len(keys))
		for i, k := range keys {
			combo[k] = dims[k][indices[i]]
		}
		result = append(result, combo)

		// increment indices (rightmost first)
		for i := len(keys) - 1; i >= 0; i-- {
			indices[i]++
			if indices[i] < len(dims[keys[i]]) {
				break
			}
			indices[i] = 0
			if i == 0 {
				return result
			}
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// pathEscapeMap returns a new map with all values escaped for use in a
// URL path segment.
func pathEscapeMap(m map[string]string) map[string]string {
	result := make(map[string]string, len(m))
	for k, v := range m {
		result[k] = url.PathEscape(v)
	}
	return result
}

func executeTemplate(tmpl *template.Template, data map[string]string) (string, error) {
	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// formatWatchName creates a name in the format "Base (v1/v2)".
func formatWatchName(baseName string, combo map[string]string) string {
	keys := sortedKeys(combo)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = combo[k]
	}
	return fmt.Sprintf("%s (%s)", baseName, strings.Join(parts, "/"))
}
