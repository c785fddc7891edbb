package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParse_MinimalConfig(t *testing.T) {
	yaml := `
pages:
  - name: Test
    url: https://lms.example.com/tasks/1
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.RetryDelay.Duration() != 2*time.Second {
		t.Errorf("RetryDelay = %v, want 2s", cfg.RetryDelay.Duration())
	}
	if len(cfg.Pages) != 1 {
		t.Errorf("len(Pages) = %d, want 1", len(cfg.Pages))
	}
	if cfg.Redis != nil {
		t.Errorf("Redis = %+v, want nil", cfg.Redis)
	}
}

func TestParse_FullConfig(t *testing.T) {
	yaml := `
title: Lab checks
port: 9090
retry_delay: 500ms
max_concurrency: 4

pages:
  - name: lab 1
    url: https://lms.example.com/tasks/12
    element_id: result
    timeout: 5s
    headers:
      Cookie: session=abc

grids:
  - name: Go 101
    url_template: "https://lms.example.com/courses/go-101/tasks/{{.task}}"
    dimensions:
      task: ["1", "2"]

redis:
  addr: localhost:6379
  db: 2
  ttl: 1h
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Title != "Lab checks" || cfg.Port != 9090 || cfg.MaxConcurrency != 4 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.RetryDelay.Duration() != 500*time.Millisecond {
		t.Errorf("RetryDelay = %v, want 500ms", cfg.RetryDelay.Duration())
	}

	p := cfg.Pages[0]
	if p.ElementID != "result" || p.Timeout.Duration() != 5*time.Second || p.Headers["Cookie"] != "session=abc" {
		t.Errorf("page = %+v", p)
	}

	g := cfg.Grids[0]
	if g.Name != "Go 101" || len(g.Dimensions["task"]) != 2 {
		t.Errorf("grid = %+v", g)
	}

	r := cfg.Redis
	if r == nil {
		t.Fatal("Redis = nil")
	}
	if r.Addr != "localhost:6379" || r.DB != 2 || r.TTL.Duration() != time.Hour {
		t.Errorf("redis = %+v", r)
	}
	if r.KeyPrefix != "taskstatus" || r.Channel != "taskstatus:updates" {
		t.Errorf("redis defaults = %q, %q", r.KeyPrefix, r.Channel)
	}
}

func TestParse_EnvVarSubstitution(t *testing.T) {
	t.Setenv("TEST_LMS_HOST", "lms.test.com")
	t.Setenv("TEST_SESSION", "secret123")
	t.Setenv("TEST_REDIS_PASSWORD", "hunter2")

	yaml := `
pages:
  - name: Test
    url: https://${TEST_LMS_HOST}/tasks/1
    headers:
      Cookie: "session=${TEST_SESSION}"
grids:
  - name: Grid
    url_template: "https://${TEST_LMS_HOST}/tasks/{{.id}}"
    dimensions:
      id: ["1"]
redis:
  addr: ${TEST_REDIS_ADDR:-localhost:6379}
  password: ${TEST_REDIS_PASSWORD}
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Pages[0].URL != "https://lms.test.com/tasks/1" {
		t.Errorf("URL = %q", cfg.Pages[0].URL)
	}
	if cfg.Pages[0].Headers["Cookie"] != "session=secret123" {
		t.Errorf("Headers[Cookie] = %q", cfg.Pages[0].Headers["Cookie"])
	}
	if cfg.Grids[0].URLTemplate != "https://lms.test.com/tasks/{{.id}}" {
		t.Errorf("URLTemplate = %q", cfg.Grids[0].URLTemplate)
	}
	if cfg.Redis.Addr != "localhost:6379" || cfg.Redis.Password != "hunter2" {
		t.Errorf("redis = %+v", cfg.Redis)
	}
}

func TestParse_EnvVarMissing(t *testing.T) {
	// MISSING_VAR is expected to not exist in the environment
	yaml := `
pages:
  - name: Test
    url: https://${MISSING_VAR}/tasks/1
`
	_, err := Parse([]byte(yaml))
	if err == nil {
		t.Fatal("Parse() expected error for missing env var, got nil")
	}
	if !strings.Contains(err.Error(), "MISSING_VAR") {
		t.Errorf("error should mention MISSING_VAR: %v", err)
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name        string
		yaml        string
		wantErrLike string
	}{
		{
			name:        "no pages or grids",
			yaml:        `port: 8080`,
			wantErrLike: "at least one page or grid",
		},
		{
			name: "page missing name",
			yaml: `
pages:
  - url: https://example.com
`,
			wantErrLike: "name is required",
		},
		{
			name: "duplicate page name",
			yaml: `
pages:
  - name: A
    url: https://example.com/1
  - name: A
    url: https://example.com/2
`,
			wantErrLike: "duplicate name",
		},
		{
			name: "page missing url",
			yaml: `
pages:
  - name: Test
`,
			wantErrLike: "url is required",
		},
		{
			name: "page without scheme",
			yaml: `
pages:
  - name: Test
    url: example.com/tasks/1
`,
			wantErrLike: "url must have a scheme",
		},
		{
			name: "page with ftp scheme",
			yaml: `
pages:
  - name: Test
    url: ftp://example.com/tasks/1
`,
			wantErrLike: "url scheme must be http or https",
		},
		{
			name: "timeout too short",
			yaml: `
pages:
  - name: Test
    url: https://example.com
    timeout: 500ms
`,
			wantErrLike: "timeout must be at least 1s",
		},
		{
			name: "negative timeout",
			yaml: `
pages:
  - name: Test
    url: https://example.com
    timeout: -1s
`,
			wantErrLike: "timeout cannot be negative",
		},
		{
			name: "retry delay too short",
			yaml: `
retry_delay: 10ms
pages:
  - name: Test
    url: https://example.com
`,
			wantErrLike: "retry_delay must be at least",
		},
		{
			name: "port out of range",
			yaml: `
port: 70000
pages:
  - name: Test
    url: https://example.com
`,
			wantErrLike: "port must be between",
		},
		{
			name: "negative max concurrency",
			yaml: `
max_concurrency: -1
pages:
  - name: Test
    url: https://example.com
`,
			wantErrLike: "max_concurrency cannot be negative",
		},
		{
			name: "grid missing template",
			yaml: `
grids:
  - name: G
    dimensions:
      id: ["1"]
`,
			wantErrLike: "url_template is required",
		},
		{
			name: "grid invalid template",
			yaml: `
grids:
  - name: G
    url_template: "https://example.com/{{.id"
    dimensions:
      id: ["1"]
`,
			wantErrLike: "invalid url_template",
		},
		{
			name: "grid without dimensions",
			yaml: `
grids:
  - name: G
    url_template: "https://example.com/{{.id}}"
`,
			wantErrLike: "at least one dimension",
		},
		{
			name: "grid duplicate dimension value",
			yaml: `
grids:
  - name: G
    url_template: "https://example.com/{{.id}}"
    dimensions:
      id: ["1", "1"]
`,
			wantErrLike: "duplicate value",
		},
		{
			name: "redis without addr",
			yaml: `
pages:
  - name: Test
    url: https://example.com
redis:
  db: 1
`,
			wantErrLike: "redis: addr is required",
		},
		{
			name: "redis negative db",
			yaml: `
pages:
  - name: Test
    url: https://example.com
redis:
  addr: localhost:6379
  db: -1
`,
			wantErrLike: "db cannot be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatalf("Parse() expected error containing %q, got nil", tt.wantErrLike)
			}
			if !strings.Contains(err.Error(), tt.wantErrLike) {
				t.Errorf("Parse() error = %v, want error containing %q", err, tt.wantErrLike)
			}
		})
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("pages: [unclosed"))
	if err == nil || !strings.Contains(err.Error(), "failed to parse YAML") {
		t.Errorf("Parse() error = %v, want YAML parse error", err)
	}
}

func TestParse_InvalidDuration(t *testing.T) {
	yaml := `
retry_delay: soon
pages:
  - name: Test
    url: https://example.com
`
	_, err := Parse([]byte(yaml))
	if err == nil || !strings.Contains(err.Error(), "invalid duration") {
		t.Errorf("Parse() error = %v, want invalid duration", err)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taskstatus.yaml")
	if err := os.WriteFile(path, []byte("pages:\n  - name: A\n    url: https://example.com\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Pages[0].Name != "A" {
		t.Errorf("Pages[0].Name = %q, want A", cfg.Pages[0].Name)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR", "value")
	t.Setenv("EMPTY_VAR", "") // set but empty

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"no vars", "plain text", "plain text", false},
		{"simple var", "${TEST_VAR}", "value", false},
		{"var in text", "prefix ${TEST_VAR} suffix", "prefix value suffix", false},
		{"multiple vars", "${TEST_VAR}-${TEST_VAR}", "value-value", false},
		{"with default (var set)", "${TEST_VAR:-default}", "value", false},
		{"with default (var unset)", "${UNSET:-default}", "default", false},
		{"missing required", "${MISSING}", "", true},
		{"empty default (var unset)", "${UNSET:-}", "", false},
		{"set but empty var", "${EMPTY_VAR}", "", false},
		{"set but empty with default", "${EMPTY_VAR:-fallback}", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// UNSET and MISSING are expected to not exist in environment
			got, err := expandEnvVars(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expandEnvVars() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("expandEnvVars() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("expandEnvVars() = %q, want %q", got, tt.want)
			}
		})
	}
}
