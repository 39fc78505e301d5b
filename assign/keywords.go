package assign

// DefaultKeywords maps an agent role to the terms in a task's title or
// description that indicate the task matches that specialization. The
// table is configuration, not business logic: deployments override it
// via the scoring config.
func DefaultKeywords() map[string][]string {
	return map[string][]string{
		"frontend": {"ui", "frontend", "css", "layout", "component", "page", "render"},
		"backend":  {"api", "backend", "endpoint", "server", "database", "query", "migration"},
		"testing":  {"test", "coverage", "regression", "flaky", "assert"},
		"docs":     {"docs", "documentation", "readme", "guide", "changelog"},
		"infra":    {"deploy", "docker", "pipeline", "ci", "infra", "terraform", "kubernetes"},
		"design":   {"design", "mockup", "wireframe", "spec", "proposal"},
	}
}
