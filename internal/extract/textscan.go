package extract

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/selitys/selitys/internal/facts"
)

// Shared content scans used by every extractor. These run on raw bytes
// so they work identically whether or not the file parsed.

type secretRule struct {
	re   *regexp.Regexp
	desc string
}

var secretRules = []secretRule{
	{regexp.MustCompile(`(?i)password\s*[:=]\s*["']([^"']{4,})["']`), "hardcoded password"},
	{regexp.MustCompile(`(?i)secret_key\s*[:=]\s*["']([^"']{8,})["']`), "hardcoded secret"},
	{regexp.MustCompile(`(?i)api_key\s*[:=]\s*["']([^"']{8,})["']`), "hardcoded API key"},
	{regexp.MustCompile(`(?i)auth_token\s*[:=]\s*["']([^"']{20,})["']`), "hardcoded token"},
	{regexp.MustCompile(`(?i)private_key\s*[:=]\s*["']([^"']{20,})["']`), "hardcoded private key"},
	{regexp.MustCompile(`(?i)AWS_SECRET_ACCESS_KEY\s*[:=]\s*["']([^"']+)["']`), "AWS secret key"},
	{regexp.MustCompile(`-----BEGIN (RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`), "embedded private key"},
	{regexp.MustCompile(`ghp_[a-zA-Z0-9]{36}`), "GitHub personal access token"},
	{regexp.MustCompile(`sk-[a-zA-Z0-9]{48}`), "OpenAI API key pattern"},
}

// envNameLiteral matches string values that are themselves environment
// variable names ("API_KEY" = "STRIPE_API_KEY" is a reference, not a
// credential).
var envNameLiteral = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

// envReadLine marks lines that read from the environment; a credential
// pattern on such a line is configuration plumbing, not a leak.
var envReadLine = regexp.MustCompile(`os\.getenv|os\.environ|process\.env`)

type insecureRule struct {
	re       *regexp.Regexp
	desc     string
	severity string
}

var insecureRules = []insecureRule{
	{regexp.MustCompile(`DEBUG\s*=\s*True`), "Debug mode enabled", "medium"},
	{regexp.MustCompile(`verify\s*=\s*False`), "SSL verification disabled", "high"},
	{regexp.MustCompile(`allow_origins\s*=\s*\["\*"\]`), "Permissive CORS configuration", "medium"},
	{regexp.MustCompile(`(^|[^"'\w])eval\s*\([^)]+\)`), "Use of eval()", "high"},
	{regexp.MustCompile(`(^|[^"'\w])exec\s*\([^)]+\)`), "Use of exec()", "high"},
	{regexp.MustCompile(`subprocess\.(run|call|Popen).*shell\s*=\s*True`), "Shell injection risk", "high"},
	{regexp.MustCompile(`pickle\.loads?\s*\(`), "Pickle deserialization (potential RCE)", "medium"},
	{regexp.MustCompile(`yaml\.load\s*\([^)]*Loader\s*=\s*None`), "Unsafe YAML load (use safe_load)", "medium"},
	{regexp.MustCompile(`hashlib\.md5\(|hashlib\.sha1\(`), "Weak hash algorithm", "low"},
}

var (
	sqlExecute  = regexp.MustCompile(`execute\s*\(`)
	sqlKeyword  = regexp.MustCompile(`SELECT|INSERT|UPDATE|DELETE`)
	sqlParamArg = regexp.MustCompile(`execute\s*\([^,]+,\s*[\[\(]`)
	debtMarker  = regexp.MustCompile(`(?i)(#|//)\s*(TODO|FIXME|HACK|XXX|BUG)`)
)

// RiskFacts scans file content for risk signals and returns them as
// risk-hint facts. Secret findings stop at the first match per file;
// each insecure-configuration rule reports its first matching line.
func RiskFacts(filePath string, src []byte) []facts.Fact {
	var out []facts.Fact
	lines := strings.Split(string(src), "\n")
	testish := isTestOrExample(filePath)

	for _, rule := range secretRules {
		line, value, ok := firstSecretMatch(rule, lines)
		if !ok {
			continue
		}
		severity := "high"
		desc := fmt.Sprintf("Detected pattern matching %s - review for exposed credentials", rule.desc)
		if testish {
			severity = "medium"
			desc = fmt.Sprintf("Found %s pattern in test/example file - verify it is not a real credential", rule.desc)
		}
		out = append(out, riskHint(
			"Possible "+rule.desc, desc, severity,
			filePath, line, redact(value),
		))
		break
	}

	for _, rule := range insecureRules {
		for i, l := range lines {
			if !rule.re.MatchString(l) {
				continue
			}
			out = append(out, riskHint(
				rule.desc,
				fmt.Sprintf("Detected %s - review for security implications", rule.desc),
				rule.severity,
				filePath, i+1, strings.TrimSpace(l),
			))
			break
		}
	}

	if sqlExecute.Match(src) && sqlKeyword.Match(src) && !sqlParamArg.Match(src) {
		line := 0
		for i, l := range lines {
			if sqlExecute.MatchString(l) {
				line = i + 1
				break
			}
		}
		out = append(out, riskHint(
			"Possible SQL injection",
			"Raw SQL execution without apparent parameterization detected",
			"high",
			filePath, line, "",
		))
	}

	if n := len(debtMarker.FindAll(src, -1)); n > 5 {
		out = append(out, riskHint(
			"Technical debt markers",
			fmt.Sprintf("Contains %d TODO/FIXME/HACK comments indicating unfinished work", n),
			"low",
			filePath, 0, "",
		))
	}

	return out
}

func firstSecretMatch(rule secretRule, lines []string) (line int, value string, ok bool) {
	for i, l := range lines {
		m := rule.re.FindStringSubmatch(l)
		if m == nil {
			continue
		}
		if envReadLine.MatchString(l) {
			continue
		}
		val := ""
		if len(m) > 1 {
			val = m[1]
		}
		if val != "" && envNameLiteral.MatchString(val) {
			continue
		}
		return i + 1, val, true
	}
	return 0, "", false
}

func riskHint(riskType, description, severity, file string, line int, snippet string) facts.Fact {
	conf := facts.Low
	switch severity {
	case "high":
		conf = facts.High
	case "medium":
		conf = facts.Medium
	}
	f := facts.New(facts.KindRiskHint, riskType, facts.Evidence{
		File:       file,
		LineStart:  line,
		LineEnd:    line,
		Snippet:    snippet,
		Confidence: conf,
	})
	return f.WithAttrs("severity", severity, "description", description)
}

// redact keeps enough of a matched literal to locate it without
// reproducing the credential in the output.
func redact(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}

func isTestOrExample(filePath string) bool {
	p := strings.ToLower(filePath)
	return strings.Contains(p, "test") || strings.Contains(p, "example")
}

type configPattern struct {
	fileType string
	desc     string
}

var configPatterns = map[string]configPattern{
	"config.py":          {"Python", "Application configuration module"},
	"settings.py":        {"Python", "Django-style settings module"},
	"pyproject.toml":     {"TOML", "Python project configuration"},
	"alembic.ini":        {"INI", "Alembic database migration configuration"},
	"pytest.ini":         {"INI", "Pytest configuration"},
	"setup.cfg":          {"INI", "Python package configuration"},
	"config.yaml":        {"YAML", "YAML configuration file"},
	"config.yml":         {"YAML", "YAML configuration file"},
	"config.json":        {"JSON", "JSON configuration file"},
	".env":               {"Environment", "Environment variables file"},
	".env.example":       {"Environment", "Example environment variables template"},
	".env.local":         {"Environment", "Local environment overrides"},
	"package.json":       {"JSON", "Node.js package configuration"},
	"tsconfig.json":      {"JSON", "TypeScript compiler configuration"},
	"next.config.js":     {"JavaScript", "Next.js configuration"},
	"next.config.mjs":    {"JavaScript", "Next.js configuration"},
	"vite.config.ts":     {"TypeScript", "Vite bundler configuration"},
	"vite.config.js":     {"JavaScript", "Vite bundler configuration"},
	"webpack.config.js":  {"JavaScript", "Webpack bundler configuration"},
	"tailwind.config.js": {"JavaScript", "Tailwind CSS configuration"},
	"tailwind.config.ts": {"TypeScript", "Tailwind CSS configuration"},
	"jest.config.js":     {"JavaScript", "Jest testing configuration"},
	"jest.config.ts":     {"TypeScript", "Jest testing configuration"},
	".eslintrc.js":       {"JavaScript", "ESLint configuration"},
	".eslintrc.json":     {"JSON", "ESLint configuration"},
	".prettierrc":        {"JSON", "Prettier configuration"},
}

var (
	pySettingLine  = regexp.MustCompile(`(?m)^\s*[A-Z_]+\s*=`)
	envSettingLine = regexp.MustCompile(`(?m)^[A-Z_]+=`)
)

// ConfigFileFact recognizes well-known configuration files by name and
// returns a config-file fact describing them.
func ConfigFileFact(filePath string, src []byte) (facts.Fact, bool) {
	base := path.Base(filePath)
	cp, ok := configPatterns[base]
	if !ok {
		if strings.HasSuffix(filePath, "prisma/schema.prisma") {
			cp = configPattern{"Prisma", "Prisma database schema"}
		} else {
			return facts.Fact{}, false
		}
	}

	settings := 0
	switch {
	case strings.HasSuffix(base, ".py"):
		settings = len(pySettingLine.FindAll(src, -1))
	case strings.HasPrefix(base, ".env"):
		settings = len(envSettingLine.FindAll(src, -1))
	}

	f := facts.New(facts.KindConfigFile, cp.desc, facts.Evidence{
		File:       filePath,
		Symbol:     base,
		Confidence: facts.High,
	})
	return f.WithAttrs(
		"file_type", cp.fileType,
		"description", cp.desc,
		"settings_count", fmt.Sprintf("%d", settings),
	), true
}

var (
	pyGetenv     = regexp.MustCompile(`os\.getenv\s*\(\s*["']([^"']+)["'](?:\s*,\s*([^)]+))?\)`)
	pyEnvironGet = regexp.MustCompile(`os\.environ\.get\s*\(\s*["']([^"']+)["'](?:\s*,\s*([^)]+))?\)`)
	pyEnvironIdx = regexp.MustCompile(`os\.environ\[\s*["']([^"']+)["']\s*\]`)
	jsProcessEnv = regexp.MustCompile(`process\.env(?:\.([A-Za-z_][A-Za-z0-9_]*)|\[\s*["']([^"']+)["']\s*\])`)
)

// EnvVarFacts finds environment variable reads by pattern. Works for
// both Python and JS/TS content; each variable is reported once per
// file with its first occurrence as evidence.
func EnvVarFacts(filePath string, src []byte, confidence facts.Confidence) []facts.Fact {
	var out []facts.Fact
	seen := make(map[string]bool)
	lines := strings.Split(string(src), "\n")

	add := func(name, def string, line int) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		f := facts.New(facts.KindEnvVar, "Environment variable "+name, facts.Evidence{
			File:       filePath,
			LineStart:  line,
			LineEnd:    line,
			Symbol:     name,
			Confidence: confidence,
		})
		f = f.WithAttrs("name", name)
		def = strings.TrimSpace(def)
		if def != "" && def != "None" && def != "undefined" {
			f = f.WithAttrs("has_default", "true", "default_value", def)
		}
		out = append(out, f)
	}

	for i, l := range lines {
		for _, re := range []*regexp.Regexp{pyGetenv, pyEnvironGet} {
			for _, m := range re.FindAllStringSubmatch(l, -1) {
				add(m[1], m[2], i+1)
			}
		}
		for _, m := range pyEnvironIdx.FindAllStringSubmatch(l, -1) {
			add(m[1], "", i+1)
		}
		for _, m := range jsProcessEnv.FindAllStringSubmatch(l, -1) {
			name := m[1]
			if name == "" {
				name = m[2]
			}
			add(name, "", i+1)
		}
	}
	return out
}
