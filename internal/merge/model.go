package merge

import (
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/selitys/selitys/internal/facts"
	"github.com/selitys/selitys/internal/scan"
)

// subsystemPatterns maps conventional directory names to subsystem
// descriptions.
var subsystemPatterns = map[string][2]string{
	"services":   {"Services", "Business logic and service layer"},
	"service":    {"Services", "Business logic and service layer"},
	"api":        {"API Layer", "HTTP API handlers and endpoints"},
	"routes":     {"Routing", "HTTP route definitions"},
	"models":     {"Data Models", "Database models and entities"},
	"schemas":    {"Schemas", "Data validation and serialization schemas"},
	"core":       {"Core", "Core application configuration and utilities"},
	"utils":      {"Utilities", "Helper functions and utilities"},
	"auth":       {"Authentication", "Authentication and authorization"},
	"db":         {"Database", "Database connection and queries"},
	"database":   {"Database", "Database connection and queries"},
	"middleware": {"Middleware", "Request/response middleware"},
	"tasks":      {"Background Tasks", "Async tasks and job processing"},
	"workers":    {"Workers", "Background job workers"},
}

// BuildModel assembles the unified model from merged facts and the scan
// result. Pattern and risk analysis run afterwards on the assembled
// model; this step only collects what extraction established.
func BuildModel(merged []facts.Fact, scanRes *scan.Result) facts.UnifiedModel {
	filePaths := make([]string, len(scanRes.Files))
	for i, f := range scanRes.Files {
		filePaths[i] = f.Path
	}

	m := facts.UnifiedModel{
		RepoName: path.Base(scanRes.Root),
		RepoPath: scanRes.Root,
		Warnings: scanRes.Warnings,
		Facts:    merged,
	}
	for _, sk := range scanRes.Skipped {
		m.SkippedFiles = append(m.SkippedFiles, facts.SkippedRecord{Path: sk.Path, Reason: sk.Reason})
	}

	for _, f := range merged {
		switch f.Kind {
		case facts.KindEntryPoint:
			desc := f.Attr("description")
			if desc == "" {
				desc = f.Summary
			}
			m.EntryPoints = append(m.EntryPoints, facts.EntryPoint{
				Path:        f.File(),
				Description: desc,
				Evidence:    f.Evidence,
			})
		case facts.KindFramework:
			m.Frameworks = append(m.Frameworks, facts.Framework{
				Name:     f.Attr("name"),
				Category: f.Attr("category"),
				Evidence: f.Evidence,
			})
		case facts.KindRoute:
			m.APIEndpoints = append(m.APIEndpoints, facts.APIEndpoint{
				Method:   f.Attr("method"),
				Path:     f.Attr("path"),
				Handler:  f.Attr("handler"),
				Evidence: f.Evidence,
			})
		case facts.KindDomainEntity:
			m.DomainEntities = append(m.DomainEntities, facts.DomainEntity{
				Name:     f.Attr("class"),
				Table:    f.Attr("table"),
				File:     f.File(),
				Evidence: f.Evidence,
			})
		case facts.KindConfigFile:
			count, _ := strconv.Atoi(f.Attr("settings_count"))
			m.ConfigFiles = append(m.ConfigFiles, facts.ConfigFile{
				Path:          f.File(),
				FileType:      f.Attr("file_type"),
				Description:   f.Attr("description"),
				SettingsCount: count,
				Evidence:      f.Evidence,
			})
		case facts.KindEnvVar:
			m.EnvVars = append(m.EnvVars, facts.EnvVar{
				Name:         f.Attr("name"),
				SourceFile:   f.File(),
				HasDefault:   f.Attr("has_default") == "true",
				DefaultValue: f.Attr("default_value"),
				Evidence:     f.Evidence,
			})
		case facts.KindUnparseable:
			m.UnparseableFiles = append(m.UnparseableFiles, f.File())
		}
	}

	m.Subsystems = detectSubsystems(filePaths)
	m.Graph = facts.BuildGraph(merged, filePaths)
	assignSubsystems(&m.Graph, m.Subsystems)
	return m
}

// assignSubsystems tags each graph node with its owning subsystem, by
// longest matching directory prefix.
func assignSubsystems(g *facts.DependencyGraph, subs []facts.Subsystem) {
	for i, n := range g.Nodes {
		best := ""
		bestLen := -1
		for _, s := range subs {
			if strings.HasPrefix(n.ID, s.Directory+"/") && len(s.Directory) > bestLen {
				best = s.Name
				bestLen = len(s.Directory)
			}
		}
		g.Nodes[i].Subsystem = best
	}
}

// detectSubsystems finds conventional component directories. The first
// directory claiming a subsystem name wins; shallower paths are
// considered first so src/services beats src/a/b/services.
func detectSubsystems(filePaths []string) []facts.Subsystem {
	dirs := make(map[string]bool)
	for _, p := range filePaths {
		for d := path.Dir(p); d != "." && d != "/"; d = path.Dir(d) {
			dirs[d] = true
		}
	}
	sorted := make([]string, 0, len(dirs))
	for d := range dirs {
		sorted = append(sorted, d)
	}
	sort.Slice(sorted, func(i, j int) bool {
		di, dj := strings.Count(sorted[i], "/"), strings.Count(sorted[j], "/")
		if di != dj {
			return di < dj
		}
		return sorted[i] < sorted[j]
	})

	var out []facts.Subsystem
	seen := make(map[string]bool)
	for _, d := range sorted {
		sp, ok := subsystemPatterns[strings.ToLower(path.Base(d))]
		if !ok || seen[sp[0]] {
			continue
		}
		seen[sp[0]] = true

		var keyFiles []string
		for _, p := range filePaths {
			if len(keyFiles) >= 5 {
				break
			}
			if strings.HasPrefix(p, d+"/") && path.Base(p) != "__init__.py" {
				keyFiles = append(keyFiles, p)
			}
		}
		sort.Strings(keyFiles)

		out = append(out, facts.Subsystem{
			Name:        sp[0],
			Directory:   d,
			Description: sp[1],
			KeyFiles:    keyFiles,
			Evidence: []facts.Evidence{{
				File:       d,
				Confidence: facts.Medium,
			}},
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Directory < out[j].Directory })
	return out
}
