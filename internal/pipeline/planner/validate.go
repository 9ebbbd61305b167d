package planner

import (
	"regexp"
	"sort"
	"strings"

	"github.com/yungbote/organizer-backend/internal/pipeline/executor"
	"github.com/yungbote/organizer-backend/internal/pkg/errkind"
	"github.com/yungbote/organizer-backend/internal/types"
)

const (
	uncategorizedDir = "/_Uncategorized"
	maxDirDepth      = 4
	maxTagLevels     = 3
)

var tagCharRe = regexp.MustCompile(`[^a-z0-9/-]+`)

type validated struct {
	directories []types.DirectoryNode
	assignments []types.FileAssignment
	bySource    map[string]*types.DocumentItem
	repaired    int
	missing     int
}

// validate repairs a model plan into an executable one: unknown source paths
// are dropped, names are sanitized, tags normalized, and files pointed at
// directories the plan never declared are parked in /_Uncategorized rather
// than guessing a tree for them. Files the model left out entirely also land
// in /_Uncategorized, but only up to a point: when more than maxRepairRatio
// of the corpus is missing from the plan, the plan is rejected with a
// planning_incomplete error and nothing should be persisted.
func validate(reply *planReply, eligible []*types.DocumentItem, maxRepairRatio float64) (*validated, error) {
	v := &validated{bySource: map[string]*types.DocumentItem{}}
	for _, it := range eligible {
		v.bySource[it.SourcePath] = it
	}

	declared := declaredDirs(reply.Directories)
	known := map[string]bool{}
	for _, d := range declared {
		known[d.Path] = true
	}

	seen := map[string]bool{}
	for _, a := range reply.Assignments {
		item := v.bySource[a.SourcePath]
		if item == nil || seen[a.SourcePath] {
			v.repaired++
			continue
		}
		seen[a.SourcePath] = true

		a.TargetDir = cleanDir(a.TargetDir)
		if a.TargetDir == "" || (a.TargetDir != uncategorizedDir && !known[a.TargetDir]) {
			a.TargetDir = uncategorizedDir
			a.Repaired = true
		}
		if a.TargetName != "" {
			name := executor.SanitizeFileName(a.TargetName)
			// Extension changes are not the planner's call.
			if ext := extOf(name); !strings.EqualFold(ext, item.Extension) {
				name = strings.TrimSuffix(name, ext) + item.Extension
			}
			if name != a.TargetName {
				a.Repaired = true
			}
			a.TargetName = name
		}
		a.Tags = normalizeTags(a.Tags)
		if a.Repaired {
			v.repaired++
		}
		v.assignments = append(v.assignments, a)
	}

	// Anything the model forgot still needs a home.
	for _, it := range eligible {
		if seen[it.SourcePath] {
			continue
		}
		v.assignments = append(v.assignments, types.FileAssignment{
			SourcePath: it.SourcePath,
			TargetDir:  uncategorizedDir,
			Reason:     "not assigned by planner",
			Repaired:   true,
		})
		v.repaired++
		v.missing++
	}

	if float64(v.missing) > maxRepairRatio*float64(len(eligible)) {
		return nil, errkind.Newf(errkind.PlanningIncomplete, "planner.validate",
			"%d of %d files missing from plan", v.missing, len(eligible))
	}

	v.directories = declared
	if usesUncategorized(v.assignments) && !known[uncategorizedDir] {
		v.directories = append(v.directories, types.DirectoryNode{
			Path:        uncategorizedDir,
			Description: "files the plan could not place",
		})
	}
	sort.Slice(v.directories, func(i, j int) bool {
		return v.directories[i].Path < v.directories[j].Path
	})
	sort.Slice(v.assignments, func(i, j int) bool {
		return v.assignments[i].SourcePath < v.assignments[j].SourcePath
	})
	return v, nil
}

func usesUncategorized(assignments []types.FileAssignment) bool {
	for _, a := range assignments {
		if a.TargetDir == uncategorizedDir {
			return true
		}
	}
	return false
}

// cleanDir normalizes a target directory to a sanitized absolute path no
// deeper than maxDirDepth. Returns "" when nothing usable remains.
func cleanDir(dir string) string {
	dir = strings.TrimSpace(dir)
	dir = strings.ReplaceAll(dir, "\\", "/")
	segments := []string{}
	for _, seg := range strings.Split(dir, "/") {
		seg = executor.SanitizeFileName(seg)
		if seg == "" || seg == "unnamed" || seg == "." || seg == ".." {
			continue
		}
		segments = append(segments, seg)
	}
	if len(segments) == 0 {
		return ""
	}
	if len(segments) > maxDirDepth {
		segments = segments[:maxDirDepth]
	}
	return "/" + strings.Join(segments, "/")
}

// declaredDirs sanitizes the declared tree as-is. No parent inference: the
// plan owns its tree, and a directory it never named is not invented for it.
func declaredDirs(declared []types.DirectoryNode) []types.DirectoryNode {
	seen := map[string]bool{}
	out := make([]types.DirectoryNode, 0, len(declared))
	for _, d := range declared {
		path := cleanDir(d.Path)
		if path == "" || seen[path] {
			continue
		}
		seen[path] = true
		out = append(out, types.DirectoryNode{Path: path, Description: d.Description})
	}
	return out
}

func normalizeTags(tags []string) []string {
	var out []string
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		tag = strings.ReplaceAll(tag, " ", "-")
		tag = strings.ReplaceAll(tag, "_", "-")
		tag = tagCharRe.ReplaceAllString(tag, "")
		levels := []string{}
		for _, lvl := range strings.Split(tag, "/") {
			lvl = strings.Trim(lvl, "-")
			if lvl != "" {
				levels = append(levels, lvl)
			}
		}
		if len(levels) == 0 {
			continue
		}
		if len(levels) > maxTagLevels {
			levels = levels[:maxTagLevels]
		}
		out = append(out, strings.Join(levels, "/"))
	}
	return out
}

func extOf(name string) string {
	idx := strings.LastIndexByte(name, '.')
	if idx < 0 {
		return ""
	}
	return name[idx:]
}
