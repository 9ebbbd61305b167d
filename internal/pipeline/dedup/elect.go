package dedup

import (
	"strings"

	"github.com/yungbote/organizer-backend/internal/types"
)

// Path segments that usually hold stale copies rather than the working file.
var demotedSegments = []string{"backup", "backups", "old", "archive", "archived", "copy", "copies", "tmp", "temp"}

// electKeeper applies the default rule: the copy with the fewest path
// segments wins; ties go to the earliest modification time, then the
// lexically smallest path.
func electKeeper(group []*types.DocumentItem) *types.DocumentItem {
	keeper := group[0]
	for _, it := range group[1:] {
		if beats(it, keeper) {
			keeper = it
		}
	}
	return keeper
}

func beats(a, b *types.DocumentItem) bool {
	da, db := pathDepth(a.SourcePath), pathDepth(b.SourcePath)
	if da != db {
		return da < db
	}
	if !a.ModTime.Equal(b.ModTime) {
		return a.ModTime.Before(b.ModTime)
	}
	return a.SourcePath < b.SourcePath
}

func pathDepth(p string) int {
	return len(strings.Split(strings.Trim(p, "/"), "/"))
}

// needsArbitration reports whether the group is ambiguous enough to hand to
// the local model: three or more copies, copies spread across different
// top-level folders, or any copy sitting in a backup-style folder.
func needsArbitration(group []*types.DocumentItem) bool {
	if len(group) >= 3 {
		return true
	}
	top := topSegment(group[0].SourcePath)
	for _, it := range group[1:] {
		if topSegment(it.SourcePath) != top {
			return true
		}
	}
	for _, it := range group {
		if inDemotedFolder(it.SourcePath) {
			return true
		}
	}
	return false
}

func topSegment(p string) string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	if len(parts) < 2 {
		// file at the root, no containing folder
		return ""
	}
	return parts[0]
}

func inDemotedFolder(p string) bool {
	lower := strings.ToLower(p)
	for _, seg := range demotedSegments {
		if strings.Contains(lower, "/"+seg+"/") || strings.HasPrefix(lower, seg+"/") {
			return true
		}
	}
	return false
}
