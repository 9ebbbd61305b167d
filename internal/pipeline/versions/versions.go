package versions

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/agext/levenshtein"
	"github.com/google/uuid"

	"github.com/yungbote/organizer-backend/internal/clients/ollama"
	"github.com/yungbote/organizer-backend/internal/config"
	"github.com/yungbote/organizer-backend/internal/logger"
	"github.com/yungbote/organizer-backend/internal/pkg/errkind"
	"github.com/yungbote/organizer-backend/internal/repos"
	"github.com/yungbote/organizer-backend/internal/types"
)

type Stats struct {
	Chains     int
	Superseded int
	LLMUsed    int
}

type Service struct {
	log      *logger.Logger
	cfg      *config.Pipeline
	ollama   ollama.Client
	items    repos.DocumentItemRepo
	versions repos.VersionRepo
}

func NewService(log *logger.Logger, cfg *config.Pipeline, llm ollama.Client, items repos.DocumentItemRepo, vers repos.VersionRepo) *Service {
	return &Service{
		log:      log.With("component", "VersionResolver"),
		cfg:      cfg,
		ollama:   llm,
		items:    items,
		versions: vers,
	}
}

type candidate struct {
	item    *types.DocumentItem
	markers Markers
}

// Run detects version families among the surviving items, orders each chain
// oldest to newest, and marks everything but the newest as superseded.
func (s *Service) Run(ctx context.Context, jobID uuid.UUID, report func(pct int, msg string)) (*Stats, error) {
	items, err := s.items.ListByJobAndStatus(ctx, nil, jobID, []string{types.DocStatusIndexed})
	if err != nil {
		return nil, errkind.New(errkind.Store, "versions.Run", err)
	}

	families := buildFamilies(items, s.cfg.SimilarityThreshold)
	stats := &Stats{}
	for i, fam := range families {
		if ctx.Err() != nil {
			return stats, errkind.New(errkind.Cancelled, "versions.Run", ctx.Err())
		}
		if err := s.resolveChain(ctx, jobID, fam, stats); err != nil {
			return stats, err
		}
		if report != nil {
			report((i+1)*100/len(families), fmt.Sprintf("resolved %d/%d version chains", i+1, len(families)))
		}
	}
	return stats, nil
}

// buildFamilies groups candidates by stripped base name and extension, then
// merges groups whose bases clear the similarity threshold. A merge also
// needs differing content across the groups, otherwise the pair is plain
// duplication and not a version relationship.
func buildFamilies(items []*types.DocumentItem, similarityThreshold float64) [][]candidate {
	byKey := map[string][]candidate{}
	var keys []string
	for _, it := range items {
		stem := strings.TrimSuffix(it.FileName, it.Extension)
		m := ParseMarkers(stem)
		key := strings.ToLower(m.Base) + "|" + strings.ToLower(it.Extension) + "|" + dirOf(it.SourcePath)
		if _, seen := byKey[key]; !seen {
			keys = append(keys, key)
		}
		byKey[key] = append(byKey[key], candidate{item: it, markers: m})
	}
	sort.Strings(keys)

	// Merge near-identical bases (typos, single-character renames) within
	// the same directory and extension.
	merged := map[string]bool{}
	var families [][]candidate
	for i, key := range keys {
		if merged[key] {
			continue
		}
		fam := byKey[key]
		baseI, extI, dirI := splitKey(key)
		for _, other := range keys[i+1:] {
			if merged[other] {
				continue
			}
			baseJ, extJ, dirJ := splitKey(other)
			if extI != extJ || dirI != dirJ {
				continue
			}
			if levenshtein.Similarity(baseI, baseJ, nil) < similarityThreshold {
				continue
			}
			if !hasDifferingContent(fam, byKey[other]) {
				continue
			}
			fam = append(fam, byKey[other]...)
			merged[other] = true
		}
		if len(fam) > 1 {
			families = append(families, fam)
		}
	}
	return families
}

// hasDifferingContent reports whether at least one cross pair carries a
// different content hash.
func hasDifferingContent(a, b []candidate) bool {
	for _, ca := range a {
		for _, cb := range b {
			if ca.item.ContentHash == "" || cb.item.ContentHash == "" {
				continue
			}
			if ca.item.ContentHash != cb.item.ContentHash {
				return true
			}
		}
	}
	return false
}

func (s *Service) resolveChain(ctx context.Context, jobID uuid.UUID, fam []candidate, stats *Stats) error {
	resolution := types.DupResolutionAuto
	reason := ""

	unmarked := 0
	for _, c := range fam {
		if !c.markers.Matched {
			unmarked++
		}
	}
	// A family held together only by name similarity is a guess; have the
	// model confirm before superseding anything.
	if unmarked > 0 && s.ollama != nil {
		confirmed, llmReason, err := s.confirmChain(ctx, fam)
		if err != nil {
			s.log.Warn("Chain confirmation failed, keeping chain on marker evidence", "base", fam[0].markers.Base, "error", err)
		} else {
			stats.LLMUsed++
			if !confirmed {
				return nil
			}
			resolution = types.DupResolutionLLM
			reason = llmReason
		}
	}

	ordered := orderChain(fam)
	current := ordered[len(ordered)-1]

	chain := &types.VersionChain{
		JobID:           jobID,
		BaseName:        current.markers.Base,
		Extension:       strings.ToLower(current.item.Extension),
		ArchiveStrategy: s.cfg.ArchiveStrategy,
		CurrentID:       &current.item.ID,
		Resolution:      resolution,
		Reason:          reason,
	}
	members := make([]*types.VersionChainMember, 0, len(ordered))
	var supersededIDs []uuid.UUID
	for pos, c := range ordered {
		role := types.VersionRoleSuperseded
		if c.item.ID == current.item.ID {
			role = types.VersionRoleCurrent
		} else {
			supersededIDs = append(supersededIDs, c.item.ID)
		}
		members = append(members, &types.VersionChainMember{
			DocumentItemID: c.item.ID,
			Position:       pos,
			VersionNumber:  c.markers.Number,
			VersionDate:    c.markers.Date,
			VersionStatus:  c.markers.Status,
			Role:           role,
		})
	}

	if _, err := s.versions.CreateChain(ctx, nil, chain, members); err != nil {
		return errkind.New(errkind.Store, "versions.resolveChain", err)
	}
	if err := s.items.UpdateStatusBulk(ctx, nil, supersededIDs, types.DocStatusSuperseded); err != nil {
		return errkind.New(errkind.Store, "versions.resolveChain", err)
	}
	if err := s.items.UpdateStatusBulk(ctx, nil, []uuid.UUID{current.item.ID}, types.DocStatusCurrent); err != nil {
		return errkind.New(errkind.Store, "versions.resolveChain", err)
	}
	stats.Chains++
	stats.Superseded += len(supersededIDs)
	return nil
}

// orderChain sorts oldest first. Explicit version numbers win, then dates,
// then lifecycle status, then file mtime.
func orderChain(fam []candidate) []candidate {
	out := make([]candidate, len(fam))
	copy(out, fam)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].markers, out[j].markers
		if a.Number != nil && b.Number != nil && *a.Number != *b.Number {
			return *a.Number < *b.Number
		}
		if a.Number != nil && b.Number == nil {
			return false
		}
		if a.Number == nil && b.Number != nil {
			return true
		}
		if a.Date != nil && b.Date != nil && !a.Date.Equal(*b.Date) {
			return a.Date.Before(*b.Date)
		}
		if pa, pb := StatusPriority(a.Status), StatusPriority(b.Status); pa != pb {
			return pa < pb
		}
		return out[i].item.ModTime.Before(out[j].item.ModTime)
	})
	return out
}

type chainReply struct {
	SameDocument bool   `json:"same_document"`
	Reason       string `json:"reason"`
}

func (s *Service) confirmChain(ctx context.Context, fam []candidate) (bool, string, error) {
	var sb strings.Builder
	sb.WriteString("Decide whether these files are successive versions of one document. Similar names alone are not proof; weigh the summaries.\n\n")
	for _, c := range fam {
		fmt.Fprintf(&sb, "- %s (modified %s", c.item.SourcePath, c.item.ModTime.Format("2006-01-02"))
		if c.item.Summary != "" {
			fmt.Fprintf(&sb, ", summary: %s", truncate(c.item.Summary, 160))
		}
		sb.WriteString(")\n")
	}
	sb.WriteString("\nReply with JSON: {\"same_document\": true|false, \"reason\": \"<why>\"}")

	var reply chainReply
	if err := s.ollama.GenerateJSON(ctx, sb.String(), &reply); err != nil {
		return false, "", err
	}
	return reply.SameDocument, reply.Reason, nil
}

func dirOf(sourcePath string) string {
	d := filepath.Dir(sourcePath)
	if d == "." {
		return ""
	}
	return strings.ToLower(d)
}

func splitKey(key string) (base, ext, dir string) {
	parts := strings.SplitN(key, "|", 3)
	return parts[0], parts[1], parts[2]
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
