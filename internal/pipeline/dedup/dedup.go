package dedup

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/organizer-backend/internal/clients/ollama"
	"github.com/yungbote/organizer-backend/internal/config"
	"github.com/yungbote/organizer-backend/internal/logger"
	"github.com/yungbote/organizer-backend/internal/pkg/errkind"
	"github.com/yungbote/organizer-backend/internal/repos"
	"github.com/yungbote/organizer-backend/internal/types"
)

type Stats struct {
	Groups  int
	Losers  int
	LLMUsed int
}

type Service struct {
	log    *logger.Logger
	cfg    *config.Pipeline
	ollama ollama.Client
	items  repos.DocumentItemRepo
	dups   repos.DuplicateRepo
}

func NewService(log *logger.Logger, cfg *config.Pipeline, llm ollama.Client, items repos.DocumentItemRepo, dups repos.DuplicateRepo) *Service {
	return &Service{
		log:    log.With("component", "DuplicateResolver"),
		cfg:    cfg,
		ollama: llm,
		items:  items,
		dups:   dups,
	}
}

// Run groups indexed items by content hash and picks one keeper per group.
// The default rule is deterministic; the local model is consulted only for
// ambiguous groups. Losers are marked duplicate; the executor later replaces
// them with shortcuts to the keeper. Files are removed from the output only
// when the model asks for it and allow_deletes is on.
func (s *Service) Run(ctx context.Context, jobID uuid.UUID, report func(pct int, msg string)) (*Stats, error) {
	items, err := s.items.ListByJobAndStatus(ctx, nil, jobID, []string{types.DocStatusIndexed})
	if err != nil {
		return nil, errkind.New(errkind.Store, "dedup.Run", err)
	}

	byHash := map[string][]*types.DocumentItem{}
	for _, it := range items {
		if it.ContentHash == "" || it.SizeBytes < s.cfg.MinDuplicateSize {
			continue
		}
		byHash[it.ContentHash] = append(byHash[it.ContentHash], it)
	}

	hashes := make([]string, 0, len(byHash))
	for h, group := range byHash {
		if len(group) > 1 {
			hashes = append(hashes, h)
		}
	}
	sort.Strings(hashes)

	stats := &Stats{}
	for i, hash := range hashes {
		if ctx.Err() != nil {
			return stats, errkind.New(errkind.Cancelled, "dedup.Run", ctx.Err())
		}
		group := byHash[hash]
		if err := s.resolveGroup(ctx, jobID, hash, group, stats); err != nil {
			return stats, err
		}
		if report != nil {
			report((i+1)*100/len(hashes), fmt.Sprintf("resolved %d/%d duplicate groups", i+1, len(hashes)))
		}
	}
	return stats, nil
}

func (s *Service) resolveGroup(ctx context.Context, jobID uuid.UUID, hash string, group []*types.DocumentItem, stats *Stats) error {
	keeper := electKeeper(group)
	resolution := types.DupResolutionAuto
	reason := "shortest path, earliest modification"
	loserAction := types.DupActionShortcut

	if s.ollama != nil && needsArbitration(group) {
		verdict, err := s.askModel(ctx, group)
		if err != nil {
			s.log.Warn("Keeper arbitration failed, keeping default choice", "hash", hash, "error", err)
		} else {
			stats.LLMUsed++
			if verdict.keeper != nil {
				keeper = verdict.keeper
			}
			resolution = types.DupResolutionLLM
			reason = verdict.reason
			loserAction = verdict.action
			if loserAction == types.DupActionDelete && !s.cfg.AllowDeletes {
				// Deletion stays opt-in; without it the loser becomes a shortcut.
				loserAction = types.DupActionShortcut
			}
		}
	}

	dgroup := &types.DuplicateGroup{
		JobID:       jobID,
		ContentHash: hash,
		KeeperID:    &keeper.ID,
		Resolution:  resolution,
		Reason:      reason,
	}
	members := make([]*types.DuplicateGroupMember, 0, len(group))
	var loserIDs []uuid.UUID
	for _, it := range group {
		role := types.DupRoleLoser
		action := loserAction
		if it.ID == keeper.ID {
			role = types.DupRoleKeeper
			action = types.DupActionShortcut
		} else if loserAction != types.DupActionKeepBoth {
			loserIDs = append(loserIDs, it.ID)
		}
		members = append(members, &types.DuplicateGroupMember{
			DocumentItemID: it.ID,
			Role:           role,
			Action:         action,
		})
	}
	if _, err := s.dups.CreateGroup(ctx, nil, dgroup, members); err != nil {
		return errkind.New(errkind.Store, "dedup.resolveGroup", err)
	}
	// keep_both members stay indexed and flow into the plan on their own.
	if err := s.items.UpdateStatusBulk(ctx, nil, loserIDs, types.DocStatusDuplicate); err != nil {
		return errkind.New(errkind.Store, "dedup.resolveGroup", err)
	}
	stats.Groups++
	stats.Losers += len(loserIDs)
	return nil
}

type keeperVerdict struct {
	keeper *types.DocumentItem
	action string
	reason string
}

type keeperReply struct {
	Keep   string `json:"keep"`
	Action string `json:"action"`
	Reason string `json:"reason"`
}

func (s *Service) askModel(ctx context.Context, group []*types.DocumentItem) (*keeperVerdict, error) {
	var sb strings.Builder
	sb.WriteString("These files have identical content. Pick which path to keep.\n")
	sb.WriteString("Prefer the most canonical location: shallow paths, named folders over backup or temp folders, descriptive file names.\n\n")
	for _, it := range group {
		fmt.Fprintf(&sb, "- %s (modified %s", it.SourcePath, it.ModTime.Format("2006-01-02"))
		if it.Summary != "" {
			fmt.Fprintf(&sb, ", summary: %s", truncate(it.Summary, 160))
		}
		sb.WriteString(")\n")
	}
	sb.WriteString("\nReply with JSON: {\"keep\": \"<path>\", \"action\": \"shortcut\"|\"keep_both\"|\"delete\", \"reason\": \"<why>\"}")

	var reply keeperReply
	if err := s.ollama.GenerateJSON(ctx, sb.String(), &reply); err != nil {
		return nil, err
	}

	verdict := &keeperVerdict{reason: reply.Reason}
	switch strings.ToLower(strings.TrimSpace(reply.Action)) {
	case types.DupActionKeepBoth:
		verdict.action = types.DupActionKeepBoth
	case types.DupActionDelete:
		verdict.action = types.DupActionDelete
	default:
		verdict.action = types.DupActionShortcut
	}
	for _, it := range group {
		if it.SourcePath == strings.TrimSpace(reply.Keep) {
			verdict.keeper = it
			return verdict, nil
		}
	}
	if verdict.action == types.DupActionKeepBoth {
		// No keeper needed when everything stays.
		return verdict, nil
	}
	return nil, fmt.Errorf("model picked unknown path %q", reply.Keep)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
