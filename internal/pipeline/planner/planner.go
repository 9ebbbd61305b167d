package planner

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/organizer-backend/internal/clients/claude"
	"github.com/yungbote/organizer-backend/internal/config"
	"github.com/yungbote/organizer-backend/internal/db"
	"github.com/yungbote/organizer-backend/internal/logger"
	"github.com/yungbote/organizer-backend/internal/pkg/errkind"
	"github.com/yungbote/organizer-backend/internal/repos"
	"github.com/yungbote/organizer-backend/internal/types"
)

type Stats struct {
	Assigned    int
	Repaired    int
	Directories int
}

// planReply is the wire shape expected back from the model.
type planReply struct {
	Summary      string                 `json:"summary"`
	Directories  []types.DirectoryNode  `json:"directories"`
	Assignments  []types.FileAssignment `json:"assignments"`
	NamingSchema *types.NamingSchema    `json:"naming_schema"`
	TagTaxonomy  *types.TagTaxonomy     `json:"tag_taxonomy"`
}

type Service struct {
	log      *logger.Logger
	cfg      *config.Pipeline
	claude   claude.Client
	gdb      *gorm.DB
	items    repos.DocumentItemRepo
	versions repos.VersionRepo
	plans    repos.PlanRepo
}

func NewService(log *logger.Logger, cfg *config.Pipeline, llm claude.Client, gdb *gorm.DB, items repos.DocumentItemRepo, vers repos.VersionRepo, plans repos.PlanRepo) *Service {
	return &Service{
		log:      log.With("component", "Planner"),
		cfg:      cfg,
		claude:   llm,
		gdb:      gdb,
		items:    items,
		versions: vers,
		plans:    plans,
	}
}

// Run asks the remote model for an organization plan over the surviving
// items, repairs whatever the model missed, and persists plan plus item
// targets in one transaction. A plan leaving too much of the corpus
// unassigned is rejected outright: nothing is persisted and the phase fails
// with planning_incomplete.
func (s *Service) Run(ctx context.Context, jobID uuid.UUID, report func(pct int, msg string)) (*Stats, error) {
	eligible, err := s.items.ListByJobAndStatus(ctx, nil, jobID, []string{
		types.DocStatusIndexed, types.DocStatusCurrent,
	})
	if err != nil {
		return nil, errkind.New(errkind.Store, "planner.Run", err)
	}
	if len(eligible) == 0 {
		return nil, errkind.Newf(errkind.Validation, "planner.Run", "no files left to organize")
	}

	if report != nil {
		report(10, "building corpus digest")
	}
	versionInfo, err := s.versionNotes(ctx, jobID)
	if err != nil {
		return nil, err
	}
	digest, err := buildDigest(eligible, versionInfo)
	if err != nil {
		return nil, errkind.New(errkind.Fatal, "planner.Run", err)
	}

	if report != nil {
		report(25, "requesting organization plan")
	}
	var reply planReply
	if err := s.claude.CompleteJSON(ctx, systemPrompt, digest, 8192, &reply); err != nil {
		return nil, err
	}

	if report != nil {
		report(70, "validating plan")
	}
	validated, vErr := validate(&reply, eligible, s.cfg.MaxRepairRatio)
	if vErr != nil {
		return nil, vErr
	}

	stats := &Stats{
		Assigned:    len(validated.assignments),
		Repaired:    validated.repaired,
		Directories: len(validated.directories),
	}

	if report != nil {
		report(85, "persisting plan")
	}
	if err := s.persist(ctx, jobID, &reply, validated); err != nil {
		return stats, err
	}
	return stats, nil
}

func (s *Service) versionNotes(ctx context.Context, jobID uuid.UUID) (map[string]string, error) {
	chains, err := s.versions.ListChainsByJob(ctx, nil, jobID)
	if err != nil {
		return nil, errkind.New(errkind.Store, "planner.versionNotes", err)
	}
	notes := map[string]string{}
	for _, chain := range chains {
		members, err := s.versions.ListMembers(ctx, nil, chain.ID)
		if err != nil {
			return nil, errkind.New(errkind.Store, "planner.versionNotes", err)
		}
		for _, m := range members {
			if chain.CurrentID != nil && m.DocumentItemID == *chain.CurrentID {
				item, err := s.items.GetByID(ctx, nil, m.DocumentItemID)
				if err != nil {
					return nil, errkind.New(errkind.Store, "planner.versionNotes", err)
				}
				if item != nil {
					notes[item.SourcePath] = fmt.Sprintf("current of %d-version chain %q", len(members), chain.BaseName)
				}
			}
		}
	}
	return notes, nil
}

func (s *Service) persist(ctx context.Context, jobID uuid.UUID, reply *planReply, v *validated) error {
	dirsJSON, err := json.Marshal(v.directories)
	if err != nil {
		return errkind.New(errkind.Fatal, "planner.persist", err)
	}
	assignJSON, err := json.Marshal(v.assignments)
	if err != nil {
		return errkind.New(errkind.Fatal, "planner.persist", err)
	}
	var schemaJSON, taxonomyJSON datatypes.JSON
	if reply.NamingSchema != nil {
		b, _ := json.Marshal(reply.NamingSchema)
		schemaJSON = datatypes.JSON(b)
	}
	if reply.TagTaxonomy != nil {
		b, _ := json.Marshal(reply.TagTaxonomy)
		taxonomyJSON = datatypes.JSON(b)
	}

	plan := &types.OrganizationPlan{
		JobID:         jobID,
		Directories:   datatypes.JSON(dirsJSON),
		Assignments:   datatypes.JSON(assignJSON),
		NamingSchema:  schemaJSON,
		TagTaxonomy:   taxonomyJSON,
		Summary:       reply.Summary,
		ModelUsed:     s.claude.Model(),
		TotalAssigned: len(v.assignments),
		RepairedCount: v.repaired,
	}

	err = db.WithTx(s.gdb, func(tx *gorm.DB) error {
		if _, err := s.plans.Upsert(ctx, tx, plan); err != nil {
			return err
		}
		for _, a := range v.assignments {
			item := v.bySource[a.SourcePath]
			if item == nil {
				continue
			}
			var tagsJSON datatypes.JSON
			if len(a.Tags) > 0 {
				b, _ := json.Marshal(a.Tags)
				tagsJSON = datatypes.JSON(b)
			}
			updates := map[string]interface{}{
				"target_dir":  a.TargetDir,
				"target_name": a.TargetName,
				"status":      types.DocStatusOrganized,
				"tags":        tagsJSON,
			}
			if err := s.items.UpdateFields(ctx, tx, item.ID, updates); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errkind.New(errkind.Store, "planner.persist", err)
	}
	return nil
}
