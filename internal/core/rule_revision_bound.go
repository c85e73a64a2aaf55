package core

import (
	"context"
	"fmt"

	"binmap/pkg/domain"
)

// NewRevisionBoundRule blocks commits that leave a blueprint with more than
// limit live revisions.
func NewRevisionBoundRule(limit int) domain.Rule {
	return revisionBoundRule{limit: limit}
}

type revisionBoundRule struct {
	limit int
}

func (revisionBoundRule) Name() string { return "revision_bound" }

func (r revisionBoundRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	touched := make(map[string]struct{})
	for _, change := range changes {
		if change.Entity != domain.EntityRevision || change.Action != domain.ActionCreate {
			continue
		}
		if rev, ok := change.After.(domain.BlueprintRevision); ok {
			touched[rev.BlueprintID] = struct{}{}
		}
	}
	for id := range touched {
		if n := len(view.RevisionsByBlueprint(id)); n > r.limit {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "revision_bound",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("blueprint %s holds %d revisions, limit %d", id, n, r.limit),
				Entity:   domain.EntityBlueprint,
				EntityID: id,
			})
		}
	}
	return res, nil
}
