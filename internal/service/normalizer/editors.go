package normalizer

import (
	"context"
	"log/slog"
	"sort"

	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/domain"
)

// MapEditors merges the submission's assigned editors with the editors
// attributed to the decision into RQC editor assignments. Section
// editors get level 1, assigned and deciding editors level 3. A person
// appearing on both sides is listed once, at level 3. RQC requires at
// least one level-1 editor, so when the merge yields none the first
// assignment is demoted. The list is ordered level 1 first so the
// length cap never cuts off the required level-1 entry.
func (s *Service) MapEditors(ctx context.Context, submissionRef string, submissionEditors []domain.HostEditor, decisionEditors []domain.Person) []domain.EditorAssignment {
	assignments := make([]domain.EditorAssignment, 0, len(submissionEditors)+len(decisionEditors))
	index := make(map[string]int)

	add := func(p domain.Person, level domain.EditorLevel) {
		if i, seen := index[p.Email]; seen {
			if level > assignments[i].Level {
				assignments[i].Level = level
			}
			return
		}
		index[p.Email] = len(assignments)
		assignments = append(assignments, domain.EditorAssignment{Person: clampPerson(p), Level: level})
	}

	for _, e := range submissionEditors {
		level := domain.EditorLevelDecision
		if e.Role == domain.HostEditorRoleSectionEditor {
			level = domain.EditorLevelSection
		}
		add(e.Person, level)
	}
	for _, p := range decisionEditors {
		add(p, domain.EditorLevelDecision)
	}

	if len(assignments) > 0 && !hasSectionEditor(assignments) {
		assignments[0].Level = domain.EditorLevelSection
	}

	sort.SliceStable(assignments, func(i, j int) bool {
		return assignments[i].Level < assignments[j].Level
	})

	if len(assignments) > domain.MaxListEntries {
		s.log.WarnContext(ctx, "editor list truncated",
			slog.String("submission_ref", submissionRef),
			slog.Int("dropped", len(assignments)-domain.MaxListEntries),
		)
		assignments = assignments[:domain.MaxListEntries]
	}

	return assignments
}

func hasSectionEditor(assignments []domain.EditorAssignment) bool {
	for _, a := range assignments {
		if a.Level == domain.EditorLevelSection {
			return true
		}
	}
	return false
}
