package sim

import (
	"context"
	"fmt"
	"strconv"

	"tycoon/internal/game"
)

// StartResearch pays for a technology at most one level above the company's
// current research level.
func (e *Engine) StartResearch(ctx context.Context, companyID, technologyID int64) (game.CompanyTechnology, error) {
	var out game.CompanyTechnology
	err := e.withCompany(ctx, companyID, func(t *tx, c game.Company) error {
		tech, ok := t.st.Technologies[technologyID]
		if !ok {
			return game.NotFound("technology", technologyID)
		}
		if tech.Level > c.ResearchLevel+1 {
			return game.Invalid("technology", "%s requires research level %d", tech.Name, tech.Level-1)
		}
		for _, ct := range t.st.TechnologiesOf(c.ID) {
			if ct.TechnologyID == tech.ID {
				return game.Invalid("technology", "%s is already %s", tech.Name, ct.Status)
			}
		}
		span, err := game.DaysWithin("technology", tech.ResearchDays)
		if err != nil {
			return err
		}
		if err := t.requireFunds(c, tech.Cost); err != nil {
			return err
		}
		out = game.CompanyTechnology{
			ID:           t.st.NextID(),
			CompanyID:    c.ID,
			TechnologyID: tech.ID,
			StartedAt:    t.now,
			CompletesAt:  t.now.Add(span),
			Status:       game.ResearchInProgress,
		}
		t.st.CompanyTechnologies[out.ID] = out
		t.debit(c.ID, tech.Cost, TxnResearch, "technology:"+strconv.FormatInt(tech.ID, 10))
		return nil
	})
	return out, err
}

// ProcessCompletedResearch marks finished research and raises the research
// level when the next tier is unlocked.
func (e *Engine) ProcessCompletedResearch(ctx context.Context, companyID int64) error {
	return e.withCompany(ctx, companyID, func(t *tx, c game.Company) error {
		for _, ct := range t.st.TechnologiesOf(c.ID) {
			if ct.Status != game.ResearchInProgress || ct.CompletesAt.After(t.now) {
				continue
			}
			ct.Status = game.ResearchDone
			t.st.CompanyTechnologies[ct.ID] = ct
			tech := t.st.Technologies[ct.TechnologyID]
			co := t.company(c.ID)
			if tech.Level == co.ResearchLevel+1 {
				co.ResearchLevel++
				t.putCompany(co)
			}
			t.notifyCompany(c, "research.completed", fmt.Sprintf("research.completed:%d", ct.ID), map[string]string{
				"technology": tech.Name,
			})
		}
		return nil
	})
}
