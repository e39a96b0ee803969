package opportunities

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/evolnow/backend/internal/apperr"
	"github.com/evolnow/backend/internal/models"
	"github.com/evolnow/backend/internal/store"
)

// Filter is one public search criterion.
type Filter struct {
	Field    string `json:"field"`
	Value    string `json:"value"`
	Operator string `json:"operator,omitempty"`
}

var dateOperators = map[string]bool{"eq": true, "gt": true, "gte": true, "lt": true, "lte": true}

// Search runs the public opportunity search. It needs no actor.
func (s *Service) Search(ctx context.Context, filters []Filter, page, perPage int) (models.Page[models.OpportunityDetail], error) {
	var out models.Page[models.OpportunityDetail]
	q, err := normalizeFilters(filters)
	if err != nil {
		return out, err
	}
	page, perPage = models.ClampPage(page, perPage, 12, 50)
	q.Limit = perPage
	q.Offset = (page - 1) * perPage
	list, total, err := s.store.SearchOpportunities(ctx, q)
	if err != nil {
		return out, fmt.Errorf("search opportunities: %w", err)
	}
	out.Data = make([]models.OpportunityDetail, 0, len(list))
	for i := range list {
		d, err := detail(ctx, s.store, &list[i])
		if err != nil {
			return out, err
		}
		out.Data = append(out.Data, *d)
	}
	out.Meta = models.NewPageMeta(page, perPage, total)
	return out, nil
}

func normalizeFilters(filters []Filter) (store.OpportunitySearch, error) {
	var q store.OpportunitySearch
	orgs := map[string]bool{}
	tagSeen := map[string]bool{}
	for _, f := range filters {
		v := strings.TrimSpace(f.Value)
		if v == "" {
			continue
		}
		switch f.Field {
		case "name", "description":
			q.Text = append(q.Text, v)
		case "organization":
			if !orgs[v] {
				orgs[v] = true
				q.Organizations = append(q.Organizations, v)
			}
		case "tag", "tags":
			for _, t := range strings.Split(v, ",") {
				t = strings.TrimSpace(t)
				if t != "" && !tagSeen[t] {
					tagSeen[t] = true
					q.Tags = append(q.Tags, t)
				}
			}
		case "start_date":
			d, err := time.Parse(time.DateOnly, v)
			if err != nil {
				return q, apperr.Invalid("The start date filter must be a date (YYYY-MM-DD).")
			}
			op := f.Operator
			if !dateOperators[op] {
				op = "eq"
			}
			q.StartDate = &store.DateFilter{Date: d, Operator: op}
		}
	}
	return q, nil
}
