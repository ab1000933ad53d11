package segments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ontology/internal/customers"
)

type Applied struct {
	SegmentIDs map[string]uuid.UUID `json:"segment_ids"`
	// Clustered customers took their cluster's segment.
	Clustered int `json:"clustered"`
	// Matched customers were placed by segment criteria.
	Matched int `json:"matched"`
	// Cleared customers fit no segment and lost the one they held.
	Cleared int `json:"cleared"`
}

// Apply persists the definitions, deactivates segments this run did not
// produce and rewrites customer membership. Customers outside the clustering
// input take the first segment whose criteria they satisfy; the rest have
// their segment cleared. A result with no definitions leaves existing
// segments untouched.
func Apply(
	ctx context.Context,
	repo Repository,
	customerRepo customers.Repository,
	orgID uuid.UUID,
	res Result,
	now time.Time,
	batchSize int,
) (Applied, error) {
	applied := Applied{SegmentIDs: map[string]uuid.UUID{}}
	if len(res.Definitions) == 0 {
		return applied, nil
	}

	rows := make([]Segment, len(res.Definitions))
	names := make([]string, len(res.Definitions))
	for i, d := range res.Definitions {
		names[i] = d.Name
		rows[i] = Segment{
			Name:            d.Name,
			Description:     d.Description,
			CustomerCount:   d.CustomerCount,
			TotalMRR:        d.TotalMRR,
			AvgMRR:          d.AvgMRR,
			MinMRR:          d.MinMRR,
			MaxMRR:          d.MaxMRR,
			AvgTenure:       d.AvgTenure,
			RevenueShare:    d.RevenueShare,
			ChurnRate:       d.ChurnRate,
			LTV:             d.LTV,
			Criteria:        d.Criteria,
			RetentionCurve:  d.RetentionCurve,
			Centroid:        d.Centroid,
			SilhouetteScore: res.Quality.Silhouette,
		}
	}
	if err := repo.Upsert(ctx, orgID, rows, batchSize); err != nil {
		return applied, err
	}
	if err := repo.DeactivateExcept(ctx, orgID, names); err != nil {
		return applied, err
	}

	// ids are re-read because an upsert that hit a conflict keeps the stored id
	stored, err := repo.List(ctx, orgID, true)
	if err != nil {
		return applied, err
	}
	for _, s := range stored {
		applied.SegmentIDs[s.Name] = s.ID
	}

	assignments := make(map[uuid.UUID]uuid.UUID)
	for _, d := range res.Definitions {
		id, ok := applied.SegmentIDs[d.Name]
		if !ok {
			return applied, fmt.Errorf("segment %q missing after upsert", d.Name)
		}
		for _, member := range d.Members {
			assignments[member] = id
		}
	}
	applied.Clustered = len(assignments)
	if err := customerRepo.AssignSegments(ctx, orgID, assignments, batchSize); err != nil {
		return applied, err
	}

	everyone, err := customerRepo.ListCustomers(ctx, orgID, customers.CustomerFilter{})
	if err != nil {
		return applied, err
	}
	rfmSegments := res.RFMByCustomer()
	matched := make(map[uuid.UUID]uuid.UUID)
	var unplaced []uuid.UUID
	for _, c := range everyone {
		if _, ok := assignments[c.ID]; ok {
			continue
		}
		subject := Subject{
			MRR:          c.MRR,
			TenureMonths: c.TenureMonths(now),
			CompanySize:  c.CompanySize,
			RFMSegment:   rfmSegments[c.ID],
		}
		if subject.CompanySize == "" {
			subject.CompanySize = customers.CompanySizeStartup
		}
		for _, d := range res.Definitions {
			if d.Criteria.Matches(subject) {
				matched[c.ID] = applied.SegmentIDs[d.Name]
				break
			}
		}
		if _, ok := matched[c.ID]; !ok && c.SegmentID != nil {
			unplaced = append(unplaced, c.ID)
		}
	}
	applied.Matched = len(matched)
	if err := customerRepo.AssignSegments(ctx, orgID, matched, batchSize); err != nil {
		return applied, err
	}
	applied.Cleared = len(unplaced)
	if err := customerRepo.ClearSegments(ctx, orgID, unplaced, batchSize); err != nil {
		return applied, err
	}
	return applied, nil
}
