package core

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
)

// ListIntegrations returns the sync state of every source system.
func (s *Service) ListIntegrations(ctx context.Context) ([]Integration, error) {
	return s.store.ListIntegrations(ctx)
}

// ListQualityIssues returns one page of data quality issues.
func (s *Service) ListQualityIssues(ctx context.Context, filter QualityIssueFilter, page int) (*QualityIssuePage, error) {
	filter.Limit, filter.Offset, page = paginate(page, filter.Limit)

	issues, total, err := s.store.ListQualityIssues(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &QualityIssuePage{
		Issues:     issues,
		Total:      total,
		Page:       page,
		Limit:      filter.Limit,
		TotalPages: pageCount(total, filter.Limit),
	}, nil
}

// ResolveQualityIssue marks an issue resolved by userID.
func (s *Service) ResolveQualityIssue(ctx context.Context, id uuid.UUID, userID string) (*QualityIssue, error) {
	issue, err := s.store.ResolveQualityIssue(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, AuditEvent{
		UserID:       userID,
		Action:       ActionResolve,
		ResourceType: ResourceQualityIssue,
		ResourceID:   id.String(),
		NewValues:    issue,
	})
	return issue, nil
}

// ============================================================================
// Dashboard
// ============================================================================

// TrendMonths is how far back co-infection trends reach.
const TrendMonths = 12

// DashboardMetrics computes the headline dashboard numbers.
func (s *Service) DashboardMetrics(ctx context.Context) (*DashboardMetrics, error) {
	total, err := s.store.CountPatients(ctx, PatientFilter{})
	if err != nil {
		return nil, err
	}
	coInfections, err := s.store.CountCoInfections(ctx)
	if err != nil {
		return nil, err
	}
	activeTreatments, err := s.store.CountActiveTreatments(ctx)
	if err != nil {
		return nil, err
	}
	issues, err := s.store.CountQualityIssues(ctx)
	if err != nil {
		return nil, err
	}

	return &DashboardMetrics{
		TotalPatients:    total,
		CoInfections:     coInfections,
		ActiveTreatments: activeTreatments,
		DataQualityScore: qualityScore(issues),
	}, nil
}

// qualityScore is the percentage of issues resolved, 100 when there are none.
func qualityScore(c IssueCounts) int {
	if c.Total == 0 {
		return 100
	}
	return int(math.Round(float64(c.Resolved) / float64(c.Total) * 100))
}

// CoInfectionTrends returns monthly co-infected registrations for the last
// TrendMonths months.
func (s *Service) CoInfectionTrends(ctx context.Context) ([]TrendPoint, error) {
	now := s.now().UTC()
	since := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(TrendMonths - 1), 0)
	return s.store.CoInfectionTrends(ctx, since)
}

// ProvincialDistribution returns case counts per province.
func (s *Service) ProvincialDistribution(ctx context.Context) ([]ProvinceCount, error) {
	return s.store.ProvincialDistribution(ctx)
}
