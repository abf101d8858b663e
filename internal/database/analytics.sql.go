package database

import (
	"context"
	"time"
)

const countCoInfections = `SELECT COUNT(*) FROM patients
WHERE is_active AND tb_status = 'confirmed' AND hiv_status = 'positive'`

func (q *Queries) CountCoInfections(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countCoInfections).Scan(&n)
	return n, err
}

const countActiveTreatments = `SELECT COUNT(*) FROM treatments WHERE status = 'active'`

func (q *Queries) CountActiveTreatments(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countActiveTreatments).Scan(&n)
	return n, err
}

const coInfectionTrends = `SELECT to_char(date_trunc('month', registration_date), 'YYYY-MM') AS month, COUNT(*)
FROM patients
WHERE is_active AND tb_status = 'confirmed' AND hiv_status = 'positive' AND registration_date >= $1
GROUP BY 1
ORDER BY 1`

type CoInfectionTrendRow struct {
	Month string
	Count int64
}

func (q *Queries) CoInfectionTrends(ctx context.Context, since time.Time) ([]CoInfectionTrendRow, error) {
	rows, err := q.db.Query(ctx, coInfectionTrends, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []CoInfectionTrendRow{}
	for rows.Next() {
		var r CoInfectionTrendRow
		if err := rows.Scan(&r.Month, &r.Count); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

const provincialDistribution = `SELECT province,
	COUNT(*) FILTER (WHERE tb_status = 'confirmed'),
	COUNT(*) FILTER (WHERE hiv_status = 'positive'),
	COUNT(*) FILTER (WHERE tb_status = 'confirmed' AND hiv_status = 'positive')
FROM patients
WHERE is_active AND province IS NOT NULL AND province <> ''
GROUP BY province
ORDER BY province`

type ProvincialDistributionRow struct {
	Province     string
	TbCases      int64
	HivCases     int64
	CoInfections int64
}

func (q *Queries) ProvincialDistribution(ctx context.Context) ([]ProvincialDistributionRow, error) {
	rows, err := q.db.Query(ctx, provincialDistribution)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []ProvincialDistributionRow{}
	for rows.Next() {
		var r ProvincialDistributionRow
		if err := rows.Scan(&r.Province, &r.TbCases, &r.HivCases, &r.CoInfections); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}
