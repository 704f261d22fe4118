package drivesim

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"

	"github.com/okian/drivescore/internal/domain/scoring"
	"github.com/okian/drivescore/pkg/logger"
)

const maxScore = 100

// verifyEvaluation checks the evaluation returned by end against the stored
// one and the grade scale.
func verifyEvaluation(grades scoring.GradeScale, fromEnd *Evaluation, stored Evaluation) error {
	if fromEnd == nil {
		return errors.New("session ended without an evaluation")
	}
	if fromEnd.Score != stored.Score || fromEnd.Grade != stored.Grade {
		return fmt.Errorf("end returned %d/%s but stored is %d/%s",
			fromEnd.Score, fromEnd.Grade, stored.Score, stored.Grade)
	}
	if stored.Score < 0 || stored.Score > maxScore {
		return fmt.Errorf("score %d out of range", stored.Score)
	}
	if want := grades.Grade(stored.Score); want != stored.Grade {
		return fmt.Errorf("score %d should grade %s, got %s", stored.Score, want, stored.Grade)
	}
	return nil
}

// averageByProfile returns the mean score per profile.
func averageByProfile(results []DriveResult) map[Profile]float64 {
	groups := lo.GroupBy(results, func(r DriveResult) Profile { return r.Profile })
	return lo.MapValues(groups, func(rs []DriveResult, _ Profile) float64 {
		return lo.MeanBy(rs, func(r DriveResult) float64 { return float64(r.Score) })
	})
}

// verifyProfiles warns when riskier profiles outscore safer ones.
func verifyProfiles(ctx context.Context, log logger.Logger, results []DriveResult) {
	avg := averageByProfile(results)
	for i := 1; i < len(Profiles); i++ {
		safer, riskier := Profiles[i-1], Profiles[i]
		a, okA := avg[safer]
		b, okB := avg[riskier]
		if okA && okB && b > a {
			log.Warn(ctx, "profile ordering inverted",
				logger.String("safer", string(safer)), logger.Float64("saferAvg", a),
				logger.String("riskier", string(riskier)), logger.Float64("riskierAvg", b))
		}
	}
	for _, p := range Profiles {
		if v, ok := avg[p]; ok {
			log.Info(ctx, "profile average", logger.String("profile", string(p)), logger.Float64("score", v))
		}
	}
}
