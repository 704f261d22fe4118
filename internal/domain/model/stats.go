package model

// Grades counted as excellent and as failing in user statistics.
var (
	ExcellentGrades = []string{"A+", "A"}
	FailGrade       = "F"
)

// UserAggregate holds running totals over a user's sessions and their
// evaluations. Score extremes are meaningful only when Evaluations > 0.
type UserAggregate struct {
	Sessions         int
	Completed        int
	Aborted          int
	TotalTimeSeconds int64
	TotalDistanceKm  float64

	Evaluations  int
	ScoreSum     int
	MinScore     int
	MaxScore     int
	OverspeedSum int
	CollisionSum int
	Excellent    int
	Failed       int

	ByEnvironment map[Environment]int
}

// Merge folds o into a.
func (a *UserAggregate) Merge(o UserAggregate) {
	if o.Evaluations > 0 {
		if a.Evaluations == 0 || o.MinScore < a.MinScore {
			a.MinScore = o.MinScore
		}
		if a.Evaluations == 0 || o.MaxScore > a.MaxScore {
			a.MaxScore = o.MaxScore
		}
	}
	a.Sessions += o.Sessions
	a.Completed += o.Completed
	a.Aborted += o.Aborted
	a.TotalTimeSeconds += o.TotalTimeSeconds
	a.TotalDistanceKm += o.TotalDistanceKm
	a.Evaluations += o.Evaluations
	a.ScoreSum += o.ScoreSum
	a.OverspeedSum += o.OverspeedSum
	a.CollisionSum += o.CollisionSum
	a.Excellent += o.Excellent
	a.Failed += o.Failed
	if len(o.ByEnvironment) > 0 && a.ByEnvironment == nil {
		a.ByEnvironment = make(map[Environment]int, len(o.ByEnvironment))
	}
	for env, n := range o.ByEnvironment {
		a.ByEnvironment[env] += n
	}
}

// SessionAggregate is the contribution of one session and its evaluation,
// which may be nil.
func SessionAggregate(s Session, e *Evaluation) UserAggregate {
	agg := UserAggregate{
		Sessions:         1,
		TotalTimeSeconds: s.TotalTime,
		TotalDistanceKm:  s.TotalDistance,
		ByEnvironment:    map[Environment]int{s.Environment: 1},
	}
	switch s.Status {
	case StatusCompleted:
		agg.Completed = 1
	case StatusAborted:
		agg.Aborted = 1
	}
	if e == nil {
		return agg
	}
	agg.Evaluations = 1
	agg.ScoreSum = e.Score
	agg.MinScore = e.Score
	agg.MaxScore = e.Score
	agg.OverspeedSum = e.OverspeedCount
	agg.CollisionSum = e.CollisionCount
	for _, g := range ExcellentGrades {
		if e.Grade == g {
			agg.Excellent = 1
		}
	}
	if e.Grade == FailGrade {
		agg.Failed = 1
	}
	return agg
}
