package reputation

// Score weights. The ratio term dominates; every other term only grows while
// a retailer keeps succeeding, so a success streak never lowers the score.
const (
	scoreBase          = 200
	ratioWeight        = 500
	streakStep         = 10
	streakCap          = 150
	volumeBonus        = 100
	halfVolumeBonus    = 50
	tenureStep         = 10
	tenurePeriod       = 30 * 24 * 60 * 60
	tenureCap          = 50
	failurePenaltyStep = 5
	failurePenaltyCap  = scoreBase
)

// Score is a pure function of the stored counters and elapsed time.
func Score(r *Retailer, p Params, now int64) uint64 {
	if r.TotalVerifications == 0 {
		return InitialScore
	}
	failed := r.FailedVerifications
	if failed > r.TotalVerifications {
		failed = r.TotalVerifications
	}
	penalty := failed * failurePenaltyStep
	if failed > failurePenaltyCap || penalty > failurePenaltyCap {
		penalty = failurePenaltyCap
	}
	score := uint64(scoreBase) - penalty

	score += ratioWeight * (r.TotalVerifications - failed) / r.TotalVerifications

	streak := uint64(streakCap)
	if r.ConsecutiveSuccesses < streakCap/streakStep {
		streak = r.ConsecutiveSuccesses * streakStep
	}
	score += streak

	switch {
	case r.TotalVerifications >= p.VolumeTierThreshold:
		score += volumeBonus
	case p.VolumeTierThreshold > 1 && r.TotalVerifications >= p.VolumeTierThreshold/2:
		score += halfVolumeBonus
	}

	if now > r.RegisteredAt {
		periods := uint64(now-r.RegisteredAt) / tenurePeriod
		tenure := uint64(tenureCap)
		if periods < tenureCap/tenureStep {
			tenure = periods * tenureStep
		}
		score += tenure
	}

	if score > MaxScore {
		score = MaxScore
	}
	return score
}
