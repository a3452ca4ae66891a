// Package scoring turns answer correctness and response latency into points.
package scoring

// Speed ratings, by elapsed share of the question time limit.
const (
	RatingLightning = "lightning"
	RatingFast      = "fast"
	RatingNormal    = "normal"
	RatingSlow      = "slow"
	RatingUnknown   = "unknown"
)

// Rules holds the point values awarded per answer.
type Rules struct {
	CorrectPoints  int
	LightningBonus int
	FastBonus      int
	NormalBonus    int
}

// DefaultRules awards 100 points per correct answer and a 20/10/5 speed bonus.
func DefaultRules() Rules {
	return Rules{
		CorrectPoints:  100,
		LightningBonus: 20,
		FastBonus:      10,
		NormalBonus:    5,
	}
}

// Engine applies Rules to individual answers.
type Engine struct {
	rules Rules
}

func NewEngine(rules Rules) *Engine {
	return &Engine{rules: rules}
}

// Outcome is the scored result of one answer.
type Outcome struct {
	Points     int
	SpeedBonus int
	Rating     string
}

// Total is the amount added to the participant's score.
func (o Outcome) Total() int {
	return o.Points + o.SpeedBonus
}

// BasePoints returns the points for correctness alone.
func (e *Engine) BasePoints(correct bool) int {
	if correct {
		return e.rules.CorrectPoints
	}
	return 0
}

// SpeedBonus derives the bonus for an answer. Only correct answers earn one.
func (e *Engine) SpeedBonus(correct bool, responseTime *float64, timeLimit int) int {
	if !correct {
		return 0
	}
	switch SpeedRating(responseTime, timeLimit) {
	case RatingLightning:
		return e.rules.LightningBonus
	case RatingFast:
		return e.rules.FastBonus
	case RatingNormal:
		return e.rules.NormalBonus
	default:
		return 0
	}
}

// Score computes the outcome of an answer. For a correct answer a non-nil
// supplied bonus replaces the derived one, capped at MaxBonus. Wrong answers
// never earn a bonus.
func (e *Engine) Score(correct bool, responseTime *float64, timeLimit int, supplied *int) Outcome {
	bonus := e.SpeedBonus(correct, responseTime, timeLimit)
	if supplied != nil && correct {
		bonus = min(*supplied, e.MaxBonus())
	}
	return Outcome{
		Points:     e.BasePoints(correct),
		SpeedBonus: bonus,
		Rating:     SpeedRating(responseTime, timeLimit),
	}
}

// MaxBonus is the largest bonus any single answer can earn.
func (e *Engine) MaxBonus() int {
	return max(e.rules.LightningBonus, e.rules.FastBonus, e.rules.NormalBonus, 0)
}

// SpeedRating buckets the response time by the fraction of the time limit used.
func SpeedRating(responseTime *float64, timeLimit int) string {
	if responseTime == nil || timeLimit <= 0 {
		return RatingUnknown
	}
	pct := *responseTime / float64(timeLimit) * 100
	switch {
	case pct <= 25:
		return RatingLightning
	case pct <= 50:
		return RatingFast
	case pct <= 75:
		return RatingNormal
	default:
		return RatingSlow
	}
}

// IsQuickAnswer reports whether the answer came within half the time limit.
func IsQuickAnswer(responseTime *float64, timeLimit int) bool {
	if responseTime == nil {
		return false
	}
	return *responseTime <= float64(timeLimit)*0.5
}
