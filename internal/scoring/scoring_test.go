package scoring

import "testing"

func seconds(v float64) *float64 { return &v }

func TestSpeedRating(t *testing.T) {
	tests := []struct {
		name string
		rt   *float64
		want string
	}{
		{"quarter", seconds(7.5), RatingLightning},
		{"half", seconds(15), RatingFast},
		{"two thirds", seconds(20), RatingNormal},
		{"late", seconds(29), RatingSlow},
		{"missing", nil, RatingUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SpeedRating(tt.rt, 30); got != tt.want {
				t.Fatalf("SpeedRating = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsQuickAnswer(t *testing.T) {
	if !IsQuickAnswer(seconds(15), 30) {
		t.Fatalf("15s of 30s should be quick")
	}
	if IsQuickAnswer(seconds(15.01), 30) {
		t.Fatalf("15.01s of 30s should not be quick")
	}
	if IsQuickAnswer(nil, 30) {
		t.Fatalf("missing response time is never quick")
	}
}

func TestScore(t *testing.T) {
	engine := NewEngine(DefaultRules())

	out := engine.Score(true, seconds(5), 30, nil)
	if out.Points != 100 || out.SpeedBonus != 20 || out.Total() != 120 {
		t.Fatalf("fast correct answer: got %+v", out)
	}

	out = engine.Score(false, seconds(25), 30, nil)
	if out.Total() != 0 || out.Rating != RatingSlow {
		t.Fatalf("slow wrong answer: got %+v", out)
	}

	bonus := 7
	out = engine.Score(true, seconds(29), 30, &bonus)
	if out.Total() != 107 {
		t.Fatalf("supplied bonus should replace derived one, got %+v", out)
	}

	out = engine.Score(false, seconds(1), 30, nil)
	if out.SpeedBonus != 0 {
		t.Fatalf("wrong answers earn no derived bonus, got %d", out.SpeedBonus)
	}
}

func TestSuppliedBonusIsBounded(t *testing.T) {
	engine := NewEngine(DefaultRules())
	huge := 1000000

	out := engine.Score(false, seconds(1), 30, &huge)
	if out.SpeedBonus != 0 || out.Total() != 0 {
		t.Fatalf("wrong answer must not earn a supplied bonus, got %+v", out)
	}

	out = engine.Score(true, seconds(1), 30, &huge)
	if out.SpeedBonus != 20 || out.Total() != 120 {
		t.Fatalf("supplied bonus should be capped at 20, got %+v", out)
	}

	if got := NewEngine(Rules{CorrectPoints: 100, LightningBonus: 5, FastBonus: 30, NormalBonus: 1}).MaxBonus(); got != 30 {
		t.Fatalf("expected max bonus 30, got %d", got)
	}
}
