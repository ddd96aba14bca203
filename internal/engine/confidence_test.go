package engine

import (
	"math"
	"testing"
	"time"

	"github.com/scrypster/bri/pkg/types"
)

func testRecord(memType types.MemoryType, confidence float64, age time.Duration) *types.MemoryRecord {
	now := time.Now()
	return &types.MemoryRecord{
		ID:         "mem-1",
		UserID:     "user-1",
		GuildID:    "guild-1",
		Text:       "User likes hiking",
		Type:       memType,
		Category:   types.CategoryHobbies,
		Confidence: confidence,
		CreatedAt:  now.Add(-age),
		UpdatedAt:  now.Add(-age),
		Active:     true,
	}
}

func TestInitialConfidenceBases(t *testing.T) {
	model := NewConfidenceModel()

	explicit := model.InitialConfidence(types.MemoryTypeExplicit, "", types.CategoryOther, "User works remotely")
	if math.Abs(explicit-0.95) > 0.001 {
		t.Errorf("explicit base: expected 0.95, got %f", explicit)
	}

	intuited := model.InitialConfidence(types.MemoryTypeIntuited, "", types.CategoryOther, "User works remotely")
	if math.Abs(intuited-0.75) > 0.001 {
		t.Errorf("intuited base: expected 0.75, got %f", intuited)
	}
}

func TestInitialConfidenceMemoryCommand(t *testing.T) {
	model := NewConfidenceModel()

	// The hard-set overrides the base; category adjustments still apply
	// afterwards but the preferences penalty cannot push it below the clamp.
	got := model.InitialConfidence(types.MemoryTypeExplicit, "memory_command", types.CategoryOther, "User has a dog named Max")
	if got != 1.0 {
		t.Errorf("memory_command: expected 1.0, got %f", got)
	}
}

func TestInitialConfidenceAdjustments(t *testing.T) {
	model := NewConfidenceModel()

	personal := model.InitialConfidence(types.MemoryTypeIntuited, "", types.CategoryPersonal, "User has a sister")
	if math.Abs(personal-0.80) > 0.001 {
		t.Errorf("personal: expected 0.80, got %f", personal)
	}

	prefs := model.InitialConfidence(types.MemoryTypeIntuited, "", types.CategoryPreferences, "User enjoys sushi")
	if math.Abs(prefs-0.70) > 0.001 {
		t.Errorf("preferences: expected 0.70, got %f", prefs)
	}

	merged := model.InitialConfidence(types.MemoryTypeIntuited, "merged", types.CategoryOther, "User works remotely")
	if math.Abs(merged-0.80) > 0.001 {
		t.Errorf("merged source: expected 0.80, got %f", merged)
	}

	hedged := model.InitialConfidence(types.MemoryTypeIntuited, "", types.CategoryOther, "User might be moving to Berlin")
	if math.Abs(hedged-0.65) > 0.001 {
		t.Errorf("hedged: expected 0.65, got %f", hedged)
	}
}

func TestInitialConfidenceAlwaysInRange(t *testing.T) {
	model := NewConfidenceModel()
	sources := []string{"", "memory_command", "merged", "ai_curation", "legacy_intuited_field"}
	categories := []types.Category{types.CategoryPersonal, types.CategoryProfessional, types.CategoryPreferences, types.CategoryHobbies, types.CategoryContact, types.CategoryOther}
	texts := []string{"User likes pizza", "User might maybe possibly sometimes do things", ""}

	for _, memType := range []types.MemoryType{types.MemoryTypeExplicit, types.MemoryTypeIntuited, "unknown"} {
		for _, source := range sources {
			for _, category := range categories {
				for _, text := range texts {
					got := model.InitialConfidence(memType, source, category, text)
					if got < types.MinConfidence || got > types.MaxConfidence {
						t.Fatalf("confidence %f out of range for (%s, %s, %s, %q)", got, memType, source, category, text)
					}
				}
			}
		}
	}
}

func TestTrackAccessBoost(t *testing.T) {
	model := NewConfidenceModel()
	now := time.Now()
	record := testRecord(types.MemoryTypeIntuited, 0.5, time.Hour)

	model.TrackAccess(record, now)
	if record.AccessCount != 1 {
		t.Fatalf("expected access count 1, got %d", record.AccessCount)
	}
	want := 0.5 + 0.01*math.Log(2)
	if math.Abs(record.Confidence-want) > 0.001 {
		t.Errorf("expected confidence %f, got %f", want, record.Confidence)
	}
	if record.LastAccessedAt == nil || !record.LastAccessedAt.Equal(now) {
		t.Error("expected last accessed timestamp to be set")
	}
}

func TestTrackAccessBoostCapped(t *testing.T) {
	model := NewConfidenceModel()
	now := time.Now()
	record := testRecord(types.MemoryTypeIntuited, 0.5, time.Hour)
	record.AccessCount = 1000

	model.TrackAccess(record, now)
	if math.Abs(record.Confidence-0.55) > 0.001 {
		t.Errorf("expected capped boost to 0.55, got %f", record.Confidence)
	}
}

func TestTrackAccessNeverExceedsMax(t *testing.T) {
	model := NewConfidenceModel()
	record := testRecord(types.MemoryTypeIntuited, 0.99, time.Hour)
	for i := 0; i < 50; i++ {
		model.TrackAccess(record, time.Now())
	}
	if record.Confidence > types.MaxConfidence {
		t.Errorf("confidence exceeded max: %f", record.Confidence)
	}
}

func TestDecayVerifiedImmunity(t *testing.T) {
	model := NewConfidenceModel()
	record := testRecord(types.MemoryTypeIntuited, 1.0, 400*24*time.Hour)
	record.Verified = true

	if model.Decay(record, time.Now()) {
		t.Error("verified record must not decay")
	}
	if record.Confidence != 1.0 {
		t.Errorf("verified confidence changed to %f", record.Confidence)
	}
}

func TestDecayGracePeriod(t *testing.T) {
	model := NewConfidenceModel()
	record := testRecord(types.MemoryTypeIntuited, 0.75, 3*24*time.Hour)

	if model.Decay(record, time.Now()) {
		t.Error("record inside the grace period must not decay")
	}
}

func TestDecayIntuitedFasterThanExplicit(t *testing.T) {
	model := NewConfidenceModel()
	now := time.Now()
	age := 100 * 24 * time.Hour

	intuited := testRecord(types.MemoryTypeIntuited, 0.75, age)
	explicit := testRecord(types.MemoryTypeExplicit, 0.75, age)

	if !model.Decay(intuited, now) {
		t.Fatal("expected intuited record to decay at 100 days")
	}
	intuitedLoss := 0.75 - intuited.Confidence

	// Explicit decay at the same age is below the persistence epsilon.
	if model.Decay(explicit, now) {
		t.Fatal("explicit decay at 100 days should be below the epsilon")
	}
	explicitLoss := 0.75 - explicit.Confidence

	if intuitedLoss <= explicitLoss {
		t.Errorf("intuited loss %f should exceed explicit loss %f", intuitedLoss, explicitLoss)
	}

	want := 0.75 - math.Log10(100-6)*0.01
	if math.Abs(intuited.Confidence-want) > 0.01 {
		t.Errorf("expected intuited confidence near %f, got %f", want, intuited.Confidence)
	}
}

func TestDecayAccessBonus(t *testing.T) {
	model := NewConfidenceModel()
	now := time.Now()
	age := 100 * 24 * time.Hour

	untouched := testRecord(types.MemoryTypeIntuited, 0.75, age)
	recalled := testRecord(types.MemoryTypeIntuited, 0.75, age)
	recalled.AccessCount = 20

	model.Decay(untouched, now)
	model.Decay(recalled, now)

	if recalled.Confidence <= untouched.Confidence {
		t.Errorf("frequently accessed record should decay less: %f vs %f", recalled.Confidence, untouched.Confidence)
	}
}

func TestDecayFloor(t *testing.T) {
	model := NewConfidenceModel()
	record := testRecord(types.MemoryTypeIntuited, 0.11, 3650*24*time.Hour)

	model.Decay(record, time.Now())
	if record.Confidence < types.MinConfidence {
		t.Errorf("confidence dropped below floor: %f", record.Confidence)
	}
}

func TestMarkContradictedSequence(t *testing.T) {
	model := NewConfidenceModel()
	now := time.Now()
	record := testRecord(types.MemoryTypeIntuited, 0.8, time.Hour)
	record.Verified = true

	model.MarkContradicted(record, now)
	if math.Abs(record.Confidence-0.56) > 0.001 {
		t.Errorf("first contradiction: expected 0.56, got %f", record.Confidence)
	}
	if record.Verified {
		t.Error("contradiction must unset verified")
	}
	if record.ContradictionCount != 1 {
		t.Errorf("expected contradiction count 1, got %d", record.ContradictionCount)
	}

	model.MarkContradicted(record, now)
	if math.Abs(record.Confidence-0.28) > 0.001 {
		t.Errorf("second contradiction: expected 0.28, got %f", record.Confidence)
	}
}

func TestMarkContradictedFloored(t *testing.T) {
	model := NewConfidenceModel()
	record := testRecord(types.MemoryTypeIntuited, 0.12, time.Hour)
	model.MarkContradicted(record, time.Now())
	if record.Confidence < types.MinConfidence {
		t.Errorf("contradiction pushed confidence below floor: %f", record.Confidence)
	}
}

func TestCorroborateBoosts(t *testing.T) {
	model := NewConfidenceModel()
	now := time.Now()

	byExplicit := testRecord(types.MemoryTypeIntuited, 0.7, time.Hour)
	model.Corroborate(byExplicit, types.MemoryTypeExplicit, now)
	if math.Abs(byExplicit.Confidence-0.75) > 0.001 {
		t.Errorf("explicit corroboration: expected 0.75, got %f", byExplicit.Confidence)
	}

	byIntuited := testRecord(types.MemoryTypeIntuited, 0.7, time.Hour)
	model.Corroborate(byIntuited, types.MemoryTypeIntuited, now)
	if math.Abs(byIntuited.Confidence-0.8) > 0.001 {
		t.Errorf("intuited corroboration: expected 0.8, got %f", byIntuited.Confidence)
	}
}

// Repeated explicit submissions of the same fact must never push any record
// past full confidence.
func TestCorroborateCapped(t *testing.T) {
	model := NewConfidenceModel()
	record := testRecord(types.MemoryTypeExplicit, 0.98, time.Hour)
	for i := 0; i < 10; i++ {
		model.Corroborate(record, types.MemoryTypeExplicit, time.Now())
	}
	if record.Confidence > types.MaxConfidence {
		t.Errorf("corroboration exceeded max: %f", record.Confidence)
	}
}

func TestVerifyPinsConfidence(t *testing.T) {
	model := NewConfidenceModel()
	now := time.Now()
	record := testRecord(types.MemoryTypeExplicit, 0.6, time.Hour)

	model.Verify(record, "user_confirmation", now)
	if !record.Verified || record.Confidence != 1.0 {
		t.Errorf("expected verified at 1.0, got verified=%v confidence=%f", record.Verified, record.Confidence)
	}
	if record.VerificationDate == nil || record.VerificationSource != "user_confirmation" {
		t.Error("expected verification metadata to be recorded")
	}
}
