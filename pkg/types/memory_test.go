package types

import (
	"testing"
	"time"
)

func validRecord() *MemoryRecord {
	now := time.Now()
	return &MemoryRecord{
		ID:         "mem-1",
		UserID:     "user-1",
		GuildID:    "guild-1",
		Text:       "User likes hiking",
		Type:       MemoryTypeIntuited,
		Category:   CategoryHobbies,
		Confidence: 0.75,
		CreatedAt:  now,
		UpdatedAt:  now,
		Active:     true,
	}
}

func TestClampConfidence(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{-1, MinConfidence},
		{0, MinConfidence},
		{0.1, 0.1},
		{0.5, 0.5},
		{1.0, 1.0},
		{1.5, MaxConfidence},
	}
	for _, tc := range cases {
		if got := ClampConfidence(tc.in); got != tc.want {
			t.Errorf("ClampConfidence(%f) = %f, want %f", tc.in, got, tc.want)
		}
	}
}

func TestRecordClampConfidence(t *testing.T) {
	record := validRecord()
	record.Confidence = 2.0
	record.ClampConfidence()
	if record.Confidence != MaxConfidence {
		t.Errorf("expected confidence clamped to %f, got %f", MaxConfidence, record.Confidence)
	}
}

func TestAgeDays(t *testing.T) {
	now := time.Now()
	record := validRecord()
	record.CreatedAt = now.Add(-48 * time.Hour)

	age := record.AgeDays(now)
	if age < 1.99 || age > 2.01 {
		t.Errorf("expected age around 2 days, got %f", age)
	}
}

// A future created_at from clock skew must not produce a negative age.
func TestAgeDaysNeverNegative(t *testing.T) {
	now := time.Now()
	record := validRecord()
	record.CreatedAt = now.Add(time.Hour)

	if age := record.AgeDays(now); age != 0 {
		t.Errorf("expected zero age for future created_at, got %f", age)
	}
}

func TestRecordValidate(t *testing.T) {
	if err := validRecord().Validate(); err != nil {
		t.Fatalf("valid record rejected: %v", err)
	}

	missingID := validRecord()
	missingID.ID = ""
	if err := missingID.Validate(); err == nil {
		t.Error("expected error for missing id")
	}

	missingUser := validRecord()
	missingUser.UserID = ""
	if err := missingUser.Validate(); err == nil {
		t.Error("expected error for missing user id")
	}

	badConfidence := validRecord()
	badConfidence.Confidence = 1.2
	if err := badConfidence.Validate(); err == nil {
		t.Error("expected error for out-of-range confidence")
	}
}

func TestScopeValidateAndKey(t *testing.T) {
	scope := Scope{UserID: "u1", GuildID: "g1"}
	if err := scope.Validate(); err != nil {
		t.Fatalf("valid scope rejected: %v", err)
	}

	empty := Scope{}
	if err := empty.Validate(); err == nil {
		t.Error("expected error for scope without user id")
	}

	a := Scope{UserID: "u1", GuildID: "g1"}
	b := Scope{UserID: "u1", GuildID: "g2"}
	if a.Key() == b.Key() {
		t.Errorf("different scopes must have different keys: %q", a.Key())
	}
}

func TestValidCategory(t *testing.T) {
	for _, c := range []Category{CategoryPersonal, CategoryProfessional, CategoryPreferences, CategoryHobbies, CategoryContact, CategoryOther} {
		if !ValidCategory(c) {
			t.Errorf("expected %q to be valid", c)
		}
	}
	if ValidCategory("finance") {
		t.Error("expected unknown category to be invalid")
	}
}
