package engine

import "github.com/scrypster/bri/pkg/types"

// Categorizer classifies memory text into the fixed category taxonomy using
// an ordered rule table. Rules are evaluated top to bottom and the first
// match wins, so exact keyword rules take precedence over the approximate
// overlap scoring at the bottom of the table.
type Categorizer struct {
	rules []categoryRule
}

// categoryRule is one entry in the precedence chain: a named predicate that
// either claims the text for a category or passes.
type categoryRule struct {
	name  string
	apply func(normalized string) (types.Category, bool)
}

// Category keyword lists, scanned in priority order. Matching is
// substring-based so "cook" also matches "cooking".
var (
	foodKeywords = []string{
		"pizza", "burger", "pasta", "sushi", "taco", "sandwich", "salad",
		"steak", "chicken", "chocolate", "coffee", "tea", "beer", "wine",
		"food", "meal", "dish", "snack", "dessert", "restaurant", "cuisine",
		"breakfast", "lunch", "dinner", "eat", "drink",
	}

	preferenceVerbs = []string{
		"like", "love", "enjoy", "prefer", "favorite", "favourite", "hate",
		"dislike", "can't stand", "fond of", "into",
	}

	personalKeywords = []string{
		"family", "wife", "husband", "partner", "girlfriend", "boyfriend",
		"married", "single", "child", "kid", "son", "daughter", "parent",
		"mother", "father", "mom", "dad", "brother", "sister", "sibling",
		"pet", "dog", "cat", "birthday", "born", "years old",
		"lives in", "live in", "living in", "grew up", "hometown",
		"name is", "named", "health", "allerg",
	}

	professionalKeywords = []string{
		"work", "job", "career", "company", "employer", "office", "boss",
		"colleague", "coworker", "profession", "engineer", "developer",
		"designer", "manager", "teacher", "doctor", "nurse", "lawyer",
		"student", "studying", "studies", "university", "college", "degree",
		"school", "salary", "promotion", "business", "startup", "freelance",
	}

	preferencesKeywords = []string{
		"like", "love", "enjoy", "prefer", "favorite", "favourite", "hate",
		"dislike", "can't stand", "obsessed with", "fan of", "into",
	}

	hobbiesKeywords = []string{
		"hobby", "hobbies", "play", "playing", "game", "gaming", "sport",
		"gym", "run", "running", "hike", "hiking", "swim", "bike", "cycling",
		"read", "reading", "paint", "painting", "draw", "drawing", "music",
		"guitar", "piano", "sing", "dance", "cook", "cooking", "bake",
		"baking", "garden", "gardening", "photograph", "travel", "collect",
		"fish", "fishing", "climb", "climbing", "knit", "chess",
	}

	contactKeywords = []string{
		"email", "e-mail", "phone", "number", "address", "contact", "reach",
		"discord", "telegram", "twitter", "instagram", "linkedin", "github",
		"website", "@", "timezone", "time zone",
	}

	// opinionPhrases catch modal/opinion phrasing in texts that earlier
	// keyword rules missed.
	opinionPhrases = []string{
		"would like", "would love", "would prefer", "believes", "believe",
		"feels that", "feel that", "thinks that", "think that", "opinion",
		"wishes", "wish", "hopes", "hope", "wants", "want",
	}
)

// canonicalExamples are small reference sentences per category used by the
// overlap-scoring fallback rule.
var canonicalExamples = map[types.Category][]string{
	types.CategoryPersonal: {
		"user has a family member",
		"user lives in a city",
		"user was born on a date",
	},
	types.CategoryProfessional: {
		"user works at a company as an engineer",
		"user is studying a degree at university",
	},
	types.CategoryPreferences: {
		"user likes a certain thing",
		"user prefers one thing over another",
	},
	types.CategoryHobbies: {
		"user plays a game in free time",
		"user enjoys a sport or creative activity",
	},
	types.CategoryContact: {
		"user can be reached at an email address",
		"user shared a phone number",
	},
}

// NewCategorizer builds the rule table. Order matters: the food+preference
// override runs first so "User loves pizza" lands in preferences rather than
// hobbies via the "cook"-style keyword overlap.
func NewCategorizer() *Categorizer {
	c := &Categorizer{}
	c.rules = []categoryRule{
		{name: "food_preference_override", apply: c.foodPreferenceRule},
		{name: "keyword_personal", apply: keywordRule(types.CategoryPersonal, personalKeywords)},
		{name: "keyword_professional", apply: keywordRule(types.CategoryProfessional, professionalKeywords)},
		{name: "keyword_preferences", apply: keywordRule(types.CategoryPreferences, preferencesKeywords)},
		{name: "keyword_hobbies", apply: keywordRule(types.CategoryHobbies, hobbiesKeywords)},
		{name: "keyword_contact", apply: keywordRule(types.CategoryContact, contactKeywords)},
		{name: "opinion_phrasing", apply: keywordRule(types.CategoryPreferences, opinionPhrases)},
		{name: "example_overlap", apply: c.exampleOverlapRule},
	}
	return c
}

// Categorize returns the category for the given memory text.
func (c *Categorizer) Categorize(text string) types.Category {
	normalized := normalizeText(text)
	for _, rule := range c.rules {
		if category, ok := rule.apply(normalized); ok {
			return category
		}
	}
	return types.CategoryOther
}

// foodPreferenceRule forces PREFERENCES when the text pairs a food word with
// a preference verb, before the general keyword scan can claim it.
func (c *Categorizer) foodPreferenceRule(normalized string) (types.Category, bool) {
	if containsAny(normalized, foodKeywords) && containsAny(normalized, preferenceVerbs) {
		return types.CategoryPreferences, true
	}
	return "", false
}

// keywordRule builds a rule claiming texts that contain any keyword.
func keywordRule(category types.Category, keywords []string) func(string) (types.Category, bool) {
	return func(normalized string) (types.Category, bool) {
		if containsAny(normalized, keywords) {
			return category, true
		}
		return "", false
	}
}

// exampleOverlapRule scores token overlap against the canonical example
// sentences and claims the best category when its normalized score clears
// 0.5. The score is overlap count divided by the smaller token-set size.
func (c *Categorizer) exampleOverlapRule(normalized string) (types.Category, bool) {
	textTokens := tokenSet(normalized)
	if len(textTokens) == 0 {
		return "", false
	}

	var best types.Category
	bestScore := 0.0

	for _, category := range []types.Category{
		types.CategoryPersonal, types.CategoryProfessional,
		types.CategoryPreferences, types.CategoryHobbies, types.CategoryContact,
	} {
		for _, example := range canonicalExamples[category] {
			exampleTokens := tokenSet(example)
			smaller := len(textTokens)
			if len(exampleTokens) < smaller {
				smaller = len(exampleTokens)
			}
			if smaller == 0 {
				continue
			}
			score := float64(overlapCount(textTokens, exampleTokens)) / float64(smaller)
			if score > bestScore {
				bestScore = score
				best = category
			}
		}
	}

	if bestScore > 0.5 {
		return best, true
	}
	return "", false
}
