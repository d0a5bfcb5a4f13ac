package speech

import "strings"

// preferredNames lists well-known natural-sounding voices in order of
// preference. Every keyword of an entry must appear in the voice name.
var preferredNames = map[Gender][][]string{
	GenderMale: {
		{"natural", "male"},
		{"guy"},
		{"google uk english male"},
		{"microsoft james"},
		{"david"},
	},
	GenderFemale: {
		{"natural", "female"},
		{"aria"},
		{"google uk english female"},
		{"microsoft zira"},
		{"samantha"},
	},
}

// SelectVoice picks a voice for gender and locale. It prefers a known
// natural voice, then any voice of that gender, then any voice for the
// locale's language. It reports false when nothing matches.
func SelectVoice(voices []Voice, gender Gender, locale string) (Voice, bool) {
	lang := language(locale)

	for _, keywords := range preferredNames[gender] {
		for _, v := range voices {
			if language(v.Locale) != lang || conflicts(v, gender) {
				continue
			}
			if containsAll(strings.ToLower(v.Name), keywords) {
				return v, true
			}
		}
	}

	for _, v := range voices {
		if language(v.Locale) == lang && genderOf(v) == gender {
			return v, true
		}
	}

	for _, v := range voices {
		if language(v.Locale) == lang {
			return v, true
		}
	}

	return Voice{}, false
}

func genderOf(v Voice) Gender {
	if v.Gender != "" {
		return v.Gender
	}
	name := strings.ToLower(v.Name)
	// "female" contains "male", so it has to be checked first.
	switch {
	case strings.Contains(name, "female"):
		return GenderFemale
	case strings.Contains(name, "male"):
		return GenderMale
	default:
		return ""
	}
}

func conflicts(v Voice, want Gender) bool {
	g := genderOf(v)
	return g != "" && g != want
}

func containsAll(s string, keywords []string) bool {
	for _, k := range keywords {
		if !strings.Contains(s, k) {
			return false
		}
	}
	return true
}

// language returns the lower-cased language subtag of a locale such as
// en-US or en_GB.
func language(locale string) string {
	locale = strings.ToLower(locale)
	if i := strings.IndexAny(locale, "-_"); i >= 0 {
		return locale[:i]
	}
	return locale
}
