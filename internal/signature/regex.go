package signature

import "regexp"

type RegexMatcher struct {
	re *regexp.Regexp
}

func NewRegexMatcher(pattern string) (*RegexMatcher, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return &RegexMatcher{re: re}, nil
}

func mustRegex(pattern string) *RegexMatcher {
	return &RegexMatcher{re: regexp.MustCompile(pattern)}
}

func (m *RegexMatcher) Find(input string) (int, int, bool) {
	loc := m.re.FindStringIndex(input)
	if loc == nil {
		return 0, 0, false
	}
	return loc[0], loc[1], true
}

func (m *RegexMatcher) String() string {
	return m.re.String()
}
