package brain

import (
	"regexp"
	"strings"
	"unicode"
)

// numberRe matches integers and decimals, the strongest dedup signal:
// "mieszka na 3 piętrze" and "mieszka na 4 piętrze" are different facts.
var numberRe = regexp.MustCompile(`\d+(?:[.,]\d+)?`)

// stopWords are skipped when collecting significant tokens. English plus the
// Polish function words that show up constantly in extracted facts.
var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "from": true,
	"that": true, "this": true, "has": true, "have": true, "had": true,
	"was": true, "are": true, "been": true, "his": true, "her": true,
	"its": true, "their": true, "into": true, "not": true, "but": true,
	"user": true, "który": true, "która": true, "które": true, "jest": true,
	"się": true, "oraz": true, "dla": true, "nie": true, "jak": true,
	"ale": true, "czy": true, "być": true, "aby": true, "lub": true,
	"tego": true, "bardzo": true,
}

// overlapThresholdPct: when neither fact carries a number, two facts are the
// same if this share of the smaller token set overlaps.
const overlapThresholdPct = 40

// factTokens extracts the significant tokens of a fact: every number, plus
// every word of three or more characters that is not a stopword.
func factTokens(s string) (words, numbers map[string]bool) {
	words = map[string]bool{}
	numbers = map[string]bool{}

	for _, num := range numberRe.FindAllString(s, -1) {
		numbers[num] = true
	}

	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)

	for _, w := range strings.Fields(cleaned) {
		if len([]rune(w)) < 3 || stopWords[w] || numberRe.MatchString(w) {
			continue
		}
		words[w] = true
	}
	return words, numbers
}

// isDuplicate is the fuzzy same-fact test. When both facts carry numbers,
// they must share a number and at least one word. Otherwise the token sets
// must overlap by at least overlapThresholdPct of the smaller set.
func isDuplicate(a, b string) bool {
	wordsA, numsA := factTokens(a)
	wordsB, numsB := factTokens(b)

	if len(numsA) > 0 && len(numsB) > 0 {
		return intersects(numsA, numsB) && intersects(wordsA, wordsB)
	}

	setA := union(wordsA, numsA)
	setB := union(wordsB, numsB)
	smaller := len(setA)
	if len(setB) < smaller {
		smaller = len(setB)
	}
	if smaller == 0 {
		return false
	}
	shared := 0
	for t := range setA {
		if setB[t] {
			shared++
		}
	}
	return shared*100 >= smaller*overlapThresholdPct
}

func intersects(a, b map[string]bool) bool {
	for t := range a {
		if b[t] {
			return true
		}
	}
	return false
}

func union(a, b map[string]bool) map[string]bool {
	out := make(map[string]bool, len(a)+len(b))
	for t := range a {
		out[t] = true
	}
	for t := range b {
		out[t] = true
	}
	return out
}
