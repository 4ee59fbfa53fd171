// Package features turns a URL string into the fixed-order numeric vector the
// classifier was trained on. Extraction is pure and never fails.
package features

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Version identifies the vector layout below. Bump it whenever Names, the
// suspicious TLD set or the keyword list change, and retrain.
const Version = "v1"

// Vector indices. The order is the contract with trained model artifacts.
const (
	URLLength = iota
	NumDots
	NumHyphens
	NumSlashes
	NumDigits
	DigitRatio
	HasHTTPS
	HasHTTP
	DomainLength
	SubdomainCount
	IsSuspiciousTLD
	HasIP
	HasAtSymbol
	SuspiciousKeywordCount
	URLEntropy
	DomainEntropy

	NumFeatures
)

// Names lists the feature names in vector order.
var Names = [NumFeatures]string{
	"url_length",
	"num_dots",
	"num_hyphens",
	"num_slashes",
	"num_digits",
	"digit_ratio",
	"has_https",
	"has_http",
	"domain_length",
	"subdomain_count",
	"is_suspicious_tld",
	"has_ip",
	"has_at_symbol",
	"suspicious_keyword_count",
	"url_entropy",
	"domain_entropy",
}

// Vector is one extracted feature row.
type Vector [NumFeatures]float64

var suspiciousTLDs = map[string]struct{}{
	"tk": {}, "ml": {}, "ga": {}, "cf": {}, "xyz": {},
	"top": {}, "club": {}, "loan": {}, "gq": {},
}

var suspiciousKeywords = []string{
	"login", "bank", "paypal", "verify", "account", "update", "secure",
	"signin", "password", "confirm", "billing", "payment", "credential",
}

// Extract computes the feature vector for raw. Same input, same vector.
func Extract(raw string) Vector {
	var v Vector

	length := utf8.RuneCountInString(raw)
	digits := 0
	for _, r := range raw {
		if unicode.IsDigit(r) {
			digits++
		}
	}

	v[URLLength] = float64(length)
	v[NumDots] = float64(strings.Count(raw, "."))
	v[NumHyphens] = float64(strings.Count(raw, "-"))
	v[NumSlashes] = float64(strings.Count(raw, "/"))
	v[NumDigits] = float64(digits)
	if length > 0 {
		v[DigitRatio] = float64(digits) / float64(length)
	}
	v[HasHTTPS] = flag(strings.HasPrefix(raw, "https"))
	v[HasHTTP] = flag(strings.HasPrefix(raw, "http"))

	parts := Parse(raw)
	domain := Registrable(parts.Host)
	v[DomainLength] = float64(utf8.RuneCountInString(domain.Label))
	if domain.Subdomain != "" {
		v[SubdomainCount] = float64(strings.Count(domain.Subdomain, ".") + 1)
	}
	_, suspicious := suspiciousTLDs[domain.Suffix]
	v[IsSuspiciousTLD] = flag(suspicious)
	v[HasIP] = flag(IsIPv4Literal(parts.Host))
	v[HasAtSymbol] = flag(strings.Contains(raw, "@"))
	v[SuspiciousKeywordCount] = float64(KeywordOccurrences(raw))
	v[URLEntropy] = Entropy(raw)
	v[DomainEntropy] = Entropy(domain.Label)

	return v
}

// KeywordOccurrences counts every occurrence of every suspicious keyword in
// the lowercased URL. "login/login" counts twice.
func KeywordOccurrences(raw string) int {
	lower := strings.ToLower(raw)
	n := 0
	for _, kw := range suspiciousKeywords {
		n += strings.Count(lower, kw)
	}
	return n
}

// Entropy is the Shannon entropy of s in bits over its character
// distribution. Strings of zero or one character have entropy 0.
func Entropy(s string) float64 {
	n := utf8.RuneCountInString(s)
	if n <= 1 {
		return 0
	}
	// Counts are summed in first-appearance order so the float result is
	// identical on every call.
	index := make(map[rune]int, n)
	var counts []int
	for _, r := range s {
		i, ok := index[r]
		if !ok {
			i = len(counts)
			index[r] = i
			counts = append(counts, 0)
		}
		counts[i]++
	}
	var h float64
	total := float64(n)
	for _, c := range counts {
		p := float64(c) / total
		h -= p * math.Log2(p)
	}
	return h
}

// Slice returns the vector as a plain slice in Names order.
func (v Vector) Slice() []float64 {
	out := make([]float64, NumFeatures)
	copy(out, v[:])
	return out
}

func flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
