package mockjs

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Word and name pools for the text placeholders. Small on purpose: templates
// that need richer data can interpolate several placeholders.
var (
	wordPool = []string{
		"lorem", "ipsum", "dolor", "sit", "amet", "consectetur", "adipiscing",
		"elit", "tempor", "incididunt", "labore", "magna", "aliqua", "veniam",
		"nostrud", "exercitation", "ullamco", "laboris", "nisi", "aliquip",
	}
	firstNames = []string{
		"James", "Mary", "John", "Patricia", "Robert", "Jennifer", "Michael",
		"Linda", "William", "Elizabeth", "David", "Barbara", "Richard", "Susan",
	}
	lastNames = []string{
		"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller",
		"Davis", "Rodriguez", "Martinez", "Wilson", "Anderson", "Taylor",
	}
	cityNames = []string{
		"Springfield", "Riverton", "Fairview", "Lakeside", "Greenville",
		"Bristol", "Clinton", "Georgetown", "Salem", "Madison", "Ashland",
	}
	countyNames = []string{
		"Adams", "Clark", "Franklin", "Jackson", "Jefferson", "Lincoln",
		"Madison", "Monroe", "Montgomery", "Washington", "Wayne",
	}
	tlds       = []string{"com", "net", "org", "io", "dev"}
	colorNames = []string{"red", "green", "blue", "yellow", "purple", "orange", "cyan", "magenta"}
)

const (
	lowerChars = "abcdefghijklmnopqrstuvwxyz"
	upperChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitChars = "0123456789"
	poolChars  = lowerChars + upperChars + digitChars
	hexChars   = "0123456789abcdef"
)

// resolvePlaceholder evaluates one @placeholder occurrence. The boolean
// reports whether the name is known; unknown names are left to the caller.
// Placeholder names are case-insensitive, as in the mockjs convention.
func (st *run) resolvePlaceholder(name, args string) (any, bool) {
	a := parseArgs(args)

	switch strings.ToLower(name) {
	case "integer", "int":
		return st.intRange(argInt(a, 0, 0), argInt(a, 1, 10000)), true
	case "natural":
		n := st.intRange(argInt(a, 0, 0), argInt(a, 1, 10000))
		if n < 0 {
			n = -n
		}
		return n, true
	case "float":
		intPart := st.intRange(argInt(a, 0, 0), argInt(a, 1, 10000))
		dmin := argInt(a, 2, 1)
		dmax := argInt(a, 3, dmin)
		return st.floatWithDecimals(intPart, st.intRange(dmin, dmax)), true
	case "boolean", "bool":
		return st.float01() < 0.5, true
	case "character", "char":
		return st.charsFrom(poolChars, 1), true
	case "string", "str":
		return st.charsFrom(poolChars, st.argCount(a, 3, 7)), true
	case "word":
		if len(a) == 0 {
			return pick(st, wordPool), true
		}
		return st.charsFrom(lowerChars, st.argCount(a, 3, 10)), true
	case "sentence":
		return st.sentence(st.argCount(a, 12, 18)), true
	case "paragraph":
		return st.paragraph(st.argCount(a, 3, 7)), true
	case "title":
		return st.title(st.argCount(a, 3, 7)), true
	case "first":
		return pick(st, firstNames), true
	case "last":
		return pick(st, lastNames), true
	case "name":
		return pick(st, firstNames) + " " + pick(st, lastNames), true
	case "city":
		return pick(st, cityNames), true
	case "county":
		return pick(st, countyNames) + " County", true
	case "email":
		return pick(st, wordPool) + "." + strings.ToLower(pick(st, lastNames)) + "@" + st.domain(), true
	case "domain":
		return st.domain(), true
	case "tld":
		return pick(st, tlds), true
	case "url":
		return "http://" + st.domain() + "/" + pick(st, wordPool), true
	case "ip":
		return fmt.Sprintf("%d.%d.%d.%d", st.intN(256), st.intN(256), st.intN(256), st.intN(256)), true
	case "guid", "uuid":
		return st.guid(), true
	case "id":
		return st.charsFrom(digitChars, 18), true
	case "increment":
		return int(st.nextCounter("@increment", 1, float64(argInt(a, 0, 1)))), true
	case "color":
		return pick(st, colorNames), true
	case "hex", "rgb":
		return "#" + st.charsFrom(hexChars, 6), true
	case "date":
		return formatClock(argStr(a, 0, "yyyy-MM-dd")), true
	case "time":
		return formatClock(argStr(a, 0, "HH:mm:ss")), true
	case "datetime", "now":
		return formatClock(argStr(a, 0, "yyyy-MM-dd HH:mm:ss")), true
	case "timestamp":
		return time.Now().UnixMilli(), true
	}
	return nil, false
}

// charsFrom builds a string of n characters drawn from pool.
func (st *run) charsFrom(pool string, n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = pool[st.intN(len(pool))]
	}
	return string(b)
}

// argCount resolves a (min, max) argument pair into a concrete count.
// One argument means exactly that count; none means the defaults.
func (st *run) argCount(args []string, defMin, defMax int) int {
	min, max := defMin, defMax
	if len(args) >= 1 {
		min = argInt(args, 0, defMin)
		max = min
	}
	if len(args) >= 2 {
		max = argInt(args, 1, min)
	}
	n := st.intRange(min, max)
	if n < 1 {
		n = 1
	}
	return n
}

// sentence joins n pool words, capitalizes the first and ends with a period.
func (st *run) sentence(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = pick(st, wordPool)
	}
	s := strings.Join(words, " ")
	return strings.ToUpper(s[:1]) + s[1:] + "."
}

func (st *run) paragraph(n int) string {
	sentences := make([]string, n)
	for i := range sentences {
		sentences[i] = st.sentence(st.intRange(12, 18))
	}
	return strings.Join(sentences, " ")
}

func (st *run) title(n int) string {
	words := make([]string, n)
	for i := range words {
		w := pick(st, wordPool)
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func (st *run) domain() string {
	return pick(st, wordPool) + "." + pick(st, tlds)
}

// guid renders a random 8-4-4-4-12 hex identifier from the run's RNG so
// seeded expansion stays reproducible.
func (st *run) guid() string {
	h := st.charsFrom(hexChars, 32)
	return h[:8] + "-" + h[8:12] + "-" + h[12:16] + "-" + h[16:20] + "-" + h[20:]
}

// formatClock renders the current wall clock using a mockjs-style pattern
// (yyyy-MM-dd HH:mm:ss).
func formatClock(pattern string) string {
	return time.Now().Format(clockLayout(pattern))
}

var clockTokens = []struct{ pat, layout string }{
	{"yyyy", "2006"},
	{"yy", "06"},
	{"MM", "01"},
	{"M", "1"},
	{"dd", "02"},
	{"d", "2"},
	{"HH", "15"},
	{"H", "15"},
	{"mm", "04"},
	{"m", "4"},
	{"ss", "05"},
	{"s", "5"},
	{"SS", "000"},
}

// clockLayout converts a mockjs date pattern into a Go time layout.
func clockLayout(pattern string) string {
	var out strings.Builder
	for i := 0; i < len(pattern); {
		matched := false
		for _, tok := range clockTokens {
			if strings.HasPrefix(pattern[i:], tok.pat) {
				out.WriteString(tok.layout)
				i += len(tok.pat)
				matched = true
				break
			}
		}
		if !matched {
			out.WriteByte(pattern[i])
			i++
		}
	}
	return out.String()
}

// parseArgs splits a placeholder argument list on commas, trimming spaces
// and surrounding quotes.
func parseArgs(args string) []string {
	if strings.TrimSpace(args) == "" {
		return nil
	}
	parts := strings.Split(args, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		p = strings.Trim(p, `"'`)
		out = append(out, p)
	}
	return out
}

func argInt(args []string, i, def int) int {
	if i >= len(args) || args[i] == "" {
		return def
	}
	n, err := strconv.Atoi(args[i])
	if err != nil {
		return def
	}
	return n
}

func argStr(args []string, i int, def string) string {
	if i >= len(args) || args[i] == "" {
		return def
	}
	return args[i]
}
