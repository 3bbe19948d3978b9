package rag

import (
	"encoding/json"
	"io"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

const fallbackExcerpt = 800

var (
	jsonTagRe       = regexp.MustCompile(`(?i)<json>([\s\S]*?)</json>`)
	singleKeyRe     = regexp.MustCompile(`(^|[{\[,]\s*)'(.*?)'\s*:`)
	singleValueRe   = regexp.MustCompile(`:\s*'(.*?)'(\s*[}\],])`)
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)

	smartQuotes = strings.NewReplacer(
		"“", `"`, "”", `"`, "„", `"`, "‟", `"`,
		"’", "'", "‘", "'",
	)
)

// Reply is a parsed model response before business rules are applied.
// Status is empty when the model did not report one.
type Reply struct {
	Answer     Answer
	Sources    []Source
	Status     Status
	HasAnswer  bool
	HasSources bool
}

type strategy func(raw string) (Reply, bool)

// strategies are tried in order; the last one always succeeds.
var strategies = []strategy{parseStrict, parseRepaired, parseFallback}

// Normalize turns raw model output into a Reply. It never fails: output
// that cannot be parsed yields a reply with StatusError.
func Normalize(raw string) Reply {
	for _, s := range strategies {
		if r, ok := s(raw); ok {
			return r
		}
	}
	return Reply{Status: StatusError}
}

func parseStrict(raw string) (Reply, bool) {
	obj, ok := decodeObject(raw)
	if !ok {
		return Reply{}, false
	}
	return replyFromObject(obj), true
}

func parseRepaired(raw string) (Reply, bool) {
	return parseStrict(Repair(raw))
}

func parseFallback(raw string) (Reply, bool) {
	text := truncateRunes(Repair(raw), fallbackExcerpt)
	return Reply{
		Answer:    TextAnswer(text),
		Sources:   []Source{},
		Status:    StatusError,
		HasAnswer: text != "",
	}, true
}

// Repair fixes the malformations models commonly wrap around JSON:
// code fences, emphasis, <json> tags, prose around the object, smart
// quotes, single-quoted strings and trailing commas.
func Repair(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "`")
	s = strings.Trim(s, "*")

	if m := jsonTagRe.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	} else {
		i, j := strings.Index(s, "{"), strings.LastIndex(s, "}")
		if i != -1 && j > i {
			s = s[i : j+1]
		}
	}

	s = smartQuotes.Replace(s)
	if singleKeyRe.MatchString(s) || singleValueRe.MatchString(s) {
		s = replaceSingleQuotes(s)
	}
	return trailingCommaRe.ReplaceAllString(s, "$1")
}

// replaceSingleQuotes swaps every ' not preceded by a backslash for ".
func replaceSingleQuotes(s string) string {
	b := []byte(s)
	for i := range b {
		if b[i] == '\'' && (i == 0 || b[i-1] != '\\') {
			b[i] = '"'
		}
	}
	return string(b)
}

// decodeObject parses s as exactly one JSON object.
func decodeObject(s string) (map[string]interface{}, bool) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, false
	}
	obj, ok := v.(map[string]interface{})
	return obj, ok
}

func replyFromObject(obj map[string]interface{}) Reply {
	r := Reply{
		Answer:    coerceAnswer(obj["answer"]),
		HasAnswer: truthy(obj["answer"]),
	}
	if raw, ok := obj["sources"].([]interface{}); ok {
		r.Sources = make([]Source, 0, len(raw))
		for _, el := range raw {
			if m, ok := el.(map[string]interface{}); ok {
				r.Sources = append(r.Sources, sourceFromObject(m))
			}
		}
		r.HasSources = len(r.Sources) > 0
	}
	if st, ok := obj["status"]; ok {
		r.Status = Status(strings.TrimSpace(stringify(st)))
	}
	return r
}

func sourceFromObject(m map[string]interface{}) Source {
	return Source{
		Title: strings.TrimSpace(stringify(m["title"])),
		Page:  coercePage(m["page"]),
		URL:   strings.TrimSpace(stringify(m["url"])),
	}
}

func coercePage(v interface{}) int {
	s := strings.TrimSpace(stringify(v))
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f)
	}
	return 0
}

// Finalize applies the answer rules: the no-data sentinel clears sources
// and forces StatusNotFound, missing sources are filled by synthesize and a
// missing or unknown status is derived from the answer.
func Finalize(r Reply, synthesize func() []Source) *Result {
	res := &Result{Answer: r.Answer, Sources: r.Sources, Status: r.Status}

	if r.Answer.Text() == NoDataSentinel {
		res.Sources = []Source{}
		res.Status = StatusNotFound
		return res
	}
	if !r.HasSources {
		res.Sources = nil
		if synthesize != nil {
			res.Sources = synthesize()
		}
		if res.Sources == nil {
			res.Sources = []Source{}
		}
	}
	if !res.Status.known() {
		res.Status = StatusNotFound
		if r.HasAnswer {
			res.Status = StatusAnswerable
		}
	}
	return res
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
