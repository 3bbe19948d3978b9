package rag

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// NoDataSentinel is the exact answer the model gives when the context does
// not contain the answer.
const NoDataSentinel = "Нет данных в предоставленном контексте."

type Status string

const (
	StatusAnswerable Status = "answerable"
	StatusNotFound   Status = "not_found"
	StatusError      Status = "error"
)

func (s Status) known() bool {
	switch s {
	case StatusAnswerable, StatusNotFound, StatusError:
		return true
	}
	return false
}

var numberedPrefix = regexp.MustCompile(`^\d+\.\s`)

// Answer holds either a scalar answer or an ordered list of items.
type Answer struct {
	Value string
	Items []string
	List  bool
}

func TextAnswer(s string) Answer { return Answer{Value: s} }

func ListAnswer(items ...string) Answer { return Answer{Items: items, List: true} }

// Text renders the answer for display. List items are numbered from one
// unless they already carry a "N. " prefix.
func (a Answer) Text() string {
	if !a.List {
		return strings.TrimSpace(a.Value)
	}
	lines := make([]string, 0, len(a.Items))
	for i, item := range a.Items {
		item = strings.TrimSpace(item)
		if !numberedPrefix.MatchString(item) {
			item = fmt.Sprintf("%d. %s", i+1, item)
		}
		lines = append(lines, item)
	}
	return strings.Join(lines, "\n")
}

func (a Answer) MarshalJSON() ([]byte, error) {
	if a.List {
		items := a.Items
		if items == nil {
			items = []string{}
		}
		return json.Marshal(items)
	}
	return json.Marshal(a.Value)
}

func (a *Answer) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*a = coerceAnswer(v)
	return nil
}

// coerceAnswer converts a decoded JSON value into an Answer. Nested lists
// inside a list are joined with "; ".
func coerceAnswer(v interface{}) Answer {
	switch t := v.(type) {
	case nil:
		return Answer{}
	case []interface{}:
		items := make([]string, 0, len(t))
		for _, el := range t {
			if nested, ok := el.([]interface{}); ok {
				parts := make([]string, len(nested))
				for i, p := range nested {
					parts[i] = stringify(p)
				}
				items = append(items, strings.Join(parts, "; "))
				continue
			}
			items = append(items, stringify(el))
		}
		return Answer{Items: items, List: true}
	default:
		return Answer{Value: stringify(t)}
	}
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

// truthy reports whether a decoded JSON value carries content.
func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case []interface{}:
		return len(t) > 0
	case map[string]interface{}:
		return len(t) > 0
	case bool:
		return t
	case json.Number:
		f, err := t.Float64()
		return err != nil || f != 0
	}
	return true
}

// Source is one citation attached to an answer.
type Source struct {
	Title string `json:"title"`
	Page  int    `json:"page"`
	URL   string `json:"url"`
}

// Result is the structured answer returned by the pipeline.
type Result struct {
	Answer  Answer   `json:"answer"`
	Sources []Source `json:"sources"`
	Status  Status   `json:"status"`
}

func (r *Result) DisplayText() string {
	return RenderDisplayText(r.Answer, r.Sources)
}
