package rag

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

const tableMarker = "[ТАБЛИЦА]"

// listStems mark questions that ask for an exhaustive enumeration.
var listStems = []string{"перечисл", "этап", "пунк", "список", "таблиц"}

var (
	bulletRe   = regexp.MustCompile(`(?m)^\s*(\d+)[).\s]\s+(.*)$`)
	tableRowRe = regexp.MustCompile(`^(\d+)\s+(.+)$`)
)

// NeedsFullList reports whether the question asks for a complete list.
func NeedsFullList(question string) bool {
	q := strings.ToLower(question)
	for _, stem := range listStems {
		if strings.Contains(q, stem) {
			return true
		}
	}
	return false
}

type listItem struct {
	num  int
	text string
}

// Harvest collects numbered items from the given chunks.
func (a *Assembler) Harvest(indices []int) []string {
	texts := make([]string, len(indices))
	for i, idx := range indices {
		texts[i] = a.store.Chunk(idx).Text
	}
	return HarvestItems(texts...)
}

// HarvestItems extracts numbered list lines and numbered table rows and
// returns them as "N. text" in ascending number order. For a repeated
// number the shortest text wins.
func HarvestItems(texts ...string) []string {
	var items []listItem
	add := func(num, body string) {
		n, err := strconv.Atoi(num)
		if err != nil {
			return
		}
		body = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(body), ". \t"))
		if body == "" {
			return
		}
		items = append(items, listItem{n, body})
	}

	for _, t := range texts {
		for _, m := range bulletRe.FindAllStringSubmatch(t, -1) {
			add(m[1], m[2])
		}
		if !strings.HasPrefix(t, tableMarker) {
			continue
		}
		for _, line := range strings.Split(t, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, tableMarker) {
				continue
			}
			if m := tableRowRe.FindStringSubmatch(line); m != nil {
				add(m[1], m[2])
			}
		}
	}
	if len(items) == 0 {
		return nil
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].num != items[j].num {
			return items[i].num < items[j].num
		}
		return utf8.RuneCountInString(items[i].text) < utf8.RuneCountInString(items[j].text)
	})

	out := make([]string, 0, len(items))
	seen := make(map[int]struct{}, len(items))
	for _, it := range items {
		if _, ok := seen[it.num]; ok {
			continue
		}
		seen[it.num] = struct{}{}
		out = append(out, fmt.Sprintf("%d. %s", it.num, it.text))
	}
	return out
}
