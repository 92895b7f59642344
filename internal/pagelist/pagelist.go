// Package pagelist parses the "--pages"/"--skip-pages" CLI grammar: a
// comma-separated list of non-negative integers or lo-hi ranges.
package pagelist

import (
	"fmt"
	"strconv"
	"strings"

	"gridctl/internal/coreerr"
)

// Parse parses s into the set of page numbers it names, as a sorted,
// deduplicated slice. An empty string yields an empty, non-nil slice.
func Parse(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return []int{}, nil
	}

	seen := map[int]bool{}
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			return nil, coreerr.New(coreerr.Config, "pagelist.Parse", "empty item in page list "+fmt.Sprintf("%q", s))
		}
		if lo, hi, ok := strings.Cut(item, "-"); ok {
			loN, err := strconv.Atoi(lo)
			if err != nil || loN < 0 {
				return nil, coreerr.New(coreerr.Config, "pagelist.Parse", "bad range start "+fmt.Sprintf("%q", item))
			}
			hiN, err := strconv.Atoi(hi)
			if err != nil || hiN < 0 {
				return nil, coreerr.New(coreerr.Config, "pagelist.Parse", "bad range end "+fmt.Sprintf("%q", item))
			}
			if loN > hiN {
				return nil, coreerr.New(coreerr.Config, "pagelist.Parse", fmt.Sprintf("range %q has lo > hi", item))
			}
			for n := loN; n <= hiN; n++ {
				seen[n] = true
			}
			continue
		}
		n, err := strconv.Atoi(item)
		if err != nil || n < 0 {
			return nil, coreerr.New(coreerr.Config, "pagelist.Parse", "bad page number "+fmt.Sprintf("%q", item))
		}
		seen[n] = true
	}

	out := make([]int, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sortInts(out)
	return out, nil
}

func sortInts(xs []int) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j-1] > xs[j]; j-- {
			xs[j-1], xs[j] = xs[j], xs[j-1]
		}
	}
}

// Resolve applies the include/exclude page-filter rule: at most one of
// include/exclude may be non-empty; the result is include, or
// (0..3 ∖ exclude) when exclude is set, or 0..3 when neither is set.
func Resolve(include, exclude []int) ([]int, error) {
	if len(include) > 0 && len(exclude) > 0 {
		return nil, coreerr.New(coreerr.Config, "pagelist.Resolve", "include and exclude are mutually exclusive")
	}
	if len(include) > 0 {
		out := append([]int(nil), include...)
		sortInts(out)
		return out, nil
	}
	excluded := map[int]bool{}
	for _, n := range exclude {
		excluded[n] = true
	}
	var out []int
	for n := 0; n <= 3; n++ {
		if !excluded[n] {
			out = append(out, n)
		}
	}
	return out, nil
}
