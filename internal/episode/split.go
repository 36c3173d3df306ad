package episode

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ErrBadSplit is returned for split expressions that cannot be parsed or name an unknown split.
var ErrBadSplit = errors.New("bad split")

var splitRe = regexp.MustCompile(`^([A-Za-z0-9_]+)(?:\[([^\]]*)\])?$`)

// #region split-types
// SplitSpec is a parsed split expression such as "train[:1]" or "val[10%:]".
type SplitSpec struct {
	Name    string
	From    *int
	To      *int
	Percent bool
}

// #endregion split-types

// #region parse
// ParseSplit parses "name", "name[a:b]", "name[a%:b%]" and "name[i]".
func ParseSplit(expr string) (SplitSpec, error) {
	m := splitRe.FindStringSubmatch(strings.TrimSpace(expr))
	if m == nil {
		return SplitSpec{}, fmt.Errorf("%w: %q", ErrBadSplit, expr)
	}
	spec := SplitSpec{Name: m[1]}
	body := strings.TrimSpace(m[2])
	if body == "" {
		return spec, nil
	}

	parts := strings.Split(body, ":")
	if len(parts) > 2 {
		return SplitSpec{}, fmt.Errorf("%w: %q", ErrBadSplit, expr)
	}

	// "name[i]" selects a single episode.
	if len(parts) == 1 {
		v, pct, err := parseBound(parts[0])
		if err != nil || pct {
			return SplitSpec{}, fmt.Errorf("%w: %q", ErrBadSplit, expr)
		}
		to := v + 1
		if v == -1 {
			spec.From = &v
			return spec, nil
		}
		spec.From, spec.To = &v, &to
		return spec, nil
	}

	var fromPct, toPct bool
	if s := strings.TrimSpace(parts[0]); s != "" {
		v, pct, err := parseBound(s)
		if err != nil {
			return SplitSpec{}, fmt.Errorf("%w: %q: %v", ErrBadSplit, expr, err)
		}
		spec.From, fromPct = &v, pct
	}
	if s := strings.TrimSpace(parts[1]); s != "" {
		v, pct, err := parseBound(s)
		if err != nil {
			return SplitSpec{}, fmt.Errorf("%w: %q: %v", ErrBadSplit, expr, err)
		}
		spec.To, toPct = &v, pct
	}
	if spec.From != nil && spec.To != nil && fromPct != toPct {
		return SplitSpec{}, fmt.Errorf("%w: %q mixes absolute and percent bounds", ErrBadSplit, expr)
	}
	spec.Percent = fromPct || toPct
	return spec, nil
}

func parseBound(s string) (int, bool, error) {
	pct := strings.HasSuffix(s, "%")
	v, err := strconv.Atoi(strings.TrimSuffix(s, "%"))
	if err != nil {
		return 0, false, err
	}
	if pct && (v < -100 || v > 100) {
		return 0, false, fmt.Errorf("percent %d out of range", v)
	}
	return v, pct, nil
}

// #endregion parse

// #region resolve
// Resolve maps the spec onto a split of n episodes and returns the half-open
// index range [from, to). Bounds are clamped; an empty range has from == to.
func (s SplitSpec) Resolve(n int) (int, int) {
	from, to := 0, n
	if s.From != nil {
		from = s.bound(*s.From, n)
	}
	if s.To != nil {
		to = s.bound(*s.To, n)
	}
	if to < from {
		to = from
	}
	return from, to
}

func (s SplitSpec) bound(v, n int) int {
	if s.Percent {
		v = int(math.Round(float64(v) * float64(n) / 100))
	}
	if v < 0 {
		v += n
	}
	if v < 0 {
		return 0
	}
	if v > n {
		return n
	}
	return v
}

// #endregion resolve
