package sina

import (
	"strconv"
	"strings"

	"github.com/qleaf/marketmux/internal/core"
)

// looseFloat decodes node-feed numeric cells, which arrive as either
// bare numbers or quoted strings depending on the column. Empty and
// non-numeric cells decode as absent; decoding never fails.
type looseFloat struct {
	v  float64
	ok bool
}

func (l *looseFloat) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		return nil
	}
	s = strings.Trim(s, `"`)
	if s == "" || s == "-" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	l.v = v
	l.ok = true
	return nil
}

func (l looseFloat) ptr() *float64 {
	if !l.ok {
		return nil
	}
	return core.Float64(l.v)
}
