package eastmoney

import (
	"strconv"
	"strings"

	"github.com/qleaf/marketmux/internal/core"
)

// optFloat decodes push2 numeric cells. Suspended stocks and fields the
// API has no value for arrive as the string "-"; those decode as absent
// rather than zero. Decoding never fails: garbage cells become absent.
type optFloat struct {
	v  float64
	ok bool
}

func (o *optFloat) UnmarshalJSON(b []byte) error {
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
	o.v = v
	o.ok = true
	return nil
}

func (o optFloat) ptr() *float64 {
	if !o.ok {
		return nil
	}
	return core.Float64(o.v)
}
