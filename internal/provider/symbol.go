package provider

import "strings"

// NormalizeCode converts vendor code spellings to the canonical
// "600519.SH" form used as the cross-provider map key.
// Accepted inputs: "600519.SH", "sh600519", "SZ000001", "600519",
// "0.000001" (eastmoney secid). Unknown formats are returned upper-cased.
func NormalizeCode(code string) string {
	c := strings.TrimSpace(code)
	if c == "" {
		return ""
	}

	upper := strings.ToUpper(c)
	if strings.HasSuffix(upper, ".SH") || strings.HasSuffix(upper, ".SZ") || strings.HasSuffix(upper, ".BJ") {
		return upper
	}

	lower := strings.ToLower(c)
	if len(lower) == 8 {
		switch {
		case strings.HasPrefix(lower, "sh"):
			return lower[2:] + ".SH"
		case strings.HasPrefix(lower, "sz"):
			return lower[2:] + ".SZ"
		case strings.HasPrefix(lower, "bj"):
			return lower[2:] + ".BJ"
		}
	}

	// Eastmoney secid: market id "." code
	if strings.HasPrefix(c, "1.") {
		return c[2:] + ".SH"
	}
	if strings.HasPrefix(c, "0.") {
		return c[2:] + ".SZ"
	}

	if len(c) == 6 && isDigits(c) {
		return c + "." + inferExchange(c)
	}
	return upper
}

// BareCode strips the exchange suffix: "600519.SH" -> "600519".
func BareCode(code string) string {
	if i := strings.Index(code, "."); i > 0 {
		return code[:i]
	}
	return code
}

// LowerPrefixed renders "600519.SH" as "sh600519" (sina/tencent style).
func LowerPrefixed(code string) string {
	norm := NormalizeCode(code)
	i := strings.Index(norm, ".")
	if i <= 0 || i+1 >= len(norm) {
		return strings.ToLower(norm)
	}
	return strings.ToLower(norm[i+1:]) + norm[:i]
}

// inferExchange guesses the exchange from a bare 6-digit code.
// 6xx -> Shanghai, 8xx/4xx -> Beijing, everything else -> Shenzhen.
func inferExchange(code string) string {
	switch code[0] {
	case '6', '9':
		return "SH"
	case '8', '4':
		return "BJ"
	default:
		return "SZ"
	}
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
