package runcode

import (
	"strconv"
	"strings"
)

// Quote возвращает строковый литерал Lua. Байты вне печатного ASCII
// записываются десятичными escape-последовательностями \ddd, поэтому
// литерал разбирается Lua 5.2 для любой входной строки.
func Quote(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) + 2)
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			if c < 0x20 || c >= 0x7f {
				// три цифры, чтобы следующая цифра не склеилась с escape
				sb.WriteByte('\\')
				d := strconv.Itoa(int(c))
				sb.WriteString(strings.Repeat("0", 3-len(d)))
				sb.WriteString(d)
				continue
			}
			sb.WriteByte(c)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}
