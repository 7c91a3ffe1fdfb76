package protocol

import "strings"

// The replacers scan left to right and never rescan their own output,
// so an encoded backslash is never mistaken for the start of another
// escape: `\\n` decodes to a backslash followed by a literal n.
var (
	encoder = strings.NewReplacer(
		`\`, `\\`,
		" ", `\s`,
		"/", `\/`,
		"|", `\p`,
		"\b", `\b`,
		"\f", `\f`,
		"\n", `\n`,
		"\r", `\r`,
		"\t", `\t`,
		"\a", `\a`,
		"\v", `\v`,
	)

	decoder = strings.NewReplacer(
		`\\`, `\`,
		`\s`, " ",
		`\/`, "/",
		`\p`, "|",
		`\b`, "\b",
		`\f`, "\f",
		`\n`, "\n",
		`\r`, "\r",
		`\t`, "\t",
		`\a`, "\a",
		`\v`, "\v",
	)
)

// Encode escapes s for use as a value token in a command line.
func Encode(s string) string {
	return encoder.Replace(s)
}

// Decode reverses [Encode].  Unknown escape sequences are left as-is.
func Decode(s string) string {
	if strings.IndexByte(s, '\\') < 0 {
		return s
	}
	return decoder.Replace(s)
}
