package lint

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

// Rule IDs follow stylelint naming so reports read the same as the tool
// the project used before.
const (
	RuleBlockNoEmpty           = "block-no-empty"
	RuleDeclarationNoImportant = "declaration-no-important"
	RuleColorNoInvalidHex      = "color-no-invalid-hex"
	RuleColorHexCase           = "color-hex-case"
	RuleNoEOLWhitespace        = "no-eol-whitespace"
)

// Rule inspects one stylesheet. Unless Raw is set, src has comments, string
// literals and url() arguments blanked out (same length, newlines kept) so
// offsets still map to the original lines.
type Rule struct {
	ID    string
	Raw   bool
	Check func(src string) []Finding
}

// Finding is a rule hit before it is attributed to a file.
type Finding struct {
	Offset  int
	Message string
}

var (
	emptyBlockRe  = regexp.MustCompile(`\{\s*\}`)
	importantRe   = regexp.MustCompile(`!\s*important`)
	declarationRe = regexp.MustCompile(`[-a-zA-Z$@][-\w$]*\s*:[^;{}]*;`)
	hexRe         = regexp.MustCompile(`#([0-9A-Za-z]+)\b`)
	validHexRe    = regexp.MustCompile(`^(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{4}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)
	eolSpaceRe    = regexp.MustCompile(`(?m)[ \t]+$`)
)

// BuiltinRules returns every rule sitepipe knows, keyed by ID.
func BuiltinRules() map[string]Rule {
	rules := []Rule{
		{ID: RuleBlockNoEmpty, Check: checkBlockNoEmpty},
		{ID: RuleDeclarationNoImportant, Check: checkNoImportant},
		{ID: RuleColorNoInvalidHex, Check: checkInvalidHex},
		{ID: RuleColorHexCase, Check: checkHexCase},
		{ID: RuleNoEOLWhitespace, Raw: true, Check: checkEOLWhitespace},
	}
	out := make(map[string]Rule, len(rules))
	for _, r := range rules {
		out[r.ID] = r
	}
	return out
}

func checkBlockNoEmpty(src string) []Finding {
	var out []Finding
	for _, m := range emptyBlockRe.FindAllStringIndex(src, -1) {
		out = append(out, Finding{Offset: m[0], Message: "Unexpected empty block"})
	}
	return out
}

func checkNoImportant(src string) []Finding {
	var out []Finding
	for _, m := range importantRe.FindAllStringIndex(src, -1) {
		out = append(out, Finding{Offset: m[0], Message: "Unexpected !important"})
	}
	return out
}

// hexColors yields every #hex token inside a declaration value.
func hexColors(src string, fn func(offset int, hex string)) {
	for _, decl := range declarationRe.FindAllStringIndex(src, -1) {
		text := src[decl[0]:decl[1]]
		colon := strings.Index(text, ":")
		value := text[colon:]
		for _, m := range hexRe.FindAllStringSubmatchIndex(value, -1) {
			fn(decl[0]+colon+m[0], value[m[2]:m[3]])
		}
	}
}

func checkInvalidHex(src string) []Finding {
	var out []Finding
	hexColors(src, func(offset int, hex string) {
		if !validHexRe.MatchString(hex) {
			out = append(out, Finding{Offset: offset, Message: "Unexpected invalid hex color \"#" + hex + "\""})
		}
	})
	return out
}

func checkHexCase(src string) []Finding {
	var out []Finding
	hexColors(src, func(offset int, hex string) {
		if validHexRe.MatchString(hex) && hex != strings.ToLower(hex) {
			out = append(out, Finding{Offset: offset,
				Message: "Expected \"#" + hex + "\" to be \"#" + strings.ToLower(hex) + "\""})
		}
	})
	return out
}

func checkEOLWhitespace(src string) []Finding {
	var out []Finding
	for _, m := range eolSpaceRe.FindAllStringIndex(src, -1) {
		out = append(out, Finding{Offset: m[0], Message: "Unexpected whitespace at end of line"})
	}
	return out
}

// blankNonCode replaces comments, quoted strings and url() arguments with
// spaces so rules only see selectors, declarations and values. Quote and
// parenthesis delimiters stay, as do newlines, so offsets still map to the
// original lines. Line comments are a Sass extension the CSS tokenizer does
// not know; after one the tokenizer restarts at the end of the line.
func blankNonCode(src string) string {
	b := []byte(src)
	pos := 0
	lex := css.NewLexer(parse.NewInputString(src))
	for {
		tt, data := lex.Next()
		if tt == css.ErrorToken {
			break
		}
		start, end := pos, pos+len(data)
		switch tt {
		case css.CommentToken:
			blank(b[start:end])
		case css.StringToken, css.BadStringToken:
			inner := end
			if tt == css.StringToken && len(data) >= 2 && data[len(data)-1] == data[0] {
				inner--
			}
			blank(b[start+1 : inner])
		case css.URLToken, css.BadURLToken:
			open := start + bytes.IndexByte(data, '(') + 1
			inner := end
			if data[len(data)-1] == ')' {
				inner--
			}
			if open < inner {
				blank(b[open:inner])
			}
		case css.DelimToken:
			if data[0] == '/' && end < len(src) && src[end] == '/' {
				if nl := strings.IndexByte(src[start:], '\n'); nl >= 0 {
					end = start + nl
				} else {
					end = len(src)
				}
				blank(b[start:end])
				lex = css.NewLexer(parse.NewInputString(src[end:]))
			}
		}
		pos = end
	}
	return string(b)
}

func blank(b []byte) {
	for i, c := range b {
		if c != '\n' {
			b[i] = ' '
		}
	}
}
