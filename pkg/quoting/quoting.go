// Package quoting implements the RouterOS command line grammar: splitting a
// command line into argument tokens and quoting tokens back into a line.
//
// The escape dialect is the one spoken by the RouterOS CLI. Note that `\f`
// decodes to byte 0xFF and not to a form feed.
package quoting

import (
	"fmt"
	"strings"
)

// ParseError reports a grammar violation. The message is meant to be shown
// to the user verbatim.
type ParseError struct {
	Msg string
}

func (e *ParseError) Error() string {
	return e.Msg
}

func parseErrorf(format string, args ...any) *ParseError {
	return &ParseError{Msg: fmt.Sprintf(format, args...)}
}

// escapeSequences maps the byte following a backslash to the literal byte.
var escapeSequences = map[byte]byte{
	'"':  '"',
	'\\': '\\',
	'?':  '?',
	'$':  '$',
	'_':  ' ',
	'a':  '\a',
	'b':  '\b',
	'f':  0xFF,
	'n':  '\n',
	'r':  '\r',
	't':  '\t',
	'v':  '\v',
}

// escapeSequencesReversed maps a literal byte to its escape letter.
var escapeSequencesReversed = func() map[byte]byte {
	m := make(map[byte]byte, len(escapeSequences))
	for k, v := range escapeSequences {
		m[v] = k
	}
	return m
}()

const escapeDigits = "0123456789ABCDEF"

// splitState is the position of the splitter relative to the current token.
type splitState int

const (
	stateOutside                  splitState = iota // between tokens
	stateParamBeforeEquals                          // inside a token, no '=' seen yet
	stateParamAfterEqualsUnquoted                   // after '=', value not quoted
	stateParamAfterEqualsQuoted                     // after '="', until closing quote
)

func (s splitState) String() string {
	switch s {
	case stateOutside:
		return "outside"
	case stateParamBeforeEquals:
		return "param-before-equals"
	case stateParamAfterEqualsUnquoted:
		return "param-after-equals"
	case stateParamAfterEqualsQuoted:
		return "param-after-equals-quoted"
	default:
		return "unknown"
	}
}

// splitter walks a command line byte by byte.
type splitter struct {
	line    string
	pos     int
	state   splitState
	current []byte
	result  []string
}

// Split decodes a command line into its argument tokens. Quotes around
// values are removed and escape sequences are resolved.
func Split(line string) ([]string, error) {
	s := &splitter{line: line, result: []string{}}
	if err := s.run(); err != nil {
		return nil, err
	}
	return s.result, nil
}

func (s *splitter) emit() {
	s.result = append(s.result, string(s.current))
	s.current = s.current[:0]
}

func (s *splitter) run() error {
	length := len(s.line)
	for s.pos < length {
		ch := s.line[s.pos]
		s.pos++

		switch {
		case ch == ' ' && s.state == stateOutside:
			// skip

		case ch == ' ' && (s.state == stateParamBeforeEquals || s.state == stateParamAfterEqualsUnquoted):
			s.state = stateOutside
			s.emit()

		case ch == '=' && s.state == stateParamBeforeEquals:
			s.state = stateParamAfterEqualsUnquoted
			s.current = append(s.current, ch)
			// An opening quote is only recognised when something follows it.
			if s.pos+1 < length && s.line[s.pos] == '"' {
				s.state = stateParamAfterEqualsQuoted
				s.pos++
			}

		case ch == '"':
			if s.state != stateParamAfterEqualsQuoted {
				return parseErrorf(`'"' must follow '='`)
			}
			s.state = stateOutside
			s.emit()
			if s.pos+1 < length && s.line[s.pos] != ' ' {
				return parseErrorf(`Ending '"' must be followed by space or end of string`)
			}

		case ch == '\\':
			if err := s.escape(); err != nil {
				return err
			}

		default:
			if s.state == stateOutside {
				s.state = stateParamBeforeEquals
			}
			s.current = append(s.current, ch)
		}
	}

	switch s.state {
	case stateParamBeforeEquals, stateParamAfterEqualsUnquoted:
		if len(s.current) > 0 {
			s.emit()
		}
	case stateParamAfterEqualsQuoted:
		return parseErrorf("Unexpected end of string during escaped parameter")
	}
	return nil
}

// escape consumes the sequence after a backslash. The state is left as is,
// so an escape at the start of a token does not open it.
func (s *splitter) escape() error {
	length := len(s.line)
	if s.pos+1 > length {
		return parseErrorf(`'\' must not be at the end of the line`)
	}
	ch := s.line[s.pos]
	s.pos++
	if lit, ok := escapeSequences[ch]; ok {
		s.current = append(s.current, lit)
		return nil
	}

	d1 := strings.IndexByte(escapeDigits, ch)
	if d1 < 0 {
		return parseErrorf(`Invalid escape sequence '\%c'`, ch)
	}
	if s.pos+1 > length {
		return parseErrorf("Hex escape sequence cut off at end of line")
	}
	ch2 := s.line[s.pos]
	s.pos++
	d2 := strings.IndexByte(escapeDigits, ch2)
	if d2 < 0 {
		return parseErrorf(`Invalid hex escape sequence '\%c%c'`, ch, ch2)
	}
	s.current = append(s.current, byte(d1*16+d2))
	return nil
}

// QuoteValue encodes a value so that Split returns it unchanged when it is
// used as the right-hand side of a key=value token.
func QuoteValue(value string) string {
	var b strings.Builder
	quote := false
	for i := 0; i < len(value); i++ {
		ch := value[i]
		if esc, ok := escapeSequencesReversed[ch]; ok {
			b.WriteByte('\\')
			b.WriteByte(esc)
			quote = true
			continue
		}
		if ch < 0x20 {
			b.WriteByte('\\')
			b.WriteByte(escapeDigits[ch/16])
			b.WriteByte(escapeDigits[ch%16])
			quote = true
			continue
		}
		switch ch {
		case ' ', '=', ';', '\'':
			quote = true
		}
		b.WriteByte(ch)
	}
	out := b.String()
	if quote || out == "" {
		out = `"` + out + `"`
	}
	return out
}

func checkAttribute(attr string) error {
	if strings.Contains(attr, " ") {
		return parseErrorf("Attribute names must not contain spaces")
	}
	return nil
}

// QuoteArgument encodes a single argument. Bare words are returned as is;
// for key=value arguments only the value is quoted.
func QuoteArgument(arg string) (string, error) {
	attr, value, ok := strings.Cut(arg, "=")
	if !ok {
		if err := checkAttribute(arg); err != nil {
			return "", err
		}
		return arg, nil
	}
	if err := checkAttribute(attr); err != nil {
		return "", err
	}
	return attr + "=" + QuoteValue(value), nil
}

// Join quotes every argument and joins them with single spaces.
func Join(args []string) (string, error) {
	quoted := make([]string, 0, len(args))
	for _, arg := range args {
		q, err := QuoteArgument(arg)
		if err != nil {
			return "", err
		}
		quoted = append(quoted, q)
	}
	return strings.Join(quoted, " "), nil
}

// ToRecord converts key=value tokens into a map. A token without '=' is
// rejected when requireAssignment is set and stored with a nil value
// otherwise. With skipEmptyValues, key= tokens are dropped.
func ToRecord(tokens []string, requireAssignment, skipEmptyValues bool) (map[string]*string, error) {
	out := make(map[string]*string, len(tokens))
	for _, tok := range tokens {
		key, value, ok := strings.Cut(tok, "=")
		if !ok {
			if requireAssignment {
				return nil, parseErrorf("missing '=' after '%s'", tok)
			}
			out[tok] = nil
			continue
		}
		if skipEmptyValues && value == "" {
			continue
		}
		out[key] = &value
	}
	return out, nil
}
