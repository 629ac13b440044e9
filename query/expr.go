package query

import (
	"fmt"
	"strings"
)

// Mode is one of the seven per-term search modes.
type Mode int

const (
	ModeSubstring Mode = iota
	ModePrefix
	ModeSuffix
	ModeFull
	ModeToken
	ModeTokenPrefix
	ModeTokenSuffix
)

func (m Mode) String() string {
	switch m {
	case ModeSubstring:
		return "substring"
	case ModePrefix:
		return "prefix"
	case ModeSuffix:
		return "suffix"
	case ModeFull:
		return "full"
	case ModeToken:
		return "token"
	case ModeTokenPrefix:
		return "token-prefix"
	case ModeTokenSuffix:
		return "token-suffix"
	default:
		return "unknown"
	}
}

// Term is one parsed operand of a compound expression: a word and the
// mode it should be searched under.
type Term struct {
	Word string
	Mode Mode
}

// Expr is a parsed compound expression: terms[0] op[0] terms[1] op[1] ...
// ops[i] connects terms[i] and terms[i+1] and is one of "&&", "||", "!!".
type Expr struct {
	Terms []Term
	Ops   []string
}

// Parse parses the §6 grammar:
//
//	expr   := term ( op term )*
//	op     := "&&" | "||" | "!!"
//	term   := quoted | bracket | bare
//	quoted := '"' (… with "" as literal quote …) '"'
//	bracket:= "[[" "*"? bare "*"? "]]"   |   "[[[[" bare   |   bare "]]]]"
//	bare   := [^ "]+
func Parse(expr string) (*Expr, error) {
	runes := []rune(expr)
	i := 0
	skipSpace := func() {
		for i < len(runes) && runes[i] == ' ' {
			i++
		}
	}

	skipSpace()
	if i >= len(runes) {
		return nil, fmt.Errorf("query: empty expression")
	}

	var out Expr
	term, err := parseTerm(runes, &i)
	if err != nil {
		return nil, err
	}
	out.Terms = append(out.Terms, term)

	for {
		skipSpace()
		if i >= len(runes) {
			break
		}
		op, err := parseOp(runes, &i)
		if err != nil {
			return nil, err
		}
		skipSpace()
		term, err := parseTerm(runes, &i)
		if err != nil {
			return nil, err
		}
		out.Ops = append(out.Ops, op)
		out.Terms = append(out.Terms, term)
	}
	return &out, nil
}

func parseOp(runes []rune, i *int) (string, error) {
	if *i+2 > len(runes) {
		return "", fmt.Errorf("query: truncated operator at position %d", *i)
	}
	op := string(runes[*i : *i+2])
	switch op {
	case "&&", "||", "!!":
		*i += 2
		return op, nil
	default:
		return "", fmt.Errorf("query: unknown operator %q at position %d", op, *i)
	}
}

func parseTerm(runes []rune, i *int) (Term, error) {
	if *i >= len(runes) {
		return Term{}, fmt.Errorf("query: expected term at position %d", *i)
	}
	switch {
	case runes[*i] == '"':
		return parseQuoted(runes, i)
	case hasAt(runes, *i, "[[[["):
		return parseForcedPrefix(runes, i)
	case hasAt(runes, *i, "[["):
		return parseBracket(runes, i)
	default:
		return parseBare(runes, i)
	}
}

func hasAt(runes []rune, i int, s string) bool {
	sr := []rune(s)
	if i+len(sr) > len(runes) {
		return false
	}
	for k, r := range sr {
		if runes[i+k] != r {
			return false
		}
	}
	return true
}

// parseQuoted consumes a "..." term, with "" as an escaped literal quote,
// selecting substring mode.
func parseQuoted(runes []rune, i *int) (Term, error) {
	*i++ // opening quote
	var sb strings.Builder
	for *i < len(runes) {
		if runes[*i] == '"' {
			if *i+1 < len(runes) && runes[*i+1] == '"' {
				sb.WriteRune('"')
				*i += 2
				continue
			}
			*i++ // closing quote
			return Term{Word: sb.String(), Mode: ModeSubstring}, nil
		}
		sb.WriteRune(runes[*i])
		*i++
	}
	return Term{}, fmt.Errorf("query: unterminated quoted term")
}

// parseForcedPrefix consumes "[[[[word]]" (or "]]]]"), forcing prefix
// mode regardless of internal '*' markers.
func parseForcedPrefix(runes []rune, i *int) (Term, error) {
	*i += 4 // "[[[["
	start := *i
	for *i < len(runes) && runes[*i] != ']' {
		*i++
	}
	word := string(runes[start:*i])
	for *i < len(runes) && runes[*i] == ']' {
		*i++
	}
	return Term{Word: word, Mode: ModePrefix}, nil
}

// parseBracket consumes "[[" "*"? bare "*"? "]]", or the "bare ]]]]"
// suffix-forcing variant when the content inside turns out to end with
// two extra closing brackets.
func parseBracket(runes []rune, i *int) (Term, error) {
	*i += 2 // "[["
	start := *i
	for *i < len(runes) && runes[*i] != ']' {
		*i++
	}
	inner := string(runes[start:*i])

	closing := 0
	for *i < len(runes) && runes[*i] == ']' {
		*i++
		closing++
	}
	if closing >= 4 {
		// "[[" bare "]]]]" -- forced suffix.
		return Term{Word: strings.Trim(inner, "*"), Mode: ModeSuffix}, nil
	}

	leadingStar := strings.HasPrefix(inner, "*")
	trailingStar := strings.HasSuffix(inner, "*")
	word := strings.Trim(inner, "*")
	switch {
	case leadingStar && trailingStar:
		return Term{Word: word, Mode: ModeSubstring}, nil
	case trailingStar:
		return Term{Word: word, Mode: ModeTokenPrefix}, nil
	case leadingStar:
		return Term{Word: word, Mode: ModeTokenSuffix}, nil
	default:
		return Term{Word: word, Mode: ModeToken}, nil
	}
}

// parseBare consumes a bare token (no surrounding quotes/brackets),
// defaulting to full-word mode unless it ends with "]]]]", which forces
// suffix mode per the grammar's second bracket alternative.
func parseBare(runes []rune, i *int) (Term, error) {
	start := *i
	for *i < len(runes) && runes[*i] != ' ' {
		*i++
	}
	word := string(runes[start:*i])
	if strings.HasSuffix(word, "]]]]") {
		return Term{Word: strings.TrimSuffix(word, "]]]]"), Mode: ModeSuffix}, nil
	}
	if word == "" {
		return Term{}, fmt.Errorf("query: empty bare term at position %d", start)
	}
	return Term{Word: word, Mode: ModeFull}, nil
}

// Eval folds per-term result sets left to right: "&&" intersects, "||"
// unions, "!!" subtracts. fetch resolves a single Term into its
// matching ID set.
func Eval(expr *Expr, fetch func(Term) ([]uint64, error)) ([]uint64, error) {
	if len(expr.Terms) == 0 {
		return nil, nil
	}
	acc, err := fetch(expr.Terms[0])
	if err != nil {
		return nil, err
	}
	for idx, op := range expr.Ops {
		next, err := fetch(expr.Terms[idx+1])
		if err != nil {
			return nil, err
		}
		switch op {
		case "&&":
			acc = Intersect2(acc, next)
		case "||":
			acc = Union(acc, next)
		case "!!":
			acc = Difference(acc, next)
		default:
			return nil, fmt.Errorf("query: unknown operator %q", op)
		}
	}
	return acc, nil
}
