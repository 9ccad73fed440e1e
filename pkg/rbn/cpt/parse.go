package cpt

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sfu-cl-lab/our-papers/pkg/rbn/internalerr"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/literal"
)

// ParseRule reads a conditional probability rule:
//
//	P(g(X)=W | g(Y)=W, F(X,Y)=T) = 0.7
//	P(g(Y)=M) = 0.5
//
// Parents keep their written order.
func ParseRule(s string) (CP, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "P(") {
		return CP{}, fmt.Errorf("%w: rule must start with P(: %s", internalerr.ErrInvalidInput, s)
	}

	depth, end := 0, -1
	for i := 1; i < len(s) && end < 0; i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				end = i
			}
		}
	}
	if end < 0 {
		return CP{}, fmt.Errorf("%w: unbalanced parentheses: %s", internalerr.ErrInvalidInput, s)
	}

	rest := strings.TrimSpace(s[end+1:])
	if !strings.HasPrefix(rest, "=") {
		return CP{}, fmt.Errorf("%w: missing '= probability': %s", internalerr.ErrInvalidInput, s)
	}
	prob, err := strconv.ParseFloat(strings.TrimSpace(rest[1:]), 64)
	if err != nil {
		return CP{}, fmt.Errorf("%w: probability: %v", internalerr.ErrInvalidInput, err)
	}
	if prob < 0 || prob > 1 {
		return CP{}, fmt.Errorf("%w: probability %v outside [0,1]", internalerr.ErrInvalidInput, prob)
	}

	body := s[2:end]
	childText, parentText := body, ""
	if bar := strings.Index(body, "|"); bar >= 0 {
		childText, parentText = body[:bar], body[bar+1:]
	}

	child, err := literal.Parse(childText)
	if err != nil {
		return CP{}, fmt.Errorf("rule %s: %w", s, err)
	}
	parents, err := literal.ParseList(parentText)
	if err != nil {
		return CP{}, fmt.Errorf("rule %s: %w", s, err)
	}
	if !child.Value.IsBound() {
		return CP{}, fmt.Errorf("%w: rule child %s has no value", internalerr.ErrInvalidInput, child)
	}
	for _, p := range parents {
		if !p.Value.IsBound() {
			return CP{}, fmt.Errorf("%w: rule parent %s has no value", internalerr.ErrInvalidInput, p)
		}
	}
	return CP{Child: child, Parents: parents, Prob: prob}, nil
}

// ParseRules reads one rule per entry. Blank entries and entries starting
// with '#' are skipped.
func ParseRules(lines []string) ([]CP, error) {
	var out []CP
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		cp, err := ParseRule(line)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i+1, err)
		}
		out = append(out, cp)
	}
	return out, nil
}
