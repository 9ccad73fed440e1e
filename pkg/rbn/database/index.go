package database

import (
	"github.com/google/btree"

	"github.com/sfu-cl-lab/our-papers/pkg/rbn/literal"
)

// factItem values are stored in the fact index. Items are ordered by term
// (functor, then arguments); the value does not take part in the order, so
// a probe built from an unbound term finds the stored fact.
type factItem struct {
	lit literal.Literal
}

// Less is needed to order the btree.
func (item factItem) Less(other btree.Item) bool {
	return item.lit.CompareTerm(other.(factItem).lit) < 0
}

// factIndex holds ground facts keyed by term.
type factIndex struct {
	tree *btree.BTree
}

func newFactIndex() *factIndex {
	return &factIndex{tree: btree.New(16)}
}

// insert adds a fact. It returns the previously stored fact for the same
// term, if any, without replacing it.
func (x *factIndex) insert(l literal.Literal) (literal.Literal, bool) {
	if prev := x.tree.Get(factItem{lit: l}); prev != nil {
		return prev.(factItem).lit, true
	}
	x.tree.ReplaceOrInsert(factItem{lit: l})
	return literal.Literal{}, false
}

func (x *factIndex) get(term literal.Literal) (literal.Literal, bool) {
	item := x.tree.Get(factItem{lit: term})
	if item == nil {
		return literal.Literal{}, false
	}
	return item.(factItem).lit, true
}

// forFunctor visits every fact of a functor in argument order. Returning
// false from fn stops the scan.
func (x *factIndex) forFunctor(functor string, fn func(literal.Literal) bool) {
	x.tree.AscendGreaterOrEqual(factItem{lit: literal.Literal{Functor: functor}}, func(i btree.Item) bool {
		l := i.(factItem).lit
		if l.Functor != functor {
			return false // past the functor's key range
		}
		return fn(l)
	})
}

// ascend visits every fact in term order.
func (x *factIndex) ascend(fn func(literal.Literal) bool) {
	x.tree.Ascend(func(i btree.Item) bool {
		return fn(i.(factItem).lit)
	})
}

func (x *factIndex) len() int { return x.tree.Len() }
