// Package catalog holds the symbol lists used as rotating test fixtures.
//
// Each list owns a cursor. Taking an entry returns the entry under the
// cursor and moves the cursor one step, wrapping at the end of the list.
// The caller advances the cursor before it knows how the operation on the
// entry turns out, so a failing operation still consumes its slot.
package catalog

import (
	"errors"
	"slices"
)

// ErrEmpty is returned when an entry is taken from an empty list.
var ErrEmpty = errors.New("catalog list is empty")

// Symbol is a named process variable. Only entries of the write lists carry
// a Value.
type Symbol struct {
	Name  string `yaml:"name" toml:"name" json:"name"`
	Value any    `yaml:"value,omitempty" toml:"value,omitempty" json:"value,omitempty"`
}

// HasValue reports whether the symbol carries a value to write.
func (s Symbol) HasValue() bool {
	return s.Value != nil
}

// Rotation is a fixed list with a wrap-around cursor.
type Rotation[T any] struct {
	items  []T
	cursor int
	clone  func(T) T
}

// NewRotation copies items into a new rotation with the cursor at 0.
// clone, if non-nil, is applied to entries going in and coming out so that
// callers never share memory with the list.
func NewRotation[T any](items []T, clone func(T) T) *Rotation[T] {
	r := &Rotation[T]{items: make([]T, len(items)), clone: clone}
	for i, it := range items {
		r.items[i] = r.copy(it)
	}
	return r
}

// Len returns the number of entries.
func (r *Rotation[T]) Len() int {
	return len(r.items)
}

// Cursor returns the index of the entry the next Take returns.
func (r *Rotation[T]) Cursor() int {
	return r.cursor
}

// Peek returns the entry under the cursor without moving it.
func (r *Rotation[T]) Peek() (T, error) {
	if len(r.items) == 0 {
		var zero T
		return zero, ErrEmpty
	}
	return r.copy(r.items[r.cursor]), nil
}

// Take returns the entry under the cursor and advances the cursor.
func (r *Rotation[T]) Take() (T, error) {
	item, err := r.Peek()
	if err != nil {
		return item, err
	}
	r.cursor = Advance(r.cursor, len(r.items))
	return item, nil
}

func (r *Rotation[T]) copy(item T) T {
	if r.clone == nil {
		return item
	}
	return r.clone(item)
}

// Advance moves a cursor one step through a list of the given length.
func Advance(cursor, length int) int {
	if length <= 0 {
		return 0
	}
	return (cursor + 1) % length
}

// Kind names one of the four catalogs.
type Kind int

const (
	KindRead Kind = iota
	KindReadMulti
	KindWrite
	KindWriteMulti
)

// String returns the settings key of the catalog.
func (k Kind) String() string {
	switch k {
	case KindRead:
		return "read"
	case KindReadMulti:
		return "readmulti"
	case KindWrite:
		return "write"
	case KindWriteMulti:
		return "writemulti"
	default:
		return "unknown"
	}
}

// Catalog groups the four independent lists.
type Catalog struct {
	Read       *Rotation[Symbol]
	ReadMulti  *Rotation[[]Symbol]
	Write      *Rotation[Symbol]
	WriteMulti *Rotation[[]Symbol]
}

// New builds a catalog. Values on read entries are dropped so that only
// write entries ever carry one.
func New(read []Symbol, readMulti [][]Symbol, write []Symbol, writeMulti [][]Symbol) *Catalog {
	nameOnly := func(s Symbol) Symbol { return Symbol{Name: s.Name} }
	nameOnlyGroup := func(g []Symbol) []Symbol {
		out := make([]Symbol, len(g))
		for i, s := range g {
			out[i] = nameOnly(s)
		}
		return out
	}
	return &Catalog{
		Read:       NewRotation(read, nameOnly),
		ReadMulti:  NewRotation(readMulti, nameOnlyGroup),
		Write:      NewRotation(write, nil),
		WriteMulti: NewRotation(writeMulti, func(g []Symbol) []Symbol { return slices.Clone(g) }),
	}
}

// Cursors is a snapshot of the four cursor positions.
type Cursors struct {
	Read       int
	ReadMulti  int
	Write      int
	WriteMulti int
}

// Cursors returns the current cursor positions.
func (c *Catalog) Cursors() Cursors {
	return Cursors{
		Read:       c.Read.Cursor(),
		ReadMulti:  c.ReadMulti.Cursor(),
		Write:      c.Write.Cursor(),
		WriteMulti: c.WriteMulti.Cursor(),
	}
}

// Symbols returns every distinct symbol name with the first value seen for
// it, in catalog order. Useful for seeding a simulated target.
func (c *Catalog) Symbols() []Symbol {
	var out []Symbol
	index := make(map[string]int)
	add := func(s Symbol) {
		if i, ok := index[s.Name]; ok {
			if out[i].Value == nil {
				out[i].Value = s.Value
			}
			return
		}
		index[s.Name] = len(out)
		out = append(out, s)
	}
	for _, s := range c.Read.items {
		add(s)
	}
	for _, g := range c.ReadMulti.items {
		for _, s := range g {
			add(s)
		}
	}
	for _, s := range c.Write.items {
		add(s)
	}
	for _, g := range c.WriteMulti.items {
		for _, s := range g {
			add(s)
		}
	}
	return out
}
