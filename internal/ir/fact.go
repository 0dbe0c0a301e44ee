package ir

import "strconv"

// FactID is the opaque identity the fact store assigns at insertion.
// It is stable across updates and never reused after retraction.
type FactID int64

func (id FactID) String() string {
	return "#" + strconv.FormatInt(int64(id), 10)
}

// Fact is a typed record known to the engine.
type Fact struct {
	Type   string `json:"type"`
	Fields Fields `json:"fields"`
}

// Pair is a field name and value for Fact construction.
type Pair struct {
	Key   string
	Value Value
}

// F is shorthand for Pair.
// Example: NewFact("Measurement", F("key", String("color")), F("value", String("red")))
func F(key string, value Value) Pair {
	return Pair{Key: key, Value: value}
}

// NewFact builds a fact from typed pairs.
func NewFact(typ string, pairs ...Pair) Fact {
	fields := make(Fields, len(pairs))
	for _, p := range pairs {
		fields[p.Key] = p.Value
	}
	return Fact{Type: typ, Fields: fields}
}

// Get returns a field value. Missing fields report false.
func (f Fact) Get(field string) (Value, bool) {
	v, ok := f.Fields[field]
	return v, ok
}

// Clone copies the fact so the store never shares field maps with callers.
func (f Fact) Clone() Fact {
	return Fact{Type: f.Type, Fields: f.Fields.Clone()}
}

// With returns a copy of the fact with one field replaced.
func (f Fact) With(field string, v Value) Fact {
	c := f.Clone()
	c.Fields[field] = v
	return c
}

// Binding assigns pattern variables to values and fact variables to facts.
type Binding struct {
	Vars  Fields            `json:"vars"`
	Facts map[string]FactID `json:"facts"`
}

// NewBinding returns an empty binding.
func NewBinding() Binding {
	return Binding{Vars: Fields{}, Facts: map[string]FactID{}}
}

// Clone copies both maps.
func (b Binding) Clone() Binding {
	facts := make(map[string]FactID, len(b.Facts))
	for k, v := range b.Facts {
		facts[k] = v
	}
	return Binding{Vars: b.Vars.Clone(), Facts: facts}
}

// Var looks up a variable.
func (b Binding) Var(name string) (Value, bool) {
	v, ok := b.Vars[name]
	return v, ok
}
