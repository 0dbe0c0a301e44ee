package engine

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ruleunit/internal/ir"
)

type recordingListener struct {
	ops []string
}

func (l *recordingListener) factInserted(id ir.FactID, f ir.Fact) {
	l.ops = append(l.ops, "insert "+id.String())
}

func (l *recordingListener) factRetracted(id ir.FactID, f ir.Fact) {
	l.ops = append(l.ops, "retract "+id.String())
}

func (l *recordingListener) factUpdated(id ir.FactID, old, updated ir.Fact) {
	l.ops = append(l.ops, "update "+id.String())
}

func TestFactStore_InsertAssignsIncreasingIDs(t *testing.T) {
	s := NewFactStore()
	a := s.Insert(measurement("color", "red"))
	b := s.Insert(measurement("color", "green"))

	assert.Equal(t, ir.FactID(1), a)
	assert.Equal(t, ir.FactID(2), b)
	assert.Equal(t, 2, s.Len())
}

func TestFactStore_IDsNeverReused(t *testing.T) {
	s := NewFactStore()
	a := s.Insert(measurement("color", "red"))
	require.True(t, s.Retract(a))

	b := s.Insert(measurement("color", "red"))
	assert.NotEqual(t, a, b)
}

func TestFactStore_InsertWithID(t *testing.T) {
	s := NewFactStore()
	require.NoError(t, s.InsertWithID(10, measurement("color", "red")))

	err := s.InsertWithID(10, measurement("color", "blue"))
	require.Error(t, err)
	assert.True(t, IsDuplicateIdentity(err))

	// Fresh ids continue above the explicit one.
	assert.Equal(t, ir.FactID(11), s.Insert(measurement("color", "green")))

	// A gap below the counter is still free.
	require.NoError(t, s.InsertWithID(5, measurement("color", "blue")))

	require.True(t, s.Retract(5))
	err = s.InsertWithID(5, measurement("color", "blue"))
	assert.True(t, IsDuplicateIdentity(err), "retracted ids stay used")

	err = s.InsertWithID(0, measurement("color", "blue"))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestFactStore_RetractUnknownIsNoop(t *testing.T) {
	s := NewFactStore()
	assert.False(t, s.Retract(99))

	id := s.Insert(measurement("color", "red"))
	assert.True(t, s.Retract(id))
	assert.False(t, s.Retract(id), "second retract is a no-op")
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.Types())
}

func TestFactStore_Update(t *testing.T) {
	s := NewFactStore()
	id := s.Insert(measurement("color", "red"))

	ok, err := s.Update(id, measurement("color", "blue"))
	require.NoError(t, err)
	assert.True(t, ok)

	f, ok := s.Get(id)
	require.True(t, ok)
	assert.Equal(t, ir.String("blue"), f.Fields["value"])

	ok, err = s.Update(42, measurement("color", "blue"))
	require.NoError(t, err)
	assert.False(t, ok, "unknown id")

	_, err = s.Update(id, ir.NewFact("Computer"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestFactStore_ScanOrderAndCopies(t *testing.T) {
	s := NewFactStore()
	require.NoError(t, s.InsertWithID(7, measurement("color", "blue")))
	require.NoError(t, s.InsertWithID(3, measurement("color", "red")))
	s.Insert(ir.NewFact("Computer", ir.F("name", ir.String("alpha"))))

	got := s.Scan("Measurement")
	want := []StoredFact{
		{ID: 3, Fact: measurement("color", "red")},
		{ID: 7, Fact: measurement("color", "blue")},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Scan mismatch (-want +got):\n%s", diff)
	}

	got[0].Fact.Fields["value"] = ir.String("mutated")
	f, _ := s.Get(3)
	assert.Equal(t, ir.String("red"), f.Fields["value"], "scan must return copies")

	all := s.Scan("")
	require.Len(t, all, 3)
	assert.Equal(t, []ir.FactID{3, 7, 8}, []ir.FactID{all[0].ID, all[1].ID, all[2].ID})
	assert.Equal(t, []string{"Computer", "Measurement"}, s.Types())
}

func TestFactStore_InsertCopiesInput(t *testing.T) {
	s := NewFactStore()
	f := measurement("color", "red")
	id := s.Insert(f)
	f.Fields["value"] = ir.String("changed")

	stored, _ := s.Get(id)
	assert.Equal(t, ir.String("red"), stored.Fields["value"])
}

func TestFactStore_NotifiesListener(t *testing.T) {
	s := NewFactStore()
	l := &recordingListener{}
	s.watch(l)

	id := s.Insert(measurement("color", "red"))
	_, _ = s.Update(id, measurement("color", "blue"))
	s.Retract(id)
	s.Retract(id)
	_, _ = s.Update(id, measurement("color", "blue"))

	assert.Equal(t, []string{"insert #1", "update #1", "retract #1"}, l.ops)
}
