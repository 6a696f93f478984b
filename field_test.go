package diskmap_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/diskmap"
	"github.com/hupe1980/diskmap/codec"
	"github.com/hupe1980/diskmap/keys"
)

func TestAttribute(t *testing.T) {
	b := openMemory(t)
	m, err := diskmap.MapByName[string, codec.Doc](b, "docs", 1, keys.String())
	require.NoError(t, err)

	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, m.Put("ada", codec.Doc{
		"name":    "Ada",
		"age":     int64(36),
		"score":   1.5,
		"created": created,
		"tags":    []any{"math", "engines"},
		"address": codec.Doc{"city": "London"},
		"nick":    nil,
	}))
	ref, ok, err := m.RecordReferenceOf("ada")
	require.NoError(t, err)
	require.True(t, ok)

	tests := []struct {
		field diskmap.FieldDescriptor
		want  any
	}{
		{diskmap.FieldDescriptor{Name: "name", Type: diskmap.FieldString}, "Ada"},
		{diskmap.FieldDescriptor{Name: "age", Type: diskmap.FieldInt}, int64(36)},
		{diskmap.FieldDescriptor{Name: "age", Type: diskmap.FieldFloat}, float64(36)},
		{diskmap.FieldDescriptor{Name: "score", Type: diskmap.FieldFloat}, 1.5},
		{diskmap.FieldDescriptor{Name: "created", Type: diskmap.FieldTime}, created},
		{diskmap.FieldDescriptor{Name: "tags", Type: diskmap.FieldList}, []any{"math", "engines"}},
		{diskmap.FieldDescriptor{Name: "address.city", Type: diskmap.FieldString}, "London"},
		{diskmap.FieldDescriptor{Name: "nick", Type: diskmap.FieldString}, nil},
		{diskmap.FieldDescriptor{Name: "age", Type: diskmap.FieldAny}, int64(36)},
	}
	for _, tt := range tests {
		t.Run(tt.field.Name+"/"+tt.field.Type.String(), func(t *testing.T) {
			got, ok, err := m.Attribute(tt.field, ref)
			require.NoError(t, err)
			require.True(t, ok)
			if want, isTime := tt.want.(time.Time); isTime {
				assert.True(t, want.Equal(got.(time.Time)))
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok, err = m.Attribute(diskmap.FieldDescriptor{Name: "missing", Type: diskmap.FieldString}, ref)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = m.Attribute(diskmap.FieldDescriptor{Name: "name", Type: diskmap.FieldInt}, ref)
	var typeErr *diskmap.ErrAttributeType
	require.ErrorAs(t, err, &typeErr)
	assert.Equal(t, "name", typeErr.Field)
	assert.Equal(t, diskmap.FieldInt, typeErr.Expected)
	assert.Equal(t, "string", typeErr.Actual)

	_, _, err = m.Attribute(diskmap.FieldDescriptor{Name: "score", Type: diskmap.FieldInt}, ref)
	require.ErrorAs(t, err, &typeErr)
}

func TestStructuralView(t *testing.T) {
	b := openMemory(t)

	users, err := diskmap.MapByName[string, user](b, "users", diskmap.Ordered, keys.String())
	require.NoError(t, err)
	require.NoError(t, users.Put("ada", user{Name: "Ada", Age: 36}))
	ref, _, err := users.RecordReferenceOf("ada")
	require.NoError(t, err)

	view, ok, err := users.StructuralView(ref)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Ada", view["name"])

	age, ok, err := users.Attribute(diskmap.FieldDescriptor{Name: "age", Type: diskmap.FieldInt}, ref)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(36), age)

	names, err := diskmap.MapByName[string, string](b, "names", diskmap.Ordered, keys.String())
	require.NoError(t, err)
	require.NoError(t, names.Put("k", "plain"))
	ref, _, err = names.RecordReferenceOf("k")
	require.NoError(t, err)
	_, _, err = names.StructuralView(ref)
	assert.ErrorIs(t, err, diskmap.ErrNoStructure)

	_, ok, err = names.StructuralView(0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetByReference_Lifecycle(t *testing.T) {
	b := openMemory(t)
	m, err := diskmap.SkipListMap[string, string](b, "m", keys.String())
	require.NoError(t, err)

	require.NoError(t, m.Put("k", "v1"))
	ref, ok, err := m.RecordReferenceOf("k")
	require.NoError(t, err)
	require.True(t, ok)

	v, ok, err := m.GetByReference(ref)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v1", v)

	// Removing k frees its record; the next record of the same size takes
	// the space, so the old reference now reads the new value.
	_, err = m.Remove("k")
	require.NoError(t, err)
	require.NoError(t, m.Put("j", "x"))

	refJ, ok, err := m.RecordReferenceOf("j")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ref, refJ)

	v, ok, err = m.GetByReference(ref)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "x", v)

	// An overwrite moves the value to a new reference.
	require.NoError(t, m.Put("j", "y"))
	ref2, ok, err := m.RecordReferenceOf("j")
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEqual(t, refJ, ref2)

	v, ok, err = m.GetByReference(ref2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "y", v)

	for _, far := range []uint64{math.MaxUint64 - 7, math.MaxUint64 - 31, 1 << 62} {
		_, ok, err = m.GetByReference(far)
		require.NoError(t, err)
		assert.False(t, ok)
	}
}
