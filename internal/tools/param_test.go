package tools

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoerce_Numbers(t *testing.T) {
	p := Param{Name: "probability", Type: TypeInteger, Min: ptr(0.0), Max: ptr(100.0)}

	v, err := p.Coerce("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	v, err = p.Coerce(float64(7))
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)

	_, err = p.Coerce(4.5)
	assert.ErrorContains(t, err, "integer")

	_, err = p.Coerce(101)
	assert.ErrorContains(t, err, "<= 100")

	_, err = p.Coerce("many")
	assert.ErrorContains(t, err, "number")

	amount := Param{Name: "amount", Type: TypeNumber}
	v, err = amount.Coerce("12.50")
	require.NoError(t, err)
	assert.Equal(t, 12.5, v)
}

func TestCoerce_Clamp(t *testing.T) {
	limit := ControlParams("Contact")[1]
	require.Equal(t, ParamLimit, limit.Name)

	v, err := limit.Coerce(500)
	require.NoError(t, err)
	assert.Equal(t, int64(MaxLimit), v)

	v, err = limit.Coerce("0")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestCoerce_IntegerOverflow(t *testing.T) {
	offset := ControlParams("Contact")[2]
	require.Equal(t, ParamOffset, offset.Name)

	v, err := offset.Coerce(math.MaxFloat64 / 2)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), v)

	v, err = offset.Coerce("1e19")
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), v)

	age := Param{Name: "age", Type: TypeInteger}
	_, err = age.Coerce(math.MaxFloat64 / 2)
	assert.ErrorContains(t, err, "at most")

	_, err = age.Coerce(-1e19)
	assert.ErrorContains(t, err, "at least")

	_, err = age.Coerce(math.Inf(1))
	assert.Error(t, err)

	v, err = age.Coerce(float64(1 << 53))
	require.NoError(t, err)
	assert.Equal(t, int64(1<<53), v)
}

func TestCoerce_Boolean(t *testing.T) {
	p := Param{Name: "doNotCall", Type: TypeBoolean}

	v, err := p.Coerce("true")
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = p.Coerce("FALSE")
	require.NoError(t, err)
	assert.Equal(t, false, v)

	_, err = p.Coerce("yes")
	assert.Error(t, err)
}

func TestCoerce_Strings(t *testing.T) {
	status := Param{Name: "status", Type: TypeString, Enum: []string{"New", "Assigned"}}
	_, err := status.Coerce("Closed")
	assert.ErrorContains(t, err, "must be one of")

	v, err := status.Coerce("New")
	require.NoError(t, err)
	assert.Equal(t, "New", v)

	code := Param{Name: "code", Type: TypeString, MaxLength: ptr(3)}
	_, err = code.Coerce("ABCD")
	assert.ErrorContains(t, err, "at most 3")

	date := Param{Name: "closeDate", Type: TypeString, Pattern: DatePattern}
	_, err = date.Coerce("31/01/2024")
	assert.ErrorContains(t, err, "YYYY-MM-DD")
	v, err = date.Coerce("2024-01-31")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-31", v)

	id := Param{Name: "accountId", Type: TypeString}
	v, err = id.Coerce(float64(12))
	require.NoError(t, err)
	assert.Equal(t, "12", v)

	_, err = id.Coerce(map[string]any{"x": 1})
	assert.Error(t, err)
}

func TestCoerce_Arrays(t *testing.T) {
	tags := Param{Name: "tags", Type: TypeArray, Items: TypeString, Enum: []string{"hot", "cold"}}

	v, err := tags.Coerce("hot")
	require.NoError(t, err)
	assert.Equal(t, []any{"hot"}, v)

	v, err = tags.Coerce([]any{"hot", "cold"})
	require.NoError(t, err)
	assert.Equal(t, []any{"hot", "cold"}, v)

	_, err = tags.Coerce([]any{"warm"})
	assert.Error(t, err)
}

func TestParam_Property(t *testing.T) {
	tags := Param{Name: "tags", Type: TypeArray, Items: TypeString, Enum: []string{"a"}, Description: "Tags"}
	prop := tags.Property()
	assert.Equal(t, TypeArray, prop.Type)
	assert.Nil(t, prop.Enum)
	require.NotNil(t, prop.Items)
	assert.Equal(t, []string{"a"}, prop.Items.Enum)
}
