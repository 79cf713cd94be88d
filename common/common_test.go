package common_test

import (
	"testing"
	"time"

	"github.com/rohithreddy/voltdb/common"
	"github.com/stretchr/testify/require"
)

func TestByteSliceMap(t *testing.T) {
	bsl := common.NewByteSliceMap()
	k := []byte("somekey")
	v := []byte("somevalue")
	bsl.Put(k, v)

	v2, ok := bsl.Get(k)
	require.True(t, ok)
	require.Equal(t, "somevalue", string(v2))

	_, ok = bsl.Get([]byte("not_exists"))
	require.False(t, ok)

	bsl.Delete(k)
	_, ok = bsl.Get(k)
	require.False(t, ok)
	require.Equal(t, 0, bsl.Len())
}

func TestByteSliceToStringZeroCopy(t *testing.T) {
	b1 := []byte("string1")
	b2 := []byte("")

	require.Equal(t, "string1", common.ByteSliceToStringZeroCopy(b1))
	require.Equal(t, "", common.ByteSliceToStringZeroCopy(b2))
}

func TestStringToByteSliceZeroCopy(t *testing.T) {
	require.Equal(t, "string1", string(common.StringToByteSliceZeroCopy("string1")))
	require.Equal(t, []byte{}, common.StringToByteSliceZeroCopy(""))
}

func TestAtomicBool(t *testing.T) {
	var b common.AtomicBool
	require.False(t, b.Get())
	b.Set(true)
	require.True(t, b.Get())
	require.True(t, b.CompareAndSet(true, false))
	require.False(t, b.Get())
	require.False(t, b.CompareAndSet(true, false))
}

func TestDefaultCoercerHappyPath(t *testing.T) {
	c := common.DefaultCoercer{}

	v, err := c.Coerce(int64(42), common.ColumnType{Type: common.TypeBigInt})
	require.NoError(t, err)
	require.Equal(t, int64(42), v)

	v, err = c.Coerce("42", common.ColumnType{Type: common.TypeInt})
	require.NoError(t, err)
	require.Equal(t, int64(42), v)

	v, err = c.Coerce("hello", common.ColumnType{Type: common.TypeVarchar})
	require.NoError(t, err)
	require.Equal(t, "hello", v)
}

func TestDefaultCoercerFailure(t *testing.T) {
	c := common.DefaultCoercer{}
	_, err := c.Coerce("not-an-int", common.ColumnType{Type: common.TypeInt})
	require.Error(t, err)
	var ce *common.CoercionError
	require.ErrorAs(t, err, &ce)
}

func TestDecimalString(t *testing.T) {
	d := common.Decimal{Unscaled: 12345, Scale: 2}
	require.Equal(t, "123.45", d.String())

	d = common.Decimal{Unscaled: -500, Scale: 2}
	require.Equal(t, "-5.00", d.String())
}

func TestEncodePartitionKeyValue(t *testing.T) {
	b, err := common.EncodePartitionKeyValue(int64(7), common.ColumnType{Type: common.TypeBigInt})
	require.NoError(t, err)
	require.Len(t, b, 8)

	_, err = common.EncodePartitionKeyValue(7.5, common.ColumnType{Type: common.TypeBigInt})
	require.Error(t, err)

	_, err = common.EncodePartitionKeyValue(time.Now(), common.ColumnType{Type: common.TypeTimestamp})
	require.NoError(t, err)
}
