package bytesutil_test

import (
	"strings"
	"testing"

	"github.com/karstnet/karst/encoding/bytesutil"
	"github.com/karstnet/karst/testing/assert"
	"github.com/karstnet/karst/testing/require"
)

func TestToBytes32(t *testing.T) {
	tests := []struct {
		a []byte
		b [32]byte
	}{
		{nil, [32]byte{}},
		{[]byte{0xCA, 0xFE}, [32]byte{0xCA, 0xFE}},
		{[]byte{0xFF, 0x01, 0x02}, [32]byte{0xFF, 0x01, 0x02}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.b, bytesutil.ToBytes32(tt.a))
	}
	long := make([]byte, 40)
	for i := range long {
		long[i] = byte(i)
	}
	got := bytesutil.ToBytes32(long)
	assert.DeepEqual(t, long[:32], got[:])
}

func TestDecodeHex32(t *testing.T) {
	want := [32]byte{0xAB}
	want[31] = 0x01
	got, err := bytesutil.DecodeHex32("ab" + strings.Repeat("00", 30) + "01")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = bytesutil.DecodeHex32("ab")
	require.ErrorIs(t, err, bytesutil.ErrBadHex32)
	_, err = bytesutil.DecodeHex32(strings.Repeat("zz", 32))
	require.ErrorIs(t, err, bytesutil.ErrBadHex32)
}

func TestUint64BigEndianRoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 255, 256, 1 << 32, 1<<63 + 7} {
		b := bytesutil.Uint64ToBytesBigEndian(v)
		require.Equal(t, 8, len(b))
		assert.Equal(t, v, bytesutil.BytesToUint64BigEndian(b))
	}
	assert.Equal(t, uint64(0), bytesutil.BytesToUint64BigEndian([]byte{1, 2}))
}

func TestSafeCopyBytes(t *testing.T) {
	assert.DeepEqual(t, []byte(nil), bytesutil.SafeCopyBytes(nil))
	src := []byte{1, 2, 3}
	cp := bytesutil.SafeCopyBytes(src)
	assert.DeepEqual(t, src, cp)
	cp[0] = 9
	assert.Equal(t, byte(1), src[0])
}

func TestTrunc(t *testing.T) {
	b := [32]byte{0xDE, 0xAD, 0xBE, 0xEF, 0xDE, 0xAD, 0xBE, 0xEF}
	assert.Equal(t, "deadbeefdead...", bytesutil.Trunc(b[:]))
	assert.Equal(t, "dead", bytesutil.Trunc([]byte{0xDE, 0xAD}))
}
