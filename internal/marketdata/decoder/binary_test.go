package decoder

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/hft-core/internal/hft/fixedpoint"
)

func i8byte(v int8) byte {
	return byte(v)
}

func newTestBinary() *Binary {
	return NewBinary(fixedpoint.DefaultPrecision(), newTestJSON(), zap.NewNop())
}

func writeHeader(buf *bytes.Buffer, templateID uint16) {
	binary.Write(buf, binary.LittleEndian, uint16(0)) // blockLength, unused by decoder
	binary.Write(buf, binary.LittleEndian, templateID)
	binary.Write(buf, binary.LittleEndian, uint16(1)) // schemaID
	binary.Write(buf, binary.LittleEndian, uint16(1)) // version
}

func TestDecodeMantissaScaledMatchesFloatSemantics(t *testing.T) {
	// 2712345678 * 10^-8 = 27.12345678, scaled to PriceScale 10^6 and
	// truncated => 27.123456 * 10^6
	got := decodeMantissaScaled(2712345678, -8, fixedpoint.DefaultPriceScale)
	require.Equal(t, int64(27123456), got)
}

func TestBinaryDecodeDepthSnapshot(t *testing.T) {
	var buf bytes.Buffer
	writeHeader(&buf, templateDepthSnapshot)

	binary.Write(&buf, binary.LittleEndian, int64(1000)) // eventTime
	binary.Write(&buf, binary.LittleEndian, int64(42))   // bookUpdateId
	buf.WriteByte(i8byte(-2))                        // priceExponent
	buf.WriteByte(i8byte(-8))                         // qtyExponent

	// bids group: 1 level, blockLength=16
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, int64(2700050)) // price mantissa, exp -2 -> 27000.50
	binary.Write(&buf, binary.LittleEndian, int64(100000000)) // qty mantissa, exp -8 -> 1.0

	// asks group: empty
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	binary.Write(&buf, binary.LittleEndian, uint16(0))

	symbol := "BTCUSDT"
	buf.WriteByte(byte(len(symbol)))
	buf.WriteString(symbol)

	d := newTestBinary()
	msg := d.Decode(buf.Bytes())
	require.Equal(t, KindDepthSnapshot, msg.Kind())
	snap, ok := msg.DepthSnapshot()
	require.True(t, ok)
	require.Equal(t, "BTCUSDT", snap.Symbol)
	require.Equal(t, int64(42), snap.LastUpdateID)
	require.Len(t, snap.Bids, 1)
	require.Empty(t, snap.Asks)
	require.Equal(t, fixedpoint.Price(27000_500000), snap.Bids[0].Price)
	require.Equal(t, fixedpoint.Qty(1_00000000), snap.Bids[0].Qty)
}

func TestBinaryDecodeConnectedSentinelReturnsNone(t *testing.T) {
	d := newTestBinary()
	msg := d.Decode([]byte("__CONNECTED__"))
	require.Equal(t, KindNone, msg.Kind())
}

func TestBinaryDecodeUnknownTemplateFallsBack(t *testing.T) {
	// Not actually SBE-framed: a plain JSON control payload long enough to
	// clear the header-size check, whose bytes 2-3 (read as the template
	// id) don't match any known template, falls through to the JSON
	// decoder intact.
	payload := []byte(`{"result":null,"id":1,"padding":"xxxxxxxxxxxxxxxxxxxx"}`)

	d := newTestBinary()
	msg := d.Decode(payload)
	require.Equal(t, KindApiResponse, msg.Kind())
}

func TestBinaryDecodeTruncatedGroupReturnsNone(t *testing.T) {
	var buf bytes.Buffer
	writeHeader(&buf, templateDepthSnapshot)
	binary.Write(&buf, binary.LittleEndian, int64(1000))
	binary.Write(&buf, binary.LittleEndian, int64(42))
	buf.WriteByte(i8byte(-2))
	buf.WriteByte(i8byte(-8))
	// claim 5 levels but provide none
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	binary.Write(&buf, binary.LittleEndian, uint16(5))

	d := newTestBinary()
	msg := d.Decode(buf.Bytes())
	require.Equal(t, KindNone, msg.Kind())
}
