package decoder

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// The JSON and SBE framings must land on identical wire messages for
// equivalent payloads; downstream conversion and sequencing never know
// which framing produced an update.

func TestJSONAndBinaryDepthDiffDecodeEquivalently(t *testing.T) {
	jsonPayload := `{"e":"depthUpdate@depth","E":123,"s":"BTCUSDT","U":10,"u":15,"b":[["27000.5","1.25"]],"a":[["27001.0","2.0"]]}`
	fromJSON := newTestJSON().Decode(jsonPayload)
	require.Equal(t, KindDepthDiff, fromJSON.Kind())

	var buf bytes.Buffer
	writeHeader(&buf, templateDepthDiff)
	binary.Write(&buf, binary.LittleEndian, int64(123)) // eventTime
	binary.Write(&buf, binary.LittleEndian, int64(10))  // firstUpdateId
	binary.Write(&buf, binary.LittleEndian, int64(15))  // lastUpdateId
	buf.WriteByte(i8byte(-1))                       // priceExponent
	buf.WriteByte(i8byte(-2))                       // qtyExponent
	// bids: one level, 270005e-1 / 125e-2
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, int64(270005))
	binary.Write(&buf, binary.LittleEndian, int64(125))
	// asks: one level, 270010e-1 / 200e-2
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, int64(270010))
	binary.Write(&buf, binary.LittleEndian, int64(200))
	buf.WriteByte(byte(len("BTCUSDT")))
	buf.WriteString("BTCUSDT")

	fromSBE := newTestBinary().Decode(buf.Bytes())
	require.Equal(t, KindDepthDiff, fromSBE.Kind())

	jd, _ := fromJSON.DepthDiff()
	bd, _ := fromSBE.DepthDiff()
	require.Equal(t, jd, bd)
}

func TestJSONAndBinaryTradeDecodeEquivalently(t *testing.T) {
	jsonPayload := `{"e":"trade@trade","E":123,"s":"ETHUSDT","t":55,"p":"1800.25","q":"0.5","T":456,"m":true}`
	fromJSON := newTestJSON().Decode(jsonPayload)
	require.Equal(t, KindTrades, fromJSON.Kind())

	var buf bytes.Buffer
	writeHeader(&buf, templateTrades)
	binary.Write(&buf, binary.LittleEndian, int64(123)) // eventTime
	binary.Write(&buf, binary.LittleEndian, int64(456)) // transactTime
	buf.WriteByte(i8byte(-2))                       // priceExponent
	buf.WriteByte(i8byte(-1))                       // qtyExponent
	binary.Write(&buf, binary.LittleEndian, uint16(25)) // blockLength: id+price+qty+flag
	binary.Write(&buf, binary.LittleEndian, uint32(1))
	binary.Write(&buf, binary.LittleEndian, int64(55))     // trade id
	binary.Write(&buf, binary.LittleEndian, int64(180025)) // price mantissa
	binary.Write(&buf, binary.LittleEndian, int64(5))      // qty mantissa
	buf.WriteByte(1)                                       // isBuyerMaker
	buf.WriteByte(byte(len("ETHUSDT")))
	buf.WriteString("ETHUSDT")

	fromSBE := newTestBinary().Decode(buf.Bytes())
	require.Equal(t, KindTrades, fromSBE.Kind())

	jt, _ := fromJSON.Trades()
	bt, _ := fromSBE.Trades()
	require.Equal(t, jt, bt)
}
