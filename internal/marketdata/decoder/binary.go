package decoder

import (
	"encoding/binary"
	"errors"
	"fmt"

	"go.uber.org/zap"

	hfterrors "github.com/abdoElHodaky/hft-core/internal/common/errors"
	"github.com/abdoElHodaky/hft-core/internal/hft/fixedpoint"
)

// Template ids for the venue's SBE market-data schema.
const (
	templateTrades       = 10000
	templateBestBidAsk   = 10001
	templateDepthSnapshot = 10002
	templateDepthDiff    = 10003
)

const headerSize = 8 // blockLength(2) + templateID(2) + schemaID(2) + version(2), little-endian

var errShortBuffer = errors.New("decoder: buffer shorter than required field")

// Binary decodes the venue's SBE-framed binary WebSocket messages. Any
// payload shorter than the SBE header, or carrying an unrecognized
// template id, falls back to the JSON control decoder — the venue
// multiplexes JSON control frames (exchangeInfo, API acks) onto the
// same socket as binary market data.
type Binary struct {
	precision fixedpoint.PrecisionConfig
	fallback  *JSON
	log       *zap.Logger
}

// NewBinary creates an SBE decoder. fallback handles the JSON control
// frames that share the same socket.
func NewBinary(precision fixedpoint.PrecisionConfig, fallback *JSON, log *zap.Logger) *Binary {
	return &Binary{precision: precision, fallback: fallback, log: log}
}

// Decode turns one binary frame into a WireMessage, or falls back to
// the JSON decoder if the frame isn't recognized as SBE market data.
func (d *Binary) Decode(payload []byte) WireMessage {
	if len(payload) == 0 {
		return WireMessage{}
	}
	if string(payload) == "__CONNECTED__" {
		return WireMessage{}
	}
	if len(payload) < headerSize {
		return d.fallback.Decode(string(payload))
	}

	templateID := binary.LittleEndian.Uint16(payload[2:4])
	schemaID := binary.LittleEndian.Uint16(payload[4:6])
	version := binary.LittleEndian.Uint16(payload[6:8])
	body := payload[headerSize:]

	var (
		msg WireMessage
		err error
	)
	switch templateID {
	case templateTrades:
		msg, err = d.decodeTrades(body)
	case templateBestBidAsk:
		msg, err = d.decodeBestBidAsk(body)
	case templateDepthSnapshot:
		msg, err = d.decodeDepthSnapshot(body)
	case templateDepthDiff:
		msg, err = d.decodeDepthDiff(body)
	default:
		fallback := d.fallback.Decode(string(payload))
		if fallback.Kind() == KindNone {
			d.log.Warn("unknown SBE template id",
				zap.Uint16("template_id", templateID),
				zap.Uint16("schema_id", schemaID),
				zap.Uint16("version", version))
		}
		return fallback
	}
	if err != nil {
		code := hfterrors.ErrMalformedMessage
		if errors.Is(err, errShortBuffer) {
			code = hfterrors.ErrTruncatedBuffer
		}
		wrapped := hfterrors.Wrap(err, code, "sbe-decoder", "failed to decode SBE frame, template %d", templateID)
		d.log.Error("decode failure", zap.Error(wrapped), zap.Uint16("template_id", templateID))
		return WireMessage{}
	}
	return msg
}

// decodeMantissaScaled rescales an SBE (mantissa, exponent) pair —
// representing mantissa * 10^exponent — into an integer scaled by
// scale, without ever going through float64.
func decodeMantissaScaled(mantissa int64, exponent int8, scale int64) int64 {
	shift := int64(exponent) + scaleDigitCount(scale)
	if shift >= 0 {
		for i := int64(0); i < shift; i++ {
			mantissa *= 10
		}
		return mantissa
	}
	for i := int64(0); i < -shift; i++ {
		mantissa /= 10
	}
	return mantissa
}

func scaleDigitCount(scale int64) int64 {
	n := int64(0)
	for scale > 1 {
		scale /= 10
		n++
	}
	return n
}

func (d *Binary) decodePrice(mantissa int64, exponent int8) fixedpoint.Price {
	return fixedpoint.Price(decodeMantissaScaled(mantissa, exponent, d.precision.PriceScale))
}

func (d *Binary) decodeQty(mantissa int64, exponent int8) fixedpoint.Qty {
	return fixedpoint.Qty(decodeMantissaScaled(mantissa, exponent, d.precision.QtyScale))
}

type cursor struct {
	buf []byte
	pos int
}

func (c *cursor) remaining() int { return len(c.buf) - c.pos }

func (c *cursor) need(n int) error {
	if c.remaining() < n {
		return errShortBuffer
	}
	return nil
}

func (c *cursor) readInt64() (int64, error) {
	if err := c.need(8); err != nil {
		return 0, err
	}
	v := int64(binary.LittleEndian.Uint64(c.buf[c.pos:]))
	c.pos += 8
	return v, nil
}

func (c *cursor) readInt8() (int8, error) {
	if err := c.need(1); err != nil {
		return 0, err
	}
	v := int8(c.buf[c.pos])
	c.pos++
	return v, nil
}

func (c *cursor) readUint8() (uint8, error) {
	if err := c.need(1); err != nil {
		return 0, err
	}
	v := c.buf[c.pos]
	c.pos++
	return v, nil
}

type groupHeader16 struct {
	blockLength uint16
	numInGroup  uint16
}

type groupHeader32 struct {
	blockLength uint16
	numInGroup  uint32
}

func (c *cursor) readGroupHeader16() (groupHeader16, error) {
	if err := c.need(4); err != nil {
		return groupHeader16{}, err
	}
	g := groupHeader16{
		blockLength: binary.LittleEndian.Uint16(c.buf[c.pos:]),
		numInGroup:  binary.LittleEndian.Uint16(c.buf[c.pos+2:]),
	}
	c.pos += 4
	return g, nil
}

func (c *cursor) readGroupHeader32() (groupHeader32, error) {
	if err := c.need(6); err != nil {
		return groupHeader32{}, err
	}
	g := groupHeader32{
		blockLength: binary.LittleEndian.Uint16(c.buf[c.pos:]),
		numInGroup:  binary.LittleEndian.Uint32(c.buf[c.pos+2:]),
	}
	c.pos += 6
	return g, nil
}

func (c *cursor) readVarString8() (string, error) {
	length, err := c.readUint8()
	if err != nil {
		return "", err
	}
	if length == 0 {
		return "", nil
	}
	if err := c.need(int(length)); err != nil {
		return "", err
	}
	s := string(c.buf[c.pos : c.pos+int(length)])
	c.pos += int(length)
	return s, nil
}

func (d *Binary) decodeTrades(body []byte) (WireMessage, error) {
	c := &cursor{buf: body}
	eventTime, err := c.readInt64()
	if err != nil {
		return WireMessage{}, err
	}
	transactTime, err := c.readInt64()
	if err != nil {
		return WireMessage{}, err
	}
	priceExp, err := c.readInt8()
	if err != nil {
		return WireMessage{}, err
	}
	qtyExp, err := c.readInt8()
	if err != nil {
		return WireMessage{}, err
	}

	group, err := c.readGroupHeader32()
	if err != nil {
		return WireMessage{}, err
	}
	const tradeEntrySize = 8*3 + 1
	if group.blockLength < tradeEntrySize {
		return WireMessage{}, fmt.Errorf("decoder: trade entry block length %d too small", group.blockLength)
	}
	total := int(group.blockLength) * int(group.numInGroup)
	if err := c.need(total); err != nil {
		return WireMessage{}, fmt.Errorf("decoder: trades group exceeds buffer: %w", err)
	}

	trades := make([]Trade, 0, group.numInGroup)
	for i := uint32(0); i < group.numInGroup; i++ {
		entryStart := c.pos
		id, err := c.readInt64()
		if err != nil {
			return WireMessage{}, err
		}
		priceMantissa, err := c.readInt64()
		if err != nil {
			return WireMessage{}, err
		}
		qtyMantissa, err := c.readInt64()
		if err != nil {
			return WireMessage{}, err
		}
		isBuyerMaker, err := c.readUint8()
		if err != nil {
			return WireMessage{}, err
		}
		trades = append(trades, Trade{
			ID:           id,
			Price:        d.decodePrice(priceMantissa, priceExp),
			Qty:          d.decodeQty(qtyMantissa, qtyExp),
			IsBuyerMaker: isBuyerMaker != 0,
			IsBestMatch:  true,
		})
		c.pos = entryStart + int(group.blockLength)
	}

	symbol, err := c.readVarString8()
	if err != nil {
		return WireMessage{}, err
	}

	return WireMessage{
		kind: KindTrades,
		trades: &TradeBatch{
			Symbol:       symbol,
			EventTime:    eventTime,
			TransactTime: transactTime,
			Trades:       trades,
		},
	}, nil
}

func (d *Binary) decodeBestBidAsk(body []byte) (WireMessage, error) {
	c := &cursor{buf: body}
	eventTime, err := c.readInt64()
	if err != nil {
		return WireMessage{}, err
	}
	bookUpdateID, err := c.readInt64()
	if err != nil {
		return WireMessage{}, err
	}
	priceExp, err := c.readInt8()
	if err != nil {
		return WireMessage{}, err
	}
	qtyExp, err := c.readInt8()
	if err != nil {
		return WireMessage{}, err
	}
	bidPriceM, err := c.readInt64()
	if err != nil {
		return WireMessage{}, err
	}
	bidQtyM, err := c.readInt64()
	if err != nil {
		return WireMessage{}, err
	}
	askPriceM, err := c.readInt64()
	if err != nil {
		return WireMessage{}, err
	}
	askQtyM, err := c.readInt64()
	if err != nil {
		return WireMessage{}, err
	}
	symbol, err := c.readVarString8()
	if err != nil {
		return WireMessage{}, err
	}

	return WireMessage{
		kind: KindBestBidAsk,
		bestBidAsk: &BestBidAsk{
			Symbol:       symbol,
			EventTime:    eventTime,
			BookUpdateID: bookUpdateID,
			BidPrice:     d.decodePrice(bidPriceM, priceExp),
			BidQty:       d.decodeQty(bidQtyM, qtyExp),
			AskPrice:     d.decodePrice(askPriceM, priceExp),
			AskQty:       d.decodeQty(askQtyM, qtyExp),
		},
	}, nil
}

func (d *Binary) readLevels(c *cursor, priceExp, qtyExp int8) ([]PriceLevel, error) {
	group, err := c.readGroupHeader16()
	if err != nil {
		return nil, err
	}
	const levelSize = 16
	if group.blockLength < levelSize {
		return nil, fmt.Errorf("decoder: level block length %d too small", group.blockLength)
	}
	total := int(group.blockLength) * int(group.numInGroup)
	if err := c.need(total); err != nil {
		return nil, fmt.Errorf("decoder: levels group exceeds buffer: %w", err)
	}

	levels := make([]PriceLevel, 0, group.numInGroup)
	for i := uint16(0); i < group.numInGroup; i++ {
		entryStart := c.pos
		priceMantissa, err := c.readInt64()
		if err != nil {
			return nil, err
		}
		qtyMantissa, err := c.readInt64()
		if err != nil {
			return nil, err
		}
		levels = append(levels, PriceLevel{
			Price: d.decodePrice(priceMantissa, priceExp),
			Qty:   d.decodeQty(qtyMantissa, qtyExp),
		})
		c.pos = entryStart + int(group.blockLength)
	}
	return levels, nil
}

func (d *Binary) decodeDepthSnapshot(body []byte) (WireMessage, error) {
	c := &cursor{buf: body}
	eventTime, err := c.readInt64()
	if err != nil {
		return WireMessage{}, err
	}
	bookUpdateID, err := c.readInt64()
	if err != nil {
		return WireMessage{}, err
	}
	priceExp, err := c.readInt8()
	if err != nil {
		return WireMessage{}, err
	}
	qtyExp, err := c.readInt8()
	if err != nil {
		return WireMessage{}, err
	}
	bids, err := d.readLevels(c, priceExp, qtyExp)
	if err != nil {
		return WireMessage{}, fmt.Errorf("decoder: snapshot bids: %w", err)
	}
	asks, err := d.readLevels(c, priceExp, qtyExp)
	if err != nil {
		return WireMessage{}, fmt.Errorf("decoder: snapshot asks: %w", err)
	}
	symbol, err := c.readVarString8()
	if err != nil {
		return WireMessage{}, err
	}

	return WireMessage{
		kind: KindDepthSnapshot,
		depthSnapshot: &DepthSnapshot{
			Symbol:       symbol,
			EventTime:    eventTime,
			LastUpdateID: bookUpdateID,
			Bids:         bids,
			Asks:         asks,
		},
	}, nil
}

func (d *Binary) decodeDepthDiff(body []byte) (WireMessage, error) {
	c := &cursor{buf: body}
	eventTime, err := c.readInt64()
	if err != nil {
		return WireMessage{}, err
	}
	firstUpdateID, err := c.readInt64()
	if err != nil {
		return WireMessage{}, err
	}
	lastUpdateID, err := c.readInt64()
	if err != nil {
		return WireMessage{}, err
	}
	priceExp, err := c.readInt8()
	if err != nil {
		return WireMessage{}, err
	}
	qtyExp, err := c.readInt8()
	if err != nil {
		return WireMessage{}, err
	}
	bids, err := d.readLevels(c, priceExp, qtyExp)
	if err != nil {
		return WireMessage{}, fmt.Errorf("decoder: diff bids: %w", err)
	}
	asks, err := d.readLevels(c, priceExp, qtyExp)
	if err != nil {
		return WireMessage{}, fmt.Errorf("decoder: diff asks: %w", err)
	}
	symbol, err := c.readVarString8()
	if err != nil {
		return WireMessage{}, err
	}

	return WireMessage{
		kind: KindDepthDiff,
		depthDiff: &DepthDiff{
			Symbol:            symbol,
			EventTime:         eventTime,
			FirstBookUpdateID: firstUpdateID,
			LastBookUpdateID:  lastUpdateID,
			Bids:              bids,
			Asks:              asks,
		},
	}, nil
}
