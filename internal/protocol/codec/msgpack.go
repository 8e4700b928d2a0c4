package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/danmuck/ipcwire/internal/object"
	"github.com/danmuck/ipcwire/internal/protocol"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// Extension type ids for tags msgpack has no native form for.
const (
	extDate     int8 = 1
	extUUID     int8 = 2
	extEndpoint int8 = 3
	extFD       int8 = 4
	extError    int8 = 5
)

// Msgpack encodes graphs as MessagePack. Integers use fixed-width codes so
// int64 and uint64 survive a round trip; dictionaries are maps written in
// insertion order.
type Msgpack struct{}

func (Msgpack) Name() string { return NameMsgpack }

func (Msgpack) Encode(v *object.Value) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if err := encodeMsgpack(enc, &buf, v); err != nil {
		return nil, fmt.Errorf("%w: msgpack: %v", protocol.ErrEncode, err)
	}
	return buf.Bytes(), nil
}

func encodeMsgpack(enc *msgpack.Encoder, buf *bytes.Buffer, v *object.Value) error {
	switch v.Type() {
	case object.TypeNull:
		return enc.EncodeNil()
	case object.TypeBool:
		return enc.EncodeBool(v.Bool())
	case object.TypeInt64:
		return enc.EncodeInt64(v.Int64())
	case object.TypeUint64:
		return enc.EncodeUint64(v.Uint64())
	case object.TypeDouble:
		return enc.EncodeFloat64(v.Double())
	case object.TypeString:
		return enc.EncodeString(v.StringValue())
	case object.TypeData:
		return enc.EncodeBytes(v.Data())
	case object.TypeDate:
		t := v.Date()
		ext := make([]byte, 12)
		binary.BigEndian.PutUint64(ext[0:8], uint64(t.Unix()))
		binary.BigEndian.PutUint32(ext[8:12], uint32(t.Nanosecond()))
		return writeExt(enc, buf, extDate, ext)
	case object.TypeUUID:
		id := v.UUID()
		return writeExt(enc, buf, extUUID, id[:])
	case object.TypeEndpoint:
		ext := make([]byte, 8)
		binary.BigEndian.PutUint64(ext, v.Endpoint())
		return writeExt(enc, buf, extEndpoint, ext)
	case object.TypeFD:
		ext := make([]byte, 8)
		binary.BigEndian.PutUint64(ext, uint64(int64(v.FD())))
		return writeExt(enc, buf, extFD, ext)
	case object.TypeError:
		return writeExt(enc, buf, extError, []byte(v.ErrorMessage()))
	case object.TypeArray:
		if err := enc.EncodeArrayLen(v.Len()); err != nil {
			return err
		}
		var err error
		v.ApplyArray(func(_ int, child *object.Value) bool {
			err = encodeMsgpack(enc, buf, child)
			return err == nil
		})
		return err
	case object.TypeDictionary:
		if err := enc.EncodeMapLen(v.Len()); err != nil {
			return err
		}
		var err error
		v.ApplyDictionary(func(key string, child *object.Value) bool {
			if err = enc.EncodeString(key); err != nil {
				return false
			}
			err = encodeMsgpack(enc, buf, child)
			return err == nil
		})
		return err
	default:
		return fmt.Errorf("cannot encode %s value", v.Type())
	}
}

// writeExt emits an extension header through the encoder and the body
// straight to buf; the encoder writes to buf unbuffered.
func writeExt(enc *msgpack.Encoder, buf *bytes.Buffer, id int8, body []byte) error {
	if err := enc.EncodeExtHeader(id, len(body)); err != nil {
		return err
	}
	_, err := buf.Write(body)
	return err
}

func (Msgpack) Decode(b []byte) (*object.Value, error) {
	r := bytes.NewReader(b)
	dec := msgpack.NewDecoder(r)
	v, err := decodeMsgpack(dec, r)
	if err != nil {
		return nil, fmt.Errorf("%w: msgpack: %v", protocol.ErrDecode, err)
	}
	if r.Len() != 0 {
		object.Release(v)
		return nil, fmt.Errorf("%w: msgpack: %d trailing bytes", protocol.ErrDecode, r.Len())
	}
	return v, nil
}

func decodeMsgpack(dec *msgpack.Decoder, r *bytes.Reader) (*object.Value, error) {
	c, err := dec.PeekCode()
	if err != nil {
		return nil, err
	}

	switch {
	case c == msgpcode.Nil:
		if err := dec.DecodeNil(); err != nil {
			return nil, err
		}
		return object.NewNull(), nil
	case c == msgpcode.False || c == msgpcode.True:
		b, err := dec.DecodeBool()
		if err != nil {
			return nil, err
		}
		return object.NewBool(b), nil
	case c == msgpcode.Uint8 || c == msgpcode.Uint16 || c == msgpcode.Uint32 || c == msgpcode.Uint64:
		u, err := dec.DecodeUint64()
		if err != nil {
			return nil, err
		}
		return object.NewUint64(u), nil
	case msgpcode.IsFixedNum(c) || c == msgpcode.Int8 || c == msgpcode.Int16 ||
		c == msgpcode.Int32 || c == msgpcode.Int64:
		i, err := dec.DecodeInt64()
		if err != nil {
			return nil, err
		}
		return object.NewInt64(i), nil
	case c == msgpcode.Float || c == msgpcode.Double:
		f, err := dec.DecodeFloat64()
		if err != nil {
			return nil, err
		}
		return object.NewDouble(f), nil
	case msgpcode.IsString(c):
		s, err := dec.DecodeString()
		if err != nil {
			return nil, err
		}
		return object.NewString(s), nil
	case msgpcode.IsBin(c):
		data, err := dec.DecodeBytes()
		if err != nil {
			return nil, err
		}
		return object.NewData(data), nil
	case msgpcode.IsFixedArray(c) || c == msgpcode.Array16 || c == msgpcode.Array32:
		n, err := dec.DecodeArrayLen()
		if err != nil {
			return nil, err
		}
		arr := object.NewArray()
		for i := 0; i < n; i++ {
			child, err := decodeMsgpack(dec, r)
			if err != nil {
				object.Release(arr)
				return nil, err
			}
			arr.Append(child)
		}
		return arr, nil
	case msgpcode.IsFixedMap(c) || c == msgpcode.Map16 || c == msgpcode.Map32:
		n, err := dec.DecodeMapLen()
		if err != nil {
			return nil, err
		}
		dict := object.NewDictionary()
		for i := 0; i < n; i++ {
			key, err := dec.DecodeString()
			if err != nil {
				object.Release(dict)
				return nil, fmt.Errorf("map key: %w", err)
			}
			child, err := decodeMsgpack(dec, r)
			if err != nil {
				object.Release(dict)
				return nil, err
			}
			dict.Set(key, child)
		}
		return dict, nil
	case msgpcode.IsExt(c):
		return decodeExt(dec, r)
	default:
		return nil, fmt.Errorf("unsupported code 0x%02x", c)
	}
}

func decodeExt(dec *msgpack.Decoder, r *bytes.Reader) (*object.Value, error) {
	id, n, err := dec.DecodeExtHeader()
	if err != nil {
		return nil, err
	}
	if n < 0 || n > r.Len() {
		return nil, fmt.Errorf("ext %d: length %d exceeds payload", id, n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}

	switch id {
	case extDate:
		if n != 12 {
			return nil, fmt.Errorf("date ext: invalid length %d", n)
		}
		sec := int64(binary.BigEndian.Uint64(body[0:8]))
		nsec := int64(binary.BigEndian.Uint32(body[8:12]))
		return object.NewDate(time.Unix(sec, nsec)), nil
	case extUUID:
		id, err := uuid.FromBytes(body)
		if err != nil {
			return nil, err
		}
		return object.NewUUID(id), nil
	case extEndpoint:
		if n != 8 {
			return nil, fmt.Errorf("endpoint ext: invalid length %d", n)
		}
		return object.NewEndpoint(binary.BigEndian.Uint64(body)), nil
	case extFD:
		if n != 8 {
			return nil, fmt.Errorf("fd ext: invalid length %d", n)
		}
		return object.NewFD(int(int64(binary.BigEndian.Uint64(body)))), nil
	case extError:
		return object.NewError(string(body)), nil
	default:
		return nil, fmt.Errorf("unknown ext type %d", id)
	}
}
