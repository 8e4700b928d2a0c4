package codec

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Sereal/Sereal/Go/sereal"
	"github.com/danmuck/ipcwire/internal/object"
	"github.com/danmuck/ipcwire/internal/protocol"
	"github.com/google/uuid"
)

const (
	CompressionNone   = "none"
	CompressionSnappy = "snappy"
	CompressionZlib   = "zlib"
)

// Sereal encodes graphs as Sereal v3 documents. Every node is lowered to a
// two element array [tag, payload] so tags the Sereal data model lacks
// (uint64, date, uuid, endpoint, fd, error) survive a round trip.
// Dictionaries carry their entries as a flat [k1, v1, k2, v2, ...] array to
// keep insertion order.
type Sereal struct {
	compression string
	threshold   int
}

// NewSereal builds a Sereal codec with the named body compression.
func NewSereal(compression string, threshold int) (*Sereal, error) {
	switch c := strings.ToLower(strings.TrimSpace(compression)); c {
	case "", CompressionNone:
		return &Sereal{compression: CompressionNone, threshold: threshold}, nil
	case CompressionSnappy, CompressionZlib:
		return &Sereal{compression: c, threshold: threshold}, nil
	default:
		return nil, fmt.Errorf("codec: unknown sereal compression %q", compression)
	}
}

func (s *Sereal) Name() string { return NameSereal }

func (s *Sereal) encoder() *sereal.Encoder {
	enc := sereal.NewEncoderV3()
	switch s.compression {
	case CompressionSnappy:
		enc.Compression = sereal.SnappyCompressor{Incremental: true}
		enc.CompressionThreshold = s.threshold
	case CompressionZlib:
		enc.Compression = sereal.ZlibCompressor{Level: sereal.ZlibDefaultCompression}
		enc.CompressionThreshold = s.threshold
	}
	return enc
}

func (s *Sereal) Encode(v *object.Value) ([]byte, error) {
	node, err := lowerSereal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: sereal: %v", protocol.ErrEncode, err)
	}
	b, err := s.encoder().Marshal(node)
	if err != nil {
		return nil, fmt.Errorf("%w: sereal: %v", protocol.ErrEncode, err)
	}
	return b, nil
}

func (s *Sereal) Decode(b []byte) (*object.Value, error) {
	var root interface{}
	if err := sereal.NewDecoder().Unmarshal(b, &root); err != nil {
		return nil, fmt.Errorf("%w: sereal: %v", protocol.ErrDecode, err)
	}
	v, err := liftSereal(root)
	if err != nil {
		return nil, fmt.Errorf("%w: sereal: %v", protocol.ErrDecode, err)
	}
	return v, nil
}

func lowerSereal(v *object.Value) ([]interface{}, error) {
	t := v.Type()
	var payload interface{}
	switch t {
	case object.TypeNull:
		payload = 0
	case object.TypeBool:
		payload = v.Bool()
	case object.TypeInt64:
		payload = v.Int64()
	case object.TypeUint64:
		payload = strconv.FormatUint(v.Uint64(), 10)
	case object.TypeDouble:
		payload = v.Double()
	case object.TypeDate:
		payload = v.Date().Format(time.RFC3339Nano)
	case object.TypeString:
		payload = v.StringValue()
	case object.TypeUUID:
		payload = v.UUID().String()
	case object.TypeData:
		payload = string(v.Data())
	case object.TypeEndpoint:
		payload = strconv.FormatUint(v.Endpoint(), 10)
	case object.TypeFD:
		payload = int64(v.FD())
	case object.TypeError:
		payload = v.ErrorMessage()
	case object.TypeArray:
		items := make([]interface{}, 0, v.Len())
		var err error
		v.ApplyArray(func(_ int, child *object.Value) bool {
			var node []interface{}
			node, err = lowerSereal(child)
			items = append(items, node)
			return err == nil
		})
		if err != nil {
			return nil, err
		}
		payload = items
	case object.TypeDictionary:
		items := make([]interface{}, 0, 2*v.Len())
		var err error
		v.ApplyDictionary(func(key string, child *object.Value) bool {
			var node []interface{}
			node, err = lowerSereal(child)
			items = append(items, key, node)
			return err == nil
		})
		if err != nil {
			return nil, err
		}
		payload = items
	default:
		return nil, fmt.Errorf("cannot encode %s value", t)
	}
	return []interface{}{t.String(), payload}, nil
}

func liftSereal(raw interface{}) (*object.Value, error) {
	node, ok := raw.([]interface{})
	if !ok || len(node) != 2 {
		return nil, fmt.Errorf("node is %T, want [tag, payload]", raw)
	}
	tag, err := serealString(node[0])
	if err != nil {
		return nil, fmt.Errorf("tag: %w", err)
	}
	payload := node[1]

	switch tag {
	case object.TypeNull.String():
		return object.NewNull(), nil
	case object.TypeBool.String():
		b, ok := payload.(bool)
		if !ok {
			i, err := serealInt(payload)
			if err != nil {
				return nil, fmt.Errorf("bool: %w", err)
			}
			b = i != 0
		}
		return object.NewBool(b), nil
	case object.TypeInt64.String():
		i, err := serealInt(payload)
		if err != nil {
			return nil, err
		}
		return object.NewInt64(i), nil
	case object.TypeUint64.String(), object.TypeEndpoint.String():
		s, err := serealString(payload)
		if err != nil {
			return nil, err
		}
		u, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, err
		}
		if tag == object.TypeEndpoint.String() {
			return object.NewEndpoint(u), nil
		}
		return object.NewUint64(u), nil
	case object.TypeDouble.String():
		switch f := payload.(type) {
		case float64:
			return object.NewDouble(f), nil
		case float32:
			return object.NewDouble(float64(f)), nil
		default:
			i, err := serealInt(payload)
			if err != nil {
				return nil, fmt.Errorf("double: %w", err)
			}
			return object.NewDouble(float64(i)), nil
		}
	case object.TypeDate.String():
		s, err := serealString(payload)
		if err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, err
		}
		return object.NewDate(t), nil
	case object.TypeString.String(), object.TypeError.String(), object.TypeData.String(), object.TypeUUID.String():
		s, err := serealString(payload)
		if err != nil {
			return nil, err
		}
		switch tag {
		case object.TypeString.String():
			return object.NewString(s), nil
		case object.TypeError.String():
			return object.NewError(s), nil
		case object.TypeData.String():
			return object.NewData([]byte(s)), nil
		default:
			id, err := uuid.Parse(s)
			if err != nil {
				return nil, err
			}
			return object.NewUUID(id), nil
		}
	case object.TypeFD.String():
		i, err := serealInt(payload)
		if err != nil {
			return nil, err
		}
		return object.NewFD(int(i)), nil
	case object.TypeArray.String():
		items, err := serealItems(payload)
		if err != nil {
			return nil, err
		}
		arr := object.NewArray()
		for _, item := range items {
			child, err := liftSereal(item)
			if err != nil {
				object.Release(arr)
				return nil, err
			}
			arr.Append(child)
		}
		return arr, nil
	case object.TypeDictionary.String():
		items, err := serealItems(payload)
		if err != nil {
			return nil, err
		}
		if len(items)%2 != 0 {
			return nil, fmt.Errorf("dictionary: odd item count %d", len(items))
		}
		dict := object.NewDictionary()
		for i := 0; i < len(items); i += 2 {
			key, err := serealString(items[i])
			if err != nil {
				object.Release(dict)
				return nil, fmt.Errorf("dictionary key: %w", err)
			}
			child, err := liftSereal(items[i+1])
			if err != nil {
				object.Release(dict)
				return nil, err
			}
			dict.Set(key, child)
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unknown tag %q", tag)
	}
}

func serealItems(raw interface{}) ([]interface{}, error) {
	switch items := raw.(type) {
	case []interface{}:
		return items, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("container payload is %T", raw)
	}
}

func serealString(raw interface{}) (string, error) {
	switch s := raw.(type) {
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	default:
		return "", fmt.Errorf("expected string, got %T", raw)
	}
}

func serealInt(raw interface{}) (int64, error) {
	switch n := raw.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint:
		return int64(n), nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", raw)
	}
}
