package object

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const describeIndent = 4

// maxDescribedData caps how many bytes of a data value are rendered as hex.
const maxDescribedData = 32

// Describe renders v as an indented, human readable tree. It does not change
// any reference count.
func Describe(v *Value) string {
	var sb strings.Builder
	describeLevel(&sb, v, 0)
	return sb.String()
}

func describeLevel(sb *strings.Builder, v *Value, level int) {
	if v == nil {
		sb.WriteString("<null value>\n")
		return
	}

	fmt.Fprintf(sb, "(%s) ", v.typ)
	indent := strings.Repeat(" ", (level+1)*describeIndent)

	switch v.typ {
	case TypeDictionary:
		sb.WriteString("\n")
		v.ApplyDictionary(func(key string, child *Value) bool {
			fmt.Fprintf(sb, "%s%q: ", indent, key)
			describeLevel(sb, child, level+1)
			return true
		})
	case TypeArray:
		sb.WriteString("\n")
		v.ApplyArray(func(i int, child *Value) bool {
			fmt.Fprintf(sb, "%s%d: ", indent, i)
			describeLevel(sb, child, level+1)
			return true
		})
	case TypeBool:
		sb.WriteString(strconv.FormatBool(v.b))
		sb.WriteString("\n")
	case TypeInt64:
		fmt.Fprintf(sb, "%d\n", v.i)
	case TypeUint64:
		fmt.Fprintf(sb, "%x\n", v.u)
	case TypeDouble:
		fmt.Fprintf(sb, "%g\n", v.f)
	case TypeDate:
		fmt.Fprintf(sb, "%s\n", v.t.Format(time.RFC3339Nano))
	case TypeString:
		fmt.Fprintf(sb, "%q\n", v.s)
	case TypeUUID:
		fmt.Fprintf(sb, "%s\n", v.id.String())
	case TypeData:
		shown := v.data
		if len(shown) > maxDescribedData {
			shown = shown[:maxDescribedData]
		}
		fmt.Fprintf(sb, "<%d bytes> %s", len(v.data), hex.EncodeToString(shown))
		if len(shown) < len(v.data) {
			sb.WriteString("...")
		}
		sb.WriteString("\n")
	case TypeEndpoint:
		fmt.Fprintf(sb, "<%d>\n", v.u)
	case TypeFD:
		fmt.Fprintf(sb, "<fd %d>\n", v.i)
	case TypeError:
		fmt.Fprintf(sb, "%q\n", v.s)
	case TypeNull:
		sb.WriteString("<null>\n")
	default:
		sb.WriteString("<invalid>\n")
	}
}
