package main

import (
	"time"

	"github.com/danmuck/ipcwire/internal/object"
	"github.com/google/uuid"
)

// sampleMessage builds a dictionary touching every value type.
func sampleMessage() *object.Value {
	msg := object.NewDictionary()
	msg.Set("op", object.NewString("status"))
	msg.Set("count", object.NewInt64(-5))
	msg.Set("mask", object.NewUint64(0xff))
	msg.Set("ratio", object.NewDouble(0.25))
	msg.Set("ok", object.NewBool(true))
	msg.Set("none", object.NewNull())
	msg.Set("at", object.NewDate(time.Unix(1700000000, 0)))
	msg.Set("request", object.NewUUID(uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")))
	msg.Set("blob", object.NewData([]byte{0xde, 0xad, 0xbe, 0xef}))
	msg.Set("reply_to", object.NewEndpoint(7))
	msg.Set("last_error", object.NewError("none"))

	tags := object.NewArray()
	tags.Append(object.NewString("alpha"))
	tags.Append(object.NewString("beta"))
	msg.Set("tags", tags)
	return msg
}
