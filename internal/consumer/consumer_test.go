package consumer

import (
	"testing"

	"github.com/kumarlokesh/headcache/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/twmb/franz-go/pkg/kgo"
)

func recordWithHeader(value string) *kgo.Record {
	return &kgo.Record{
		Headers: []kgo.RecordHeader{{Key: "action", Value: []byte(value)}},
	}
}

func TestDecodeHeader_Append(t *testing.T) {
	action, ok := decodeHeader(recordWithHeader(`{"type":"append","from":1,"to":5}`))
	assert.True(t, ok)
	assert.Equal(t, model.Append(1, 5), action)
}

func TestDecodeHeader_Delete(t *testing.T) {
	action, ok := decodeHeader(recordWithHeader(`{"type":"delete","up_to":9}`))
	assert.True(t, ok)
	assert.Equal(t, model.Delete(9), action)
}

func TestDecodeHeader_Mark(t *testing.T) {
	action, ok := decodeHeader(recordWithHeader(`{"type":"mark","mark":"m1"}`))
	assert.True(t, ok)
	assert.Equal(t, model.Mark("m1"), action)
}

func TestDecodeHeader_UnknownTypeDropped(t *testing.T) {
	_, ok := decodeHeader(recordWithHeader(`{"type":"bogus"}`))
	assert.False(t, ok)
}

func TestDecodeHeader_MalformedJSONDropped(t *testing.T) {
	_, ok := decodeHeader(recordWithHeader(`not json`))
	assert.False(t, ok)
}

func TestDecodeHeader_MissingHeaderDropped(t *testing.T) {
	_, ok := decodeHeader(&kgo.Record{})
	assert.False(t, ok)
}
