package row

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestCopyIsIndependent(t *testing.T) {
	r := Row{"id": int64(1), "name": "Alice"}
	cp := r.Copy()
	cp["name"] = "Bob"

	assert.Equal(t, "Alice", r["name"])
	assert.Equal(t, "Bob", cp["name"])
}

func TestToJSONSerializesEveryColumn(t *testing.T) {
	r := Row{"id": float64(11), "name": "Alice"}
	data, err := r.ToJSON()
	assert.NilError(t, err)
	assert.Equal(t, `{"id":11,"name":"Alice"}`, string(data))
}
