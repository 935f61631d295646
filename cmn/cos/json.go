package cos

import jsoniter "github.com/json-iterator/go"

// JSON is the one jsoniter configuration used across the module: it
// accepts unknown fields on decode (forward-compat, per spec §4.1)
// and is otherwise the stdlib-compatible API.
var JSON = jsoniter.ConfigCompatibleWithStandardLibrary

func MustMarshal(v any) []byte {
	b, err := JSON.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
