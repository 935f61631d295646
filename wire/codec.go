package wire

import "github.com/lichnak/vineyard/cmn/cos"

type typeOnly struct {
	Type string `json:"type"`
}

// DecodeType extracts the command name from a frame body, so the
// dispatcher can pick the concrete payload type to decode into.
// Fails `malformed` if the frame isn't a JSON object or carries no
// type field (spec §4.1 Fail modes).
func DecodeType(frame []byte) (string, error) {
	var t typeOnly
	if err := cos.JSON.Unmarshal(frame, &t); err != nil {
		return "", cos.Wrap(cos.ErrMalformed, "decode frame: %v", err)
	}
	if t.Type == "" {
		return "", cos.Wrap(cos.ErrMalformed, "frame missing type")
	}
	return t.Type, nil
}

// Encode marshals a command payload to a frame body. Per DESIGN NOTES
// (spec §9, "Exceptions around JSON parsing"), any encode fault is
// converted here rather than left to unwind past the caller.
func Encode(v any) (b []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = cos.Wrap(cos.ErrBadPayload, "encode panic: %v", r)
		}
	}()
	return cos.JSON.Marshal(v)
}

// Decode unmarshals a frame body into v. Unknown fields are ignored
// (forward-compat); a structurally invalid frame or a field of the
// wrong semantic type yields bad_payload, never a panic.
func Decode(frame []byte, v any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = cos.Wrap(cos.ErrBadPayload, "decode panic: %v", r)
		}
	}()
	if err = cos.JSON.Unmarshal(frame, v); err != nil {
		return cos.Wrap(cos.ErrBadPayload, "decode payload: %v", err)
	}
	return nil
}
