package wire_test

import (
	"bytes"
	"testing"

	"github.com/lichnak/vineyard/core"
	"github.com/lichnak/vineyard/wire"
)

func TestFrameRoundTrip(t *testing.T) {
	req := &wire.CreateDataReq{
		Type:    wire.CreateData,
		Content: core.Tree{"typename": "Blob", "nbytes": int64(16)},
	}
	body, err := wire.Encode(req)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var buf bytes.Buffer
	if err := wire.WriteFrame(&buf, body); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	got, err := wire.ReadFrame(&buf)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}

	typ, err := wire.DecodeType(got)
	if err != nil {
		t.Fatalf("decode type: %v", err)
	}
	if wire.Command(typ) != wire.CreateData {
		t.Fatalf("type = %q, want %q", typ, wire.CreateData)
	}

	var decoded wire.CreateDataReq
	if err := wire.Decode(got, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Content["typename"] != "Blob" {
		t.Fatalf("content typename = %v, want Blob", decoded.Content["typename"])
	}
}

func TestDecodeTypeRejectsMissingType(t *testing.T) {
	if _, err := wire.DecodeType([]byte(`{"ids":[1]}`)); err == nil {
		t.Fatal("expected malformed error for missing type field")
	}
}

func TestDecodeTypeRejectsNonJSON(t *testing.T) {
	if _, err := wire.DecodeType([]byte(`not json`)); err == nil {
		t.Fatal("expected malformed error for non-JSON frame")
	}
}

func TestReadFrameRejectsOversized(t *testing.T) {
	var buf bytes.Buffer
	hdr := []byte{0x7f, 0xff, 0xff, 0xff} // ~2GiB, over maxFrameSize
	buf.Write(hdr)
	if _, err := wire.ReadFrame(&buf); err == nil {
		t.Fatal("expected error for oversized frame length")
	}
}

func TestClusterMetaContentRoundTrip(t *testing.T) {
	in := map[core.InstanceID]core.Tree{
		1: {"instance_id": uint64(1), "deployment": "local"},
		2: {"instance_id": uint64(2), "deployment": "local"},
	}
	encoded := wire.EncodeClusterMetaContent(in)
	if _, ok := encoded["s1"]; !ok {
		t.Fatalf("expected sentinel-prefixed key s1, got %v", encoded)
	}
	decoded := wire.DecodeClusterMetaContent(encoded)
	if len(decoded) != 2 {
		t.Fatalf("decoded len = %d, want 2", len(decoded))
	}
	if _, ok := decoded[1]; !ok {
		t.Fatalf("missing instance 1 in decoded content: %v", decoded)
	}
}

func TestDecodeClusterMetaContentSkipsMalformedKeys(t *testing.T) {
	in := map[string]core.Tree{
		"s1":      {"instance_id": uint64(1)},
		"garbage": {"instance_id": uint64(99)},
	}
	decoded := wire.DecodeClusterMetaContent(in)
	if len(decoded) != 1 {
		t.Fatalf("decoded len = %d, want 1 (malformed key should be skipped)", len(decoded))
	}
}
