package client_test

import (
	"errors"
	"net"
	"testing"

	"github.com/lichnak/vineyard/client"
	"github.com/lichnak/vineyard/cmn/cos"
	"github.com/lichnak/vineyard/core"
	"github.com/lichnak/vineyard/wire"
)

// fakeServer answers exactly one register handshake then whatever
// scripted replies the test supplies, one per request read — enough
// to exercise Session without a real server package.
type fakeServer struct {
	conn    net.Conn
	replies []any
}

func (f *fakeServer) serve(t *testing.T) {
	t.Helper()
	defer f.conn.Close()
	for _, reply := range f.replies {
		if _, err := wire.ReadFrame(f.conn); err != nil {
			return
		}
		body, err := wire.Encode(reply)
		if err != nil {
			t.Errorf("encode scripted reply: %v", err)
			return
		}
		if err := wire.WriteFrame(f.conn, body); err != nil {
			return
		}
	}
}

func dialFake(t *testing.T, replies ...any) (*client.Session, *fakeServer) {
	t.Helper()
	clientConn, serverConn := net.Pipe()

	fs := &fakeServer{conn: serverConn, replies: append([]any{
		&wire.RegisterReply{Type: wire.Register, InstanceID: core.InstanceID(1)},
	}, replies...)}
	go fs.serve(t)

	done := make(chan struct{})
	var sess *client.Session
	var dialErr error
	go func() {
		sess, dialErr = client.DialConn(clientConn)
		close(done)
	}()
	<-done
	if dialErr != nil {
		t.Fatalf("dial: %v", dialErr)
	}
	return sess, fs
}

func TestSessionRegisterHandshake(t *testing.T) {
	sess, _ := dialFake(t)
	if sess.InstanceID() != core.InstanceID(1) {
		t.Fatalf("instance id = %d, want 1", sess.InstanceID())
	}
	if !sess.Connected() {
		t.Fatal("session should be connected after handshake")
	}
}

func TestSessionCreateData(t *testing.T) {
	sess, _ := dialFake(t, &wire.CreateDataReply{
		Type: wire.CreateData, ID: 42, Signature: 99, InstanceID: 1,
	})
	id, sig, inst, err := sess.CreateData(core.Tree{"typename": "Blob", "nbytes": int64(16)})
	if err != nil {
		t.Fatalf("create_data: %v", err)
	}
	if id != 42 || sig != 99 || inst != 1 {
		t.Fatalf("got id=%d sig=%d inst=%d, want 42/99/1", id, sig, inst)
	}
}

func TestSessionErrorReplyMapsToSentinel(t *testing.T) {
	sess, _ := dialFake(t, wire.NewErrorReply("not_found", "object 7 not found"))
	_, err := sess.Exists(7)
	if err == nil {
		t.Fatal("expected exists to surface the not_found error reply")
	}
	if !errors.Is(err, cos.ErrNotFound) {
		t.Fatalf("err = %v, want it to wrap cos.ErrNotFound", err)
	}
}

func TestSessionDisconnectIsIdempotent(t *testing.T) {
	sess, _ := dialFake(t)
	if err := sess.Disconnect(); err != nil {
		t.Fatalf("first disconnect: %v", err)
	}
	if err := sess.Disconnect(); err != nil {
		t.Fatalf("second disconnect should be a no-op, got: %v", err)
	}
}

func TestSessionOpFailsWhenDisconnected(t *testing.T) {
	sess, _ := dialFake(t)
	sess.Disconnect()
	if _, err := sess.Exists(1); err == nil {
		t.Fatal("expected not_connected error after Disconnect")
	}
}
