package server

import (
	"context"
	"net"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/tidwall/buntdb"

	"github.com/lichnak/vineyard/cmn"
	"github.com/lichnak/vineyard/core"
	"github.com/lichnak/vineyard/wire"
)

// testHarness wires a Server with its event loop running against a
// real in-memory metadata façade, exercising the dispatcher exactly as
// the IPC/RPC accept loops do, minus the listener.
type testHarness struct {
	srv    *Server
	facade *buntFacade
	cancel context.CancelFunc
}

func newTestHarness() *testHarness {
	spec := &cmn.ServerSpec{Deployment: cmn.DeploymentLocal}
	facade, err := NewLocalMetaFacade("")
	Expect(err).NotTo(HaveOccurred())
	bulk := core.NewMemStore(0)
	srv := New(spec, core.InstanceID(1), facade, bulk, core.NullStreamStore{})

	ctx, cancel := context.WithCancel(context.Background())
	go srv.run(ctx)

	return &testHarness{srv: srv, facade: facade, cancel: cancel}
}

func (h *testHarness) backendReady() {
	h.srv.ready.Signal(bitMeta)
	h.srv.ready.Signal(bitBulk)
}

func (h *testHarness) Close() {
	h.cancel()
	h.facade.Close()
}

// sync blocks until every task submitted ahead of this call has run,
// without racing the loop goroutine's own state.
func (h *testHarness) sync() {
	done := make(chan struct{})
	h.srv.submit(func() { close(done) })
	<-done
}

// putRaw writes a tree straight into the façade's backing store under
// a chosen id, bypassing Put's id generation — the only way to make an
// object "arrive" under a specific id, since the wire protocol never
// lets a caller choose one.
func (h *testHarness) putRaw(id core.ObjectID, tree core.Tree) {
	tree = tree.Clone()
	tree.SetID(id)
	tree.SetInstanceID(core.InstanceID(1))
	err := h.facade.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(objKey(id), h.facade.encodeTree(tree), nil)
		return err
	})
	Expect(err).NotTo(HaveOccurred())
	h.facade.bump()
}

// testClient is a test-side peer connection: frames submitted via send
// are dispatched on the server loop exactly as a real connection's
// read loop would submit them, and replies are read back from the
// client end of the pipe.
type testClient struct {
	conn      *connection
	clientEnd net.Conn
}

func (h *testHarness) dial() *testClient {
	a, b := net.Pipe()
	return &testClient{conn: newConnection(a, endpointIPC), clientEnd: b}
}

func (h *testHarness) send(tc *testClient, req any) {
	body, err := wire.Encode(req)
	Expect(err).NotTo(HaveOccurred())
	h.srv.submit(func() { h.srv.dispatch(tc.conn, body) })
}

func readReply(tc *testClient, v any) {
	body, err := wire.ReadFrame(tc.clientEnd)
	Expect(err).NotTo(HaveOccurred())
	Expect(wire.Decode(body, v)).To(Succeed())
}

var _ = Describe("Dispatcher", func() {
	var h *testHarness

	BeforeEach(func() {
		h = newTestHarness()
	})

	AfterEach(func() {
		h.Close()
	})

	It("S1: round-trips metadata through create_data and get_data", func() {
		h.backendReady()
		tc := h.dial()

		h.send(tc, &wire.CreateDataReq{
			Type:    wire.CreateData,
			Content: core.Tree{"typename": "Blob", "nbytes": int64(16)},
		})
		var created wire.CreateDataReply
		readReply(tc, &created)
		Expect(created.ID).NotTo(Equal(core.InvalidObjectID))
		Expect(created.InstanceID).To(Equal(core.InstanceID(1)))

		h.send(tc, &wire.GetDataReq{Type: wire.GetData, IDs: []core.ObjectID{created.ID}})
		var got wire.GetDataReply
		readReply(tc, &got)
		tree, ok := got.Content[created.ID]
		Expect(ok).To(BeTrue())

		typename, _ := tree.GetTypename()
		Expect(typename).To(Equal("Blob"))
		nbytes, _ := tree.GetNBytes()
		Expect(nbytes).To(Equal(int64(16)))
		Expect(tree.IsTransient()).To(BeTrue())
	})

	It("S2: a deferred get_data fires exactly once when the object appears", func() {
		h.backendReady()
		waiter := h.dial()

		h.send(waiter, &wire.GetDataReq{Type: wire.GetData, IDs: []core.ObjectID{777}, Wait: true})
		h.sync()
		Expect(h.srv.deferred.Len()).To(Equal(1))

		h.putRaw(777, core.Tree{"typename": "Blob", "nbytes": int64(1)})

		var got wire.GetDataReply
		readReply(waiter, &got)
		_, ok := got.Content[777]
		Expect(ok).To(BeTrue())

		h.sync()
		Expect(h.srv.deferred.Len()).To(Equal(0))
	})

	It("S3: a deferred request whose connection closed first is collected, not replied", func() {
		h.backendReady()
		waiter := h.dial()

		h.send(waiter, &wire.GetDataReq{Type: wire.GetData, IDs: []core.ObjectID{888}, Wait: true})
		h.sync()
		Expect(h.srv.deferred.Len()).To(Equal(1))

		h.srv.submit(func() { h.srv.onConnectionClosed(waiter.conn, endpointIPC) })
		h.sync()
		Expect(h.srv.deferred.Len()).To(Equal(0))

		h.putRaw(888, core.Tree{"typename": "Blob"})
		h.sync()

		Expect(h.srv.deferred.Len()).To(Equal(0))
	})

	It("S4: put_name rejects a name bound to a different object but tolerates the identical rebind", func() {
		h.backendReady()
		tc := h.dial()

		h.send(tc, &wire.PutNameReq{Type: wire.PutName, ID: 1, Name: "a"})
		var ok1 wire.PutNameReply
		readReply(tc, &ok1)

		h.send(tc, &wire.PutNameReq{Type: wire.PutName, ID: 2, Name: "a"})
		var conflict wire.ErrorReply
		readReply(tc, &conflict)
		Expect(conflict.Type).To(Equal(wire.Error))
		Expect(conflict.Kind).To(Equal("already_exists"))

		h.send(tc, &wire.PutNameReq{Type: wire.PutName, ID: 1, Name: "a"})
		var ok2 wire.PutNameReply
		readReply(tc, &ok2)
	})

	It("del_data rejects a missing id without force but succeeds with it", func() {
		h.backendReady()
		tc := h.dial()

		h.send(tc, &wire.DelDataReq{Type: wire.DelData, IDs: []core.ObjectID{999}})
		var notFound wire.ErrorReply
		readReply(tc, &notFound)
		Expect(notFound.Kind).To(Equal("not_found"))

		h.send(tc, &wire.DelDataReq{Type: wire.DelData, IDs: []core.ObjectID{999}, Force: true})
		var ok wire.DelDataReply
		readReply(tc, &ok)
	})

	It("S5: cluster_meta decodes sentinel-prefixed backend keys back to instance ids", func() {
		h.backendReady()
		h.facade.SetInstanceStatus(core.InstanceID(1), core.InstanceStatus{InstanceID: 1, Deployment: "local"})
		h.facade.SetInstanceStatus(core.InstanceID(2), core.InstanceStatus{InstanceID: 2, Deployment: "local"})

		tc := h.dial()
		h.send(tc, &wire.ClusterMetaReq{Type: wire.ClusterMeta})
		var reply wire.ClusterMetaReply
		readReply(tc, &reply)

		decoded := wire.DecodeClusterMetaContent(reply.Content)
		Expect(decoded).To(HaveKey(core.InstanceID(1)))
		Expect(decoded).To(HaveKey(core.InstanceID(2)))
	})

	It("S6: a request before backend_ready gets not_ready and mutates nothing", func() {
		tc := h.dial()
		h.send(tc, &wire.CreateDataReq{Type: wire.CreateData, Content: core.Tree{"typename": "Blob"}})

		var reply wire.ErrorReply
		readReply(tc, &reply)
		Expect(reply.Type).To(Equal(wire.Error))
		Expect(reply.Kind).To(Equal("not_ready"))

		Expect(h.srv.ready.BackendReady()).To(BeFalse())
	})

	It("allows register before backend_ready", func() {
		tc := h.dial()
		h.send(tc, &wire.RegisterReq{Type: wire.Register, Version: "1"})
		var reply wire.RegisterReply
		readReply(tc, &reply)
		Expect(reply.InstanceID).To(Equal(core.InstanceID(1)))
	})

	It("readiness bits are monotone: repeated signals never regress the phase", func() {
		Expect(h.srv.ready.BackendReady()).To(BeFalse())
		h.srv.ready.Signal(bitMeta)
		Expect(h.srv.ready.BackendReady()).To(BeFalse())
		h.srv.ready.Signal(bitBulk)
		Expect(h.srv.ready.BackendReady()).To(BeTrue())

		// signalling an already-set bit again must not un-ready the server
		h.srv.ready.Signal(bitMeta)
		Expect(h.srv.ready.BackendReady()).To(BeTrue())

		h.srv.ready.Signal(bitIPC)
		h.srv.ready.Signal(bitRPC)
		Expect(h.srv.ready.Ready()).To(BeTrue())
	})
})
