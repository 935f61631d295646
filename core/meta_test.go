package core_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/lichnak/vineyard/core"
)

var _ = Describe("Tree", func() {
	Describe("EnsureCreateDefaults", func() {
		It("stamps instance id, transient, and a default nbytes", func() {
			t := core.Tree{"typename": "Blob"}
			t.EnsureCreateDefaults(core.InstanceID(7))

			inst, ok := t.GetInstanceID()
			Expect(ok).To(BeTrue())
			Expect(inst).To(Equal(core.InstanceID(7)))
			Expect(t.IsTransient()).To(BeTrue())
			nbytes, ok := t.GetNBytes()
			Expect(ok).To(BeTrue())
			Expect(nbytes).To(Equal(int64(0)))
		})

		It("leaves an explicit nbytes alone", func() {
			t := core.Tree{"typename": "Blob", "nbytes": int64(16)}
			t.EnsureCreateDefaults(core.InstanceID(1))

			nbytes, _ := t.GetNBytes()
			Expect(nbytes).To(Equal(int64(16)))
		})
	})

	Describe("Clone", func() {
		It("deep copies nested trees so mutation doesn't alias", func() {
			orig := core.Tree{
				"typename": "Blob",
				"nested":   core.Tree{"id": uint64(5)},
			}
			clone := orig.Clone()
			nested := clone["nested"].(core.Tree)
			nested["id"] = uint64(99)

			origNested := orig["nested"].(core.Tree)
			Expect(origNested["id"]).To(Equal(uint64(5)))
		})
	})

	Describe("Members", func() {
		It("collects nested ids at any depth, excluding the top-level id", func() {
			t := core.Tree{
				"id": uint64(1),
				"a":  core.Tree{"id": uint64(2)},
				"b": []any{
					core.Tree{"id": uint64(3)},
				},
			}
			members := t.Members()
			Expect(members).To(ConsistOf(core.ObjectID(2), core.ObjectID(3)))
		})
	})

	Describe("Incomplete flag", func() {
		It("round-trips and clears", func() {
			t := core.Tree{}
			Expect(t.Incomplete()).To(BeFalse())
			t.SetIncomplete(true)
			Expect(t.Incomplete()).To(BeTrue())
			t.ClearIncomplete()
			Expect(t.Incomplete()).To(BeFalse())
			Expect(t.HasKey(core.KeyIncomplete)).To(BeFalse())
		})
	})
})

var _ = Describe("ClusterMeta key encoding", func() {
	It("round-trips instance ids through the sentinel prefix", func() {
		key := core.EncodeClusterMetaKey(core.InstanceID(42))
		Expect(key).To(Equal("s42"))

		id, err := core.DecodeClusterMetaKey(key)
		Expect(err).NotTo(HaveOccurred())
		Expect(id).To(Equal(core.InstanceID(42)))
	})

	It("rejects a key too short to carry a sentinel and digits", func() {
		_, err := core.DecodeClusterMetaKey("s")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("InstanceStatus", func() {
	It("round-trips through its tree encoding", func() {
		in := core.InstanceStatus{
			InstanceID:       3,
			Deployment:       "local",
			MemoryUsage:      1024,
			MemoryLimit:      4096,
			DeferredRequests: 2,
			IPCConnections:   1,
			RPCConnections:   0,
		}
		out, err := core.DecodeInstanceStatus(in.ToTree())
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(in))
	})

	It("fails decode when instance_id is absent", func() {
		_, err := core.DecodeInstanceStatus(core.Tree{"deployment": "local"})
		Expect(err).To(HaveOccurred())
	})
})
