package wire

import "github.com/lichnak/vineyard/core"

// Command names a request/reply type; request and reply share the
// field (spec §4.1).
type Command string

const (
	Register       Command = "register"
	GetData        Command = "get_data"
	CreateData     Command = "create_data"
	DelData        Command = "del_data"
	ListData       Command = "list_data"
	Persist        Command = "persist"
	IfPersist      Command = "if_persist"
	Exists         Command = "exists"
	ShallowCopy    Command = "shallow_copy"
	PutName        Command = "put_name"
	GetName        Command = "get_name"
	DropName       Command = "drop_name"
	MigrateObject  Command = "migrate_object"
	ClusterMeta    Command = "cluster_meta"
	InstanceStatus Command = "instance_status"
	Exit           Command = "exit"
	Error          Command = "error"
)

// Deferrable reports whether a command may be answered immediately or
// must, when its `wait` flag is set, be parked on the deferred queue
// (spec §4.3: get_data and get_name with wait=true).
func (c Command) Deferrable() bool { return c == GetData || c == GetName }

type (
	RegisterReq struct {
		Type       Command         `json:"type"`
		Version    string          `json:"version"`
		InstanceID core.InstanceID `json:"instance_id"`
	}
	RegisterReply struct {
		Type       Command         `json:"type"`
		InstanceID core.InstanceID `json:"instance_id"`
	}

	GetDataReq struct {
		Type       Command        `json:"type"`
		IDs        []core.ObjectID `json:"ids"`
		SyncRemote bool           `json:"sync_remote"`
		Wait       bool           `json:"wait"`
	}
	GetDataReply struct {
		Type    Command                      `json:"type"`
		Content map[core.ObjectID]core.Tree `json:"content"`
	}

	CreateDataReq struct {
		Type    Command   `json:"type"`
		Content core.Tree `json:"content"`
	}
	CreateDataReply struct {
		Type       Command         `json:"type"`
		ID         core.ObjectID   `json:"id"`
		Signature  core.Signature  `json:"signature"`
		InstanceID core.InstanceID `json:"instance_id"`
	}

	DelDataReq struct {
		Type  Command         `json:"type"`
		IDs   []core.ObjectID `json:"ids"`
		Force bool            `json:"force"`
		Deep  bool            `json:"deep"`
	}
	DelDataReply struct {
		Type Command `json:"type"`
	}

	ListDataReq struct {
		Type    Command `json:"type"`
		Pattern string  `json:"pattern"`
		Regex   bool    `json:"regex"`
		Limit   int     `json:"limit"`
	}
	ListDataReply struct {
		Type    Command                     `json:"type"`
		Content map[core.ObjectID]core.Tree `json:"content"`
	}

	PersistReq struct {
		Type Command       `json:"type"`
		ID   core.ObjectID `json:"id"`
	}
	PersistReply struct {
		Type Command `json:"type"`
	}

	IfPersistReq struct {
		Type Command       `json:"type"`
		ID   core.ObjectID `json:"id"`
	}
	IfPersistReply struct {
		Type    Command `json:"type"`
		Persist bool    `json:"persist"`
	}

	ExistsReq struct {
		Type Command       `json:"type"`
		ID   core.ObjectID `json:"id"`
	}
	ExistsReply struct {
		Type   Command `json:"type"`
		Exists bool    `json:"exists"`
	}

	ShallowCopyReq struct {
		Type Command       `json:"type"`
		ID   core.ObjectID `json:"id"`
	}
	ShallowCopyReply struct {
		Type     Command       `json:"type"`
		TargetID core.ObjectID `json:"target_id"`
	}

	PutNameReq struct {
		Type Command       `json:"type"`
		ID   core.ObjectID `json:"id"`
		Name string        `json:"name"`
	}
	PutNameReply struct {
		Type Command `json:"type"`
	}

	GetNameReq struct {
		Type Command `json:"type"`
		Name string  `json:"name"`
		Wait bool    `json:"wait"`
	}
	GetNameReply struct {
		Type Command       `json:"type"`
		ID   core.ObjectID `json:"id"`
	}

	DropNameReq struct {
		Type Command `json:"type"`
		Name string  `json:"name"`
	}
	DropNameReply struct {
		Type Command `json:"type"`
	}

	MigrateObjectReq struct {
		Type Command       `json:"type"`
		ID   core.ObjectID `json:"id"`
	}
	MigrateObjectReply struct {
		Type     Command       `json:"type"`
		ResultID core.ObjectID `json:"result_id"`
	}

	ClusterMetaReq struct {
		Type Command `json:"type"`
	}
	// Content keys are the raw sentinel-prefixed backend keys (spec
	// §4.5); the client strips the sentinel on decode (see
	// client.ClusterMeta and original_source's ClientBase::ClusterInfo).
	ClusterMetaReply struct {
		Type    Command              `json:"type"`
		Content map[string]core.Tree `json:"content"`
	}

	InstanceStatusReq struct {
		Type Command `json:"type"`
	}
	InstanceStatusReply struct {
		Type    Command   `json:"type"`
		Content core.Tree `json:"content"`
	}

	ExitReq struct {
		Type Command `json:"type"`
	}
	ExitReply struct {
		Type Command `json:"type"`
	}

	// ErrorReply is the uniform failure frame for any request: the
	// `type` is always "error"; `kind` is one of the spec §7 error
	// kinds and `message` is a human-readable detail.
	ErrorReply struct {
		Type    Command `json:"type"`
		Kind    string  `json:"kind"`
		Message string  `json:"message"`
	}
)

func NewErrorReply(kind string, message string) ErrorReply {
	return ErrorReply{Type: Error, Kind: kind, Message: message}
}
