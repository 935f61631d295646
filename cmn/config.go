// Package cmn holds ambient, cross-package concerns: configuration,
// the read-mostly snapshot, the error taxonomy (cmn/cos) and logging
// (cmn/nlog).
/*
 * ServerSpec is grounded on spec §6 "Server spec (input configuration)"
 * and loaded the way the teacher loads its own ClusterConfig: a JSON
 * document unmarshaled with jsoniter, then defaults filled in.
 */
package cmn

import (
	"os"

	"github.com/lichnak/vineyard/cmn/cos"
)

// Deployment enumerates the two deployment modes named in spec §6.
type Deployment string

const (
	DeploymentLocal       Deployment = "local"
	DeploymentDistributed Deployment = "distributed"
)

// MetadataConfig is the nested subtree configuring the external
// metadata service (spec §6). Only the knobs this module's local
// (buntdb-backed) façade implementation understands are named; a
// distributed implementation would recognize more (see SPEC_FULL.md
// Open Questions).
type MetadataConfig struct {
	// Path is the on-disk location of the local backing store.
	// Empty means in-memory only (suitable for tests).
	Path string `json:"path"`
}

// ServerSpec is the JSON input configuration document (spec §6).
type ServerSpec struct {
	Deployment  Deployment     `json:"deployment"`
	IPCSocket   string         `json:"ipc_socket"`
	RPCEndpoint string         `json:"rpc_endpoint"`
	Size        int64          `json:"size"`
	Metadata    MetadataConfig `json:"metadata"`
}

// LoadServerSpec reads and decodes a server spec document, then fills
// in defaults (spec.Deployment defaults to local; a zero Size means
// "unbounded", matching the §6 configuration surface).
func LoadServerSpec(path string) (*ServerSpec, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, cos.Wrap(cos.ErrIOError, "read server spec %s: %v", path, err)
	}
	var spec ServerSpec
	if err := cos.JSON.Unmarshal(b, &spec); err != nil {
		return nil, cos.Wrap(cos.ErrBadPayload, "decode server spec: %v", err)
	}
	spec.setDefaults()
	return &spec, nil
}

func (s *ServerSpec) setDefaults() {
	if s.Deployment == "" {
		s.Deployment = DeploymentLocal
	}
}
