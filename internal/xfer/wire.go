package xfer

import (
	"bytes"
	"encoding/gob"

	"github.com/griddist/core/internal/lowcomm"
	"github.com/griddist/core/internal/objmgr"
)

type wireAddData struct {
	DataType int32
	Count    int
	Sizes    []int
	Data     []byte
}

// wireObject is one XICopyObj entry as it crosses the wire: the
// object's identity, its descriptor-encoded payload, the gids of its
// out-pointer fields (replacing symbol-table indices), and any
// attached dependent data.
type wireObject struct {
	GID      objmgr.GID
	Type     int32
	Level    int
	Prio     objmgr.Priority
	Payload  []byte
	Refs     []objmgr.GID
	AddData  []wireAddData
}

type objectBatch struct {
	Objects []wireObject
}

type couplingKind int

const (
	cplAdd couplingKind = iota
	cplMod
	cplDel
)

// couplingNotice is one queued XIAddCpl/XIModCpl/XIDelCpl entry.
type couplingNotice struct {
	GID  objmgr.GID
	Kind couplingKind
	Proc int
	Prio objmgr.Priority
}

type couplingBatch struct {
	Notices []couplingNotice
}

func encodeGob(v any) []byte {
	var buf bytes.Buffer
	// encoding errors here would mean a descriptor produced a value
	// gob cannot represent (e.g. a bare func); treat as a programmer
	// error rather than a recoverable transfer failure.
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func decodeGob(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func putChunk(m *lowcomm.Message, payload []byte) {
	m.SetChunkSize(len(payload))
	copy(m.Chunk(), payload)
}
