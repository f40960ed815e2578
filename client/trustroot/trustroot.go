// Package trustroot implements the structural chunks that tie generations
// together: the TrustRoot chunk listing every known generation id, the
// Generation chunk referencing one snapshot's IndexPart chunks, and the
// finalization sequence that chains them together at the end of a backup.
package trustroot

import (
	"context"
	"encoding/json"

	"github.com/uplo-tech/errors"

	"github.com/obnam-mirror/obnam2/client/chunkcodec"
)

// ChunkClient is the subset of the chunk server's HTTP API needed to read
// and write structural chunks, and to locate the current TrustRoot by its
// reserved label.
type ChunkClient interface {
	Get(ctx context.Context, id string) (body []byte, label string, err error)
	Upload(ctx context.Context, label string, body []byte) (id string, err error)
	SearchByLabel(ctx context.Context, label string) ([]string, error)
	Delete(ctx context.Context, id string) error
}

// TrustRoot is the per-client chunk listing every known generation id in
// order; "latest" always means its last entry.
type TrustRoot struct {
	GenerationIDs []string          `json:"generation_ids"`
	ClientMeta    map[string]string `json:"client_meta,omitempty"`
}

// Latest returns the most recent generation id, or "" if none exist yet.
func (t TrustRoot) Latest() string {
	if len(t.GenerationIDs) == 0 {
		return ""
	}
	return t.GenerationIDs[len(t.GenerationIDs)-1]
}

// ErrUnknownAlias is returned by Resolve when the alias names no generation.
var ErrUnknownAlias = errors.New("unknown generation alias")

// Resolve maps "latest", a stored alias, or an explicit generation id to a
// generation id.
func (t TrustRoot) Resolve(alias string) (string, error) {
	if alias == "latest" {
		if id := t.Latest(); id != "" {
			return id, nil
		}
		return "", errors.AddContext(ErrUnknownAlias, alias)
	}
	if id, ok := t.ClientMeta[alias]; ok {
		return id, nil
	}
	for _, id := range t.GenerationIDs {
		if id == alias {
			return id, nil
		}
	}
	return "", errors.AddContext(ErrUnknownAlias, alias)
}

// withGeneration returns a copy of t with id appended to GenerationIDs.
func (t TrustRoot) withGeneration(id string) TrustRoot {
	ids := make([]string, len(t.GenerationIDs), len(t.GenerationIDs)+1)
	copy(ids, t.GenerationIDs)
	ids = append(ids, id)
	return TrustRoot{GenerationIDs: ids, ClientMeta: t.ClientMeta}
}

// Generation is one immutable snapshot: a schema version plus an ordered
// reference to the index database's IndexPart chunks.
type Generation struct {
	SchemaVersionMajor int      `json:"schema_version_major"`
	SchemaVersionMinor int      `json:"schema_version_minor"`
	IndexPartIDs       []string `json:"index_part_ids"`
	EndedUnixNano      int64    `json:"ended_unix_nano,omitempty"`
}

const (
	labelTrustRoot  = "obnam:trust-root"
	labelGeneration = "obnam:generation"

	// IndexPartAssociatedData is the AEAD associated data used for IndexPart
	// chunks; restorer needs it too, to decrypt IndexParts it downloads
	// directly rather than through a Finalizer.
	IndexPartAssociatedData = "obnam:index-part"
)

// loadJSON downloads, decrypts, and unmarshals a structural chunk.
func loadJSON(ctx context.Context, client ChunkClient, codec *chunkcodec.Codec, id, associatedData string, out interface{}) error {
	body, _, err := client.Get(ctx, id)
	if err != nil {
		return errors.AddContext(err, "could not download chunk "+id)
	}
	plaintext, err := codec.Decrypt(body, []byte(associatedData))
	if err != nil {
		return errors.AddContext(err, "could not decrypt chunk "+id)
	}
	if err := json.Unmarshal(plaintext, out); err != nil {
		return errors.AddContext(err, "could not parse chunk "+id)
	}
	return nil
}

// saveJSON marshals, encrypts, and uploads a structural chunk, returning
// its server-assigned id.
func saveJSON(ctx context.Context, client ChunkClient, codec *chunkcodec.Codec, label, associatedData string, in interface{}) (string, error) {
	plaintext, err := json.Marshal(in)
	if err != nil {
		return "", errors.AddContext(err, "could not serialize chunk")
	}
	envelope := codec.Encrypt(plaintext, []byte(associatedData))
	id, err := client.Upload(ctx, label, envelope)
	if err != nil {
		return "", errors.AddContext(err, "could not upload chunk")
	}
	return id, nil
}

// LoadTrustRoot downloads and decrypts the TrustRoot chunk at id. An empty
// id (no backups taken yet) returns the zero TrustRoot.
func LoadTrustRoot(ctx context.Context, client ChunkClient, codec *chunkcodec.Codec, id string) (TrustRoot, error) {
	if id == "" {
		return TrustRoot{}, nil
	}
	var tr TrustRoot
	if err := loadJSON(ctx, client, codec, id, labelTrustRoot, &tr); err != nil {
		return TrustRoot{}, err
	}
	return tr, nil
}

// LoadGeneration downloads and decrypts the Generation chunk at id.
func LoadGeneration(ctx context.Context, client ChunkClient, codec *chunkcodec.Codec, id string) (Generation, error) {
	var g Generation
	if err := loadJSON(ctx, client, codec, id, labelGeneration, &g); err != nil {
		return Generation{}, err
	}
	return g, nil
}

// Locate finds the current TrustRoot chunk on the server by its reserved
// label, without relying on any client-local state. Normally
// FinalizeGeneration leaves exactly one TrustRoot chunk behind, so there is
// one match. If a crash happened between uploading a new TrustRoot and
// deleting the old one, several may exist; the one with the longest
// GenerationIDs list wins, since a TrustRoot is only ever replaced by one
// that extends it.
func Locate(ctx context.Context, client ChunkClient, codec *chunkcodec.Codec) (TrustRoot, string, error) {
	ids, err := client.SearchByLabel(ctx, labelTrustRoot)
	if err != nil {
		return TrustRoot{}, "", errors.AddContext(err, "could not search for trust root")
	}
	if len(ids) == 0 {
		return TrustRoot{}, "", nil
	}

	bestID := ids[0]
	best, err := LoadTrustRoot(ctx, client, codec, bestID)
	if err != nil {
		return TrustRoot{}, "", err
	}
	for _, id := range ids[1:] {
		tr, err := LoadTrustRoot(ctx, client, codec, id)
		if err != nil {
			return TrustRoot{}, "", err
		}
		if len(tr.GenerationIDs) > len(best.GenerationIDs) {
			best, bestID = tr, id
		}
	}
	return best, bestID, nil
}
