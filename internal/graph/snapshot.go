package graph

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"git.home.luguber.info/inful/kalamos/internal/util/sets"
)

// snapshotVersion guards the on-disk format; bump on incompatible change.
const snapshotVersion = 1

type snapshotFile struct {
	Version int                         `json:"version"`
	Outputs map[string]snapshotArtifact `json:"outputs"`
}

type snapshotArtifact struct {
	Hash      string   `json:"hash"`
	Producers []string `json:"producers"`
}

// Save persists the graph as a plain OutputID -> {hash, producer list}
// mapping, written atomically via a temp file so a crash never leaves a
// half-written snapshot. Producer lists are sorted for stable diffs.
func (g *Graph) Save(path string) error {
	g.mu.RLock()
	file := snapshotFile{Version: snapshotVersion, Outputs: make(map[string]snapshotArtifact, len(g.producers))}
	for out, prods := range g.producers {
		names := make([]string, 0, prods.Len())
		for p := range prods {
			names = append(names, p.String())
		}
		sort.Strings(names)
		file.Outputs[string(out)] = snapshotArtifact{Hash: g.hashes[out], Producers: names}
	}
	g.mu.RUnlock()

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("encode graph snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write graph snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace graph snapshot: %w", err)
	}
	return nil
}

// Load restores a graph from a snapshot written by Save. Any failure
// (missing file, corrupt JSON, unknown version) just means incremental
// state did not survive: the caller falls back to an empty graph and a
// full first pass.
func Load(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file snapshotFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode graph snapshot %s: %w", path, err)
	}
	if file.Version != snapshotVersion {
		return nil, fmt.Errorf("graph snapshot %s: unsupported version %d", path, file.Version)
	}

	g := New()
	for out, art := range file.Outputs {
		prods := sets.New[ProducerID]()
		for _, s := range art.Producers {
			p, err := ParseProducer(s)
			if err != nil {
				return nil, fmt.Errorf("graph snapshot %s: %w", path, err)
			}
			prods.Add(p)
		}
		pass := g.BeginPass(OutputID(out))
		pass.observed = prods
		pass.Commit(art.Hash)
	}
	return g, nil
}
