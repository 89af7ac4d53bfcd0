package source

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/cbergoon/merkletree"

	"github.com/hlop3z/tilehouse/internal/alerr"
)

// sourceContent implements merkletree.Content for one catalog member.
type sourceContent struct {
	id   string
	hash string
}

func (s sourceContent) CalculateHash() ([]byte, error) {
	h := sha256.Sum256([]byte(s.id + ":" + s.hash))
	return h[:], nil
}

func (s sourceContent) Equals(other merkletree.Content) (bool, error) {
	o, ok := other.(sourceContent)
	if !ok {
		return false, nil
	}
	return s.id == o.id && s.hash == o.hash, nil
}

// computeDigest returns the merkle root over the members in id order.
func computeDigest(c *Catalog) (string, error) {
	if len(c.ids) == 0 {
		return emptyDigest(), nil
	}

	contents := make([]merkletree.Content, 0, len(c.ids))
	for _, id := range c.ids {
		raw, err := json.Marshal(c.sources[id])
		if err != nil {
			return "", alerr.Wrap(alerr.EInternalError, err, "failed to encode source for digest").WithSource(id)
		}
		contents = append(contents, sourceContent{id: id, hash: hashBytes(raw)})
	}

	tree, err := merkletree.NewTree(contents)
	if err != nil {
		return "", alerr.Wrap(alerr.EInternalError, err, "failed to build merkle tree")
	}
	return hex.EncodeToString(tree.MerkleRoot()), nil
}

func hashBytes(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

func emptyDigest() string {
	return hashBytes(nil)
}
