// Package appdata builds the metadata document attached to a settlement
// order. The document embeds the backing instance address as the target of a
// post-settlement hook, so the venue's execution layer can route a callback
// into the instance once the trade settles. The venue indexes orders by the
// keccak-256 hash of the document, so the encoding must be byte-identical for
// identical inputs.
package appdata

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// AppCode identifies this application to the settlement venue.
	AppCode = "backingd"

	// Version is the appData schema version understood by the venue.
	Version = "1.1.0"

	// HookCallData is the ABI selector of the instance's pool-creation entry
	// point, invoked by the venue's hook executor after settlement.
	HookCallData = "0x13ea5d29" // createLBP()

	// HookGasLimit is the gas budget granted to the post-settlement hook.
	HookGasLimit = "6000000"
)

// Document is the rendered appData string and its content hash.
type Document struct {
	Content string
	Hash    common.Hash
}

// Build renders the appData document for an instance. The JSON is assembled
// by hand rather than through encoding/json: map iteration order would make
// the output non-deterministic, and the hash must be stable.
func Build(instance common.Address) Document {
	var b strings.Builder
	fmt.Fprintf(&b, `{"appCode":"%s",`, AppCode)
	fmt.Fprintf(&b, `"metadata":{"hooks":{"post":[{"callData":"%s","gasLimit":"%s","target":"%s"}],"version":"1.0.0"}},`,
		HookCallData, HookGasLimit, strings.ToLower(instance.Hex()))
	fmt.Fprintf(&b, `"version":"%s"}`, Version)

	content := b.String()
	return Document{
		Content: content,
		Hash:    crypto.Keccak256Hash([]byte(content)),
	}
}

// HashFor returns only the content hash for an instance address.
func HashFor(instance common.Address) common.Hash {
	return Build(instance).Hash
}
