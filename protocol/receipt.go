package protocol

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"

	"github.com/karstnet/karst/encoding/bytesutil"
	"github.com/karstnet/karst/encoding/canonical"
	"github.com/karstnet/karst/protocol/primitives"
)

// Domain tags for the two signatures and the proof of work carried by a
// receipt.
const (
	mintTokenDomain  = "KARST_MINT_V1"
	receiptPowDomain = "KARST_RECEIPT_POW"
)

// Receipt proves one paid block fetch: the mint pre signed the payment,
// the client counter signed what it received. Receipts are keyed by
// payment hash, which is globally unique.
type Receipt struct {
	Epoch        primitives.Epoch
	HostPubkey   [32]byte
	BlockCID     [32]byte
	FileRoot     [32]byte
	AssetRoot    *[32]byte
	ClientPubkey [32]byte
	PaymentHash  [32]byte
	ResponseHash [32]byte
	PriceSats    int64
	Nonce        uint64
	PowHash      [32]byte
	ReceiptToken [64]byte
	ClientSig    [64]byte
}

// CID returns the pool key a receipt settles against: the asset root when
// present, the file root otherwise.
func (r *Receipt) CID() [32]byte {
	if r.AssetRoot != nil {
		return *r.AssetRoot
	}
	return r.FileRoot
}

// signedReceipt covers every field but the client signature. Tag order
// follows RFC 8949 sorted order.
type signedReceipt struct {
	Epoch        uint64 `cbor:"epoch"`
	Nonce        uint64 `cbor:"nonce"`
	PowHash      []byte `cbor:"pow_hash"`
	BlockCID     []byte `cbor:"block_cid"`
	FileRoot     []byte `cbor:"file_root"`
	AssetRoot    []byte `cbor:"asset_root,omitempty"`
	PriceSats    int64  `cbor:"price_sats"`
	HostPubkey   []byte `cbor:"host_pubkey"`
	PaymentHash  []byte `cbor:"payment_hash"`
	ClientPubkey []byte `cbor:"client_pubkey"`
	ReceiptToken []byte `cbor:"receipt_token"`
	ResponseHash []byte `cbor:"response_hash"`
}

// SigningBytes returns the canonical encoding the client signature covers.
func (r *Receipt) SigningBytes() ([]byte, error) {
	sr := &signedReceipt{
		Epoch:        uint64(r.Epoch),
		Nonce:        r.Nonce,
		PowHash:      r.PowHash[:],
		BlockCID:     r.BlockCID[:],
		FileRoot:     r.FileRoot[:],
		PriceSats:    r.PriceSats,
		HostPubkey:   r.HostPubkey[:],
		PaymentHash:  r.PaymentHash[:],
		ClientPubkey: r.ClientPubkey[:],
		ReceiptToken: r.ReceiptToken[:],
		ResponseHash: r.ResponseHash[:],
	}
	if r.AssetRoot != nil {
		sr.AssetRoot = r.AssetRoot[:]
	}
	return canonical.Marshal(sr)
}

// MintTokenDigest is the message a receipt mint signs when it pre
// authorizes a paid fetch.
func MintTokenDigest(paymentHash [32]byte, priceSats int64) [32]byte {
	h := sha256.New()
	h.Write([]byte(mintTokenDomain))
	h.Write(paymentHash[:])
	h.Write(bytesutil.Uint64ToBytesBigEndian(uint64(priceSats)))
	return bytesutil.ToBytes32(h.Sum(nil))
}

// MintToken signs the mint digest, producing a receipt token. Used by mint
// tooling and tests.
func MintToken(priv ed25519.PrivateKey, paymentHash [32]byte, priceSats int64) [64]byte {
	digest := MintTokenDigest(paymentHash, priceSats)
	var token [64]byte
	copy(token[:], ed25519.Sign(priv, digest[:]))
	return token
}

// VerifyMintToken checks the receipt token against each configured mint
// key and accepts the first match.
func (r *Receipt) VerifyMintToken(mintKeys []ed25519.PublicKey) bool {
	digest := MintTokenDigest(r.PaymentHash, r.PriceSats)
	for _, key := range mintKeys {
		if ed25519.Verify(key, digest[:], r.ReceiptToken[:]) {
			return true
		}
	}
	return false
}

// SignAsClient computes and attaches the client signature.
func (r *Receipt) SignAsClient(priv ed25519.PrivateKey) error {
	msg, err := r.SigningBytes()
	if err != nil {
		return err
	}
	digest := sha256.Sum256(msg)
	copy(r.ClientSig[:], ed25519.Sign(priv, digest[:]))
	return nil
}

// VerifyClientSig checks the client signature against the client pubkey
// embedded in the receipt.
func (r *Receipt) VerifyClientSig() (bool, error) {
	msg, err := r.SigningBytes()
	if err != nil {
		return false, err
	}
	digest := sha256.Sum256(msg)
	return ed25519.Verify(r.ClientPubkey[:], digest[:], r.ClientSig[:]), nil
}

// ReceiptPowDigest hashes a payment hash with a candidate nonce.
func ReceiptPowDigest(paymentHash [32]byte, nonce uint64) [32]byte {
	h := sha256.New()
	h.Write([]byte(receiptPowDomain))
	h.Write(paymentHash[:])
	h.Write(bytesutil.Uint64ToBytesBigEndian(nonce))
	return bytesutil.ToBytes32(h.Sum(nil))
}

// VerifyPow checks the receipt's anti spam proof.
func (r *Receipt) VerifyPow(bits uint) bool {
	digest := ReceiptPowDigest(r.PaymentHash, r.Nonce)
	if digest != r.PowHash {
		return false
	}
	return HashMeetsDifficulty(digest, bits)
}

// SolveReceiptPow grinds a receipt nonce for the given difficulty.
func SolveReceiptPow(paymentHash [32]byte, bits uint) (uint64, [32]byte) {
	for nonce := uint64(0); ; nonce++ {
		digest := ReceiptPowDigest(paymentHash, nonce)
		if HashMeetsDifficulty(digest, bits) {
			return nonce, digest
		}
	}
}

// ReceiptEnvelope is the JSON wire form of a receipt.
type ReceiptEnvelope struct {
	Epoch        uint64 `json:"epoch"`
	HostPubkey   string `json:"host_pubkey"`
	BlockCID     string `json:"block_cid"`
	FileRoot     string `json:"file_root"`
	AssetRoot    string `json:"asset_root,omitempty"`
	ClientPubkey string `json:"client_pubkey"`
	PaymentHash  string `json:"payment_hash"`
	ResponseHash string `json:"response_hash"`
	PriceSats    int64  `json:"price_sats"`
	Nonce        uint64 `json:"nonce"`
	PowHash      string `json:"pow_hash"`
	ReceiptToken string `json:"receipt_token"`
	ClientSig    string `json:"client_sig"`
}

// Parse validates the wire receipt. The returned error is always a
// *ValidationError with code invalid_receipt.
func (w *ReceiptEnvelope) Parse() (*Receipt, *ValidationError) {
	fail := func(detail string) *ValidationError {
		return failedValidation("invalid_receipt", detail)
	}
	host, err := bytesutil.DecodeHex32(w.HostPubkey)
	if err != nil {
		return nil, fail("host_pubkey must be 64 hex characters")
	}
	blockCID, err := bytesutil.DecodeHex32(w.BlockCID)
	if err != nil {
		return nil, fail("block_cid must be 64 hex characters")
	}
	fileRoot, err := bytesutil.DecodeHex32(w.FileRoot)
	if err != nil {
		return nil, fail("file_root must be 64 hex characters")
	}
	client, err := bytesutil.DecodeHex32(w.ClientPubkey)
	if err != nil {
		return nil, fail("client_pubkey must be 64 hex characters")
	}
	paymentHash, err := bytesutil.DecodeHex32(w.PaymentHash)
	if err != nil {
		return nil, fail("payment_hash must be 64 hex characters")
	}
	responseHash, err := bytesutil.DecodeHex32(w.ResponseHash)
	if err != nil {
		return nil, fail("response_hash must be 64 hex characters")
	}
	powHash, err := bytesutil.DecodeHex32(w.PowHash)
	if err != nil {
		return nil, fail("pow_hash must be 64 hex characters")
	}
	if w.PriceSats < 0 {
		return nil, fail("price_sats must be non negative")
	}
	token, err := hex.DecodeString(w.ReceiptToken)
	if err != nil || len(token) != ed25519.SignatureSize {
		return nil, fail("receipt_token must be 128 hex characters")
	}
	clientSig, err := hex.DecodeString(w.ClientSig)
	if err != nil || len(clientSig) != ed25519.SignatureSize {
		return nil, fail("client_sig must be 128 hex characters")
	}
	r := &Receipt{
		Epoch:        primitives.Epoch(w.Epoch),
		HostPubkey:   host,
		BlockCID:     blockCID,
		FileRoot:     fileRoot,
		ClientPubkey: client,
		PaymentHash:  paymentHash,
		ResponseHash: responseHash,
		PriceSats:    w.PriceSats,
		Nonce:        w.Nonce,
		PowHash:      powHash,
	}
	if w.AssetRoot != "" {
		assetRoot, err := bytesutil.DecodeHex32(w.AssetRoot)
		if err != nil {
			return nil, fail("asset_root must be 64 hex characters")
		}
		r.AssetRoot = &assetRoot
	}
	copy(r.ReceiptToken[:], token)
	copy(r.ClientSig[:], clientSig)
	return r, nil
}

// Wire converts a parsed receipt back to its JSON form.
func (r *Receipt) Wire() *ReceiptEnvelope {
	w := &ReceiptEnvelope{
		Epoch:        uint64(r.Epoch),
		HostPubkey:   bytesutil.EncodeHex(r.HostPubkey[:]),
		BlockCID:     bytesutil.EncodeHex(r.BlockCID[:]),
		FileRoot:     bytesutil.EncodeHex(r.FileRoot[:]),
		ClientPubkey: bytesutil.EncodeHex(r.ClientPubkey[:]),
		PaymentHash:  bytesutil.EncodeHex(r.PaymentHash[:]),
		ResponseHash: bytesutil.EncodeHex(r.ResponseHash[:]),
		PriceSats:    r.PriceSats,
		Nonce:        r.Nonce,
		PowHash:      bytesutil.EncodeHex(r.PowHash[:]),
		ReceiptToken: bytesutil.EncodeHex(r.ReceiptToken[:]),
		ClientSig:    bytesutil.EncodeHex(r.ClientSig[:]),
	}
	if r.AssetRoot != nil {
		w.AssetRoot = bytesutil.EncodeHex(r.AssetRoot[:])
	}
	return w
}
