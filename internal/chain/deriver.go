package chain

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"errors"

	"github.com/gagliardetto/solana-go"
	"github.com/tyler-smith/go-bip39"
)

// BIP-44 path segments for the one-time wallets: m/44'/501'/index'/0'.
// Only the account segment varies and it is keyed by payment id.
const (
	purposeSegment  = 44
	coinTypeSegment = 501
	changeSegment   = 0
	hardenedOffset  = 1 << 31
)

// AddressDeriver produces one-time keypairs from a single mnemonic phrase.
// Derivation is a pure function of the payment id, so an address is always
// recomputable for auditing and the stored copy is never a root of trust.
type AddressDeriver struct {
	seed []byte
}

func NewAddressDeriver(mnemonic string) (*AddressDeriver, error) {
	if mnemonic == "" {
		return nil, errors.New("mnemonic phrase is required")
	}
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, errors.New("mnemonic phrase is malformed")
	}
	return &AddressDeriver{seed: bip39.NewSeed(mnemonic, "")}, nil
}

// DeriveIndex maps a payment id onto a hardened-safe path index: the first
// four bytes of sha256(id) read big-endian, reduced mod 2^31. Distinct ids
// can collide here (about 2^-31 per pair); accepted in exchange for needing
// no index-allocation bookkeeping.
func DeriveIndex(paymentID string) uint32 {
	sum := sha256.Sum256([]byte(paymentID))
	return binary.BigEndian.Uint32(sum[:4]) % hardenedOffset
}

// Derive returns the one-time keypair for a payment id.
func (d *AddressDeriver) Derive(paymentID string) solana.PrivateKey {
	key, chainCode := masterKey(d.seed)
	for _, segment := range []uint32{purposeSegment, coinTypeSegment, DeriveIndex(paymentID), changeSegment} {
		key, chainCode = childKey(key, chainCode, segment|hardenedOffset)
	}
	return solana.PrivateKey(ed25519.NewKeyFromSeed(key))
}

// Address returns the base58 receiving address for a payment id.
func (d *AddressDeriver) Address(paymentID string) solana.PublicKey {
	return d.Derive(paymentID).PublicKey()
}

// SLIP-0010 ed25519 derivation. BIP-32 key-tree libraries are
// secp256k1-only, so the hardened steps are spelled out here.

func masterKey(seed []byte) (key, chainCode []byte) {
	mac := hmac.New(sha512.New, []byte("ed25519 seed"))
	mac.Write(seed)
	sum := mac.Sum(nil)
	return sum[:32], sum[32:]
}

func childKey(parentKey, parentChain []byte, index uint32) (key, chainCode []byte) {
	data := make([]byte, 0, 37)
	data = append(data, 0x00)
	data = append(data, parentKey...)
	data = binary.BigEndian.AppendUint32(data, index)
	mac := hmac.New(sha512.New, parentChain)
	mac.Write(data)
	sum := mac.Sum(nil)
	return sum[:32], sum[32:]
}
