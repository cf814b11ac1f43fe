package jwe

import (
	"crypto/sha256"
	"encoding/binary"
)

// concatKDF derives keyLen bytes from the ECDH shared secret z using the
// NIST SP 800-56A single-step KDF with SHA-256, as profiled for ECDH-ES by
// RFC 7518: rounds of H(counter || z || otherInfo) where otherInfo binds the
// content-encryption algorithm and the derived key length.
func concatKDF(z []byte, algorithm string, keyLen int) []byte {
	otherInfo := buildOtherInfo(algorithm, keyLen)

	hashLen := sha256.Size
	rounds := (keyLen + hashLen - 1) / hashLen
	derived := make([]byte, 0, rounds*hashLen)

	for counter := uint32(1); counter <= uint32(rounds); counter++ {
		h := sha256.New()
		var counterBytes [4]byte
		binary.BigEndian.PutUint32(counterBytes[:], counter)
		h.Write(counterBytes[:])
		h.Write(z)
		h.Write(otherInfo)
		derived = h.Sum(derived)
	}

	return derived[:keyLen]
}

// buildOtherInfo assembles AlgorithmID || PartyUInfo || PartyVInfo ||
// SuppPubInfo. Party infos are empty; SuppPubInfo is the key length in bits.
func buildOtherInfo(algorithm string, keyLen int) []byte {
	buf := make([]byte, 0, 4+len(algorithm)+4+4+4)

	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(algorithm)))
	buf = append(buf, length[:]...)
	buf = append(buf, algorithm...)

	// Empty PartyUInfo and PartyVInfo.
	var zero [4]byte
	buf = append(buf, zero[:]...)
	buf = append(buf, zero[:]...)

	var bits [4]byte
	binary.BigEndian.PutUint32(bits[:], uint32(keyLen*8))
	buf = append(buf, bits[:]...)

	return buf
}
