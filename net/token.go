package net

import (
	"encoding/binary"

	"github.com/lcx/nexus/crypto"
)

// Token is the connection credential a client presents in its first frame.
// The outer fields are readable by anyone holding the session key (they
// arrive inside an encrypted frame); the private part is sealed separately
// by the issuing authenticator so it is tamper-evident even against a
// client replaying a captured token body.
//
//	protocol:u16 BE | version:u16 BE | expire:u64 BE | challenge:u64 BE | private
//
// The private part is sealed with nonce = challenge and the outer fields as
// associated data, so no field of the token can be altered independently.
type Token struct {
	Protocol  uint16
	Version   uint16
	Expire    uint64 // unix seconds
	Challenge uint64
	private   []byte
}

// PrivateData is the authenticator-issued identity inside a token.
type PrivateData struct {
	ClientID uint64
}

const (
	privateDataSize = 8
	sealedPrivSize  = privateDataSize + crypto.TagSize
	tokenSize       = 2 + 2 + 8 + 8 + sealedPrivSize
)

// tokenAAD binds the private part to the cleartext token fields, in the
// exact byte layout the authenticator signs.
func tokenAAD(protocol, version uint16, expire uint64) [12]byte {
	var aad [12]byte
	binary.LittleEndian.PutUint16(aad[0:2], protocol)
	binary.LittleEndian.PutUint16(aad[2:4], version)
	binary.LittleEndian.PutUint64(aad[4:12], expire)
	return aad
}

// SealToken produces a complete token body. It is the authenticator side of
// the handshake, exported for token issuers and used verbatim by tests and
// the client codec.
func SealToken(key *crypto.Key, protocol, version uint16, expire, challenge uint64, priv PrivateData) []byte {
	body := make([]byte, 0, tokenSize)
	body = binary.BigEndian.AppendUint16(body, protocol)
	body = binary.BigEndian.AppendUint16(body, version)
	body = binary.BigEndian.AppendUint64(body, expire)
	body = binary.BigEndian.AppendUint64(body, challenge)

	var plain [privateDataSize]byte
	binary.BigEndian.PutUint64(plain[:], priv.ClientID)
	aad := tokenAAD(protocol, version, expire)
	return key.Seal(body, plain[:], aad[:], challenge)
}

// decodeToken parses a token frame body. Only structure is checked here;
// field validation needs the endpoint's config and clock.
func decodeToken(body []byte) (Token, error) {
	if len(body) != tokenSize {
		return Token{}, fatalf(KindCorruption, "token body is %d bytes, want %d", len(body), tokenSize)
	}
	return Token{
		Protocol:  binary.BigEndian.Uint16(body[0:2]),
		Version:   binary.BigEndian.Uint16(body[2:4]),
		Expire:    binary.BigEndian.Uint64(body[4:12]),
		Challenge: binary.BigEndian.Uint64(body[12:20]),
		private:   body[20:],
	}, nil
}

// open authenticates and decrypts the private part. A tag failure means the
// token was not issued for this session key or was altered in transit.
func (t *Token) open(key *crypto.Key) (PrivateData, error) {
	aad := tokenAAD(t.Protocol, t.Version, t.Expire)
	var buf [privateDataSize]byte
	plain, err := key.Open(buf[:0], t.private, aad[:], t.Challenge)
	if err != nil {
		return PrivateData{}, fatal(KindCorruption, err)
	}
	return PrivateData{ClientID: binary.BigEndian.Uint64(plain)}, nil
}
