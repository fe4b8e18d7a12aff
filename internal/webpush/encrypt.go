package webpush

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/and161185/goph-push/internal/crypto"
	"github.com/and161185/goph-push/internal/errs"
)

// aes128gcm record layout (RFC 8188 header, RFC 8291 parameters).
const (
	RecordSize = 4096
	saltLen    = 16
	tagLen     = 16
	cekLen     = 16
	nonceLen   = 12
	ikmLen     = 32

	// lastRecordDelimiter marks the final (here: only) record.
	lastRecordDelimiter = 0x02

	// MaxPlaintextLen is the largest payload that fits one record.
	MaxPlaintextLen = RecordSize - tagLen - 1

	headerLen = saltLen + 4 + 1 + PublicKeyLen
)

var (
	infoWebPush = []byte("WebPush: info\x00")
	infoCEK     = []byte("Content-Encoding: aes128gcm\x00")
	infoNonce   = []byte("Content-Encoding: nonce\x00")
)

// Encrypt produces an aes128gcm message body that only the holder of the
// subscription's private key and auth secret can read. Every call uses a new
// ephemeral key pair and a new salt.
func Encrypt(subscriberPublicKey, authSecret, plaintext []byte) ([]byte, error) {
	if len(plaintext)+1+tagLen > RecordSize {
		return nil, fmt.Errorf("%w: %d bytes, max %d", errs.ErrPayloadTooLarge, len(plaintext), MaxPlaintextLen)
	}
	uaPublic, err := parseSubscriberKey(subscriberPublicKey, authSecret)
	if err != nil {
		return nil, err
	}
	ephemeral, err := ecdh.P256().GenerateKey(crypto.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ephemeral key: %w", err)
	}
	salt, err := crypto.RandBytes(saltLen)
	if err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return seal(uaPublic, authSecret, ephemeral, salt, plaintext)
}

// seal is Encrypt with the random inputs supplied by the caller.
func seal(uaPublic *ecdh.PublicKey, authSecret []byte, ephemeral *ecdh.PrivateKey, salt, plaintext []byte) ([]byte, error) {
	shared, err := ephemeral.ECDH(uaPublic)
	if err != nil {
		return nil, fmt.Errorf("ecdh: %w", err)
	}
	asPublic := ephemeral.PublicKey().Bytes()

	cek, nonce, err := contentKeys(shared, authSecret, uaPublic.Bytes(), asPublic, salt)
	if err != nil {
		return nil, err
	}
	gcm, err := newGCM(cek)
	if err != nil {
		return nil, err
	}

	record := make([]byte, 0, len(plaintext)+1)
	record = append(record, plaintext...)
	record = append(record, lastRecordDelimiter)

	body := make([]byte, headerLen, headerLen+len(record)+tagLen)
	copy(body, salt)
	binary.BigEndian.PutUint32(body[saltLen:], RecordSize)
	body[saltLen+4] = PublicKeyLen
	copy(body[saltLen+5:], asPublic)
	return gcm.Seal(body, nonce, record, nil), nil
}

// contentKeys runs the RFC 8291 key schedule:
//
//	IKM   = HKDF(auth, ecdh, "WebPush: info\0" || ua_public || as_public, 32)
//	CEK   = HKDF(salt, IKM, "Content-Encoding: aes128gcm\0", 16)
//	NONCE = HKDF(salt, IKM, "Content-Encoding: nonce\0", 12)
func contentKeys(shared, authSecret, uaPublic, asPublic, salt []byte) (cek, nonce []byte, err error) {
	info := make([]byte, 0, len(infoWebPush)+len(uaPublic)+len(asPublic))
	info = append(info, infoWebPush...)
	info = append(info, uaPublic...)
	info = append(info, asPublic...)

	ikm, err := hkdfSHA256(shared, authSecret, info, ikmLen)
	if err != nil {
		return nil, nil, err
	}
	if cek, err = hkdfSHA256(ikm, salt, infoCEK, cekLen); err != nil {
		return nil, nil, err
	}
	if nonce, err = hkdfSHA256(ikm, salt, infoNonce, nonceLen); err != nil {
		return nil, nil, err
	}
	return cek, nonce, nil
}

func hkdfSHA256(secret, salt, info []byte, n int) ([]byte, error) {
	out := make([]byte, n)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, info), out); err != nil {
		return nil, fmt.Errorf("hkdf: %w", err)
	}
	return out, nil
}

func newGCM(cek []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(cek)
	if err != nil {
		return nil, fmt.Errorf("aes: %w", err)
	}
	return cipher.NewGCM(block)
}
