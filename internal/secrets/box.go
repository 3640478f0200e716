package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"sync"
)

// 进程级密钥：由长期应用密钥派生一次，只读共享，无需销毁流程
var (
	initOnce   sync.Once
	processBox *Box
	initErr    error
)

var ErrNotInitialized = errors.New("secrets: process key not initialized")

// Box AES-GCM 对称加密盒
type Box struct {
	aead cipher.AEAD
}

// NewBox 从应用密钥派生 256 位密钥并创建加密盒
func NewBox(appSecret string) (*Box, error) {
	if appSecret == "" {
		return nil, errors.New("empty application secret")
	}

	key := sha256.Sum256([]byte(appSecret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &Box{aead: aead}, nil
}

// Init 初始化进程级加密盒（幂等，仅第一次生效）
func Init(appSecret string) error {
	initOnce.Do(func() {
		processBox, initErr = NewBox(appSecret)
	})
	return initErr
}

// Encrypt 加密并返回 base64 密文（nonce 前置）
func (b *Box) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := b.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt 解密 base64 密文
func (b *Box) Decrypt(encoded string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}

	nonceSize := b.aead.NonceSize()
	if len(data) < nonceSize {
		return nil, errors.New("invalid ciphertext: too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	return b.aead.Open(nil, nonce, ciphertext, nil)
}

// Encrypt 使用进程级加密盒加密
func Encrypt(plaintext []byte) (string, error) {
	if processBox == nil {
		return "", ErrNotInitialized
	}
	return processBox.Encrypt(plaintext)
}

// Decrypt 使用进程级加密盒解密
func Decrypt(encoded string) ([]byte, error) {
	if processBox == nil {
		return nil, ErrNotInitialized
	}
	return processBox.Decrypt(encoded)
}
