package authcipher

import (
	"crypto/aes"
	"crypto/cipher"

	"github.com/viruswevh/ObscurCore/internal/athena"
	"github.com/viruswevh/ObscurCore/internal/obscerr"
)

func pkcs7Pad(in []byte, blockSize int) []byte {
	padLen := blockSize - len(in)%blockSize
	out := make([]byte, len(in)+padLen)
	copy(out, in)
	for i := len(in); i < len(out); i++ {
		out[i] = byte(padLen)
	}
	return out
}

func pkcs7Unpad(in []byte, blockSize int) ([]byte, error) {
	if len(in) == 0 || len(in)%blockSize != 0 {
		return nil, obscerr.ErrFormatMalformed
	}
	padLen := int(in[len(in)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(in) {
		return nil, obscerr.ErrFormatMalformed
	}
	for _, b := range in[len(in)-padLen:] {
		if int(b) != padLen {
			return nil, obscerr.ErrFormatMalformed
		}
	}
	return in[:len(in)-padLen], nil
}

func cbcEncrypt(block cipher.Block, iv, plaintext []byte, padding athena.Padding) ([]byte, error) {
	if padding != athena.PaddingPKCS7 {
		return nil, obscerr.Wrap(obscerr.ErrConfigurationInvalid, "cbc requires PKCS7 padding")
	}
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out, nil
}

func cbcDecrypt(block cipher.Block, iv, ciphertext []byte, padding athena.Padding) ([]byte, error) {
	if padding != athena.PaddingPKCS7 {
		return nil, obscerr.Wrap(obscerr.ErrConfigurationInvalid, "cbc requires PKCS7 padding")
	}
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, obscerr.ErrFormatMalformed
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	return pkcs7Unpad(out, aes.BlockSize)
}
