package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/crypto/scrypt"
)

// AuthoritySource describes where the mint authority key comes from. Exactly one of
// Secret or Keyfile is used; Secret wins when both are set.
type AuthoritySource struct {
	Secret     string // base58 encoded 64 byte secret key
	Keyfile    string // Solana keygen JSON file, or an encrypted keyfile when Passphrase is set
	Passphrase string
}

var ErrNoAuthority = errors.New("mint authority key not configured")

func (s AuthoritySource) Configured() bool {
	return strings.TrimSpace(s.Secret) != "" || strings.TrimSpace(s.Keyfile) != ""
}

// LoadAuthority decodes the mint authority private key.
func LoadAuthority(src AuthoritySource) (solana.PrivateKey, error) {
	if secret := strings.TrimSpace(src.Secret); secret != "" {
		key, err := solana.PrivateKeyFromBase58(secret)
		if err != nil {
			return nil, fmt.Errorf("invalid mint authority secret: %w", err)
		}
		return key, nil
	}

	if src.Keyfile == "" {
		return nil, ErrNoAuthority
	}

	if src.Passphrase == "" {
		key, err := solana.PrivateKeyFromSolanaKeygenFile(src.Keyfile)
		if err != nil {
			return nil, fmt.Errorf("failed to read authority keyfile: %w", err)
		}
		return key, nil
	}

	data, err := os.ReadFile(src.Keyfile)
	if err != nil {
		return nil, fmt.Errorf("failed to read encrypted authority keyfile: %w", err)
	}
	plaintext, err := decrypt(strings.TrimSpace(string(data)), src.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt authority keyfile: %w", err)
	}
	key, err := solana.PrivateKeyFromBase58(plaintext)
	if err != nil {
		return nil, fmt.Errorf("decrypted authority key is invalid: %w", err)
	}
	return key, nil
}

// EncryptKeyfile reads a Solana keygen file and writes it encrypted with passphrase to out.
func EncryptKeyfile(keygenFile, out, passphrase string) (solana.PublicKey, error) {
	if passphrase == "" {
		return solana.PublicKey{}, fmt.Errorf("passphrase must not be empty")
	}
	key, err := solana.PrivateKeyFromSolanaKeygenFile(keygenFile)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to read keygen file: %w", err)
	}

	ciphertext, err := encrypt(key.String(), passphrase)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if err := os.WriteFile(out, []byte(ciphertext), 0600); err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to write encrypted keyfile: %w", err)
	}

	log.Printf("Encrypted authority key for %s written to %s", key.PublicKey(), out)
	return key.PublicKey(), nil
}

func encrypt(plaintext string, password string) (string, error) {
	key, salt, err := deriveKey(password, nil)
	if err != nil {
		return "", err
	}
	iv := make([]byte, 12)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	ciphertext := aesgcm.Seal(nil, iv, []byte(plaintext), nil)

	return base64.StdEncoding.EncodeToString(salt) + ":" +
		base64.StdEncoding.EncodeToString(iv) + ":" +
		base64.StdEncoding.EncodeToString(ciphertext), nil
}

func decrypt(ciphertext string, password string) (string, error) {
	parts := strings.Split(ciphertext, ":")
	if len(parts) != 3 {
		return "", fmt.Errorf("invalid ciphertext format")
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("invalid salt: %w", err)
	}
	iv, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("invalid nonce: %w", err)
	}
	encryptedData, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("invalid ciphertext: %w", err)
	}

	key, _, err := deriveKey(password, salt)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	plaintext, err := aesgcm.Open(nil, iv, encryptedData, nil)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}

func deriveKey(password string, salt []byte) ([]byte, []byte, error) {
	if salt == nil {
		salt = make([]byte, 32)
		if _, err := rand.Read(salt); err != nil {
			return nil, nil, fmt.Errorf("failed to generate salt: %w", err)
		}
	}

	key, err := scrypt.Key([]byte(password), salt, 1<<15, 8, 1, 32)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to derive key: %w", err)
	}

	return key, salt, nil
}
