package walletexec

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	vault "github.com/hashicorp/vault/api"
)

// Keystore envelope-encrypts session-wallet private keys at rest. Plaintext
// key material exists only inside the executor, never in storage.
type Keystore interface {
	Encrypt(ctx context.Context, data []byte) ([]byte, error)
	Decrypt(ctx context.Context, encryptedData []byte) ([]byte, error)

	// Backend returns the backend name recorded alongside each key, so a
	// deployment can tell which backend encrypted a given row.
	Backend() string
}

// KeystoreBackend identifies a keystore implementation.
type KeystoreBackend string

const (
	// BackendLocal encrypts with a local AES-GCM master key. Suitable for
	// development and simple self-hosted deployments.
	BackendLocal KeystoreBackend = "local"

	// BackendAWSKMS encrypts through an AWS KMS key.
	BackendAWSKMS KeystoreBackend = "aws-kms"

	// BackendVault encrypts through a HashiCorp Vault Transit key.
	BackendVault KeystoreBackend = "vault"
)

// KeystoreConfig selects and configures a keystore backend.
type KeystoreConfig struct {
	Backend string

	// Local backend: hex-encoded 32-byte master key.
	LocalMasterKeyHex string

	// AWS KMS backend.
	AWSKMSKeyID  string
	AWSKMSRegion string

	// Vault backend.
	VaultAddress    string
	VaultToken      string
	VaultTransitKey string
}

// NewKeystore creates the configured keystore backend. An empty backend
// defaults to local.
func NewKeystore(cfg *KeystoreConfig) (Keystore, error) {
	switch KeystoreBackend(cfg.Backend) {
	case BackendLocal, "":
		return NewLocalKeystore(cfg.LocalMasterKeyHex)
	case BackendAWSKMS:
		return NewAWSKMSKeystore(cfg.AWSKMSKeyID, cfg.AWSKMSRegion)
	case BackendVault:
		return NewVaultKeystore(cfg.VaultAddress, cfg.VaultToken, cfg.VaultTransitKey)
	default:
		return nil, fmt.Errorf("unsupported keystore backend: %s (supported: %s, %s, %s)",
			cfg.Backend, BackendLocal, BackendAWSKMS, BackendVault)
	}
}

// LocalKeystore implements Keystore with AES-256-GCM under a local master
// key.
type LocalKeystore struct {
	masterKey []byte
}

// NewLocalKeystore creates a local keystore. The master key must be exactly
// 32 hex-encoded bytes; weak or truncated keys are rejected rather than
// padded.
func NewLocalKeystore(masterKeyHex string) (*LocalKeystore, error) {
	if masterKeyHex == "" {
		return nil, fmt.Errorf("master key is required for the local keystore")
	}
	masterKey, err := hex.DecodeString(masterKeyHex)
	if err != nil {
		return nil, fmt.Errorf("master key must be hex encoded: %w", err)
	}
	if len(masterKey) != 32 {
		return nil, fmt.Errorf("master key must be 32 bytes, got %d", len(masterKey))
	}
	return &LocalKeystore{masterKey: masterKey}, nil
}

func (k *LocalKeystore) Encrypt(_ context.Context, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(k.masterKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, data, nil), nil
}

func (k *LocalKeystore) Decrypt(_ context.Context, encryptedData []byte) ([]byte, error) {
	block, err := aes.NewCipher(k.masterKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(encryptedData) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := encryptedData[:nonceSize], encryptedData[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

func (k *LocalKeystore) Backend() string {
	return string(BackendLocal)
}

// AWSKMSKeystore implements Keystore against an AWS KMS key.
type AWSKMSKeystore struct {
	keyID  string
	client *kms.Client
}

// NewAWSKMSKeystore creates an AWS KMS keystore. Credentials come from the
// default chain: env vars, shared config, IAM role.
func NewAWSKMSKeystore(keyID, region string) (*AWSKMSKeystore, error) {
	if keyID == "" {
		return nil, fmt.Errorf("AWS KMS key ID is required")
	}
	if region == "" {
		return nil, fmt.Errorf("AWS region is required")
	}

	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSKMSKeystore{
		keyID:  keyID,
		client: kms.NewFromConfig(cfg),
	}, nil
}

func (k *AWSKMSKeystore) Encrypt(ctx context.Context, data []byte) ([]byte, error) {
	output, err := k.client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:     aws.String(k.keyID),
		Plaintext: data,
	})
	if err != nil {
		return nil, fmt.Errorf("AWS KMS encrypt failed: %w", err)
	}
	return output.CiphertextBlob, nil
}

func (k *AWSKMSKeystore) Decrypt(ctx context.Context, encryptedData []byte) ([]byte, error) {
	output, err := k.client.Decrypt(ctx, &kms.DecryptInput{
		KeyId:          aws.String(k.keyID),
		CiphertextBlob: encryptedData,
	})
	if err != nil {
		return nil, fmt.Errorf("AWS KMS decrypt failed: %w", err)
	}
	return output.Plaintext, nil
}

func (k *AWSKMSKeystore) Backend() string {
	return string(BackendAWSKMS)
}

// VaultKeystore implements Keystore against a Vault Transit key.
type VaultKeystore struct {
	transitKey string
	client     *vault.Client
}

// NewVaultKeystore creates a Vault Transit keystore.
func NewVaultKeystore(address, token, transitKey string) (*VaultKeystore, error) {
	if address == "" {
		return nil, fmt.Errorf("Vault address is required")
	}
	if token == "" {
		return nil, fmt.Errorf("Vault token is required")
	}
	if transitKey == "" {
		return nil, fmt.Errorf("Vault transit key name is required")
	}

	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = address

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	client.SetToken(token)

	return &VaultKeystore{
		transitKey: transitKey,
		client:     client,
	}, nil
}

func (k *VaultKeystore) Encrypt(ctx context.Context, data []byte) ([]byte, error) {
	// Transit requires base64 plaintext.
	path := fmt.Sprintf("transit/encrypt/%s", k.transitKey)
	secret, err := k.client.Logical().WriteWithContext(ctx, path, map[string]interface{}{
		"plaintext": base64.StdEncoding.EncodeToString(data),
	})
	if err != nil {
		return nil, fmt.Errorf("Vault Transit encrypt failed: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("Vault Transit encrypt returned empty response")
	}

	ciphertext, ok := secret.Data["ciphertext"].(string)
	if !ok {
		return nil, fmt.Errorf("Vault Transit encrypt: ciphertext not found in response")
	}
	return []byte(ciphertext), nil
}

func (k *VaultKeystore) Decrypt(ctx context.Context, encryptedData []byte) ([]byte, error) {
	path := fmt.Sprintf("transit/decrypt/%s", k.transitKey)
	secret, err := k.client.Logical().WriteWithContext(ctx, path, map[string]interface{}{
		"ciphertext": string(encryptedData),
	})
	if err != nil {
		return nil, fmt.Errorf("Vault Transit decrypt failed: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("Vault Transit decrypt returned empty response")
	}

	plaintextB64, ok := secret.Data["plaintext"].(string)
	if !ok {
		return nil, fmt.Errorf("Vault Transit decrypt: plaintext not found in response")
	}
	plaintext, err := base64.StdEncoding.DecodeString(plaintextB64)
	if err != nil {
		return nil, fmt.Errorf("Vault Transit decrypt: failed to decode plaintext: %w", err)
	}
	return plaintext, nil
}

func (k *VaultKeystore) Backend() string {
	return string(BackendVault)
}

var (
	_ Keystore = (*LocalKeystore)(nil)
	_ Keystore = (*AWSKMSKeystore)(nil)
	_ Keystore = (*VaultKeystore)(nil)
)
