package azure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/lease"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/ourstudio-se/go-contentauth"
)

const (
	defaultContainerName = "contentauth"
	defaultBlobFileName  = "content-auth-keys"
	defaultTimeout       = time.Second * 30

	// leaseDuration is in seconds, within the 15-60 range
	// accepted by the blob service
	leaseDuration = 60
)

type BlobConfig struct {
	accountName string
	serviceURL  string
	credential  *azblob.SharedKeyCredential
	container   string
	filename    string
	timeout     time.Duration
}

type BlobConfigOption func(*BlobConfig) error

func WithCredentials(accountName, accountKey string) BlobConfigOption {
	return func(c *BlobConfig) error {
		credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
		if err != nil {
			return err
		}

		c.accountName = accountName
		c.credential = credential
		return nil
	}
}

// WithServiceURL overrides the blob endpoint, which otherwise
// is derived from the account name. Useful for Azurite.
func WithServiceURL(serviceURL string) BlobConfigOption {
	return func(c *BlobConfig) error {
		if serviceURL == "" {
			return errors.New("blob config: missing service URL")
		}

		c.serviceURL = serviceURL
		return nil
	}
}

func WithContainer(containerName string) BlobConfigOption {
	return func(c *BlobConfig) error {
		if containerName == "" {
			return errors.New("blob config: missing container name")
		}

		c.container = containerName
		return nil
	}
}

func WithFile(fileName string) BlobConfigOption {
	return func(c *BlobConfig) error {
		if fileName == "" {
			return errors.New("blob config: missing filename")
		}

		c.filename = fileName
		return nil
	}
}

func WithTimeout(timeout time.Duration) BlobConfigOption {
	return func(c *BlobConfig) error {
		if timeout <= 0 {
			return errors.New("blob config: timeout must be positive")
		}

		c.timeout = timeout
		return nil
	}
}

// BlobFile keeps the key pairs of an Authenticator as a JSON
// document in a single block blob. Writes take a lease on the
// blob so concurrent rotations in other processes fail instead
// of overwriting each other.
type BlobFile struct {
	cfg    *BlobConfig
	client *azblob.Client

	// records holds every stored entry, including those that do
	// not decode to a KeyPair, so uploads never drop them
	mu      sync.Mutex
	records []*blobKeyFormat
}

type blobKeyFormat struct {
	ID         string `json:"id"`
	PrivateKey string `json:"private_key"`
	PublicKey  string `json:"public_key"`
	NotBefore  string `json:"not_before"`
	NotAfter   string `json:"not_after"`
}

// WithBlob sets up an Azure blob as the Backend for an Authenticator
func WithBlob(opts ...BlobConfigOption) contentauth.Option {
	return func(a *contentauth.Authenticator) error {
		bf, err := New(opts...)
		if err != nil {
			return fmt.Errorf("azure blob file: %w", err)
		}

		cb := contentauth.WithBackend(bf)
		return cb(a)
	}
}

func New(opts ...BlobConfigOption) (*BlobFile, error) {
	cfg := &BlobConfig{
		container: defaultContainerName,
		filename:  defaultBlobFileName,
		timeout:   defaultTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("blob config: %w", err)
		}
	}

	if cfg.credential == nil {
		return nil, errors.New("blob config: missing credentials")
	}

	if cfg.serviceURL == "" {
		cfg.serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.accountName)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(cfg.serviceURL, cfg.credential, nil)
	if err != nil {
		return nil, fmt.Errorf("blob file: failed to create client: %w", err)
	}

	bf := &BlobFile{cfg: cfg, client: client}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	if _, err := client.CreateContainer(ctx, cfg.container, nil); err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return nil, fmt.Errorf("blob file: failed to create container: %w", err)
	}

	exist, err := bf.blobExist(ctx)
	if err != nil {
		return nil, fmt.Errorf("blob file: service unavailable: %w", err)
	}

	if !exist {
		if err := bf.upload(ctx, []*blobKeyFormat{}, false); err != nil {
			return nil, fmt.Errorf("blob file: service unavailable: %w", err)
		}
	}

	return bf, nil
}

// GetKeys downloads the key pairs stored in the blob
func (bf *BlobFile) GetKeys() ([]contentauth.KeyPair, error) {
	ctx, cancel := context.WithTimeout(context.Background(), bf.cfg.timeout)
	defer cancel()

	records, err := bf.download(ctx)
	if err != nil {
		return nil, err
	}

	bf.mu.Lock()
	bf.records = records
	bf.mu.Unlock()

	return fromBlobFormat(records), nil
}

// AddKey appends a key pair and uploads the full set under a lease
func (bf *BlobFile) AddKey(key contentauth.KeyPair) error {
	ctx, cancel := context.WithTimeout(context.Background(), bf.cfg.timeout)
	defer cancel()

	bf.mu.Lock()
	defer bf.mu.Unlock()

	records := appendKeyPair(bf.records, key)
	if err := bf.upload(ctx, records, true); err != nil {
		return err
	}

	bf.records = records
	return nil
}

func (bf *BlobFile) blobClient() *blob.Client {
	return bf.client.ServiceClient().
		NewContainerClient(bf.cfg.container).
		NewBlobClient(bf.cfg.filename)
}

func (bf *BlobFile) download(ctx context.Context) ([]*blobKeyFormat, error) {
	resp, err := bf.client.DownloadStream(ctx, bf.cfg.container, bf.cfg.filename, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return []*blobKeyFormat{}, nil
		}
		return nil, fmt.Errorf("blob file: failed to download: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("blob file: reading file failed: %w", err)
	}

	var stored []*blobKeyFormat
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("blob file: unmarshalling file failed: %w", err)
	}

	records := make([]*blobKeyFormat, 0, len(stored))
	for _, sk := range stored {
		if sk != nil {
			records = append(records, sk)
		}
	}

	return records, nil
}

func (bf *BlobFile) upload(ctx context.Context, records []*blobKeyFormat, withLease bool) error {
	b, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("blob file: could not serialize JSON: %w", err)
	}

	uploadOptions := &azblob.UploadBufferOptions{}

	if withLease {
		leaseClient, err := lease.NewBlobClient(bf.blobClient(), &lease.BlobClientOptions{
			LeaseID: to(uuid.New().String()),
		})
		if err != nil {
			return fmt.Errorf("blob file: could not create lease client: %w", err)
		}

		resp, err := leaseClient.AcquireLease(ctx, leaseDuration, nil)
		switch {
		case err == nil:
			defer func() { _, _ = leaseClient.ReleaseLease(context.Background(), nil) }()
			uploadOptions.AccessConditions = &blob.AccessConditions{
				LeaseAccessConditions: &blob.LeaseAccessConditions{LeaseID: resp.LeaseID},
			}
		case bloberror.HasCode(err, bloberror.BlobNotFound):
			// nothing to lock yet, the upload creates the blob
		default:
			return fmt.Errorf("blob file: could not lock key file: %w", err)
		}
	}

	if _, err := bf.client.UploadBuffer(ctx, bf.cfg.container, bf.cfg.filename, b, uploadOptions); err != nil {
		return fmt.Errorf("blob file: failed to upload keys: %w", err)
	}

	return nil
}

func (bf *BlobFile) blobExist(ctx context.Context) (bool, error) {
	_, err := bf.blobClient().GetProperties(ctx, nil)
	if err == nil {
		return true, nil
	}

	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return false, nil
	}

	return false, err
}

func toBlobFormat(keys []contentauth.KeyPair) []*blobKeyFormat {
	stored := make([]*blobKeyFormat, 0, len(keys))
	for _, k := range keys {
		stored = append(stored, &blobKeyFormat{
			ID:         k.ID,
			PrivateKey: k.PrivateKey,
			PublicKey:  k.PublicKey,
			NotBefore:  k.NotBefore.Format(time.RFC3339),
			NotAfter:   k.NotAfter.Format(time.RFC3339),
		})
	}

	return stored
}

// appendKeyPair returns a copy of the stored records with key
// added at the end
func appendKeyPair(stored []*blobKeyFormat, key contentauth.KeyPair) []*blobKeyFormat {
	return append(append([]*blobKeyFormat{}, stored...), toBlobFormat([]contentauth.KeyPair{key})...)
}

// fromBlobFormat skips entries with unparseable dates; they stay
// in the blob untouched
func fromBlobFormat(stored []*blobKeyFormat) []contentauth.KeyPair {
	var keys []contentauth.KeyPair
	for _, sk := range stored {
		if sk == nil {
			continue
		}

		notBefore, err := time.Parse(time.RFC3339, sk.NotBefore)
		if err != nil {
			continue
		}

		notAfter, err := time.Parse(time.RFC3339, sk.NotAfter)
		if err != nil {
			continue
		}

		keys = append(keys, contentauth.KeyPair{
			ID:         sk.ID,
			PrivateKey: sk.PrivateKey,
			PublicKey:  sk.PublicKey,
			NotBefore:  notBefore,
			NotAfter:   notAfter,
		})
	}

	return keys
}

func to[T any](v T) *T {
	return &v
}
