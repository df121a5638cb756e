package boltdb

import (
	"fmt"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"github.com/iudanet/docsync/internal/client/storage"
	"github.com/iudanet/docsync/internal/crypto"
)

var (
	// BoltDB bucket names
	bucketSnapshots  = []byte("snapshots")
	bucketQueue      = []byte("queue")
	bucketQueueIndex = []byte("queue_index")
	bucketMetadata   = []byte("metadata")
	bucketDeliveries = []byte("deliveries")
)

var (
	_ storage.DocumentStore   = (*Storage)(nil)
	_ storage.QueueStorage    = (*Storage)(nil)
	_ storage.MetadataStorage = (*Storage)(nil)
)

// Option настраивает Storage
type Option func(*Storage)

// WithPassphrase включает шифрование снимков на диске
func WithPassphrase(passphrase string) Option {
	return func(s *Storage) {
		s.passphrase = passphrase
	}
}

// WithOpenTimeout ограничивает ожидание file lock при открытии
func WithOpenTimeout(timeout time.Duration) Option {
	return func(s *Storage) {
		s.openTimeout = timeout
	}
}

// Storage represents BoltDB storage implementation for client.
// The database handle is owned by Storage: it is opened lazily on first
// use and released by Close.
type Storage struct {
	db          *bbolt.DB
	sealer      *crypto.Sealer
	path        string
	passphrase  string
	openTimeout time.Duration
	mu          sync.Mutex
	closed      bool
}

// New creates a new BoltDB storage for dbPath.
// The file is not touched until the first operation.
func New(dbPath string, opts ...Option) *Storage {
	s := &Storage{
		path:        dbPath,
		openTimeout: time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open forces initialization of the underlying database
func (s *Storage) Open() error {
	_, err := s.handle()
	return err
}

// Close closes the database connection. Further calls return ErrStorageClosed.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.db == nil {
		return nil
	}

	err := s.db.Close()
	s.db = nil
	s.sealer = nil
	return err
}

// handle возвращает открытую БД, открывая ее при первом обращении
func (s *Storage) handle() (*bbolt.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, storage.ErrStorageClosed
	}
	if s.db != nil {
		return s.db, nil
	}

	db, err := bbolt.Open(s.path, 0600, &bbolt.Options{Timeout: s.openTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	if err := initBuckets(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	if s.passphrase != "" {
		sealer, err := newSealer(db, s.passphrase)
		if err != nil {
			db.Close()
			return nil, err
		}
		s.sealer = sealer
	}

	s.db = db
	return db, nil
}

// initBuckets создает необходимые buckets если они не существуют
func initBuckets(db *bbolt.DB) error {
	return db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketSnapshots, bucketQueue, bucketQueueIndex, bucketMetadata, bucketDeliveries} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

// newSealer загружает (или создает) соль хранилища и выводит ключ шифрования
func newSealer(db *bbolt.DB, passphrase string) (*crypto.Sealer, error) {
	var salt []byte

	err := db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMetadata)
		if stored := bucket.Get([]byte(keySalt)); stored != nil {
			salt = append([]byte(nil), stored...)
			return nil
		}

		generated, err := crypto.GenerateSalt()
		if err != nil {
			return err
		}
		salt = generated
		return bucket.Put([]byte(keySalt), salt)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load storage salt: %w", err)
	}

	key, err := crypto.DeriveKey(passphrase, salt)
	if err != nil {
		return nil, fmt.Errorf("failed to derive storage key: %w", err)
	}

	return crypto.NewSealer(key)
}

func (s *Storage) currentSealer() *crypto.Sealer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sealer
}
