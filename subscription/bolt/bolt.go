package bolt

import (
	"context"
	"errors"
	"fmt"
	"time"

	bbolt "go.etcd.io/bbolt"

	cbus "github.com/next-trace/scg-message-bus/contract/bus"
	berr "github.com/next-trace/scg-message-bus/contract/errors"
)

var rootBucket = []byte("subscriptions")

// Storage is a decentralized cbus.SubscriptionStorage persisted in a local bbolt file.
// An owner endpoint keeps the subscribers of the topics it owns here.
//
// bbolt runs one read-write transaction at a time, which serializes writers; reads run in
// read-only transactions and observe a consistent snapshot.
type Storage struct {
	db *bbolt.DB
}

var _ cbus.SubscriptionStorage = (*Storage)(nil)

// Open opens (creating if needed) the database at path.
func Open(path string) (*Storage, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: bolt path required", berr.ErrNotConfigured)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("bolt open %s: %w", path, errors.Join(berr.ErrStorageFailed, err))
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(rootBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bolt init %s: %w", path, errors.Join(berr.ErrStorageFailed, err))
	}

	return &Storage{db: db}, nil
}

// Close releases the database file.
func (s *Storage) Close() error { return s.db.Close() }

func (*Storage) IsCentralized() bool { return false }

func (s *Storage) GetSubscriberAddresses(ctx context.Context, topic string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := []string{}

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(rootBucket).Bucket([]byte(topic))
		if b == nil {
			return nil
		}

		// keys iterate in byte order, so the result is already sorted
		return b.ForEach(func(k, _ []byte) error {
			out = append(out, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, wrap("get subscribers", topic, err)
	}

	return out, nil
}

func (s *Storage) RegisterSubscriber(ctx context.Context, topic, address string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.Bucket(rootBucket).CreateBucketIfNotExists([]byte(topic))
		if err != nil {
			return err
		}

		return b.Put([]byte(address), []byte{})
	})
	if err != nil {
		return wrap("register subscriber", topic, err)
	}

	return nil
}

func (s *Storage) UnregisterSubscriber(ctx context.Context, topic, address string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(rootBucket).Bucket([]byte(topic))
		if b == nil {
			return nil
		}

		return b.Delete([]byte(address))
	})
	if err != nil {
		return wrap("unregister subscriber", topic, err)
	}

	return nil
}

func wrap(op, topic string, err error) error {
	return fmt.Errorf("bolt %s %q: %w", op, topic, errors.Join(berr.ErrStorageFailed, err))
}
