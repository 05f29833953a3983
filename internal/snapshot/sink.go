package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"
	"github.com/segmentio/kafka-go"
	"github.com/yanun0323/errors"

	"positionmonitor/internal/model"
	"positionmonitor/pkg/exception"
)

// Store persists snapshots. It is satisfied by source.Store.
type Store interface {
	InsertPortfolioSnapshot(ctx context.Context, snap model.PortfolioSnapshot) (int64, error)
}

// StoreSink writes snapshots to the data source and records the stored id.
type StoreSink struct {
	store Store
}

func NewStoreSink(store Store) *StoreSink {
	return &StoreSink{store: store}
}

func (s *StoreSink) Name() string { return "store" }

func (s *StoreSink) Write(ctx context.Context, snap *model.PortfolioSnapshot) error {
	if s.store == nil {
		return exception.ErrNilInstance
	}
	id, err := s.store.InsertPortfolioSnapshot(ctx, *snap)
	if err != nil {
		return errors.Wrap(err, "insert snapshot")
	}
	snap.ID = id
	return nil
}

// FileSink writes each snapshot as an indented JSON file under
// <dir>/<account>/.
type FileSink struct {
	dir string
}

func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir}
}

func (s *FileSink) Name() string { return "file" }

func (s *FileSink) Write(_ context.Context, snap *model.PortfolioSnapshot) error {
	return WriteFile(s.Path(*snap), *snap)
}

// Path is where snap is written.
func (s *FileSink) Path(snap model.PortfolioSnapshot) string {
	name := fmt.Sprintf("%s-%s-%s.json", snap.TakenAt.UTC().Format("20060102T150405"), snap.SnapshotType, snap.RequestID)
	return filepath.Join(s.dir, snap.Account, name)
}

// WriteFile writes a snapshot to disk as JSON.
func WriteFile(path string, snap model.PortfolioSnapshot) error {
	data, err := sonic.ConfigStd.MarshalIndent(snap, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal snapshot")
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "create snapshot dir").With("dir", dir)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "write snapshot").With("path", path)
	}
	return nil
}

// ReadFile loads a snapshot written by WriteFile.
func ReadFile(path string) (model.PortfolioSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.PortfolioSnapshot{}, errors.Wrap(err, "read snapshot").With("path", path)
	}
	var snap model.PortfolioSnapshot
	if err := sonic.Unmarshal(data, &snap); err != nil {
		return model.PortfolioSnapshot{}, errors.Wrap(err, "unmarshal snapshot").With("path", path)
	}
	return snap, nil
}

// MessageWriter is the part of *kafka.Writer the kafka sink uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes snapshots keyed by account.
type KafkaSink struct {
	writer MessageWriter
}

// NewKafkaWriter builds the producer used by KafkaSink.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}
}

func NewKafkaSink(writer MessageWriter) *KafkaSink {
	return &KafkaSink{writer: writer}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Write(ctx context.Context, snap *model.PortfolioSnapshot) error {
	value, err := sonic.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "marshal snapshot")
	}
	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(snap.Account),
		Value: value,
	})
	if err != nil {
		return errors.Wrap(err, "publish snapshot").With("account", snap.Account)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
