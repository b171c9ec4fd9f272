package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
)

type fakeReader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	committed []int64
	closed    bool
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.messages) == 0 {
		r.cancel()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.messages[0]
	r.messages = r.messages[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func TestConsumerCommitsHandledMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := &fakeReader{
		messages: []kafka.Message{
			{Offset: 1, Value: []byte(`ok`)},
			{Offset: 2, Value: []byte(`bad`)},
			{Offset: 3, Value: []byte(`ok`)},
		},
		cancel: cancel,
	}
	var handled []string
	c := newConsumer(r, "dataset-changed", func(ctx context.Context, key, value []byte) error {
		handled = append(handled, string(value))
		if string(value) == "bad" {
			return errors.New("cannot handle")
		}
		return nil
	})
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(handled) != 3 {
		t.Errorf("handled = %v", handled)
	}
	if len(r.committed) != 2 || r.committed[0] != 1 || r.committed[1] != 3 {
		t.Errorf("committed = %v", r.committed)
	}
	if !r.closed {
		t.Error("reader not closed")
	}
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestProducerEncodesJSON(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "search-analytics")
	err := p.PublishBatch(context.Background(), []Event{
		{Key: "search", Value: map[string]int{"results": 3}},
		{Key: "load", Value: map[string]int{"rows": 10}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(w.msgs) != 2 || string(w.msgs[0].Key) != "search" {
		t.Fatalf("msgs = %v", w.msgs)
	}
	var decoded map[string]int
	if err := json.Unmarshal(w.msgs[1].Value, &decoded); err != nil || decoded["rows"] != 10 {
		t.Errorf("value = %s", w.msgs[1].Value)
	}
	if err := p.PublishBatch(context.Background(), nil); err != nil {
		t.Errorf("empty batch: %v", err)
	}
}

func TestProducerWrapsWriteError(t *testing.T) {
	boom := errors.New("broker down")
	p := newProducer(&fakeWriter{err: boom}, "t")
	if err := p.Publish(context.Background(), Event{Key: "k", Value: 1}); !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
}

func TestDecodeJSON(t *testing.T) {
	type msg struct {
		Source string `json:"source"`
	}
	got, err := DecodeJSON[msg]([]byte(`{"source":"redis"}`))
	if err != nil || got.Source != "redis" {
		t.Errorf("got %+v, %v", got, err)
	}
	if _, err := DecodeJSON[msg]([]byte(`{`)); err == nil {
		t.Error("expected decode error")
	}
}
