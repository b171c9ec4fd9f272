// Package rpc registers the record store methods on the JSON-over-TCP RPC
// server.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/dispatch-search/internal/reload"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/internal/worker"
	apperrors "github.com/Adithya-Monish-Kumar-K/dispatch-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/pkg/proto"
)

// Dispatcher sends a message to the search worker and waits for the reply.
type Dispatcher interface {
	Do(ctx context.Context, req worker.Request) (worker.Response, error)
}

// Reloader loads datasets from record sources.
type Reloader interface {
	Reload(ctx context.Context, req proto.ReloadRequest) (reload.Result, error)
	Detach(generation uint64)
}

type service struct {
	worker   Dispatcher
	seq      *worker.Sequencer
	reloader Reloader
}

// Register adds the RecordStore.* methods to s. reloader may be nil, in
// which case RecordStore.Reload is not offered.
func Register(s *grpc.Server, d Dispatcher, seq *worker.Sequencer, reloader Reloader) {
	svc := &service{worker: d, seq: seq, reloader: reloader}
	s.Register(proto.MethodSetData, svc.message(worker.KindSetData))
	s.Register(proto.MethodSearch, svc.message(worker.KindSearch))
	s.Register(proto.MethodStats, svc.message(worker.KindStats))
	if reloader != nil {
		s.Register(proto.MethodReload, svc.reload)
	}
}

// message returns a handler that forces the request kind, so a caller of
// RecordStore.Search cannot smuggle in a SET_DATA.
func (s *service) message(kind worker.Kind) grpc.HandlerFunc {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var req worker.Request
		if len(raw) > 0 && string(raw) != "null" {
			if err := json.Unmarshal(raw, &req); err != nil {
				return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
			}
		}
		req.Kind = kind
		if req.SequenceNumber == 0 {
			req.SequenceNumber = s.seq.Next()
		} else {
			s.seq.Observe(req.SequenceNumber)
		}
		resp, err := s.worker.Do(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.Error != "" {
			return nil, fmt.Errorf("%s #%d: %s", kind, resp.SequenceNumber, resp.Error)
		}
		if kind == worker.KindSetData && s.reloader != nil {
			s.reloader.Detach(resp.Generation)
		}
		return resp, nil
	}
}

func (s *service) reload(ctx context.Context, raw json.RawMessage) (any, error) {
	var req proto.ReloadRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	return s.reloader.Reload(ctx, req)
}

// Client is a typed wrapper over a grpc.Client for the RecordStore methods.
type Client struct {
	c *grpc.Client
}

// Dial connects to a record store RPC server.
func Dial(addr string) (*Client, error) {
	c, err := grpc.Dial(addr)
	if err != nil {
		return nil, err
	}
	return &Client{c: c}, nil
}

func (c *Client) call(ctx context.Context, method string, req any) (worker.Response, error) {
	var resp worker.Response
	if err := c.c.CallContext(ctx, method, req, &resp); err != nil {
		return worker.Response{}, err
	}
	return resp, nil
}

// SetData sends a SET_DATA message.
func (c *Client) SetData(ctx context.Context, req worker.Request) (worker.Response, error) {
	return c.call(ctx, proto.MethodSetData, req)
}

// Search sends a SEARCH message.
func (c *Client) Search(ctx context.Context, seq int64, term string) (worker.Response, error) {
	return c.call(ctx, proto.MethodSearch, worker.Search(seq, term))
}

// Stats asks for the store statistics.
func (c *Client) Stats(ctx context.Context) (worker.Response, error) {
	return c.call(ctx, proto.MethodStats, worker.Request{Kind: worker.KindStats})
}

// Reload asks the server to fetch and load a dataset.
func (c *Client) Reload(ctx context.Context, req proto.ReloadRequest) (reload.Result, error) {
	var res reload.Result
	if err := c.c.CallContext(ctx, proto.MethodReload, req, &res); err != nil {
		return reload.Result{}, err
	}
	return res, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.c.Close()
}
