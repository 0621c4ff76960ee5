// Package resolver maps JSON-RPC calls onto datasource lookups
package resolver

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"

	"batchloader/internal/batcher"
	"batchloader/internal/jsonrpc"
	"batchloader/internal/lookup"
)

// Supported methods
const (
	MethodFindUnique        = "findUnique"
	MethodFindUniqueOrThrow = "findUniqueOrThrow"
	MethodFindMany          = "findMany"
)

// submitter is satisfied by *batcher.Collector and *batcher.Tick
type submitter interface {
	Submit(ctx context.Context, req lookup.LookupRequest) *batcher.Handle
}

// Resolver executes JSON-RPC requests against a datasource
type Resolver struct {
	logger zerolog.Logger
}

// New creates a new Resolver
func New(logger zerolog.Logger) *Resolver {
	return &Resolver{
		logger: logger.With().Str("component", "resolver").Logger(),
	}
}

// Execute runs a single request. Point lookups join the collector window.
// A notification yields a nil response.
func (r *Resolver) Execute(ctx context.Context, ds *Datasource, req *jsonrpc.Request) *jsonrpc.Response {
	return r.start(ctx, ds, ds.Collector, req)()
}

// ExecuteBatch runs a JSON-RPC batch array inside one tick, so point
// lookups of equal signature share a single fetch. Responses keep the
// order of requests; notifications have no entry.
func (r *Resolver) ExecuteBatch(ctx context.Context, ds *Datasource, requests []*jsonrpc.Request) []*jsonrpc.Response {
	tick := ds.Collector.Tick()

	pending := make([]func() *jsonrpc.Response, len(requests))
	for i, req := range requests {
		pending[i] = r.start(ctx, ds, tick, req)
	}

	if err := tick.Close(ctx); err != nil {
		r.logger.Warn().Err(err).Str("datasource", ds.Name).Msg("batch tick did not complete")
	}

	responses := make([]*jsonrpc.Response, 0, len(requests))
	for _, wait := range pending {
		if resp := wait(); resp != nil {
			responses = append(responses, resp)
		}
	}

	r.logger.Debug().
		Str("datasource", ds.Name).
		Int("requests", len(requests)).
		Msg("batch request completed")

	return responses
}

// start registers the work for req and returns a function that waits
// for its response
func (r *Resolver) start(ctx context.Context, ds *Datasource, s submitter, req *jsonrpc.Request) func() *jsonrpc.Response {
	if err := req.Validate(); err != nil {
		id := jsonrpc.NewIDNull()
		if req != nil {
			id = req.ID
		}
		return respond(jsonrpc.NewErrorResponse(id, jsonrpc.NewError(jsonrpc.CodeInvalidRequest, err.Error())))
	}
	if req.IsNotification() {
		// a notification gets no response
		r.logger.Debug().Str("method", req.Method).Msg("ignoring notification")
		return respond(nil)
	}

	switch req.Method {
	case MethodFindUnique, MethodFindUniqueOrThrow:
		var lr lookup.LookupRequest
		if err := req.DecodeParams(&lr); err != nil {
			return respond(jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewError(jsonrpc.CodeInvalidParams, err.Error())))
		}

		h := s.Submit(ctx, lr)
		orThrow := req.Method == MethodFindUniqueOrThrow
		return func() *jsonrpc.Response {
			res, err := h.Wait(ctx)
			if err != nil {
				return r.errorResponse(req, err)
			}
			if !res.Found {
				if orThrow {
					return jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewErrorWithData(
						jsonrpc.CodeRecordNotFound, "record not found",
						map[string]any{"model": lr.Entity, "where": lr.Where},
					))
				}
				return jsonrpc.NewResponseRaw(req.ID, json.RawMessage("null"))
			}
			return r.resultResponse(req, res.Record)
		}

	case MethodFindMany:
		var q lookup.RangeQuery
		if err := req.DecodeParams(&q); err != nil {
			return respond(jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewError(jsonrpc.CodeInvalidParams, err.Error())))
		}

		done := make(chan *jsonrpc.Response, 1)
		go func() {
			records, err := ds.Collector.FindMany(ctx, q)
			if err != nil {
				done <- r.errorResponse(req, err)
				return
			}
			if records == nil {
				records = []lookup.Record{}
			}
			done <- r.resultResponse(req, records)
		}()
		return func() *jsonrpc.Response {
			return <-done
		}

	default:
		return respond(jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrMethodNotFound))
	}
}

func (r *Resolver) resultResponse(req *jsonrpc.Request, result any) *jsonrpc.Response {
	resp, err := jsonrpc.NewResponse(req.ID, result)
	if err != nil {
		r.logger.Error().Err(err).Str("method", req.Method).Msg("failed to marshal result")
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewError(jsonrpc.CodeInternalError, "failed to marshal result"))
	}
	return resp
}

// errorResponse maps lookup errors onto JSON-RPC error codes
func (r *Resolver) errorResponse(req *jsonrpc.Request, err error) *jsonrpc.Response {
	var fetchErr *lookup.FetchError

	switch {
	case errors.Is(err, lookup.ErrInvalidLookup), errors.Is(err, lookup.ErrUnknownEntity):
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewError(jsonrpc.CodeInvalidParams, err.Error()))
	case errors.As(err, &fetchErr):
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewErrorWithData(
			jsonrpc.CodeFetchFailed, "fetch failed: "+fetchErr.Err.Error(),
			map[string]any{"batch": fetchErr.BatchID, "signature": fetchErr.Signature.String(), "keys": fetchErr.Keys},
		))
	case errors.Is(err, batcher.ErrClosed):
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewError(jsonrpc.CodeServerError, "service is shutting down"))
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewError(jsonrpc.CodeServerError, "request timeout"))
	default:
		r.logger.Error().Err(err).Str("method", req.Method).Interface("id", req.ID.Value()).Msg("request failed")
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewError(jsonrpc.CodeInternalError, err.Error()))
	}
}

func respond(resp *jsonrpc.Response) func() *jsonrpc.Response {
	return func() *jsonrpc.Response {
		return resp
	}
}
