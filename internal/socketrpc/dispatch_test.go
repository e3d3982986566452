package socketrpc

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/braidlog/braid/internal/model"
)

// stubAPI returns fixed values for dispatch unit testing and records the
// mutations it receives.
type stubAPI struct {
	dir     string
	filter  *model.Filter
	cleared bool
	fail    error
}

func (s *stubAPI) ReadRangeByIdx(startIdx, endIdx int64) ([]model.LogEntry, model.View, error) {
	if s.fail != nil {
		return nil, model.View{}, s.fail
	}
	return []model.LogEntry{
		{ID: 2, Idx: startIdx, TS: 1000, Level: "INFO", File: "a.log", Text: "hello"},
	}, model.View{Version: 3, Total: 2}, nil
}

func (s *stubAPI) Total() (int64, error) {
	if s.fail != nil {
		return 0, s.fail
	}
	return 2, nil
}

func (s *stubAPI) Manifest() (model.ManifestInfo, error) {
	if s.fail != nil {
		return model.ManifestInfo{}, s.fail
	}
	return model.ManifestInfo{Dir: s.dir, MergedLines: 2, ChunkCount: 1, Version: 3}, nil
}

func (s *stubAPI) SetFilter(f *model.Filter) error {
	s.filter = f
	return s.fail
}

func (s *stubAPI) ClearFilter() error {
	s.cleared = true
	return s.fail
}

func (s *stubAPI) SetManifestDir(dir string) error {
	s.dir = dir
	return s.fail
}

func (s *stubAPI) ManifestDir() string { return s.dir }

func newTestDispatcher() (*Server, *stubAPI) {
	api := &stubAPI{dir: "/data/merged"}
	return &Server{api: api}, api
}

func TestDispatch_AllMethods(t *testing.T) {
	t.Parallel()
	srv, _ := newTestDispatcher()

	tests := []struct {
		method string
		params string
	}{
		{"ManifestInfo", `{}`},
		{"FilteredTotal", `{}`},
		{"ReadRangeByIdx", `{"StartIdx":1,"EndIdx":10}`},
		{"SetFilter", `{"Filter":{"pid":"42"}}`},
		{"ClearFilter", `{}`},
		{"SetManifestDir", `{"Dir":"/data/other"}`},
	}

	for _, tt := range tests {
		req := Request{
			JSONRPC: "2.0",
			ID:      1,
			Method:  tt.method,
			Params:  json.RawMessage(tt.params),
		}
		resp := srv.dispatch(req)
		if resp.Error != nil {
			t.Fatalf("dispatch(%s) error: %s", tt.method, resp.Error.Message)
		}
		if resp.Result == nil {
			t.Fatalf("dispatch(%s) returned nil result", tt.method)
		}
		if resp.JSONRPC != "2.0" {
			t.Errorf("dispatch(%s) JSONRPC = %q, want 2.0", tt.method, resp.JSONRPC)
		}
		if resp.ID != 1 {
			t.Errorf("dispatch(%s) ID = %d, want 1", tt.method, resp.ID)
		}
	}
}

func TestDispatch_ReadRangeResult(t *testing.T) {
	t.Parallel()
	srv, _ := newTestDispatcher()

	resp := srv.dispatch(Request{
		JSONRPC: "2.0",
		ID:      7,
		Method:  "ReadRangeByIdx",
		Params:  json.RawMessage(`{"StartIdx":1,"EndIdx":1}`),
	})
	if resp.Error != nil {
		t.Fatalf("dispatch error: %s", resp.Error.Message)
	}

	var result RangeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if len(result.Entries) != 1 || result.Entries[0].Text != "hello" {
		t.Fatalf("entries = %+v", result.Entries)
	}
	if result.View.Version != 3 || result.View.Total != 2 {
		t.Fatalf("view = %+v", result.View)
	}
}

func TestDispatch_SetFilterReachesPager(t *testing.T) {
	t.Parallel()
	srv, api := newTestDispatcher()

	resp := srv.dispatch(Request{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "SetFilter",
		Params:  json.RawMessage(`{"Filter":{"pid":"42","contains":"boot"}}`),
	})
	if resp.Error != nil {
		t.Fatalf("dispatch error: %s", resp.Error.Message)
	}
	if api.filter == nil || api.filter.PID != "42" || api.filter.Contains != "boot" {
		t.Fatalf("filter = %+v", api.filter)
	}

	// Null params clear the filter rather than failing.
	resp = srv.dispatch(Request{JSONRPC: "2.0", ID: 2, Method: "SetFilter", Params: nil})
	if resp.Error != nil {
		t.Fatalf("SetFilter with nil params: %s", resp.Error.Message)
	}
	if api.filter != nil {
		t.Fatalf("nil params left filter = %+v", api.filter)
	}
}

func TestDispatch_MethodNotFound(t *testing.T) {
	t.Parallel()
	srv, _ := newTestDispatcher()

	resp := srv.dispatch(Request{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "NonExistentMethod",
		Params:  json.RawMessage(`{}`),
	})
	if resp.Error == nil {
		t.Fatal("expected error for unknown method")
	}
	if resp.Error.Code != -32601 {
		t.Errorf("error code = %d, want -32601", resp.Error.Code)
	}
}

func TestDispatch_InvalidParams(t *testing.T) {
	t.Parallel()
	srv, _ := newTestDispatcher()

	resp := srv.dispatch(Request{
		JSONRPC: "2.0",
		ID:      2,
		Method:  "ReadRangeByIdx",
		Params:  json.RawMessage(`not json`),
	})
	if resp.Error == nil {
		t.Fatal("expected error for malformed params")
	}
	if resp.Error.Code != -32602 {
		t.Errorf("error code = %d, want -32602 (invalid params)", resp.Error.Code)
	}

	resp = srv.dispatch(Request{
		JSONRPC: "2.0",
		ID:      3,
		Method:  "SetManifestDir",
		Params:  json.RawMessage(`{"Dir":""}`),
	})
	if resp.Error == nil || resp.Error.Code != -32602 {
		t.Errorf("empty Dir: error = %+v, want -32602", resp.Error)
	}
}

func TestDispatch_PagerErrorIsApplicationError(t *testing.T) {
	t.Parallel()
	srv, api := newTestDispatcher()
	api.fail = errors.New("no manifest directory bound")

	resp := srv.dispatch(Request{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "FilteredTotal",
		Params:  nil,
	})
	if resp.Error == nil {
		t.Fatal("expected application error")
	}
	if resp.Error.Code != -32000 {
		t.Errorf("error code = %d, want -32000", resp.Error.Code)
	}
}

func TestDispatch_PreservesRequestID(t *testing.T) {
	t.Parallel()
	srv, _ := newTestDispatcher()

	for _, id := range []int{0, 1, 42, 9999} {
		resp := srv.dispatch(Request{
			JSONRPC: "2.0",
			ID:      id,
			Method:  "FilteredTotal",
			Params:  json.RawMessage(`{}`),
		})
		if resp.ID != id {
			t.Errorf("request ID %d: response ID = %d", id, resp.ID)
		}
	}
}
