package webd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/rotblauer/dashcat/fuse"
	"github.com/rotblauer/dashcat/params"
	"github.com/rotblauer/dashcat/state"
	"github.com/rotblauer/dashcat/testing/testdata"
)

func testDaemon(t *testing.T) *WebDaemon {
	t.Helper()
	store, err := state.Open(t.TempDir(), false)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return NewWebDaemon(params.DefaultTestWebDaemonConfig(), fuse.NewEngine(nil), store)
}

func TestPingPong(t *testing.T) {
	d := testDaemon(t)
	srv := httptest.NewServer(d.NewRouter())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/ping")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestRunLifecycleOverHTTP(t *testing.T) {
	d := testDaemon(t)
	srv := httptest.NewServer(d.NewRouter())
	defer srv.Close()
	client := srv.Client()

	post := func(path string, body []byte) *bytes.Buffer {
		t.Helper()
		resp, err := client.Post(srv.URL+path, "application/json", bytes.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		out := &bytes.Buffer{}
		out.ReadFrom(resp.Body)
		if resp.StatusCode != 200 {
			t.Fatalf("POST %s: %d %s", path, resp.StatusCode, out.String())
		}
		return out
	}

	post("/run/start", []byte(fmt.Sprintf(`{"now":%d}`, testdata.StartMillis)))

	// A short cruise: enough for a moving start and nonzero speed.
	recs := testdata.NewTrace().
		Phase(2, 0, 2, nil, true, testdata.Constant(15), 5).
		Phase(2, 50, 2, testdata.AccelVec(0.2, 0, 0), true, testdata.Constant(15), 5).
		Records()
	var trace bytes.Buffer
	if err := testdata.WriteNDJSON(&trace, recs); err != nil {
		t.Fatal(err)
	}
	body := post("/push", trace.Bytes())

	var snap fuse.Snapshot
	if err := json.Unmarshal(body.Bytes(), &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Speed < 13 || snap.Speed > 17 {
		t.Errorf("pushed cruise should snapshot near 15, got %v", snap.Speed)
	}

	post("/run/stop", []byte(fmt.Sprintf(`{"now":%d}`, testdata.StartMillis+4_000)))

	// The run landed in the store.
	resp, err := client.Get(srv.URL + "/runs")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var runs []state.RunRecord
	if err := json.NewDecoder(resp.Body).Decode(&runs); err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 persisted run, got %d", len(runs))
	}
	if runs[0].StartMillis != testdata.StartMillis {
		t.Errorf("persisted run start %d, want %d", runs[0].StartMillis, testdata.StartMillis)
	}
}

func TestSnapshotEndpointEmptyEngine(t *testing.T) {
	d := testDaemon(t)
	srv := httptest.NewServer(d.NewRouter())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/snapshot")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var snap fuse.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatal(err)
	}
	if snap.Speed != 0 || snap.Distance != 0 {
		t.Errorf("fresh engine should snapshot zeroed, got %+v", snap)
	}
}
