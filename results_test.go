// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package chunkspeed_test

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	cs "code.hybscloud.com/chunkspeed"
)

func keysInOrder(t *testing.T, js []byte) []string {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader(js))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		t.Fatalf("tok=%v err=%v", tok, err)
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			t.Fatal(err)
		}
		keys = append(keys, tok.(string))
		var v any
		if err := dec.Decode(&v); err != nil {
			t.Fatal(err)
		}
	}
	return keys
}

func TestEncodeMetrics_KeyOrder(t *testing.T) {
	m := cs.Metrics{
		Upload:   cs.NewPhaseMetrics(10, time.Second),
		Download: cs.NewPhaseMetrics(20, time.Second),
	}
	js, err := cs.EncodeMetrics(m)
	if err != nil {
		t.Fatal(err)
	}
	keys := keysInOrder(t, js)
	if len(keys) != 22 {
		t.Fatalf("keys=%v", keys)
	}
	if keys[0] != "uploadMilliseconds" || keys[10] != "uploadMegabitsPerSecond" ||
		keys[11] != "downloadMilliseconds" || keys[21] != "downloadMegabitsPerSecond" {
		t.Fatalf("keys=%v", keys)
	}
	if !bytes.HasPrefix(js, []byte("{\n  \"uploadMilliseconds\": 1000,\n")) {
		t.Fatalf("not two-space indented: %q", js)
	}
}

func TestEncodeMetrics_Values(t *testing.T) {
	js, err := cs.EncodeMetrics(cs.Metrics{Download: cs.NewPhaseMetrics(1024*1024, 2*time.Second)})
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]float64
	if err := json.Unmarshal(js, &got); err != nil {
		t.Fatal(err)
	}
	want := map[string]float64{
		"downloadMilliseconds":       2000,
		"downloadSeconds":            2,
		"downloadBytes":              1048576,
		"downloadKilobytes":          1024,
		"downloadMegabytes":          1,
		"downloadBytesPerSecond":     524288,
		"downloadBitsPerSecond":      4194304,
		"downloadKilobytesPerSecond": 512,
		"downloadKilobitsPerSecond":  4096,
		"downloadMegabytesPerSecond": 0.5,
		"downloadMegabitsPerSecond":  4,
	}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("%s=%v want %v", k, got[k], v)
		}
	}
}

func TestEncodeMetrics_EmptyAndNonFinite(t *testing.T) {
	js, err := cs.EncodeMetrics(cs.Metrics{})
	if err != nil || string(js) != "{}" {
		t.Fatalf("js=%q err=%v", js, err)
	}

	// Zero elapsed time makes every rate infinite.
	js, err = cs.EncodeMetrics(cs.Metrics{Upload: cs.NewPhaseMetrics(5, 0)})
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]*float64
	if err := json.Unmarshal(js, &got); err != nil {
		t.Fatalf("%q: %v", js, err)
	}
	if got["uploadBytesPerSecond"] != nil || got["uploadBytes"] == nil || *got["uploadBytes"] != 5 {
		t.Fatalf("got %s", js)
	}
	if strings.Contains(string(js), "Inf") || strings.Contains(string(js), "NaN") {
		t.Fatalf("non-finite literal in %s", js)
	}
}

func TestNewPhaseMetrics_NothingMoved(t *testing.T) {
	if cs.NewPhaseMetrics(0, time.Second) != nil || cs.NewPhaseMetrics(-1, time.Second) != nil {
		t.Fatal("want nil for zero bytes")
	}
	if p := cs.NewPhaseMetrics(1, time.Millisecond); math.Abs(p.BytesPerSecond-1000) > 1e-9 {
		t.Fatalf("bps=%v", p.BytesPerSecond)
	}
}

func TestFinalFrame(t *testing.T) {
	js := []byte("{\n  \"k\": 1\n}")
	if got, want := string(cs.FinalFrame(js, false)), "\r\n{\r\nb\r\n\n  \"k\": 1\n}\r\n0\r\n\r\n"; got != want {
		t.Fatalf("default: got %q want %q", got, want)
	}
	if got, want := string(cs.FinalFrame(js, true)), "\r\n \r\n10\r\n\r\n{\n  \"k\": 1\n}\r\n\r\n0\r\n\r\n"; got != want {
		t.Fatalf("compat: got %q want %q", got, want)
	}
}
