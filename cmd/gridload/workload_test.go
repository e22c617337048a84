package main

import (
	"context"
	"math"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestMakeBoxes_InRange(t *testing.T) {
	boxes := makeBoxes(200, rand.New(rand.NewPCG(1, 2)))
	if len(boxes) != 200 {
		t.Fatalf("len=%d want 200", len(boxes))
	}
	for i, b := range boxes {
		if b.North < b.South || b.North > 90 || b.South < -90 {
			t.Fatalf("box %d latitudes %+v", i, b)
		}
		if b.West < -180 || b.West > 180 || b.East < -180 || b.East > 180 {
			t.Fatalf("box %d longitudes %+v", i, b)
		}
	}
	if got := makeBoxes(3, rand.New(rand.NewPCG(1, 2))); len(got) != 3 {
		t.Fatalf("small pool len=%d", len(got))
	}
}

func TestRequestURL(t *testing.T) {
	u := requestURL("http://h", "rectangles", target{Year: 2010, Month: 6, Res: 4},
		Box{North: 10, South: -5.5, West: 170, East: -170}, "indices")
	parsed, err := url.Parse(u)
	if err != nil {
		t.Fatal(err)
	}
	q := parsed.Query()
	if parsed.Path != "/rectangles" || q.Get("res") != "4" || q.Get("south") != "-5.5" || q.Get("mode") != "indices" {
		t.Fatalf("unexpected url %s", u)
	}
	if u := requestURL("http://h", "data", target{}, Box{}, "indices"); strings.Contains(u, "mode=") {
		t.Fatalf("mode leaked into %s", u)
	}
}

func TestFetchTargets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/inventory" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"datasets":[{"key":{"year":2010,"month":6,"res":1}},{"key":{"year":2010,"month":6,"res":10}}]}`))
	}))
	defer srv.Close()

	got, err := fetchTargets(context.Background(), srv.Client(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[1] != (target{Year: 2010, Month: 6, Res: 10}) {
		t.Fatalf("targets=%v", got)
	}
}

func TestPercentile(t *testing.T) {
	if !math.IsNaN(percentile(nil, 50)) {
		t.Fatal("empty should be NaN")
	}
	vals := []float64{1, 2, 3, 4, 5}
	cases := map[float64]float64{0: 1, 50: 3, 100: 5, 25: 2, 90: 4.6}
	for p, want := range cases {
		if got := percentile(vals, p); math.Abs(got-want) > 1e-9 {
			t.Fatalf("p%v=%v want %v", p, got, want)
		}
	}
}
