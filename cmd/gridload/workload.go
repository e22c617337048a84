package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
)

// Box is a query rectangle in degrees.
type Box struct{ North, South, West, East float64 }

// hot spots people tend to look at
var centers = [][2]float64{
	{28.61, 77.21},  // Delhi
	{39.90, 116.40}, // Beijing
	{30.04, 31.24},  // Cairo
	{6.52, 3.38},    // Lagos
	{19.43, -99.13}, // Mexico City
	{34.05, -118.24},
}

// makeBoxes returns count boxes; the first quarter (at least 8) sit around
// the hot spots, the rest are spread over the globe.
func makeBoxes(count int, r *rand.Rand) []Box {
	out := make([]Box, 0, count)
	hot := max(8, count/4)
	for i := 0; i < hot && len(out) < count; i++ {
		c := centers[i%len(centers)]
		lat := c[0] + (r.Float64()-0.5)*4
		lon := c[1] + (r.Float64()-0.5)*4
		h, w := 2+r.Float64()*6, 2+r.Float64()*6
		out = append(out, clampBox(lat+h/2, lat-h/2, lon-w/2, lon+w/2))
	}
	for len(out) < count {
		lat := -60 + r.Float64()*130
		lon := -180 + r.Float64()*360
		h, w := 1+r.Float64()*20, 1+r.Float64()*30
		out = append(out, clampBox(lat+h/2, lat-h/2, lon, lon+w))
	}
	return out
}

// clampBox keeps latitudes in range and wraps the east edge, so some boxes
// cross the date line.
func clampBox(n, s, w, e float64) Box {
	n = math.Min(n, 90)
	s = math.Max(s, -90)
	if e > 180 {
		e -= 360
	}
	return Box{North: round1(n), South: round1(s), West: round1(w), East: round1(e)}
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

type target struct {
	Year, Month, Res int
}

// fetchTargets lists the datasets the server can serve.
func fetchTargets(ctx context.Context, c *http.Client, base string) ([]target, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/inventory", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inventory: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inventory status %d", resp.StatusCode)
	}
	var inv struct {
		Datasets []struct {
			Key struct {
				Year  int `json:"year"`
				Month int `json:"month"`
				Res   int `json:"res"`
			} `json:"key"`
		} `json:"datasets"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&inv); err != nil {
		return nil, fmt.Errorf("decode inventory: %w", err)
	}
	out := make([]target, 0, len(inv.Datasets))
	for _, d := range inv.Datasets {
		out = append(out, target{Year: d.Key.Year, Month: d.Key.Month, Res: d.Key.Res})
	}
	return out, nil
}

func requestURL(base, endpoint string, t target, b Box, mode string) string {
	q := url.Values{}
	q.Set("year", strconv.Itoa(t.Year))
	q.Set("month", strconv.Itoa(t.Month))
	q.Set("res", strconv.Itoa(t.Res))
	q.Set("north", strconv.FormatFloat(b.North, 'f', -1, 64))
	q.Set("south", strconv.FormatFloat(b.South, 'f', -1, 64))
	q.Set("west", strconv.FormatFloat(b.West, 'f', -1, 64))
	q.Set("east", strconv.FormatFloat(b.East, 'f', -1, 64))
	if endpoint == "rectangles" && mode != "" {
		q.Set("mode", mode)
	}
	return base + "/" + endpoint + "?" + q.Encode()
}

func percentile(sortedValues []float64, p float64) float64 {
	if len(sortedValues) == 0 {
		return math.NaN()
	}
	if p <= 0 {
		return sortedValues[0]
	}
	if p >= 100 {
		return sortedValues[len(sortedValues)-1]
	}
	k := (p / 100.0) * float64(len(sortedValues)-1)
	f := math.Floor(k)
	i := int(f)
	if i >= len(sortedValues)-1 {
		return sortedValues[len(sortedValues)-1]
	}
	d := k - f
	return sortedValues[i]*(1-d) + sortedValues[i+1]*d
}
