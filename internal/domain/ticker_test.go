package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseTickerRows(t *testing.T) {
	t.Run("NDAX 10 column rows", func(t *testing.T) {
		payload := []byte(`[
			[1700000060000, 37001.25, 36990.1, 36995.5, 37000.75, 0.12345678, 36999.9, 37001.0, 3, 1700000000000],
			[1700000120000, "37010.5", "37000", "37000.75", "37005.25", "1.5", "37005", "37006", 3, 1700000060000]
		]`)

		bars, err := ParseTickerRows(payload)
		if err != nil {
			t.Fatalf("ParseTickerRows failed: %v", err)
		}
		if len(bars) != 2 {
			t.Fatalf("Expected 2 bars, got %d", len(bars))
		}

		first := bars[0]
		if first.TimestampMs != 1700000060000 {
			t.Errorf("TimestampMs = %d", first.TimestampMs)
		}
		if first.High.String() != "37001.25" || first.Low.String() != "36990.1" {
			t.Errorf("High/Low = %s/%s", first.High, first.Low)
		}
		if first.Open.String() != "36995.5" || first.Close.String() != "37000.75" {
			t.Errorf("Open/Close = %s/%s", first.Open, first.Close)
		}
		if first.Volume.String() != "0.12345678" {
			t.Errorf("Volume should keep every digit, got %s", first.Volume)
		}
		if first.InsideBid.String() != "36999.9" || first.InsideAsk.String() != "37001" {
			t.Errorf("Inside bid/ask = %s/%s", first.InsideBid, first.InsideAsk)
		}
		if first.InstrumentID != 3 || first.IntervalStartMs != 1700000000000 {
			t.Errorf("InstrumentID/IntervalStart = %d/%d", first.InstrumentID, first.IntervalStartMs)
		}

		if bars[1].Close.String() != "37005.25" {
			t.Errorf("Quoted columns should parse, got %s", bars[1].Close)
		}
	})

	t.Run("compact 8 column rows", func(t *testing.T) {
		payload := []byte(`[[1700000060000, 10.1, 9.9, 10, 10.05, 250, 7, 1700000000000]]`)

		bars, err := ParseTickerRows(payload)
		if err != nil {
			t.Fatalf("ParseTickerRows failed: %v", err)
		}
		bar := bars[0]
		if bar.InstrumentID != 7 || bar.IntervalStartMs != 1700000000000 {
			t.Errorf("InstrumentID/IntervalStart = %d/%d", bar.InstrumentID, bar.IntervalStartMs)
		}
		if !bar.InsideBid.IsZero() || !bar.InsideAsk.IsZero() {
			t.Error("Compact rows carry no inside bid/ask")
		}
		if !bar.Close.Equal(decimal.RequireFromString("10.05")) {
			t.Errorf("Close = %s", bar.Close)
		}
	})

	t.Run("no floating drift", func(t *testing.T) {
		// 0.1 + 0.2 style values must stay exact.
		payload := []byte(`[[1, 0.3, 0.1, 0.2, 0.30000000000000004, 0.7, 1, 0]]`)
		bars, err := ParseTickerRows(payload)
		if err != nil {
			t.Fatalf("ParseTickerRows failed: %v", err)
		}
		if bars[0].High.String() != "0.3" {
			t.Errorf("High = %s, want 0.3", bars[0].High)
		}
		if bars[0].Close.String() != "0.30000000000000004" {
			t.Errorf("Close = %s", bars[0].Close)
		}
	})

	t.Run("preserves row order", func(t *testing.T) {
		payload := []byte(`[[3,1,1,1,1,1,1,0],[1,1,1,1,1,1,1,0],[2,1,1,1,1,1,1,0]]`)
		bars, err := ParseTickerRows(payload)
		if err != nil {
			t.Fatalf("ParseTickerRows failed: %v", err)
		}
		for i, want := range []int64{3, 1, 2} {
			if bars[i].TimestampMs != want {
				t.Errorf("row %d timestamp = %d, want %d", i, bars[i].TimestampMs, want)
			}
		}
	})

	t.Run("empty batch", func(t *testing.T) {
		bars, err := ParseTickerRows([]byte(`[]`))
		if err != nil {
			t.Fatalf("ParseTickerRows failed: %v", err)
		}
		if len(bars) != 0 {
			t.Errorf("Expected no bars, got %d", len(bars))
		}
	})

	t.Run("rejects malformed rows", func(t *testing.T) {
		cases := map[string]string{
			"wrong width":     `[[1,2,3]]`,
			"not numeric":     `[[1,"x",1,1,1,1,1,0]]`,
			"fractional id":   `[[1,1,1,1,1,1,1.5,0]]`,
			"not an array":    `{"a":1}`,
			"truncated input": `[[1,2`,
		}
		for name, payload := range cases {
			if _, err := ParseTickerRows([]byte(payload)); err == nil {
				t.Errorf("%s: expected error", name)
			}
		}
	})
}
