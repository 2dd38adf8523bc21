package domain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// RawMessage represents an unprocessed message from the observation topic.
type RawMessage struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// Observation sources, used as a metric label.
const (
	SourceHTTP  = "http"
	SourceKafka = "kafka"
)

// IngestRequest is the decoded observation submitted over HTTP or Kafka.
// Timestamp is nil when the sender left it out. Source is set by the
// receiving adapter, never decoded.
type IngestRequest struct {
	PlaceID   string
	Count     int
	Timestamp *time.Time
	Source    string
}

// ingestPayload mirrors the JSON the ingestion endpoint and topic accept.
type ingestPayload struct {
	PlaceID   string          `json:"place_id"`
	Count     json.RawMessage `json:"count"`
	Timestamp json.RawMessage `json:"timestamp"`
}

// ParseIngestRequest decodes {place_id, count, timestamp?}. Count must be a
// non-negative integral number; timestamp may be an RFC 3339 string or epoch
// milliseconds.
func ParseIngestRequest(data []byte) (IngestRequest, error) {
	var p ingestPayload
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&p); err != nil {
		return IngestRequest{}, Invalid("body", fmt.Sprintf("malformed JSON: %v", err))
	}
	if strings.TrimSpace(p.PlaceID) == "" {
		return IngestRequest{}, Invalid("place_id", "is required")
	}

	count, err := parseCount(p.Count)
	if err != nil {
		return IngestRequest{}, err
	}

	ts, err := parseTimestamp(p.Timestamp)
	if err != nil {
		return IngestRequest{}, err
	}

	return IngestRequest{PlaceID: p.PlaceID, Count: count, Timestamp: ts}, nil
}

func parseCount(raw json.RawMessage) (int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, Invalid("count", "is required")
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, Invalid("count", "must be a number")
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, Invalid("count", "must be an integer")
	}
	if f < 0 {
		return 0, Invalid("count", "must not be negative")
	}
	if f > MaxCount {
		return 0, Invalid("count", "is out of range")
	}
	return int(f), nil
}

func parseTimestamp(raw json.RawMessage) (*time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return nil, nil
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, Invalid("timestamp", "must be RFC 3339")
		}
		return &t, nil
	}
	var ms int64
	if err := json.Unmarshal(raw, &ms); err != nil {
		return nil, Invalid("timestamp", "must be an RFC 3339 string or epoch milliseconds")
	}
	t := time.UnixMilli(ms).UTC()
	return &t, nil
}
