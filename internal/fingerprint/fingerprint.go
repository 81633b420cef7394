// ABOUTME: Payload and metric fingerprints used as deduplication keys.
// ABOUTME: SHA-256 with domain separation for payloads, xxhash64 for metrics.
package fingerprint

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/harperreed/health-ingest/internal/models"
)

// Domain prefixes, versioned so the canonical form can change later.
const (
	DomainPayload = "health-ingest/payload/v1"
	DomainMetric  = "health-ingest/metric/v1"
)

// Payload returns the hex SHA-256 of the canonical payload. The canonical
// bytes are streamed into the hash one metric group at a time and ctx is
// checked between groups.
func Payload(ctx context.Context, p *models.Payload) (string, error) {
	h := sha256.New()
	if err := writePayload(ctx, h, p); err != nil {
		return "", fmt.Errorf("fingerprint payload: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Metric returns the hex xxhash64 of a metric's name and canonical data.
// Collisions are bounded by the (payload, name) prefix of the metric key.
func Metric(name string, data []models.Entry) (string, error) {
	h := xxhash.New()
	w := bufio.NewWriter(h)
	if _, err := io.WriteString(w, DomainMetric+"\x00"); err != nil {
		return "", err
	}
	obj := map[string]any{"name": name, "data": data}
	if err := Canonical(w, obj); err != nil {
		return "", fmt.Errorf("fingerprint metric %s: %w", name, err)
	}
	if err := w.Flush(); err != nil {
		return "", err
	}
	return strconv.FormatUint(h.Sum64(), 16), nil
}

func writePayload(ctx context.Context, h io.Writer, p *models.Payload) error {
	w := bufio.NewWriter(h)
	if _, err := io.WriteString(w, DomainPayload+"\x00"+`{"metrics":[`); err != nil {
		return err
	}
	for i, m := range p.Metrics {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 {
			if _, err := io.WriteString(w, ","); err != nil {
				return err
			}
		}
		group := map[string]any{"name": m.Name, "units": m.Units, "data": m.Data}
		if err := Canonical(w, group); err != nil {
			return fmt.Errorf("metric %s: %w", m.Name, err)
		}
	}
	if _, err := io.WriteString(w, `],"workouts":`); err != nil {
		return err
	}
	if err := Canonical(w, p.Workouts); err != nil {
		return fmt.Errorf("workouts: %w", err)
	}
	if _, err := io.WriteString(w, "}"); err != nil {
		return err
	}
	return w.Flush()
}
