// Package live publishes collection change events and lets callers follow
// them. Events travel over a Broker; the memory broker serves a single
// process and the NATS broker spans processes.
package live

import (
	"strings"
	"time"

	"github.com/syntrixbase/kinsync/pkg/model"
)

// Op names the mutation that produced an event.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	OpClear  Op = "clear"
)

// Event describes one successful mutation of a collection.
type Event struct {
	AppKey     string           `json:"appKey"`
	Collection string           `json:"collection"`
	Op         Op               `json:"op"`
	IDs        []string         `json:"ids,omitempty"`
	Documents  []model.Document `json:"documents,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

// Subject returns "{prefix}.{appKey}.{collection}". An empty collection
// yields the wildcard subject for every collection of the app.
func Subject(prefix, appKey, collection string) string {
	parts := make([]string, 0, 3)
	if prefix != "" {
		parts = append(parts, prefix)
	}
	parts = append(parts, appKey)
	if collection == "" {
		parts = append(parts, ">")
	} else {
		parts = append(parts, collection)
	}
	return strings.Join(parts, ".")
}
