package stubs

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/jonathan/recruiting-assistant/internal/rpc"
)

type record struct {
	ID     string
	Name   string
	Title  string
	Skills []string
}

type createRecordParams struct {
	Name   string   `json:"name"`
	Title  string   `json:"title"`
	Skills []string `json:"skills"`
	Token  string   `json:"token"`
}

type createRecordResult struct {
	Status   string  `json:"status"`
	Name     string  `json:"name,omitempty"`
	RecordID string  `json:"record_id,omitempty"`
	Error    *string `json:"error,omitempty"`
}

// createRecord stores a candidate. A second record with the same name is a
// JSON-RPC error; a record without a title is answered with status "rejected".
func (p *Platform) createRecord(_ context.Context, params json.RawMessage) (any, error) {
	var in createRecordParams
	if err := rpc.DecodeParams(params, &in); err != nil {
		return nil, err
	}
	if err := p.checkToken(in.Token); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, rpc.NewInvalidParams("name is required")
	}
	if strings.TrimSpace(in.Title) == "" {
		msg := "title is required"
		return createRecordResult{Status: "rejected", Name: name, Error: &msg}, nil
	}

	key := strings.ToLower(name)

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.records[key]; exists {
		return nil, rpc.NewBusinessError(fmt.Sprintf("record for %s already exists", name))
	}
	p.sequence++
	rec := record{ID: fmt.Sprintf("rec-%04d", p.sequence), Name: name, Title: in.Title, Skills: in.Skills}
	p.records[key] = rec

	p.log.Debug("record created", zap.String("record_id", rec.ID), zap.String("name", name))
	return createRecordResult{Status: "saved", Name: name, RecordID: rec.ID}, nil
}

// RecordNames returns the names of the stored records, sorted.
func (p *Platform) RecordNames() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.records))
	for _, r := range p.records {
		names = append(names, r.Name)
	}
	sort.Strings(names)
	return names
}
