package agents

import (
	"bytes"
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/jonathan/recruiting-assistant/internal/rpc"
	"github.com/jonathan/recruiting-assistant/internal/schemas"
	"github.com/jonathan/recruiting-assistant/internal/types"
)

type searchParams struct {
	Title  string   `json:"title"`
	Skills []string `json:"skills"`
	Token  string   `json:"token,omitempty"`
}

// errorObject is what some services return in place of a list.
type errorObject struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// SearchCandidates returns candidates matching criteria, in the order the search
// service ranked them. An empty list is a successful search. Failures are *SearchFailure.
func (c *Client) SearchCandidates(ctx context.Context, criteria types.SearchCriteria, session *types.Session) ([]types.Candidate, error) {
	criteria = criteria.Normalized()
	if err := criteria.Validate(); err != nil {
		return nil, &SearchFailure{Reason: err.Error(), Kind: rpc.KindValidation, Cause: err}
	}

	params := searchParams{Title: criteria.Title, Skills: criteria.Skills}
	if c.attachToken && session != nil {
		params.Token = session.Token
	}

	raw, err := c.call(ctx, SearchService, MethodSearchCandidates, params)
	if err != nil {
		c.log.Info("search failed", zap.String("title", criteria.Title), zap.Error(err))
		return nil, &SearchFailure{Reason: reason(err), Kind: kindOf(err), Cause: err}
	}

	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '{' {
		var obj errorObject
		if err := json.Unmarshal(trimmed, &obj); err == nil {
			msg := obj.Error
			if msg == "" {
				msg = obj.Message
			}
			if msg != "" {
				return nil, &SearchFailure{Reason: msg, Kind: rpc.KindBusiness, Cause: rpc.NewBusinessError(msg)}
			}
		}
	}

	if err := checkResult(schemas.CandidateList, MethodSearchCandidates, raw); err != nil {
		return nil, &SearchFailure{Reason: err.Error(), Kind: rpc.KindProtocol, Cause: err}
	}

	var candidates []types.Candidate
	if err := json.Unmarshal(raw, &candidates); err != nil {
		perr := protocolError(MethodSearchCandidates, "cannot decode candidate list", err)
		return nil, &SearchFailure{Reason: perr.Error(), Kind: rpc.KindProtocol, Cause: perr}
	}
	if candidates == nil {
		candidates = []types.Candidate{}
	}

	c.log.Debug("search returned", zap.String("title", criteria.Title), zap.Int("count", len(candidates)))
	return candidates, nil
}
