package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jonathan/recruiting-assistant/internal/rpc"
	"github.com/jonathan/recruiting-assistant/internal/schemas"
	"github.com/jonathan/recruiting-assistant/internal/types"
)

type createRecordParams struct {
	Name   string   `json:"name"`
	Title  string   `json:"title"`
	Skills []string `json:"skills"`
	Token  string   `json:"token,omitempty"`
}

type createRecordResult struct {
	Status string  `json:"status"`
	Name   string  `json:"name"`
	Error  *string `json:"error"`
}

// SaveCandidate stores one candidate. It never returns an error: every failure
// is folded into a Failed outcome.
func (c *Client) SaveCandidate(ctx context.Context, candidate types.Candidate, session *types.Session) types.SaveOutcome {
	outcome := types.SaveOutcome{CandidateRef: candidate.ID, Name: candidate.Name}

	if strings.TrimSpace(candidate.Name) == "" {
		return failed(outcome, rpc.KindValidation, "candidate has no name")
	}

	skills := candidate.Skills
	if skills == nil {
		skills = []string{}
	}
	params := createRecordParams{Name: candidate.Name, Title: candidate.Title, Skills: skills}
	if c.attachToken && session != nil {
		params.Token = session.Token
	}

	raw, err := c.call(ctx, RecordsService, MethodCreateRecord, params)
	if err != nil {
		c.log.Info("save failed", zap.String("candidate", candidate.ID), zap.Error(err))
		return failed(outcome, kindOf(err), reason(err))
	}
	if err := checkResult(schemas.CreateRecordResult, MethodCreateRecord, raw); err != nil {
		return failed(outcome, rpc.KindProtocol, err.Error())
	}

	var res createRecordResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return failed(outcome, rpc.KindProtocol, protocolError(MethodCreateRecord, "cannot decode result", err).Error())
	}

	if res.Status != string(types.SaveStatusSaved) {
		msg := fmt.Sprintf("record not saved (status %q)", res.Status)
		if res.Error != nil && *res.Error != "" {
			msg = *res.Error
		}
		return failed(outcome, rpc.KindBusiness, msg)
	}

	outcome.Status = types.SaveStatusSaved
	c.log.Debug("candidate saved", zap.String("candidate", candidate.ID))
	return outcome
}

func failed(outcome types.SaveOutcome, kind rpc.Kind, detail string) types.SaveOutcome {
	outcome.Status = types.SaveStatusFailed
	outcome.ErrorKind = string(kind)
	outcome.ErrorDetail = detail
	return outcome
}
